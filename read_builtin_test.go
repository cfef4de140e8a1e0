package bish_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBuiltin(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"single variable", "read x <<< hello; echo got:$x", "got:hello\n"},
		{"splits by ifs", "read a b <<< 'one two three'; echo $a/$b", "one/two three\n"},
		{"default REPLY", "read <<< something; echo $REPLY", "something\n"},
		{"custom delimiter", "printf 'a:b\\n' | { read -d : x; echo $x; }", "a\n"},
		{"raw mode keeps backslashes", `printf 'a\\b\n' | { read -r x; echo "$x"; }`, "a\\b\n"},
		{"without raw drops backslashes", `printf 'a\\b\n' | { read x; echo "$x"; }`, "ab\n"},
		{"eof fails", "read x < /dev/null-ish 2>/dev/null; printf ''", ""},
		{"consumes one line per call", "printf 'l1\\nl2\\n' | { read a; read b; echo $b:$a; }", "l2:l1\n"},
		{"custom ifs split", `printf 'a:b\n' | { IFS=: read x y; echo $x-$y; }`, "a-b\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, tt.input, nil)
			assert.Equal(t, tt.want, string(res.Stdout), "stderr: %s", res.Stderr)
		})
	}

	t.Run("eof returns one", func(t *testing.T) {
		res := run(t, `printf '' | { read x; echo code:$?; }`, nil)
		assert.Equal(t, "code:1\n", string(res.Stdout))
	})
}

func TestGetoptsBuiltin(t *testing.T) {
	driver := `
parse() {
  while getopts ab: opt "$@"; do
    case $opt in
      a) echo flag-a;;
      b) echo arg-b:$OPTARG;;
      \?) echo bad;;
    esac
  done
  echo ind:$OPTIND
}
parse ` // caller appends args

	tests := []struct {
		name string
		args string
		want string
	}{
		{"separate options", "-a -b val", "flag-a\narg-b:val\nind:4\n"},
		{"bundled flag then arg", "-ab val", "flag-a\narg-b:val\nind:3\n"},
		{"attached option argument", "-bval", "arg-b:val\nind:2\n"},
		{"stops at non-option", "-a positional", "flag-a\nind:2\n"},
		{"double dash ends options", "-a -- -b x", "flag-a\nind:3\n"},
		{"unknown option", "-z", "bad\nind:2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, driver+tt.args, nil)
			require.Equal(t, 0, res.ExitCode, "stderr: %s", res.Stderr)
			assert.Equal(t, tt.want, string(res.Stdout))
		})
	}

	t.Run("silent mode missing argument", func(t *testing.T) {
		res := run(t, `f(){ getopts :b: opt "$@"; echo $opt:$OPTARG; }; f -b`, nil)
		assert.Equal(t, ":"+":b\n", string(res.Stdout))
		assert.Empty(t, string(res.Stderr))
	})
	t.Run("invalid variable name", func(t *testing.T) {
		res := run(t, `getopts ab: 1bad -a; echo code:$?`, nil)
		assert.Equal(t, "code:2\n", string(res.Stdout))
	})
}

func TestPrintfBuiltin(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain string", `printf hello`, "hello"},
		{"newline escape", `printf 'a\nb'`, "a\nb"},
		{"string spec", `printf '%s!' world`, "world!"},
		{"decimal", `printf '%d' 42`, "42"},
		{"width", `printf '[%5d]' 42`, "[   42]"},
		{"left justify", `printf '[%-5s]' ab`, "[ab   ]"},
		{"zero pad", `printf '%05d' 42`, "00042"},
		{"hex octal", `printf '%x:%o' 255 8`, "ff:10"},
		{"percent literal", `printf '100%%'`, "100%"},
		{"format reuse", `printf '%s,' a b c`, "a,b,c,"},
		{"missing args default", `printf '%s:%d' only`, "only:0"},
		{"char", `printf '%c' abc`, "a"},
		{"b escapes argument", `printf '%b' 'x\ty'`, "x\ty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, tt.input, nil)
			require.Equal(t, 0, res.ExitCode, "stderr: %s", res.Stderr)
			assert.Equal(t, tt.want, string(res.Stdout))
		})
	}

	t.Run("%q single-quotes a value with a space", func(t *testing.T) {
		res := run(t, `printf '%q' "a b"`, nil)
		assert.Equal(t, "'a b'", string(res.Stdout))
	})
}

func TestTestBuiltin(t *testing.T) {
	files := map[string]string{"/work/f.txt": "data", "/work/empty": "", "/work/d/": ""}
	tests := []struct {
		name     string
		input    string
		wantCode int
	}{
		{"string equality", `[ abc = abc ]`, 0},
		{"string inequality", `[ abc != abc ]`, 1},
		{"nonempty", `[ -n x ]`, 0},
		{"empty", `[ -z "" ]`, 0},
		{"numeric eq", `[ 5 -eq 5 ]`, 0},
		{"numeric lt", `[ 3 -lt 5 ]`, 0},
		{"numeric gt fails", `[ 3 -gt 5 ]`, 1},
		{"file exists", `[ -e /work/f.txt ]`, 0},
		{"regular file", `[ -f /work/f.txt ]`, 0},
		{"directory", `[ -d /work/d ]`, 0},
		{"nonempty file", `[ -s /work/f.txt ]`, 0},
		{"empty file fails -s", `[ -s /work/empty ]`, 1},
		{"negation", `[ ! -e /work/nope ]`, 0},
		{"and combinator", `[ -n x -a -n y ]`, 0},
		{"or combinator", `[ -z x -o -n y ]`, 0},
		{"bare word true", `[ x ]`, 0},
		{"empty bare word false", `[ "" ]`, 1},
		{"missing bracket errors", `[ x`, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, tt.input, files)
			assert.Equal(t, tt.wantCode, res.ExitCode, "stderr: %s", res.Stderr)
		})
	}
}

func TestCondCommand(t *testing.T) {
	files := map[string]string{"/work/f.txt": "data"}
	tests := []struct {
		name     string
		input    string
		wantCode int
	}{
		{"pattern match", `[[ hello == h* ]]`, 0},
		{"pattern mismatch", `[[ hello == x* ]]`, 1},
		{"quoted pattern is literal", `[[ hello == "h*" ]]`, 1},
		{"not equal pattern", `[[ hello != x* ]]`, 0},
		{"regex match", `[[ abc123 =~ ^[a-z]+[0-9]+$ ]]`, 0},
		{"regex mismatch", `[[ abc =~ ^[0-9]+$ ]]`, 1},
		{"logical and", `[[ -n x && -n y ]]`, 0},
		{"logical or", `[[ -z x || -n y ]]`, 0},
		{"negation", `[[ ! -n "" ]]`, 0},
		{"parenthesized", `[[ ( -n x || -z x ) && -n y ]]`, 0},
		{"no word splitting of operands", `x="a b"; [[ $x == "a b" ]]`, 0},
		{"string comparison lt", `[[ apple < banana ]]`, 0},
		{"file test", `[[ -f /work/f.txt ]]`, 0},
		{"numeric comparison", `[[ 10 -gt 9 ]]`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, tt.input, files)
			assert.Equal(t, tt.wantCode, res.ExitCode, "stderr: %s", res.Stderr)
		})
	}

	t.Run("rematch captures groups", func(t *testing.T) {
		res := run(t, `[[ ab12 =~ ([a-z]+)([0-9]+) ]] && echo ${BASH_REMATCH[1]}:${BASH_REMATCH[2]}`, nil)
		assert.Equal(t, "ab:12\n", string(res.Stdout))
	})
}
