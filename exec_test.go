package bish_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bish"
	"bish/coreutils"
)

// run executes src with the bundled coreutils registered and an empty
// filesystem apart from the given seeds.
func run(t *testing.T, src string, files map[string]string) bish.Result {
	t.Helper()
	return bish.Execute(src, bish.Options{
		Cwd:            "/work",
		Env:            map[string]string{"HOME": "/root", "PWD": "/work"},
		Files:          withWorkDir(files),
		CustomCommands: coreutils.All(),
	})
}

func withWorkDir(files map[string]string) map[string]string {
	out := map[string]string{"/work/": "", "/root/": "", "/tmp/": ""}
	for k, v := range files {
		out[k] = v
	}
	return out
}

func TestEndToEndScenarios(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantStdout string
		wantStderr string
		wantCode   int
	}{
		{
			name:       "if true then echo",
			input:      "if true; then echo yes; fi",
			wantStdout: "yes\n",
			wantCode:   0,
		},
		{
			name:       "arithmetic on variables",
			input:      "a=1; b=2; echo $((a+b))",
			wantStdout: "3\n",
			wantCode:   0,
		},
		{
			name:       "for loop into tr pipeline",
			input:      "for i in 1 2 3; do echo $i; done | tr '\\n' ','",
			wantStdout: "1,2,3,",
			wantCode:   0,
		},
		{
			name:       "function locals shadow globals",
			input:      "f(){ local x=inner; echo $x; }; x=outer; f; echo $x",
			wantStdout: "inner\nouter\n",
			wantCode:   0,
		},
		{
			name:     "errexit stops execution",
			input:    "set -e; false; echo nope",
			wantCode: 1,
		},
		{
			name:       "raw bytes survive the pipeline",
			input:      "echo $'\\xff' | wc -c",
			wantStdout: "2\n",
			wantCode:   0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, tt.input, nil)
			assert.Equal(t, tt.wantStdout, string(res.Stdout), "stdout")
			if tt.wantStderr != "" {
				assert.Equal(t, tt.wantStderr, string(res.Stderr), "stderr")
			}
			assert.Equal(t, tt.wantCode, res.ExitCode, "exit code (stderr: %s)", res.Stderr)
		})
	}
}

func TestSyntaxErrorsExitTwo(t *testing.T) {
	tests := []string{
		"if true; then echo yes",
		"while true; do echo x",
		"echo 'unterminated",
		"case x in",
		"for do done",
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			res := run(t, src, nil)
			assert.Equal(t, 2, res.ExitCode)
			assert.Empty(t, string(res.Stdout))
			assert.NotEmpty(t, string(res.Stderr))
		})
	}
}

func TestCommandNotFound(t *testing.T) {
	res := run(t, "definitely-not-a-command", nil)
	assert.Equal(t, 127, res.ExitCode)
	assert.Contains(t, string(res.Stderr), "command not found")
}

func TestCaseStatement(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"first match wins", `case abc in a*) echo glob;; abc) echo exact;; esac`, "glob\n"},
		{"alternation", `case b in a|b) echo ab;; *) echo other;; esac`, "ab\n"},
		{"default arm", `case zzz in a) echo a;; *) echo default;; esac`, "default\n"},
		{"fallthrough ;&", `case a in a) echo one;& b) echo two;; c) echo three;; esac`, "one\ntwo\n"},
		{"continue matching ;;&", `case ab in a*) echo a;;& *b) echo b;; esac`, "a\nb\n"},
		{"no match is success", `case x in y) echo nope;; esac; echo $?`, "0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, tt.input, nil)
			assert.Equal(t, tt.want, string(res.Stdout))
			assert.Equal(t, 0, res.ExitCode, "stderr: %s", res.Stderr)
		})
	}
}

func TestWhileUntilLoops(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"while counts", "i=0; while [ $i -lt 3 ]; do echo $i; i=$((i+1)); done", "0\n1\n2\n"},
		{"until counts", "i=0; until [ $i -ge 3 ]; do echo $i; i=$((i+1)); done", "0\n1\n2\n"},
		{"break exits", "i=0; while true; do i=$((i+1)); if [ $i -gt 2 ]; then break; fi; echo $i; done", "1\n2\n"},
		{"continue skips", "for i in 1 2 3; do if [ $i = 2 ]; then continue; fi; echo $i; done", "1\n3\n"},
		{
			"break n unwinds n loops",
			"for a in 1 2; do for b in x y; do echo $a$b; break 2; done; done; echo done",
			"1x\ndone\n",
		},
		{
			"continue 2 resumes outer loop",
			"for a in 1 2; do for b in x y; do echo $a$b; continue 2; done; echo never; done",
			"1x\n2x\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, tt.input, nil)
			require.Equal(t, 0, res.ExitCode, "stderr: %s", res.Stderr)
			assert.Equal(t, tt.want, string(res.Stdout))
		})
	}
}

func TestForArithLoop(t *testing.T) {
	res := run(t, "for ((i=0; i<3; i++)); do echo $i; done", nil)
	require.Equal(t, 0, res.ExitCode, "stderr: %s", res.Stderr)
	assert.Equal(t, "0\n1\n2\n", string(res.Stdout))
}

func TestFunctions(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     string
		wantCode int
	}{
		{"positional args", `f(){ echo "$1-$2"; }; f a b`, "a-b\n", 0},
		{"return code", "f(){ return 3; }; f; echo $?", "3\n", 0},
		{"return stops body", "f(){ echo one; return; echo two; }; f", "one\n", 0},
		{"nested calls", "g(){ echo g; }; f(){ g; echo f; }; f", "g\nf\n", 0},
		{"function keyword form", "function f { echo hi; }; f", "hi\n", 0},
		{"args restored after call", `set -- x y; f(){ echo $#; }; f a b c; echo $#`, "3\n2\n", 0},
		{"return outside function fails", "return 2", "", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, tt.input, nil)
			assert.Equal(t, tt.want, string(res.Stdout))
			assert.Equal(t, tt.wantCode, res.ExitCode)
		})
	}
}

func TestEvalAndSource(t *testing.T) {
	t.Run("eval joins args", func(t *testing.T) {
		res := run(t, `eval echo a b`, nil)
		assert.Equal(t, "a b\n", string(res.Stdout))
	})
	t.Run("eval sees current state", func(t *testing.T) {
		res := run(t, `x=5; eval 'echo $x'`, nil)
		assert.Equal(t, "5\n", string(res.Stdout))
	})
	t.Run("eval mutates current state", func(t *testing.T) {
		res := run(t, `eval 'y=7'; echo $y`, nil)
		assert.Equal(t, "7\n", string(res.Stdout))
	})
	t.Run("source runs file in current state", func(t *testing.T) {
		res := run(t, "source /work/lib.sh; greet", map[string]string{
			"/work/lib.sh": "greet(){ echo hello; }\n",
		})
		assert.Equal(t, "hello\n", string(res.Stdout))
	})
	t.Run("source with positional args", func(t *testing.T) {
		res := run(t, ". /work/args.sh one two", map[string]string{
			"/work/args.sh": "echo $1:$2\n",
		})
		assert.Equal(t, "one:two\n", string(res.Stdout))
	})
	t.Run("return inside sourced script", func(t *testing.T) {
		res := run(t, "source /work/ret.sh; echo $?", map[string]string{
			"/work/ret.sh": "echo before\nreturn 4\necho after\n",
		})
		assert.Equal(t, "before\n4\n", string(res.Stdout))
	})
}

func TestExitRunsExitTrap(t *testing.T) {
	res := run(t, `trap 'echo bye' EXIT; echo hi; exit 3; echo never`, nil)
	assert.Equal(t, "hi\nbye\n", string(res.Stdout))
	assert.Equal(t, 3, res.ExitCode)
}

func TestSelectReadsMenuChoices(t *testing.T) {
	res := run(t, "select x in a b; do echo got:$x; break; done <<< 2", nil)
	assert.Equal(t, "got:b\n", string(res.Stdout))
	assert.Contains(t, string(res.Stderr), "1) a")
	assert.Contains(t, string(res.Stderr), "2) b")
}

func TestEnvInResult(t *testing.T) {
	res := run(t, "export FOO=bar; BAZ=hidden", nil)
	assert.Equal(t, "bar", res.Env["FOO"])
	_, ok := res.Env["BAZ"]
	assert.False(t, ok, "unexported variables stay out of Result.Env")
}

func TestHistoryBuiltin(t *testing.T) {
	res := run(t, "history", nil)
	assert.Equal(t, 0, res.ExitCode)
}

func TestTypeAndCommand(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"type cd", "cd is a shell builtin\n"},
		{"f(){ :; }; type f", "f is a function\n"},
		{"alias ll='echo l'; type ll", "ll is aliased to `echo l'\n"},
		{"command -v cd", "cd\n"},
		{"command -V echo", "echo is a registered command\n"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			res := run(t, tt.input, nil)
			assert.Equal(t, tt.want, string(res.Stdout))
			assert.Equal(t, 0, res.ExitCode)
		})
	}
}

func TestQuoteRoundTrip(t *testing.T) {
	// printf %q output must eval back to the original bytes.
	inputs := []string{
		"plain",
		"has space",
		"sin'gle",
		"tab\there",
		"new\nline",
	}
	for _, val := range inputs {
		t.Run(val, func(t *testing.T) {
			res := run(t, `x=`+quoteForTest(val)+`; q=$(printf '%q' "$x"); eval "echo $q"`, nil)
			require.Equal(t, 0, res.ExitCode, "stderr: %s", res.Stderr)
			assert.Equal(t, val+"\n", string(res.Stdout))
		})
	}
}

// quoteForTest produces a single-quoted shell literal for embedding test
// values in source text.
func quoteForTest(s string) string {
	out := "'"
	for _, c := range s {
		if c == '\'' {
			out += `'\''`
			continue
		}
		out += string(c)
	}
	return out + "'"
}
