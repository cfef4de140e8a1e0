package bish_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrexit(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantStdout string
		wantCode   int
	}{
		{
			name:     "plain failure stops",
			input:    "set -e; false; echo nope",
			wantCode: 1,
		},
		{
			name:       "if condition is exempt",
			input:      "set -e; if false; then echo t; else echo f; fi; echo after",
			wantStdout: "f\nafter\n",
			wantCode:   0,
		},
		{
			name:       "while condition is exempt",
			input:      "set -e; while false; do echo body; done; echo after",
			wantStdout: "after\n",
			wantCode:   0,
		},
		{
			name:       "left of && is exempt",
			input:      "set -e; false && echo yes; echo after",
			wantStdout: "after\n",
			wantCode:   0,
		},
		{
			name:       "left of || is exempt",
			input:      "set -e; false || echo fallback; echo after",
			wantStdout: "fallback\nafter\n",
			wantCode:   0,
		},
		{
			name:       "negated pipeline is exempt",
			input:      "set -e; ! false; echo after",
			wantStdout: "after\n",
			wantCode:   0,
		},
		{
			name:       "partial output is preserved",
			input:      "set -e; echo first; false; echo nope",
			wantStdout: "first\n",
			wantCode:   1,
		},
		{
			name:       "failure code propagates",
			input:      "set -e; f(){ return 7; }; f; echo nope",
			wantStdout: "",
			wantCode:   7,
		},
		{
			name:       "unused command substitution failure does not trigger",
			input:      "set -e; x=$(false); echo code=$?; echo after",
			wantStdout: "code=1\nafter\n",
			wantCode:   0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, tt.input, nil)
			assert.Equal(t, tt.wantStdout, string(res.Stdout))
			assert.Equal(t, tt.wantCode, res.ExitCode, "stderr: %s", res.Stderr)
		})
	}
}

func TestNounset(t *testing.T) {
	t.Run("unset read aborts", func(t *testing.T) {
		res := run(t, "set -u; echo start; echo $missing; echo nope", nil)
		assert.Equal(t, "start\n", string(res.Stdout))
		assert.Contains(t, string(res.Stderr), "unbound variable")
		assert.Equal(t, 1, res.ExitCode)
	})
	t.Run("empty at and star are exempt", func(t *testing.T) {
		res := run(t, `set -u; echo "$@" done`, nil)
		assert.Equal(t, "done\n", string(res.Stdout))
		assert.Equal(t, 0, res.ExitCode)
	})
	t.Run("default op avoids the error", func(t *testing.T) {
		res := run(t, `set -u; echo ${missing:-fallback}`, nil)
		assert.Equal(t, "fallback\n", string(res.Stdout))
		assert.Equal(t, 0, res.ExitCode)
	})
}

func TestPipefailAndPipestatus(t *testing.T) {
	t.Run("default takes last stage", func(t *testing.T) {
		res := run(t, "false | true; echo $?", nil)
		assert.Equal(t, "0\n", string(res.Stdout))
	})
	t.Run("pipefail reports failure", func(t *testing.T) {
		res := run(t, "set -o pipefail; false | true; echo $?", nil)
		assert.Equal(t, "1\n", string(res.Stdout))
	})
	t.Run("pipestatus has one entry per stage", func(t *testing.T) {
		res := run(t, `true | false | true; echo "${PIPESTATUS[0]} ${PIPESTATUS[1]} ${PIPESTATUS[2]}"`, nil)
		assert.Equal(t, "0 1 0\n", string(res.Stdout))
	})
	t.Run("pipestatus length matches stages", func(t *testing.T) {
		res := run(t, `true | true; echo ${#PIPESTATUS[@]}`, nil)
		assert.Equal(t, "2\n", string(res.Stdout))
	})
	t.Run("negation flips the code", func(t *testing.T) {
		res := run(t, "! false; echo $?; ! true; echo $?", nil)
		assert.Equal(t, "0\n1\n", string(res.Stdout))
	})
}

func TestTraps(t *testing.T) {
	t.Run("exit trap runs at normal end", func(t *testing.T) {
		res := run(t, `trap 'echo cleanup' EXIT; echo main`, nil)
		assert.Equal(t, "main\ncleanup\n", string(res.Stdout))
	})
	t.Run("exit trap runs on errexit", func(t *testing.T) {
		res := run(t, `set -e; trap 'echo cleanup' EXIT; false`, nil)
		assert.Equal(t, "cleanup\n", string(res.Stdout))
		assert.Equal(t, 1, res.ExitCode)
	})
	t.Run("err trap fires per failure", func(t *testing.T) {
		res := run(t, `trap 'echo err' ERR; false; true; false`, nil)
		assert.Equal(t, "err\nerr\n", string(res.Stdout))
	})
	t.Run("debug trap fires per command", func(t *testing.T) {
		res := run(t, `trap 'echo dbg' DEBUG; true; true`, nil)
		assert.Equal(t, "dbg\ndbg\n", string(res.Stdout))
	})
	t.Run("trap reset", func(t *testing.T) {
		res := run(t, `trap 'echo bye' EXIT; trap - EXIT; echo main`, nil)
		assert.Equal(t, "main\n", string(res.Stdout))
	})
	t.Run("trap listing", func(t *testing.T) {
		res := run(t, `trap 'echo x' EXIT; trap -p`, nil)
		assert.Contains(t, string(res.Stdout), "trap -- 'echo x' EXIT")
	})
	t.Run("return trap fires after function", func(t *testing.T) {
		res := run(t, `trap 'echo ret' RETURN; f(){ echo body; }; f`, nil)
		assert.Equal(t, "body\nret\n", string(res.Stdout))
	})
}

func TestPosixModeSpecialBuiltinFailureIsFatal(t *testing.T) {
	res := run(t, "set -o posix; shift 5; echo nope", nil)
	require.NotEqual(t, 0, res.ExitCode)
	assert.NotContains(t, string(res.Stdout), "nope")
}

func TestSubshellIsolation(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"variable mutations discarded", "x=1; (x=2; echo in:$x); echo out:$x", "in:2\nout:1\n"},
		{"cd discarded", "cd /work; (cd /tmp; pwd); pwd", "/tmp\n/work\n"},
		{"exit code propagates", "(exit 5); echo $?", "5\n"},
		{"exit only leaves subshell", "(echo a; exit 3; echo b); echo after:$?", "a\nafter:3\n"},
		{"group shares state", "x=1; { x=2; }; echo $x", "2\n"},
		{"subshell sees parent vars", "x=7; (echo $x)", "7\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, tt.input, nil)
			require.Equal(t, 0, res.ExitCode, "stderr: %s", res.Stderr)
			assert.Equal(t, tt.want, string(res.Stdout))
		})
	}
}

func TestBackgroundEmulation(t *testing.T) {
	t.Run("background list succeeds immediately", func(t *testing.T) {
		res := run(t, "false & echo code:$?", nil)
		assert.Equal(t, "code:0\n", string(res.Stdout))
	})
	t.Run("bang bang records a pid token", func(t *testing.T) {
		res := run(t, "true & [ -n \"$!\" ] && echo have-pid", nil)
		assert.Equal(t, "have-pid\n", string(res.Stdout))
	})
	t.Run("background output is not lost", func(t *testing.T) {
		res := run(t, "echo bg & echo fg", nil)
		assert.Equal(t, "bg\nfg\n", string(res.Stdout))
	})
	t.Run("background mutations are discarded", func(t *testing.T) {
		res := run(t, "x=1; x=2 & echo $x", nil)
		assert.Equal(t, "1\n", string(res.Stdout))
	})
}
