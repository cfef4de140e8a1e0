package bish_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"bish"
	"bish/coreutils"
)

func runLimited(t *testing.T, src string, limits bish.Limits) bish.Result {
	t.Helper()
	return bish.Execute(src, bish.Options{
		Cwd:            "/work",
		Files:          map[string]string{"/work/": ""},
		Limits:         limits,
		CustomCommands: coreutils.All(),
	})
}

func TestExecutionLimits(t *testing.T) {
	t.Run("infinite loop hits iteration cap", func(t *testing.T) {
		res := runLimited(t, "while true; do :; done", bish.Limits{MaxIterations: 50})
		assert.Equal(t, 126, res.ExitCode)
		assert.Contains(t, string(res.Stderr), "execution limit")
	})
	t.Run("command count cap", func(t *testing.T) {
		res := runLimited(t, "for i in 1 2 3 4 5 6 7 8 9 10; do echo $i; done", bish.Limits{MaxCommands: 5})
		assert.Equal(t, 126, res.ExitCode)
	})
	t.Run("recursion cap on functions", func(t *testing.T) {
		res := runLimited(t, "f(){ f; }; f", bish.Limits{MaxRecursionDepth: 20})
		assert.Equal(t, 126, res.ExitCode)
	})
	t.Run("recursion cap on eval", func(t *testing.T) {
		res := runLimited(t, `e='eval "$e"'; eval "$e"`, bish.Limits{MaxRecursionDepth: 20})
		assert.Equal(t, 126, res.ExitCode)
	})
	t.Run("partial output survives the limit", func(t *testing.T) {
		res := runLimited(t, "echo first; while true; do :; done", bish.Limits{MaxIterations: 10})
		assert.Equal(t, "first\n", string(res.Stdout))
		assert.Equal(t, 126, res.ExitCode)
	})
	t.Run("under the caps runs normally", func(t *testing.T) {
		res := runLimited(t, "for i in 1 2 3; do echo $i; done", bish.Limits{})
		assert.Equal(t, 0, res.ExitCode)
		assert.Equal(t, "1\n2\n3\n", string(res.Stdout))
	})
}

func TestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := bish.Execute("echo hi", bish.Options{Context: ctx})
	assert.Equal(t, 130, res.ExitCode)
}

func TestCancellationCustomCode(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := bish.Execute("echo hi", bish.Options{Context: ctx, CancelCode: 99})
	assert.Equal(t, 99, res.ExitCode)
}

func TestPersistentState(t *testing.T) {
	state := bish.NewState(map[string]string{"HOME": "/root"}, "/", 1)
	opts := func() bish.Options {
		return bish.Options{State: state, CustomCommands: coreutils.All()}
	}
	res := bish.Execute("x=42", opts())
	assert.Equal(t, 0, res.ExitCode)
	res = bish.Execute("echo $x", opts())
	assert.Equal(t, "42\n", string(res.Stdout))
}
