package arith

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapEnv map[string]string

func (m mapEnv) Get(name string) string { return m[name] }
func (m mapEnv) Set(name, value string) { m[name] = value }

func evalOK(t *testing.T, expr string, env Env) int64 {
	t.Helper()
	if env == nil {
		env = mapEnv{}
	}
	v, err := Eval(expr, env)
	require.NoError(t, err, "eval %q", expr)
	return v
}

func TestEvalBasics(t *testing.T) {
	tests := []struct {
		expr string
		want int64
	}{
		{"", 0},
		{"0", 0},
		{"42", 42},
		{"1+2", 3},
		{"1+2*3", 7},
		{"(1+2)*3", 9},
		{"10-4-3", 3},
		{"20/3", 6},
		{"20%3", 2},
		{"-5", -5},
		{"- 5 + 10", 5},
		{"+7", 7},
		{"!0", 1},
		{"!5", 0},
		{"~0", -1},
		{"2**8", 256},
		{"2**3**2", 512}, // right associative
		{"1<<10", 1024},
		{"1024>>3", 128},
		{"5&3", 1},
		{"5|3", 7},
		{"5^3", 6},
		{"1&&1", 1},
		{"1&&0", 0},
		{"0||1", 1},
		{"0||0", 0},
		{"3<5", 1},
		{"5<=5", 1},
		{"5>5", 0},
		{"5>=5", 1},
		{"5==5", 1},
		{"5!=5", 0},
		{"1 ? 10 : 20", 10},
		{"0 ? 10 : 20", 20},
		{"0 ? 10 : 1 ? 20 : 30", 20},
		{"1, 2, 3", 3},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, tt.want, evalOK(t, tt.expr, nil))
		})
	}
}

func TestEvalBases(t *testing.T) {
	tests := []struct {
		expr string
		want int64
	}{
		{"0x10", 16},
		{"0XFF", 255},
		{"010", 8},
		{"0", 0},
		{"2#101", 5},
		{"8#17", 15},
		{"16#ff", 255},
		{"36#z", 35},
		{"64#@", 62},
		{"64#_", 63},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, tt.want, evalOK(t, tt.expr, nil))
		})
	}

	t.Run("base out of range", func(t *testing.T) {
		_, err := Eval("65#z", mapEnv{})
		assert.Error(t, err)
	})
	t.Run("digit too large for base", func(t *testing.T) {
		_, err := Eval("2#2", mapEnv{})
		assert.Error(t, err)
	})
}

func TestEvalVariables(t *testing.T) {
	t.Run("lookup", func(t *testing.T) {
		env := mapEnv{"x": "6"}
		assert.Equal(t, int64(12), evalOK(t, "x*2", env))
	})
	t.Run("unset reads zero", func(t *testing.T) {
		assert.Equal(t, int64(1), evalOK(t, "missing+1", nil))
	})
	t.Run("recursive value", func(t *testing.T) {
		env := mapEnv{"x": "y+1", "y": "2"}
		assert.Equal(t, int64(3), evalOK(t, "x", env))
	})
	t.Run("assignment writes back", func(t *testing.T) {
		env := mapEnv{}
		assert.Equal(t, int64(5), evalOK(t, "x=5", env))
		assert.Equal(t, "5", env["x"])
	})
	t.Run("compound assignment", func(t *testing.T) {
		env := mapEnv{"x": "4"}
		assert.Equal(t, int64(6), evalOK(t, "x+=2", env))
		assert.Equal(t, "6", env["x"])
	})
	t.Run("pre increment", func(t *testing.T) {
		env := mapEnv{"x": "1"}
		assert.Equal(t, int64(2), evalOK(t, "++x", env))
		assert.Equal(t, "2", env["x"])
	})
	t.Run("post decrement", func(t *testing.T) {
		env := mapEnv{"x": "1"}
		assert.Equal(t, int64(1), evalOK(t, "x--", env))
		assert.Equal(t, "0", env["x"])
	})
	t.Run("ternary chooses branch side effects", func(t *testing.T) {
		env := mapEnv{}
		assert.Equal(t, int64(7), evalOK(t, "1 ? x=7 : (y=9)", env))
		assert.Equal(t, "7", env["x"])
		assert.Equal(t, "", env["y"])
	})
}

func TestEvalErrors(t *testing.T) {
	cases := []string{
		"1/0",
		"1%0",
		"1.5",
		"1 +",
		"(1",
		"++5",
		"5=x",
	}
	for _, expr := range cases {
		t.Run(expr, func(t *testing.T) {
			_, err := Eval(expr, mapEnv{})
			assert.Error(t, err, "expected error for %q", expr)
			var aerr *Error
			assert.ErrorAs(t, err, &aerr)
		})
	}
}
