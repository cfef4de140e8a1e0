package bish

import (
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"

	"bish/arith"
	"bish/parser"
)

// runCondCmd evaluates [[ … ]]. Operands do not undergo word splitting; the
// right side of == and != is a pattern, and =~ is a regexp2 match.
func (in *Interp) runCondCmd(s *parser.CondCmd) (int, error) {
	ok, err := in.evalCondExpr(s.Expr)
	if err != nil {
		return in.expandFailure(err)
	}
	if ok {
		return 0, nil
	}
	return 1, nil
}

func (in *Interp) evalCondExpr(e parser.CondExpr) (bool, error) {
	switch c := e.(type) {
	case *parser.CondLogical:
		left, err := in.evalCondExpr(c.Left)
		if err != nil {
			return false, err
		}
		if c.Op == "&&" {
			if !left {
				return false, nil
			}
			return in.evalCondExpr(c.Right)
		}
		if left {
			return true, nil
		}
		return in.evalCondExpr(c.Right)
	case *parser.CondNot:
		v, err := in.evalCondExpr(c.Expr)
		return !v, err
	case *parser.CondUnary:
		operand, err := in.expandWordNoSplit(c.Operand)
		if err != nil {
			return false, err
		}
		return in.condUnary(c.Op, operand), nil
	case *parser.CondBinary:
		left, err := in.expandWordNoSplit(c.Left)
		if err != nil {
			return false, err
		}
		switch c.Op {
		case "==", "=", "!=":
			pat, perr := in.expandPattern(c.Right)
			if perr != nil {
				return false, perr
			}
			matched := matchPattern(pat, left, in.patternOpts())
			if c.Op == "!=" {
				return !matched, nil
			}
			return matched, nil
		case "=~":
			pat, perr := in.expandWordNoSplit(c.Right)
			if perr != nil {
				return false, perr
			}
			re, cerr := regexp2.Compile(pat, 0)
			if cerr != nil {
				return false, &expandError{Msg: "bish: invalid regular expression: " + pat, Code: 2}
			}
			m, merr := re.FindStringMatch(left)
			if merr != nil || m == nil {
				_ = in.state.Unset("BASH_REMATCH")
				return false, nil
			}
			rem := in.state.getOrCreate("BASH_REMATCH")
			rem.Kind = IndexedArray
			rem.Arr = map[int64]string{}
			for i, g := range m.Groups() {
				rem.Arr[int64(i)] = g.String()
			}
			return true, nil
		}
		right, err := in.expandWordNoSplit(c.Right)
		if err != nil {
			return false, err
		}
		return in.condBinary(c.Op, left, right)
	}
	return false, nil
}

// condUnary evaluates one-operand tests against the virtual filesystem.
func (in *Interp) condUnary(op, v string) bool {
	statOf := func() (FileInfo, bool) {
		fi, err := in.fs.Stat(in.fs.ResolvePath(in.state.cwd, v))
		return fi, err == nil
	}
	switch op {
	case "":
		return v != ""
	case "-n":
		return v != ""
	case "-z":
		return v == ""
	case "-e", "-a":
		_, ok := statOf()
		return ok
	case "-f":
		fi, ok := statOf()
		return ok && !fi.IsDir
	case "-d":
		fi, ok := statOf()
		return ok && fi.IsDir
	case "-s":
		fi, ok := statOf()
		return ok && fi.Size > 0
	case "-r", "-w":
		_, ok := statOf()
		return ok
	case "-x":
		fi, ok := statOf()
		return ok && (fi.IsDir || fi.Mode&0o111 != 0)
	case "-h", "-L":
		fi, err := in.fs.Lstat(in.fs.ResolvePath(in.state.cwd, v))
		return err == nil && fi.IsLink
	case "-p", "-b", "-c", "-S", "-t", "-g", "-u", "-k", "-G", "-O", "-N":
		return false
	case "-v":
		if _, ok := in.state.special(v); ok {
			return true
		}
		_, ok := in.state.lookupVar(v)
		return ok
	}
	return false
}

// condBinary evaluates two-operand tests shared by [[ ]] and test.
func (in *Interp) condBinary(op, left, right string) (bool, error) {
	switch op {
	case "<":
		return left < right, nil
	case ">":
		return left > right, nil
	case "-nt", "-ot", "-ef":
		lfi, lerr := in.fs.Stat(in.fs.ResolvePath(in.state.cwd, left))
		rfi, rerr := in.fs.Stat(in.fs.ResolvePath(in.state.cwd, right))
		switch op {
		case "-nt":
			return lerr == nil && (rerr != nil || lfi.ModTime.After(rfi.ModTime)), nil
		case "-ot":
			return rerr == nil && (lerr != nil || lfi.ModTime.Before(rfi.ModTime)), nil
		default:
			return lerr == nil && rerr == nil &&
				in.fs.ResolvePath(in.state.cwd, left) == in.fs.ResolvePath(in.state.cwd, right), nil
		}
	case "-eq", "-ne", "-lt", "-le", "-gt", "-ge":
		l, lerr := arith.Eval(left, in.arithEnv())
		r, rerr := arith.Eval(right, in.arithEnv())
		if lerr != nil || rerr != nil {
			return false, &expandError{Msg: "bish: integer expression expected", Code: 2}
		}
		switch op {
		case "-eq":
			return l == r, nil
		case "-ne":
			return l != r, nil
		case "-lt":
			return l < r, nil
		case "-le":
			return l <= r, nil
		case "-gt":
			return l > r, nil
		case "-ge":
			return l >= r, nil
		}
	}
	return false, &expandError{Msg: "bish: conditional binary operator expected", Code: 2}
}

// testBuiltin implements test. Operands arrive fully expanded, so string
// comparisons here are exact (no patterns).
func testBuiltin(in *Interp, args []string) (int, error) {
	ok, err := in.evalTestArgs(args)
	if err != nil {
		in.errf("bish: test: %s\n", err.Error())
		return 2, nil
	}
	if ok {
		return 0, nil
	}
	return 1, nil
}

// bracketBuiltin is test spelled [ … ].
func bracketBuiltin(in *Interp, args []string) (int, error) {
	if len(args) == 0 || args[len(args)-1] != "]" {
		in.errf("bish: [: missing `]'\n")
		return 2, nil
	}
	return testBuiltin(in, args[:len(args)-1])
}

// evalTestArgs evaluates test expressions with -a/-o combinators and !
// negation, by argument count the way the POSIX algorithm does.
func (in *Interp) evalTestArgs(args []string) (bool, error) {
	switch len(args) {
	case 0:
		return false, nil
	case 1:
		return args[0] != "", nil
	case 2:
		if args[0] == "!" {
			return args[1] == "", nil
		}
		if strings.HasPrefix(args[0], "-") {
			return in.condUnary(args[0], args[1]), nil
		}
		return false, errTestSyntax(args)
	case 3:
		if isTestBinaryOp(args[1]) {
			return in.testBinary(args[1], args[0], args[2])
		}
		if args[0] == "!" {
			v, err := in.evalTestArgs(args[1:])
			return !v, err
		}
		if args[0] == "(" && args[2] == ")" {
			return args[1] != "", nil
		}
		return false, errTestSyntax(args)
	default:
		// -a binds tighter than -o; scan for the lowest-precedence operator.
		for i := len(args) - 2; i >= 1; i-- {
			if args[i] == "-o" {
				l, err := in.evalTestArgs(args[:i])
				if err != nil {
					return false, err
				}
				if l {
					return true, nil
				}
				return in.evalTestArgs(args[i+1:])
			}
		}
		for i := len(args) - 2; i >= 1; i-- {
			if args[i] == "-a" {
				l, err := in.evalTestArgs(args[:i])
				if err != nil {
					return false, err
				}
				if !l {
					return false, nil
				}
				return in.evalTestArgs(args[i+1:])
			}
		}
		if args[0] == "!" {
			v, err := in.evalTestArgs(args[1:])
			return !v, err
		}
		if args[0] == "(" && args[len(args)-1] == ")" {
			return in.evalTestArgs(args[1 : len(args)-1])
		}
		return false, errTestSyntax(args)
	}
}

func errTestSyntax(args []string) error {
	return &expandError{Msg: "syntax error: " + strings.Join(args, " "), Code: 2}
}

func isTestBinaryOp(op string) bool {
	switch op {
	case "=", "==", "!=", "<", ">",
		"-eq", "-ne", "-lt", "-le", "-gt", "-ge", "-nt", "-ot", "-ef":
		return true
	}
	return false
}

// testBinary is condBinary with exact string equality (test does not
// pattern-match).
func (in *Interp) testBinary(op, left, right string) (bool, error) {
	switch op {
	case "=", "==":
		return left == right, nil
	case "!=":
		return left != right, nil
	case "-eq", "-ne", "-lt", "-le", "-gt", "-ge":
		l, lerr := strconv.ParseInt(strings.TrimSpace(left), 10, 64)
		r, rerr := strconv.ParseInt(strings.TrimSpace(right), 10, 64)
		if lerr != nil || rerr != nil {
			return false, &expandError{Msg: "integer expression expected", Code: 2}
		}
		switch op {
		case "-eq":
			return l == r, nil
		case "-ne":
			return l != r, nil
		case "-lt":
			return l < r, nil
		case "-le":
			return l <= r, nil
		case "-gt":
			return l > r, nil
		case "-ge":
			return l >= r, nil
		}
	}
	return in.condBinary(op, left, right)
}
