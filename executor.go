package bish

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"bish/arith"
	"bish/parser"
)

// runProgram executes a statement list, returning the last exit code.
// Control-flow carriers propagate as errors.
func (in *Interp) runProgram(prog *parser.Program) (int, error) {
	code := in.state.lastExit
	for _, st := range prog.Statements {
		if err := in.checkCancel(); err != nil {
			return code, err
		}
		var err error
		code, err = in.runStatement(st, false)
		if err != nil {
			return code, err
		}
	}
	return code, nil
}

// runStatement executes one statement. suppressErrexit marks contexts where
// set -e must not fire: conditions, the left of && and ||, negated
// pipelines.
func (in *Interp) runStatement(st parser.Statement, suppressErrexit bool) (int, error) {
	var code int
	var err error
	switch s := st.(type) {
	case *parser.Simple:
		code, err = in.runSimple(s)
	case *parser.Pipeline:
		code, err = in.runPipeline(s, suppressErrexit)
		if s.Negated {
			suppressErrexit = true
		}
	case *parser.List:
		return in.runList(s, suppressErrexit)
	case *parser.Subshell:
		code, err = in.runSubshellStmt(s)
	case *parser.Group:
		code, err = in.runGroup(s)
	case *parser.If:
		return in.runIf(s, suppressErrexit)
	case *parser.While:
		return in.runWhile(s)
	case *parser.For:
		return in.runFor(s)
	case *parser.ForArith:
		return in.runForArith(s)
	case *parser.Select:
		return in.runSelect(s)
	case *parser.Case:
		return in.runCase(s, suppressErrexit)
	case *parser.FuncDef:
		in.state.funcs[s.Name] = s.Body
		in.state.lastExit = 0
		return 0, nil
	case *parser.ArithCmd:
		code, err = in.runArithCmd(s)
	case *parser.CondCmd:
		code, err = in.runCondCmd(s)
	default:
		return 0, &internalError{Err: fmt.Errorf("unhandled statement %T", st)}
	}
	if err != nil {
		return code, err
	}
	in.state.lastExit = code
	if in.skipErrexitOnce {
		// An assignment-only command whose status came from an unused
		// command substitution fails without tripping set -e.
		in.skipErrexitOnce = false
		return code, nil
	}
	if code != 0 {
		if terr := in.runErrTrap(suppressErrexit); terr != nil {
			return code, terr
		}
	}
	if err := in.maybeErrexit(code, suppressErrexit); err != nil {
		return code, err
	}
	return code, nil
}

func (in *Interp) maybeErrexit(code int, suppressed bool) error {
	if code == 0 || suppressed || !in.state.flags.Errexit || in.state.inCondition > 0 {
		return nil
	}
	return &ErrexitError{Code: code}
}

func (in *Interp) runErrTrap(suppressed bool) error {
	body, ok := in.state.traps["ERR"]
	if !ok || body == "" || suppressed || in.state.inCondition > 0 {
		return nil
	}
	prog, err := in.parse(body)
	if err != nil {
		return nil
	}
	saved := in.state.lastExit
	delete(in.state.traps, "ERR")
	_, rerr := in.runProgram(prog)
	in.state.traps["ERR"] = body
	in.state.lastExit = saved
	return rerr
}

func (in *Interp) runDebugTrap() {
	body, ok := in.state.traps["DEBUG"]
	if !ok || body == "" {
		return
	}
	prog, err := in.parse(body)
	if err != nil {
		return
	}
	saved := in.state.lastExit
	delete(in.state.traps, "DEBUG")
	_, _ = in.runProgram(prog)
	in.state.traps["DEBUG"] = body
	in.state.lastExit = saved
}

// runList handles ;, &&, || and &.
func (in *Interp) runList(s *parser.List, suppress bool) (int, error) {
	switch s.Op {
	case parser.ListBg:
		// Cooperative single-threaded emulation: the "background" command
		// runs to completion now in a state clone and the list itself
		// succeeds. $! receives a pid-like token; the background command's
		// own exit status is not kept.
		in.state.lastBg = in.state.pid + 1 + in.meter.commands%1000
		sub := in.state.Clone()
		si := in.subInterp(sub, in.stdin)
		_, err := si.runProgram(&parser.Program{Statements: []parser.Statement{s.Left}})
		in.out.Write(si.out.Bytes())
		in.errOut.Write(si.errOut.Bytes())
		if err != nil {
			switch err.(type) {
			case *ExecutionLimitError, *PosixFatalError:
				return 0, err
			}
		}
		in.state.lastExit = 0
		return 0, nil
	case parser.ListAnd:
		left, err := in.runStatement(s.Left, true)
		if err != nil {
			return left, err
		}
		if left != 0 {
			in.state.lastExit = left
			return left, nil
		}
		return in.runStatement(s.Right, suppress)
	case parser.ListOr:
		left, err := in.runStatement(s.Left, true)
		if err != nil {
			return left, err
		}
		if left == 0 {
			in.state.lastExit = 0
			return 0, nil
		}
		return in.runStatement(s.Right, suppress)
	default: // sequence
		code, err := in.runStatement(s.Left, suppress)
		if err != nil || s.Right == nil {
			return code, err
		}
		return in.runStatement(s.Right, suppress)
	}
}

// runPipeline executes stages strictly left to right: each stage runs to
// completion, its stdout feeding the next stage's stdin. stderr accumulates
// in execution order.
func (in *Interp) runPipeline(s *parser.Pipeline, suppress bool) (int, error) {
	stdin := in.stdin
	statuses := make([]int, len(s.Stages))
	for i, stage := range s.Stages {
		last := i == len(s.Stages)-1
		var stageOut *bytes.Buffer
		savedOut, savedIn := in.out, in.stdin
		if !last {
			stageOut = &bytes.Buffer{}
			in.out = stageOut
		}
		in.stdin = stdin
		code, err := in.runStatement(stage, true)
		in.out, in.stdin = savedOut, savedIn
		if err != nil {
			if c, ok := err.(carrier); ok && stageOut != nil {
				c.prependOutput(stageOut.Bytes(), nil)
			}
			return code, err
		}
		statuses[i] = code
		if !last {
			stdin = stageOut.String()
		}
	}
	in.state.pipeStatus = statuses
	code := statuses[len(statuses)-1]
	if in.state.flags.Pipefail {
		// pipefail selects the highest nonzero status; zero only when every
		// stage succeeded.
		for _, c := range statuses {
			if c != 0 && c > code {
				code = c
			}
		}
	}
	if s.Negated {
		if code == 0 {
			code = 1
		} else {
			code = 0
		}
		in.state.lastExit = code
		return code, nil
	}
	in.state.lastExit = code
	return code, nil
}

func (in *Interp) runSubshellStmt(s *parser.Subshell) (int, error) {
	sub := in.state.Clone()
	si := in.subInterp(sub, in.stdin)
	frame, code, err := si.applyRedirects(s.Redirects)
	if err != nil {
		_ = si.closeRedirects(frame)
		in.out.Write(si.out.Bytes())
		in.errOut.Write(si.errOut.Bytes())
		return in.expandFailure(err)
	}
	if code != 0 {
		_ = si.closeRedirects(frame)
		in.out.Write(si.out.Bytes())
		in.errOut.Write(si.errOut.Bytes())
		return code, nil
	}
	rcode, rerr := si.runProgram(s.Body)
	ferr := si.closeRedirects(frame)
	in.out.Write(si.out.Bytes())
	in.errOut.Write(si.errOut.Bytes())
	in.state.lastExit = rcode
	if rerr != nil {
		// exit inside a subshell terminates only the subshell; break and
		// continue likewise stop at this boundary.
		switch e := rerr.(type) {
		case *ExitError:
			in.out.Write(e.Stdout)
			in.errOut.Write(e.Stderr)
			in.state.lastExit = e.Code
			return e.Code, nil
		case *ErrexitError:
			in.out.Write(e.Stdout)
			in.errOut.Write(e.Stderr)
			in.state.lastExit = e.Code
			return e.Code, nil
		case *BreakError:
			in.out.Write(e.Stdout)
			in.errOut.Write(e.Stderr)
			return 0, nil
		case *ContinueError:
			in.out.Write(e.Stdout)
			in.errOut.Write(e.Stderr)
			return 0, nil
		case *NounsetError:
			in.out.Write(e.Stdout)
			in.errOut.Write(e.Stderr)
			fmt.Fprintf(in.errOut, "%s\n", e.Error())
			in.state.lastExit = 1
			return 1, nil
		default:
			return rcode, rerr
		}
	}
	if ferr != nil {
		fmt.Fprintf(in.errOut, "bish: %s\n", ferr.Error())
		return 1, nil
	}
	return rcode, nil
}

func (in *Interp) runGroup(s *parser.Group) (int, error) {
	frame, code, err := in.applyRedirects(s.Redirects)
	if err != nil {
		_ = in.closeRedirects(frame)
		return in.expandFailure(err)
	}
	if code != 0 {
		_ = in.closeRedirects(frame)
		return code, nil
	}
	rcode, rerr := in.runProgram(s.Body)
	ferr := in.closeRedirects(frame)
	if rerr != nil {
		return rcode, rerr
	}
	if ferr != nil {
		fmt.Fprintf(in.errOut, "bish: %s\n", ferr.Error())
		return 1, nil
	}
	return rcode, nil
}

func (in *Interp) runIf(s *parser.If, suppress bool) (int, error) {
	for _, cl := range s.Clauses {
		in.state.inCondition++
		code, err := in.runProgram(cl.Cond)
		in.state.inCondition--
		if err != nil {
			return code, err
		}
		if code == 0 {
			return in.runBody(cl.Body, suppress)
		}
	}
	if s.Else != nil {
		return in.runBody(s.Else, suppress)
	}
	in.state.lastExit = 0
	return 0, nil
}

// runBody runs a compound body, keeping errexit suppression for the final
// status only.
func (in *Interp) runBody(body *parser.Program, suppress bool) (int, error) {
	code, err := in.runProgram(body)
	if err != nil {
		return code, err
	}
	in.state.lastExit = code
	return code, nil
}

// loopControl interprets break/continue carriers inside a loop body.
// Returns (stop, err): stop ends the loop; a remaining carrier propagates.
func loopControl(err error) (stop bool, cont bool, rest error) {
	switch e := err.(type) {
	case *BreakError:
		if e.Levels > 1 {
			e.Levels--
			return true, false, e
		}
		return true, false, nil
	case *ContinueError:
		if e.Levels > 1 {
			e.Levels--
			return true, false, e
		}
		return false, true, nil
	}
	return false, false, err
}

func (in *Interp) runWhile(s *parser.While) (int, error) {
	in.state.loopDepth++
	defer func() { in.state.loopDepth-- }()
	code := 0
	for {
		if err := in.checkCancel(); err != nil {
			return code, err
		}
		if err := in.meter.bumpIteration(); err != nil {
			return code, err
		}
		in.state.inCondition++
		condCode, err := in.runProgram(s.Cond)
		in.state.inCondition--
		if err != nil {
			return code, err
		}
		trueCond := condCode == 0
		if s.Until {
			trueCond = !trueCond
		}
		if !trueCond {
			break
		}
		bodyCode, err := in.runProgram(s.Body)
		if err != nil {
			stop, _, rest := loopControl(err)
			if rest != nil {
				return bodyCode, rest
			}
			if stop {
				code = in.state.lastExit
				break
			}
			continue
		}
		code = bodyCode
	}
	in.state.lastExit = code
	return code, nil
}

func (in *Interp) runFor(s *parser.For) (int, error) {
	var words []string
	if s.HasIn {
		var err error
		words, err = in.expandWords(s.Words)
		if err != nil {
			return in.expandFailure(err)
		}
	} else {
		words = in.state.Positional()
	}
	in.state.loopDepth++
	defer func() { in.state.loopDepth-- }()
	code := 0
	for _, w := range words {
		if err := in.checkCancel(); err != nil {
			return code, err
		}
		if err := in.meter.bumpIteration(); err != nil {
			return code, err
		}
		if err := in.state.Set(s.Var, w); err != nil {
			fmt.Fprintf(in.errOut, "%s\n", err.Error())
			return 1, nil
		}
		bodyCode, err := in.runProgram(s.Body)
		if err != nil {
			stop, _, rest := loopControl(err)
			if rest != nil {
				return bodyCode, rest
			}
			if stop {
				code = in.state.lastExit
				in.state.lastExit = code
				return code, nil
			}
			continue
		}
		code = bodyCode
	}
	in.state.lastExit = code
	return code, nil
}

func (in *Interp) runForArith(s *parser.ForArith) (int, error) {
	env := in.arithEnv()
	if _, err := arith.Eval(s.Init, env); err != nil {
		fmt.Fprintf(in.errOut, "bish: ((: %s\n", err.Error())
		return 1, nil
	}
	in.state.loopDepth++
	defer func() { in.state.loopDepth-- }()
	code := 0
	for {
		if err := in.checkCancel(); err != nil {
			return code, err
		}
		if err := in.meter.bumpIteration(); err != nil {
			return code, err
		}
		cond := int64(1)
		if strings.TrimSpace(s.Cond) != "" {
			var err error
			cond, err = arith.Eval(s.Cond, env)
			if err != nil {
				fmt.Fprintf(in.errOut, "bish: ((: %s\n", err.Error())
				return 1, nil
			}
		}
		if cond == 0 {
			break
		}
		bodyCode, err := in.runProgram(s.Body)
		if err != nil {
			stop, _, rest := loopControl(err)
			if rest != nil {
				return bodyCode, rest
			}
			if stop {
				code = in.state.lastExit
				break
			}
		} else {
			code = bodyCode
		}
		if _, err := arith.Eval(s.Step, env); err != nil {
			fmt.Fprintf(in.errOut, "bish: ((: %s\n", err.Error())
			return 1, nil
		}
	}
	in.state.lastExit = code
	return code, nil
}

// runSelect prints the menu on stderr and reads selections from stdin; EOF
// ends the loop.
func (in *Interp) runSelect(s *parser.Select) (int, error) {
	var words []string
	if s.HasIn {
		var err error
		words, err = in.expandWords(s.Words)
		if err != nil {
			return in.expandFailure(err)
		}
	} else {
		words = in.state.Positional()
	}
	ps3 := "#? "
	if v, ok := in.state.Get("PS3"); ok && v != "" {
		ps3 = v
	}
	in.state.loopDepth++
	defer func() { in.state.loopDepth-- }()
	code := 0
	for {
		if err := in.meter.bumpIteration(); err != nil {
			return code, err
		}
		for i, w := range words {
			fmt.Fprintf(in.errOut, "%d) %s\n", i+1, w)
		}
		fmt.Fprint(in.errOut, ps3)
		line, rest, ok := cutLine(in.stdin)
		in.stdin = rest
		if !ok {
			break
		}
		line = strings.TrimSpace(line)
		sel := ""
		if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(words) {
			sel = words[n-1]
		}
		if err := in.state.Set(s.Var, sel); err != nil {
			return 1, nil
		}
		_ = in.state.Set("REPLY", line)
		bodyCode, err := in.runProgram(s.Body)
		if err != nil {
			stop, _, rest := loopControl(err)
			if rest != nil {
				return bodyCode, rest
			}
			if stop {
				code = in.state.lastExit
				break
			}
			continue
		}
		code = bodyCode
	}
	in.state.lastExit = code
	return code, nil
}

func cutLine(s string) (line, rest string, ok bool) {
	if s == "" {
		return "", "", false
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i], s[i+1:], true
	}
	return s, "", true
}

func (in *Interp) runCase(s *parser.Case, suppress bool) (int, error) {
	scrutinee, err := in.expandWordNoSplit(s.Word)
	if err != nil {
		return in.expandFailure(err)
	}
	opts := in.patternOpts()
	code := 0
	matchedOnce := false
	fallthroughNext := false
	for _, arm := range s.Arms {
		matched := fallthroughNext
		fallthroughNext = false
		if !matched {
			for _, pw := range arm.Patterns {
				pat, perr := in.expandPattern(pw)
				if perr != nil {
					return in.expandFailure(perr)
				}
				if matchPattern(pat, scrutinee, opts) {
					matched = true
					break
				}
			}
		}
		if !matched {
			continue
		}
		matchedOnce = true
		code, err = in.runProgram(arm.Body)
		if err != nil {
			return code, err
		}
		switch arm.Op {
		case ";&":
			fallthroughNext = true
		case ";;&":
			continue
		default:
			in.state.lastExit = code
			return code, nil
		}
	}
	if !matchedOnce {
		code = 0
	}
	in.state.lastExit = code
	return code, nil
}

func (in *Interp) runArithCmd(s *parser.ArithCmd) (int, error) {
	expr, err := in.expandArithText(s.Expr)
	if err != nil {
		return in.expandFailure(err)
	}
	n, aerr := arith.Eval(expr, in.arithEnv())
	if aerr != nil {
		fmt.Fprintf(in.errOut, "bish: ((: %s: %s\n", s.Expr, aerr.Error())
		return 1, nil
	}
	if n != 0 {
		return 0, nil
	}
	return 1, nil
}

// expandFailure reports an expansion error as a command failure (or a fatal
// abort for ${x:?}).
func (in *Interp) expandFailure(err error) (int, error) {
	if ee, ok := err.(*expandError); ok {
		fmt.Fprintf(in.errOut, "%s\n", ee.Msg)
		in.state.lastExit = ee.Code
		if ee.Fatal {
			return ee.Code, &ExitError{Code: ee.Code}
		}
		return ee.Code, nil
	}
	if _, ok := err.(carrier); ok {
		return in.state.lastExit, err
	}
	fmt.Fprintf(in.errOut, "bish: %s\n", err.Error())
	in.state.lastExit = 1
	return 1, nil
}

// arithEnv adapts the scope stack for the arithmetic evaluator.
type arithEnvAdapter struct {
	in *Interp
}

func (a arithEnvAdapter) Get(name string) string {
	if v, ok := a.in.state.special(name); ok {
		return v
	}
	v, _ := a.in.state.Get(name)
	return v
}

func (a arithEnvAdapter) Set(name, value string) {
	_ = a.in.state.Set(name, value)
}

func (in *Interp) arithEnv() arith.Env { return arithEnvAdapter{in: in} }

// commandSubst runs a program in a subshell and captures its stdout.
func (in *Interp) commandSubst(prog *parser.Program) (string, error) {
	if err := in.meter.enterSubst(); err != nil {
		return "", err
	}
	defer in.meter.exitSubst()
	if err := in.meter.enterCall(); err != nil {
		return "", err
	}
	defer in.meter.exitCall()
	sub := in.state.Clone()
	si := in.subInterp(sub, in.stdin)
	code, err := si.runProgram(prog)
	in.errOut.Write(si.errOut.Bytes())
	if err != nil {
		switch e := err.(type) {
		case *ExitError:
			si.out.Write(e.Stdout)
			in.errOut.Write(e.Stderr)
			code = e.Code
		case *ErrexitError:
			si.out.Write(e.Stdout)
			in.errOut.Write(e.Stderr)
			code = e.Code
		default:
			if c, ok := err.(carrier); ok {
				c.prependOutput(si.out.Bytes(), nil)
			}
			return "", err
		}
	}
	in.lastSubstExit = code
	return si.out.String(), nil
}

// processSubst materializes <(…) and >(…) as paths on the virtual
// filesystem. <(p) runs p now and exposes its output; >(p) exposes a path
// whose content is fed to p after the enclosing command completes.
func (in *Interp) processSubst(p *parser.ProcSubPart) (string, error) {
	*in.procsubSeq++
	path := fmt.Sprintf("/tmp/.psub/%d", *in.procsubSeq)
	if err := in.fs.Mkdir("/tmp/.psub", MkdirOptions{Recursive: true, Mode: 0o755}); err != nil {
		return "", &expandError{Msg: "bish: process substitution: " + err.Error(), Code: 1}
	}
	if p.Out {
		if err := in.fs.WriteFile(path, ""); err != nil {
			return "", &expandError{Msg: "bish: process substitution: " + err.Error(), Code: 1}
		}
		in.pendingOutSubs = append(in.pendingOutSubs, pendingOutSub{path: path, program: p.Program})
		return path, nil
	}
	out, err := in.commandSubst(p.Program)
	if err != nil {
		return "", err
	}
	if err := in.fs.WriteFile(path, out); err != nil {
		return "", &expandError{Msg: "bish: process substitution: " + err.Error(), Code: 1}
	}
	return path, nil
}

// flushOutSubs feeds accumulated >(…) targets to their programs.
func (in *Interp) flushOutSubs() {
	pend := in.pendingOutSubs
	in.pendingOutSubs = nil
	for _, ps := range pend {
		data, err := in.fs.ReadFile(ps.path)
		if err != nil {
			continue
		}
		sub := in.state.Clone()
		si := in.subInterp(sub, data)
		_, _ = si.runProgram(ps.program)
		in.out.Write(si.out.Bytes())
		in.errOut.Write(si.errOut.Bytes())
	}
}
