package bish

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"bish/parser"
)

// runSimple executes one simple command: assignments, then redirections,
// then dispatch through functions, builtins and registered commands.
func (in *Interp) runSimple(s *parser.Simple) (int, error) {
	in.state.curLine = s.Line
	if err := in.meter.bumpCommand(); err != nil {
		return 0, err
	}
	in.runDebugTrap()
	in.lastSubstExit = -1

	// Alias expansion applies to the first word, one pass per name.
	s, aliasErr := in.expandAliases(s)
	if aliasErr != nil {
		fmt.Fprintf(in.errOut, "%s\n", aliasErr.Error())
		return 1, nil
	}

	argv, err := in.expandWords(s.Words)
	if err != nil {
		return in.expandFailure(err)
	}

	// No command word: assignments mutate the shell; a command substitution
	// in a value supplies the exit status.
	if len(argv) == 0 {
		for _, a := range s.Assignments {
			if err := in.applyAssign(a, false); err != nil {
				return in.expandFailure(err)
			}
		}
		frame, rcode, rerr := in.applyRedirects(s.Redirects)
		cerr := in.closeRedirects(frame)
		if rerr != nil {
			return in.expandFailure(rerr)
		}
		if cerr != nil {
			fmt.Fprintf(in.errOut, "bish: %s\n", cerr.Error())
			return 1, nil
		}
		if rcode != 0 {
			return rcode, nil
		}
		if in.lastSubstExit >= 0 {
			in.skipErrexitOnce = true
			return in.lastSubstExit, nil
		}
		return 0, nil
	}

	if in.state.flags.Xtrace {
		ps4, _ := in.state.Get("PS4")
		if ps4 == "" {
			ps4 = "+ "
		}
		fmt.Fprintf(in.errOut, "%s%s\n", ps4, strings.Join(argv, " "))
	}

	name := argv[0]
	_, isFunc := in.state.funcs[name]
	_, isSpecial := specialBuiltins[name]

	// Ephemeral assignments scope to this invocation, except for special
	// builtins where POSIX makes them persist. Assignments apply before
	// redirections.
	var restore func()
	if len(s.Assignments) > 0 {
		persist := isSpecial && !isFunc
		if !persist {
			restore = in.snapshotVars(s.Assignments)
		}
		for _, a := range s.Assignments {
			if err := in.applyAssign(a, true); err != nil {
				if restore != nil {
					restore()
				}
				return in.expandFailure(err)
			}
		}
	}
	defer func() {
		if restore != nil {
			restore()
		}
	}()

	frame, rcode, rerr := in.applyRedirects(s.Redirects)
	if rerr != nil || rcode != 0 {
		cerr := in.closeRedirects(frame)
		_ = cerr
		if rerr != nil {
			return in.expandFailure(rerr)
		}
		return rcode, nil
	}

	code, derr := in.dispatch(argv)
	cerr := in.closeRedirects(frame)
	if derr != nil {
		return code, derr
	}
	if cerr != nil {
		fmt.Fprintf(in.errOut, "bish: %s\n", cerr.Error())
		return 1, nil
	}
	if len(argv) > 0 {
		in.state.lastArg = argv[len(argv)-1]
	}
	in.flushOutSubs()
	return code, nil
}

// expandAliases rewrites the first word through the alias table. Only
// aliases whose values parse to a single simple command splice in; a name
// already being expanded is not expanded again.
func (in *Interp) expandAliases(s *parser.Simple) (*parser.Simple, error) {
	if len(s.Words) == 0 {
		return s, nil
	}
	if in.aliasBusy == nil {
		in.aliasBusy = map[string]bool{}
	}
	for i := 0; i < 16; i++ {
		lit, ok := s.Words[0].Lit()
		if !ok {
			return s, nil
		}
		val, ok := in.state.aliases[lit]
		if !ok || in.aliasBusy[lit] {
			return s, nil
		}
		prog, err := parser.Parse(val)
		if err != nil {
			return s, err
		}
		if len(prog.Statements) != 1 {
			return s, nil
		}
		as, ok := prog.Statements[0].(*parser.Simple)
		if !ok {
			return s, nil
		}
		in.aliasBusy[lit] = true
		defer delete(in.aliasBusy, lit)
		merged := &parser.Simple{
			Assignments: append(append([]*parser.Assign{}, as.Assignments...), s.Assignments...),
			Words:       append(append([]*parser.Word{}, as.Words...), s.Words[1:]...),
			Redirects:   append(append([]*parser.Redirect{}, as.Redirects...), s.Redirects...),
			Line:        s.Line,
		}
		s = merged
		if len(s.Words) == 0 {
			return s, nil
		}
	}
	return s, nil
}

// snapshotVars records current bindings of the assigned names so ephemeral
// assignments can be rolled back.
func (in *Interp) snapshotVars(assigns []*parser.Assign) func() {
	type saved struct {
		name   string
		frame  int
		v      *Variable
		exists bool
	}
	var snaps []saved
	for _, a := range assigns {
		sv := saved{name: a.Name, frame: -1}
		for i := len(in.state.frames) - 1; i >= 0; i-- {
			if v, ok := in.state.frames[i].vars[a.Name]; ok {
				sv.frame = i
				sv.v = v.clone()
				sv.exists = true
				break
			}
		}
		snaps = append(snaps, sv)
	}
	return func() {
		for _, sv := range snaps {
			// Remove any binding created by the ephemeral assignment, then
			// put back what was there.
			for i := len(in.state.frames) - 1; i >= 0; i-- {
				delete(in.state.frames[i].vars, sv.name)
			}
			if sv.exists {
				in.state.frames[sv.frame].vars[sv.name] = sv.v
			}
		}
	}
}

// applyAssign performs one assignment. forCommand exports the binding for
// the command's environment view.
func (in *Interp) applyAssign(a *parser.Assign, forCommand bool) error {
	if a.IsArr {
		var vals []string
		for _, w := range a.Array {
			fields, err := in.expandWordFields(w)
			if err != nil {
				return err
			}
			vals = append(vals, fields...)
		}
		v := in.state.getOrCreate(a.Name)
		if v.ReadOnly {
			return &expandError{Msg: "bish: " + a.Name + ": readonly variable", Code: 1}
		}
		if v.Kind == AssocArray {
			return &expandError{Msg: "bish: " + a.Name + ": cannot convert associative to indexed array", Code: 1}
		}
		if !a.Append || v.Kind != IndexedArray {
			prev := ""
			if a.Append && v.Kind == Scalar {
				prev = v.Value
			}
			v.Kind = IndexedArray
			v.Arr = map[int64]string{}
			if prev != "" {
				v.Arr[0] = prev
			}
		}
		base := int64(0)
		if a.Append {
			for k := range v.Arr {
				if k >= base {
					base = k + 1
				}
			}
		}
		for i, val := range vals {
			v.Arr[base+int64(i)] = val
		}
		v.Value = ""
		return nil
	}

	val, err := in.expandWordNoSplit(a.Value)
	if err != nil {
		return err
	}

	if a.Index != "" {
		v := in.state.getOrCreate(a.Name)
		if v.ReadOnly {
			return &expandError{Msg: "bish: " + a.Name + ": readonly variable", Code: 1}
		}
		if v.Kind == AssocArray {
			key, kerr := in.expandIndexKey(a.Index)
			if kerr != nil {
				return kerr
			}
			if a.Append {
				val = v.MapVal[key] + val
			}
			v.setMapElem(key, val)
			return nil
		}
		idx, aerr := in.evalArith(a.Index)
		if aerr != nil {
			return aerr
		}
		if v.Kind != IndexedArray {
			old := v.Value
			v.Kind = IndexedArray
			v.Arr = map[int64]string{}
			if old != "" {
				v.Arr[0] = old
			}
		}
		if a.Append {
			val = v.Arr[idx] + val
		}
		v.Arr[idx] = val
		return nil
	}

	if a.Append {
		if old, ok := in.state.Get(a.Name); ok {
			val = old + val
		}
	}
	if err := in.state.Set(a.Name, val); err != nil {
		return err
	}
	if forCommand {
		if v, ok := in.state.lookupVar(a.Name); ok {
			v.Exported = true
		}
	}
	return nil
}

// dispatch resolves and runs the command named by argv[0].
func (in *Interp) dispatch(argv []string) (int, error) {
	name := argv[0]
	in.logger.Debug("dispatch", zap.String("name", name), zap.Int("argc", len(argv)))

	if body, ok := in.state.funcs[name]; ok {
		return in.callFunction(name, body, argv[1:])
	}
	if fn, ok := builtins[name]; ok {
		if cmd, shadowed := in.registry.Lookup(name); shadowed && !specialBuiltins[name] {
			return in.runRegistered(cmd, argv)
		}
		code, err := fn(in, argv[1:])
		if err != nil {
			return code, err
		}
		if code != 0 && in.state.flags.Posix && specialBuiltins[name] {
			return code, &PosixFatalError{Code: code}
		}
		return code, nil
	}
	if cmd, ok := in.registry.Lookup(name); ok {
		return in.runRegistered(cmd, argv)
	}
	fmt.Fprintf(in.fdWriter(2), "bish: %s: command not found\n", name)
	return 127, nil
}

// callFunction pushes a scope frame and positional vector, runs the body,
// and catches return.
func (in *Interp) callFunction(name string, body parser.Statement, args []string) (int, error) {
	if err := in.meter.enterCall(); err != nil {
		return 0, err
	}
	defer in.meter.exitCall()
	in.state.pushFuncScope(name, args)
	defer in.state.popFuncScope()
	code, err := in.runStatement(body, false)
	if err != nil {
		if ret, ok := err.(*ReturnError); ok {
			in.out.Write(ret.Stdout)
			in.errOut.Write(ret.Stderr)
			code = ret.Code
			err = nil
		}
	}
	if err != nil {
		return code, err
	}
	in.runReturnTrap()
	in.state.lastExit = code
	return code, nil
}

func (in *Interp) runReturnTrap() {
	body, ok := in.state.traps["RETURN"]
	if !ok || body == "" {
		return
	}
	prog, err := in.parse(body)
	if err != nil {
		return
	}
	saved := in.state.lastExit
	delete(in.state.traps, "RETURN")
	_, _ = in.runProgram(prog)
	in.state.traps["RETURN"] = body
	in.state.lastExit = saved
}

// runRegistered invokes an external Command through its contract.
func (in *Interp) runRegistered(cmd Command, argv []string) (int, error) {
	ctx := &CommandContext{
		FS:      in.fs,
		Cwd:     in.state.cwd,
		Stdin:   in.stdin,
		Env:     stateEnvView{st: in.state},
		Limits:  in.meter.limits,
		XpgEcho: in.xpgEcho || in.state.shopt["xpg_echo"],
		Logger:  in.logger,
		Exec: func(line string) ExecResult {
			sub := in.state.Clone()
			si := in.subInterp(sub, in.stdin)
			prog, err := si.parse(line)
			if err != nil {
				return ExecResult{Stderr: err.Error() + "\n", ExitCode: 2}
			}
			code, rerr := si.runProgram(prog)
			res := ExecResult{Stdout: si.out.String(), Stderr: si.errOut.String(), ExitCode: code}
			if rerr != nil {
				if e, ok := rerr.(*ExitError); ok {
					res.Stdout += string(e.Stdout)
					res.Stderr += string(e.Stderr)
					res.ExitCode = e.Code
				}
			}
			return res
		},
	}
	res := cmd.Execute(argv, ctx)
	if _, err := in.fdWriter(1).Write([]byte(res.Stdout)); err != nil {
		return 1, nil
	}
	if _, err := in.fdWriter(2).Write([]byte(res.Stderr)); err != nil {
		return 1, nil
	}
	return res.ExitCode, nil
}

