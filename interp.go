package bish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"bish/parser"
)

// Options configures one Execute call.
type Options struct {
	// Cwd is the initial working directory on the virtual filesystem.
	Cwd string
	// Env seeds exported variables.
	Env map[string]string
	// Files seeds the filesystem (path → content; trailing slash makes a
	// directory). Ignored when Filesystem is provided.
	Files map[string]string
	// Filesystem overrides the default in-memory implementation.
	Filesystem Filesystem
	// Limits caps resource use; zero fields use defaults.
	Limits Limits
	// Posix enables set -o posix semantics from the start.
	Posix bool
	// XpgEcho makes echo interpret escapes by default.
	XpgEcho bool
	// CustomCommands are registered before execution; names may shadow
	// builtins.
	CustomCommands []Command
	// LazyCommands are loaded on first dispatch.
	LazyCommands map[string]func() Command
	// Context carries cooperative cancellation; checked between statements
	// and loop iterations.
	Context context.Context
	// CancelCode is the exit code used on cancellation (default 130).
	CancelCode int
	// Logger receives debug traces; defaults to a nop logger.
	Logger *zap.Logger
	// RandomSeed seeds $RANDOM for reproducible runs.
	RandomSeed int64
	// State reuses shell state across Execute calls on the same host
	// session.
	State *State
}

// Result is what Execute returns: accumulated output bytes, the final exit
// status, and the exported environment.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Env      map[string]string
}

// Interp is one interpreter instance: shell state plus the wiring shared by
// subshell clones (filesystem, registry, meter, parse cache).
type Interp struct {
	state    *State
	fs       Filesystem
	registry *Registry
	meter    *meter
	logger   *zap.Logger
	ctx      context.Context

	parseCache *lru.Cache[string, *parser.Program]

	out    *bytes.Buffer
	errOut *bytes.Buffer
	stdin  string
	fds    map[int]io.Writer

	aliasBusy map[string]bool

	xpgEcho    bool
	cancelCode int

	lastSubstExit   int
	skipErrexitOnce bool
	procsubSeq      *int

	pendingOutSubs []pendingOutSub
}

type pendingOutSub struct {
	path    string
	program *parser.Program
}

const parseCacheSize = 256

// Execute parses and runs source against a fresh (or provided) state and
// returns the accumulated output.
func Execute(source string, opts Options) Result {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fs := opts.Filesystem
	if fs == nil {
		mfs := NewMemFS()
		if err := mfs.Seed(opts.Files); err != nil {
			return Result{Stderr: []byte("bish: " + err.Error() + "\n"), ExitCode: 1, Env: map[string]string{}}
		}
		fs = mfs
	}
	st := opts.State
	if st == nil {
		seed := opts.RandomSeed
		if seed == 0 {
			seed = 1
		}
		st = NewState(opts.Env, opts.Cwd, seed)
		st.flags.Posix = opts.Posix
	}
	cancelCode := opts.CancelCode
	if cancelCode == 0 {
		cancelCode = 130
	}
	cache, _ := lru.New[string, *parser.Program](parseCacheSize)
	seq := 0
	in := &Interp{
		state:         st,
		fs:            fs,
		registry:      NewRegistry(),
		meter:         newMeter(opts.Limits),
		logger:        logger,
		ctx:           ctx,
		parseCache:    cache,
		out:           &bytes.Buffer{},
		errOut:        &bytes.Buffer{},
		xpgEcho:       opts.XpgEcho,
		cancelCode:    cancelCode,
		lastSubstExit: -1,
		procsubSeq:    &seq,
	}
	for _, c := range opts.CustomCommands {
		in.registry.Register(c)
	}
	for name, load := range opts.LazyCommands {
		in.registry.RegisterLazy(name, load)
	}

	prog, err := in.parse(source)
	if err != nil {
		return Result{
			Stderr:   []byte(err.Error() + "\n"),
			ExitCode: 2,
			Env:      st.Environ(),
		}
	}
	if trimmed := strings.TrimRight(source, "\n"); trimmed != "" {
		st.history = append(st.history, trimmed)
	}
	in.logger.Debug("parsed", zap.Int("statements", len(prog.Statements)))

	code, runErr := in.runProgram(prog)
	return in.finish(code, runErr)
}

// finish converts the run outcome (including control-flow carriers) into a
// Result, firing the EXIT trap.
func (in *Interp) finish(code int, runErr error) Result {
	if runErr != nil {
		var (
			exitErr  *ExitError
			errexit  *ErrexitError
			nounset  *NounsetError
			limit    *ExecutionLimitError
			pfatal   *PosixFatalError
			internal *internalError
			brk      *BreakError
			cont     *ContinueError
			ret      *ReturnError
		)
		switch {
		case errors.As(runErr, &exitErr):
			in.drainCarrier(exitErr)
			code = exitErr.Code
		case errors.As(runErr, &errexit):
			in.drainCarrier(errexit)
			code = errexit.Code
		case errors.As(runErr, &nounset):
			in.drainCarrier(nounset)
			fmt.Fprintf(in.errOut, "%s\n", nounset.Error())
			code = 1
		case errors.As(runErr, &limit):
			in.drainCarrier(limit)
			fmt.Fprintf(in.errOut, "%s\n", limit.Error())
			code = 126
		case errors.As(runErr, &pfatal):
			in.drainCarrier(pfatal)
			code = pfatal.Code
		case errors.As(runErr, &internal):
			in.drainCarrier(internal)
			fmt.Fprintf(in.errOut, "bash: %s\n", internal.Error())
			code = 1
		case errors.As(runErr, &brk), errors.As(runErr, &cont):
			// A stray break/continue at top level is tolerated.
		case errors.As(runErr, &ret):
			in.drainCarrier(ret)
			code = ret.Code
		default:
			fmt.Fprintf(in.errOut, "bash: internal error: %s\n", runErr.Error())
			code = 1
		}
	}
	in.state.lastExit = code
	in.runExitTrap()
	in.logger.Debug("finish",
		zap.Int("exitCode", code),
		zap.Int("stdoutBytes", in.out.Len()),
		zap.Int("stderrBytes", in.errOut.Len()),
	)
	return Result{
		Stdout:   append([]byte(nil), in.out.Bytes()...),
		Stderr:   append([]byte(nil), in.errOut.Bytes()...),
		ExitCode: code,
		Env:      in.state.Environ(),
	}
}

// drainCarrier appends output that unwound inside capture frames.
func (in *Interp) drainCarrier(c carrier) {
	stdout, stderr := c.carried()
	in.out.Write(stdout)
	in.errOut.Write(stderr)
}

// parse caches parsed programs; eval, source and command substitution hit
// the same source strings repeatedly.
func (in *Interp) parse(source string) (*parser.Program, error) {
	if prog, ok := in.parseCache.Get(source); ok {
		return prog, nil
	}
	prog, err := parser.Parse(source)
	if err != nil {
		return nil, err
	}
	in.parseCache.Add(source, prog)
	return prog, nil
}

// subInterp builds an interpreter over st sharing the instance-wide pieces.
func (in *Interp) subInterp(st *State, stdin string) *Interp {
	return &Interp{
		state:         st,
		fs:            in.fs,
		registry:      in.registry,
		meter:         in.meter,
		logger:        in.logger,
		ctx:           in.ctx,
		parseCache:    in.parseCache,
		out:           &bytes.Buffer{},
		errOut:        &bytes.Buffer{},
		stdin:         stdin,
		xpgEcho:       in.xpgEcho,
		cancelCode:    in.cancelCode,
		lastSubstExit: -1,
		procsubSeq:    in.procsubSeq,
	}
}

// checkCancel raises ExitError when the host context is done.
func (in *Interp) checkCancel() error {
	select {
	case <-in.ctx.Done():
		return &ExitError{Code: in.cancelCode}
	default:
		return nil
	}
}

// runExitTrap fires the EXIT trap once, in the current scope.
func (in *Interp) runExitTrap() {
	body, ok := in.state.traps["EXIT"]
	if !ok || body == "" {
		return
	}
	delete(in.state.traps, "EXIT")
	prog, err := in.parse(body)
	if err != nil {
		fmt.Fprintf(in.errOut, "%s\n", err.Error())
		return
	}
	savedExit := in.state.lastExit
	_, _ = in.runProgram(prog)
	in.state.lastExit = savedExit
}
