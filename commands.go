package bish

import "go.uber.org/zap"

// ExecResult is what every command produces: output bytes and an exit code.
// Failures are data here, not errors.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Command is an externally implemented utility. The interpreter knows
// nothing about its behavior beyond this contract.
type Command interface {
	Name() string
	Execute(argv []string, ctx *CommandContext) ExecResult
}

// CommandContext is handed to each command invocation.
type CommandContext struct {
	FS    Filesystem
	Cwd   string
	Stdin string

	// Env is a live view over the interpreter's variables, not a snapshot:
	// Set writes back into shell state.
	Env EnvView

	// Exec re-enters the interpreter on a source line; used by commands like
	// xargs, env and watch.
	Exec func(line string) ExecResult

	Limits  Limits
	XpgEcho bool
	Logger  *zap.Logger
}

// EnvView exposes interpreter variables to commands.
type EnvView interface {
	Get(name string) string
	Set(name, value string)
	Names() []string
}

// CommandFunc adapts a function to the Command interface.
type CommandFunc struct {
	CmdName string
	Fn      func(argv []string, ctx *CommandContext) ExecResult
}

func (c CommandFunc) Name() string { return c.CmdName }
func (c CommandFunc) Execute(argv []string, ctx *CommandContext) ExecResult {
	return c.Fn(argv, ctx)
}

// Registry resolves command names. Lazy entries are loaded and cached on
// first dispatch; a registered command may shadow a builtin.
type Registry struct {
	eager map[string]Command
	lazy  map[string]func() Command
}

func NewRegistry() *Registry {
	return &Registry{
		eager: map[string]Command{},
		lazy:  map[string]func() Command{},
	}
}

// Register installs an eager command.
func (r *Registry) Register(c Command) {
	r.eager[c.Name()] = c
}

// RegisterLazy installs a loader invoked on first lookup.
func (r *Registry) RegisterLazy(name string, load func() Command) {
	r.lazy[name] = load
}

// Lookup resolves a name, loading lazily if required.
func (r *Registry) Lookup(name string) (Command, bool) {
	if c, ok := r.eager[name]; ok {
		return c, true
	}
	if load, ok := r.lazy[name]; ok {
		c := load()
		r.eager[name] = c
		delete(r.lazy, name)
		return c, true
	}
	return nil, false
}

// Names lists all registered command names (loaded or not).
func (r *Registry) Names() []string {
	var names []string
	for n := range r.eager {
		names = append(names, n)
	}
	for n := range r.lazy {
		names = append(names, n)
	}
	return names
}

// stateEnvView implements EnvView over a State.
type stateEnvView struct {
	st *State
}

func (v stateEnvView) Get(name string) string {
	if s, ok := v.st.special(name); ok {
		return s
	}
	val, _ := v.st.Get(name)
	return val
}

func (v stateEnvView) Set(name, value string) {
	_ = v.st.Set(name, value)
}

func (v stateEnvView) Names() []string {
	var names []string
	for n := range v.st.AllVars() {
		names = append(names, n)
	}
	return names
}
