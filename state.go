package bish

import (
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"bish/parser"
)

// VarKind distinguishes scalars from arrays.
type VarKind int

const (
	Scalar VarKind = iota
	IndexedArray
	AssocArray
)

// Variable is one binding: a byte-string value (or array) plus attribute
// flags.
type Variable struct {
	Value    string
	Exported bool
	ReadOnly bool
	Kind     VarKind
	Arr      map[int64]string
	MapVal   map[string]string
	mapKeys  []string // insertion order for assoc iteration
}

func (v *Variable) clone() *Variable {
	c := *v
	if v.Arr != nil {
		c.Arr = make(map[int64]string, len(v.Arr))
		for k, val := range v.Arr {
			c.Arr[k] = val
		}
	}
	if v.MapVal != nil {
		c.MapVal = make(map[string]string, len(v.MapVal))
		for k, val := range v.MapVal {
			c.MapVal[k] = val
		}
		c.mapKeys = append([]string(nil), v.mapKeys...)
	}
	return &c
}

// arrIndices returns the indexed-array keys in ascending order.
func (v *Variable) arrIndices() []int64 {
	keys := make([]int64, 0, len(v.Arr))
	for k := range v.Arr {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// arrValues returns array values in index order (or insertion order for
// assoc arrays); for scalars it is the single value.
func (v *Variable) arrValues() []string {
	switch v.Kind {
	case IndexedArray:
		keys := v.arrIndices()
		out := make([]string, 0, len(keys))
		for _, k := range keys {
			out = append(out, v.Arr[k])
		}
		return out
	case AssocArray:
		out := make([]string, 0, len(v.mapKeys))
		for _, k := range v.mapKeys {
			out = append(out, v.MapVal[k])
		}
		return out
	default:
		return []string{v.Value}
	}
}

type scopeFrame struct {
	vars      map[string]*Variable
	funcScope bool
}

// State is the full mutable shell state for one interpreter instance.
// Subshells run against a deep clone; the filesystem and meter stay shared.
type State struct {
	frames     []*scopeFrame
	positional [][]string // stack; top entry is the live $@ vector
	scriptName string

	lastExit   int
	lastBg     int
	lastArg    string
	pipeStatus []int
	curLine    int

	flags   ShellFlags
	shopt   map[string]bool
	aliases map[string]string
	funcs   map[string]parser.Statement
	traps   map[string]string

	cwd    string
	oldpwd string

	rng       *rand.Rand
	startTime time.Time
	pid       int
	history   []string

	inCondition int
	loopDepth   int
	funcNames   []string
	sourceDepth int

	getoptsPos     int
	getoptsLastInd int
}

// ShellFlags are the set/-o toggles.
type ShellFlags struct {
	Errexit   bool // -e
	Nounset   bool // -u
	Pipefail  bool // -o pipefail
	Xtrace    bool // -x
	Noglob    bool // -f
	Noclobber bool // -C
	Posix     bool // -o posix
}

// NewState builds an initialized state seeded with env and cwd.
func NewState(env map[string]string, cwd string, seed int64) *State {
	if cwd == "" {
		cwd = "/"
	}
	s := &State{
		frames:     []*scopeFrame{{vars: map[string]*Variable{}}},
		positional: [][]string{{}},
		scriptName: "bish",
		shopt: map[string]bool{
			"extglob": true,
		},
		aliases:   map[string]string{},
		funcs:     map[string]parser.Statement{},
		traps:     map[string]string{},
		cwd:       cwd,
		rng:       rand.New(rand.NewSource(seed)),
		startTime: time.Now(),
		pid:       1000,
	}
	for k, v := range env {
		s.frames[0].vars[k] = &Variable{Value: v, Exported: true}
	}
	if _, ok := s.frames[0].vars["PWD"]; !ok {
		s.frames[0].vars["PWD"] = &Variable{Value: cwd, Exported: true}
	}
	if _, ok := s.frames[0].vars["IFS"]; !ok {
		s.frames[0].vars["IFS"] = &Variable{Value: " \t\n"}
	}
	if _, ok := s.frames[0].vars["PS1"]; !ok {
		s.frames[0].vars["PS1"] = &Variable{Value: "$ "}
	}
	if _, ok := s.frames[0].vars["PS4"]; !ok {
		s.frames[0].vars["PS4"] = &Variable{Value: "+ "}
	}
	if _, ok := s.frames[0].vars["OPTIND"]; !ok {
		s.frames[0].vars["OPTIND"] = &Variable{Value: "1"}
	}
	return s
}

// Clone deep-copies the shell state for subshell execution.
func (s *State) Clone() *State {
	c := *s
	c.frames = make([]*scopeFrame, len(s.frames))
	for i, f := range s.frames {
		nf := &scopeFrame{vars: make(map[string]*Variable, len(f.vars)), funcScope: f.funcScope}
		for k, v := range f.vars {
			nf.vars[k] = v.clone()
		}
		c.frames[i] = nf
	}
	c.positional = make([][]string, len(s.positional))
	for i, p := range s.positional {
		c.positional[i] = append([]string(nil), p...)
	}
	c.shopt = map[string]bool{}
	for k, v := range s.shopt {
		c.shopt[k] = v
	}
	c.aliases = map[string]string{}
	for k, v := range s.aliases {
		c.aliases[k] = v
	}
	c.funcs = map[string]parser.Statement{}
	for k, v := range s.funcs {
		c.funcs[k] = v
	}
	c.traps = map[string]string{}
	for k, v := range s.traps {
		c.traps[k] = v
	}
	c.pipeStatus = append([]int(nil), s.pipeStatus...)
	c.funcNames = append([]string(nil), s.funcNames...)
	c.history = append([]string(nil), s.history...)
	return &c
}

// lookupVar walks frames top-down.
func (s *State) lookupVar(name string) (*Variable, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if v, ok := s.frames[i].vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Get returns a variable's scalar value (element 0 for arrays).
func (s *State) Get(name string) (string, bool) {
	if v, ok := s.lookupVar(name); ok {
		switch v.Kind {
		case IndexedArray:
			return v.Arr[0], true
		case AssocArray:
			if len(v.mapKeys) > 0 {
				return v.MapVal[v.mapKeys[0]], true
			}
			return "", true
		}
		return v.Value, true
	}
	return "", false
}

// Set assigns in the frame where the name is bound, or globally.
func (s *State) Set(name, value string) error {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if v, ok := s.frames[i].vars[name]; ok {
			if v.ReadOnly {
				return &expandError{Msg: "bish: " + name + ": readonly variable", Code: 1}
			}
			if v.Kind != Scalar {
				// Assigning to an array name sets element 0.
				if v.Kind == IndexedArray {
					if v.Arr == nil {
						v.Arr = map[int64]string{}
					}
					v.Arr[0] = value
					return nil
				}
			}
			v.Value = value
			return nil
		}
	}
	s.frames[0].vars[name] = &Variable{Value: value}
	return nil
}

// SetLocal binds in the innermost function frame (for `local`).
func (s *State) SetLocal(name, value string) {
	top := s.frames[len(s.frames)-1]
	top.vars[name] = &Variable{Value: value}
}

// Unset removes the innermost binding.
func (s *State) Unset(name string) error {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if v, ok := s.frames[i].vars[name]; ok {
			if v.ReadOnly {
				return &expandError{Msg: "bish: " + name + ": cannot unset: readonly variable", Code: 1}
			}
			delete(s.frames[i].vars, name)
			return nil
		}
	}
	return nil
}

// getOrCreate returns the bound variable, creating a global scalar if
// needed.
func (s *State) getOrCreate(name string) *Variable {
	if v, ok := s.lookupVar(name); ok {
		return v
	}
	v := &Variable{}
	s.frames[0].vars[name] = v
	return v
}

// setMapElem assigns into an assoc array, tracking insertion order.
func (v *Variable) setMapElem(key, value string) {
	if v.MapVal == nil {
		v.MapVal = map[string]string{}
	}
	if _, ok := v.MapVal[key]; !ok {
		v.mapKeys = append(v.mapKeys, key)
	}
	v.MapVal[key] = value
}

// pushFuncScope enters a function body: new variable frame and positional
// vector.
func (s *State) pushFuncScope(name string, args []string) {
	s.frames = append(s.frames, &scopeFrame{vars: map[string]*Variable{}, funcScope: true})
	s.positional = append(s.positional, args)
	s.funcNames = append([]string{name}, s.funcNames...)
}

func (s *State) popFuncScope() {
	s.frames = s.frames[:len(s.frames)-1]
	s.positional = s.positional[:len(s.positional)-1]
	if len(s.funcNames) > 0 {
		s.funcNames = s.funcNames[1:]
	}
}

// Positional returns the live positional-parameter vector.
func (s *State) Positional() []string {
	return s.positional[len(s.positional)-1]
}

func (s *State) setPositional(args []string) {
	s.positional[len(s.positional)-1] = args
}

// IFS returns the field separator set, defaulting to space/tab/newline.
func (s *State) IFS() string {
	if v, ok := s.lookupVar("IFS"); ok {
		return v.Value
	}
	return " \t\n"
}

// special resolves the special parameters that are computed rather than
// stored. ok=false means the name is an ordinary variable.
func (s *State) special(name string) (string, bool) {
	switch name {
	case "?":
		return strconv.Itoa(s.lastExit), true
	case "#":
		return strconv.Itoa(len(s.Positional())), true
	case "$":
		return strconv.Itoa(s.pid), true
	case "!":
		if s.lastBg == 0 {
			return "", true
		}
		return strconv.Itoa(s.lastBg), true
	case "0":
		return s.scriptName, true
	case "-":
		return s.flagString(), true
	case "_":
		return s.lastArg, true
	case "RANDOM":
		return strconv.Itoa(s.rng.Intn(32768)), true
	case "LINENO":
		return strconv.Itoa(s.curLine), true
	case "SECONDS":
		return strconv.Itoa(int(time.Since(s.startTime).Seconds())), true
	case "FUNCNAME":
		if len(s.funcNames) == 0 {
			return "", true
		}
		return s.funcNames[0], true
	}
	if n, err := strconv.Atoi(name); err == nil && n > 0 {
		pos := s.Positional()
		if n <= len(pos) {
			return pos[n-1], true
		}
		return "", true
	}
	return "", false
}

func (s *State) flagString() string {
	var sb strings.Builder
	if s.flags.Errexit {
		sb.WriteByte('e')
	}
	if s.flags.Noglob {
		sb.WriteByte('f')
	}
	if s.flags.Nounset {
		sb.WriteByte('u')
	}
	if s.flags.Xtrace {
		sb.WriteByte('x')
	}
	if s.flags.Noclobber {
		sb.WriteByte('C')
	}
	sb.WriteString("h")
	return sb.String()
}

// Environ flattens exported variables for commands and the final Result.
func (s *State) Environ() map[string]string {
	out := map[string]string{}
	for _, f := range s.frames {
		for name, v := range f.vars {
			if v.Exported {
				out[name] = v.Value
			}
		}
	}
	return out
}

// AllVars flattens every visible binding, innermost shadowing outermost.
func (s *State) AllVars() map[string]string {
	out := map[string]string{}
	for _, f := range s.frames {
		for name, v := range f.vars {
			out[name] = v.Value
		}
	}
	return out
}
