package bish

// Limits caps runtime resource use. Zero values fall back to the defaults
// below; the host can tighten or loosen any of them per Execute call.
type Limits struct {
	MaxCommands       int // simple commands executed
	MaxIterations     int // loop iterations across all loops
	MaxRecursionDepth int // functions + source + eval + command substitution
	MaxStringLength   int // bytes in any single expansion result
	MaxGlobOps        int // stat/readdir operations during globbing
	MaxSubstDepth     int // nested command substitutions
}

// DefaultLimits are generous enough for test suites while still catching
// runaway scripts.
func DefaultLimits() Limits {
	return Limits{
		MaxCommands:       100000,
		MaxIterations:     100000,
		MaxRecursionDepth: 200,
		MaxStringLength:   4 << 20,
		MaxGlobOps:        100000,
		MaxSubstDepth:     64,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxCommands <= 0 {
		l.MaxCommands = d.MaxCommands
	}
	if l.MaxIterations <= 0 {
		l.MaxIterations = d.MaxIterations
	}
	if l.MaxRecursionDepth <= 0 {
		l.MaxRecursionDepth = d.MaxRecursionDepth
	}
	if l.MaxStringLength <= 0 {
		l.MaxStringLength = d.MaxStringLength
	}
	if l.MaxGlobOps <= 0 {
		l.MaxGlobOps = d.MaxGlobOps
	}
	if l.MaxSubstDepth <= 0 {
		l.MaxSubstDepth = d.MaxSubstDepth
	}
	return l
}

// meter tracks consumption against Limits for one interpreter instance.
// Counters are never global.
type meter struct {
	limits     Limits
	commands   int
	iterations int
	depth      int
	globOps    int
	substDepth int
}

func newMeter(l Limits) *meter {
	return &meter{limits: l.withDefaults()}
}

func (m *meter) bumpCommand() error {
	m.commands++
	if m.commands > m.limits.MaxCommands {
		return &ExecutionLimitError{What: "command count"}
	}
	return nil
}

func (m *meter) bumpIteration() error {
	m.iterations++
	if m.iterations > m.limits.MaxIterations {
		return &ExecutionLimitError{What: "loop iterations"}
	}
	return nil
}

func (m *meter) enterCall() error {
	m.depth++
	if m.depth > m.limits.MaxRecursionDepth {
		m.depth--
		return &ExecutionLimitError{What: "recursion depth"}
	}
	return nil
}

func (m *meter) exitCall() { m.depth-- }

func (m *meter) enterSubst() error {
	m.substDepth++
	if m.substDepth > m.limits.MaxSubstDepth {
		m.substDepth--
		return &ExecutionLimitError{What: "substitution depth"}
	}
	return nil
}

func (m *meter) exitSubst() { m.substDepth-- }

func (m *meter) bumpGlob() error {
	m.globOps++
	if m.globOps > m.limits.MaxGlobOps {
		return &ExecutionLimitError{What: "glob operations"}
	}
	return nil
}

func (m *meter) checkString(n int) error {
	if n > m.limits.MaxStringLength {
		return &ExecutionLimitError{What: "expansion length"}
	}
	return nil
}
