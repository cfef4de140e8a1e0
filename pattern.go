package bish

import (
	"sort"
	"strings"

	"github.com/dlclark/regexp2"
)

// Shell patterns are matched by translating them to regexp2 syntax. regexp2
// (rather than the stdlib engine) is used because extglob's !(…) needs
// lookahead, and because ${var/pat/rep} wants backtracking semantics close
// to bash's.
//
// Pattern strings use backslash escaping to mark characters that came from
// quoted input: "\*" is a literal asterisk.

type patternOpts struct {
	extglob  bool
	nocase   bool
	shortest bool // lazy quantifiers, for ${var#pat} and ${var%pat}
}

var classTranslations = map[string]string{
	"alpha": "a-zA-Z",
	"digit": "0-9",
	"alnum": "a-zA-Z0-9",
	"upper": "A-Z",
	"lower": "a-z",
	"space": ` \t\n\r\f\v`,
	"blank": ` \t`,
	"punct": `!-/:-@\[-` + "`" + `{-~`,
	"xdigit": "0-9a-fA-F",
	"cntrl": `\x00-\x1f\x7f`,
	"print": `\x20-\x7e`,
	"graph": `\x21-\x7e`,
}

// translatePattern converts a shell pattern into a regexp2 fragment
// (unanchored).
func translatePattern(pat string, opts patternOpts) string {
	var sb strings.Builder
	star := `[\s\S]*`
	if opts.shortest {
		star = `[\s\S]*?`
	}
	i := 0
	for i < len(pat) {
		c := pat[i]
		switch c {
		case '\\':
			if i+1 < len(pat) {
				sb.WriteString(regexp2Escape(string(pat[i+1])))
				i += 2
				continue
			}
			sb.WriteString(`\\`)
			i++
		case '*', '?':
			if opts.extglob && i+1 < len(pat) && pat[i+1] == '(' {
				group, n := extglobGroup(pat[i:])
				sb.WriteString(translateExtglob(c, group, opts))
				i += n
				continue
			}
			if c == '*' {
				sb.WriteString(star)
			} else {
				sb.WriteString(`[\s\S]`)
			}
			i++
		case '[':
			cls, n, ok := translateClass(pat[i:])
			if ok {
				sb.WriteString(cls)
				i += n
			} else {
				sb.WriteString(`\[`)
				i++
			}
		case '@', '+', '!':
			if opts.extglob && i+1 < len(pat) && pat[i+1] == '(' {
				group, n := extglobGroup(pat[i:])
				sb.WriteString(translateExtglob(c, group, opts))
				i += n
				continue
			}
			sb.WriteString(regexp2Escape(string(c)))
			i++
		default:
			sb.WriteString(regexp2Escape(string(c)))
			i++
		}
	}
	return sb.String()
}

// extglobGroup returns the contents of x(…) and the total consumed length
// including marker and parens.
func extglobGroup(s string) (string, int) {
	depth := 0
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[2:i], i + 1
			}
		case '\\':
			i++
		}
	}
	return s[2:], len(s)
}

func translateExtglob(marker byte, group string, opts patternOpts) string {
	var alts []string
	for _, alt := range splitAlternatives(group) {
		alts = append(alts, translatePattern(alt, opts))
	}
	inner := "(?:" + strings.Join(alts, "|") + ")"
	switch marker {
	case '@':
		return inner
	case '+':
		return inner + "+"
	case '?':
		return inner + "?"
	case '*':
		return inner + "*"
	case '!':
		// Anything not matching any alternative for the rest of the span.
		return `(?:(?!` + inner + `$)[\s\S]*)`
	}
	return inner
}

// splitAlternatives splits an extglob body on top-level '|'.
func splitAlternatives(s string) []string {
	var out []string
	depth := 0
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case '\\':
			i++
		case '|':
			if depth == 0 {
				out = append(out, s[last:i])
				last = i + 1
			}
		}
	}
	return append(out, s[last:])
}

// translateClass converts a [...] bracket expression. Returns the regex
// fragment, the consumed length, and ok=false when the bracket is unclosed.
func translateClass(s string) (string, int, bool) {
	i := 1
	var sb strings.Builder
	sb.WriteByte('[')
	if i < len(s) && (s[i] == '!' || s[i] == '^') {
		sb.WriteByte('^')
		i++
	}
	if i < len(s) && s[i] == ']' {
		sb.WriteString(`\]`)
		i++
	}
	for i < len(s) {
		if s[i] == ']' {
			sb.WriteByte(']')
			return sb.String(), i + 1, true
		}
		if s[i] == '[' && i+1 < len(s) && s[i+1] == ':' {
			end := strings.Index(s[i+2:], ":]")
			if end >= 0 {
				name := s[i+2 : i+2+end]
				if tr, ok := classTranslations[name]; ok {
					sb.WriteString(tr)
				}
				i += end + 4
				continue
			}
		}
		switch s[i] {
		case '\\':
			sb.WriteString(`\\`)
		case '^':
			sb.WriteString(`\^`)
		default:
			sb.WriteByte(s[i])
		}
		i++
	}
	return "", 0, false
}

func regexp2Escape(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if strings.IndexByte(`\.+*?()|[]{}^$#`, c) >= 0 {
			sb.WriteByte('\\')
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func compilePattern(pat string, opts patternOpts, anchored bool) (*regexp2.Regexp, error) {
	frag := translatePattern(pat, opts)
	if anchored {
		frag = `^(?:` + frag + `)$`
	}
	var ro regexp2.RegexOptions
	if opts.nocase {
		ro |= regexp2.IgnoreCase
	}
	return regexp2.Compile(frag, ro)
}

// matchPattern reports whether s matches the whole pattern.
func matchPattern(pat, s string, opts patternOpts) bool {
	re, err := compilePattern(pat, opts, true)
	if err != nil {
		return false
	}
	ok, err := re.MatchString(s)
	return err == nil && ok
}

// hasGlobChars reports whether the pattern contains unescaped glob
// metacharacters.
func hasGlobChars(pat string) bool {
	for i := 0; i < len(pat); i++ {
		switch pat[i] {
		case '\\':
			i++
		case '*', '?', '[':
			return true
		case '@', '+', '!':
			if i+1 < len(pat) && pat[i+1] == '(' {
				return true
			}
		}
	}
	return false
}

// unescapePattern removes the backslash-escapes from a pattern that turned
// out to be a literal field.
func unescapePattern(pat string) string {
	var sb strings.Builder
	for i := 0; i < len(pat); i++ {
		if pat[i] == '\\' && i+1 < len(pat) {
			i++
		}
		sb.WriteByte(pat[i])
	}
	return sb.String()
}

// trimPatternPrefix implements ${var#pat} (shortest) and ${var##pat}
// (longest).
func trimPatternPrefix(value, pat string, longest bool, opts patternOpts) string {
	opts.shortest = !longest
	indices := make([]int, 0, len(value)+1)
	for j := 0; j <= len(value); j++ {
		indices = append(indices, j)
	}
	if longest {
		// Try the longest prefix first.
		for i, j := 0, len(indices)-1; i < j; i, j = i+1, j-1 {
			indices[i], indices[j] = indices[j], indices[i]
		}
	}
	for _, j := range indices {
		if matchPattern(pat, value[:j], opts) {
			return value[j:]
		}
	}
	return value
}

// trimPatternSuffix implements ${var%pat} and ${var%%pat}.
func trimPatternSuffix(value, pat string, longest bool, opts patternOpts) string {
	opts.shortest = !longest
	indices := make([]int, 0, len(value)+1)
	for j := len(value); j >= 0; j-- {
		indices = append(indices, j)
	}
	if longest {
		for i, j := 0, len(indices)-1; i < j; i, j = i+1, j-1 {
			indices[i], indices[j] = indices[j], indices[i]
		}
	}
	for _, j := range indices {
		if matchPattern(pat, value[j:], opts) {
			return value[:j]
		}
	}
	return value
}

// replacePattern implements the ${var/pat/rep} family. anchor is 0 for
// anywhere, '#' for prefix, '%' for suffix; all replaces every match.
func replacePattern(value, pat, rep string, all bool, anchor byte, opts patternOpts) string {
	frag := translatePattern(pat, opts)
	switch anchor {
	case '#':
		frag = `^(?:` + frag + `)`
	case '%':
		frag = `(?:` + frag + `)$`
	}
	var ro regexp2.RegexOptions
	if opts.nocase {
		ro |= regexp2.IgnoreCase
	}
	re, err := regexp2.Compile(frag, ro)
	if err != nil {
		return value
	}
	count := 1
	if all {
		count = -1
	}
	// The replacement is literal text; escape regexp2's $ substitution
	// syntax.
	out, err := re.Replace(value, strings.ReplaceAll(rep, "$", "$$"), 0, count)
	if err != nil {
		return value
	}
	return out
}

// globField expands one field against the filesystem. The returned slice is
// empty when nothing matched (the caller applies nullglob and failglob);
// ok=false means the field had no glob characters at all.
func (in *Interp) globField(pat string) ([]string, bool, error) {
	if !hasGlobChars(pat) {
		return nil, false, nil
	}
	opts := patternOpts{
		extglob: in.state.shopt["extglob"],
		nocase:  in.state.shopt["nocaseglob"],
	}
	var comps []string
	absolute := strings.HasPrefix(pat, "/")
	comps = splitPatternPath(pat)
	start := in.state.cwd
	prefix := ""
	if absolute {
		start = "/"
		prefix = "/"
	}
	matches, err := in.globWalk(start, prefix, comps, opts)
	if err != nil {
		return nil, true, err
	}
	sort.Strings(matches)
	return matches, true, nil
}

// splitPatternPath splits on '/' keeping escapes intact.
func splitPatternPath(pat string) []string {
	var comps []string
	var sb strings.Builder
	for i := 0; i < len(pat); i++ {
		c := pat[i]
		if c == '\\' && i+1 < len(pat) {
			sb.WriteByte(c)
			i++
			sb.WriteByte(pat[i])
			continue
		}
		if c == '/' {
			comps = append(comps, sb.String())
			sb.Reset()
			continue
		}
		sb.WriteByte(c)
	}
	comps = append(comps, sb.String())
	// Leading empty component comes from the absolute slash.
	if len(comps) > 0 && comps[0] == "" {
		comps = comps[1:]
	}
	return comps
}

// globWalk matches the remaining components under dir. Results carry the
// user-visible path built from prefix.
func (in *Interp) globWalk(dir, prefix string, comps []string, opts patternOpts) ([]string, error) {
	if err := in.meter.bumpGlob(); err != nil {
		return nil, err
	}
	if len(comps) == 0 {
		return nil, nil
	}
	comp := comps[0]
	rest := comps[1:]

	// globstar: ** matches zero or more directory levels.
	if comp == "**" && in.state.shopt["globstar"] {
		var out []string
		if len(rest) == 0 {
			out = append(out, strings.TrimSuffix(prefix, "/"))
		}
		sub, err := in.globWalk(dir, prefix, rest, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
		entries, err := in.fs.ReadDir(dir)
		if err != nil {
			return out, nil
		}
		for _, e := range entries {
			if !e.IsDir || strings.HasPrefix(e.Name, ".") {
				continue
			}
			sub, err := in.globWalk(joinPath(dir, e.Name), prefix+e.Name+"/", comps, opts)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
		return out, nil
	}

	if !hasGlobChars(comp) {
		name := unescapePattern(comp)
		next := joinPath(dir, name)
		if !in.fs.Exists(next) {
			return nil, nil
		}
		if len(rest) == 0 {
			return []string{prefix + name}, nil
		}
		return in.globWalk(next, prefix+name+"/", rest, opts)
	}

	entries, err := in.fs.ReadDir(dir)
	if err != nil {
		return nil, nil
	}
	var out []string
	hidden := strings.HasPrefix(comp, ".")
	for _, e := range entries {
		if err := in.meter.bumpGlob(); err != nil {
			return nil, err
		}
		if strings.HasPrefix(e.Name, ".") && !hidden {
			continue
		}
		if !matchPattern(comp, e.Name, opts) {
			continue
		}
		if len(rest) == 0 {
			out = append(out, prefix+e.Name)
			continue
		}
		if !e.IsDir {
			continue
		}
		sub, err := in.globWalk(joinPath(dir, e.Name), prefix+e.Name+"/", rest, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}
