package bish

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"bish/arith"
	"bish/parser"
)

// Word expansion runs the staged pipeline: brace → tilde → parameter/
// arithmetic/command substitution → field splitting → pathname expansion →
// quote removal. Fragments carry a quoted bit so the later stages can tell
// which bytes came from quoted sources.

type frag struct {
	text   string
	quoted bool
	brk    bool // field break from "$@" and friends
}

// expandWords fully expands a word list into argv fields.
func (in *Interp) expandWords(words []*parser.Word) ([]string, error) {
	var argv []string
	for _, w := range words {
		fields, err := in.expandWordFields(w)
		if err != nil {
			return nil, err
		}
		argv = append(argv, fields...)
	}
	return argv, nil
}

// expandWordFields expands a single word into zero or more fields.
func (in *Interp) expandWordFields(w *parser.Word) ([]string, error) {
	brace, err := braceExpandWord(w)
	if err != nil {
		return nil, err
	}
	var fields []string
	for _, bw := range brace {
		frags, err := in.expandParts(bw.Parts, false)
		if err != nil {
			return nil, err
		}
		split := in.splitFields(frags)
		for _, f := range split {
			globbed, err := in.globOneField(f)
			if err != nil {
				return nil, err
			}
			fields = append(fields, globbed...)
		}
	}
	return fields, nil
}

// expandWordNoSplit expands a word into exactly one field: assignments,
// redirect targets, case scrutinees, here-doc bodies.
func (in *Interp) expandWordNoSplit(w *parser.Word) (string, error) {
	frags, err := in.expandParts(w.Parts, false)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for i, f := range frags {
		if f.brk {
			if i > 0 && i < len(frags)-1 {
				sb.WriteByte(' ')
			}
			continue
		}
		sb.WriteString(f.text)
	}
	if err := in.meter.checkString(sb.Len()); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// expandPattern expands a word into a pattern string where characters from
// quoted parts are backslash-escaped (so they match literally).
func (in *Interp) expandPattern(w *parser.Word) (string, error) {
	frags, err := in.expandParts(w.Parts, false)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, f := range frags {
		if f.brk {
			sb.WriteByte(' ')
			continue
		}
		if f.quoted {
			sb.WriteString(escapePatternText(f.text))
		} else {
			sb.WriteString(f.text)
		}
	}
	return sb.String(), nil
}

func escapePatternText(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\', '@', '+', '!', '(', ')', '|':
			sb.WriteByte('\\')
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// expandParts runs substitution-stage expansion over parts. quoted marks
// that the parts live inside double quotes.
func (in *Interp) expandParts(parts []parser.WordPart, quoted bool) ([]frag, error) {
	var frags []frag
	for _, p := range parts {
		switch pp := p.(type) {
		case *parser.LiteralPart:
			frags = append(frags, frag{text: pp.Text, quoted: quoted})
		case *parser.SingleQuotedPart:
			frags = append(frags, frag{text: pp.Text, quoted: true})
		case *parser.EscapedPart:
			frags = append(frags, frag{text: pp.Text, quoted: true})
		case *parser.BytesPart:
			frags = append(frags, frag{text: string(pp.Data), quoted: true})
		case *parser.DoubleQuotedPart:
			inner, err := in.expandParts(pp.Parts, true)
			if err != nil {
				return nil, err
			}
			if len(pp.Parts) == 0 {
				inner = []frag{{text: "", quoted: true}}
			}
			frags = append(frags, inner...)
		case *parser.TildePart:
			if quoted {
				frags = append(frags, frag{text: "~" + pp.User, quoted: true})
				break
			}
			frags = append(frags, frag{text: in.tildeValue(pp.User), quoted: true})
		case *parser.ArithExpPart:
			expr, err := in.expandArithText(pp.Expr)
			if err != nil {
				return nil, err
			}
			n, err := arith.Eval(expr, in.arithEnv())
			if err != nil {
				return nil, &expandError{Msg: "bish: " + pp.Expr + ": " + err.Error(), Code: 1}
			}
			frags = append(frags, frag{text: strconv.FormatInt(n, 10), quoted: quoted})
		case *parser.CmdSubPart:
			out, err := in.commandSubst(pp.Program)
			if err != nil {
				return nil, err
			}
			frags = append(frags, frag{text: trimTrailingNewlines(out), quoted: quoted})
		case *parser.ProcSubPart:
			path, err := in.processSubst(pp)
			if err != nil {
				return nil, err
			}
			frags = append(frags, frag{text: path, quoted: true})
		case *parser.ParamExpPart:
			pf, err := in.expandParam(pp, quoted)
			if err != nil {
				return nil, err
			}
			frags = append(frags, pf...)
		}
	}
	return frags, nil
}

// tildeValue resolves ~, ~user, ~+ and ~-.
func (in *Interp) tildeValue(user string) string {
	get := func(name string) string {
		v, _ := in.state.Get(name)
		return v
	}
	switch user {
	case "":
		if h := get("HOME"); h != "" {
			return h
		}
		return "/root"
	case "+":
		return in.state.cwd
	case "-":
		if in.state.oldpwd != "" {
			return in.state.oldpwd
		}
		return "~-"
	default:
		return "/home/" + user
	}
}

// paramValue resolves a parameter to its value(s). multi is true for $@, $*
// and array[@]/[*] expansions.
func (in *Interp) paramValue(name, index string) (vals []string, set bool, multi bool, err error) {
	switch name {
	case "@", "*":
		return in.state.Positional(), true, true, nil
	case "PIPESTATUS":
		var out []string
		for _, c := range in.state.pipeStatus {
			out = append(out, strconv.Itoa(c))
		}
		if index == "@" || index == "*" {
			return out, true, true, nil
		}
		if index != "" {
			n, aerr := in.evalArith(index)
			if aerr != nil {
				return nil, false, false, aerr
			}
			if n >= 0 && int(n) < len(out) {
				return []string{out[n]}, true, false, nil
			}
			return []string{""}, false, false, nil
		}
		if len(out) == 0 {
			return []string{"0"}, true, false, nil
		}
		return []string{out[0]}, true, false, nil
	}
	if sp, ok := in.state.special(name); ok {
		// Positional parameters report unset when beyond $#.
		if n, nerr := strconv.Atoi(name); nerr == nil && n > 0 && n > len(in.state.Positional()) {
			return []string{""}, false, false, nil
		}
		return []string{sp}, true, false, nil
	}
	v, ok := in.state.lookupVar(name)
	if !ok {
		return []string{""}, false, false, nil
	}
	if index == "@" || index == "*" {
		return v.arrValues(), true, true, nil
	}
	if index != "" {
		switch v.Kind {
		case AssocArray:
			key, kerr := in.expandIndexKey(index)
			if kerr != nil {
				return nil, false, false, kerr
			}
			val, ok := v.MapVal[key]
			return []string{val}, ok, false, nil
		default:
			n, aerr := in.evalArith(index)
			if aerr != nil {
				return nil, false, false, aerr
			}
			if v.Kind == IndexedArray {
				val, ok := v.Arr[n]
				return []string{val}, ok, false, nil
			}
			if n == 0 {
				return []string{v.Value}, true, false, nil
			}
			return []string{""}, false, false, nil
		}
	}
	switch v.Kind {
	case IndexedArray:
		val, ok := v.Arr[0]
		return []string{val}, ok, false, nil
	case AssocArray:
		if len(v.mapKeys) > 0 {
			return []string{v.MapVal[v.mapKeys[0]]}, true, false, nil
		}
		return []string{""}, false, false, nil
	}
	return []string{v.Value}, true, false, nil
}

// expandIndexKey expands an assoc-array subscript: it is shell text, not
// arithmetic.
func (in *Interp) expandIndexKey(index string) (string, error) {
	prog, err := parser.Parse("x=" + index)
	if err != nil {
		return index, nil
	}
	if len(prog.Statements) == 1 {
		if s, ok := prog.Statements[0].(*parser.Simple); ok && len(s.Assignments) == 1 {
			return in.expandWordNoSplit(s.Assignments[0].Value)
		}
	}
	return index, nil
}

func (in *Interp) evalArith(expr string) (int64, error) {
	ex, err := in.expandArithText(expr)
	if err != nil {
		return 0, err
	}
	n, err := arith.Eval(ex, in.arithEnv())
	if err != nil {
		return 0, &expandError{Msg: "bish: " + expr + ": " + err.Error(), Code: 1}
	}
	return n, nil
}

// expandArithText performs $-expansion inside arithmetic text ($((…)) allows
// $var and $(cmd) before evaluation).
func (in *Interp) expandArithText(expr string) (string, error) {
	if !strings.ContainsAny(expr, "$`") {
		return expr, nil
	}
	w, err := parser.ParseWordText(expr)
	if err != nil {
		return expr, nil
	}
	frags, err := in.expandParts(w.Parts, true)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, f := range frags {
		sb.WriteString(f.text)
	}
	return sb.String(), nil
}

// expandParam applies a parameter expansion operator.
func (in *Interp) expandParam(p *parser.ParamExpPart, quoted bool) ([]frag, error) {
	name := p.Name
	index := p.Index

	// Indirection: ${!ref} reads the variable named by $ref. A bare "!" is
	// the last-background parameter, not indirection.
	if len(name) > 1 && strings.HasPrefix(name, "!") {
		target, _ := in.state.Get(name[1:])
		name = target
		if name == "" {
			return []frag{{text: "", quoted: quoted}}, nil
		}
	}

	vals, set, multi, err := in.paramValue(name, index)
	if err != nil {
		return nil, err
	}

	if p.Length {
		if multi || index == "@" || index == "*" {
			if name == "@" || name == "*" {
				return []frag{{text: strconv.Itoa(len(in.state.Positional())), quoted: quoted}}, nil
			}
			return []frag{{text: strconv.Itoa(len(vals)), quoted: quoted}}, nil
		}
		n := utf8.RuneCountInString(vals[0])
		if !isValidUTF8(vals[0]) {
			n = len(vals[0])
		}
		return []frag{{text: strconv.Itoa(n), quoted: quoted}}, nil
	}

	empty := !set || (len(vals) == 1 && vals[0] == "" && !multi) || (multi && len(vals) == 0)
	unsetOnly := !set

	applies := func(op string) bool {
		if strings.HasPrefix(op, ":") {
			return empty
		}
		return unsetOnly
	}

	switch p.Op {
	case "":
		// plain lookup
	case ":-", "-":
		if applies(p.Op) {
			return in.expandParts(p.Arg.Parts, quoted)
		}
	case ":=", "=":
		if applies(p.Op) {
			val, err := in.expandWordNoSplit(p.Arg)
			if err != nil {
				return nil, err
			}
			if err := in.state.Set(name, val); err != nil {
				return nil, err
			}
			return []frag{{text: val, quoted: quoted}}, nil
		}
	case ":?", "?":
		if applies(p.Op) {
			msg, err := in.expandWordNoSplit(p.Arg)
			if err != nil {
				return nil, err
			}
			if msg == "" {
				msg = "parameter null or not set"
			}
			return nil, &expandError{Msg: "bish: " + name + ": " + msg, Code: 1, Fatal: true}
		}
	case ":+", "+":
		use := false
		if p.Op == ":+" {
			use = !empty
		} else {
			use = set
		}
		if use {
			return in.expandParts(p.Arg.Parts, quoted)
		}
		return []frag{{text: "", quoted: quoted}}, nil
	case "#", "##", "%", "%%":
		if err := in.nounsetCheck(name, set, multi); err != nil {
			return nil, err
		}
		pat, err := in.expandPattern(p.Arg)
		if err != nil {
			return nil, err
		}
		opts := in.patternOpts()
		out := make([]string, len(vals))
		for i, v := range vals {
			switch p.Op {
			case "#":
				out[i] = trimPatternPrefix(v, pat, false, opts)
			case "##":
				out[i] = trimPatternPrefix(v, pat, true, opts)
			case "%":
				out[i] = trimPatternSuffix(v, pat, false, opts)
			case "%%":
				out[i] = trimPatternSuffix(v, pat, true, opts)
			}
		}
		return valsToFrags(out, multi, quoted), nil
	case "/", "//", "/#", "/%":
		if err := in.nounsetCheck(name, set, multi); err != nil {
			return nil, err
		}
		pat, err := in.expandPattern(p.Arg)
		if err != nil {
			return nil, err
		}
		rep := ""
		if p.HasReplace {
			rep, err = in.expandWordNoSplit(p.ReplaceWith)
			if err != nil {
				return nil, err
			}
		}
		all := p.Op == "//"
		anchor := byte(0)
		if p.Op == "/#" {
			anchor = '#'
		} else if p.Op == "/%" {
			anchor = '%'
		}
		opts := in.patternOpts()
		out := make([]string, len(vals))
		for i, v := range vals {
			out[i] = replacePattern(v, pat, rep, all, anchor, opts)
		}
		return valsToFrags(out, multi, quoted), nil
	case "^", "^^", ",", ",,":
		if err := in.nounsetCheck(name, set, multi); err != nil {
			return nil, err
		}
		pat := "?"
		if p.Arg != nil {
			if t, err := in.expandPattern(p.Arg); err == nil && t != "" {
				pat = t
			}
		}
		upper := p.Op == "^" || p.Op == "^^"
		allChars := p.Op == "^^" || p.Op == ",,"
		opts := in.patternOpts()
		out := make([]string, len(vals))
		for i, v := range vals {
			out[i] = caseModify(v, pat, upper, allChars, opts)
		}
		return valsToFrags(out, multi, quoted), nil
	case ":":
		if err := in.nounsetCheck(name, set, multi); err != nil {
			return nil, err
		}
		raw, _ := p.Arg.Lit()
		out, err := in.substring(vals, multi, raw)
		if err != nil {
			return nil, err
		}
		return valsToFrags(out, multi, quoted), nil
	}

	if err := in.nounsetCheck(name, set, multi); err != nil {
		return nil, err
	}
	if multi {
		if quoted && name == "*" {
			sep := " "
			if ifs := in.state.IFS(); ifs != "" {
				sep = ifs[:1]
			} else {
				sep = ""
			}
			return []frag{{text: strings.Join(vals, sep), quoted: true}}, nil
		}
		return valsToFrags(vals, true, quoted), nil
	}
	return []frag{{text: vals[0], quoted: quoted}}, nil
}

// nounsetCheck raises under set -u for unset parameters. $@ and $* are
// exempt when empty.
func (in *Interp) nounsetCheck(name string, set, multi bool) error {
	if set || !in.state.flags.Nounset {
		return nil
	}
	if multi || name == "@" || name == "*" {
		return nil
	}
	return &NounsetError{Name: name}
}

// valsToFrags renders parameter values as fragments, inserting field breaks
// between multi values.
func valsToFrags(vals []string, multi bool, quoted bool) []frag {
	if !multi {
		if len(vals) == 0 {
			return []frag{{text: "", quoted: quoted}}
		}
		return []frag{{text: vals[0], quoted: quoted}}
	}
	var frags []frag
	for i, v := range vals {
		if i > 0 {
			frags = append(frags, frag{brk: true})
		}
		frags = append(frags, frag{text: v, quoted: quoted})
	}
	return frags
}

// substring implements ${var:off[:len]}.
func (in *Interp) substring(vals []string, multi bool, raw string) ([]string, error) {
	parts := splitSubstring(raw)
	off, err := in.evalArith(parts[0])
	if err != nil {
		return nil, err
	}
	hasLen := len(parts) > 1
	var length int64
	if hasLen {
		length, err = in.evalArith(parts[1])
		if err != nil {
			return nil, err
		}
	}
	if multi {
		n := int64(len(vals))
		start := off
		if start < 0 {
			start += n
		}
		if start < 0 || start > n {
			return []string{}, nil
		}
		end := n
		if hasLen {
			if length < 0 {
				return nil, &expandError{Msg: "bish: substring expression < 0", Code: 1}
			}
			end = start + length
			if end > n {
				end = n
			}
		}
		return vals[start:end], nil
	}
	s := vals[0]
	runes := []rune(s)
	if !isValidUTF8(s) {
		runes = make([]rune, len(s))
		for i := 0; i < len(s); i++ {
			runes[i] = rune(s[i])
		}
	}
	n := int64(len(runes))
	start := off
	if start < 0 {
		start += n
	}
	if start < 0 || start > n {
		return []string{""}, nil
	}
	end := n
	if hasLen {
		if length < 0 {
			end = n + length
			if end < start {
				return nil, &expandError{Msg: "bish: substring expression < 0", Code: 1}
			}
		} else {
			end = start + length
			if end > n {
				end = n
			}
		}
	}
	return []string{string(runes[start:end])}, nil
}

// splitSubstring splits "off:len" on a top-level colon (parens guard
// ternaries).
func splitSubstring(raw string) []string {
	depth := 0
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '(':
			depth++
		case ')':
			depth--
		case '?':
			// a ternary's colon is not a length separator
			depth++
		case ':':
			if depth == 0 {
				return []string{raw[:i], raw[i+1:]}
			}
			depth--
		}
	}
	return []string{raw}
}

// caseModify implements ${var^pat}, ${var^^pat}, ${var,pat}, ${var,,pat}.
func caseModify(s, pat string, upper, allChars bool, opts patternOpts) string {
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && !allChars {
			break
		}
		if !matchPattern(pat, string(r), opts) {
			continue
		}
		if upper {
			runes[i] = unicode.ToUpper(r)
		} else {
			runes[i] = unicode.ToLower(r)
		}
	}
	return string(runes)
}

func (in *Interp) patternOpts() patternOpts {
	return patternOpts{
		extglob: in.state.shopt["extglob"],
		nocase:  false,
	}
}

// splitFields applies IFS word splitting: only unquoted fragments split;
// quoted fragments glue into the surrounding field.
type fieldAcc struct {
	raw       strings.Builder // text after quote removal
	pattern   strings.Builder // same text with quoted bytes escaped
	hasQuoted bool
	started   bool
}

func (in *Interp) splitFields(frags []frag) []pendingField {
	ifs := in.state.IFS()
	var fields []pendingField
	cur := &fieldAcc{}
	emit := func() {
		if cur.started || cur.hasQuoted {
			fields = append(fields, pendingField{raw: cur.raw.String(), pattern: cur.pattern.String()})
		}
		cur = &fieldAcc{}
	}
	for _, f := range frags {
		if f.brk {
			emit()
			continue
		}
		if f.quoted {
			cur.hasQuoted = true
			cur.raw.WriteString(f.text)
			cur.pattern.WriteString(escapePatternText(f.text))
			continue
		}
		if ifs == "" {
			if f.text != "" {
				cur.started = true
			}
			cur.raw.WriteString(f.text)
			cur.pattern.WriteString(f.text)
			continue
		}
		isWsSep := func(c byte) bool {
			return (c == ' ' || c == '\t' || c == '\n') && strings.IndexByte(ifs, c) >= 0
		}
		isHardSep := func(c byte) bool {
			return strings.IndexByte(ifs, c) >= 0 && !isWsSep(c)
		}
		i := 0
		for i < len(f.text) {
			c := f.text[i]
			if strings.IndexByte(ifs, c) < 0 {
				cur.started = true
				cur.raw.WriteByte(c)
				cur.pattern.WriteByte(c)
				i++
				continue
			}
			// Whitespace runs collapse into one separator; a hard (non-
			// whitespace) IFS byte always terminates a field, empty or not,
			// and absorbs surrounding whitespace.
			hard := isHardSep(c)
			if cur.started || cur.hasQuoted {
				emit()
			} else if hard {
				fields = append(fields, pendingField{})
			}
			i++
			for i < len(f.text) && isWsSep(f.text[i]) {
				i++
			}
			if !hard && i < len(f.text) && isHardSep(f.text[i]) {
				i++
				for i < len(f.text) && isWsSep(f.text[i]) {
					i++
				}
			}
		}
	}
	emit()
	return fields
}

type pendingField struct {
	raw     string
	pattern string
}

// globOneField applies pathname expansion to one field.
func (in *Interp) globOneField(f pendingField) ([]string, error) {
	if in.state.flags.Noglob {
		return []string{f.raw}, nil
	}
	matches, had, err := in.globField(f.pattern)
	if err != nil {
		return nil, err
	}
	if !had {
		return []string{f.raw}, nil
	}
	if len(matches) == 0 {
		if in.state.shopt["failglob"] {
			return nil, &expandError{Msg: "bish: no match: " + f.raw, Code: 1}
		}
		if in.state.shopt["nullglob"] {
			return nil, nil
		}
		return []string{f.raw}, nil
	}
	return matches, nil
}
