package bish

import (
	"fmt"
	"strconv"
	"strings"

	"bish/parser"
)

// Brace expansion is purely lexical and runs before any variable lookup.
// Words are flattened into atoms: unquoted literal characters take part in
// the brace syntax, every other part is opaque and travels intact inside an
// alternative.

type braceAtom struct {
	ch   byte
	part parser.WordPart // non-nil for opaque atoms
}

func wordToAtoms(w *parser.Word) []braceAtom {
	var atoms []braceAtom
	for _, p := range w.Parts {
		if lit, ok := p.(*parser.LiteralPart); ok {
			for i := 0; i < len(lit.Text); i++ {
				atoms = append(atoms, braceAtom{ch: lit.Text[i]})
			}
			continue
		}
		atoms = append(atoms, braceAtom{part: p})
	}
	return atoms
}

func atomsToWord(atoms []braceAtom) *parser.Word {
	w := &parser.Word{}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			w.Parts = append(w.Parts, &parser.LiteralPart{Text: lit.String()})
			lit.Reset()
		}
	}
	for _, a := range atoms {
		if a.part != nil {
			flush()
			w.Parts = append(w.Parts, a.part)
			continue
		}
		lit.WriteByte(a.ch)
	}
	flush()
	if len(w.Parts) == 0 {
		w.Parts = append(w.Parts, &parser.LiteralPart{Text: ""})
	}
	return w
}

// braceExpandWord returns the brace expansion of w, or [w] when the word has
// no expandable brace.
func braceExpandWord(w *parser.Word) ([]*parser.Word, error) {
	atoms := wordToAtoms(w)
	results, err := braceExpandAtoms(atoms)
	if err != nil {
		return nil, err
	}
	words := make([]*parser.Word, 0, len(results))
	for _, r := range results {
		words = append(words, atomsToWord(r))
	}
	return words, nil
}

func braceExpandAtoms(atoms []braceAtom) ([][]braceAtom, error) {
	open, closeIdx, alts, rangeText := findBrace(atoms)
	if open < 0 {
		return [][]braceAtom{atoms}, nil
	}
	prefix := atoms[:open]
	suffix := atoms[closeIdx+1:]

	var expansions [][]braceAtom
	if rangeText != "" {
		items, err := expandRange(rangeText)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			var a []braceAtom
			for i := 0; i < len(it); i++ {
				a = append(a, braceAtom{ch: it[i]})
			}
			expansions = append(expansions, a)
		}
	} else {
		expansions = alts
	}

	var out [][]braceAtom
	for _, alt := range expansions {
		merged := make([]braceAtom, 0, len(prefix)+len(alt)+len(suffix))
		merged = append(merged, prefix...)
		merged = append(merged, alt...)
		merged = append(merged, suffix...)
		sub, err := braceExpandAtoms(merged)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

// findBrace locates the first expandable {…}: either comma alternatives or
// a range. Returns open=-1 when none exists.
func findBrace(atoms []braceAtom) (open, close int, alts [][]braceAtom, rangeText string) {
	for i := 0; i < len(atoms); i++ {
		if atoms[i].part != nil || atoms[i].ch != '{' {
			continue
		}
		depth := 0
		var commas []int
		literalOnly := true
		for j := i + 1; j < len(atoms); j++ {
			a := atoms[j]
			if a.part != nil {
				literalOnly = false
				continue
			}
			switch a.ch {
			case '{':
				depth++
			case '}':
				if depth > 0 {
					depth--
					continue
				}
				if len(commas) > 0 {
					return i, j, splitAtomAlts(atoms[i+1:j], commas, i+1), ""
				}
				if literalOnly {
					text := atomText(atoms[i+1 : j])
					if isRangeText(text) {
						return i, j, nil, text
					}
				}
				// Not expandable; keep scanning for a later brace.
				goto next
			case ',':
				if depth == 0 {
					commas = append(commas, j)
				}
			}
		}
	next:
		continue
	}
	return -1, 0, nil, ""
}

func splitAtomAlts(inner []braceAtom, commas []int, base int) [][]braceAtom {
	var alts [][]braceAtom
	last := 0
	for _, c := range commas {
		rel := c - base
		alts = append(alts, inner[last:rel])
		last = rel + 1
	}
	alts = append(alts, inner[last:])
	return alts
}

func atomText(atoms []braceAtom) string {
	var sb strings.Builder
	for _, a := range atoms {
		if a.part != nil {
			return ""
		}
		sb.WriteByte(a.ch)
	}
	return sb.String()
}

func isRangeText(s string) bool {
	return strings.Contains(s, "..")
}

// expandRange handles {a..z}, {1..10} and {1..10..2}. A range mixing letter
// cases is an error, per the expansion contract.
func expandRange(text string) ([]string, error) {
	parts := strings.Split(text, "..")
	if len(parts) != 2 && len(parts) != 3 {
		return nil, &expandError{Msg: "bish: bad brace range {" + text + "}", Code: 1}
	}
	step := int64(0)
	if len(parts) == 3 {
		n, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return nil, &expandError{Msg: "bish: bad brace range {" + text + "}", Code: 1}
		}
		step = n
	}

	lo, loErr := strconv.ParseInt(parts[0], 10, 64)
	hi, hiErr := strconv.ParseInt(parts[1], 10, 64)
	if loErr == nil && hiErr == nil {
		width := 0
		if padded(parts[0]) || padded(parts[1]) {
			if len(parts[0]) > width {
				width = len(parts[0])
			}
			if len(parts[1]) > width {
				width = len(parts[1])
			}
		}
		return numericRange(lo, hi, step, width), nil
	}

	if len(parts[0]) == 1 && len(parts[1]) == 1 && isAlpha(parts[0][0]) && isAlpha(parts[1][0]) {
		a, b := parts[0][0], parts[1][0]
		if isLower(a) != isLower(b) {
			return nil, &expandError{Msg: "bish: bad brace range {" + text + "}: mixed case", Code: 1}
		}
		return alphaRange(a, b, step), nil
	}
	return nil, &expandError{Msg: "bish: bad brace range {" + text + "}", Code: 1}
}

func padded(s string) bool {
	s = strings.TrimPrefix(s, "-")
	return len(s) > 1 && s[0] == '0'
}

func numericRange(lo, hi, step int64, width int) []string {
	if step == 0 {
		step = 1
	}
	if step < 0 {
		step = -step
	}
	var out []string
	format := func(n int64) string {
		if width > 0 {
			return fmt.Sprintf("%0*d", width, n)
		}
		return strconv.FormatInt(n, 10)
	}
	if lo <= hi {
		for n := lo; n <= hi; n += step {
			out = append(out, format(n))
		}
	} else {
		for n := lo; n >= hi; n -= step {
			out = append(out, format(n))
		}
	}
	return out
}

func alphaRange(a, b byte, step int64) []string {
	if step == 0 {
		step = 1
	}
	if step < 0 {
		step = -step
	}
	var out []string
	if a <= b {
		for c := int64(a); c <= int64(b); c += step {
			out = append(out, string(byte(c)))
		}
	} else {
		for c := int64(a); c >= int64(b); c -= step {
			out = append(out, string(byte(c)))
		}
	}
	return out
}

func isAlpha(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }
func isLower(c byte) bool { return c >= 'a' && c <= 'z' }
