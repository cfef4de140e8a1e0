package bish

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bish/parser"
)

func wordFromLiteral(s string) *parser.Word {
	return &parser.Word{Parts: []parser.WordPart{&parser.LiteralPart{Text: s}}}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pat   string
		s     string
		opts  patternOpts
		match bool
	}{
		{"*", "anything", patternOpts{}, true},
		{"*", "", patternOpts{}, true},
		{"a*", "abc", patternOpts{}, true},
		{"a*", "bac", patternOpts{}, false},
		{"?", "x", patternOpts{}, true},
		{"?", "xy", patternOpts{}, false},
		{"a?c", "abc", patternOpts{}, true},
		{"[abc]", "b", patternOpts{}, true},
		{"[abc]", "d", patternOpts{}, false},
		{"[!abc]", "d", patternOpts{}, true},
		{"[a-z]", "m", patternOpts{}, true},
		{"[[:digit:]]", "5", patternOpts{}, true},
		{"[[:digit:]]", "x", patternOpts{}, false},
		{`\*`, "*", patternOpts{}, true},
		{`\*`, "x", patternOpts{}, false},
		{"*.txt", "file.txt", patternOpts{}, true},
		{"*.txt", "file.log", patternOpts{}, false},
		{"FILE", "file", patternOpts{nocase: true}, true},
		{"@(a|b)", "a", patternOpts{extglob: true}, true},
		{"@(a|b)", "c", patternOpts{extglob: true}, false},
		{"+(ab)", "abab", patternOpts{extglob: true}, true},
		{"?(x)y", "y", patternOpts{extglob: true}, true},
		{"?(x)y", "xy", patternOpts{extglob: true}, true},
		{"*(a)", "", patternOpts{extglob: true}, true},
		{"!(foo)", "bar", patternOpts{extglob: true}, true},
		{"!(foo)", "foo", patternOpts{extglob: true}, false},
		{"!(*.txt)", "a.log", patternOpts{extglob: true}, true},
		{"!(*.txt)", "a.txt", patternOpts{extglob: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.pat+"/"+tt.s, func(t *testing.T) {
			assert.Equal(t, tt.match, matchPattern(tt.pat, tt.s, tt.opts))
		})
	}
}

func TestTrimPattern(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		pat     string
		longest bool
		prefix  bool
		want    string
	}{
		{"shortest prefix", "a/b/c", "*/", false, true, "b/c"},
		{"longest prefix", "a/b/c", "*/", true, true, "c"},
		{"shortest suffix", "a.tar.gz", ".*", false, false, "a.tar"},
		{"longest suffix", "a.tar.gz", ".*", true, false, "a"},
		{"no match unchanged", "hello", "x*", true, true, "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			if tt.prefix {
				got = trimPatternPrefix(tt.value, tt.pat, tt.longest, patternOpts{})
			} else {
				got = trimPatternSuffix(tt.value, tt.pat, tt.longest, patternOpts{})
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReplacePattern(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		pat    string
		rep    string
		all    bool
		anchor byte
		want   string
	}{
		{"first only", "aaa", "a", "b", false, 0, "baa"},
		{"all", "aaa", "a", "b", true, 0, "bbb"},
		{"prefix anchored", "aba", "a", "X", false, '#', "Xba"},
		{"suffix anchored", "aba", "a", "X", false, '%', "abX"},
		{"glob in pattern", "file.txt", "*.txt", "done", false, 0, "done"},
		{"dollar in replacement is literal", "x", "x", "$1", false, 0, "$1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := replacePattern(tt.value, tt.pat, tt.rep, tt.all, tt.anchor, patternOpts{})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBraceExpandAtomLevel(t *testing.T) {
	expand := func(src string) []string {
		w := wordFromLiteral(src)
		words, err := braceExpandWord(w)
		if err != nil {
			t.Fatalf("braceExpandWord(%q): %v", src, err)
		}
		var out []string
		for _, rw := range words {
			lit, _ := rw.Lit()
			out = append(out, lit)
		}
		return out
	}

	assert.Equal(t, []string{"ab", "ac"}, expand("a{b,c}"))
	assert.Equal(t, []string{"a1x", "a2x"}, expand("a{1,2}x"))
	assert.Equal(t, []string{"1", "2", "3"}, expand("{1..3}"))
	assert.Equal(t, []string{"{}"}, expand("{}"))
	assert.Equal(t, []string{"plain"}, expand("plain"))
	assert.Equal(t, []string{"a", "b1", "b2"}, expand("{a,b{1,2}}"))
}

func TestBraceRangeErrors(t *testing.T) {
	w := wordFromLiteral("{a..Z}")
	_, err := braceExpandWord(w)
	assert.Error(t, err)
}
