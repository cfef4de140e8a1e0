package bish

import (
	"strings"
	"unicode/utf8"
)

// Values, arguments and I/O are byte strings end to end: Go strings hold the
// raw bytes (including non-UTF-8 sequences from $'\xff') and decoding to text
// happens only in commands that need it.

// trimTrailingNewlines strips trailing newlines, as command substitution
// does.
func trimTrailingNewlines(s string) string {
	return strings.TrimRight(s, "\n")
}

// isValidUTF8 reports whether s round-trips as UTF-8 text.
func isValidUTF8(s string) bool {
	return utf8.ValidString(s)
}
