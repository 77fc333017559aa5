package types

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldName normalizes a display name for identity comparison: trimmed,
// lowercased, diacritics stripped, inner whitespace collapsed. City and
// country matching and display-name uniqueness all key on this form, so
// "São Paulo", "sao paulo" and " SAO  PAULO " are the same name.
func FoldName(s string) string {
	// Decompose, drop combining marks, recompose. The transformer carries
	// state, so build it per call rather than sharing one across goroutines.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// SquashName normalizes a name by lowercasing and stripping all whitespace.
// The country alias table is keyed by this form, so "United States of
// America" and "unitedstatesofamerica" collide.
func SquashName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "")
}

// CanonicalizeEmail normalizes an email address for identity comparison and
// storage: trimmed and lowercased.
func CanonicalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
