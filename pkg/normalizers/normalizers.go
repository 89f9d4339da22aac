// Package normalizers provides the text normalization used by
// similarity scoring. Title, description, and location values are
// normalized before comparison so punctuation, casing, and spacing
// differences never count against a match.
package normalizers

import (
	"strings"
	"unicode"
)

// Normalizer transforms a raw string into its comparable form.
type Normalizer func(string) string

var registry = map[string]Normalizer{
	"lowercase":           Lowercase,
	"uppercase":           Uppercase,
	"trim":                Trim,
	"remove_punctuation":  RemovePunctuation,
	"collapse_whitespace": CollapseWhitespace,
	"alphanumeric":        Alphanumeric,
}

// Register adds a named normalizer. Existing names are overwritten.
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name.
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply runs the named normalizer; unknown names pass the value through.
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// NormalizeText is the canonical chain for free-text comparison:
// lowercased, punctuation stripped, whitespace collapsed.
func NormalizeText(s string) string {
	return CollapseWhitespace(RemovePunctuation(Lowercase(s)))
}

// Tokenize splits normalized text into its whitespace-delimited tokens.
func Tokenize(s string) []string {
	return strings.Fields(NormalizeText(s))
}

func Lowercase(s string) string {
	return strings.ToLower(s)
}

func Uppercase(s string) string {
	return strings.ToUpper(s)
}

func Trim(s string) string {
	return strings.TrimSpace(s)
}

// RemovePunctuation replaces punctuation and symbols with spaces so
// token boundaries survive ("tap,leak" becomes two tokens, not one).
func RemovePunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CollapseWhitespace reduces whitespace runs to single spaces and trims
// the ends.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Alphanumeric keeps only letters and digits.
func Alphanumeric(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
