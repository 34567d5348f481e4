package words

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize case-folds s, strips diacritics and collapses whitespace.
func Normalize(s string) string {
	// Transformers are stateful, build them per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, cases.Fold().String(s))
	if err != nil {
		out = strings.ToLower(s)
	}
	return strings.Join(strings.Fields(out), " ")
}

// Tokens splits normalized text on anything that is not a letter, digit or
// apostrophe.
func Tokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// ContainsAny returns the words that occur as substrings of text. Both sides
// must already be normalized.
func ContainsAny(text string, words []string) []string {
	var hits []string
	for _, w := range words {
		if w != "" && strings.Contains(text, w) {
			hits = append(hits, w)
		}
	}
	return hits
}

// HasPhrase reports whether any phrase occurs in text on token boundaries.
func HasPhrase(text string, phrases []string) bool {
	padded := " " + strings.Join(Tokens(text), " ") + " "
	for _, p := range phrases {
		pt := Tokens(p)
		if len(pt) == 0 {
			continue
		}
		if strings.Contains(padded, " "+strings.Join(pt, " ")+" ") {
			return true
		}
	}
	return false
}

// CountWords returns the number of tokens in text.
func CountWords(text string) int {
	return len(Tokens(text))
}
