// Package match implements the fuzzy identity matching engine: name and
// phone normalization, similarity scoring, candidate indexing, and match
// resolution against the canonical driver population.
package match

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stopWords lists name particles ignored in the comparison form so that
// "Juan de la Cruz" and "Juan Cruz" compare equal.
var stopWords = map[string]bool{
	"de": true, "la": true, "del": true,
	"los": true, "las": true, "y": true, "e": true,
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// accentFolder decomposes accented characters and strips the combining
// marks, mapping á é í ó ú ü ñ (and uppercase forms) to plain ASCII.
var accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName canonicalizes a person name: lowercase, accents folded to
// ASCII, whitespace collapsed and trimmed. Empty or blank input yields "".
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = strings.ToLower(name)
	if folded, _, err := transform.String(accentFolder, name); err == nil {
		name = folded
	}

	name = whitespaceRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// NormalizeNameForComparison produces the order-insensitive comparison form:
// the normalized name split into words, with stop-words and single-character
// words dropped, the remainder sorted alphabetically and rejoined. Word
// order and particle differences become irrelevant, so "Juan Perez Lopez"
// and "Lopez Juan Perez" compare equal.
func NormalizeNameForComparison(name string) string {
	name = NormalizeName(name)
	if name == "" {
		return ""
	}

	words := ComparisonWords(name)
	sort.Strings(words)
	return strings.Join(words, " ")
}

// ComparisonWords returns the significant words of an already-normalized
// name: stop-words and words of length <= 1 removed, original order kept.
func ComparisonWords(normalized string) []string {
	fields := strings.Fields(normalized)
	words := make([]string, 0, len(fields))
	for _, w := range fields {
		if len(w) <= 1 || stopWords[w] {
			continue
		}
		words = append(words, w)
	}
	return words
}

// NormalizePhone strips whitespace, parentheses, hyphens, and a leading plus
// sign from a phone number. Country codes are not stripped here; the
// similarity scorer tolerates them by comparing trailing digits only.
func NormalizePhone(phone string) string {
	phone = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return -1
		case r == '(' || r == ')' || r == '-':
			return -1
		}
		return r
	}, phone)
	return strings.TrimPrefix(phone, "+")
}
