package search

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize prepares banner copy for substring matching: NFKC (which turns
// non-breaking spaces into plain ones), Unicode case folding, and whitespace
// runs collapsed to a single space.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// ContainsAll reports whether the normalized text contains every normalized phrase.
// Blank phrases are ignored.
func ContainsAll(text string, phrases ...string) bool {
	haystack := Normalize(text)
	for _, p := range phrases {
		needle := Normalize(p)
		if needle == "" {
			continue
		}
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}
