package util

import (
	"regexp"
	"strings"
)

var reSpaces = regexp.MustCompile(`\s+`)

// NormalizeKey lowercases and collapses whitespace, the form every pattern
// and header comparison runs on.
func NormalizeKey(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	s = strings.ReplaceAll(s, " ", " ")
	return reSpaces.ReplaceAllString(s, " ")
}

// ContainsNormalized reports whether needle occurs in haystack after both
// sides are key-normalized.
func ContainsNormalized(haystack, needle string) bool {
	return strings.Contains(NormalizeKey(haystack), NormalizeKey(needle))
}

func NormalizeCell(input string) string {
	s := strings.ReplaceAll(input, " ", " ")
	return strings.TrimSpace(s)
}
