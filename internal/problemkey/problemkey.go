// Package problemkey normalizes problem identifiers and topic names so that
// "Two Sum", "two-sum" and " two  sum " all refer to the same record.
package problemkey

import (
	"slices"
	"strings"
	"unicode"
)

// Normalize lowercases s, trims it, and joins its words with single hyphens.
// Underscores and runs of whitespace count as word separators.
func Normalize(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return unicode.IsSpace(r) || r == '_' || r == '-'
	})
	return strings.Join(fields, "-")
}

// Topics normalizes every topic, drops empty ones, and removes duplicates
// while keeping first-seen order.
func Topics(topics []string) []string {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		n := Normalize(t)
		if n == "" || slices.Contains(out, n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// SplitTopics parses a comma separated topic list.
func SplitTopics(s string) []string {
	return Topics(strings.Split(s, ","))
}
