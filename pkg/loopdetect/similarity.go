// Package loopdetect flags repetitive multi-agent conversations. It is a
// pure evaluation over recorded team steps: a safety valve against runaway
// token consumption, not a correctness mechanism.
package loopdetect

import (
	"strings"
	"unicode"
)

// normalize strips all whitespace and folds case before comparison, so
// that formatting-only differences do not count as content evolution.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Similarity returns a normalized edit-distance score in [0,1] between the
// two strings after whitespace stripping and case folding. Identical inputs
// score 1.0. Two empty inputs score 0.0 so the ratio never divides by zero.
func Similarity(a, b string) float64 {
	na, nb := normalize(a), normalize(b)
	if na == nb {
		if na == "" {
			return 0.0
		}
		return 1.0
	}
	ra, rb := []rune(na), []rune(nb)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 0.0
	}
	return 1.0 - float64(levenshtein(ra, rb))/float64(longest)
}

// levenshtein computes the edit distance between two rune slices using a
// two-row dynamic program.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
