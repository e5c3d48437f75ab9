package detect

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Ratio scores the similarity of a and b on a 0-100 scale from their
// Levenshtein distance normalized by the longer string. Identical strings
// score 100.
func Ratio(a, b string) float64 {
	if a == b {
		return 100
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 100 * (1 - float64(dist)/float64(maxLen))
}

// BestMatch returns the index and score of the candidate most similar to s.
// Ties keep the earliest candidate. ok is false when candidates is empty.
func BestMatch(s string, candidates []string) (idx int, score float64, ok bool) {
	idx = -1
	for i, c := range candidates {
		r := Ratio(s, c)
		if idx < 0 || r > score {
			idx, score = i, r
		}
	}
	return idx, score, idx >= 0
}
