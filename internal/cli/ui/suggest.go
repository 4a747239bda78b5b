package ui

import (
	"sort"
	"strings"
)

// maxSuggestDistance is the largest edit distance still worth suggesting
const maxSuggestDistance = 3

// SuggestNames returns up to limit candidates closest to target by
// case-insensitive edit distance, nearest first.
func SuggestNames(target string, candidates []string, limit int) []string {
	type match struct {
		name     string
		distance int
	}

	lower := strings.ToLower(target)
	var matches []match
	for _, c := range candidates {
		if d := editDistance(lower, strings.ToLower(c)); d <= maxSuggestDistance {
			matches = append(matches, match{name: c, distance: d})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].distance < matches[j].distance
	})

	out := make([]string, 0, limit)
	for i := 0; i < len(matches) && i < limit; i++ {
		out = append(out, matches[i].name)
	}
	return out
}

// editDistance is the Levenshtein distance between a and b over runes.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
