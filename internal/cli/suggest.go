package cli

import "strings"

// suggestClosest returns the choice nearest to input by edit distance, or ""
// when nothing is close enough to be a plausible typo.
func suggestClosest(input string, choices []string) string {
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" || len(choices) == 0 {
		return ""
	}
	best := ""
	bestDist := 1 << 30
	for _, c := range choices {
		cn := strings.ToLower(c)
		if cn == input {
			return c
		}
		d := levenshtein([]rune(input), []rune(cn))
		if d < bestDist {
			bestDist = d
			best = c
		}
	}
	limit := 2
	if len([]rune(input)) >= 8 {
		limit = 3
	}
	if bestDist <= limit {
		return best
	}
	return ""
}

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
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
