package util

import (
	"strings"
	"unicode"
)

// ContainsFuzzy reports whether text contains word exactly, as a
// substring, or as a token within edit distance 1. Short words (less
// than 4 runes) must match exactly to keep false positives down.
func ContainsFuzzy(text, word string) bool {
	text = strings.ToLower(text)
	word = strings.ToLower(word)
	if word == "" {
		return false
	}

	if strings.Contains(text, word) {
		return true
	}

	if len([]rune(word)) < 4 {
		return false
	}

	for _, token := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if EditDistance(token, word) <= 1 {
			return true
		}
	}

	return false
}

// EditDistance is the Damerau-Levenshtein distance between a and b.
func EditDistance(a, b string) int {
	ar, br := []rune(a), []rune(b)
	la, lb := len(ar), len(br)
	if la == 0 {
		return lb
	}

	if lb == 0 {
		return la
	}

	prev2 := make([]int, lb+1)
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}

			curr[j] = min(curr[j-1]+1, min(prev[j]+1, prev[j-1]+cost))
			if i > 1 && j > 1 && ar[i-1] == br[j-2] && ar[i-2] == br[j-1] {
				curr[j] = min(curr[j], prev2[j-2]+1)
			}
		}

		prev2, prev, curr = prev, curr, prev2
	}

	return prev[lb]
}

func min(a, b int) int {
	if a < b {
		return a
	}

	return b
}
