package suggest

import (
	"sort"
	"strings"
	"unicode"
)

// Scoring constants for the fuzzy fallback matcher.
const (
	firstCharMatchBonus            = 15
	adjacentMatchBonus             = 10
	separatorMatchBonus            = 12
	camelCaseMatchBonus            = 12
	unmatchedLeadingCharPenalty    = -3
	maxUnmatchedLeadingCharPenalty = -9

	// minFuzzyLength is the minimum input length before a fuzzy
	// correction is attempted.
	minFuzzyLength = 3
)

// fuzzyMatcher suggests a corrected prefix for a potentially misspelled
// input, based on the indexed search variants and their weights.
type fuzzyMatcher struct {
	words   []string
	weights map[string]int64
}

func newFuzzyMatcher(weights map[string]int64) *fuzzyMatcher {
	words := make([]string, 0, len(weights))
	for w := range weights {
		words = append(words, w)
	}
	// deterministic scan order so equal scores resolve stably
	sort.Strings(words)
	return &fuzzyMatcher{words: words, weights: weights}
}

type fuzzyMatch struct {
	str            string
	score          int
	matchedIndexes []int
}

// correct returns the most likely corrected variant for input, and whether a
// correction was made. Inputs shorter than minFuzzyLength are left alone.
func (fm *fuzzyMatcher) correct(input string) (string, bool) {
	if len(input) < minFuzzyLength {
		return input, false
	}
	lower := strings.ToLower(input)
	if _, exists := fm.weights[lower]; exists {
		return lower, false
	}

	matches := fm.findMatches(lower)
	for i := range matches {
		if w := fm.weights[matches[i].str]; w > 0 {
			// log-ish scale so weight never dominates the char score
			bonus := int(w / 10)
			if bonus > 30 {
				bonus = 30
			}
			matches[i].score += bonus
		}
		lengthDiff := len(matches[i].str) - len(input)
		if lengthDiff < 0 {
			lengthDiff = -lengthDiff
		}
		matches[i].score -= lengthDiff * 2
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	if len(matches) > 0 {
		return matches[0].str, true
	}
	return input, false
}

func (fm *fuzzyMatcher) findMatches(pattern string) []fuzzyMatch {
	if pattern == "" {
		return nil
	}

	var matches []fuzzyMatch
	patternRunes := []rune(pattern)

	for _, candidate := range fm.words {
		// cheap cut: require a matching first character
		if len(pattern) > 1 && len(candidate) > 0 && pattern[0] != candidate[0] {
			continue
		}

		match := fuzzyMatch{
			str:            candidate,
			matchedIndexes: make([]int, 0, len(patternRunes)),
		}
		if runFuzzyMatch(patternRunes, candidate, &match) {
			match.score += len(match.matchedIndexes) - len(candidate)
			matches = append(matches, match)
		}
	}
	return matches
}

// runFuzzyMatch tests if pattern matches the candidate string and calculates
// a score. Returns true if there's a match.
func runFuzzyMatch(pattern []rune, candidate string, match *fuzzyMatch) bool {
	candidateRunes := []rune(candidate)

	var last rune
	var lastIndex int
	var currAdjacentMatchBonus int
	patternIndex := 0
	bestScore := -1
	matchedIndex := -1

	for i := 0; i < len(candidateRunes); i++ {
		curr := candidateRunes[i]

		if equalFold(curr, pattern[patternIndex]) {
			score := 0
			if i == 0 {
				score += firstCharMatchBonus
			}
			if i > 0 && unicode.IsLower(last) && unicode.IsUpper(curr) {
				score += camelCaseMatchBonus
			}
			if i > 0 && isSeparator(last) {
				score += separatorMatchBonus
			}
			if len(match.matchedIndexes) > 0 {
				lastMatch := match.matchedIndexes[len(match.matchedIndexes)-1]
				bonus := 0
				if lastIndex == lastMatch {
					bonus = currAdjacentMatchBonus*2 + adjacentMatchBonus
					currAdjacentMatchBonus = bonus
				} else {
					currAdjacentMatchBonus = 0
				}
				score += bonus
			}

			if score > bestScore {
				bestScore = score
				matchedIndex = i
			}

			// commit the best position unless the same pattern rune could
			// also match the next candidate rune (repeated letters); in
			// that case keep scanning for the higher scoring spot
			var nextCandidateRune rune
			if i < len(candidateRunes)-1 {
				nextCandidateRune = candidateRunes[i+1]
			}

			if nextCandidateRune == 0 || !equalFold(pattern[patternIndex], nextCandidateRune) {
				if matchedIndex > -1 {
					if len(match.matchedIndexes) == 0 {
						penalty := matchedIndex * unmatchedLeadingCharPenalty
						bestScore += max(penalty, maxUnmatchedLeadingCharPenalty)
					}
					match.score += bestScore
					match.matchedIndexes = append(match.matchedIndexes, matchedIndex)
					bestScore = -1
					patternIndex++
				}
			}
		}

		last = curr
		lastIndex = i

		if patternIndex >= len(pattern) {
			return true
		}
	}
	return false
}

func equalFold(a, b rune) bool {
	return unicode.ToLower(a) == unicode.ToLower(b)
}

func isSeparator(r rune) bool {
	switch r {
	case ' ', '-', '_', '.', '/', '\\':
		return true
	}
	return false
}
