package hyde

import (
	"strings"
)

// sophisticatedConnectives are discourse markers whose presence is treated
// as a (weak) signal of well-reasoned, non-boilerplate prose.
var sophisticatedConnectives = []string{
	"however", "therefore", "furthermore", "nevertheless", "consequently",
	"moreover", "nonetheless", "accordingly", "subsequently",
}

// Score is the deterministic confidence heuristic for a generated
// hypothesis, independent of any LLM call so it can be unit tested without
// one. It returns a value clamped to [0.1, 0.95]; callers apply the
// jitter described in the component design separately, since that jitter is
// randomised and this function must stay pure.
func Score(text, query string) float64 {
	score := 0.3

	length := len(text)
	for _, threshold := range []int{200, 500, 1000} {
		if length > threshold {
			score += 0.05
		}
	}

	if countSentences(text) >= 3 {
		score += 0.1
	}

	words := strings.Fields(text)
	wordCount := len(words)
	switch {
	case wordCount > 200:
		score += 0.15
	case wordCount > 100:
		score += 0.1
	}

	score += 0.25 * keywordOverlapRatio(text, query)

	lowerText := strings.ToLower(text)
	for _, c := range sophisticatedConnectives {
		if strings.Contains(lowerText, c) {
			score += 0.05
			break
		}
	}

	if length < 100 || wordCount < 20 {
		score -= 0.2
	}

	return clampConfidence(score)
}

func clampConfidence(v float64) float64 {
	if v < 0.1 {
		return 0.1
	}
	if v > 0.95 {
		return 0.95
	}
	return v
}

// countSentences returns the number of sentence-ending-punctuated spans of
// at least 10 characters, mirroring the unit-extraction fallback's notion of
// a "well-formed sentence".
func countSentences(text string) int {
	count := 0
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			if len(strings.TrimSpace(text[start:i+1])) >= 10 {
				count++
			}
			start = i + 1
		}
	}
	return count
}

// keywordOverlapRatio returns the fraction of the query's distinct lowercase
// words that also appear among text's distinct lowercase words.
func keywordOverlapRatio(text, query string) float64 {
	queryWords := wordSet(query)
	if len(queryWords) == 0 {
		return 0
	}
	textWords := wordSet(text)

	overlap := 0
	for w := range queryWords {
		if _, ok := textWords[w]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(len(queryWords))
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if w != "" {
			out[w] = struct{}{}
		}
	}
	return out
}
