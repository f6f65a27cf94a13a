package tokenizer

import (
	"math"
	"strings"
)

// EstimateTokens approximates a token count from whitespace-separated words,
// using 1 token ≈ 0.75 words (English). Used whenever a backend does not
// report exact counts. For exact counts, use the provider's own tokenizer.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	n := int(math.Round(float64(words) / 0.75))
	if n < 1 {
		return 1
	}
	return n
}
