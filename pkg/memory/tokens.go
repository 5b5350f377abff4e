package memory

// TokenCounter estimates how many LLM tokens a text consumes.
//
// The default implementation is a character-count heuristic; deployments
// with a real tokenizer can inject their own.
type TokenCounter interface {
	// CountTokens returns the estimated token count of text.
	CountTokens(text string) int
}

// heuristicCharsPerToken is the average characters-per-token ratio used by
// the default counter.
const heuristicCharsPerToken = 4

// HeuristicTokenCounter estimates tokens as len(text)/4, rounded up.
type HeuristicTokenCounter struct{}

// CountTokens returns the estimated token count of text.
func (HeuristicTokenCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + heuristicCharsPerToken - 1) / heuristicCharsPerToken
}

// truncateToTokens cuts text to at most limit tokens as measured by counter.
//
// The cut point is found by binary search over rune prefixes, so multi-byte
// characters are never split. Truncation operates on the whole string and
// may cut mid-line; that approximation is accepted by the context
// formatting contract.
func truncateToTokens(text string, limit int, counter TokenCounter) string {
	if limit <= 0 {
		return ""
	}
	if counter.CountTokens(text) <= limit {
		return text
	}

	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if counter.CountTokens(string(runes[:mid])) <= limit {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo])
}
