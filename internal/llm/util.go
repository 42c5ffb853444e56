package llm

// EstimateTokens gives a rough token count for logging and cost estimates.
// Four characters per token is close enough for English prose.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// Clip truncates text to at most n bytes, cutting at a rune boundary. Agents
// use it to keep oversized documents inside prompt budgets.
func Clip(text string, n int) string {
	if len(text) <= n {
		return text
	}
	clipped := text[:n]
	// Back up to a valid rune boundary.
	for len(clipped) > 0 && clipped[len(clipped)-1]&0xC0 == 0x80 {
		clipped = clipped[:len(clipped)-1]
	}
	return clipped
}
