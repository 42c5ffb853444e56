// Package llm provides the rate-limited client for the upstream language model API.
package llm

import "time"

// ModelTier selects the capability level used for a call.
type ModelTier string

const (
	// TierLite is for extraction and review tasks.
	TierLite ModelTier = "lite"
	// TierStandard is for long-form content generation.
	TierStandard ModelTier = "standard"
)

// Config holds model selection and call behavior.
type Config struct {
	Models      map[ModelTier]string
	Temperature float32
	// CallTimeout bounds a single upstream call. Exceeding it surfaces as an
	// UpstreamError of kind timeout.
	CallTimeout time.Duration
}

// DefaultConfig returns the default Gemini model mapping.
func DefaultConfig() *Config {
	return &Config{
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
		},
		Temperature: 0.7,
		CallTimeout: 90 * time.Second,
	}
}

// Model returns the model name for a tier, falling back to the lite tier.
func (c *Config) Model(tier ModelTier) string {
	if m, ok := c.Models[tier]; ok {
		return m
	}
	return c.Models[TierLite]
}
