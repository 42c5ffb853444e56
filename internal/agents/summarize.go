package agents

import (
	"context"
	"fmt"

	"github.com/geneacademy/geneacademy/internal/llm"
	"github.com/geneacademy/geneacademy/internal/prompts"
)

// Input clipping keeps oversized documents inside prompt budgets; the limits
// match the upstream model's practical context for each task.
const (
	summarizeInputLimit = 4000
	reviewInputLimit    = 2000
	reviseInputLimit    = 2000
	enhanceInputLimit   = 2000
)

// Summarizer condenses the uploaded document into a structured study summary.
type Summarizer struct {
	client llm.Client
}

// NewSummarizer returns the summarize stage backed by client.
func NewSummarizer(client llm.Client) *Summarizer {
	return &Summarizer{client: client}
}

func (s *Summarizer) Name() string { return StageSummarize }

// Run issues one model call over the clipped original text.
func (s *Summarizer) Run(ctx context.Context, in StageInput) (*StageOutput, error) {
	prompt := prompts.Format(prompts.MustGet("agents.json", "summarize"), map[string]string{
		"Text": llm.Clip(in.OriginalText, summarizeInputLimit),
	})

	text, err := s.client.Generate(ctx, prompt, llm.TierLite, 2000)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}
	return &StageOutput{Text: text}, nil
}
