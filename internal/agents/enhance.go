package agents

import (
	"context"
	"fmt"

	"github.com/geneacademy/geneacademy/internal/llm"
	"github.com/geneacademy/geneacademy/internal/prompts"
)

// Enhancer adds background material, applications, and further reading to the
// final content. It only runs when the session requested enhancement.
type Enhancer struct {
	client llm.Client
}

// NewEnhancer returns the enhance stage backed by client.
func NewEnhancer(client llm.Client) *Enhancer {
	return &Enhancer{client: client}
}

func (e *Enhancer) Name() string { return StageEnhance }

func (e *Enhancer) Run(ctx context.Context, in StageInput) (*StageOutput, error) {
	prompt := prompts.Format(prompts.MustGet("agents.json", "enhance"), map[string]string{
		"Content": llm.Clip(in.Content, enhanceInputLimit),
	})

	text, err := e.client.Generate(ctx, prompt, llm.TierStandard, 2500)
	if err != nil {
		return nil, fmt.Errorf("enhance: %w", err)
	}
	return &StageOutput{Text: text}, nil
}
