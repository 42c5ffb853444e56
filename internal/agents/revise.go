package agents

import (
	"context"
	"fmt"

	"github.com/geneacademy/geneacademy/internal/llm"
	"github.com/geneacademy/geneacademy/internal/prompts"
)

// Reviser applies review feedback to the generated content, producing a new
// content version. The pipeline runs it at most once per session.
type Reviser struct {
	client llm.Client
}

// NewReviser returns the revise stage backed by client.
func NewReviser(client llm.Client) *Reviser {
	return &Reviser{client: client}
}

func (r *Reviser) Name() string { return StageRevise }

func (r *Reviser) Run(ctx context.Context, in StageInput) (*StageOutput, error) {
	prompt := prompts.Format(prompts.MustGet("agents.json", "revise"), map[string]string{
		"Content":  llm.Clip(in.Content, reviseInputLimit),
		"Feedback": in.Feedback,
	})

	text, err := r.client.Generate(ctx, prompt, llm.TierStandard, 2500)
	if err != nil {
		return nil, fmt.Errorf("revise: %w", err)
	}
	return &StageOutput{Text: text}, nil
}
