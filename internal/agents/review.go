package agents

import (
	"context"
	"fmt"

	"github.com/geneacademy/geneacademy/internal/llm"
	"github.com/geneacademy/geneacademy/internal/prompts"
)

// Reviewer rates the generated content for accuracy against the source
// document. Its score decides whether the pipeline takes the revision branch.
type Reviewer struct {
	client llm.Client
}

// NewReviewer returns the review stage backed by client.
func NewReviewer(client llm.Client) *Reviewer {
	return &Reviewer{client: client}
}

func (r *Reviewer) Name() string { return StageReview }

// Run reviews the content and extracts the accuracy score from the model's
// free-form reply. When no score can be extracted, the raw notes are still
// returned alongside ErrScoreUnparseable so the coordinator can use them as
// revision feedback.
func (r *Reviewer) Run(ctx context.Context, in StageInput) (*StageOutput, error) {
	prompt := prompts.Format(prompts.MustGet("agents.json", "review"), map[string]string{
		"Original":  llm.Clip(in.OriginalText, reviewInputLimit),
		"Generated": llm.Clip(in.Content, reviewInputLimit),
	})

	raw, err := r.client.Generate(ctx, prompt, llm.TierLite, 2000)
	if err != nil {
		return nil, fmt.Errorf("review: %w", err)
	}

	score, err := ExtractScore(raw)
	if err != nil {
		return &StageOutput{Notes: raw}, err
	}
	return &StageOutput{Score: score, Notes: raw}, nil
}
