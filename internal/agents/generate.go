package agents

import (
	"context"
	"fmt"

	"github.com/geneacademy/geneacademy/internal/llm"
	"github.com/geneacademy/geneacademy/internal/prompts"
)

// Generator expands the summary into full ebook content, honoring the
// reader's optional instructions.
type Generator struct {
	client llm.Client
}

// NewGenerator returns the generate stage backed by client.
func NewGenerator(client llm.Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Name() string { return StageGenerate }

func (g *Generator) Run(ctx context.Context, in StageInput) (*StageOutput, error) {
	prompt := prompts.Format(prompts.MustGet("agents.json", "generate"), map[string]string{
		"Summary":    in.Summary,
		"UserPrompt": in.UserPrompt,
	})

	text, err := g.client.Generate(ctx, prompt, llm.TierStandard, 3000)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	return &StageOutput{Text: text}, nil
}
