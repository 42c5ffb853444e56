// Package agents implements the five LLM-backed stages of the content pipeline.
// Each agent is a stateless transformation that issues exactly one model call;
// the pipeline coordinator owns sequencing and branching.
package agents

import "context"

// Stage names as persisted in stage results and progress events.
const (
	StageSummarize = "summarize"
	StageGenerate  = "generate"
	StageReview    = "review"
	StageRevise    = "revise"
	StageEnhance   = "enhance"
)

// StageInput bundles the accumulated session context handed to an agent.
// Agents read only the fields relevant to them.
type StageInput struct {
	OriginalText string // extracted document text
	Summary      string // summarize output
	Content      string // current generated content
	UserPrompt   string // optional free-text instructions from the reader
	Feedback     string // review notes, consumed by the revise agent
}

// StageOutput is an agent's result. Text carries the produced content; Score
// and Notes are populated by the review agent only.
type StageOutput struct {
	Text  string
	Score int
	Notes string
}

// Stage is the capability the coordinator drives: accepts a StageInput,
// returns a StageOutput or an error. Implementations are swappable in tests.
type Stage interface {
	Name() string
	Run(ctx context.Context, in StageInput) (*StageOutput, error)
}
