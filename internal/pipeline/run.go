// Package pipeline provides the high-level orchestration for the content
// generation process: summarize, generate, review, an optional single
// revision pass, and optional enhancement.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/geneacademy/geneacademy/internal/agents"
	"github.com/geneacademy/geneacademy/internal/events"
	"github.com/geneacademy/geneacademy/internal/llm"
	"github.com/geneacademy/geneacademy/internal/store"
)

// AccuracyThreshold is the review score below which the pipeline runs the
// automatic revision pass.
const AccuracyThreshold = 85

// Store is the slice of persistence the coordinator needs
type Store interface {
	SetSessionStatus(ctx context.Context, sessionID uuid.UUID, status string) error
	AppendStageResult(ctx context.Context, sessionID uuid.UUID, stage, output string, accuracyScore *int) (*store.StageResult, error)
	SaveContent(ctx context.Context, sessionID uuid.UUID, content string, accuracyScore *int) (*store.GeneratedContent, error)
	SetContentScore(ctx context.Context, sessionID uuid.UUID, accuracyScore int) error
}

// Notifier publishes progress events for a session
type Notifier interface {
	Publish(ctx context.Context, sessionID uuid.UUID, stage string, payload events.Payload) error
}

// Saver mirrors final content outside the database. Optional.
type Saver interface {
	Save(sessionID uuid.UUID, content string, accuracyScore *int) error
}

// Request carries everything the coordinator needs to run one session
type Request struct {
	SessionID  uuid.UUID
	Text       string
	UserPrompt string
	Enhance    bool
}

// Coordinator drives a session's pipeline run. Each session runs in its own
// goroutine; the coordinator itself holds no per-run state and is safe to
// share.
type Coordinator struct {
	store    Store
	notifier Notifier
	saver    Saver

	summarizer agents.Stage
	generator  agents.Stage
	reviewer   agents.Stage
	reviser    agents.Stage
	enhancer   agents.Stage

	logger *zap.Logger
}

// NewCoordinator wires the five agents against a shared model client
func NewCoordinator(st Store, notifier Notifier, client llm.Client, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		store:      st,
		notifier:   notifier,
		summarizer: agents.NewSummarizer(client),
		generator:  agents.NewGenerator(client),
		reviewer:   agents.NewReviewer(client),
		reviser:    agents.NewReviser(client),
		enhancer:   agents.NewEnhancer(client),
		logger:     logger,
	}
}

// SetSaver attaches an optional local content mirror
func (c *Coordinator) SetSaver(s Saver) { c.saver = s }

// SetStages replaces the agent implementations. Used by tests.
func (c *Coordinator) SetStages(summarizer, generator, reviewer, reviser, enhancer agents.Stage) {
	c.summarizer = summarizer
	c.generator = generator
	c.reviewer = reviewer
	c.reviser = reviser
	c.enhancer = enhancer
}

// Run executes the full pipeline for one session. Any agent or persistence
// error is fatal to the run: the session moves to failed and exactly one
// error event is emitted. Stage writes always precede their completion
// events, so an event implies the data behind it is already retrievable.
func (c *Coordinator) Run(ctx context.Context, req Request) error {
	log := c.logger.With(zap.String("session_id", req.SessionID.String()))
	log.Info("pipeline run started", zap.Bool("enhance", req.Enhance))

	requestCount := 0
	announce := func(message string) error {
		requestCount++
		n := requestCount
		return c.notifier.Publish(ctx, req.SessionID, events.StageLLMProcessing, events.Payload{
			Message:      fmt.Sprintf("%s (Request #%d)", message, n),
			RequestCount: &n,
		})
	}

	// Summarize
	if err := announce("Analyzing document"); err != nil {
		return c.fail(ctx, req.SessionID, log, err)
	}
	summary, err := c.runStage(ctx, req.SessionID, c.summarizer, agents.StageInput{
		OriginalText: req.Text,
	}, nil)
	if err != nil {
		return c.fail(ctx, req.SessionID, log, err)
	}
	if err := c.notifier.Publish(ctx, req.SessionID, events.StageProcessing, events.Payload{
		Message: "Document analyzed, generating content",
	}); err != nil {
		return c.fail(ctx, req.SessionID, log, err)
	}

	// Generate
	if err := announce("Generating content"); err != nil {
		return c.fail(ctx, req.SessionID, log, err)
	}
	content, err := c.runStage(ctx, req.SessionID, c.generator, agents.StageInput{
		OriginalText: req.Text,
		Summary:      summary,
		UserPrompt:   req.UserPrompt,
	}, nil)
	if err != nil {
		return c.fail(ctx, req.SessionID, log, err)
	}
	if _, err := c.store.SaveContent(ctx, req.SessionID, content, nil); err != nil {
		return c.fail(ctx, req.SessionID, log, err)
	}
	if err := c.notifier.Publish(ctx, req.SessionID, events.StageAgentCompleted, events.Payload{
		Message: "Content generated",
	}); err != nil {
		return c.fail(ctx, req.SessionID, log, err)
	}

	// Review. An unparseable score counts as 0 and forces the revision
	// branch; it is not an error from the user's point of view.
	if err := announce("Reviewing content for accuracy"); err != nil {
		return c.fail(ctx, req.SessionID, log, err)
	}
	reviewOut, err := c.reviewer.Run(ctx, agents.StageInput{
		OriginalText: req.Text,
		Content:      content,
	})
	if err != nil && !errors.Is(err, agents.ErrScoreUnparseable) {
		c.publishLLMError(ctx, req.SessionID, err)
		return c.fail(ctx, req.SessionID, log, err)
	}
	score := 0
	feedback := ""
	if reviewOut != nil {
		feedback = reviewOut.Notes
	}
	if err == nil {
		score = reviewOut.Score
	} else {
		log.Warn("review score unparseable, forcing revision", zap.Error(err))
	}
	if _, err := c.store.AppendStageResult(ctx, req.SessionID, c.reviewer.Name(), feedback, &score); err != nil {
		return c.fail(ctx, req.SessionID, log, err)
	}
	// Stamp the score on the draft saved after generation so the current
	// content always carries its review score, revised or not.
	if err := c.store.SetContentScore(ctx, req.SessionID, score); err != nil {
		return c.fail(ctx, req.SessionID, log, err)
	}
	if err := c.notifier.Publish(ctx, req.SessionID, events.StageLLMCompleted, events.Payload{
		Message:       fmt.Sprintf("Accuracy review complete: %d/100", score),
		AccuracyScore: &score,
	}); err != nil {
		return c.fail(ctx, req.SessionID, log, err)
	}

	// Single revision pass below the threshold. The revised content is not
	// re-reviewed; the pre-revision score stays final.
	if score < AccuracyThreshold {
		log.Info("score below threshold, revising",
			zap.Int("score", score), zap.Int("threshold", AccuracyThreshold))
		if err := announce("Revising content to improve accuracy"); err != nil {
			return c.fail(ctx, req.SessionID, log, err)
		}
		revised, err := c.runStage(ctx, req.SessionID, c.reviser, agents.StageInput{
			OriginalText: req.Text,
			Content:      content,
			Feedback:     feedback,
		}, &score)
		if err != nil {
			return c.fail(ctx, req.SessionID, log, err)
		}
		content = revised
		if _, err := c.store.SaveContent(ctx, req.SessionID, content, &score); err != nil {
			return c.fail(ctx, req.SessionID, log, err)
		}
		if err := c.notifier.Publish(ctx, req.SessionID, events.StageAgentCompleted, events.Payload{
			Message: "Content revised",
		}); err != nil {
			return c.fail(ctx, req.SessionID, log, err)
		}
	}

	// Optional enhancement appended to the current content
	if req.Enhance {
		if err := announce("Adding practice questions and extras"); err != nil {
			return c.fail(ctx, req.SessionID, log, err)
		}
		extra, err := c.runStage(ctx, req.SessionID, c.enhancer, agents.StageInput{
			Content: content,
		}, &score)
		if err != nil {
			return c.fail(ctx, req.SessionID, log, err)
		}
		content = content + "\n\n" + extra
		if _, err := c.store.SaveContent(ctx, req.SessionID, content, &score); err != nil {
			return c.fail(ctx, req.SessionID, log, err)
		}
		if err := c.notifier.Publish(ctx, req.SessionID, events.StageContentSaved, events.Payload{
			Message: "Enhanced content saved",
		}); err != nil {
			return c.fail(ctx, req.SessionID, log, err)
		}
	}

	if c.saver != nil {
		if err := c.saver.Save(req.SessionID, content, &score); err != nil {
			// The database copy is authoritative; a failed mirror write
			// does not fail the run.
			log.Warn("local content mirror failed", zap.Error(err))
		}
	}

	if err := c.store.SetSessionStatus(ctx, req.SessionID, store.StatusCompleted); err != nil {
		return c.fail(ctx, req.SessionID, log, err)
	}
	if err := c.notifier.Publish(ctx, req.SessionID, events.StageCompleted, events.Payload{
		Message:       "Content generation complete",
		AccuracyScore: &score,
	}); err != nil {
		log.Error("failed to publish completed event", zap.Error(err))
		return err
	}

	log.Info("pipeline run completed", zap.Int("accuracy_score", score))
	return nil
}

// runStage runs the agent, persists its stage result, and emits
// llm_completed. Returns the agent's text output.
func (c *Coordinator) runStage(ctx context.Context, sessionID uuid.UUID, stage agents.Stage, in agents.StageInput, score *int) (string, error) {
	out, err := stage.Run(ctx, in)
	if err != nil {
		c.publishLLMError(ctx, sessionID, err)
		return "", err
	}
	if _, err := c.store.AppendStageResult(ctx, sessionID, stage.Name(), out.Text, score); err != nil {
		return "", err
	}
	if err := c.notifier.Publish(ctx, sessionID, events.StageLLMCompleted, events.Payload{
		Message: fmt.Sprintf("%s stage complete", stage.Name()),
	}); err != nil {
		return "", err
	}
	return out.Text, nil
}

func (c *Coordinator) publishLLMError(ctx context.Context, sessionID uuid.UUID, err error) {
	var upstream *llm.UpstreamError
	if !errors.As(err, &upstream) {
		return
	}
	if pubErr := c.notifier.Publish(ctx, sessionID, events.StageLLMError, events.Payload{
		Message: "Model request failed",
	}); pubErr != nil {
		c.logger.Error("failed to publish llm_error event", zap.Error(pubErr))
	}
}

// fail marks the session failed and emits the run's single error event
func (c *Coordinator) fail(ctx context.Context, sessionID uuid.UUID, log *zap.Logger, cause error) error {
	log.Error("pipeline run failed", zap.Error(cause))

	if err := c.store.SetSessionStatus(ctx, sessionID, store.StatusFailed); err != nil {
		log.Error("failed to mark session failed", zap.Error(err))
	}
	if err := c.notifier.Publish(ctx, sessionID, events.StageError, events.Payload{
		Message: userMessage(cause),
	}); err != nil {
		log.Error("failed to publish error event", zap.Error(err))
	}
	return fmt.Errorf("pipeline run failed: %w", cause)
}

// userMessage translates an internal error into the human-readable message
// carried by the error event.
func userMessage(err error) string {
	var upstream *llm.UpstreamError
	if errors.As(err, &upstream) {
		switch upstream.Kind {
		case llm.KindTimeout:
			return "The model took too long to respond. Please try again."
		case llm.KindTransport:
			return "Could not reach the model service. Please try again."
		default:
			return "The model service returned an error. Please try again."
		}
	}
	return "Content generation failed due to an internal error."
}
