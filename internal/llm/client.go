package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/geneacademy/geneacademy/internal/ratelimit"
)

// Client is the capability the agents program against: exactly one outbound
// model call per invocation, no automatic retry.
type Client interface {
	// Generate performs one model call and returns the generated text.
	Generate(ctx context.Context, prompt string, tier ModelTier, maxTokens int32) (string, error)
	// Close releases any resources held by the client.
	Close() error
}

// GeminiClient implements Client against the Google Gemini API. Every call
// first acquires the shared outbound rate limiter.
type GeminiClient struct {
	client  *genai.Client
	config  *Config
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

// NewGeminiClient creates a Gemini-backed client. The limiter is shared across
// all sessions; the client never bypasses it.
func NewGeminiClient(ctx context.Context, config *Config, apiKey string, limiter *ratelimit.Limiter, logger *zap.Logger) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config == nil {
		config = DefaultConfig()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:  client,
		config:  config,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// Generate performs one rate-limited model call with a bounded wait. Failures
// surface as *UpstreamError; rate limiter shutdown surfaces as
// ratelimit.ErrClosed wrapped.
func (c *GeminiClient) Generate(ctx context.Context, prompt string, tier ModelTier, maxTokens int32) (string, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	modelName := c.config.Model(tier)
	if modelName == "" {
		return "", &UpstreamError{Kind: KindAPI, Message: fmt.Sprintf("no model configured for tier %s", tier)}
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(c.config.Temperature)
	if maxTokens > 0 {
		model.SetMaxOutputTokens(maxTokens)
	}

	callCtx := ctx
	if c.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.config.CallTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := model.GenerateContent(callCtx, genai.Text(prompt))
	elapsed := time.Since(start)

	if err != nil {
		kind := classify(callCtx, err)
		c.logger.Warn("model call failed",
			zap.String("model", modelName),
			zap.Duration("duration", elapsed),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return "", &UpstreamError{Kind: kind, Message: "generate content", Cause: err}
	}

	text, err := extractText(resp)
	if err != nil {
		return "", &UpstreamError{Kind: KindAPI, Message: "empty response", Cause: err}
	}

	c.logger.Info("model call completed",
		zap.String("model", modelName),
		zap.Duration("duration", elapsed),
		zap.Int("prompt_tokens_est", EstimateTokens(prompt)),
		zap.Int("output_tokens_est", EstimateTokens(text)))

	return text, nil
}

// Close releases resources held by the client.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// classify maps a call failure to an error kind. A deadline on the call
// context means the bounded wait was exceeded.
func classify(callCtx context.Context, err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindTransport
	}
	return KindAPI
}

// extractText joins the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}
	return strings.Join(parts, ""), nil
}
