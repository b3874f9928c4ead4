// Package gemini implements the generation.Completer interface using
// Google's Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"google.golang.org/genai"

	"github.com/phrazzld/coursegen-api/internal/config"
	"github.com/phrazzld/coursegen-api/internal/generation"
)

const baseRetryDelay = 2 * time.Second

// Client calls the Gemini API with retry and backoff. It is safe for
// concurrent use by multiple workers.
type Client struct {
	logger     *slog.Logger
	client     *genai.Client
	model      string
	maxRetries int
}

// NewClient creates a Gemini-backed completer from the LLM configuration.
func NewClient(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	return &Client{
		logger:     logger.With("component", "gemini_client"),
		client:     client,
		model:      cfg.ModelName,
		maxRetries: cfg.MaxRetries,
	}, nil
}

// Complete sends the prompts to Gemini and returns the raw response text.
// Transient transport errors are retried with exponential backoff and
// jitter; safety blocks and empty responses are returned immediately.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if userPrompt == "" {
		return "", fmt.Errorf("%w: user prompt cannot be empty", generation.ErrInvalidConfig)
	}

	maxRetries := c.maxRetries
	if maxRetries < 0 {
		maxRetries = 3
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	genCfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if systemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	for attempt := 0; ; attempt++ {
		attemptNum := attempt + 1
		c.logger.DebugContext(ctx, "calling Gemini API",
			"model", c.model,
			"attempt", attemptNum,
			"max_attempts", maxRetries+1)

		resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(userPrompt), genCfg)

		text, err := c.extractText(resp, err)
		if err == nil {
			c.logger.DebugContext(ctx, "Gemini API call succeeded", "attempt", attemptNum)
			return text, nil
		}

		c.logger.WarnContext(ctx, "Gemini API call failed",
			"attempt", attemptNum,
			"error", err)

		if errors.Is(err, generation.ErrContentBlocked) || errors.Is(err, generation.ErrInvalidResponse) {
			return "", err
		}

		if attempt >= maxRetries {
			return "", fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
				generation.ErrTransientFailure, maxRetries, err)
		}

		// delay = base * 2^attempt * jitter in [0.5, 1.0)
		backoff := float64(baseRetryDelay) * math.Pow(2, float64(attempt))
		delay := time.Duration(backoff * (0.5 + rng.Float64()*0.5))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", generation.ErrTransientFailure, ctx.Err())
		}
	}
}

// extractText classifies the API result and pulls out the response text.
func (c *Client) extractText(resp *genai.GenerateContentResponse, callErr error) (string, error) {
	if callErr != nil {
		return "", fmt.Errorf("%w: %v", generation.ErrTransientFailure, callErr)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: response blocked by safety filters", generation.ErrContentBlocked)
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty response text", generation.ErrInvalidResponse)
	}
	return text, nil
}
