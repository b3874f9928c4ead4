// Package openai implements the generation.Completer interface using
// the OpenAI chat completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/phrazzld/coursegen-api/internal/config"
	"github.com/phrazzld/coursegen-api/internal/generation"
)

const baseRetryDelay = 2 * time.Second

// Client calls the OpenAI API with retry and backoff. It is safe for
// concurrent use by multiple workers.
type Client struct {
	logger     *slog.Logger
	client     openai.Client
	model      string
	maxRetries int
}

// NewClient creates an OpenAI-backed completer from the LLM configuration.
func NewClient(logger *slog.Logger, cfg config.LLMConfig) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("%w: openai API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	return &Client{
		logger: logger.With("component", "openai_client"),
		client: openai.NewClient(
			option.WithAPIKey(cfg.OpenAIAPIKey),
			// The SDK's own retry loop is disabled; retries are handled
			// here so backoff behavior matches the Gemini client.
			option.WithMaxRetries(0),
		),
		model:      cfg.ModelName,
		maxRetries: cfg.MaxRetries,
	}, nil
}

// Complete sends the prompts to OpenAI and returns the raw response text.
// Transport errors are retried with exponential backoff and jitter.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if userPrompt == "" {
		return "", fmt.Errorf("%w: user prompt cannot be empty", generation.ErrInvalidConfig)
	}

	maxRetries := c.maxRetries
	if maxRetries < 0 {
		maxRetries = 3
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	messages := []openai.ChatCompletionMessageParamUnion{}
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(userPrompt))

	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	}

	for attempt := 0; ; attempt++ {
		attemptNum := attempt + 1
		c.logger.DebugContext(ctx, "calling OpenAI API",
			"model", c.model,
			"attempt", attemptNum,
			"max_attempts", maxRetries+1)

		completion, err := c.client.Chat.Completions.New(ctx, params)

		text, err := extractText(completion, err)
		if err == nil {
			c.logger.DebugContext(ctx, "OpenAI API call succeeded", "attempt", attemptNum)
			return text, nil
		}

		c.logger.WarnContext(ctx, "OpenAI API call failed",
			"attempt", attemptNum,
			"error", err)

		if errors.Is(err, generation.ErrContentBlocked) || errors.Is(err, generation.ErrInvalidResponse) {
			return "", err
		}

		if attempt >= maxRetries {
			return "", fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
				generation.ErrTransientFailure, maxRetries, err)
		}

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
func extractText(completion *openai.ChatCompletion, callErr error) (string, error) {
	if callErr != nil {
		return "", fmt.Errorf("%w: %v", generation.ErrTransientFailure, callErr)
	}
	if completion == nil || len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", generation.ErrInvalidResponse)
	}

	choice := completion.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", fmt.Errorf("%w: response blocked by content filter", generation.ErrContentBlocked)
	}
	if choice.Message.Content == "" {
		return "", fmt.Errorf("%w: empty response text", generation.ErrInvalidResponse)
	}
	return choice.Message.Content, nil
}
