package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/xpost-agent/internal/config"
	"github.com/xpost-agent/pkg/logger"
	"github.com/xpost-agent/pkg/ratelimit"
	"github.com/xpost-agent/pkg/retry"
)

// Client wraps the Anthropic SDK client
type Client struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
	rateLimiter *ratelimit.MultiLimiter
	retryPolicy retry.Policy
	log         *logger.Logger
}

// NewClient creates a new Anthropic client
func NewClient(cfg config.AnthropicConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Client {
	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
	)

	return &Client{
		client:      client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		rateLimiter: limiter,
		retryPolicy: retry.DefaultPolicy(),
		log:         log.WithComponent("ai"),
	}
}

// Complete sends a message to Claude and returns the response text.
// Overload and rate-limit responses are retried with backoff.
func (c *Client) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	if err := c.rateLimiter.Wait(ctx, ratelimit.LimiterLLM); err != nil {
		return "", fmt.Errorf("rate limit error: %w", err)
	}

	c.log.Debug().
		Str("model", c.model).
		Int("max_tokens", c.maxTokens).
		Msg("Sending request to Claude")

	var message *anthropic.Message
	err := retry.Do(ctx, c.retryPolicy, "claude completion", func() error {
		m, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: int64(c.maxTokens),
			System: []anthropic.TextBlockParam{
				{
					Type: "text",
					Text: systemPrompt,
				},
			},
			Messages: []anthropic.MessageParam{
				{
					Role: anthropic.MessageParamRoleUser,
					Content: []anthropic.ContentBlockParamUnion{
						anthropic.NewTextBlock(userMessage),
					},
				},
			},
		})
		if err != nil {
			if isRetryableAPIError(err) {
				return retry.Transient(err)
			}
			return err
		}
		message = m
		return nil
	})
	if err != nil {
		c.log.Error().Err(err).Msg("Claude API error")
		return "", fmt.Errorf("claude API error: %w", err)
	}

	var response string
	for _, block := range message.Content {
		textBlock := block.AsText()
		if textBlock.Text != "" {
			response += textBlock.Text
		}
	}

	c.log.Debug().
		Int("input_tokens", int(message.Usage.InputTokens)).
		Int("output_tokens", int(message.Usage.OutputTokens)).
		Msg("Received Claude response")

	return response, nil
}

// CompleteWithJSON sends a message and expects a JSON response. Models still
// fence their output sometimes despite the instruction, so fences are stripped.
func (c *Client) CompleteWithJSON(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	enhancedSystem := systemPrompt + "\n\nIMPORTANT: Respond ONLY with valid JSON. No markdown, no explanation, just the JSON object."

	response, err := c.Complete(ctx, enhancedSystem, userMessage)
	if err != nil {
		return "", err
	}
	return stripJSONFences(response), nil
}

// stripJSONFences removes a surrounding markdown code fence, with or without
// a language tag, leaving bare JSON untouched.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// isRetryableAPIError reports whether the API error is a 429 or a 5xx,
// including the 529 overloaded response.
func isRetryableAPIError(err error) bool {
	var apierr *anthropic.Error
	if !errors.As(err, &apierr) {
		return false
	}
	return apierr.StatusCode == 429 || apierr.StatusCode >= 500
}
