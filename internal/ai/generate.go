package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

// Generate makes a single text-generation call described by req and returns
// the raw response text. Transport errors, timeouts and non-2xx responses
// all come back as errors; when the circuit breaker is open the error
// satisfies IsUnavailable. The response text is opaque to this layer;
// callers decide how to interpret it.
func (c *Client) Generate(ctx context.Context, operation string, req GenerateRequest) (string, error) {
	startTime := time.Now()

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	var response *anthropic.Message
	err := c.retryWithBackoff(ctx, operation, func(attemptCtx context.Context) error {
		resp, apiErr := c.api.Messages.New(attemptCtx, params)
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})

	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return "", fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
		}
		return "", fmt.Errorf("oracle API call failed: %w", err)
	}

	var responseText string
	for _, block := range response.Content {
		if block.Type == "text" {
			responseText += block.Text
		}
	}

	log.Printf("[ORACLE] %s call: input=%d tokens, output=%d tokens, duration=%v",
		operation, response.Usage.InputTokens, response.Usage.OutputTokens, time.Since(startTime))

	return responseText, nil
}

// Ping verifies connectivity to the oracle service with a minimal request.
// Used by the CLI health probe and the server's readiness check.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Generate(ctx, "ping", GenerateRequest{
		Prompt:    "Reply with the single word: ok",
		MaxTokens: 8,
	})
	if err != nil {
		return fmt.Errorf("oracle ping failed: %w", err)
	}
	return nil
}
