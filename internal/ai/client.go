// Package ai provides the similarity-oracle client for Sensei: a thin,
// retrying wrapper over a generative-language API whose text output is
// parsed into structured verdicts by the matcher.
package ai

import (
	"errors"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Model constants. The oracle's job is literal JSON classification, so the
// cost-efficient model is the default; the high-end model can be selected for
// experimentation via SENSEI_ORACLE_MODEL.
const (
	ModelDefault = "claude-3-5-haiku-20241022"
)

// GetModel returns the oracle model, checking SENSEI_ORACLE_MODEL env var first
func GetModel() string {
	if model := os.Getenv("SENSEI_ORACLE_MODEL"); model != "" {
		return model
	}
	return ModelDefault
}

// ErrOracleUnavailable marks the oracle service as unreachable at the
// transport layer (circuit breaker open). Callers use this to distinguish
// "one judgment call failed" from "the service is down": the former is
// handled by the matcher's exact-match fallback, the latter sends the task
// creation orchestrator down its degraded path.
var ErrOracleUnavailable = errors.New("similarity oracle unavailable")

// IsUnavailable reports whether err marks oracle-service unavailability.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrOracleUnavailable) || errors.Is(err, ErrCircuitOpen)
}

// GenerateRequest is the generic text-generation contract the oracle is
// consumed through: prompt, optional system instruction, sampling temperature
// and an output-size cap. The response is an opaque string.
type GenerateRequest struct {
	Prompt      string
	System      string
	Temperature float64
	MaxTokens   int
}

// Client wraps the generative-language API with retry, circuit breaking,
// a concurrency cap and request rate limiting.
type Client struct {
	api            *anthropic.Client
	model          string
	retry          RetryConfig
	circuitBreaker *CircuitBreaker
	concurrencySem *semaphore.Weighted
	limiter        *rate.Limiter
}

// Config holds oracle client configuration
type Config struct {
	APIKey string      // API key (if empty, reads from ANTHROPIC_API_KEY env var)
	Model  string      // Model to use (default: claude-3-5-haiku-20241022)
	Retry  RetryConfig // Retry configuration (uses defaults if not specified)
}

// NewClient creates a new oracle client
func NewClient(cfg *Config) (*Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = GetModel()
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}

	api := anthropic.NewClient(option.WithAPIKey(apiKey))

	var circuitBreaker *CircuitBreaker
	if retry.CircuitBreakerEnabled {
		circuitBreaker = NewCircuitBreaker(
			retry.FailureThreshold,
			retry.SuccessThreshold,
			retry.OpenTimeout,
		)
	}

	var concurrencySem *semaphore.Weighted
	if retry.MaxConcurrentCalls > 0 {
		concurrencySem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}

	var limiter *rate.Limiter
	if retry.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(retry.RequestsPerSecond), 1)
	}

	return &Client{
		api:            &api,
		model:          model,
		retry:          retry,
		circuitBreaker: circuitBreaker,
		concurrencySem: concurrencySem,
		limiter:        limiter,
	}, nil
}

// Model returns the model the client sends requests to
func (c *Client) Model() string {
	return c.model
}
