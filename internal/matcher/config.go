package matcher

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the canonical matcher
type Config struct {
	// ConfidenceThreshold is the minimum oracle confidence (0.0-1.0) to
	// accept a semantic match.
	// Higher values = more conservative (more near-duplicate canonicals)
	// Lower values = more aggressive (unrelated tasks merged together)
	// Default: 0.75
	ConfidenceThreshold float64

	// MaxCandidates caps how many canonical tasks from the scope are sent
	// to the oracle in one call. Bounds prompt size and API cost.
	// Default: 50
	MaxCandidates int

	// RequestTimeout bounds the oracle call made per match attempt
	// Default: 30 seconds
	RequestTimeout time.Duration
}

// DefaultConfig returns the default matcher configuration
//
// These defaults are chosen to:
// - Accept clear rephrasings while rejecting merely related work (0.75)
// - Keep per-creation oracle cost bounded (candidate cap, single call)
// - Never let a slow oracle block task creation (timeout + fallback)
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.75,
		MaxCandidates:       50,
		RequestTimeout:      30 * time.Second,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.ConfidenceThreshold < 0.0 || c.ConfidenceThreshold > 1.0 {
		return fmt.Errorf("confidence_threshold must be between 0.0 and 1.0 (got %.2f)",
			c.ConfidenceThreshold)
	}
	if c.MaxCandidates <= 0 {
		return fmt.Errorf("max_candidates must be positive (got %d)", c.MaxCandidates)
	}
	if c.MaxCandidates > 500 {
		return fmt.Errorf("max_candidates too large (got %d, max 500)", c.MaxCandidates)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive (got %v)", c.RequestTimeout)
	}
	if c.RequestTimeout > 5*time.Minute {
		return fmt.Errorf("request_timeout too large (got %v, max 5 minutes)", c.RequestTimeout)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf("Config{Threshold: %.2f, MaxCandidates: %d, Timeout: %v}",
		c.ConfidenceThreshold, c.MaxCandidates, c.RequestTimeout)
}

// ConfigFromEnv creates a Config from environment variables, falling back to defaults
//
// Environment variables:
//   - SENSEI_MATCH_CONFIDENCE_THRESHOLD: Minimum confidence (0.0-1.0) to accept a match (default: 0.75)
//   - SENSEI_MATCH_MAX_CANDIDATES: Maximum canonical tasks sent to the oracle (default: 50)
//   - SENSEI_MATCH_TIMEOUT_SECS: Oracle call timeout in seconds (default: 30)
//
// Returns an error if any environment variable has an invalid value.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if err := parseEnvFloat("SENSEI_MATCH_CONFIDENCE_THRESHOLD", &cfg.ConfidenceThreshold); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("SENSEI_MATCH_MAX_CANDIDATES", &cfg.MaxCandidates); err != nil {
		return cfg, err
	}
	if err := parseEnvDuration("SENSEI_MATCH_TIMEOUT_SECS", &cfg.RequestTimeout, time.Second); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}

	return cfg, nil
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a duration from an environment variable.
// The multiplier converts the numeric value to a duration
// (e.g., for seconds: multiplier = time.Second).
func parseEnvDuration(key string, dest *time.Duration, multiplier time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = time.Duration(parsed) * multiplier
	return nil
}
