// Package reasoning turns an assembled analysis context into a root-cause
// explanation and a bounded action decision using an LLM provider, with
// deterministic fallbacks when the provider misbehaves.
package reasoning

import (
	"context"
)

// Provider defines the interface for LLM backends.
type Provider interface {
	// Generate sends a single prompt to the model and returns the raw text
	// of its reply.
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// Name returns the provider name for logging and display.
	Name() string

	// Model returns the model identifier being used.
	Model() string
}

// Config contains common configuration for providers.
type Config struct {
	// Model is the model identifier (e.g., "claude-sonnet-4-5-20250929")
	Model string

	// MaxTokens is the maximum number of tokens to generate
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative)
	Temperature float64
}

// DefaultConfig returns sensible defaults for churn analysis.
func DefaultConfig() Config {
	return Config{
		Model:       "claude-sonnet-4-5-20250929",
		MaxTokens:   1024,
		Temperature: 0.0, // Deterministic for repeatable decisions
	}
}
