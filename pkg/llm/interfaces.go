// Package llm provides the inference capability used to propose column
// mappings: a provider-agnostic chat client, JSON extraction from model
// output, and error classification.
package llm

import "context"

// LLMClient is the interface inference callers depend on. Use it for
// dependency injection to enable mocking in tests.
type LLMClient interface {
	// Complete generates a single chat completion for the prompt.
	Complete(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

// Compile-time interface checks.
var (
	_ LLMClient = (*OpenAIClient)(nil)
	_ LLMClient = (*AnthropicClient)(nil)
	_ LLMClient = (*MockLLMClient)(nil)
)
