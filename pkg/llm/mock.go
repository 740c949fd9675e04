package llm

import "context"

// MockLLMClient is a configurable mock for testing inference callers.
// Set the function fields to control behavior in tests.
type MockLLMClient struct {
	// CompleteFunc is called when Complete is invoked.
	// If nil, returns empty string and nil error.
	CompleteFunc func(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	// Endpoint is returned by GetEndpoint. Defaults to "http://mock-endpoint".
	Endpoint string

	// CompleteCalls counts invocations for verification.
	CompleteCalls int
}

// NewMockLLMClient creates a new mock with sensible defaults.
func NewMockLLMClient() *MockLLMClient {
	return &MockLLMClient{
		Model:    "mock-model",
		Endpoint: "http://mock-endpoint",
	}
}

// Complete implements LLMClient.
func (m *MockLLMClient) Complete(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error) {
	m.CompleteCalls++
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt, systemMessage, temperature)
	}
	return "", nil
}

// GetModel implements LLMClient.
func (m *MockLLMClient) GetModel() string { return m.Model }

// GetEndpoint implements LLMClient.
func (m *MockLLMClient) GetEndpoint() string { return m.Endpoint }
