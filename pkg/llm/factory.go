package llm

import (
	"fmt"

	"go.uber.org/zap"
)

// Config holds configuration for creating an inference client.
type Config struct {
	Provider string // "openai" (default, any OpenAI-compatible endpoint) or "anthropic"
	Endpoint string
	Model    string
	APIKey   string
}

// NewClient creates an LLM client for the configured provider.
func NewClient(cfg *Config, logger *zap.Logger) (LLMClient, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIClient(cfg.Endpoint, cfg.Model, cfg.APIKey, logger)
	case "anthropic":
		return NewAnthropicClient(cfg.Endpoint, cfg.Model, cfg.APIKey, logger)
	default:
		return nil, fmt.Errorf("unknown inference provider %q", cfg.Provider)
	}
}
