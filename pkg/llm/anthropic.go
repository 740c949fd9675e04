package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

const anthropicMaxTokens = 4096

// AnthropicClient talks to the Anthropic Messages API.
type AnthropicClient struct {
	client   *anthropic.Client
	endpoint string
	model    string
	logger   *zap.Logger
}

// NewAnthropicClient creates an Anthropic-backed client. Endpoint may be
// empty to use the default API host.
func NewAnthropicClient(endpoint, model, apiKey string, logger *zap.Logger) (*AnthropicClient, error) {
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	var opts []anthropic.ClientOption
	if endpoint != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(endpoint, "/")))
	}

	return &AnthropicClient{
		client:   anthropic.NewClient(apiKey, opts...),
		endpoint: endpoint,
		model:    model,
		logger:   logger.Named("llm"),
	}, nil
}

// Complete generates a single message completion.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error) {
	c.logger.Debug("LLM request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(prompt)),
		zap.Float64("temperature", temperature))

	start := time.Now()
	temp := float32(temperature)

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		System:      systemMessage,
		MaxTokens:   anthropicMaxTokens,
		Temperature: &temp,
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(prompt),
		},
	})
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", classify(err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		sb.WriteString(block.GetText())
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no text content in response")
	}

	c.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.InputTokens),
		zap.Int("completion_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return sb.String(), nil
}

// GetModel returns the configured model name.
func (c *AnthropicClient) GetModel() string { return c.model }

// GetEndpoint returns the configured endpoint.
func (c *AnthropicClient) GetEndpoint() string { return c.endpoint }
