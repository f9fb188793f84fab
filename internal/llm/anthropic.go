package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"
)

// AnthropicConfig holds configuration for the Anthropic client.
type AnthropicConfig struct {
	APIKey string

	// Model defaults to claude-3-5-haiku-latest. Every prompt in this
	// engine is short enrichment work, so the small model is the default.
	Model string

	// BaseURL overrides the API endpoint. Used by tests.
	BaseURL string

	// MaxTokens bounds the completion length. Default: 1024.
	MaxTokens int64

	// RequestsPerMinute is the client-side pacing limit shared by
	// foreground scoring and the background loops. Default: 50.
	RequestsPerMinute int
}

// AnthropicClient implements TextGenerator using the Anthropic Messages API.
// Calls are paced by a client-side rate limiter and guarded by a circuit
// breaker so a failing provider degrades the engine instead of stalling it.
type AnthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	limiter   *rate.Limiter
	breaker   *CircuitBreaker
}

// NewAnthropicClient creates a client with the given configuration, filling
// in defaults for unset fields.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-latest"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 50
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute),
		breaker:   NewCircuitBreaker(),
	}
}

// Complete sends a single-turn completion and returns the response text.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("anthropic: rate limit wait: %w", err)
	}

	result, err := c.breaker.Execute(ctx, func() (any, error) {
		return c.complete(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return "", fmt.Errorf("anthropic: %w", err)
		}
		return "", err
	}
	return result.(string), nil
}

func (c *AnthropicClient) complete(ctx context.Context, prompt string) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("anthropic: empty completion")
	}
	return text, nil
}

// GetModel returns the configured model name.
func (c *AnthropicClient) GetModel() string {
	return c.model
}

// BreakerState exposes the circuit state for status reporting.
func (c *AnthropicClient) BreakerState() string {
	return c.breaker.State()
}

var _ TextGenerator = (*AnthropicClient)(nil)
