// Package llm is the provider-polymorphic gateway to the language model:
// prompt in, text out. Model and temperature are bound at construction and
// every call carries a timeout so a stalled provider degrades the caller
// instead of wedging a partition.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/boletoflow/boletoflow/internal/config"
)

// DefaultTimeout bounds a single generation round-trip.
const DefaultTimeout = 60 * time.Second

// Client generates text through a configured provider.
type Client struct {
	model       llms.Model
	temperature float64
	timeout     time.Duration
	retry       RetryConfig
	log         zerolog.Logger
}

// New builds a client for the configured provider (ollama or openai).
func New(cfg config.LLM, log zerolog.Logger) (*Client, error) {
	var model llms.Model
	var err error

	switch strings.ToLower(cfg.Provider) {
	case "ollama":
		model, err = ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.OllamaBaseURL),
		)
	case "openai":
		model, err = openai.New(
			openai.WithModel(cfg.Model),
			openai.WithToken(cfg.OpenAIAPIKey),
		)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initialize %s provider: %w", cfg.Provider, err)
	}

	return &Client{
		model:       model,
		temperature: cfg.Temperature,
		timeout:     DefaultTimeout,
		retry:       DefaultRetryConfig(),
		log:         log,
	}, nil
}

// NewWithModel wraps an existing model; used by tests with a stub.
func NewWithModel(model llms.Model, temperature float64, log zerolog.Logger) *Client {
	return &Client{
		model:       model,
		temperature: temperature,
		timeout:     DefaultTimeout,
		retry:       RetryConfig{MaxRetries: 0, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1},
		log:         log,
	}
}

// Generate produces text for prompt, optionally preceded by a system prompt.
// Failures surface to the caller so stages can fall back to their
// deterministic paths.
func (c *Client) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	var messages []llms.MessageContent
	if systemPrompt != "" {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt))
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, prompt))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.generateWithRetry(ctx, messages, llms.WithTemperature(c.temperature))
	if err != nil {
		return "", fmt.Errorf("llm generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm generate: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}
