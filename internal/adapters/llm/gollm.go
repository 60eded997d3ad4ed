// Package llm adapts gollm-backed language models to the core LLM port.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/teilomillet/gollm"

	"github.com/hugo-lorenzo-mato/pilot/internal/core"
)

// Config holds provider settings for the gollm client.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	MaxTokens   int
	Temperature float64
}

// DefaultConfig returns the default provider settings.
func DefaultConfig() Config {
	return Config{
		Provider:    "openai",
		Model:       "gpt-4o-mini",
		MaxTokens:   1024,
		Temperature: 0.7,
	}
}

// GollmClient implements core.LLMClient over a gollm LLM.
type GollmClient struct {
	llm   gollm.LLM
	model string
}

// NewGollmClient creates a client for the configured provider. An empty API
// key defers to gollm's environment-variable lookup.
func NewGollmClient(cfg Config) (*GollmClient, error) {
	defaults := DefaultConfig()
	if cfg.Provider == "" {
		cfg.Provider = defaults.Provider
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaults.Temperature
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(cfg.Provider),
		gollm.SetModel(cfg.Model),
		gollm.SetMaxTokens(cfg.MaxTokens),
		gollm.SetTemperature(cfg.Temperature),
		gollm.SetMaxRetries(0), // retries are the coordinator's job
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.APIKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.APIKey))
	}

	model, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", cfg.Provider, err)
	}
	return &GollmClient{llm: model, model: cfg.Model}, nil
}

// NewGollmClientFromLLM wraps an existing gollm LLM instance.
func NewGollmClientFromLLM(model gollm.LLM) *GollmClient {
	return &GollmClient{llm: model}
}

// Complete sends one blocking completion request and returns the reply text.
func (c *GollmClient) Complete(ctx context.Context, req core.CompletionRequest) (string, error) {
	content := req.UserContent
	if content == "" {
		content = "Hello"
	}

	promptOpts := []gollm.PromptOption{}
	if req.SystemPrompt != "" {
		promptOpts = append(promptOpts,
			gollm.WithSystemPrompt(strings.TrimSpace(req.SystemPrompt), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens > 0 {
		promptOpts = append(promptOpts, gollm.WithMaxLength(req.MaxTokens))
	}
	prompt := gollm.NewPrompt(content, promptOpts...)

	// Request-level overrides of the client defaults.
	if req.Model != "" {
		c.llm.SetOption("model", req.Model)
	}
	if req.Temperature > 0 {
		c.llm.SetOption("temperature", req.Temperature)
	}
	if req.MaxTokens > 0 {
		c.llm.SetOption("max_tokens", req.MaxTokens)
	}

	text, err := c.llm.Generate(ctx, prompt)
	if err != nil {
		return "", core.ErrLLM("completion request failed").WithCause(err)
	}
	return text, nil
}

// Verify that GollmClient implements core.LLMClient.
var _ core.LLMClient = (*GollmClient)(nil)
