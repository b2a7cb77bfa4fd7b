package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/graphmerge/internal/config"
)

// NewClient builds the client for the configured provider. An empty provider
// yields a nil client: the llm policies are then unavailable.
func NewClient(ctx context.Context, cfg config.LLMConfig) (LLMClient, error) {
	opts := Options{Model: cfg.Model, BaseURL: cfg.BaseURL, MaxTokens: cfg.MaxTokens}
	switch strings.ToLower(cfg.Provider) {
	case "":
		return nil, nil

	case "openai":
		return NewOpenAIClient(cfg.APIKey, opts), nil

	case "gemini":
		c, err := NewGeminiClient(ctx, cfg.APIKey, opts)
		if err != nil {
			return nil, err
		}
		return c, nil

	case "claude":
		return NewClaudeClient(cfg.APIKey, opts), nil

	case "ollama":
		// Ollama serves an OpenAI-compatible API under /v1 and ignores the key.
		if opts.BaseURL == "" {
			opts.BaseURL = "http://localhost:11434"
		}
		if !strings.HasSuffix(opts.BaseURL, "/v1") {
			opts.BaseURL = strings.TrimRight(opts.BaseURL, "/") + "/v1"
		}
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = "ollama"
		}
		return NewOpenAIClient(apiKey, opts), nil

	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
