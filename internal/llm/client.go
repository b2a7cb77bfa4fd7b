package llm

import (
	"context"
	"errors"
	"fmt"
)

// LLMClient is the text completion capability used by the llm decomposition
// and merge policies.
type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("llm returned no text")

// Both policies parse the answer as JSON, so every provider gets the same
// system instruction and runs without sampling noise.
const (
	systemPrompt = "You help deduplicate and merge property graph elements. " +
		"Answer with a single JSON value and nothing else."
	defaultMaxTokens = 2048
)

// Options are the request settings every provider shares.
type Options struct {
	Model     string
	BaseURL   string
	MaxTokens int
}

func (o Options) maxTokens() int {
	if o.MaxTokens > 0 {
		return o.MaxTokens
	}
	return defaultMaxTokens
}

func providerErr(provider string, err error) error {
	return fmt.Errorf("%s: %w", provider, err)
}
