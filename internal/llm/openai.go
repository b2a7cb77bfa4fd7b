package llm

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// go-openai drops a zero temperature from the request body, which leaves the
// server default of 1 in place.
const greedyTemperature = math.SmallestNonzeroFloat32

var errTruncated = errors.New("answer cut off at the token limit")

// OpenAIClient also serves Ollama through its OpenAI-compatible endpoint.
type OpenAIClient struct {
	client *openai.Client
	opts   Options
}

func NewOpenAIClient(apiKey string, opts Options) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		opts:   opts,
	}
}

func (c *OpenAIClient) request(prompt string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: c.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.opts.maxTokens(),
		Temperature: greedyTemperature,
	}
}

func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.request(prompt))
	if err != nil {
		return "", providerErr("openai", err)
	}
	text, err := openAIText(resp)
	if err != nil {
		return "", providerErr("openai", err)
	}
	return text, nil
}

func openAIText(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonLength {
		return "", errTruncated
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return choice.Message.Content, nil
}
