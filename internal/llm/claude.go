package llm

import (
	"context"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
)

type ClaudeClient struct {
	client *anthropic.Client
	opts   Options
}

func NewClaudeClient(apiKey string, opts Options) *ClaudeClient {
	var copts []anthropic.ClientOption
	if opts.BaseURL != "" {
		copts = append(copts, anthropic.WithBaseURL(opts.BaseURL))
	}
	return &ClaudeClient{
		client: anthropic.NewClient(apiKey, copts...),
		opts:   opts,
	}
}

func (c *ClaudeClient) request(prompt string) anthropic.MessagesRequest {
	req := anthropic.MessagesRequest{
		Model:  anthropic.Model(c.opts.Model),
		System: systemPrompt,
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(prompt),
		},
		MaxTokens: c.opts.maxTokens(),
	}
	req.SetTemperature(0)
	return req
}

func (c *ClaudeClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateMessages(ctx, c.request(prompt))
	if err != nil {
		return "", providerErr("claude", err)
	}
	text, err := claudeText(resp)
	if err != nil {
		return "", providerErr("claude", err)
	}
	return text, nil
}

// claudeText joins the text blocks of a reply, skipping thinking and tool blocks.
func claudeText(resp anthropic.MessagesResponse) (string, error) {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			sb.WriteString(*block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}
