package llm

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type GeminiClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiClient(ctx context.Context, apiKey string, opts Options) (*GeminiClient, error) {
	copts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if opts.BaseURL != "" {
		copts = append(copts, option.WithEndpoint(opts.BaseURL))
	}
	client, err := genai.NewClient(ctx, copts...)
	if err != nil {
		return nil, providerErr("gemini", err)
	}
	return &GeminiClient{client: client, model: configureGemini(client.GenerativeModel(opts.Model), opts)}, nil
}

func configureGemini(m *genai.GenerativeModel, opts Options) *genai.GenerativeModel {
	m.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	m.SetTemperature(0)
	m.SetMaxOutputTokens(int32(opts.maxTokens()))
	m.ResponseMIMEType = "application/json"
	return m
}

func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", providerErr("gemini", err)
	}
	text, err := geminiText(resp)
	if err != nil {
		return "", providerErr("gemini", err)
	}
	return text, nil
}

// geminiText joins the text parts of the first candidate.
func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

func (c *GeminiClient) Close() error {
	return c.client.Close()
}
