package extraction

import (
	"context"
)

type MockLLMClient struct {
	Responses []string
	Err       error
	Prompts   []string
}

func (m *MockLLMClient) Generate(ctx context.Context, prompt string) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "{}", nil
	}
	resp := m.Responses[0]
	m.Responses = m.Responses[1:]
	return resp, nil
}
