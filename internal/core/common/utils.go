package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrNoJSON = errors.New("no JSON object in response")

// ParseJSON decodes the outermost JSON object of a model answer into T.
// Prose or markdown fences around the object are ignored. A bare "null"
// answer decodes to the zero T.
func ParseJSON[T any](response string) (T, error) {
	var out T
	text := strings.TrimSpace(response)
	if text == "null" {
		return out, nil
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return out, ErrNoJSON
	}

	body := text[start : end+1]
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return out, fmt.Errorf("failed to decode model answer: %w", err)
	}
	return out, nil
}
