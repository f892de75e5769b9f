package openrouter

import (
	"encoding/json"
	"fmt"
	"strings"

	"assistify/internal/domain"
)

// chatResponse covers every response shape seen from OpenAI-compatible
// providers: chat choices, legacy text choices, stream-style deltas and the
// top-level output field some routers return.
type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content string `json:"content"`
		} `json:"message"`
		Text  *string `json:"text"`
		Delta *struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Output json.RawMessage `json:"output"`
}

// decodeCompletion classifies a response body into a domain.Completion.
// Bodies that decode but carry no text become the fallback kind; bodies that
// are not JSON are an error.
func decodeCompletion(raw []byte) (domain.Completion, error) {
	var payload chatResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.Completion{}, fmt.Errorf("openrouter: decode response: %w", err)
	}

	if len(payload.Choices) > 0 {
		first := payload.Choices[0]
		switch {
		case first.Message != nil && first.Message.Content != "":
			return domain.Completion{Kind: domain.CompletionMessage, Content: first.Message.Content}, nil
		case first.Text != nil && *first.Text != "":
			return domain.Completion{Kind: domain.CompletionText, Content: *first.Text}, nil
		case first.Delta != nil && first.Delta.Content != "":
			return domain.Completion{Kind: domain.CompletionDelta, Content: first.Delta.Content}, nil
		}
		return domain.Completion{Kind: domain.CompletionFallback}, nil
	}

	if out, ok := decodeOutput(payload.Output); ok {
		return domain.Completion{Kind: domain.CompletionOutput, Content: out}, nil
	}
	return domain.Completion{Kind: domain.CompletionFallback}, nil
}

// decodeOutput accepts a string or a list of strings.
func decodeOutput(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	var parts []string
	if err := json.Unmarshal(raw, &parts); err == nil {
		joined := strings.Join(parts, "\n")
		return joined, joined != ""
	}
	return "", false
}
