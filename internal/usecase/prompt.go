package usecase

import (
	"strings"

	"assistify/internal/domain"
)

const defaultSystemPrompt = "Respond in plain text only. Do NOT use bullet points, '*', '-', '+', Markdown, or formatting. Use plain sentences only."

// buildPromptMessages returns the single exchange sent to the generation
// service. A non-blank caller prompt replaces the default system instruction.
func buildPromptMessages(systemPrompt, question string) []domain.ChatMessage {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}
	return []domain.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: question},
	}
}
