package domain

import "errors"

var (
	// ErrNotFound is returned by stores when the addressed item does not exist,
	// or no longer matches the owner it was read with.
	ErrNotFound = errors.New("not found")

	// ErrLLMNotConfigured is returned by the generation client when no API
	// credential is configured.
	ErrLLMNotConfigured = errors.New("llm credential not configured")
)
