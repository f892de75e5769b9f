package domain

// FallbackAnswer replaces a completion that carried no extractable text.
const FallbackAnswer = "Sorry, I could not generate an answer at this time."

// CompletionKind tells which part of the provider response produced the text.
type CompletionKind int

const (
	CompletionFallback CompletionKind = iota
	CompletionMessage
	CompletionText
	CompletionDelta
	CompletionOutput
)

func (k CompletionKind) String() string {
	switch k {
	case CompletionMessage:
		return "message"
	case CompletionText:
		return "text"
	case CompletionDelta:
		return "delta"
	case CompletionOutput:
		return "output"
	default:
		return "fallback"
	}
}

// Completion is the decoded answer of a chat-completion call. Content is only
// meaningful for non-fallback kinds.
type Completion struct {
	Kind    CompletionKind
	Content string
}

// Answer returns the completion text, or FallbackAnswer for the fallback kind.
func (c Completion) Answer() string {
	if c.Kind == CompletionFallback {
		return FallbackAnswer
	}
	return c.Content
}
