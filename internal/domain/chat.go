package domain

import "time"

// DefaultLatestMessage is the latestMessage of a chat that has no conversations yet.
const DefaultLatestMessage = "New Conversation"

// ChatMessage is the provider-agnostic chat message shape sent to the LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat is a conversation thread owned by one user.
type Chat struct {
	ID            string    `json:"_id"`
	UserID        string    `json:"user"`
	LatestMessage string    `json:"latestMessage"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Conversation is one question/answer turn within a Chat.
type Conversation struct {
	ID        string    `json:"_id"`
	ChatID    string    `json:"chat"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"createdAt"`
}

// User is an account identified by email.
type User struct {
	ID        string    `json:"_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
