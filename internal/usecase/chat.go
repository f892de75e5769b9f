package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"assistify/internal/domain"
	"assistify/internal/sanitize"
)

const (
	defaultGenerateTimeout   = 30 * time.Second
	defaultConversationLimit = 100
	maxConversationLimit     = 1000
)

// ChatStore is the storage collaborator. AppendConversation must insert the
// conversation and move the chat's latestMessage in one atomic unit and
// return domain.ErrNotFound when the chat no longer exists for chat.UserID.
type ChatStore interface {
	CreateChat(ctx context.Context, chat domain.Chat) error
	GetChat(ctx context.Context, chatID string) (domain.Chat, error)
	ListChats(ctx context.Context, userID string) ([]domain.Chat, error)
	ListConversations(ctx context.Context, chatID string, limit, skip int) ([]domain.Conversation, error)
	AppendConversation(ctx context.Context, chat domain.Chat, conv domain.Conversation) (domain.Chat, error)
	DeleteChat(ctx context.Context, chat domain.Chat) error
}

// Generator produces an answer for a prompt.
type Generator interface {
	Complete(ctx context.Context, messages []domain.ChatMessage) (domain.Completion, error)
}

type authFailure interface {
	AuthFailure() bool
}

type timeout interface {
	Timeout() bool
}

type ChatService struct {
	store           ChatStore
	llm             Generator
	generateTimeout time.Duration
	now             func() time.Time
}

type AddConversationInput struct {
	UserID       string
	ChatID       string
	Question     string
	Answer       string
	SystemPrompt string
}

type AddConversationOutput struct {
	Conversation domain.Conversation
	Chat         domain.Chat
}

type ListConversationsInput struct {
	UserID string
	ChatID string
	Limit  int
	Skip   int
}

func NewChatService(store ChatStore, llm Generator, generateTimeout time.Duration) (*ChatService, error) {
	if store == nil {
		return nil, errors.New("usecase: chat store must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: generator must not be nil")
	}
	if generateTimeout <= 0 {
		generateTimeout = defaultGenerateTimeout
	}
	return &ChatService{
		store:           store,
		llm:             llm,
		generateTimeout: generateTimeout,
		now:             time.Now,
	}, nil
}

func (s *ChatService) CreateChat(ctx context.Context, userID string) (domain.Chat, error) {
	now := s.now().UTC()
	chat := domain.Chat{
		ID:            newUUID(),
		UserID:        userID,
		LatestMessage: domain.DefaultLatestMessage,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateChat(ctx, chat); err != nil {
		return domain.Chat{}, newError(ErrorPersistence, "create_chat_error", "Failed to create chat", err)
	}
	return chat, nil
}

func (s *ChatService) ListChats(ctx context.Context, userID string) ([]domain.Chat, error) {
	chats, err := s.store.ListChats(ctx, userID)
	if err != nil {
		return nil, newError(ErrorInternal, "list_chats_error", "Failed to fetch chats", err)
	}
	return chats, nil
}

// AddConversation appends one question/answer turn to a chat the caller owns.
// When in.Answer is empty the answer is generated remotely. Nothing is written
// unless every earlier step succeeded.
func (s *ChatService) AddConversation(ctx context.Context, in AddConversationInput) (AddConversationOutput, error) {
	if strings.TrimSpace(in.Question) == "" {
		return AddConversationOutput{}, newError(ErrorInvalidInput, "empty_question", "question is required and must be a non-empty string", nil)
	}
	if !validID(in.ChatID) {
		return AddConversationOutput{}, newError(ErrorInvalidInput, "invalid_chat_id", "Invalid chat ID format", nil)
	}

	chat, err := s.authorize(ctx, in.UserID, in.ChatID, "You are not authorized to add conversation to this chat")
	if err != nil {
		return AddConversationOutput{}, err
	}

	answer := in.Answer
	if answer == "" {
		answer, err = s.generate(ctx, in.Question, in.SystemPrompt)
		if err != nil {
			return AddConversationOutput{}, err
		}
	}

	conv := domain.Conversation{
		ID:        newUUID(),
		ChatID:    chat.ID,
		Question:  in.Question,
		Answer:    sanitize.Answer(answer),
		CreatedAt: s.now().UTC(),
	}
	updated, err := s.store.AppendConversation(ctx, chat, conv)
	if err != nil {
		return AddConversationOutput{}, newError(ErrorPersistence, "append_conversation_error", "Failed to add conversation", err)
	}
	return AddConversationOutput{Conversation: conv, Chat: updated}, nil
}

func (s *ChatService) ListConversations(ctx context.Context, in ListConversationsInput) ([]domain.Conversation, error) {
	if !validID(in.ChatID) {
		return nil, newError(ErrorInvalidInput, "invalid_chat_id", "Invalid chat ID format", nil)
	}
	chat, err := s.authorize(ctx, in.UserID, in.ChatID, "You are not authorized to view this chat")
	if err != nil {
		return nil, err
	}

	limit := in.Limit
	if limit <= 0 {
		limit = defaultConversationLimit
	}
	if limit > maxConversationLimit {
		limit = maxConversationLimit
	}
	skip := max(in.Skip, 0)

	convs, err := s.store.ListConversations(ctx, chat.ID, limit, skip)
	if err != nil {
		return nil, newError(ErrorInternal, "list_conversations_error", "Server error occurred", err)
	}
	if len(convs) == 0 {
		return nil, newError(ErrorNotFound, "no_conversations", "No conversation found", nil)
	}
	return convs, nil
}

// DeleteChat removes a chat the caller owns together with its conversations.
func (s *ChatService) DeleteChat(ctx context.Context, userID, chatID string) error {
	if !validID(chatID) {
		return newError(ErrorInvalidInput, "invalid_chat_id", "Invalid chat ID format", nil)
	}
	chat, err := s.authorize(ctx, userID, chatID, "You are not authorized to delete this chat")
	if err != nil {
		return err
	}
	if err := s.store.DeleteChat(ctx, chat); err != nil {
		return newError(ErrorPersistence, "delete_chat_error", "Failed to delete chat", err)
	}
	return nil
}

func (s *ChatService) authorize(ctx context.Context, userID, chatID, forbidden string) (domain.Chat, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Chat{}, newError(ErrorNotFound, "chat_not_found", "No chat found", nil)
	}
	if err != nil {
		return domain.Chat{}, newError(ErrorInternal, "chat_lookup_error", "Server error occurred", err)
	}
	if chat.UserID != userID {
		return domain.Chat{}, newError(ErrorForbidden, "chat_not_owned", forbidden, nil)
	}
	return chat, nil
}

func (s *ChatService) generate(ctx context.Context, question, systemPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.generateTimeout)
	defer cancel()

	completion, err := s.llm.Complete(ctx, buildPromptMessages(systemPrompt, question))
	if err == nil {
		return completion.Answer(), nil
	}

	var af authFailure
	var to timeout
	switch {
	case errors.Is(err, domain.ErrLLMNotConfigured):
		return "", newError(ErrorUpstreamAuth, "llm_not_configured", "Answer generation is not configured on the server", err)
	case errors.As(err, &af) && af.AuthFailure():
		return "", newError(ErrorUpstreamAuth, "llm_auth_failed", "Failed to generate answer - authentication with the generation service failed", err)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &to) && to.Timeout():
		return "", newError(ErrorUpstream, "llm_timeout", "Failed to generate answer - the generation service timed out", err)
	default:
		return "", newError(ErrorUpstream, "llm_error", "Failed to generate answer", err)
	}
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}

var newUUID = func() string {
	return uuid.NewString()
}
