package sqlstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"assistify/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	s, err := New(db)
	require.NoError(t, err)
	return s
}

func seedChat(t *testing.T, s *Store, userID string, createdAt time.Time) domain.Chat {
	t.Helper()
	chat := domain.Chat{
		ID:            uuid.NewString(),
		UserID:        userID,
		LatestMessage: domain.DefaultLatestMessage,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	require.NoError(t, s.CreateChat(context.Background(), chat))
	return chat
}

func newConversation(chatID string, n int, at time.Time) domain.Conversation {
	return domain.Conversation{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Question:  fmt.Sprintf("question %d", n),
		Answer:    fmt.Sprintf("answer %d", n),
		CreatedAt: at,
	}
}

var base = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestIsPostgresDSN(t *testing.T) {
	require.True(t, isPostgresDSN("postgres://u:p@localhost:5432/db"))
	require.True(t, isPostgresDSN("postgresql://localhost/db"))
	require.True(t, isPostgresDSN("host=localhost user=u dbname=db"))
	require.False(t, isPostgresDSN(":memory:"))
	require.False(t, isPostgresDSN("/var/lib/assistify.db"))
}

func TestNew_NilDB(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestGetChat_RoundTripAndMissing(t *testing.T) {
	s := newTestStore(t)
	chat := seedChat(t, s, "user-1", base)

	got, err := s.GetChat(context.Background(), chat.ID)
	require.NoError(t, err)
	require.Equal(t, chat.ID, got.ID)
	require.Equal(t, "user-1", got.UserID)
	require.Equal(t, domain.DefaultLatestMessage, got.LatestMessage)
	require.True(t, chat.CreatedAt.Equal(got.CreatedAt))

	_, err = s.GetChat(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListChats_NewestFirstAndScopedToUser(t *testing.T) {
	s := newTestStore(t)
	older := seedChat(t, s, "user-1", base)
	newer := seedChat(t, s, "user-1", base.Add(time.Hour))
	seedChat(t, s, "user-2", base.Add(2*time.Hour))

	chats, err := s.ListChats(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, chats, 2)
	require.Equal(t, newer.ID, chats[0].ID)
	require.Equal(t, older.ID, chats[1].ID)

	none, err := s.ListChats(context.Background(), "nobody")
	require.NoError(t, err)
	require.NotNil(t, none)
	require.Empty(t, none)
}

func TestAppendConversation_UpdatesChatAtomically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := seedChat(t, s, "user-1", base)
	conv := newConversation(chat.ID, 1, base.Add(time.Minute))

	updated, err := s.AppendConversation(ctx, chat, conv)
	require.NoError(t, err)
	require.Equal(t, "question 1", updated.LatestMessage)
	require.True(t, conv.CreatedAt.Equal(updated.UpdatedAt))

	stored, err := s.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Equal(t, "question 1", stored.LatestMessage)
	require.True(t, conv.CreatedAt.Equal(stored.UpdatedAt))
	require.True(t, chat.CreatedAt.Equal(stored.CreatedAt))

	convs, err := s.ListConversations(ctx, chat.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, conv.ID, convs[0].ID)
	require.Equal(t, "answer 1", convs[0].Answer)
}

func TestAppendConversation_MissingOrForeignChatWritesNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := seedChat(t, s, "user-1", base)

	foreign := chat
	foreign.UserID = "user-2"
	_, err := s.AppendConversation(ctx, foreign, newConversation(chat.ID, 1, base))
	require.ErrorIs(t, err, domain.ErrNotFound)

	ghost := domain.Chat{ID: uuid.NewString(), UserID: "user-1"}
	_, err = s.AppendConversation(ctx, ghost, newConversation(ghost.ID, 1, base))
	require.ErrorIs(t, err, domain.ErrNotFound)

	convs, err := s.ListConversations(ctx, chat.ID, 10, 0)
	require.NoError(t, err)
	require.Empty(t, convs)
	var count int64
	require.NoError(t, s.db.Model(&conversationRow{}).Count(&count).Error)
	require.Zero(t, count)

	stored, err := s.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Equal(t, domain.DefaultLatestMessage, stored.LatestMessage)
}

func TestAppendConversation_DuplicateIDRollsBackChatUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := seedChat(t, s, "user-1", base)
	first := newConversation(chat.ID, 1, base.Add(time.Minute))
	_, err := s.AppendConversation(ctx, chat, first)
	require.NoError(t, err)

	dup := newConversation(chat.ID, 2, base.Add(2*time.Minute))
	dup.ID = first.ID
	_, err = s.AppendConversation(ctx, chat, dup)
	require.Error(t, err)

	stored, err := s.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Equal(t, "question 1", stored.LatestMessage, "chat update rolled back with the failed insert")
}

func TestAppendConversation_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := seedChat(t, s, "user-1", base)

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AppendConversation(ctx, chat, newConversation(chat.ID, i, base.Add(time.Duration(i+1)*time.Second)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	convs, err := s.ListConversations(ctx, chat.ID, 1000, 0)
	require.NoError(t, err)
	require.Len(t, convs, n)

	stored, err := s.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Regexp(t, `^question \d+$`, stored.LatestMessage)
}

func TestListConversations_OrderSkipLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := seedChat(t, s, "user-1", base)
	for i := 0; i < 5; i++ {
		_, err := s.AppendConversation(ctx, chat, newConversation(chat.ID, i, base.Add(time.Duration(i+1)*time.Minute)))
		require.NoError(t, err)
	}

	convs, err := s.ListConversations(ctx, chat.ID, 2, 1)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	require.Equal(t, "question 1", convs[0].Question)
	require.Equal(t, "question 2", convs[1].Question)

	tail, err := s.ListConversations(ctx, chat.ID, 10, 4)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	require.Equal(t, "question 4", tail[0].Question)

	past, err := s.ListConversations(ctx, chat.ID, 10, 10)
	require.NoError(t, err)
	require.Empty(t, past)
}

func TestDeleteChat_Cascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := seedChat(t, s, "user-1", base)
	other := seedChat(t, s, "user-1", base)
	for i := 0; i < 3; i++ {
		_, err := s.AppendConversation(ctx, chat, newConversation(chat.ID, i, base.Add(time.Duration(i+1)*time.Minute)))
		require.NoError(t, err)
	}
	_, err := s.AppendConversation(ctx, other, newConversation(other.ID, 9, base.Add(time.Hour)))
	require.NoError(t, err)

	require.NoError(t, s.DeleteChat(ctx, chat))

	_, err = s.GetChat(ctx, chat.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	convs, err := s.ListConversations(ctx, chat.ID, 10, 0)
	require.NoError(t, err)
	require.Empty(t, convs)

	kept, err := s.ListConversations(ctx, other.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, kept, 1)

	err = s.DeleteChat(ctx, chat)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFindOrCreateUser_IdempotentPerEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.FindOrCreateUser(ctx, "a@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	require.Equal(t, "a@example.com", first.Email)

	again, err := s.FindOrCreateUser(ctx, "a@example.com")
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)

	other, err := s.FindOrCreateUser(ctx, "b@example.com")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, other.ID)

	got, err := s.GetUser(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, first.Email, got.Email)

	_, err = s.GetUser(ctx, uuid.NewString())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFindOrCreateUser_ConcurrentLoginsShareOneUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 10
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := s.FindOrCreateUser(ctx, "race@example.com")
			if err == nil {
				ids <- u.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		seen[id] = true
	}
	require.Len(t, seen, 1)

	var count int64
	require.NoError(t, s.db.Model(&userRow{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}
