// Package sqlstore persists users, chats and conversations with gorm on
// Postgres or SQLite.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"assistify/internal/domain"
)

var (
	newUUID = uuid.NewString
	now     = time.Now
)

// Store implements the chat and user stores over a gorm connection.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("sqlstore: db must not be nil")
	}
	return &Store{db: db}, nil
}

func (s *Store) CreateChat(ctx context.Context, chat domain.Chat) error {
	row := fromChat(chat)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("repository: CreateChat: %w", err)
	}
	return nil
}

func (s *Store) GetChat(ctx context.Context, chatID string) (domain.Chat, error) {
	var row chatRow
	err := s.db.WithContext(ctx).Where("id = ?", chatID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Chat{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Chat{}, fmt.Errorf("repository: GetChat: %w", err)
	}
	return row.toDomain(), nil
}

// ListChats returns the chats owned by userID, newest first.
func (s *Store) ListChats(ctx context.Context, userID string) ([]domain.Chat, error) {
	var rows []chatRow
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("repository: ListChats: %w", err)
	}
	chats := make([]domain.Chat, 0, len(rows))
	for _, r := range rows {
		chats = append(chats, r.toDomain())
	}
	return chats, nil
}

// ListConversations returns conversations oldest first.
func (s *Store) ListConversations(ctx context.Context, chatID string, limit, skip int) ([]domain.Conversation, error) {
	var rows []conversationRow
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").Order("id ASC").
		Offset(skip).Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("repository: ListConversations: %w", err)
	}
	convs := make([]domain.Conversation, 0, len(rows))
	for _, r := range rows {
		convs = append(convs, r.toDomain())
	}
	return convs, nil
}

// AppendConversation moves the chat pointer and inserts the conversation in
// one transaction. The chat row is updated first so concurrent deletes block
// on its lock; if it no longer exists for chat.UserID nothing is written.
func (s *Store) AppendConversation(ctx context.Context, chat domain.Chat, conv domain.Conversation) (domain.Chat, error) {
	if conv.ChatID != chat.ID {
		return domain.Chat{}, errors.New("repository: AppendConversation: conversation belongs to another chat")
	}
	updatedAt := conv.CreatedAt.UTC()

	err := s.transact(ctx, "AppendConversation", func(tx *gorm.DB) error {
		res := tx.Model(&chatRow{}).
			Where("id = ? AND user_id = ?", chat.ID, chat.UserID).
			Updates(map[string]any{"latest_message": conv.Question, "updated_at": updatedAt})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		row := fromConversation(conv)
		return tx.Create(&row).Error
	})
	if err != nil {
		return domain.Chat{}, fmt.Errorf("repository: AppendConversation: %w", err)
	}

	chat.LatestMessage = conv.Question
	chat.UpdatedAt = updatedAt
	return chat, nil
}

// DeleteChat removes the chat and all of its conversations in one transaction.
func (s *Store) DeleteChat(ctx context.Context, chat domain.Chat) error {
	err := s.transact(ctx, "DeleteChat", func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chat.ID).Delete(&conversationRow{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ? AND user_id = ?", chat.ID, chat.UserID).Delete(&chatRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("repository: DeleteChat: %w", err)
	}
	return nil
}

// transact runs fn in a transaction. A failed rollback is logged and the
// error from fn is returned.
func (s *Store) transact(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			s.rollback(ctx, tx, op)
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		s.rollback(ctx, tx, op)
		return err
	}
	return tx.Commit().Error
}

func (s *Store) rollback(ctx context.Context, tx *gorm.DB, op string) {
	if err := tx.Rollback().Error; err != nil {
		slog.WarnContext(ctx, "rollback failed", "op", op, "err", err)
	}
}

func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	var row userRow
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: GetUser: %w", err)
	}
	return row.toDomain(), nil
}

// FindOrCreateUser inserts a user for email unless one exists and returns the
// stored row. The unique email index resolves concurrent first logins.
func (s *Store) FindOrCreateUser(ctx context.Context, email string) (domain.User, error) {
	db := s.db.WithContext(ctx)
	ts := now().UTC()
	candidate := fromUser(domain.User{ID: newUUID(), Email: email, CreatedAt: ts, UpdatedAt: ts})

	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(&candidate).Error
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: FindOrCreateUser: %w", err)
	}

	var row userRow
	if err := db.Where("email = ?", email).First(&row).Error; err != nil {
		return domain.User{}, fmt.Errorf("repository: FindOrCreateUser: %w", err)
	}
	return row.toDomain(), nil
}
