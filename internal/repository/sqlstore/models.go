package sqlstore

import (
	"time"

	"assistify/internal/domain"
)

type userRow struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Email     string    `gorm:"uniqueIndex;size:320;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (userRow) TableName() string { return "users" }

type chatRow struct {
	ID            string    `gorm:"primaryKey;size:36"`
	UserID        string    `gorm:"index:idx_chats_user_created,priority:1;size:36;not null"`
	LatestMessage string    `gorm:"type:text;not null"`
	CreatedAt     time.Time `gorm:"index:idx_chats_user_created,priority:2;autoCreateTime:false"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime:false"`
}

func (chatRow) TableName() string { return "chats" }

type conversationRow struct {
	ID        string    `gorm:"primaryKey;size:36"`
	ChatID    string    `gorm:"index:idx_conversations_chat_created,priority:1;size:36;not null"`
	Question  string    `gorm:"type:text;not null"`
	Answer    string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index:idx_conversations_chat_created,priority:2;autoCreateTime:false"`
}

func (conversationRow) TableName() string { return "conversations" }

func fromUser(u domain.User) userRow {
	return userRow{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt.UTC(), UpdatedAt: u.UpdatedAt.UTC()}
}

func (r userRow) toDomain() domain.User {
	return domain.User{ID: r.ID, Email: r.Email, CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC()}
}

func fromChat(c domain.Chat) chatRow {
	return chatRow{
		ID:            c.ID,
		UserID:        c.UserID,
		LatestMessage: c.LatestMessage,
		CreatedAt:     c.CreatedAt.UTC(),
		UpdatedAt:     c.UpdatedAt.UTC(),
	}
}

func (r chatRow) toDomain() domain.Chat {
	return domain.Chat{
		ID:            r.ID,
		UserID:        r.UserID,
		LatestMessage: r.LatestMessage,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

func fromConversation(c domain.Conversation) conversationRow {
	return conversationRow{
		ID:        c.ID,
		ChatID:    c.ChatID,
		Question:  c.Question,
		Answer:    c.Answer,
		CreatedAt: c.CreatedAt.UTC(),
	}
}

func (r conversationRow) toDomain() domain.Conversation {
	return domain.Conversation{
		ID:        r.ID,
		ChatID:    r.ChatID,
		Question:  r.Question,
		Answer:    r.Answer,
		CreatedAt: r.CreatedAt.UTC(),
	}
}
