package dynamo

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"assistify/internal/domain"
)

func chatItem(chat domain.Chat) map[string]types.AttributeValue {
	created := chat.CreatedAt.UTC()
	return map[string]types.AttributeValue{
		"PK":            &types.AttributeValueMemberS{Value: chatPK(chat.ID)},
		"SK":            &types.AttributeValueMemberS{Value: skChatMeta},
		"GSI1PK":        &types.AttributeValueMemberS{Value: userPK(chat.UserID)},
		"GSI1SK":        &types.AttributeValueMemberS{Value: pkChatPrefix + created.Format(sortableTime)},
		"chatId":        &types.AttributeValueMemberS{Value: chat.ID},
		"userId":        &types.AttributeValueMemberS{Value: chat.UserID},
		"latestMessage": &types.AttributeValueMemberS{Value: chat.LatestMessage},
		"createdAt":     &types.AttributeValueMemberS{Value: created.Format(time.RFC3339Nano)},
		"updatedAt":     &types.AttributeValueMemberS{Value: chat.UpdatedAt.UTC().Format(time.RFC3339Nano)},
	}
}

func itemToChat(item map[string]types.AttributeValue) (domain.Chat, error) {
	id, err := strAttr(item, "chatId")
	if err != nil {
		return domain.Chat{}, err
	}
	userID, err := strAttr(item, "userId")
	if err != nil {
		return domain.Chat{}, err
	}
	latest, err := strAttr(item, "latestMessage")
	if err != nil {
		return domain.Chat{}, err
	}
	created, err := timeAttr(item, "createdAt")
	if err != nil {
		return domain.Chat{}, err
	}
	updated, err := timeAttr(item, "updatedAt")
	if err != nil {
		return domain.Chat{}, err
	}
	return domain.Chat{
		ID:            id,
		UserID:        userID,
		LatestMessage: latest,
		CreatedAt:     created,
		UpdatedAt:     updated,
	}, nil
}

func conversationItem(conv domain.Conversation) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: chatPK(conv.ChatID)},
		"SK":             &types.AttributeValueMemberS{Value: convSK(conv.CreatedAt, conv.ID)},
		"conversationId": &types.AttributeValueMemberS{Value: conv.ID},
		"chatId":         &types.AttributeValueMemberS{Value: conv.ChatID},
		"question":       &types.AttributeValueMemberS{Value: conv.Question},
		"answer":         &types.AttributeValueMemberS{Value: conv.Answer},
		"createdAt":      &types.AttributeValueMemberS{Value: conv.CreatedAt.UTC().Format(time.RFC3339Nano)},
	}
}

func itemToConversation(item map[string]types.AttributeValue) (domain.Conversation, error) {
	id, err := strAttr(item, "conversationId")
	if err != nil {
		return domain.Conversation{}, err
	}
	chatID, err := strAttr(item, "chatId")
	if err != nil {
		return domain.Conversation{}, err
	}
	question, err := strAttr(item, "question")
	if err != nil {
		return domain.Conversation{}, err
	}
	// An empty answer is stored as an empty string, never omitted.
	answer, err := strAttr(item, "answer")
	if err != nil {
		return domain.Conversation{}, err
	}
	created, err := timeAttr(item, "createdAt")
	if err != nil {
		return domain.Conversation{}, err
	}
	return domain.Conversation{
		ID:        id,
		ChatID:    chatID,
		Question:  question,
		Answer:    answer,
		CreatedAt: created,
	}, nil
}

func userItem(user domain.User) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: userPK(user.ID)},
		"SK":        &types.AttributeValueMemberS{Value: skProfile},
		"userId":    &types.AttributeValueMemberS{Value: user.ID},
		"email":     &types.AttributeValueMemberS{Value: user.Email},
		"createdAt": &types.AttributeValueMemberS{Value: user.CreatedAt.UTC().Format(time.RFC3339Nano)},
		"updatedAt": &types.AttributeValueMemberS{Value: user.UpdatedAt.UTC().Format(time.RFC3339Nano)},
	}
}

func emailClaimItem(email, userID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":     &types.AttributeValueMemberS{Value: emailPK(email)},
		"SK":     &types.AttributeValueMemberS{Value: skEmail},
		"userId": &types.AttributeValueMemberS{Value: userID},
	}
}

func itemToUser(item map[string]types.AttributeValue) (domain.User, error) {
	id, err := strAttr(item, "userId")
	if err != nil {
		return domain.User{}, err
	}
	email, err := strAttr(item, "email")
	if err != nil {
		return domain.User{}, err
	}
	created, err := timeAttr(item, "createdAt")
	if err != nil {
		return domain.User{}, err
	}
	updated, err := timeAttr(item, "updatedAt")
	if err != nil {
		return domain.User{}, err
	}
	return domain.User{ID: id, Email: email, CreatedAt: created, UpdatedAt: updated}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return t, nil
}
