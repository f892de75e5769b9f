// Package dynamo stores users, chats and conversations in a single DynamoDB
// table.
//
// Layout:
//
//	PK             SK                      item
//	USER#<id>      PROFILE                 user
//	EMAIL#<email>  EMAIL                   email -> user id claim
//	CHAT#<id>      META                    chat (GSI1PK=USER#<owner>, GSI1SK=CHAT#<createdAt>)
//	CHAT#<id>      CONV#<createdAt>#<id>   conversation
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"assistify/internal/domain"
)

const (
	pkUserPrefix  = "USER#"
	pkEmailPrefix = "EMAIL#"
	pkChatPrefix  = "CHAT#"
	skProfile     = "PROFILE"
	skEmail       = "EMAIL"
	skChatMeta    = "META"
	skConvPrefix  = "CONV#"
	userChatsGSI  = "GSI1"

	// maxTransactItems is the DynamoDB limit on items per TransactWriteItems call.
	maxTransactItems = 100

	// sortableTime has fixed width so sort keys order chronologically.
	sortableTime = "2006-01-02T15:04:05.000000000Z"

	conditionFailed = "ConditionalCheckFailed"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client wraps a DynamoDB table for chat state.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new store Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

func chatPK(chatID string) string { return pkChatPrefix + chatID }

func userPK(userID string) string { return pkUserPrefix + userID }

func emailPK(email string) string { return pkEmailPrefix + email }

func convSK(createdAt time.Time, convID string) string {
	return skConvPrefix + createdAt.UTC().Format(sortableTime) + "#" + convID
}

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// CreateChat inserts a new chat item.
func (c *Client) CreateChat(ctx context.Context, chat domain.Chat) error {
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                chatItem(chat),
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: CreateChat: %w", err)
	}
	return nil
}

// GetChat reads a chat with a strongly consistent read.
func (c *Client) GetChat(ctx context.Context, chatID string) (domain.Chat, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            key(chatPK(chatID), skChatMeta),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Chat{}, fmt.Errorf("repository: GetChat: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Chat{}, domain.ErrNotFound
	}
	chat, err := itemToChat(out.Item)
	if err != nil {
		return domain.Chat{}, fmt.Errorf("repository: GetChat unmarshal: %w", err)
	}
	return chat, nil
}

// ListChats returns the chats owned by userID, newest first.
func (c *Client) ListChats(ctx context.Context, userID string) ([]domain.Chat, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		IndexName:              aws.String(userChatsGSI),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: userPK(userID)},
		},
		ScanIndexForward: aws.Bool(false),
	}

	chats := []domain.Chat{}
	err := c.queryPages(ctx, in, func(items []map[string]types.AttributeValue) (bool, error) {
		for _, item := range items {
			chat, err := itemToChat(item)
			if err != nil {
				return false, err
			}
			chats = append(chats, chat)
		}
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("repository: ListChats: %w", err)
	}
	return chats, nil
}

// ListConversations returns conversations of a chat oldest first, skipping
// the first skip items and returning at most limit.
func (c *Client) ListConversations(ctx context.Context, chatID string, limit, skip int) ([]domain.Conversation, error) {
	if limit <= 0 {
		return []domain.Conversation{}, nil
	}
	want := skip + limit
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: chatPK(chatID)},
			":prefix": &types.AttributeValueMemberS{Value: skConvPrefix},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
		Limit:            aws.Int32(int32(min(want, 1000))),
	}

	convs := make([]domain.Conversation, 0, limit)
	seen := 0
	err := c.queryPages(ctx, in, func(items []map[string]types.AttributeValue) (bool, error) {
		for _, item := range items {
			seen++
			if seen <= skip {
				continue
			}
			conv, err := itemToConversation(item)
			if err != nil {
				return false, err
			}
			convs = append(convs, conv)
			if len(convs) == limit {
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("repository: ListConversations: %w", err)
	}
	return convs, nil
}

// AppendConversation writes the conversation and moves the chat pointer in one
// transaction. The chat update is conditioned on the chat still existing with
// the same owner; otherwise neither write happens and domain.ErrNotFound is
// returned.
func (c *Client) AppendConversation(ctx context.Context, chat domain.Chat, conv domain.Conversation) (domain.Chat, error) {
	if conv.ChatID != chat.ID {
		return domain.Chat{}, errors.New("repository: AppendConversation: conversation belongs to another chat")
	}
	updatedAt := conv.CreatedAt.UTC()

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                conversationItem(conv),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Update: &types.Update{
					TableName:           aws.String(c.tableName),
					Key:                 key(chatPK(chat.ID), skChatMeta),
					UpdateExpression:    aws.String("SET latestMessage = :q, updatedAt = :now"),
					ConditionExpression: aws.String("attribute_exists(PK) AND userId = :uid"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":q":   &types.AttributeValueMemberS{Value: conv.Question},
						":now": &types.AttributeValueMemberS{Value: updatedAt.Format(time.RFC3339Nano)},
						":uid": &types.AttributeValueMemberS{Value: chat.UserID},
					},
				},
			},
		},
	})
	if err != nil {
		if conditionFailedAt(err, 1) {
			return domain.Chat{}, fmt.Errorf("repository: AppendConversation: %w", domain.ErrNotFound)
		}
		return domain.Chat{}, fmt.Errorf("repository: AppendConversation: %w", err)
	}

	chat.LatestMessage = conv.Question
	chat.UpdatedAt = updatedAt
	return chat, nil
}

// DeleteChat removes every conversation of the chat and then the chat. Chats
// with fewer than maxTransactItems conversations go in one transaction. Larger
// chats are deleted in batches with the chat item in the last one, so a
// failed delete leaves the chat visible and can be retried.
func (c *Client) DeleteChat(ctx context.Context, chat domain.Chat) error {
	keys, err := c.conversationKeys(ctx, chat.ID)
	if err != nil {
		return fmt.Errorf("repository: DeleteChat: %w", err)
	}

	deletes := make([]types.TransactWriteItem, 0, len(keys)+1)
	for _, k := range keys {
		deletes = append(deletes, types.TransactWriteItem{
			Delete: &types.Delete{TableName: aws.String(c.tableName), Key: k},
		})
	}
	deletes = append(deletes, types.TransactWriteItem{
		Delete: &types.Delete{
			TableName:           aws.String(c.tableName),
			Key:                 key(chatPK(chat.ID), skChatMeta),
			ConditionExpression: aws.String("attribute_exists(PK)"),
		},
	})

	for start := 0; start < len(deletes); start += maxTransactItems {
		end := min(start+maxTransactItems, len(deletes))
		_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: deletes[start:end],
		})
		if err != nil {
			if end == len(deletes) && conditionFailedAt(err, end-start-1) {
				return fmt.Errorf("repository: DeleteChat: %w", domain.ErrNotFound)
			}
			return fmt.Errorf("repository: DeleteChat: %w", err)
		}
	}
	return nil
}

func (c *Client) conversationKeys(ctx context.Context, chatID string) ([]map[string]types.AttributeValue, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: chatPK(chatID)},
			":prefix": &types.AttributeValueMemberS{Value: skConvPrefix},
		},
		ProjectionExpression: aws.String("PK, SK"),
		ConsistentRead:       aws.Bool(true),
	}
	var keys []map[string]types.AttributeValue
	err := c.queryPages(ctx, in, func(items []map[string]types.AttributeValue) (bool, error) {
		for _, item := range items {
			keys = append(keys, map[string]types.AttributeValue{"PK": item["PK"], "SK": item["SK"]})
		}
		return true, nil
	})
	return keys, err
}

// queryPages runs in and hands each page to fn until fn returns false or the
// result set is exhausted.
func (c *Client) queryPages(ctx context.Context, in *dynamodb.QueryInput, fn func([]map[string]types.AttributeValue) (bool, error)) error {
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return err
		}
		more, err := fn(out.Items)
		if err != nil {
			return err
		}
		if !more || len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// conditionFailedAt reports whether err is a cancelled transaction whose item
// at index idx failed its condition.
func conditionFailedAt(err error, idx int) bool {
	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) {
		return false
	}
	if idx < 0 || idx >= len(canceled.CancellationReasons) {
		return false
	}
	code := canceled.CancellationReasons[idx].Code
	return code != nil && *code == conditionFailed
}
