package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"assistify/internal/domain"
)

var (
	newUUID = uuid.NewString
	now     = time.Now
)

// GetUser reads a user profile by id.
func (c *Client) GetUser(ctx context.Context, userID string) (domain.User, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            key(userPK(userID), skProfile),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: GetUser: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.User{}, domain.ErrNotFound
	}
	user, err := itemToUser(out.Item)
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: GetUser unmarshal: %w", err)
	}
	return user, nil
}

// FindOrCreateUser returns the user registered under email, creating it when
// absent. The email claim and the profile are written in one transaction so
// two concurrent logins for the same address end up with one user.
func (c *Client) FindOrCreateUser(ctx context.Context, email string) (domain.User, error) {
	user, err := c.userByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, err
	}

	ts := now().UTC()
	user = domain.User{ID: newUUID(), Email: email, CreatedAt: ts, UpdatedAt: ts}
	_, err = c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                emailClaimItem(email, user.ID),
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                userItem(user),
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
		},
	})
	if err != nil {
		if conditionFailedAt(err, 0) {
			// Lost the race to another login; the winner's user is authoritative.
			return c.userByEmail(ctx, email)
		}
		return domain.User{}, fmt.Errorf("repository: FindOrCreateUser: %w", err)
	}
	return user, nil
}

func (c *Client) userByEmail(ctx context.Context, email string) (domain.User, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            key(emailPK(email), skEmail),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: FindOrCreateUser: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.User{}, domain.ErrNotFound
	}
	userID, err := strAttr(out.Item, "userId")
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: FindOrCreateUser unmarshal: %w", err)
	}
	return c.GetUser(ctx, userID)
}
