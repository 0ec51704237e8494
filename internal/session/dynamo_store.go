package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/murairam/my-spotify-wrapped-sub000/internal/crypto"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/model"
)

// DynamoAPI is the subset of *dynamodb.Client used by this package.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore persists sessions in a DynamoDB table keyed by user_id.
// Refresh tokens are encrypted before they are written.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	encryptor crypto.Encryptor
}

// NewDynamoStore creates a DynamoStore.
func NewDynamoStore(client DynamoAPI, tableName string, encryptor crypto.Encryptor) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName, encryptor: encryptor}
}

func (d *DynamoStore) Get(ctx context.Context, userID string) (*model.Session, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get session from DynamoDB: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var rec model.SessionRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	refreshToken, err := d.encryptor.Decrypt(ctx, rec.EncryptedRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	s := rec.Session
	s.RefreshToken = refreshToken
	return &s, nil
}

func (d *DynamoStore) Save(ctx context.Context, s model.Session) error {
	return d.put(ctx, s, false)
}

// Update writes s only if an item for s.UserID is still present.
func (d *DynamoStore) Update(ctx context.Context, s model.Session) error {
	return d.put(ctx, s, true)
}

func (d *DynamoStore) put(ctx context.Context, s model.Session, mustExist bool) error {
	if s.UserID == "" {
		return errors.New("session: missing user_id")
	}

	encrypted, err := d.encryptor.Encrypt(ctx, s.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	rec := model.SessionRecord{
		Session:               s,
		EncryptedRefreshToken: encrypted,
		TTL:                   time.Now().Add(RetentionTTL).Unix(),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	}
	if mustExist {
		input.ConditionExpression = aws.String("attribute_exists(user_id)")
	}

	if _, err := d.client.PutItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to save session to DynamoDB: %w", err)
	}
	return nil
}

func (d *DynamoStore) Delete(ctx context.Context, userID string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
