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

	"github.com/murairam/my-spotify-wrapped-sub000/internal/model"
)

// DefaultLockTTL bounds how long a crashed owner can block other refreshers.
const DefaultLockTTL = 15 * time.Second

// DynamoLocker implements Locker with conditional writes on a DynamoDB table
// keyed by lock_key. The table's TTL attribute is expires_at.
type DynamoLocker struct {
	client      DynamoAPI
	tableName   string
	ttlDuration time.Duration
	now         func() time.Time
}

// NewDynamoLocker creates a new DynamoLocker.
func NewDynamoLocker(client DynamoAPI, tableName string) *DynamoLocker {
	return &DynamoLocker{
		client:      client,
		tableName:   tableName,
		ttlDuration: DefaultLockTTL,
		now:         time.Now,
	}
}

// AcquireLock succeeds if:
// 1. No lock exists for the key.
// 2. The existing lock has expired.
// 3. The existing lock belongs to the same owner.
func (m *DynamoLocker) AcquireLock(ctx context.Context, key, owner string) (*model.RefreshLock, error) {
	now := m.now().Unix()

	lock := model.RefreshLock{
		Key:       key,
		Owner:     owner,
		ExpiresAt: now + int64(m.ttlDuration.Seconds()),
	}

	item, err := attributevalue.MarshalMap(lock)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	_, err = m.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(m.tableName),
		Item:      item,
		ConditionExpression: aws.String(
			"attribute_not_exists(lock_key) OR expires_at < :now OR #owner = :owner",
		),
		ExpressionAttributeNames: map[string]string{"#owner": "owner"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now)},
			":owner": &types.AttributeValueMemberS{Value: owner},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	return &lock, nil
}

// ReleaseLock deletes the lease. A lease already taken over by another owner
// is left alone.
func (m *DynamoLocker) ReleaseLock(ctx context.Context, key, owner string) error {
	_, err := m.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(m.tableName),
		Key: map[string]types.AttributeValue{
			"lock_key": &types.AttributeValueMemberS{Value: key},
		},
		ConditionExpression:      aws.String("#owner = :owner"),
		ExpressionAttributeNames: map[string]string{"#owner": "owner"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: owner},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil
		}
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

func (m *DynamoLocker) GetLockStatus(ctx context.Context, key string) (*model.RefreshLock, error) {
	out, err := m.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(m.tableName),
		Key: map[string]types.AttributeValue{
			"lock_key": &types.AttributeValueMemberS{Value: key},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get lock status: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var lock model.RefreshLock
	if err := attributevalue.UnmarshalMap(out.Item, &lock); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lock: %w", err)
	}

	// DynamoDB TTL deletion lags, so expiry is checked here too.
	if lock.ExpiresAt < m.now().Unix() {
		return nil, nil
	}
	return &lock, nil
}
