package session

import (
	"context"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo keeps items keyed by their lock_key or user_id and evaluates
// the conditional forms used by DynamoLocker and DynamoStore.Update.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	puts  int
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func pk(item map[string]types.AttributeValue) string {
	for _, name := range []string{"lock_key", "user_id"} {
		if v, ok := item[name].(*types.AttributeValueMemberS); ok {
			return v.Value
		}
	}
	return ""
}

func str(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func num(item map[string]types.AttributeValue, name string) int64 {
	if v, ok := item[name].(*types.AttributeValueMemberN); ok {
		n, _ := strconv.ParseInt(v.Value, 10, 64)
		return n
	}
	return 0
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[pk(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++

	key := pk(in.Item)
	if in.ConditionExpression != nil && *in.ConditionExpression == "attribute_exists(user_id)" {
		if _, ok := f.items[key]; !ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	} else if in.ConditionExpression != nil {
		if existing, ok := f.items[key]; ok {
			now := num(in.ExpressionAttributeValues, ":now")
			owner := str(in.ExpressionAttributeValues, ":owner")
			if num(existing, "expires_at") >= now && str(existing, "owner") != owner {
				return nil, &types.ConditionalCheckFailedException{}
			}
		}
	}
	f.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := pk(in.Key)
	if in.ConditionExpression != nil {
		existing, ok := f.items[key]
		if !ok || str(existing, "owner") != str(in.ExpressionAttributeValues, ":owner") {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	delete(f.items, key)
	return &dynamodb.DeleteItemOutput{}, nil
}
