package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/murairam/my-spotify-wrapped-sub000/internal/crypto"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/model"
)

// RedisStore persists sessions as JSON values with a retention TTL.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	encryptor crypto.Encryptor
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client, encryptor crypto.Encryptor) *RedisStore {
	return &RedisStore{
		client:    client,
		prefix:    "wrapped:session:",
		encryptor: encryptor,
	}
}

func (r *RedisStore) key(userID string) string {
	return r.prefix + userID
}

func (r *RedisStore) Get(ctx context.Context, userID string) (*model.Session, error) {
	val, err := r.client.Get(ctx, r.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: redis get: %w", err)
	}

	var s model.Session
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}
	if s.RefreshToken, err = r.encryptor.Decrypt(ctx, s.RefreshToken); err != nil {
		return nil, fmt.Errorf("session: failed to decrypt refresh token: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s model.Session) error {
	data, err := r.encode(ctx, s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(s.UserID), data, RetentionTTL).Err()
}

// Update uses SET XX so a session deleted by sign-out stays deleted.
func (r *RedisStore) Update(ctx context.Context, s model.Session) error {
	data, err := r.encode(ctx, s)
	if err != nil {
		return err
	}
	ok, err := r.client.SetXX(ctx, r.key(s.UserID), data, RetentionTTL).Result()
	if err != nil {
		return fmt.Errorf("session: redis set: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (r *RedisStore) encode(ctx context.Context, s model.Session) ([]byte, error) {
	if s.UserID == "" {
		return nil, errors.New("session: missing user_id")
	}

	sealed, err := r.encryptor.Encrypt(ctx, s.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("session: failed to encrypt refresh token: %w", err)
	}
	s.RefreshToken = sealed

	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("session: failed to marshal: %w", err)
	}
	return data, nil
}

func (r *RedisStore) Delete(ctx context.Context, userID string) error {
	return r.client.Del(ctx, r.key(userID)).Err()
}
