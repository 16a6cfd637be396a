package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions in redis so they survive restarts and can be shared by replicas.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisStore) key(token string) string {
	return s.prefix + token
}

func (s *RedisStore) Create(ctx context.Context) (string, error) {
	token := newToken()
	if err := s.client.Set(ctx, s.key(token), "1", s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}
	return token, nil
}

func (s *RedisStore) Exists(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to look up session: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
