package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store keeps track of authenticated session tokens. Presence of a token means the
// holder is authenticated; there is no other session state.
type Store interface {
	Create(ctx context.Context) (string, error)
	Exists(ctx context.Context, token string) (bool, error)
	Delete(ctx context.Context, token string) error
	Close() error
}

// StoreConfig selects and configures a Store implementation
type StoreConfig struct {
	Type          string
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration // 0 keeps sessions until logout or store restart
}

const redisKeyPrefix = "eggcount:session:"

func NewStore(ctx context.Context, config StoreConfig) (Store, error) {
	switch config.Type {
	case "", "memory":
		slog.Info("using in-memory session store", "ttl", config.TTL)
		return NewMemoryStore(config.TTL), nil
	case "redis":
		if config.RedisAddress == "" {
			return nil, fmt.Errorf("redis session store requires an address")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     config.RedisAddress,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.RedisAddress, err)
		}
		slog.Info("using redis session store", "address", config.RedisAddress, "ttl", config.TTL)
		return NewRedisStore(client, redisKeyPrefix, config.TTL), nil
	default:
		return nil, fmt.Errorf("unsupported session store: %s", config.Type)
	}
}

func newToken() string {
	return uuid.NewString()
}
