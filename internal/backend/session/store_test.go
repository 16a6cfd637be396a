package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisTestStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, redisKeyPrefix, ttl)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestStores_Lifecycle(t *testing.T) {
	redisStore, _ := newRedisTestStore(t, 0)
	stores := map[string]Store{
		"memory": NewMemoryStore(0),
		"redis":  redisStore,
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			token, err := store.Create(ctx)
			if err != nil {
				t.Fatalf("Create error: %v", err)
			}
			if token == "" {
				t.Fatal("expected non-empty token")
			}

			other, err := store.Create(ctx)
			if err != nil {
				t.Fatalf("Create error: %v", err)
			}
			if other == token {
				t.Fatal("expected distinct tokens")
			}

			exists, err := store.Exists(ctx, token)
			if err != nil || !exists {
				t.Fatalf("expected token to exist, exists=%v err=%v", exists, err)
			}

			if err := store.Delete(ctx, token); err != nil {
				t.Fatalf("Delete error: %v", err)
			}
			exists, err = store.Exists(ctx, token)
			if err != nil || exists {
				t.Fatalf("expected token to be gone, exists=%v err=%v", exists, err)
			}

			exists, err = store.Exists(ctx, other)
			if err != nil || !exists {
				t.Fatalf("expected other token to survive, exists=%v err=%v", exists, err)
			}

			exists, err = store.Exists(ctx, "never-issued")
			if err != nil || exists {
				t.Fatalf("expected unknown token not to exist, exists=%v err=%v", exists, err)
			}
		})
	}
}

func TestRedisStore_TTL(t *testing.T) {
	store, mr := newRedisTestStore(t, time.Minute)
	ctx := context.Background()

	token, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if ttl := mr.TTL(redisKeyPrefix + token); ttl != time.Minute {
		t.Fatalf("expected TTL of one minute, got %v", ttl)
	}

	mr.FastForward(2 * time.Minute)
	exists, err := store.Exists(ctx, token)
	if err != nil || exists {
		t.Fatalf("expected session to expire, exists=%v err=%v", exists, err)
	}
}

func TestMemoryStore_TTL(t *testing.T) {
	store := NewMemoryStore(20 * time.Millisecond)
	ctx := context.Background()

	token, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if exists, _ := store.Exists(ctx, token); exists {
		t.Fatal("expected session to expire")
	}
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	memory, err := NewStore(ctx, StoreConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("memory store error: %v", err)
	}
	if _, ok := memory.(*MemoryStore); !ok {
		t.Errorf("expected *MemoryStore, got %T", memory)
	}

	redisStore, err := NewStore(ctx, StoreConfig{Type: "redis", RedisAddress: mr.Addr()})
	if err != nil {
		t.Fatalf("redis store error: %v", err)
	}
	t.Cleanup(func() { _ = redisStore.Close() })
	if _, ok := redisStore.(*RedisStore); !ok {
		t.Errorf("expected *RedisStore, got %T", redisStore)
	}

	if _, err := NewStore(ctx, StoreConfig{Type: "redis"}); err == nil {
		t.Error("expected error for redis store without address")
	}
	if _, err := NewStore(ctx, StoreConfig{Type: "memcached"}); err == nil {
		t.Error("expected error for unsupported store type")
	}
}
