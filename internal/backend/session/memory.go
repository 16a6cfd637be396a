package session

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

const memoryCleanupInterval = 10 * time.Minute

// MemoryStore keeps sessions in process memory; a restart logs everyone out.
type MemoryStore struct {
	cache *cache.Cache
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	expiration := cache.NoExpiration
	if ttl > 0 {
		expiration = ttl
	}
	return &MemoryStore{cache: cache.New(expiration, memoryCleanupInterval)}
}

func (s *MemoryStore) Create(_ context.Context) (string, error) {
	token := newToken()
	s.cache.Set(token, struct{}{}, cache.DefaultExpiration)
	return token, nil
}

func (s *MemoryStore) Exists(_ context.Context, token string) (bool, error) {
	_, ok := s.cache.Get(token)
	return ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.cache.Delete(token)
	return nil
}

func (s *MemoryStore) Close() error {
	s.cache.Flush()
	return nil
}
