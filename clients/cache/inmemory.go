package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultInMemoryCacheSize bounds how many responses the in-memory
// backend holds before evicting the least recently used entry.
const DefaultInMemoryCacheSize = 4096

// InMemoryCache is an implementation of Cache backed by a bounded LRU,
// used for tests and deployments that run without a Redis endpoint.
type InMemoryCache struct {
	lru *lru.Cache[string, inMemoryItem]
}

var _ Cache = (*InMemoryCache)(nil)

type inMemoryItem struct {
	data      []byte
	expiresAt time.Time
}

func (i inMemoryItem) expired() bool {
	return !i.expiresAt.IsZero() && time.Now().After(i.expiresAt)
}

func NewInMemoryCache() (*InMemoryCache, error) {
	return NewInMemoryCacheWithSize(DefaultInMemoryCacheSize)
}

func NewInMemoryCacheWithSize(size int) (*InMemoryCache, error) {
	backing, err := lru.New[string, inMemoryItem](size)
	if err != nil {
		return nil, err
	}

	return &InMemoryCache{lru: backing}, nil
}

func (c *InMemoryCache) Set(ctx context.Context, key string, data []byte, expiration time.Duration) error {
	var expiresAt time.Time
	if expiration > 0 {
		expiresAt = time.Now().Add(expiration)
	}

	c.lru.Add(key, inMemoryItem{
		data:      data,
		expiresAt: expiresAt,
	})

	return nil
}

func (c *InMemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	item, ok := c.lru.Get(key)
	if !ok {
		return nil, ErrNotFound
	}

	if item.expired() {
		c.lru.Remove(key)
		return nil, ErrNotFound
	}

	return item.data, nil
}

func (c *InMemoryCache) Delete(ctx context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

func (c *InMemoryCache) Healthcheck(ctx context.Context) error {
	return nil
}

// Keys returns the keys of all live entries, used by tests to assert
// exactly which responses were cached.
func (c *InMemoryCache) Keys() []string {
	keys := make([]string, 0, c.lru.Len())
	for _, key := range c.lru.Keys() {
		if item, ok := c.lru.Peek(key); ok && !item.expired() {
			keys = append(keys, key)
		}
	}
	return keys
}
