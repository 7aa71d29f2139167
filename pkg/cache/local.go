package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// LocalCache is an in-process backend on top of go-cache.
type LocalCache struct {
	store *gocache.Cache
}

func NewLocalCache() *LocalCache {
	return &LocalCache{
		store: gocache.New(5*time.Minute, 10*time.Minute),
	}
}

func (c *LocalCache) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

func (c *LocalCache) Set(_ context.Context, key string, value []byte, expiration time.Duration) error {
	if expiration <= 0 {
		expiration = gocache.NoExpiration
	}
	c.store.Set(key, value, expiration)
	return nil
}

func (c *LocalCache) Delete(_ context.Context, key string) error {
	c.store.Delete(key)
	return nil
}

func (c *LocalCache) Close() error {
	c.store.Flush()
	return nil
}
