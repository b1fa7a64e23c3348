package cache

import (
	"context"
	"time"
)

// Store is the durable key space the cache persists into.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
	DeleteExpired(ctx context.Context) (int64, error)
}
