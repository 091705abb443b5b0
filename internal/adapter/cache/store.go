package cache

import (
	"context"
	"time"
)

// Store is a key-value response cache. A ttl <= 0 stores without expiry.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
