// Package db defines the key-value storage contract used for caching.
package db

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound signals a cache miss.
var ErrKeyNotFound = errors.New("db: key not found")

// KV is a minimal byte-oriented key-value store.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Store adds lifecycle operations on top of KV.
type Store interface {
	KV
	Ping(ctx context.Context) error
	Close()
}
