package cache

import (
	"context"
	"time"
)

// Cache is the key-value store behind the token record, upstream responses,
// parsed contracts and the last summary. Values are opaque bytes.
type Cache interface {
	// Get returns ErrCacheMiss for absent or expired keys.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value; ttl <= 0 means the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// CacheError is a constant error value.
type CacheError string

func (e CacheError) Error() string { return string(e) }

// ErrCacheMiss is returned by Get on every back-end.
const ErrCacheMiss CacheError = "cache miss"
