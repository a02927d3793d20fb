package cache

import (
	"context"
	"fmt"
	"time"
)

// Store is the shared cache used across decision requests. Implementations
// must be safe for concurrent use. Entries are eventually consistent; a
// missing entry is never an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Backend names accepted by New
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// Options configures New
type Options struct {
	Backend    string
	TTL        time.Duration
	MaxEntries int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// New creates the store selected by opts.Backend
func New(opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemoryStore(opts.MaxEntries, opts.TTL), nil
	case BackendRedis:
		return NewRedisStore(opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.TTL), nil
	case BackendNone:
		return NoopStore{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}

// NoopStore caches nothing
type NoopStore struct{}

func (NoopStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (NoopStore) Set(context.Context, string, []byte) error         { return nil }
func (NoopStore) Delete(context.Context, string) error              { return nil }
