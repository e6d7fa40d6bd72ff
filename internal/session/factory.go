package session

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// StoreType selects a session backend.
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeRedis    StoreType = "redis"
	StoreTypePostgres StoreType = "postgres"
)

// StoreOptions carries backend-specific settings.
type StoreOptions struct {
	RedisURL    string
	RedisTTL    time.Duration
	DatabaseURL string
}

// NewStore builds the configured backend. An empty type means memory.
func NewStore(ctx context.Context, storeType StoreType, opts StoreOptions) (Store, error) {
	switch StoreType(strings.ToLower(strings.TrimSpace(string(storeType)))) {
	case "", StoreTypeMemory:
		return NewInMemoryStore(), nil
	case StoreTypeRedis:
		if strings.TrimSpace(opts.RedisURL) == "" {
			return nil, fmt.Errorf("redis session store requires REDIS_URL")
		}
		return NewRedisStoreFromURL(ctx, opts.RedisURL, opts.RedisTTL)
	case StoreTypePostgres:
		if strings.TrimSpace(opts.DatabaseURL) == "" {
			return nil, fmt.Errorf("postgres session store requires DATABASE_URL")
		}
		return NewPostgresStore(ctx, opts.DatabaseURL)
	default:
		return nil, fmt.Errorf("unsupported session store %q (expected memory|redis|postgres)", storeType)
	}
}
