package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("store closed")

// KV is the key-value boundary workspace state is persisted through.
// Get reports a missing key with ok=false and a nil error.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
)

// Config selects and configures a KV backend.
type Config struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisPrefix   string
	BoltPath      string
	PostgresDSN   string
}

// Open builds the backend named by cfg.Backend. An empty name means memory.
func Open(ctx context.Context, cfg Config) (KV, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return NewMemoryKV(), nil
	case BackendRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, errors.New("redis backend requires an address")
		}
		kv := NewRedisKV(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisPrefix)
		if err := kv.Ping(ctx); err != nil {
			_ = kv.Close()
			return nil, err
		}
		return kv, nil
	case BackendBolt:
		if strings.TrimSpace(cfg.BoltPath) == "" {
			return nil, errors.New("bolt backend requires a path")
		}
		return NewBoltKV(cfg.BoltPath)
	case BackendPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, errors.New("postgres backend requires a dsn")
		}
		return NewGormKV(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
