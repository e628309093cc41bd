// Package redis provides a BundleStore backed by Redis, so pending bundles
// survive restarts and can be shared between replicas.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/page-bundler/internal/bundle"
)

const keyPrefix = "bundler:result:"

// Config captures the connection parameters.
type Config struct {
	Addr string
	DB   int
	TTL  time.Duration
}

// BundleStore stores results as JSON values with a TTL.
type BundleStore struct {
	client goredis.Cmdable
	ttl    time.Duration
}

// New connects to Redis using cfg.
func New(cfg Config) (*BundleStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := goredis.NewClient(&goredis.Options{Addr: cfg.Addr, DB: cfg.DB})
	return NewWithClient(client, cfg.TTL)
}

// NewWithClient wraps an existing client (primarily for testing).
func NewWithClient(client goredis.Cmdable, ttl time.Duration) (*BundleStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be > 0")
	}
	return &BundleStore{client: client, ttl: ttl}, nil
}

// Key returns the Redis key holding id.
func Key(id string) string {
	return keyPrefix + id
}

// Ping checks connectivity.
func (s *BundleStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failure: %w", err)
	}
	return nil
}

// Put writes result with SET EX.
func (s *BundleStore) Put(ctx context.Context, result bundle.Result) error {
	if result.ID == "" {
		return fmt.Errorf("result id is required")
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := s.client.Set(ctx, Key(result.ID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failure: %w", err)
	}
	return nil
}

// Get reads the result stored under id.
func (s *BundleStore) Get(ctx context.Context, id string) (bundle.Result, error) {
	raw, err := s.client.Get(ctx, Key(id)).Bytes()
	return decode(id, raw, err, "get")
}

// Take atomically reads and deletes the result with GETDEL.
func (s *BundleStore) Take(ctx context.Context, id string) (bundle.Result, error) {
	raw, err := s.client.GetDel(ctx, Key(id)).Bytes()
	return decode(id, raw, err, "getdel")
}

// Delete removes id.
func (s *BundleStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, Key(id)).Result()
	if err != nil {
		return fmt.Errorf("redis del failure: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", bundle.ErrNotFound, id)
	}
	return nil
}

// Close releases the client when the store owns a closable one.
func (s *BundleStore) Close() error {
	closer, ok := s.client.(io.Closer)
	if !ok {
		return nil
	}
	if err := closer.Close(); err != nil {
		return fmt.Errorf("redis close failure: %w", err)
	}
	return nil
}

func decode(id string, raw []byte, err error, op string) (bundle.Result, error) {
	if errors.Is(err, goredis.Nil) {
		return bundle.Result{}, fmt.Errorf("%w: %s", bundle.ErrNotFound, id)
	}
	if err != nil {
		return bundle.Result{}, fmt.Errorf("redis %s failure: %w", op, err)
	}
	var result bundle.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return bundle.Result{}, fmt.Errorf("decode result %s: %w", id, err)
	}
	return result, nil
}
