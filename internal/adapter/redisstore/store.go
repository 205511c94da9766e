// Package redisstore implements the context store port on a Redis hash
// per namespace.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/campfirehq/hestia/internal/config"
)

// KeyPrefix namespaces every hash key written by the framework.
const KeyPrefix = "smartapp-context-"

// Store wraps a pooled Redis client as the durable context store.
type Store struct {
	client *redis.Client
}

// New creates a Store from the Redis config and verifies connectivity.
func New(ctx context.Context, cfg config.Redis) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{client: client}, nil
}

// NewFromClient wraps an existing Redis client. Used by tests with miniredis.
func NewFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

func key(namespace string) string {
	return KeyPrefix + namespace
}

// Get returns the value stored for id in the namespace hash.
func (s *Store) Get(ctx context.Context, namespace, id string) ([]byte, bool, error) {
	val, err := s.client.HGet(ctx, key(namespace), id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("hget %s/%s: %w", namespace, id, err)
	}
	return val, true, nil
}

// Set writes the value for id into the namespace hash.
func (s *Store) Set(ctx context.Context, namespace, id string, value []byte) error {
	if err := s.client.HSet(ctx, key(namespace), id, value).Err(); err != nil {
		return fmt.Errorf("hset %s/%s: %w", namespace, id, err)
	}
	return nil
}

// Delete removes id from the namespace hash. Absent ids are a no-op.
func (s *Store) Delete(ctx context.Context, namespace, id string) error {
	if err := s.client.HDel(ctx, key(namespace), id).Err(); err != nil {
		return fmt.Errorf("hdel %s/%s: %w", namespace, id, err)
	}
	return nil
}

// IDs enumerates every installation id in the namespace hash.
func (s *Store) IDs(ctx context.Context, namespace string) ([]string, error) {
	ids, err := s.client.HKeys(ctx, key(namespace)).Result()
	if err != nil {
		return nil, fmt.Errorf("hkeys %s: %w", namespace, err)
	}
	return ids, nil
}
