// Package redisstore implements cache.SecondaryStore on Redis.
//
// Any go-redis v9 UniversalClient works: a single node, a cluster or a
// sentinel-backed failover client. Keys are namespaced with a prefix so
// several caches can share one database.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/IvanBrykalov/resilientcache/cache"
)

// Store is a Redis-backed secondary tier.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// New returns a Store that writes keys as prefix+key.
func New(client redis.UniversalClient, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Load implements cache.SecondaryStore.
func (s *Store) Load(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redisstore: get %q: %w", key, err)
	}
	return b, true, nil
}

// Save implements cache.SecondaryStore. Non-positive ttls are not stored:
// the value would already be past its physical lifetime.
func (s *Store) Save(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: set %q: %w", key, err)
	}
	return nil
}

// Remove implements cache.SecondaryStore.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redisstore: del %q: %w", key, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

var _ cache.SecondaryStore = (*Store)(nil)
