package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps objects in Redis under <prefix>:<kind>:<name>, with a set
// per kind indexing the names.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL expires objects after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix. Default is "suidriver".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStore creates a store on client.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: "suidriver"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save stores data and indexes its name in one round-trip.
func (s *RedisStore) Save(ctx context.Context, kind, name string, data []byte) error {
	if err := checkKey(kind, name); err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.objectKey(kind, name), data, s.ttl)
	pipe.SAdd(ctx, s.indexKey(kind), name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save %s/%s failed: %w", kind, name, err)
	}
	return nil
}

// Load reads an object.
func (s *RedisStore) Load(ctx context.Context, kind, name string) ([]byte, error) {
	if err := checkKey(kind, name); err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.objectKey(kind, name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound(kind, name)
		}
		return nil, fmt.Errorf("redis get %s/%s failed: %w", kind, name, err)
	}
	return data, nil
}

// Delete removes an object and its index entry.
func (s *RedisStore) Delete(ctx context.Context, kind, name string) error {
	if err := checkKey(kind, name); err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.objectKey(kind, name))
	pipe.SRem(ctx, s.indexKey(kind), name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete %s/%s failed: %w", kind, name, err)
	}
	if del.Val() == 0 {
		return notFound(kind, name)
	}
	return nil
}

// List returns the sorted names of live objects of kind. Index entries of
// expired objects are pruned.
func (s *RedisStore) List(ctx context.Context, kind string) ([]string, error) {
	if kind == "" {
		return nil, ErrInvalidKey
	}
	members, err := s.client.SMembers(ctx, s.indexKey(kind)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list %s failed: %w", kind, err)
	}

	names := []string{}
	var stale []any
	for _, name := range members {
		n, err := s.client.Exists(ctx, s.objectKey(kind, name)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis list %s failed: %w", kind, err)
		}
		if n == 0 {
			stale = append(stale, name)
			continue
		}
		names = append(names, name)
	}
	if len(stale) > 0 {
		s.client.SRem(ctx, s.indexKey(kind), stale...)
	}
	sort.Strings(names)
	return names, nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) objectKey(kind, name string) string {
	return s.prefix + ":" + kind + ":" + name
}

func (s *RedisStore) indexKey(kind string) string {
	return s.prefix + ":" + kind + ":index"
}
