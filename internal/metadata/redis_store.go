package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists object infos in Redis so several workstations or CI
// runners can share one metadata cache.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	// Addr is the Redis server address (host:port)
	Addr string
	// Password is the Redis password (optional)
	Password string
	// DB is the Redis database number
	DB int
	// Prefix is prepended to all keys
	Prefix string
}

// DefaultRedisConfig returns a default Redis configuration
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "querylint:",
	}
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(config RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Addr, err)
	}

	return NewRedisStoreWithClient(client, config.Prefix), nil
}

// NewRedisStoreWithClient creates a store over an existing client
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// Load retrieves the record for typeName.
func (r *RedisStore) Load(ctx context.Context, typeName string) (*Record, error) {
	var rec Record
	if err := r.get(ctx, r.objectKey(typeName), &rec); err != nil {
		return nil, err
	}
	if rec.Info == nil {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Save stores the record without expiry.
func (r *RedisStore) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.Info == nil || rec.Key() == "" {
		return errors.New("metadata: record has no type name")
	}
	return r.set(ctx, r.objectKey(rec.Key()), rec)
}

// LoadKnownTypes retrieves the type name list.
func (r *RedisStore) LoadKnownTypes(ctx context.Context) ([]string, error) {
	var names []string
	if err := r.get(ctx, r.prefix+"known-types", &names); err != nil {
		return nil, err
	}
	return names, nil
}

// SaveKnownTypes stores the type name list.
func (r *RedisStore) SaveKnownTypes(ctx context.Context, names []string) error {
	return r.set(ctx, r.prefix+"known-types", names)
}

// Clear removes all keys under the store prefix
func (r *RedisStore) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) objectKey(typeName string) string {
	return r.prefix + "object:" + typeName
}

func (r *RedisStore) get(ctx context.Context, key string, v any) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return r.client.Set(ctx, key, data, 0).Err()
}
