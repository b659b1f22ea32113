package kvstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rzpsarthak13/starphoenix/internal/core"
	"github.com/rzpsarthak13/starphoenix/internal/registry"
)

// scanCount is the COUNT hint passed to SCAN.
const scanCount = 100

// RedisKVStore implements core.KVStore and the write-back list operations on
// Redis. One endpoint dials a single node; several dial a cluster.
type RedisKVStore struct {
	client redis.UniversalClient
	closed atomic.Bool
}

// NewRedisKVStore connects and pings before returning.
func NewRedisKVStore(config KVStoreConfig) (*RedisKVStore, error) {
	if len(config.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one endpoint is required")
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        config.Endpoints,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("[REDIS] Connected to %v (db %d)", config.Endpoints, config.DB)
	return &RedisKVStore{client: client}, nil
}

func (r *RedisKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if r.closed.Load() {
		return nil, ErrStoreClosed
	}
	val, err := r.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	case err != nil:
		log.Printf("[REDIS] ERROR: GET %s: %v", key, err)
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, nil
}

func (r *RedisKVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if r.closed.Load() {
		return ErrStoreClosed
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		log.Printf("[REDIS] ERROR: SET %s: %v", key, err)
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (r *RedisKVStore) Delete(ctx context.Context, key string) error {
	if r.closed.Load() {
		return ErrStoreClosed
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

func (r *RedisKVStore) Exists(ctx context.Context, key string) (bool, error) {
	if r.closed.Load() {
		return false, ErrStoreClosed
	}
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check existence of key %s: %w", key, err)
	}
	return n > 0, nil
}

// BatchSet pipelines one SET per item. Keys may span cluster slots, so the
// batch is not atomic.
func (r *RedisKVStore) BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	if r.closed.Load() {
		return ErrStoreClosed
	}
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, value := range items {
			pipe.Set(ctx, key, value, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to batch set %d keys: %w", len(items), err)
	}
	return nil
}

// Keys walks SCAN on every master, so the server is never blocked.
func (r *RedisKVStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if r.closed.Load() {
		return nil, ErrStoreClosed
	}

	var (
		mu   sync.Mutex
		keys []string
	)
	scan := func(ctx context.Context, node redis.UniversalClient) error {
		iter := node.Scan(ctx, 0, prefix+"*", scanCount).Iterator()
		for iter.Next(ctx) {
			mu.Lock()
			keys = append(keys, iter.Val())
			mu.Unlock()
		}
		return iter.Err()
	}

	var err error
	if cluster, ok := r.client.(*redis.ClusterClient); ok {
		err = cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			return scan(ctx, node)
		})
	} else {
		err = scan(ctx, r.client)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan keys with prefix %s: %w", prefix, err)
	}
	return keys, nil
}

func (r *RedisKVStore) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.client.Close()
}

func (r *RedisKVStore) ListPush(ctx context.Context, key string, value []byte) error {
	if r.closed.Load() {
		return ErrStoreClosed
	}
	return r.client.RPush(ctx, key, value).Err()
}

// ListPopN uses LPOP with a count, so a batch is one round trip.
func (r *RedisKVStore) ListPopN(ctx context.Context, key string, n int) ([][]byte, error) {
	if r.closed.Load() {
		return nil, ErrStoreClosed
	}
	vals, err := r.client.LPopCount(ctx, key, n).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (r *RedisKVStore) ListLength(ctx context.Context, key string) (int64, error) {
	if r.closed.Load() {
		return 0, ErrStoreClosed
	}
	return r.client.LLen(ctx, key).Result()
}

// RedisKVStoreFactory implements the KVStoreFactory interface for Redis.
type RedisKVStoreFactory struct{}

// Type returns the type identifier for this factory.
func (f *RedisKVStoreFactory) Type() string {
	return "redis"
}

// Validate validates the Redis-specific configuration.
func (f *RedisKVStoreFactory) Validate(config KVStoreConfig) error {
	if config.Type != "redis" {
		return fmt.Errorf("invalid type for Redis factory: %s", config.Type)
	}
	if len(config.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required for Redis")
	}
	if config.DB < 0 || config.DB > 15 {
		return fmt.Errorf("Redis DB must be between 0 and 15, got: %d", config.DB)
	}
	if len(config.Endpoints) > 1 && config.DB != 0 {
		return fmt.Errorf("Redis cluster supports only DB 0")
	}
	if config.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be greater than 0, got: %d", config.PoolSize)
	}
	if config.MinIdleConns < 0 {
		return fmt.Errorf("min_idle_conns must be non-negative, got: %d", config.MinIdleConns)
	}
	return validateTimeouts(config.DialTimeout, config.ReadTimeout, config.WriteTimeout)
}

// Create creates a new Redis KV store instance based on the provided configuration.
func (f *RedisKVStoreFactory) Create(config KVStoreConfig) (core.KVStore, error) {
	redisStore, err := NewRedisKVStore(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis KV store: %w", err)
	}
	return redisStore, nil
}

// RedisConfigValidator implements the ConfigValidator interface for Redis.
type RedisConfigValidator struct{}

// Type returns the type identifier for this validator.
func (v *RedisConfigValidator) Type() string {
	return "redis"
}

// Validate validates the Redis-specific configuration in the internal config.
func (v *RedisConfigValidator) Validate(config *registry.InternalConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if config.KVStore.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got: %d", config.KVStore.MaxRetries)
	}
	return (&RedisKVStoreFactory{}).Validate(ConfigFromInternal(config.KVStore))
}

// init auto-registers the Redis factory and validator on package initialization.
func init() {
	RegisterFactory(&RedisKVStoreFactory{})
	registry.RegisterValidator(&RedisConfigValidator{})
}
