package core

import (
	"context"
	"time"
)

// KVStore is the key-value backend. It holds the persisted table catalog,
// the write-ahead log and the cache of reassembled records.
type KVStore interface {
	// Get returns the value stored at key, or an error if there is none.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value at key. A zero ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// BatchSet stores every item with the same ttl.
	BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error
	// Keys lists the keys starting with prefix, in no particular order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}
