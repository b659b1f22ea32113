package read

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rzpsarthak13/starphoenix/internal/core"
	"github.com/rzpsarthak13/starphoenix/internal/schema"
	"github.com/rzpsarthak13/starphoenix/internal/sequel"
)

// CacheHandler keeps reassembled records in the KV store.
type CacheHandler struct {
	kvStore    core.KVStore
	translator *schema.Translator
	keyBuilder *KeyBuilder
	ttl        time.Duration
}

// NewCacheHandler creates a new cache handler.
func NewCacheHandler(kvStore core.KVStore, translator *schema.Translator, namespace string, ttl time.Duration) *CacheHandler {
	return &CacheHandler{
		kvStore:    kvStore,
		translator: translator,
		keyBuilder: NewKeyBuilder(namespace),
		ttl:        ttl,
	}
}

// Key returns the cache key for a record of table.
func (ch *CacheHandler) Key(table *sequel.Table, key interface{}) string {
	return ch.keyBuilder.BuildKey(table.Name(), canonicalKey(table, key))
}

// Read returns the cached record for key. A miss is reported as ok=false
// with a nil error.
func (ch *CacheHandler) Read(ctx context.Context, table *sequel.Table, key interface{}) (map[string]interface{}, bool, error) {
	cacheKey := ch.Key(table, key)
	exists, err := ch.kvStore.Exists(ctx, cacheKey)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check cache: %w", err)
	}
	if !exists {
		return nil, false, nil
	}

	value, err := ch.kvStore.Get(ctx, cacheKey)
	if err != nil {
		// Expired between the two calls.
		return nil, false, nil
	}
	record, err := ch.translator.DecodeRecord(value, table)
	if err != nil {
		return nil, false, fmt.Errorf("failed to deserialize cache value: %w", err)
	}
	return record, true, nil
}

// Write stores record under its primary key.
func (ch *CacheHandler) Write(ctx context.Context, table *sequel.Table, record map[string]interface{}) error {
	pk := table.PrimaryKey()
	if pk == nil {
		return fmt.Errorf("%w: %s", sequel.ErrMissingPrimaryKey, table.Name())
	}
	value, err := ch.translator.EncodeRecord(record, table)
	if err != nil {
		return err
	}
	if err := ch.kvStore.Set(ctx, ch.Key(table, record[pk.Name]), value, ch.ttl); err != nil {
		return fmt.Errorf("failed to populate cache: %w", err)
	}
	return nil
}

// Invalidate drops the cached record for key.
func (ch *CacheHandler) Invalidate(ctx context.Context, table *sequel.Table, key interface{}) error {
	return ch.kvStore.Delete(ctx, ch.Key(table, key))
}

// InvalidateTable drops every cached record of table. Predicate deletes use
// it since the affected keys are not known up front.
func (ch *CacheHandler) InvalidateTable(ctx context.Context, table *sequel.Table) error {
	keys, err := ch.kvStore.Keys(ctx, ch.keyBuilder.TablePrefix(table.Name()))
	if err != nil {
		return fmt.Errorf("failed to list cached records: %w", err)
	}
	for _, key := range keys {
		if err := ch.kvStore.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to invalidate %s: %w", key, err)
		}
	}
	if len(keys) > 0 {
		log.Printf("[CACHE] Invalidated %d record(s) of %s", len(keys), table.Name())
	}
	return nil
}

// canonicalKey normalizes key through the primary key type so that 7, "7"
// and 7.0 share one cache entry.
func canonicalKey(table *sequel.Table, key interface{}) interface{} {
	pk := table.PrimaryKey()
	if pk == nil {
		return key
	}
	rel, err := pk.Type.ToRelational(key)
	if err != nil {
		return key
	}
	v, err := pk.Type.ToStore(rel)
	if err != nil {
		return key
	}
	return v
}

// KeyBuilder builds cache keys in the format: {namespace}:{table}:{primary_key_value}
type KeyBuilder struct {
	namespace string
}

// NewKeyBuilder creates a new key builder.
func NewKeyBuilder(namespace string) *KeyBuilder {
	return &KeyBuilder{namespace: namespace}
}

// TablePrefix returns the prefix shared by every key of tableName.
func (kb *KeyBuilder) TablePrefix(tableName string) string {
	if kb.namespace != "" {
		return fmt.Sprintf("%s:%s:", kb.namespace, tableName)
	}
	return tableName + ":"
}

// BuildKey constructs a cache key for the given table and primary key value.
func (kb *KeyBuilder) BuildKey(tableName string, key interface{}) string {
	return fmt.Sprintf("%s%v", kb.TablePrefix(tableName), key)
}
