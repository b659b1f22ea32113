package read

import (
	"context"
	"log"

	"golang.org/x/sync/singleflight"

	"github.com/rzpsarthak13/starphoenix/internal/sequel"
)

// ReadHandler coordinates cache-first reads with database fallback for one
// table. Concurrent misses on the same key share a single database read.
type ReadHandler struct {
	table    *sequel.Table
	cache    *CacheHandler
	fallback *FallbackHandler
	group    singleflight.Group
}

// NewReadHandler creates a new read handler for a specific table. cache may
// be nil, in which case every read goes to the database.
func NewReadHandler(table *sequel.Table, cache *CacheHandler, fallback *FallbackHandler) *ReadHandler {
	return &ReadHandler{
		table:    table,
		cache:    cache,
		fallback: fallback,
	}
}

// Read returns the record with the given primary key.
func (rh *ReadHandler) Read(ctx context.Context, key interface{}) (map[string]interface{}, error) {
	if rh.cache == nil {
		return rh.fallback.ReadFromDB(ctx, rh.table, key)
	}

	record, hit, err := rh.cache.Read(ctx, rh.table, key)
	if err != nil {
		log.Printf("[CACHE] WARNING: %s read of %v failed, using database: %v", rh.table.Name(), key, err)
	}
	if hit {
		return record, nil
	}

	v, err, shared := rh.group.Do(rh.cache.Key(rh.table, key), func() (interface{}, error) {
		return rh.refresh(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	record = v.(map[string]interface{})
	if shared {
		return copyRecord(record), nil
	}
	return record, nil
}

// ReadFromCache reads directly from cache without fallback.
func (rh *ReadHandler) ReadFromCache(ctx context.Context, key interface{}) (map[string]interface{}, bool, error) {
	if rh.cache == nil {
		return nil, false, nil
	}
	return rh.cache.Read(ctx, rh.table, key)
}

// ReadFromDB reads directly from database without checking cache.
func (rh *ReadHandler) ReadFromDB(ctx context.Context, key interface{}) (map[string]interface{}, error) {
	return rh.fallback.ReadFromDB(ctx, rh.table, key)
}

// Query runs a select against the database. Query results are not cached.
func (rh *ReadHandler) Query(ctx context.Context, sel *sequel.Select) ([]map[string]interface{}, error) {
	return rh.fallback.Query(ctx, sel)
}

// Write caches a record that was just accepted.
func (rh *ReadHandler) Write(ctx context.Context, record map[string]interface{}) error {
	if rh.cache == nil {
		return nil
	}
	return rh.cache.Write(ctx, rh.table, record)
}

// Invalidate invalidates the cache for a specific key.
func (rh *ReadHandler) Invalidate(ctx context.Context, key interface{}) error {
	if rh.cache == nil {
		return nil
	}
	return rh.cache.Invalidate(ctx, rh.table, key)
}

// InvalidateAll drops every cached record of the table.
func (rh *ReadHandler) InvalidateAll(ctx context.Context) error {
	if rh.cache == nil {
		return nil
	}
	return rh.cache.InvalidateTable(ctx, rh.table)
}

// Refresh reloads a record from the database into the cache.
func (rh *ReadHandler) Refresh(ctx context.Context, key interface{}) (map[string]interface{}, error) {
	return rh.refresh(ctx, key)
}

func (rh *ReadHandler) refresh(ctx context.Context, key interface{}) (map[string]interface{}, error) {
	record, err := rh.fallback.ReadFromDB(ctx, rh.table, key)
	if err != nil {
		return nil, err
	}
	if rh.cache != nil {
		if err := rh.cache.Write(ctx, rh.table, record); err != nil {
			// The read itself succeeded.
			log.Printf("[CACHE] WARNING: failed to cache %s/%v: %v", rh.table.Name(), key, err)
		}
	}
	return record, nil
}

func copyRecord(record map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(record))
	for k, v := range record {
		out[k] = v
	}
	return out
}

