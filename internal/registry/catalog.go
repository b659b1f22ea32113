package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/rzpsarthak13/starphoenix/internal/core"
)

// catalog keeps table definitions in a KV store as JSON, one key per table.
type catalog struct {
	store  core.KVStore
	prefix string
}

func (c *catalog) key(tableName string) string {
	return c.prefix + ":" + tableName
}

func (c *catalog) save(ctx context.Context, s *core.Schema) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode definition: %w", err)
	}
	if err := c.store.Set(ctx, c.key(s.TableName), data, 0); err != nil {
		return fmt.Errorf("failed to persist definition: %w", err)
	}
	return nil
}

func (c *catalog) drop(ctx context.Context, tableName string) error {
	if c == nil {
		return nil
	}
	return c.store.Delete(ctx, c.key(tableName))
}

func (c *catalog) load(ctx context.Context) ([]*core.Schema, error) {
	if c == nil {
		return nil, nil
	}
	keys, err := c.store.Keys(ctx, c.prefix+":")
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog: %w", err)
	}
	sort.Strings(keys)

	out := make([]*core.Schema, 0, len(keys))
	for _, key := range keys {
		data, err := c.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog entry %s: %w", key, err)
		}
		var s core.Schema
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to decode catalog entry %s: %w", key, err)
		}
		if want := strings.TrimPrefix(key, c.prefix+":"); s.TableName != want {
			return nil, fmt.Errorf("catalog entry %s holds table %q", key, s.TableName)
		}
		out = append(out, &s)
	}
	log.Printf("[CATALOG] Loaded %d table definition(s)", len(out))
	return out, nil
}
