package write

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rzpsarthak13/starphoenix/internal/core"
	"github.com/rzpsarthak13/starphoenix/internal/writeback"
)

// WALManager keeps every accepted write operation in the KV store until the
// drainer has applied it to the database. Entries left behind by a crash are
// replayed on startup.
type WALManager struct {
	kvStore core.KVStore
	codec   writeback.Codec
	prefix  string
	ttl     time.Duration

	// queued holds the ids this process handed to a queue and has not seen
	// acknowledged. Their entries are not orphans.
	mu     sync.Mutex
	queued map[string]struct{}
}

// NewWALManager creates a new WAL manager.
// prefix namespaces WAL entries (e.g., "wal"). A ttl of 0 keeps entries
// until they are acknowledged.
func NewWALManager(kvStore core.KVStore, codec writeback.Codec, prefix string, ttl time.Duration) *WALManager {
	if prefix == "" {
		prefix = "wal"
	}
	if codec == nil {
		codec = writeback.JSONCodec{}
	}
	return &WALManager{
		kvStore: kvStore,
		codec:   codec,
		prefix:  prefix,
		ttl:     ttl,
		queued:  make(map[string]struct{}),
	}
}

// Format: wal:{table}:{operation_id}
func (w *WALManager) entryKey(table, operationID string) string {
	return fmt.Sprintf("%s:%s:%s", w.prefix, table, operationID)
}

// Append records op, assigning it an ID and timestamp when missing.
func (w *WALManager) Append(ctx context.Context, op *core.WriteOperation) error {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.Timestamp.IsZero() {
		op.Timestamp = time.Now()
	}

	data, err := w.codec.Marshal(op)
	if err != nil {
		return fmt.Errorf("failed to marshal WAL operation: %w", err)
	}
	if err := w.kvStore.Set(ctx, w.entryKey(op.Table, op.ID), data, w.ttl); err != nil {
		return fmt.Errorf("failed to store WAL entry: %w", err)
	}
	w.Track(op)
	return nil
}

// Track marks op as held by a queue or drainer of this process.
func (w *WALManager) Track(op *core.WriteOperation) {
	w.mu.Lock()
	w.queued[op.ID] = struct{}{}
	w.mu.Unlock()
}

// Tracked reports whether op was queued by this process and is still pending.
func (w *WALManager) Tracked(op *core.WriteOperation) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.queued[op.ID]
	return ok
}

// Get retrieves a WAL operation by its ID.
func (w *WALManager) Get(ctx context.Context, table, operationID string) (*core.WriteOperation, error) {
	data, err := w.kvStore.Get(ctx, w.entryKey(table, operationID))
	if err != nil {
		return nil, fmt.Errorf("failed to get WAL entry: %w", err)
	}
	op, err := w.codec.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal WAL operation: %w", err)
	}
	return op, nil
}

// Acknowledge drops the entry of an operation that reached the database.
func (w *WALManager) Acknowledge(ctx context.Context, op *core.WriteOperation) error {
	if err := w.kvStore.Delete(ctx, w.entryKey(op.Table, op.ID)); err != nil {
		return fmt.Errorf("failed to acknowledge WAL entry: %w", err)
	}
	w.mu.Lock()
	delete(w.queued, op.ID)
	w.mu.Unlock()
	return nil
}

// Pending returns the unacknowledged operations of every table in the order
// they were accepted.
func (w *WALManager) Pending(ctx context.Context) ([]*core.WriteOperation, error) {
	keys, err := w.kvStore.Keys(ctx, w.prefix+":")
	if err != nil {
		return nil, fmt.Errorf("failed to list WAL entries: %w", err)
	}

	ops := make([]*core.WriteOperation, 0, len(keys))
	for _, key := range keys {
		data, err := w.kvStore.Get(ctx, key)
		if err != nil {
			// Acknowledged or expired since listing.
			continue
		}
		op, err := w.codec.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal WAL entry %s: %w", key, err)
		}
		ops = append(ops, op)
	}
	sort.SliceStable(ops, func(i, j int) bool {
		return ops[i].Timestamp.Before(ops[j].Timestamp)
	})
	return ops, nil
}
