package table

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rzpsarthak13/starphoenix/internal/core"
	"github.com/rzpsarthak13/starphoenix/internal/database"
	"github.com/rzpsarthak13/starphoenix/internal/read"
	"github.com/rzpsarthak13/starphoenix/internal/schema"
	"github.com/rzpsarthak13/starphoenix/internal/sequel"
	"github.com/rzpsarthak13/starphoenix/internal/write"
)

// TableImpl implements the core.Table interface.
//
// With KV disabled every operation runs against the database at once. With
// KV enabled writes are recorded in the WAL, cached and queued for the
// drainer, and reads go through the cache.
type TableImpl struct {
	mu         sync.RWMutex
	definition *sequel.Table
	database   core.Database
	translator *schema.Translator
	reader     *read.ReadHandler
	wal        *write.WALManager
	writeQueue core.WriteBackQueue
	enabled    bool
}

// NewTableImpl creates a new table implementation. kvStore and wal may be
// nil, in which case nothing is cached or journaled.
func NewTableImpl(
	definition *sequel.Table,
	translator *schema.Translator,
	kvStore core.KVStore,
	db core.Database,
	writeQueue core.WriteBackQueue,
	wal *write.WALManager,
	ttl time.Duration,
	namespace string,
) *TableImpl {
	var cache *read.CacheHandler
	if kvStore != nil {
		cache = read.NewCacheHandler(kvStore, translator, namespace, ttl)
	}
	return &TableImpl{
		definition: definition,
		database:   db,
		translator: translator,
		reader:     read.NewReadHandler(definition, cache, read.NewFallbackHandler(db, translator)),
		wal:        wal,
		writeQueue: writeQueue,
	}
}

// Name returns the logical table name.
func (t *TableImpl) Name() string {
	return t.definition.Name()
}

// Definition returns a copy of the logical table.
func (t *TableImpl) Definition() *sequel.Table {
	return t.definition.Clone()
}

func (t *TableImpl) isEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Define creates the primary table and one side table per wide field. It
// always runs at once, since reads need the tables to exist.
func (t *TableImpl) Define(ctx context.Context) error {
	statements, err := sequel.NewCreate(t.definition).Split()
	if err != nil {
		return fmt.Errorf("failed to split definition of %s: %w", t.Name(), err)
	}
	rendered, err := sequel.RenderAll(statements)
	if err != nil {
		return err
	}
	op := t.operation(core.OperationDefine, nil, rendered)
	if err := t.ExecuteWriteOperation(ctx, op); err != nil {
		return fmt.Errorf("failed to define %s: %w", t.Name(), err)
	}
	log.Printf("[TABLE] Defined %s (%d physical tables)", t.Name(), len(rendered))
	return nil
}

// Upload writes one store-side record. Fields the record leaves out are
// written as NULL. Previously stored chunks of its wide fields are replaced.
func (t *TableImpl) Upload(ctx context.Context, record map[string]interface{}) error {
	upsert, err := t.translator.RecordToUpsert(record, t.definition)
	if err != nil {
		return err
	}
	var key interface{}
	if pk := t.definition.PrimaryKey(); pk != nil {
		v, _ := upsert.Value(pk.Name)
		key = v.Raw
	}

	split, err := upsert.Split()
	if err != nil {
		return fmt.Errorf("failed to split upsert on %s: %w", t.Name(), err)
	}
	primary, err := split[0].Render()
	if err != nil {
		return err
	}
	clears, err := t.clearChunks(key)
	if err != nil {
		return err
	}
	chunks, err := sequel.RenderAll(split[1:])
	if err != nil {
		return err
	}

	statements := append([]string{primary}, clears...)
	statements = append(statements, chunks...)
	op := t.operation(core.OperationUpsert, key, statements)

	if !t.isEnabled() {
		if err := t.ExecuteWriteOperation(ctx, op); err != nil {
			return err
		}
		if key == nil {
			return nil
		}
		return t.reader.Invalidate(ctx, key)
	}

	if err := t.accept(ctx, op); err != nil {
		return err
	}
	if key == nil {
		return nil
	}
	full := make(map[string]interface{}, len(t.definition.Fields()))
	for _, f := range t.definition.Fields() {
		full[f.Name] = record[f.Name]
	}
	if err := t.reader.Write(ctx, full); err != nil {
		log.Printf("[TABLE] WARNING: failed to cache %s/%v: %v", t.Name(), key, err)
	}
	return nil
}

// clearChunks deletes the stored chunks of every wide field of one row.
func (t *TableImpl) clearChunks(key interface{}) ([]string, error) {
	tables, err := t.definition.Split()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(tables)-1)
	for _, side := range tables[1:] {
		del := sequel.NewDelete(side)
		cond, err := del.ValueCondition(side.Key().Name, "=", key)
		if err != nil {
			return nil, err
		}
		del.Where().AddCondition(cond, sequel.And)
		stmt, err := del.Render()
		if err != nil {
			return nil, err
		}
		out = append(out, stmt)
	}
	return out, nil
}

// Read returns the store-side record with the given primary key.
func (t *TableImpl) Read(ctx context.Context, key interface{}) (map[string]interface{}, error) {
	if err := schema.NewValidator(t.definition).ValidatePrimaryKey(key); err != nil {
		return nil, err
	}
	if !t.isEnabled() {
		return t.reader.ReadFromDB(ctx, key)
	}
	return t.reader.Read(ctx, key)
}

// Query returns every record matching the select built by build. Queries
// always run against the database.
func (t *TableImpl) Query(ctx context.Context, build func(*sequel.Select) error) ([]map[string]interface{}, error) {
	sel := sequel.NewSelect(t.definition)
	if build != nil {
		if err := build(sel); err != nil {
			return nil, err
		}
	}
	return t.reader.Query(ctx, sel)
}

// FindByField returns the first record whose field equals value.
func (t *TableImpl) FindByField(ctx context.Context, field string, value interface{}) (map[string]interface{}, error) {
	pk := t.definition.PrimaryKey()
	if pk == nil {
		return nil, fmt.Errorf("%w: %s", sequel.ErrMissingPrimaryKey, t.Name())
	}
	records, err := t.Query(ctx, func(sel *sequel.Select) error {
		if err := sel.AddField(pk.Name); err != nil {
			return err
		}
		cond, err := sel.ValueCondition(field, "=", value)
		if err != nil {
			return err
		}
		sel.Where().AddCondition(cond, sequel.And)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s.%s = %v", read.ErrRecordNotFound, t.Name(), field, value)
	}
	return t.Read(ctx, records[0][pk.Name])
}

// Delete removes the record with the given primary key.
func (t *TableImpl) Delete(ctx context.Context, key interface{}) error {
	pk := t.definition.PrimaryKey()
	if err := schema.NewValidator(t.definition).ValidatePrimaryKey(key); err != nil {
		return err
	}
	return t.remove(ctx, key, func(del *sequel.Delete) error {
		cond, err := del.ValueCondition(pk.Name, "=", key)
		if err != nil {
			return err
		}
		del.Where().AddCondition(cond, sequel.And)
		return nil
	})
}

// Remove removes every record matching the predicate built by build. With
// no predicate every record goes.
func (t *TableImpl) Remove(ctx context.Context, build func(*sequel.Delete) error) error {
	return t.remove(ctx, nil, build)
}

func (t *TableImpl) remove(ctx context.Context, key interface{}, build func(*sequel.Delete) error) error {
	del := sequel.NewDelete(t.definition)
	if build != nil {
		if err := build(del); err != nil {
			return err
		}
	}
	split, err := del.Split()
	if err != nil {
		return fmt.Errorf("failed to split delete on %s: %w", t.Name(), err)
	}
	// Side deletes find their rows through the primary table, so they go first.
	ordered := append(split[1:len(split):len(split)], split[0])
	statements, err := sequel.RenderAll(ordered)
	if err != nil {
		return err
	}
	op := t.operation(core.OperationDelete, key, statements)

	if t.isEnabled() {
		if err := t.accept(ctx, op); err != nil {
			return err
		}
	} else if err := t.ExecuteWriteOperation(ctx, op); err != nil {
		return err
	}
	return t.invalidate(ctx, op)
}

// invalidate drops the cache entries a delete affects.
func (t *TableImpl) invalidate(ctx context.Context, op *core.WriteOperation) error {
	if op.Key != nil {
		return t.reader.Invalidate(ctx, op.Key)
	}
	return t.reader.InvalidateAll(ctx)
}

// EnableKV enables KV store caching for this table.
func (t *TableImpl) EnableKV() error {
	if t.writeQueue == nil {
		return fmt.Errorf("table %s has no write-back queue", t.Name())
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = true
	return nil
}

// DisableKV disables KV store caching for this table.
func (t *TableImpl) DisableKV() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = false
	return nil
}

func (t *TableImpl) operation(kind core.OperationType, key interface{}, statements []string) *core.WriteOperation {
	return &core.WriteOperation{
		ID:         uuid.NewString(),
		Table:      t.Name(),
		Operation:  kind,
		Key:        key,
		Statements: statements,
		Timestamp:  time.Now(),
	}
}

// accept journals op and hands it to the write-back queue.
func (t *TableImpl) accept(ctx context.Context, op *core.WriteOperation) error {
	if t.wal != nil {
		if err := t.wal.Append(ctx, op); err != nil {
			return err
		}
	}
	if err := t.writeQueue.Enqueue(ctx, op); err != nil {
		if t.wal != nil {
			if ackErr := t.wal.Acknowledge(ctx, op); ackErr != nil {
				log.Printf("[TABLE] WARNING: failed to drop WAL entry %s: %v", op.ID, ackErr)
			}
		}
		return fmt.Errorf("failed to enqueue write operation: %w", err)
	}
	return nil
}

// ExecuteWriteOperation applies an operation's statements in one transaction.
// The drainer calls it for queued operations.
func (t *TableImpl) ExecuteWriteOperation(ctx context.Context, operation *core.WriteOperation) error {
	start := time.Now()
	if err := database.ExecBatch(ctx, t.database, operation.Statements); err != nil {
		log.Printf("[TABLE] ERROR: %s %s (%s) failed after %v: %v",
			operation.Operation, operation.Table, operation.ID, time.Since(start), err)
		return err
	}

	if t.wal != nil {
		if err := t.wal.Acknowledge(ctx, operation); err != nil {
			log.Printf("[TABLE] WARNING: %v", err)
		}
	}
	// A read between acceptance and now may have cached the old row again.
	if operation.Operation == core.OperationDelete {
		if err := t.invalidate(ctx, operation); err != nil {
			log.Printf("[TABLE] WARNING: failed to invalidate %s after delete: %v", t.Name(), err)
		}
	}
	return nil
}

// GetWriteBackQueue returns the write-back queue for this table.
func (t *TableImpl) GetWriteBackQueue() core.WriteBackQueue {
	return t.writeQueue
}
