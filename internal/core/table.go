package core

import (
	"context"

	"github.com/rzpsarthak13/starphoenix/internal/sequel"
)

// Table is the runtime handle of a logical table. Writes are split into
// per-physical-table statements and queued; reads reassemble rows from the
// primary table and its side tables, going through the KV cache first.
type Table interface {
	// Name returns the logical table name.
	Name() string

	// Definition returns a copy of the logical table.
	Definition() *sequel.Table

	// Define creates the physical tables.
	Define(ctx context.Context) error

	// Upload writes one store-side record.
	Upload(ctx context.Context, record map[string]interface{}) error

	// Read returns the store-side record with the given primary key.
	Read(ctx context.Context, key interface{}) (map[string]interface{}, error)

	// Query returns every record matching the predicate built by build.
	Query(ctx context.Context, build func(*sequel.Select) error) ([]map[string]interface{}, error)

	// Delete removes the record with the given primary key.
	Delete(ctx context.Context, key interface{}) error

	// Remove removes every record matching the predicate built by build.
	Remove(ctx context.Context, build func(*sequel.Delete) error) error

	// EnableKV routes writes through the write-back queue and reads through the cache.
	EnableKV() error

	// DisableKV sends operations straight to the database.
	DisableKV() error

	// ExecuteWriteOperation applies a queued operation to the database.
	ExecuteWriteOperation(ctx context.Context, operation *WriteOperation) error

	// GetWriteBackQueue returns the queue writes are buffered in.
	GetWriteBackQueue() WriteBackQueue
}
