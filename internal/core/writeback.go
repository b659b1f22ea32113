package core

import (
	"context"
	"time"
)

// OperationType represents the kind of logical write a batch carries.
type OperationType string

const (
	// OperationDefine creates the physical tables of a logical table.
	OperationDefine OperationType = "CREATE"

	// OperationUpsert writes one logical row.
	OperationUpsert OperationType = "UPSERT"

	// OperationDelete removes the logical rows matching a predicate.
	OperationDelete OperationType = "DELETE"
)

// WriteOperation is one logical write, already split and rendered into the
// statements that apply it to every physical table. The statements run in
// order inside a single transaction.
type WriteOperation struct {
	// ID identifies the operation across retries.
	ID string `json:"id" msgpack:"id"`

	// Table is the logical table this operation targets.
	Table string `json:"table" msgpack:"table"`

	// Operation is the kind of write.
	Operation OperationType `json:"operation" msgpack:"operation"`

	// Key is the primary key value for single-row writes. Nil for predicate deletes.
	Key interface{} `json:"key,omitempty" msgpack:"key,omitempty"`

	// Statements are the rendered statements, in execution order.
	Statements []string `json:"statements" msgpack:"statements"`

	// Timestamp is when the operation was accepted.
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`

	// RetryCount tracks how many times this operation has been retried.
	RetryCount int `json:"retry_count" msgpack:"retry_count"`
}

// WriteBackQueue buffers write operations between acceptance and execution
// against the database.
type WriteBackQueue interface {
	// Enqueue adds an operation to the queue.
	Enqueue(ctx context.Context, operation *WriteOperation) error

	// Dequeue retrieves up to batchSize operations. Returns an empty slice
	// if no operations are available.
	Dequeue(ctx context.Context, batchSize int) ([]*WriteOperation, error)

	// Size returns the current number of queued operations.
	Size() int

	// Close closes the queue and releases resources.
	Close() error
}
