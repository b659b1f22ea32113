package writeback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/rzpsarthak13/starphoenix/internal/core"
)

var (
	// ErrQueueClosed is returned when trying to enqueue to a closed queue.
	ErrQueueClosed = errors.New("write-back queue is closed")

	// ErrInvalidOperation is returned when an invalid operation is provided.
	ErrInvalidOperation = errors.New("invalid write operation")

	// ErrRedisOperationsNotSupported is returned when the KVStore doesn't support list operations.
	ErrRedisOperationsNotSupported = errors.New("KVStore does not support list operations")
)

// validate checks an operation before it is queued and stamps it.
func validate(operation *core.WriteOperation) error {
	if operation == nil {
		return ErrInvalidOperation
	}
	if operation.Table == "" {
		return fmt.Errorf("%w: table name is required", ErrInvalidOperation)
	}
	if len(operation.Statements) == 0 {
		return fmt.Errorf("%w: no statements", ErrInvalidOperation)
	}
	if operation.Timestamp.IsZero() {
		operation.Timestamp = time.Now()
	}
	return nil
}

// RedisQueue keeps a table's operations, encoded with codec, in one list of
// the KV store under "<prefix>:ops".
type RedisQueue struct {
	ops    RedisQueueOperations
	codec  Codec
	key    string
	closed atomic.Bool
}

// NewRedisQueue creates a list-backed write-back queue. kvStore must
// implement RedisQueueOperations; prefix defaults to "wbq".
func NewRedisQueue(kvStore core.KVStore, prefix string, codec Codec) (*RedisQueue, error) {
	ops, ok := kvStore.(RedisQueueOperations)
	if !ok {
		return nil, ErrRedisOperationsNotSupported
	}
	if prefix == "" {
		prefix = "wbq"
	}
	if codec == nil {
		codec = JSONCodec{}
	}
	return &RedisQueue{ops: ops, codec: codec, key: prefix + ":ops"}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, operation *core.WriteOperation) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	if err := validate(operation); err != nil {
		return err
	}
	data, err := q.codec.Marshal(operation)
	if err != nil {
		return fmt.Errorf("failed to marshal write operation: %w", err)
	}
	if err := q.ops.ListPush(ctx, q.key, data); err != nil {
		return fmt.Errorf("failed to enqueue operation: %w", err)
	}
	return nil
}

// Dequeue pops up to batchSize operations in FIFO order. Entries that do not
// decode are logged and dropped.
func (q *RedisQueue) Dequeue(ctx context.Context, batchSize int) ([]*core.WriteOperation, error) {
	if q.closed.Load() {
		return nil, ErrQueueClosed
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	values, err := q.ops.ListPopN(ctx, q.key, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to pop from %s: %w", q.key, err)
	}
	operations := make([]*core.WriteOperation, 0, len(values))
	for _, data := range values {
		op, err := q.codec.Unmarshal(data)
		if err != nil {
			log.Printf("[QUEUE] WARNING: skipping undecodable operation in %s: %v", q.key, err)
			continue
		}
		operations = append(operations, op)
	}
	return operations, nil
}

// Size is 0 once the queue is closed or when the store cannot be reached.
func (q *RedisQueue) Size() int {
	if q.closed.Load() {
		return 0
	}
	length, err := q.ops.ListLength(context.Background(), q.key)
	if err != nil {
		return 0
	}
	return int(length)
}

// Close stops the queue. The underlying store stays open.
func (q *RedisQueue) Close() error {
	q.closed.Store(true)
	return nil
}
