package writeback

import (
	"context"
	"errors"
	"sync"

	"github.com/rzpsarthak13/starphoenix/internal/core"
)

var (
	ErrMemoryQueueClosed = errors.New("memory queue is closed")
	ErrMemoryQueueFull   = errors.New("memory queue is full")
)

const defaultMemoryQueueCapacity = 10000

// MemoryQueue is a bounded FIFO held in process memory. Operations do not
// survive a restart; the WAL covers that.
type MemoryQueue struct {
	mu       sync.Mutex
	ops      []*core.WriteOperation
	capacity int
	closed   bool
}

// NewMemoryQueue returns a queue that holds at most capacity operations.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = defaultMemoryQueueCapacity
	}
	return &MemoryQueue{capacity: capacity}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, operation *core.WriteOperation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(operation); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	switch {
	case q.closed:
		return ErrMemoryQueueClosed
	case len(q.ops) >= q.capacity:
		return ErrMemoryQueueFull
	}
	q.ops = append(q.ops, operation)
	return nil
}

// Dequeue removes up to batchSize operations from the head of the queue.
// It never blocks; an empty queue yields an empty batch. Operations left at
// Close can still be dequeued.
func (q *MemoryQueue) Dequeue(ctx context.Context, batchSize int) ([]*core.WriteOperation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	n := batchSize
	if n > len(q.ops) {
		n = len(q.ops)
	}
	batch := make([]*core.WriteOperation, n)
	copy(batch, q.ops[:n])
	// Clear the moved slots so the backing array does not pin them.
	for i := range q.ops[:n] {
		q.ops[i] = nil
	}
	q.ops = q.ops[n:]
	return batch, nil
}

func (q *MemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Close rejects further enqueues. It is safe to call more than once.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return nil
}
