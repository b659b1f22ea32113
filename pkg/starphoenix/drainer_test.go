package starphoenix

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/starphoenix/internal/core"
	"github.com/rzpsarthak13/starphoenix/internal/writeback"
)

// flakyExecutor fails the first failures attempts of every operation.
type flakyExecutor struct {
	mu       sync.Mutex
	queue    core.WriteBackQueue
	failures int
	attempts map[string]int
	applied  []string
}

func newFlakyExecutor(queue core.WriteBackQueue, failures int) *flakyExecutor {
	return &flakyExecutor{queue: queue, failures: failures, attempts: make(map[string]int)}
}

func (e *flakyExecutor) ExecuteWriteOperation(ctx context.Context, op *core.WriteOperation) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempts[op.ID]++
	if e.attempts[op.ID] <= e.failures {
		return errors.New("database unavailable")
	}
	e.applied = append(e.applied, op.ID)
	return nil
}

func (e *flakyExecutor) GetWriteBackQueue() core.WriteBackQueue {
	return e.queue
}

func (e *flakyExecutor) attemptsOf(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts[id]
}

func (e *flakyExecutor) heal() {
	e.mu.Lock()
	e.failures = 0
	e.mu.Unlock()
}

func (e *flakyExecutor) appliedIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.applied...)
}

func enqueue(t *testing.T, queue core.WriteBackQueue, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, queue.Enqueue(context.Background(), &core.WriteOperation{
			ID:         id,
			Table:      "articles",
			Operation:  core.OperationUpsert,
			Statements: []string{"UPSERT INTO articles(id) VALUES (" + id + ")"},
		}))
	}
}

func fastConfig(maxRetries int) DrainerConfig {
	return DrainerConfig{
		DrainRate:    1000,
		BatchSize:    2,
		PollInterval: 5 * time.Millisecond,
		MaxRetries:   maxRetries,
		RetryBackoff: time.Millisecond,
	}
}

func TestDrainerFlushRetriesInOrder(t *testing.T) {
	queue := writeback.NewMemoryQueue(10)
	exec := newFlakyExecutor(queue, 2)
	enqueue(t, queue, "1", "2", "3")

	d := NewDrainer("articles", queue, exec, fastConfig(3))
	written, err := d.Flush(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, written)
	assert.Equal(t, []string{"1", "2", "3"}, exec.appliedIDs())
	processed, dropped := d.Stats()
	assert.Equal(t, 3, processed)
	assert.Zero(t, dropped)
	assert.Zero(t, d.QueueSize())
}

func TestDrainerDropsAfterMaxRetries(t *testing.T) {
	queue := writeback.NewMemoryQueue(10)
	exec := newFlakyExecutor(queue, 5)
	enqueue(t, queue, "1")

	d := NewDrainer("articles", queue, exec, fastConfig(2))
	written, err := d.Flush(context.Background())
	require.NoError(t, err)

	assert.Zero(t, written)
	assert.Empty(t, exec.appliedIDs())
	assert.Equal(t, 3, exec.attempts["1"])
	_, dropped := d.Stats()
	assert.Equal(t, 1, dropped)
}

func TestDrainerRunsInBackground(t *testing.T) {
	queue := writeback.NewMemoryQueue(10)
	exec := newFlakyExecutor(queue, 1)
	d := NewDrainer("articles", queue, exec, fastConfig(3))

	ctx := context.Background()
	require.NoError(t, d.Start(ctx))
	assert.True(t, d.IsRunning())
	require.NoError(t, d.Start(ctx))

	enqueue(t, queue, "a", "b")
	assert.Eventually(t, func() bool {
		return len(exec.appliedIDs()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	_, err := d.Flush(ctx)
	assert.Error(t, err)

	require.NoError(t, d.Stop())
	assert.False(t, d.IsRunning())
	require.NoError(t, d.Stop())

	// A stopped drainer can be started again.
	require.NoError(t, d.Start(ctx))
	enqueue(t, queue, "c")
	assert.Eventually(t, func() bool {
		return len(exec.appliedIDs()) == 3
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, d.Stop())
	assert.Equal(t, []string{"a", "b", "c"}, exec.appliedIDs())
}

func TestDrainerStopDuringRetryKeepsOperations(t *testing.T) {
	queue := writeback.NewMemoryQueue(10)
	exec := newFlakyExecutor(queue, 1)
	config := fastConfig(3)
	config.RetryBackoff = time.Hour
	d := NewDrainer("articles", queue, exec, config)

	enqueue(t, queue, "1", "2")
	require.NoError(t, d.Start(context.Background()))
	assert.Eventually(t, func() bool {
		return exec.attemptsOf("1") == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Stop cuts the hour-long backoff short.
	require.NoError(t, d.Stop())
	assert.Zero(t, queue.Size())
	assert.Equal(t, 2, d.QueueSize())

	exec.heal()
	enqueue(t, queue, "3")
	written, err := d.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, written)
	assert.Equal(t, []string{"1", "2", "3"}, exec.appliedIDs())
	assert.Zero(t, d.QueueSize())
}

func TestDrainerBackoff(t *testing.T) {
	d := NewDrainer("articles", writeback.NewMemoryQueue(1), nil, DrainerConfig{
		RetryBackoff:    100 * time.Millisecond,
		RetryBackoffMax: time.Second,
	})

	assert.Equal(t, 100*time.Millisecond, d.backoff(1))
	assert.Equal(t, 200*time.Millisecond, d.backoff(2))
	assert.Equal(t, 800*time.Millisecond, d.backoff(4))
	assert.Equal(t, time.Second, d.backoff(5))
	assert.Equal(t, time.Second, d.backoff(12))
}

func TestDrainerManager(t *testing.T) {
	queue := writeback.NewMemoryQueue(10)
	exec := newFlakyExecutor(queue, 0)
	dm := NewDrainerManager(fastConfig(0))

	first := dm.AddDrainer("articles", queue, exec)
	assert.Same(t, first, dm.AddDrainer("articles", queue, exec))
	assert.Equal(t, 1, dm.Count())

	enqueue(t, queue, "1", "2")
	written, err := dm.FlushAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	require.NoError(t, dm.StartAll(context.Background()))
	assert.True(t, first.IsRunning())
	require.NoError(t, dm.RemoveDrainer("articles"))
	assert.False(t, first.IsRunning())
	assert.Nil(t, dm.GetDrainer("articles"))
	assert.Zero(t, dm.Count())
}
