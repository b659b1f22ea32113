package starphoenix

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/rzpsarthak13/starphoenix/internal/core"
)

// DrainerManager owns the drainers of a client, one per table with KV
// enabled. Tables drain independently, so bulk operations fan out.
type DrainerManager struct {
	mu       sync.RWMutex
	drainers map[string]*Drainer
	config   DrainerConfig
}

// NewDrainerManager returns a manager whose AddDrainer uses config.
func NewDrainerManager(config DrainerConfig) *DrainerManager {
	return &DrainerManager{
		drainers: make(map[string]*Drainer),
		config:   config,
	}
}

func (dm *DrainerManager) AddDrainer(tableName string, queue core.WriteBackQueue, executor WriteBackExecutor) *Drainer {
	return dm.AddDrainerWithConfig(tableName, queue, executor, dm.config)
}

// AddDrainerWithConfig returns the table's drainer, creating it with config
// when there is none.
func (dm *DrainerManager) AddDrainerWithConfig(tableName string, queue core.WriteBackQueue, executor WriteBackExecutor, config DrainerConfig) *Drainer {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if d, ok := dm.drainers[tableName]; ok {
		return d
	}
	d := NewDrainer(tableName, queue, executor, config)
	dm.drainers[tableName] = d
	return d
}

// GetDrainer returns the table's drainer, or nil.
func (dm *DrainerManager) GetDrainer(tableName string) *Drainer {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.drainers[tableName]
}

// RemoveDrainer stops and forgets the table's drainer. Queued operations
// stay in the queue.
func (dm *DrainerManager) RemoveDrainer(tableName string) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	d, ok := dm.drainers[tableName]
	if !ok {
		return nil
	}
	if err := d.Stop(); err != nil {
		return err
	}
	d.mu.RLock()
	held := len(d.pending)
	d.mu.RUnlock()
	if held > 0 {
		log.Printf("[DRAINER:%s] WARNING: removed while holding %d operation(s); the WAL keeps them", tableName, held)
	}
	delete(dm.drainers, tableName)
	return nil
}

func (dm *DrainerManager) Count() int {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return len(dm.drainers)
}

// each runs fn on every drainer concurrently and returns the first error.
func (dm *DrainerManager) each(ctx context.Context, fn func(ctx context.Context, d *Drainer) error) error {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range dm.drainers {
		d := d
		g.Go(func() error { return fn(gctx, d) })
	}
	return g.Wait()
}

// StartAll starts every drainer with ctx, which bounds their lifetime.
func (dm *DrainerManager) StartAll(ctx context.Context) error {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	for _, d := range dm.drainers {
		if err := d.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops every drainer, waiting for each one's operation in flight.
func (dm *DrainerManager) StopAll() error {
	return dm.each(context.Background(), func(_ context.Context, d *Drainer) error {
		return d.Stop()
	})
}

// FlushAll flushes every table in parallel and returns the total written.
// Drainers must be stopped.
func (dm *DrainerManager) FlushAll(ctx context.Context) (int, error) {
	var total atomic.Int64
	err := dm.each(ctx, func(ctx context.Context, d *Drainer) error {
		n, err := d.Flush(ctx)
		total.Add(int64(n))
		return err
	})
	return int(total.Load()), err
}
