package starphoenix

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rzpsarthak13/starphoenix/internal/core"
)

// Drainer moves queued write operations of one table into the database at a
// controlled rate. Operations run one at a time in queue order; a failing
// operation is retried in place so later writes to the same row never
// overtake it.
type Drainer struct {
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	tableName string
	queue     core.WriteBackQueue
	table     WriteBackExecutor
	config    DrainerConfig

	processed int
	dropped   int

	// pending holds operations taken off the queue that a stop interrupted.
	// They run before anything else is dequeued.
	pending []*core.WriteOperation
}

// WriteBackExecutor applies one queued operation to the database. Tables
// implement it.
type WriteBackExecutor interface {
	ExecuteWriteOperation(ctx context.Context, operation *core.WriteOperation) error
	GetWriteBackQueue() core.WriteBackQueue
}

// DrainerConfig tunes one drainer. Zero values fall back to
// DefaultDrainerConfig.
type DrainerConfig struct {
	// DrainRate caps operations written per second.
	DrainRate int
	// BatchSize is how many operations one dequeue takes.
	BatchSize int
	// PollInterval is the pause after an empty dequeue.
	PollInterval time.Duration

	// MaxRetries is how many times a failing operation is retried before it
	// is dropped from the queue. Its WAL entry stays, so Recover replays it
	// after a restart.
	MaxRetries int

	// RetryBackoff is the first retry delay; it doubles per attempt.
	RetryBackoff time.Duration

	// RetryBackoffMax caps the backoff. Zero means no cap.
	RetryBackoffMax time.Duration
}

// DefaultDrainerConfig is 50 ops/sec, one operation per dequeue and three
// retries backing off from one second.
func DefaultDrainerConfig() DrainerConfig {
	return DrainerConfig{
		DrainRate:       50,
		BatchSize:       1,
		PollInterval:    100 * time.Millisecond,
		MaxRetries:      3,
		RetryBackoff:    1 * time.Second,
		RetryBackoffMax: 30 * time.Second,
	}
}

// errStopped reports that the drainer was stopped while waiting.
var errStopped = errors.New("drainer stopped")

// NewDrainer returns a stopped drainer that moves operations from queue to
// executor.
func NewDrainer(tableName string, queue core.WriteBackQueue, executor WriteBackExecutor, config DrainerConfig) *Drainer {
	defaults := DefaultDrainerConfig()
	if config.DrainRate <= 0 {
		config.DrainRate = defaults.DrainRate
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	return &Drainer{
		tableName: tableName,
		queue:     queue,
		table:     executor,
		config:    config,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the drainer goroutine. Call Stop to shut it down.
func (d *Drainer) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		log.Printf("[DRAINER:%s] Already running", d.tableName)
		return nil
	}
	d.running = true
	// Fresh channels so a stopped drainer can be started again.
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	stopCh, doneCh := d.stopCh, d.doneCh
	d.mu.Unlock()

	go d.run(ctx, stopCh, doneCh)
	log.Printf("[DRAINER:%s] Started with drain rate: %d ops/sec", d.tableName, d.config.DrainRate)
	return nil
}

// Stop waits for the operation in flight, then stops the drainer.
func (d *Drainer) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	stopCh, doneCh := d.stopCh, d.doneCh
	d.mu.Unlock()

	log.Printf("[DRAINER:%s] Stopping...", d.tableName)
	close(stopCh)
	<-doneCh
	log.Printf("[DRAINER:%s] Stopped", d.tableName)
	return nil
}

func (d *Drainer) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// QueueSize is the number of operations waiting in the table's queue,
// including those an interrupted run left with the drainer.
func (d *Drainer) QueueSize() int {
	d.mu.RLock()
	held := len(d.pending)
	d.mu.RUnlock()
	if d.queue == nil {
		return held
	}
	return d.queue.Size() + held
}

// next returns the held operations, or else the next batch of the queue.
func (d *Drainer) next(ctx context.Context) ([]*core.WriteOperation, error) {
	d.mu.Lock()
	held := d.pending
	d.pending = nil
	d.mu.Unlock()
	if len(held) > 0 {
		return held, nil
	}
	return d.queue.Dequeue(ctx, d.config.BatchSize)
}

// hold keeps ops, in order, ahead of the queue.
func (d *Drainer) hold(ops []*core.WriteOperation) {
	if len(ops) == 0 {
		return
	}
	d.mu.Lock()
	d.pending = append(append([]*core.WriteOperation(nil), ops...), d.pending...)
	d.mu.Unlock()
	log.Printf("[DRAINER:%s] Holding %d operation(s) until the next run", d.tableName, len(ops))
}

// Stats returns how many operations were written and how many were dropped
// after exhausting their retries.
func (d *Drainer) Stats() (processed, dropped int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.processed, d.dropped
}

func (d *Drainer) GetConfig() DrainerConfig {
	return d.config
}

// Flush drains the queue until a dequeue comes back empty, without rate
// limiting, and returns the number of operations written. The drainer must
// be stopped.
func (d *Drainer) Flush(ctx context.Context) (int, error) {
	if d.IsRunning() {
		return 0, errors.New("cannot flush a running drainer")
	}
	written := 0
	for {
		operations, err := d.next(ctx)
		if err != nil {
			return written, err
		}
		if len(operations) == 0 {
			return written, nil
		}
		for i, op := range operations {
			if op == nil {
				continue
			}
			ok, err := d.process(ctx, nil, op)
			if err != nil {
				d.hold(operations[i:])
				return written, err
			}
			if ok {
				written++
			}
		}
	}
}

// run drains until stopCh closes or ctx ends, then closes doneCh.
func (d *Drainer) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	limiter := rate.NewLimiter(rate.Limit(d.config.DrainRate), 1)
	log.Printf("[DRAINER:%s] Worker started - Rate: %d ops/sec, Poll interval: %v",
		d.tableName, d.config.DrainRate, d.config.PollInterval)

	startTime := time.Now()
	for {
		select {
		case <-stopCh:
			processed, _ := d.Stats()
			log.Printf("[DRAINER:%s] Received stop signal, processed %d operations in %v",
				d.tableName, processed, time.Since(startTime))
			return
		case <-ctx.Done():
			processed, _ := d.Stats()
			log.Printf("[DRAINER:%s] Context cancelled, processed %d operations in %v",
				d.tableName, processed, time.Since(startTime))
			return
		default:
		}

		// Size can be approximate, so emptiness is judged by Dequeue.
		operations, err := d.next(ctx)
		if err != nil {
			log.Printf("[DRAINER:%s] Dequeue error: %v", d.tableName, err)
		}
		if err != nil || len(operations) == 0 {
			d.wait(ctx, stopCh, d.config.PollInterval)
			continue
		}

		for i, op := range operations {
			if op == nil {
				continue
			}
			select {
			case <-stopCh:
				d.hold(operations[i:])
				return
			default:
			}
			// Wait on the limiter before each operation, not each batch.
			if err := limiter.Wait(ctx); err != nil {
				d.hold(operations[i:])
				return
			}
			if _, err := d.process(ctx, stopCh, op); err != nil {
				log.Printf("[DRAINER:%s] %s interrupted: %v", d.tableName, op.ID, err)
				d.hold(operations[i:])
				return
			}
		}
	}
}

// process executes op, retrying with exponential backoff, and reports whether
// it was written. It returns an error only when waiting was interrupted; an
// operation that exhausts its retries is dropped and counted.
func (d *Drainer) process(ctx context.Context, stopCh <-chan struct{}, op *core.WriteOperation) (bool, error) {
	for {
		start := time.Now()
		err := d.table.ExecuteWriteOperation(ctx, op)
		if err == nil {
			d.mu.Lock()
			d.processed++
			d.mu.Unlock()
			log.Printf("[DRAINER:%s] %s %s written (duration: %v, queue size: %d)",
				d.tableName, op.Operation, op.ID, time.Since(start), d.queue.Size())
			return true, nil
		}

		op.RetryCount++
		if op.RetryCount > d.config.MaxRetries {
			d.mu.Lock()
			d.dropped++
			d.mu.Unlock()
			log.Printf("[DRAINER:%s] ERROR: dropping %s after %d attempt(s): %v",
				d.tableName, op.ID, op.RetryCount, err)
			return false, nil
		}

		backoff := d.backoff(op.RetryCount)
		log.Printf("[DRAINER:%s] Retry %d/%d for %s in %v: %v",
			d.tableName, op.RetryCount, d.config.MaxRetries, op.ID, backoff, err)
		if err := d.wait(ctx, stopCh, backoff); err != nil {
			return false, err
		}
	}
}

// backoff returns RetryBackoff * 2^(attempt-1), capped at RetryBackoffMax.
func (d *Drainer) backoff(attempt int) time.Duration {
	delay := d.config.RetryBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if d.config.RetryBackoffMax > 0 && delay >= d.config.RetryBackoffMax {
			return d.config.RetryBackoffMax
		}
	}
	if d.config.RetryBackoffMax > 0 && delay > d.config.RetryBackoffMax {
		return d.config.RetryBackoffMax
	}
	return delay
}

// wait sleeps for delay unless the drainer is stopped or ctx is done first.
func (d *Drainer) wait(ctx context.Context, stopCh <-chan struct{}, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-stopCh:
		return errStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
