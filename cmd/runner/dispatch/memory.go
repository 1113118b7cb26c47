package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/VenkataVardineni/flowforge-automations/common/logger"
)

const memoryQueueDepth = 1024

// MemoryDispatcher runs the worker pool in-process over a buffered channel.
// It is the default queue provider for single-instance deployments and
// tests; run requests do not survive a restart.
type MemoryDispatcher struct {
	queue   chan uuid.UUID
	workers int
	log     *logger.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewMemoryDispatcher creates an in-process dispatcher with the given
// worker count
func NewMemoryDispatcher(workers int, log *logger.Logger) *MemoryDispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &MemoryDispatcher{
		queue:   make(chan uuid.UUID, memoryQueueDepth),
		workers: workers,
		log:     log.WithComponent("dispatch"),
	}
}

// Submit enqueues a run id for the worker pool, blocking while the queue
// is full
func (d *MemoryDispatcher) Submit(ctx context.Context, runID uuid.UUID) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return fmt.Errorf("dispatcher is closed")
	}

	select {
	case d.queue <- runID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the worker pool
func (d *MemoryDispatcher) Start(ctx context.Context, handler Handler) error {
	d.log.Info("starting in-memory dispatcher", "workers", d.workers)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.runWorker(ctx, i, handler)
	}
	return nil
}

func (d *MemoryDispatcher) runWorker(ctx context.Context, id int, handler Handler) {
	defer d.wg.Done()
	log := d.log.WithFields(map[string]any{"worker": id})

	for {
		select {
		case runID, ok := <-d.queue:
			if !ok {
				return
			}
			if err := handler(ctx, runID); err != nil {
				log.Error("run execution failed", "run_id", runID.String(), "error", err)
			}
		case <-ctx.Done():
			log.Info("dispatch worker stopping")
			return
		}
	}
}

// Close rejects further submissions and waits for in-flight runs to finish
func (d *MemoryDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}
