package engine

import (
	"sync"

	"github.com/google/uuid"
)

// CancelRegistry tracks runs with a pending cancellation request. The API
// sets the flag out-of-band and the engine reads it at each node boundary,
// so a cancel lands between steps rather than interrupting one.
type CancelRegistry struct {
	mu      sync.RWMutex
	pending map[uuid.UUID]bool
}

// NewCancelRegistry creates an empty cancel registry
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{
		pending: make(map[uuid.UUID]bool),
	}
}

// Request marks a run for cancellation
func (r *CancelRegistry) Request(runID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[runID] = true
}

// IsCancelled reports whether a cancellation is pending for the run
func (r *CancelRegistry) IsCancelled(runID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pending[runID]
}

// Clear drops the flag once the run reaches a terminal state
func (r *CancelRegistry) Clear(runID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, runID)
}
