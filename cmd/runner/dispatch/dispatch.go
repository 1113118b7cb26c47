package dispatch

import (
	"context"

	"github.com/google/uuid"
)

// Handler executes one run to a terminal state
type Handler func(ctx context.Context, runID uuid.UUID) error

// Dispatcher hands run ids from intake to the worker pool. Submit may be
// called from any request handler; Start launches the pool that consumes
// submissions until the context is cancelled.
type Dispatcher interface {
	Submit(ctx context.Context, runID uuid.UUID) error
	Start(ctx context.Context, handler Handler) error
	Close() error
}
