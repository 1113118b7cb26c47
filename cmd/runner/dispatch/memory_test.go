package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VenkataVardineni/flowforge-automations/common/logger"
)

func newMemoryDispatcher(workers int) *MemoryDispatcher {
	return NewMemoryDispatcher(workers, logger.New("error", "json"))
}

func TestMemoryDispatcherDeliversSubmissions(t *testing.T) {
	d := newMemoryDispatcher(2)

	var mu sync.Mutex
	got := make(map[uuid.UUID]bool)
	done := make(chan struct{}, 3)

	require.NoError(t, d.Start(context.Background(), func(ctx context.Context, runID uuid.UUID) error {
		mu.Lock()
		got[runID] = true
		mu.Unlock()
		done <- struct{}{}
		return nil
	}))

	want := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, runID := range want {
		require.NoError(t, d.Submit(context.Background(), runID))
	}

	for range want {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for dispatch")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for _, runID := range want {
		assert.True(t, got[runID], "run %s never handled", runID)
	}

	require.NoError(t, d.Close())
}

func TestMemoryDispatcherRejectsSubmitAfterClose(t *testing.T) {
	d := newMemoryDispatcher(1)
	require.NoError(t, d.Start(context.Background(), func(ctx context.Context, runID uuid.UUID) error {
		return nil
	}))

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	err := d.Submit(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestMemoryDispatcherCloseWaitsForInflightRuns(t *testing.T) {
	d := newMemoryDispatcher(1)

	started := make(chan struct{})
	release := make(chan struct{})
	var finished bool
	var mu sync.Mutex

	require.NoError(t, d.Start(context.Background(), func(ctx context.Context, runID uuid.UUID) error {
		close(started)
		<-release
		mu.Lock()
		finished = true
		mu.Unlock()
		return nil
	}))

	require.NoError(t, d.Submit(context.Background(), uuid.New()))
	<-started

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a run was still executing")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close never returned")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, finished)
}

func TestMemoryDispatcherHandlerErrorDoesNotStopWorker(t *testing.T) {
	d := newMemoryDispatcher(1)

	done := make(chan uuid.UUID, 2)
	require.NoError(t, d.Start(context.Background(), func(ctx context.Context, runID uuid.UUID) error {
		done <- runID
		return errors.New("boom")
	}))

	first, second := uuid.New(), uuid.New()
	require.NoError(t, d.Submit(context.Background(), first))
	require.NoError(t, d.Submit(context.Background(), second))

	for _, want := range []uuid.UUID{first, second} {
		select {
		case got := <-done:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatal("worker stopped after handler error")
		}
	}

	require.NoError(t, d.Close())
}

func TestMemoryDispatcherStopsOnContextCancel(t *testing.T) {
	d := newMemoryDispatcher(2)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, d.Start(ctx, func(ctx context.Context, runID uuid.UUID) error {
		return nil
	}))

	cancel()

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("workers did not stop on context cancel")
	}
}

func TestParseRunID(t *testing.T) {
	runID := uuid.New()

	got, err := parseRunID(map[string]interface{}{"run_id": runID.String()})
	require.NoError(t, err)
	assert.Equal(t, runID, got)

	_, err = parseRunID(map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing run_id")

	_, err = parseRunID(map[string]interface{}{"run_id": "not-a-uuid"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid run_id")
}
