package events

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VenkataVardineni/flowforge-automations/common/logger"
)

func newTestBus() *Bus {
	return NewBus(logger.New("error", "json"))
}

func receiveOne(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		require.True(t, ok, "subscription closed unexpectedly")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := newTestBus()
	runID := uuid.New()

	sub := bus.Subscribe(runID)
	defer bus.Unsubscribe(sub)

	bus.Publish(runID, TypeRunStarted, map[string]interface{}{"run_id": runID.String()})

	ev := receiveOne(t, sub)
	assert.Equal(t, TypeRunStarted, ev.Type)
	assert.Equal(t, runID.String(), ev.Data["run_id"])
	assert.False(t, ev.Timestamp.IsZero())
}

func TestPublishIsScopedToRun(t *testing.T) {
	bus := newTestBus()
	runA := uuid.New()
	runB := uuid.New()

	subA := bus.Subscribe(runA)
	subB := bus.Subscribe(runB)
	defer bus.Unsubscribe(subA)
	defer bus.Unsubscribe(subB)

	bus.Publish(runA, TypeStepStarted, map[string]interface{}{"node_id": "fetch"})

	ev := receiveOne(t, subA)
	assert.Equal(t, TypeStepStarted, ev.Type)

	select {
	case ev := <-subB.C:
		t.Fatalf("subscriber of another run received %q", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscriberReceivesInPublishOrder(t *testing.T) {
	bus := newTestBus()
	runID := uuid.New()

	sub := bus.Subscribe(runID)
	defer bus.Unsubscribe(sub)

	for i := 0; i < 20; i++ {
		bus.Publish(runID, TypeStepSucceeded, map[string]interface{}{"seq": i})
	}

	for i := 0; i < 20; i++ {
		ev := receiveOne(t, sub)
		assert.Equal(t, i, ev.Data["seq"])
	}
}

func TestSlowSubscriberLosesEventsWithoutBlocking(t *testing.T) {
	bus := newTestBus()
	runID := uuid.New()

	sub := bus.Subscribe(runID)
	defer bus.Unsubscribe(sub)

	// Publish past the buffer without draining. Publish must return promptly
	// even though nobody is reading.
	total := subscriberBuffer + 10
	done := make(chan struct{})
	go func() {
		for i := 0; i < total; i++ {
			bus.Publish(runID, TypeStepSucceeded, map[string]interface{}{"seq": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	received := 0
	for {
		select {
		case <-sub.C:
			received++
		default:
			assert.Equal(t, subscriberBuffer, received, "overflow events must be dropped")
			return
		}
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	bus := newTestBus()
	runID := uuid.New()

	sub := bus.Subscribe(runID)
	require.Equal(t, 1, bus.SubscriberCount(runID))

	bus.Unsubscribe(sub)
	bus.Unsubscribe(sub)
	bus.Unsubscribe(nil)

	assert.Equal(t, 0, bus.SubscriberCount(runID))

	_, ok := <-sub.C
	assert.False(t, ok, "channel must be closed after unsubscribe")

	// The run topic is usable again after the bucket was emptied
	sub2 := bus.Subscribe(runID)
	defer bus.Unsubscribe(sub2)
	bus.Publish(runID, TypeRunFinished, map[string]interface{}{"status": "completed"})
	ev := receiveOne(t, sub2)
	assert.Equal(t, TypeRunFinished, ev.Type)
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	bus := newTestBus()
	runID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(runID, TypeStepStarted, map[string]interface{}{
					"node_id": fmt.Sprintf("w%d-n%d", worker, j),
				})
			}
		}(i)
	}

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := bus.Subscribe(runID)
			for k := 0; k < 10; k++ {
				select {
				case <-sub.C:
				case <-time.After(10 * time.Millisecond):
				}
			}
			bus.Unsubscribe(sub)
		}()
	}

	wg.Wait()
}

func BenchmarkPublish(b *testing.B) {
	bus := newTestBus()
	runID := uuid.New()

	sub := bus.Subscribe(runID)
	defer bus.Unsubscribe(sub)

	// Drain continuously so the buffer never fills
	go func() {
		for range sub.C {
		}
	}()

	data := map[string]interface{}{"node_id": "fetch", "step_id": uuid.New().String()}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bus.Publish(runID, TypeStepSucceeded, data)
	}
}
