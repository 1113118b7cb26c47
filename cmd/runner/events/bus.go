package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/VenkataVardineni/flowforge-automations/common/logger"
)

// Event types published on a run topic
const (
	TypeRunStarted    = "run_started"
	TypeRunFinished   = "run_finished"
	TypeRunState      = "run_state"
	TypeStepStarted   = "step_started"
	TypeStepSucceeded = "step_succeeded"
	TypeStepFailed    = "step_failed"
)

// Event is the envelope delivered to run subscribers
type Event struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// Subscription is one listener attached to a run topic
type Subscription struct {
	// C delivers events in publish order. It is closed by Unsubscribe.
	C <-chan Event

	runID uuid.UUID
	id    uint64
	ch    chan Event
}

// subscriberBuffer bounds how far a consumer may lag before losing events
const subscriberBuffer = 64

// Bus fans events out to per-run subscribers. Publish never blocks: a
// subscriber with a full buffer loses the event instead of stalling the run.
type Bus struct {
	mu     sync.RWMutex
	topics map[uuid.UUID]map[uint64]chan Event
	nextID uint64
	log    *logger.Logger
}

// NewBus creates an empty in-process event bus
func NewBus(log *logger.Logger) *Bus {
	return &Bus{
		topics: make(map[uuid.UUID]map[uint64]chan Event),
		log:    log,
	}
}

// Subscribe attaches a listener to a run topic. Events published before the
// subscribe are not delivered; callers needing history replay it from the
// database first.
func (b *Bus) Subscribe(runID uuid.UUID) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	ch := make(chan Event, subscriberBuffer)

	subs, ok := b.topics[runID]
	if !ok {
		subs = make(map[uint64]chan Event)
		b.topics[runID] = subs
	}
	subs[b.nextID] = ch

	return &Subscription{
		C:     ch,
		runID: runID,
		id:    b.nextID,
		ch:    ch,
	}
}

// Unsubscribe detaches a listener and closes its channel.
// Safe to call more than once.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.topics[sub.runID]
	if !ok {
		return
	}
	ch, ok := subs[sub.id]
	if !ok {
		return
	}

	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(b.topics, sub.runID)
	}
	close(ch)
}

// Publish stamps an event with the current time and fans it out to every
// subscriber of the run
func (b *Bus) Publish(runID uuid.UUID, eventType string, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := b.topics[runID]
	if len(subs) == 0 {
		return
	}

	for id, ch := range subs {
		select {
		case ch <- event:
		default:
			b.log.Warn("dropping event for slow subscriber",
				"run_id", runID,
				"subscriber", id,
				"event_type", event.Type)
		}
	}
}

// SubscriberCount returns the number of listeners on a run topic
func (b *Bus) SubscriberCount(runID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.topics[runID])
}
