package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventConnectivityChanged = "connectivity_changed"
	EventQueueChanged        = "queue_changed"
	EventSubmissionSynced    = "submission_synced"
	EventSubmissionFailed    = "submission_failed"
)

// ConnectivityEventPayload describes a classification transition.
type ConnectivityEventPayload struct {
	Previous  string    `json:"previous"`
	Current   string    `json:"current"`
	LatencyMS int64     `json:"latency_ms"`
	At        time.Time `json:"at"`
}

// QueueEventPayload describes a queue size change.
type QueueEventPayload struct {
	LocalID string `json:"local_id,omitempty"`
	Type    string `json:"type,omitempty"`
	Count   int    `json:"count"`
}

// SubmissionEventPayload describes a per-item sync outcome.
type SubmissionEventPayload struct {
	LocalID  string `json:"local_id"`
	OwnerID  string `json:"owner_id"`
	Type     string `json:"type"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

type subscription struct {
	id      int64
	handler EventHandler
}

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]subscription
	nextID      int64
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]subscription)}
}

// Subscribe registers a handler for a given event type and returns an
// unsubscribe func. Calling it more than once is harmless.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[eventType]
		for i, s := range subs {
			if s.id == id {
				b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, s := range subs {
		// Handlers run synchronously; caller decides concurrency model.
		_ = s.handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
