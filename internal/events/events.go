package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventActionEnqueued      = "action_enqueued"
	EventSyncStarted         = "sync_started"
	EventSyncCompleted       = "sync_completed"
	EventSyncFailed          = "sync_failed"
	EventConnectivityChanged = "connectivity_changed"
	EventQueueCleared        = "queue_cleared"
	EventNotification        = "notification"
)

// AllTypes lists every event type published by the service.
var AllTypes = []string{
	EventActionEnqueued,
	EventSyncStarted,
	EventSyncCompleted,
	EventSyncFailed,
	EventConnectivityChanged,
	EventQueueCleared,
	EventNotification,
}

// SyncEventPayload describes the outcome of one sync pass.
type SyncEventPayload struct {
	Attempted int       `json:"attempted"`
	Synced    int       `json:"synced"`
	Failed    int       `json:"failed"`
	Remaining int       `json:"remaining"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// ActionEventPayload describes a queued action without its payload.
type ActionEventPayload struct {
	ActionID   string `json:"action_id"`
	ActionType string `json:"action_type"`
	Online     bool   `json:"online"`
	QueueSize  int    `json:"queue_size"`
}

// ConnectivityEventPayload reports a connectivity transition.
type ConnectivityEventPayload struct {
	Online bool `json:"online"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	seq         int64
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. Handler errors and panics
// are swallowed.
func (b *EventBus) Publish(event *Event) {
	b.mu.Lock()
	b.seq++
	if event.ID == 0 {
		event.ID = b.seq
	}
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.Unlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		callHandler(handler, event)
	}
}

func callHandler(handler EventHandler, event *Event) {
	defer func() { _ = recover() }()
	_ = handler(event)
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
