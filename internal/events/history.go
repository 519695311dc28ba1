package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Record is the JSON view of an event kept by History.
type Record struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// History keeps the most recent events in a fixed-size ring.
type History struct {
	mu    sync.Mutex
	limit int
	items []Record
	next  int
	full  bool
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 100
	}
	return &History{limit: limit, items: make([]Record, limit)}
}

// Attach subscribes the history to the given types, or to AllTypes when none
// are given.
func (h *History) Attach(bus *EventBus, types ...string) {
	if len(types) == 0 {
		types = AllTypes
	}
	for _, t := range types {
		bus.Subscribe(t, h.Record)
	}
}

// Record stores event. It has the EventHandler signature.
func (h *History) Record(event *Event) error {
	payload := json.RawMessage(nil)
	if len(event.Payload) > 0 {
		if json.Valid(event.Payload) {
			payload = append(payload, event.Payload...)
		} else {
			payload, _ = json.Marshal(string(event.Payload))
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.items[h.next] = Record{ID: event.ID, Type: event.Type, Payload: payload, CreatedAt: event.CreatedAt}
	h.next = (h.next + 1) % h.limit
	if h.next == 0 {
		h.full = true
	}
	return nil
}

// Recent returns up to n records, oldest first. n <= 0 returns everything kept.
func (h *History) Recent(n int) []Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	size := h.next
	if h.full {
		size = h.limit
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]Record, 0, n)
	for i := size - n; i < size; i++ {
		idx := i
		if h.full {
			idx = (h.next + i) % h.limit
		}
		out = append(out, h.items[idx])
	}
	return out
}
