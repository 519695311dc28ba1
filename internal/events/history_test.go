package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryKeepsRecentEvents(t *testing.T) {
	bus := NewEventBus()
	h := NewHistory(3)
	h.Attach(bus)

	for i := 1; i <= 5; i++ {
		require.NoError(t, bus.PublishJSON(EventActionEnqueued, ActionEventPayload{QueueSize: i}))
	}

	got := h.Recent(0)
	require.Len(t, got, 3)
	sizes := make([]int, 0, len(got))
	for _, r := range got {
		var p ActionEventPayload
		require.NoError(t, json.Unmarshal(r.Payload, &p))
		sizes = append(sizes, p.QueueSize)
		assert.Equal(t, EventActionEnqueued, r.Type)
	}
	assert.Equal(t, []int{3, 4, 5}, sizes)

	last := h.Recent(1)
	require.Len(t, last, 1)
	assert.Equal(t, got[2].ID, last[0].ID)
}

func TestHistoryPartialAndFiltered(t *testing.T) {
	bus := NewEventBus()
	h := NewHistory(10)
	h.Attach(bus, EventSyncFailed)

	require.NoError(t, bus.PublishJSON(EventSyncCompleted, SyncEventPayload{Synced: 1}))
	require.NoError(t, bus.PublishJSON(EventSyncFailed, SyncEventPayload{Error: "boom"}))
	bus.Publish(&Event{Type: EventSyncFailed, Payload: []byte("not json")})

	got := h.Recent(5)
	require.Len(t, got, 2)
	assert.Equal(t, EventSyncFailed, got[0].Type)
	assert.JSONEq(t, `"not json"`, string(got[1].Payload))

	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"created_at"`)
}
