package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPendingAction(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("StructPayload", func(t *testing.T) {
		a, err := NewPendingAction("member.update", map[string]string{"name": "Ana"}, now)
		require.NoError(t, err)
		assert.NotEmpty(t, a.ID)
		assert.Equal(t, "member.update", a.Type)
		assert.Equal(t, now, a.CreatedAt)

		var decoded map[string]string
		require.NoError(t, a.DecodePayload(&decoded))
		assert.Equal(t, "Ana", decoded["name"])
	})

	t.Run("RawPayload", func(t *testing.T) {
		a, err := NewPendingAction("note", json.RawMessage(`{"x":1}`), now)
		require.NoError(t, err)
		assert.JSONEq(t, `{"x":1}`, string(a.Payload))
	})

	t.Run("InvalidRawPayload", func(t *testing.T) {
		_, err := NewPendingAction("note", []byte("{broken"), now)
		assert.Error(t, err)
	})

	t.Run("NilPayload", func(t *testing.T) {
		a, err := NewPendingAction("ping", nil, now)
		require.NoError(t, err)
		assert.Empty(t, a.Payload)
		assert.Error(t, a.DecodePayload(&struct{}{}))
	})

	t.Run("EmptyType", func(t *testing.T) {
		_, err := NewPendingAction("  ", nil, now)
		assert.ErrorIs(t, err, ErrEmptyActionType)
	})

	t.Run("UniqueIDs", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			a, err := NewPendingAction("t", i, now)
			require.NoError(t, err)
			assert.False(t, seen[a.ID], "duplicate id %s", a.ID)
			seen[a.ID] = true
		}
	})
}

func TestPayloadIsCopied(t *testing.T) {
	now := time.Now()

	t.Run("RawMessage", func(t *testing.T) {
		buf := json.RawMessage(`{"v":1}`)
		a, err := NewPendingAction("t", buf, now)
		require.NoError(t, err)
		copy(buf, `{"v":9}`)
		assert.JSONEq(t, `{"v":1}`, string(a.Payload))
	})

	t.Run("Bytes", func(t *testing.T) {
		buf := []byte(`{"v":1}`)
		a, err := NewPendingAction("t", buf, now)
		require.NoError(t, err)
		copy(buf, `{"v":9}`)
		assert.JSONEq(t, `{"v":1}`, string(a.Payload))
	})

	t.Run("Clone", func(t *testing.T) {
		a := PendingAction{ID: "a", Type: "t", Payload: json.RawMessage(`{"v":1}`), CreatedAt: now}
		c := a.Clone()
		copy(c.Payload, `{"v":9}`)
		assert.JSONEq(t, `{"v":1}`, string(a.Payload))
		assert.Equal(t, a.ID, c.ID)
		assert.Nil(t, PendingAction{}.Clone().Payload)
	})
}
