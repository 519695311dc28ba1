package queue

import (
	"encoding/json"
	"testing"
	"time"

	"kerigma/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	actions := []models.PendingAction{
		{ID: "a", Type: "member.create", Payload: json.RawMessage(`{"name":"Ana"}`), CreatedAt: now},
		{ID: "b", Type: "event.delete", CreatedAt: now.Add(time.Second)},
	}

	raw, err := Encode(actions)
	require.NoError(t, err)
	assert.Contains(t, raw, `"version":1`)

	got, dropped, err := Decode(raw)
	require.NoError(t, err)
	assert.Empty(t, dropped)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.JSONEq(t, `{"name":"Ana"}`, string(got[0].Payload))
	assert.True(t, got[1].CreatedAt.Equal(now.Add(time.Second)))
}

func TestEncodeEmpty(t *testing.T) {
	raw, err := Encode(nil)
	require.NoError(t, err)

	got, dropped, err := Decode(raw)
	require.NoError(t, err)
	assert.Empty(t, dropped)
	assert.Empty(t, got)
}

func TestDecodeLegacyArray(t *testing.T) {
	raw := `[{"id":"1714000000000","type":"prayer.request","data":{"text":"hi"},"timestamp":1714000000000}]`

	got, dropped, err := Decode(raw)
	require.NoError(t, err)
	assert.Empty(t, dropped)
	require.Len(t, got, 1)
	assert.Equal(t, "1714000000000", got[0].ID)
	assert.Equal(t, "prayer.request", got[0].Type)
	assert.Equal(t, int64(1714000000000), got[0].CreatedAt.UnixMilli())
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		err  error
	}{
		{name: "garbage", raw: "not json", err: ErrCorrupt},
		{name: "truncated envelope", raw: `{"version":1,"actions":[`, err: ErrCorrupt},
		{name: "truncated array", raw: `[{"id":"1"`, err: ErrCorrupt},
		{name: "future version", raw: `{"version":7,"actions":[]}`, err: ErrUnsupportedVersion},
		{name: "missing id", raw: `{"version":1,"actions":[{"type":"x"}]}`, err: ErrCorrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.raw)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestDecodeBlank(t *testing.T) {
	got, _, err := Decode("   ")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDecodeKeepsDuplicateIDs(t *testing.T) {
	raw := `{"version":1,"actions":[{"id":"x","type":"a"},{"id":"x","type":"b"},{"id":"y","type":"c"}]}`

	got, dropped, err := Decode(raw)
	require.NoError(t, err)
	assert.Empty(t, dropped)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].Type, got[1].Type, got[2].Type})
	assert.Equal(t, "x", got[0].ID)
	assert.NotEqual(t, "x", got[1].ID)
	assert.NotEmpty(t, got[1].ID)
	assert.Equal(t, "y", got[2].ID)
}

func TestDecodeLegacySameMillisecond(t *testing.T) {
	// The browser client used Date.now() as the id.
	raw := `[
		{"id":"1714000000000","type":"member.update","data":{"id":1},"timestamp":1714000000000},
		{"id":"1714000000000","type":"event.rsvp","data":{"id":2},"timestamp":1714000000000}
	]`

	got, dropped, err := Decode(raw)
	require.NoError(t, err)
	assert.Empty(t, dropped)
	require.Len(t, got, 2)
	assert.Equal(t, "member.update", got[0].Type)
	assert.Equal(t, "1714000000000", got[0].ID)
	assert.Equal(t, "event.rsvp", got[1].Type)
	assert.NotEqual(t, got[0].ID, got[1].ID)
	assert.JSONEq(t, `{"id":2}`, string(got[1].Payload))
}

func TestDecodeLegacySkipsMalformedEntries(t *testing.T) {
	raw := `[
		{"id":"1","type":"member.update","timestamp":1},
		{"id":"2","data":{"orphan":true},"timestamp":2},
		42,
		{"type":"event.rsvp","timestamp":3}
	]`

	got, dropped, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "member.update", got[0].Type)
	assert.Equal(t, "event.rsvp", got[1].Type)
	assert.NotEmpty(t, got[1].ID)

	require.Len(t, dropped, 2)
	assert.Equal(t, 1, dropped[0].Index)
	assert.Equal(t, "missing type", dropped[0].Reason)
	assert.Equal(t, 2, dropped[1].Index)
	assert.JSONEq(t, `42`, string(dropped[1].Raw))
}
