package queue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"kerigma/internal/models"

	"github.com/google/uuid"
)

// CurrentVersion is written by Encode. Version 0 is the bare JSON array the
// web client used to keep in local storage.
const CurrentVersion = 1

var (
	ErrCorrupt            = errors.New("persisted queue is corrupt")
	ErrUnsupportedVersion = errors.New("persisted queue version is not supported")
)

type envelope struct {
	Version int                    `json:"version"`
	Actions []models.PendingAction `json:"actions"`
}

// legacyAction is the shape written by the browser client: millisecond
// timestamps and the payload under "data".
type legacyAction struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// Encode serializes the full queue.
func Encode(actions []models.PendingAction) (string, error) {
	if actions == nil {
		actions = []models.PendingAction{}
	}
	raw, err := json.Marshal(envelope{Version: CurrentVersion, Actions: actions})
	if err != nil {
		return "", fmt.Errorf("encode queue: %w", err)
	}
	return string(raw), nil
}

// Dropped records a legacy entry that could not be turned into an action.
type Dropped struct {
	Index  int
	Reason string
	Raw    json.RawMessage
}

// Decode parses a persisted queue. Entries that share an id with an earlier
// entry get a fresh id so that neither is lost. Malformed entries of the
// legacy array are skipped and returned as dropped; in the versioned
// envelope they make the whole value corrupt.
func Decode(raw string) ([]models.PendingAction, []Dropped, error) {
	data := bytes.TrimSpace([]byte(raw))
	if len(data) == 0 {
		return nil, nil, nil
	}

	switch data[0] {
	case '[':
		actions, dropped, err := decodeLegacy(data)
		if err != nil {
			return nil, nil, err
		}
		return reassignDuplicates(actions), dropped, nil
	case '{':
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if env.Version != CurrentVersion {
			return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
		}
		for _, a := range env.Actions {
			if a.ID == "" || a.Type == "" {
				return nil, nil, fmt.Errorf("%w: action without id or type", ErrCorrupt)
			}
		}
		return reassignDuplicates(env.Actions), nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: unexpected leading byte %q", ErrCorrupt, data[0])
	}
}

func decodeLegacy(data []byte) ([]models.PendingAction, []Dropped, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var dropped []Dropped
	actions := make([]models.PendingAction, 0, len(items))
	for i, item := range items {
		var it legacyAction
		if err := json.Unmarshal(item, &it); err != nil {
			dropped = append(dropped, Dropped{Index: i, Reason: err.Error(), Raw: item})
			continue
		}
		if strings.TrimSpace(it.Type) == "" {
			dropped = append(dropped, Dropped{Index: i, Reason: "missing type", Raw: item})
			continue
		}
		actions = append(actions, models.PendingAction{
			ID:        it.ID,
			Type:      it.Type,
			Payload:   it.Data,
			CreatedAt: time.UnixMilli(it.Timestamp).UTC(),
		})
	}
	return actions, dropped, nil
}

// reassignDuplicates gives empty and repeated ids a fresh uuid. Order and
// the first holder of each id are preserved.
func reassignDuplicates(actions []models.PendingAction) []models.PendingAction {
	seen := make(map[string]struct{}, len(actions))
	for i := range actions {
		if _, dup := seen[actions[i].ID]; dup || actions[i].ID == "" {
			actions[i].ID = uuid.NewString()
		}
		seen[actions[i].ID] = struct{}{}
	}
	return actions
}
