package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrEmptyActionType = errors.New("action type is required")

// PendingAction is a durable record of an effect that has not been confirmed
// delivered yet. It is never mutated after creation.
type PendingAction struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"timestamp"`
}

// NewPendingAction builds an action with a fresh id. Payload may be raw JSON
// or any value encodable with encoding/json.
func NewPendingAction(actionType string, payload any, now time.Time) (PendingAction, error) {
	actionType = strings.TrimSpace(actionType)
	if actionType == "" {
		return PendingAction{}, ErrEmptyActionType
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return PendingAction{}, fmt.Errorf("encode payload: %w", err)
	}

	return PendingAction{
		ID:        uuid.NewString(),
		Type:      actionType,
		Payload:   raw,
		CreatedAt: now,
	}, nil
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(v) > 0 && !json.Valid(v) {
			return nil, errors.New("payload is not valid JSON")
		}
		return cloneRaw(v), nil
	case []byte:
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid JSON")
		}
		return cloneRaw(v), nil
	default:
		return json.Marshal(v)
	}
}

// Clone returns a copy that shares no memory with a.
func (a PendingAction) Clone() PendingAction {
	a.Payload = cloneRaw(a.Payload)
	return a
}

func cloneRaw(b []byte) json.RawMessage {
	if b == nil {
		return nil
	}
	return append(json.RawMessage(nil), b...)
}

// DecodePayload unmarshals the action payload into dst.
func (a PendingAction) DecodePayload(dst any) error {
	if len(a.Payload) == 0 {
		return errors.New("payload is empty")
	}
	return json.Unmarshal(a.Payload, dst)
}
