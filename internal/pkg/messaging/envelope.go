// Package messaging defines the envelope that wraps every saga command and
// event, and the catalog of message types exchanged between the orchestrator
// and the participant services.
//
// Every message on the bus is a UTF-8 JSON document of the form:
//
//	{"messageId": "...", "correlationId": "...", "sagaId": "...",
//	 "type": "ShippingCreateCommand", "timestamp": "...", "payload": {...}}
//
// correlationId always equals sagaId, and messageId is fresh per publish.
package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrCorrelationMismatch is returned by Parse when an envelope's
// correlationId differs from its sagaId.
var ErrCorrelationMismatch = errors.New("messaging: correlationId does not match sagaId")

// Envelope carries identity and correlation metadata around a payload.
type Envelope[T any] struct {
	MessageID     string    `json:"messageId"`
	CorrelationID string    `json:"correlationId"`
	SagaID        string    `json:"sagaId"`
	Type          Type      `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	Payload       T         `json:"payload"`
}

// Raw is an envelope whose payload has not been decoded yet.
type Raw = Envelope[json.RawMessage]

// New wraps payload in an envelope with a fresh message id and the current time.
func New[T any](sagaID string, typ Type, payload T) Envelope[T] {
	return Envelope[T]{
		MessageID:     uuid.NewString(),
		CorrelationID: sagaID,
		SagaID:        sagaID,
		Type:          typ,
		Timestamp:     time.Now().UTC(),
		Payload:       payload,
	}
}

// Parse validates body against the envelope contract and decodes it,
// leaving the payload raw for DecodePayload.
func Parse(body []byte) (Raw, error) {
	if err := Validate(body); err != nil {
		return Raw{}, err
	}

	var env Raw
	if err := json.Unmarshal(body, &env); err != nil {
		return Raw{}, fmt.Errorf("messaging: decode envelope: %w", err)
	}
	if env.CorrelationID != env.SagaID {
		return Raw{}, fmt.Errorf("%w (message %s)", ErrCorrelationMismatch, env.MessageID)
	}
	return env, nil
}

// DecodePayload converts a raw envelope into a typed one.
func DecodePayload[T any](raw Raw) (Envelope[T], error) {
	var payload T
	if err := json.Unmarshal(raw.Payload, &payload); err != nil {
		return Envelope[T]{}, fmt.Errorf("messaging: decode %s payload: %w", raw.Type, err)
	}
	return Envelope[T]{
		MessageID:     raw.MessageID,
		CorrelationID: raw.CorrelationID,
		SagaID:        raw.SagaID,
		Type:          raw.Type,
		Timestamp:     raw.Timestamp,
		Payload:       payload,
	}, nil
}
