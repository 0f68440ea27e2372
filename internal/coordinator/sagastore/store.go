package sagastore

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned by every mutating operation on an unknown saga id.
var ErrNotFound = errors.New("sagastore: saga not found")

// ErrAlreadyExists is returned by Create when the id is taken.
var ErrAlreadyExists = errors.New("sagastore: saga already exists")

// ErrUnknownField is returned by SetContextValue for a field it cannot set.
var ErrUnknownField = errors.New("sagastore: unknown context field")

// Store is the port for saga records. The Runner depends on this
// abstraction, not on a concrete backend, so the in-memory map can be
// swapped for SQLite without touching orchestration logic.
type Store interface {
	// Create stores a new record with an empty step history. It fails if
	// the id already exists.
	Create(ctx context.Context, id string, sc Context, status Status) (Record, error)

	// Get returns the record and true, or false when the id is unknown.
	Get(ctx context.Context, id string) (Record, bool, error)

	UpdateStatus(ctx context.Context, id string, status Status) error
	SetContextValue(ctx context.Context, id string, field Field, value string) error

	// AddStep appends one entry to the history. Existing entries are never
	// edited or removed.
	AddStep(ctx context.Context, id string, step StepName, status StepStatus, opts ...StepOption) error

	SetError(ctx context.Context, id string, reason string) error
}

// StepOption decorates a step before it is appended.
type StepOption func(*Step)

// WithMessageID records the id of the message that produced the step.
func WithMessageID(id string) StepOption {
	return func(s *Step) { s.MessageID = id }
}

// WithDetails attaches free-form JSON details to the step. Values that
// cannot be encoded are dropped.
func WithDetails(v any) StepOption {
	return func(s *Step) {
		if b, err := json.Marshal(v); err == nil {
			s.Details = b
		}
	}
}
