package sagastore

import (
	"context"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Memory is a concurrency-safe in-process Store. Each mutation runs inside
// MapOf.Compute, which holds the lock of that key's bucket only, so updates
// to different sagas never contend and updates to one saga are serialized.
// State does not survive a restart.
type Memory struct {
	records *xsync.MapOf[string, Record]
	now     func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records: xsync.NewMapOf[string, Record](),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Create(_ context.Context, id string, sc Context, status Status) (Record, error) {
	var (
		created Record
		exists  bool
	)
	m.records.Compute(id, func(old Record, loaded bool) (Record, bool) {
		if loaded {
			exists = true
			return old, false
		}
		now := m.now()
		created = Record{
			SagaID:    id,
			Status:    status,
			CreatedAt: now,
			UpdatedAt: now,
			Steps:     []Step{},
			Context:   sc,
		}
		created = created.clone()
		return created, false
	})
	if exists {
		return Record{}, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}
	return created.clone(), nil
}

func (m *Memory) Get(_ context.Context, id string) (Record, bool, error) {
	rec, ok := m.records.Load(id)
	if !ok {
		return Record{}, false, nil
	}
	return rec.clone(), true, nil
}

func (m *Memory) UpdateStatus(_ context.Context, id string, status Status) error {
	return m.mutate(id, func(r *Record) error {
		r.Status = status
		return nil
	})
}

func (m *Memory) SetContextValue(_ context.Context, id string, field Field, value string) error {
	return m.mutate(id, func(r *Record) error {
		if !r.Context.set(field, value) {
			return fmt.Errorf("%w: %s", ErrUnknownField, field)
		}
		return nil
	})
}

func (m *Memory) AddStep(ctx context.Context, id string, step StepName, status StepStatus, opts ...StepOption) error {
	entry := NewStep(ctx, step, status, opts...)
	return m.mutate(id, func(r *Record) error {
		r.Steps = append(r.Steps, entry)
		return nil
	})
}

func (m *Memory) SetError(_ context.Context, id string, reason string) error {
	return m.mutate(id, func(r *Record) error {
		r.Error = reason
		return nil
	})
}

// mutate applies fn to a private copy of the record and stores it with a
// fresh updatedAt. The stored record is left untouched when fn fails.
func (m *Memory) mutate(id string, fn func(*Record) error) error {
	var err error
	m.records.Compute(id, func(old Record, loaded bool) (Record, bool) {
		if !loaded {
			err = fmt.Errorf("%w: %s", ErrNotFound, id)
			return old, true
		}
		next := old.clone()
		if err = fn(&next); err != nil {
			return old, false
		}
		next.UpdatedAt = m.now()
		return next, false
	})
	return err
}
