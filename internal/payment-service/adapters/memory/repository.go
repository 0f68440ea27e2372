// Package memory is an in-process payment ledger, used when no database is
// configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jcmexdev/saga-orchestrator/internal/payment-service/domain"
)

type Repository struct {
	mu       sync.Mutex
	payments map[string]domain.Payment // keyed by saga id
}

func NewRepository() *Repository {
	return &Repository{
		payments: make(map[string]domain.Payment),
	}
}

func (r *Repository) Charge(_ context.Context, p domain.Payment) (domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.payments[p.SagaID]; ok {
		return existing, nil
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	r.payments[p.SagaID] = p
	return p, nil
}

func (r *Repository) Refund(_ context.Context, sagaID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[sagaID]
	if !ok || p.Status == domain.StatusRefunded {
		return nil
	}
	p.Status = domain.StatusRefunded
	p.UpdatedAt = time.Now().UTC()
	r.payments[sagaID] = p
	return nil
}

// Get returns the payment of a saga.
func (r *Repository) Get(sagaID string) (domain.Payment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[sagaID]
	return p, ok
}
