// Package memory is an in-process order repository, used when no database
// is configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jcmexdev/saga-orchestrator/internal/order-service/domain"
)

type Repository struct {
	mu     sync.Mutex
	orders map[string]domain.Order // keyed by saga id
}

func NewRepository() *Repository {
	return &Repository{
		orders: make(map[string]domain.Order),
	}
}

func (r *Repository) Create(_ context.Context, o domain.Order) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.orders[o.SagaID]; ok {
		return existing, nil
	}

	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	r.orders[o.SagaID] = o
	return o, nil
}

func (r *Repository) Cancel(_ context.Context, sagaID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[sagaID]
	if !ok || order.Status == domain.StatusCancelled {
		return nil
	}
	order.Status = domain.StatusCancelled
	order.UpdatedAt = time.Now().UTC()
	r.orders[sagaID] = order
	return nil
}

// Get returns the order of a saga.
func (r *Repository) Get(sagaID string) (domain.Order, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[sagaID]
	return o, ok
}
