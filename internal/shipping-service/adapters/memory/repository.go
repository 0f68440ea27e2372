// Package memory is an in-process shipment repository, used when no
// database is configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jcmexdev/saga-orchestrator/internal/shipping-service/domain"
)

type Repository struct {
	mu        sync.Mutex
	shipments map[string]domain.Shipment // keyed by saga id
}

func NewRepository() *Repository {
	return &Repository{
		shipments: make(map[string]domain.Shipment),
	}
}

func (r *Repository) Create(_ context.Context, s domain.Shipment) (domain.Shipment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.shipments[s.SagaID]; ok {
		return existing, nil
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	r.shipments[s.SagaID] = s
	return s, nil
}

func (r *Repository) FindBySaga(_ context.Context, sagaID string) (domain.Shipment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shipments[sagaID]
	return s, ok, nil
}

func (r *Repository) Cancel(_ context.Context, sagaID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.shipments[sagaID]
	if !ok || s.Status == domain.StatusCancelled {
		return nil
	}
	s.Status = domain.StatusCancelled
	s.UpdatedAt = time.Now().UTC()
	r.shipments[sagaID] = s
	return nil
}
