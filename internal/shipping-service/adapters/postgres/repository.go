// Package postgres stores shipments in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jcmexdev/saga-orchestrator/internal/shipping-service/domain"
)

const Schema = `
CREATE TABLE IF NOT EXISTS shipments (
	id          TEXT PRIMARY KEY,
	saga_id     TEXT NOT NULL UNIQUE,
	order_id    TEXT NOT NULL,
	address     TEXT NOT NULL,
	status      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const selectShipment = `
		SELECT id, saga_id, order_id, address, status, created_at, updated_at
		FROM shipments WHERE saga_id = $1`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, s domain.Shipment) (domain.Shipment, error) {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO shipments (id, saga_id, order_id, address, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (saga_id) DO NOTHING`,
		s.ID, s.SagaID, s.OrderID, s.Address, string(s.Status),
	); err != nil {
		return domain.Shipment{}, fmt.Errorf("postgres: insert shipment for saga %s: %w", s.SagaID, err)
	}

	stored, found, err := r.FindBySaga(ctx, s.SagaID)
	if err != nil {
		return domain.Shipment{}, err
	}
	if !found {
		return domain.Shipment{}, fmt.Errorf("postgres: shipment for saga %s vanished after insert", s.SagaID)
	}
	return stored, nil
}

func (r *Repository) FindBySaga(ctx context.Context, sagaID string) (domain.Shipment, bool, error) {
	var s domain.Shipment
	err := r.db.QueryRowContext(ctx, selectShipment, sagaID).
		Scan(&s.ID, &s.SagaID, &s.OrderID, &s.Address, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Shipment{}, false, nil
	}
	if err != nil {
		return domain.Shipment{}, false, fmt.Errorf("postgres: load shipment for saga %s: %w", sagaID, err)
	}
	return s, true, nil
}

func (r *Repository) Cancel(ctx context.Context, sagaID string) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE shipments
		SET status = 'CANCELLED', updated_at = NOW()
		WHERE saga_id = $1 AND status <> 'CANCELLED'`, sagaID,
	); err != nil {
		return fmt.Errorf("postgres: cancel shipment for saga %s: %w", sagaID, err)
	}
	return nil
}
