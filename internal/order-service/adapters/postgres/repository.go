// Package postgres stores orders in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jcmexdev/saga-orchestrator/internal/order-service/domain"
)

// Schema is idempotent. The unique saga_id makes creation safe under
// concurrent redelivery.
const Schema = `
CREATE TABLE IF NOT EXISTS orders (
	id            TEXT PRIMARY KEY,
	saga_id       TEXT NOT NULL UNIQUE,
	customer_id   TEXT NOT NULL,
	items         JSONB NOT NULL DEFAULT '[]',
	total_amount  DOUBLE PRECISION NOT NULL,
	status        TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, o domain.Order) (domain.Order, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: encode items: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (id, saga_id, customer_id, items, total_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (saga_id) DO NOTHING`,
		o.ID, o.SagaID, o.CustomerID, string(items), o.TotalAmount, string(o.Status),
	); err != nil {
		return domain.Order{}, fmt.Errorf("postgres: insert order for saga %s: %w", o.SagaID, err)
	}

	// Read back the surviving row: on conflict it is the earlier insert.
	var (
		stored  domain.Order
		rawItem []byte
	)
	err = r.db.QueryRowContext(ctx, `
		SELECT id, saga_id, customer_id, items, total_amount, status, created_at, updated_at
		FROM orders WHERE saga_id = $1`, o.SagaID,
	).Scan(&stored.ID, &stored.SagaID, &stored.CustomerID, &rawItem, &stored.TotalAmount, &stored.Status, &stored.CreatedAt, &stored.UpdatedAt)
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: load order for saga %s: %w", o.SagaID, err)
	}
	if err := json.Unmarshal(rawItem, &stored.Items); err != nil {
		return domain.Order{}, fmt.Errorf("postgres: decode items for saga %s: %w", o.SagaID, err)
	}
	return stored, nil
}

func (r *Repository) Cancel(ctx context.Context, sagaID string) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = 'CANCELLED', updated_at = NOW()
		WHERE saga_id = $1 AND status <> 'CANCELLED'`, sagaID,
	); err != nil {
		return fmt.Errorf("postgres: cancel order for saga %s: %w", sagaID, err)
	}
	return nil
}
