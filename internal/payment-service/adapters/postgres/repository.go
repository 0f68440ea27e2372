// Package postgres stores payments in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jcmexdev/saga-orchestrator/internal/payment-service/domain"
)

const Schema = `
CREATE TABLE IF NOT EXISTS payments (
	id            TEXT PRIMARY KEY,
	saga_id       TEXT NOT NULL UNIQUE,
	order_id      TEXT NOT NULL,
	amount        DOUBLE PRECISION NOT NULL,
	method_token  TEXT NOT NULL,
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

func (r *Repository) Charge(ctx context.Context, p domain.Payment) (domain.Payment, error) {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (id, saga_id, order_id, amount, method_token, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (saga_id) DO NOTHING`,
		p.ID, p.SagaID, p.OrderID, p.Amount, p.MethodToken, string(p.Status),
	); err != nil {
		return domain.Payment{}, fmt.Errorf("postgres: insert payment for saga %s: %w", p.SagaID, err)
	}

	var stored domain.Payment
	err := r.db.QueryRowContext(ctx, `
		SELECT id, saga_id, order_id, amount, method_token, status, created_at, updated_at
		FROM payments WHERE saga_id = $1`, p.SagaID,
	).Scan(&stored.ID, &stored.SagaID, &stored.OrderID, &stored.Amount, &stored.MethodToken, &stored.Status, &stored.CreatedAt, &stored.UpdatedAt)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("postgres: load payment for saga %s: %w", p.SagaID, err)
	}
	return stored, nil
}

func (r *Repository) Refund(ctx context.Context, sagaID string) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = 'REFUNDED', updated_at = NOW()
		WHERE saga_id = $1 AND status <> 'REFUNDED'`, sagaID,
	); err != nil {
		return fmt.Errorf("postgres: refund payment for saga %s: %w", sagaID, err)
	}
	return nil
}
