package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/saga-orchestrator/internal/payment-service/domain"
)

var paymentColumns = []string{"id", "saga_id", "order_id", "amount", "method_token", "status", "created_at", "updated_at"}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

func TestCharge_InsertsAndReadsBack(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (saga_id) DO NOTHING")).
		WithArgs("pay-1", "saga-1", "order-1", 40.0, "pm_card_visa", "CHARGED").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE saga_id = $1")).
		WithArgs("saga-1").
		WillReturnRows(sqlmock.NewRows(paymentColumns).
			AddRow("pay-1", "saga-1", "order-1", 40.0, "pm_card_visa", "CHARGED", now, now))

	got, err := NewRepository(db).Charge(context.Background(), domain.Payment{
		ID: "pay-1", SagaID: "saga-1", OrderID: "order-1", Amount: 40, MethodToken: "pm_card_visa", Status: domain.StatusCharged,
	})
	require.NoError(t, err)
	assert.Equal(t, "pay-1", got.ID)
	assert.Equal(t, domain.StatusCharged, got.Status)
}

func TestCharge_ReadBackError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO payments").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM payments").WithArgs("saga-1").WillReturnError(errors.New("timeout"))

	_, err := NewRepository(db).Charge(context.Background(), domain.Payment{SagaID: "saga-1"})
	assert.ErrorContains(t, err, "timeout")
}

func TestRefund_IsConditional(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta("WHERE saga_id = $1 AND status <> 'REFUNDED'")).
		WithArgs("saga-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, NewRepository(db).Refund(context.Background(), "saga-1"))
}
