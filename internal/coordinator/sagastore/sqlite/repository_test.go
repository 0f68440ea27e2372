package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/saga-orchestrator/internal/coordinator/sagastore"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/messaging"
)

func openRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "saga.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	sc := sagastore.Context{
		CustomerID:         "cust-1",
		Items:              []messaging.Item{{SKU: "sku-1", Qty: 2, Price: 20}},
		ShippingAddress:    "123 Main St",
		PaymentMethodToken: "pm_card_visa",
		TotalAmount:        40,
	}
	created, err := repo.Create(ctx, "saga-1", sc, sagastore.StatusPendingOrder)
	require.NoError(t, err)
	assert.Equal(t, sagastore.StatusPendingOrder, created.Status)
	assert.Empty(t, created.Steps)

	got, ok, err := repo.Get(ctx, "saga-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sc, got.Context)

	_, err = repo.Create(ctx, "saga-1", sc, sagastore.StatusPendingOrder)
	assert.ErrorIs(t, err, sagastore.ErrAlreadyExists)
}

func TestRepository_GetUnknown(t *testing.T) {
	_, ok, err := openRepo(t).Get(context.Background(), "missing")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestRepository_StepsKeepAppendOrder(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	_, err := repo.Create(ctx, "saga-1", sagastore.Context{}, sagastore.StatusPendingOrder)
	require.NoError(t, err)

	require.NoError(t, repo.AddStep(ctx, "saga-1", sagastore.StepOrderCreate, sagastore.StepSucceeded, sagastore.WithMessageID("m-1")))
	require.NoError(t, repo.AddStep(ctx, "saga-1", sagastore.StepShippingCreate, sagastore.StepSent, sagastore.WithDetails(map[string]string{"address": "123 Main St"})))
	require.NoError(t, repo.AddStep(ctx, "saga-1", sagastore.StepShippingCreate, sagastore.StepSucceeded))

	rec, _, err := repo.Get(ctx, "saga-1")
	require.NoError(t, err)
	require.Len(t, rec.Steps, 3)
	assert.Equal(t, sagastore.StepOrderCreate, rec.Steps[0].Step)
	assert.Equal(t, "m-1", rec.Steps[0].MessageID)
	assert.Nil(t, rec.Steps[0].Details)
	assert.JSONEq(t, `{"address":"123 Main St"}`, string(rec.Steps[1].Details))
	assert.Equal(t, sagastore.StepSucceeded, rec.Steps[2].Status)
}

func TestRepository_Mutations(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	_, err := repo.Create(ctx, "saga-1", sagastore.Context{CustomerID: "cust-1"}, sagastore.StatusPendingOrder)
	require.NoError(t, err)

	require.NoError(t, repo.UpdateStatus(ctx, "saga-1", sagastore.StatusPendingShipping))
	require.NoError(t, repo.SetContextValue(ctx, "saga-1", sagastore.FieldOrderID, "order-1"))
	require.NoError(t, repo.SetError(ctx, "saga-1", "Simulated payment failure"))

	rec, _, err := repo.Get(ctx, "saga-1")
	require.NoError(t, err)
	assert.Equal(t, sagastore.StatusPendingShipping, rec.Status)
	assert.Equal(t, "order-1", rec.Context.OrderID)
	assert.Equal(t, "cust-1", rec.Context.CustomerID)
	assert.Equal(t, "Simulated payment failure", rec.Error)
	assert.Equal(t, base.Add(time.Second), rec.CreatedAt)
	assert.Equal(t, base.Add(4*time.Second), rec.UpdatedAt)

	assert.ErrorIs(t, repo.SetContextValue(ctx, "saga-1", sagastore.Field("nope"), "x"), sagastore.ErrUnknownField)
}

func TestRepository_UnknownIDFailsWithNotFound(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	assert.ErrorIs(t, repo.UpdateStatus(ctx, "missing", sagastore.StatusCompleted), sagastore.ErrNotFound)
	assert.ErrorIs(t, repo.SetContextValue(ctx, "missing", sagastore.FieldOrderID, "o"), sagastore.ErrNotFound)
	assert.ErrorIs(t, repo.AddStep(ctx, "missing", sagastore.StepOrderCreate, sagastore.StepSent), sagastore.ErrNotFound)
	assert.ErrorIs(t, repo.SetError(ctx, "missing", "x"), sagastore.ErrNotFound)
}

func TestRepository_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "saga.db")

	repo, err := Open(path)
	require.NoError(t, err)
	_, err = repo.Create(ctx, "saga-1", sagastore.Context{}, sagastore.StatusPendingOrder)
	require.NoError(t, err)
	require.NoError(t, repo.AddStep(ctx, "saga-1", sagastore.StepOrderCreate, sagastore.StepSucceeded))
	require.NoError(t, repo.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	rec, ok, err := reopened.Get(ctx, "saga-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, rec.Steps, 1)
}
