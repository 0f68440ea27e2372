// Package httpx is the orchestrator's HTTP facade: saga inspection and the
// operator's manual compensation retry.
package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/saga-orchestrator/internal/coordinator"
	"github.com/jcmexdev/saga-orchestrator/internal/coordinator/sagastore"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/httpx"
)

// Sagas is the subset of coordinator.Runner the facade needs.
type Sagas interface {
	Get(ctx context.Context, id string) (sagastore.Record, bool, error)
	RetryCompensation(ctx context.Context, id string) error
}

// Handler serves the saga endpoints.
type Handler struct {
	sagas Sagas
}

func NewHandler(sagas Sagas) *Handler {
	return &Handler{sagas: sagas}
}

// GetSaga returns the full saga record, steps included.
func (h *Handler) GetSaga(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, found, err := h.sagas.Get(r.Context(), id)
	if err != nil {
		slog.ErrorContext(r.Context(), "saga lookup failed", "saga_id", id, "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if !found {
		httpx.WriteError(w, http.StatusNotFound, "saga_not_found", "Saga not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rec)
}

// RetryCompensation re-issues the order cancellation for a saga parked in
// FAILED_COMPENSATION_PENDING. Precondition failures are reported as 400.
func (h *Handler) RetryCompensation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.sagas.RetryCompensation(r.Context(), id)
	switch {
	case err == nil:
		slog.InfoContext(r.Context(), "manual compensation retry accepted", "saga_id", id)
		httpx.WriteJSON(w, http.StatusOK, RetryResponse{OK: true})
	case errors.Is(err, coordinator.ErrSagaNotFound):
		httpx.WriteError(w, http.StatusBadRequest, "saga_not_found", err.Error())
	case errors.Is(err, coordinator.ErrNotAwaitingCompensation):
		httpx.WriteError(w, http.StatusBadRequest, "not_awaiting_compensation", err.Error())
	case errors.Is(err, coordinator.ErrNothingToCompensate):
		httpx.WriteError(w, http.StatusBadRequest, "nothing_to_compensate", err.Error())
	default:
		slog.ErrorContext(r.Context(), "manual compensation retry failed", "saga_id", id, "error", err)
		httpx.WriteError(w, http.StatusBadGateway, "retry_failed", err.Error())
	}
}

// RetryResponse is the body of a successful retry.
type RetryResponse struct {
	OK bool `json:"ok"`
}
