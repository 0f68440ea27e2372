// Package httpx exposes the order service's HTTP entry point, which starts
// a saga.
package httpx

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/jcmexdev/saga-orchestrator/internal/order-service/app"
	"github.com/jcmexdev/saga-orchestrator/internal/order-service/domain"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/constants"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/httpx"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/messaging"
)

const maxBodyBytes = 1 << 20

// statusAccepted is reported to the client right after the saga starts; the
// orchestrator takes it from here.
const statusAccepted = "PENDING_SHIPPING"

// Orders is the use case the handler drives.
type Orders interface {
	CreateOrder(ctx context.Context, sagaID string, in app.CreateOrder) (domain.Order, error)
}

type Handler struct {
	orders Orders
	newID  func() string
}

func NewHandler(orders Orders) *Handler {
	return &Handler{orders: orders, newID: uuid.NewString}
}

// CreateOrder validates the request, assigns a saga id and hands over to the
// order use case. The saga continues asynchronously.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if err := validateCreateOrder(body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var req CreateOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	requestID, _ := r.Context().Value(constants.ContextKeyRequestID).(string)
	sagaID := h.newID()
	slog.InfoContext(r.Context(), "starting order saga",
		"request_id", requestID,
		"saga_id", sagaID,
		"customer_id", req.CustomerID,
	)

	if _, err := h.orders.CreateOrder(r.Context(), sagaID, toInput(req)); err != nil {
		slog.ErrorContext(r.Context(), "order saga not started", "saga_id", sagaID, "error", err)
		httpx.WriteError(w, http.StatusBadGateway, "order_service_error", err.Error())
		return
	}

	httpx.WriteJSON(w, http.StatusAccepted, CreateOrderResponse{SagaID: sagaID, Status: statusAccepted})
}

func toInput(req CreateOrderRequest) app.CreateOrder {
	items := make([]domain.OrderItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = domain.OrderItem{SKU: it.SKU, Quantity: it.Qty, UnitPrice: it.Price}
	}
	return app.CreateOrder{
		CustomerID:         req.CustomerID,
		Items:              items,
		ShippingAddress:    req.ShippingAddress,
		PaymentMethodToken: req.PaymentMethodToken,
		FailAt:             messaging.Stage(req.FailAt),
	}
}
