package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/saga-orchestrator/internal/order-service/app"
	"github.com/jcmexdev/saga-orchestrator/internal/order-service/domain"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/messaging"
)

type fakeOrders struct {
	sagaID string
	input  app.CreateOrder
	calls  int
	err    error
}

func (f *fakeOrders) CreateOrder(_ context.Context, sagaID string, in app.CreateOrder) (domain.Order, error) {
	f.calls++
	f.sagaID, f.input = sagaID, in
	return domain.Order{ID: "order-1", SagaID: sagaID}, f.err
}

const validBody = `{
  "customerId": "cust-1",
  "items": [{"sku": "sku-1", "qty": 2, "price": 20}, {"sku": "sku-2", "qty": 1, "price": 5.5}],
  "shippingAddress": "123 Main St",
  "paymentMethodToken": "pm_card_visa",
  "failAt": "payment"
}`

func newServer(orders Orders) http.Handler {
	h := NewHandler(orders)
	h.newID = func() string { return "3f1f4a43-9a34-4a55-8b0a-2f7e9e7a1c11" }
	return NewRouter(h, nil)
}

func post(t *testing.T, srv http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestCreateOrder_Accepted(t *testing.T) {
	orders := &fakeOrders{}
	rec := post(t, newServer(orders), validBody)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp CreateOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "3f1f4a43-9a34-4a55-8b0a-2f7e9e7a1c11", resp.SagaID)
	assert.Equal(t, "PENDING_SHIPPING", resp.Status)

	require.Equal(t, 1, orders.calls)
	assert.Equal(t, resp.SagaID, orders.sagaID)
	assert.Equal(t, "cust-1", orders.input.CustomerID)
	assert.Equal(t, messaging.StagePayment, orders.input.FailAt)
	assert.Equal(t, []domain.OrderItem{
		{SKU: "sku-1", Quantity: 2, UnitPrice: 20},
		{SKU: "sku-2", Quantity: 1, UnitPrice: 5.5},
	}, orders.input.Items)
}

func TestCreateOrder_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing customer", `{"items":[{"sku":"a","qty":1,"price":1}],"shippingAddress":"x","paymentMethodToken":"y"}`},
		{"empty customer", `{"customerId":"","items":[{"sku":"a","qty":1,"price":1}],"shippingAddress":"x","paymentMethodToken":"y"}`},
		{"no items", `{"customerId":"c","items":[],"shippingAddress":"x","paymentMethodToken":"y"}`},
		{"zero qty", `{"customerId":"c","items":[{"sku":"a","qty":0,"price":1}],"shippingAddress":"x","paymentMethodToken":"y"}`},
		{"fractional qty", `{"customerId":"c","items":[{"sku":"a","qty":1.5,"price":1}],"shippingAddress":"x","paymentMethodToken":"y"}`},
		{"negative price", `{"customerId":"c","items":[{"sku":"a","qty":1,"price":-2}],"shippingAddress":"x","paymentMethodToken":"y"}`},
		{"empty sku", `{"customerId":"c","items":[{"sku":"","qty":1,"price":1}],"shippingAddress":"x","paymentMethodToken":"y"}`},
		{"missing token", `{"customerId":"c","items":[{"sku":"a","qty":1,"price":1}],"shippingAddress":"x"}`},
		{"unknown failAt", `{"customerId":"c","items":[{"sku":"a","qty":1,"price":1}],"shippingAddress":"x","paymentMethodToken":"y","failAt":"warehouse"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := &fakeOrders{}
			rec := post(t, newServer(orders), tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, orders.calls)
		})
	}
}

func TestCreateOrder_PublishFailure(t *testing.T) {
	rec := post(t, newServer(&fakeOrders{err: errors.New("broker unavailable")}), validBody)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "order_service_error")
}
