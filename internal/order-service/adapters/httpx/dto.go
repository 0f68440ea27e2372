package httpx

type CreateOrderRequest struct {
	CustomerID         string               `json:"customerId"`
	Items              []CreateOrderItemDTO `json:"items"`
	ShippingAddress    string               `json:"shippingAddress"`
	PaymentMethodToken string               `json:"paymentMethodToken"`
	FailAt             string               `json:"failAt,omitempty"`
}

type CreateOrderItemDTO struct {
	SKU   string  `json:"sku"`
	Qty   int     `json:"qty"`
	Price float64 `json:"price"`
}

// CreateOrderResponse acknowledges that the saga was started.
type CreateOrderResponse struct {
	SagaID string `json:"sagaId"`
	Status string `json:"status"`
}
