// Package sagastore holds the saga record: the orchestrator-owned,
// append-only audit trail of every saga it has coordinated.
//
// A record serves two purposes:
//
//  1. Decisions: the Runner reads the step history before issuing a
//     downstream command so redelivered events never fire a command twice.
//
//  2. Observability: each step carries the trace id of the span that wrote
//     it, so a record can be joined with its distributed trace.
package sagastore

import (
	"encoding/json"
	"time"

	"github.com/jcmexdev/saga-orchestrator/internal/pkg/messaging"
)

// Status represents the lifecycle state of a saga.
type Status string

const (
	StatusPendingOrder              Status = "PENDING_ORDER"
	StatusPendingShipping           Status = "PENDING_SHIPPING"
	StatusPendingPayment            Status = "PENDING_PAYMENT"
	StatusCompleted                 Status = "COMPLETED"
	StatusCompensatingShipping      Status = "COMPENSATING_SHIPPING"
	StatusCompensatingOrder         Status = "COMPENSATING_ORDER"
	StatusFailedCompensated         Status = "FAILED_COMPENSATED"
	StatusFailedCompensationPending Status = "FAILED_COMPENSATION_PENDING"
)

// Terminal reports whether no further event is expected to move the saga.
// FAILED_COMPENSATION_PENDING is terminal until an operator retries it.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailedCompensated, StatusFailedCompensationPending:
		return true
	}
	return false
}

// StepName identifies a forward or compensating step.
type StepName string

const (
	StepOrderCreate    StepName = "ORDER_CREATE"
	StepShippingCreate StepName = "SHIPPING_CREATE"
	StepPaymentCharge  StepName = "PAYMENT_CHARGE"
	StepShippingCancel StepName = "SHIPPING_CANCEL"
	StepOrderCancel    StepName = "ORDER_CANCEL"
)

// StepStatus is the outcome recorded for a step.
type StepStatus string

const (
	StepSent        StepStatus = "SENT"
	StepSucceeded   StepStatus = "SUCCEEDED"
	StepFailed      StepStatus = "FAILED"
	StepCompensated StepStatus = "COMPENSATED"
)

// Step is one immutable entry of a saga's history.
type Step struct {
	Step      StepName        `json:"step"`
	Status    StepStatus      `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	MessageID string          `json:"messageId,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`

	// TraceID is the W3C trace id of the span active when the step was
	// appended. Empty when tracing is disabled.
	TraceID string `json:"traceId,omitempty"`
}

// Context accumulates the business facts of a saga. Identifiers learned
// from participants are filled in as their events arrive.
type Context struct {
	CustomerID         string           `json:"customerId,omitempty"`
	Items              []messaging.Item `json:"items,omitempty"`
	ShippingAddress    string           `json:"shippingAddress,omitempty"`
	PaymentMethodToken string           `json:"paymentMethodToken,omitempty"`
	TotalAmount        float64          `json:"totalAmount,omitempty"`
	FailAt             messaging.Stage  `json:"failAt,omitempty"`
	OrderID            string           `json:"orderId,omitempty"`
	ShipmentID         string           `json:"shipmentId,omitempty"`
	PaymentID          string           `json:"paymentId,omitempty"`
}

// Field names a single Context value settable with SetContextValue.
type Field string

const (
	FieldOrderID    Field = "orderId"
	FieldShipmentID Field = "shipmentId"
	FieldPaymentID  Field = "paymentId"
)

// set assigns value to the named field. It reports false for unknown fields.
func (c *Context) set(f Field, value string) bool {
	switch f {
	case FieldOrderID:
		c.OrderID = value
	case FieldShipmentID:
		c.ShipmentID = value
	case FieldPaymentID:
		c.PaymentID = value
	default:
		return false
	}
	return true
}

// Record is the full state of one saga.
type Record struct {
	SagaID    string    `json:"sagaId"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Steps     []Step    `json:"steps"`
	Context   Context   `json:"context"`
	Error     string    `json:"error,omitempty"`
}

// HasStep reports whether any entry for step exists.
func (r Record) HasStep(step StepName) bool {
	for _, s := range r.Steps {
		if s.Step == step {
			return true
		}
	}
	return false
}

// HasStepStatus reports whether the exact (step, status) pair was recorded.
func (r Record) HasStepStatus(step StepName, status StepStatus) bool {
	for _, s := range r.Steps {
		if s.Step == step && s.Status == status {
			return true
		}
	}
	return false
}

// clone returns a deep copy so callers never share step or item slices
// with the stored record.
func (r Record) clone() Record {
	out := r
	out.Steps = make([]Step, len(r.Steps))
	for i, s := range r.Steps {
		if s.Details != nil {
			s.Details = append(json.RawMessage(nil), s.Details...)
		}
		out.Steps[i] = s
	}
	if r.Context.Items != nil {
		out.Context.Items = append([]messaging.Item(nil), r.Context.Items...)
	}
	return out
}
