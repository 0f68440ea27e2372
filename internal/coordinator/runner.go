// Package coordinator implements the saga orchestrator: a state machine
// driven by participant events that records every step in a sagastore.Store
// and issues the next forward or compensating command.
//
// Delivery is at-least-once and retried messages may be overtaken, so every
// handler is idempotent: a (step, status) pair is appended at most once and
// a command is only published while its SENT step is absent.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jcmexdev/saga-orchestrator/internal/coordinator/sagastore"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/broker"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/messaging"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/metrics"
)

var (
	// ErrSagaNotFound is returned when an event or operator request refers
	// to a saga the store has never seen.
	ErrSagaNotFound = errors.New("coordinator: saga not found")

	// ErrNotAwaitingCompensation is returned by RetryCompensation when the
	// saga is not in FAILED_COMPENSATION_PENDING.
	ErrNotAwaitingCompensation = errors.New("coordinator: saga is not awaiting compensation")

	// ErrNothingToCompensate is returned by RetryCompensation when the
	// saga never learned an order id.
	ErrNothingToCompensate = errors.New("coordinator: saga has no order id to compensate")
)

// Runner is the orchestration state machine.
type Runner struct {
	store   sagastore.Store
	pub     broker.Publisher
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithMetrics counts status transitions in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner wires a Runner to its store and the publisher commands are sent with.
func NewRunner(store sagastore.Store, pub broker.Publisher, opts ...Option) *Runner {
	r := &Runner{store: store, pub: pub, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// --- forward path ---

// OnOrderCreated opens the saga, or backfills it on redelivery, and issues
// ShippingCreateCommand.
func (r *Runner) OnOrderCreated(ctx context.Context, e OrderCreated) error {
	rec, found, err := r.store.Get(ctx, e.SagaID)
	if err != nil {
		return err
	}
	if found && rec.HasStep(sagastore.StepShippingCreate) {
		r.logger.InfoContext(ctx, "duplicate order created event ignored", "saga_id", e.SagaID, "message_id", e.MessageID)
		return nil
	}
	if found && rec.Status.Terminal() {
		r.logger.WarnContext(ctx, "order created event for closed saga ignored", "saga_id", e.SagaID, "status", rec.Status)
		return nil
	}

	p := e.Payload
	if !found {
		rec, err = r.store.Create(ctx, e.SagaID, sagastore.Context{
			CustomerID:         p.CustomerID,
			Items:              p.Items,
			ShippingAddress:    p.ShippingAddress,
			PaymentMethodToken: p.PaymentMethodToken,
			TotalAmount:        p.TotalAmount,
			FailAt:             p.FailAt,
			OrderID:            p.OrderID,
		}, sagastore.StatusPendingOrder)
		if err != nil {
			return err
		}
		r.logger.InfoContext(ctx, "saga started", "saga_id", e.SagaID, "order_id", p.OrderID)
	} else if rec.Context.OrderID == "" && p.OrderID != "" {
		if err := r.setContext(ctx, &rec, sagastore.FieldOrderID, p.OrderID); err != nil {
			return err
		}
	}

	if err := r.addStepOnce(ctx, &rec, sagastore.StepOrderCreate, sagastore.StepSucceeded,
		sagastore.WithMessageID(e.MessageID),
		sagastore.WithDetails(p),
	); err != nil {
		return err
	}

	if err := r.issue(ctx, &rec, sagastore.StepShippingCreate, messaging.ShippingCreateCommand, messaging.ShippingCreate{
		OrderID: rec.Context.OrderID,
		Address: rec.Context.ShippingAddress,
		FailAt:  rec.Context.FailAt,
	}); err != nil {
		return err
	}

	if rec.Status == sagastore.StatusPendingOrder {
		return r.transition(ctx, &rec, sagastore.StatusPendingShipping)
	}
	return nil
}

// OnShippingCreated records the shipment and issues PaymentChargeCommand.
func (r *Runner) OnShippingCreated(ctx context.Context, e ShippingCreated) error {
	rec, err := r.load(ctx, e.SagaID)
	if err != nil {
		return err
	}
	if rec.HasStep(sagastore.StepPaymentCharge) {
		r.logger.InfoContext(ctx, "duplicate shipping created event ignored", "saga_id", e.SagaID, "message_id", e.MessageID)
		return nil
	}

	if rec.Context.OrderID == "" && e.Payload.OrderID != "" {
		if err := r.setContext(ctx, &rec, sagastore.FieldOrderID, e.Payload.OrderID); err != nil {
			return err
		}
	}
	if rec.Context.ShipmentID == "" {
		if err := r.setContext(ctx, &rec, sagastore.FieldShipmentID, e.Payload.ShipmentID); err != nil {
			return err
		}
	}
	if err := r.addStepOnce(ctx, &rec, sagastore.StepShippingCreate, sagastore.StepSucceeded,
		sagastore.WithMessageID(e.MessageID),
		sagastore.WithDetails(map[string]string{"shipmentId": e.Payload.ShipmentID}),
	); err != nil {
		return err
	}

	if err := r.issue(ctx, &rec, sagastore.StepPaymentCharge, messaging.PaymentChargeCommand, messaging.PaymentCharge{
		OrderID:            rec.Context.OrderID,
		Amount:             rec.Context.TotalAmount,
		PaymentMethodToken: rec.Context.PaymentMethodToken,
		FailAt:             rec.Context.FailAt,
	}); err != nil {
		return err
	}
	return r.transition(ctx, &rec, sagastore.StatusPendingPayment)
}

// OnPaymentCharged records the payment and completes the saga.
func (r *Runner) OnPaymentCharged(ctx context.Context, e PaymentCharged) error {
	rec, err := r.load(ctx, e.SagaID)
	if err != nil {
		return err
	}
	if rec.Status == sagastore.StatusCompleted {
		return nil
	}

	if rec.Context.PaymentID == "" {
		if err := r.setContext(ctx, &rec, sagastore.FieldPaymentID, e.Payload.PaymentID); err != nil {
			return err
		}
	}
	if err := r.addStepOnce(ctx, &rec, sagastore.StepPaymentCharge, sagastore.StepSucceeded,
		sagastore.WithMessageID(e.MessageID),
		sagastore.WithDetails(map[string]string{"paymentId": e.Payload.PaymentID}),
	); err != nil {
		return err
	}
	return r.transition(ctx, &rec, sagastore.StatusCompleted)
}

// --- failures ---

// OnOrderCreateFailed opens the saga if needed and closes it; there is
// nothing to compensate.
func (r *Runner) OnOrderCreateFailed(ctx context.Context, e OrderCreateFailed) error {
	rec, found, err := r.store.Get(ctx, e.SagaID)
	if err != nil {
		return err
	}
	p := e.Payload
	if !found {
		rec, err = r.store.Create(ctx, e.SagaID, sagastore.Context{
			CustomerID:         p.CustomerID,
			Items:              p.Items,
			ShippingAddress:    p.ShippingAddress,
			PaymentMethodToken: p.PaymentMethodToken,
			TotalAmount:        p.TotalAmount,
			FailAt:             p.FailAt,
		}, sagastore.StatusPendingOrder)
		if err != nil {
			return err
		}
	}
	if rec.Status.Terminal() {
		return nil
	}
	return r.fail(ctx, &rec, messaging.StageOrder, sagastore.StepOrderCreate, e.Meta, p.Reason)
}

// OnShippingCreateFailed starts compensating the order.
func (r *Runner) OnShippingCreateFailed(ctx context.Context, e ShippingCreateFailed) error {
	rec, err := r.load(ctx, e.SagaID)
	if err != nil {
		return err
	}
	if rec.HasStep(sagastore.StepOrderCancel) || rec.Status.Terminal() {
		return nil
	}
	return r.fail(ctx, &rec, messaging.StageShipping, sagastore.StepShippingCreate, e.Meta, e.Payload.Reason)
}

// OnPaymentChargeFailed starts compensating the shipment, then the order.
func (r *Runner) OnPaymentChargeFailed(ctx context.Context, e PaymentChargeFailed) error {
	rec, err := r.load(ctx, e.SagaID)
	if err != nil {
		return err
	}
	if rec.HasStep(sagastore.StepShippingCancel) || rec.Status.Terminal() {
		return nil
	}
	return r.fail(ctx, &rec, messaging.StagePayment, sagastore.StepPaymentCharge, e.Meta, e.Payload.Reason)
}

// fail records the failed step and error, then starts compensating stage.
func (r *Runner) fail(ctx context.Context, rec *sagastore.Record, stage messaging.Stage, step sagastore.StepName, m Meta, reason string) error {
	r.logger.WarnContext(ctx, "saga step failed", "saga_id", rec.SagaID, "step", step, "reason", reason)

	if err := r.addStepOnce(ctx, rec, step, sagastore.StepFailed,
		sagastore.WithMessageID(m.MessageID),
		sagastore.WithDetails(map[string]string{"reason": reason}),
	); err != nil {
		return err
	}
	if rec.Error != reason {
		if err := r.store.SetError(ctx, rec.SagaID, reason); err != nil {
			return err
		}
		rec.Error = reason
	}

	seq := CompensationSequence(stage)
	if len(seq) == 0 {
		return r.transition(ctx, rec, sagastore.StatusFailedCompensated)
	}
	return r.compensate(ctx, rec, seq[0])
}

// --- compensation path ---

// OnShippingCancelled records the cancelled shipment and moves on to the
// next compensation, if any.
func (r *Runner) OnShippingCancelled(ctx context.Context, e ShippingCancelled) error {
	rec, err := r.load(ctx, e.SagaID)
	if err != nil {
		return err
	}
	if err := r.addStepOnce(ctx, &rec, sagastore.StepShippingCancel, sagastore.StepCompensated,
		sagastore.WithMessageID(e.MessageID),
		sagastore.WithDetails(map[string]string{"shipmentId": e.Payload.ShipmentID}),
	); err != nil {
		return err
	}
	if rec.HasStepStatus(sagastore.StepOrderCancel, sagastore.StepSent) || rec.Status.Terminal() {
		return nil
	}

	next, ok := nextCompensation(failedStage(rec), ActionShippingCancel)
	if !ok {
		return r.transition(ctx, &rec, sagastore.StatusFailedCompensated)
	}
	return r.compensate(ctx, &rec, next)
}

// OnOrderCancelled records the cancelled order and closes the saga.
func (r *Runner) OnOrderCancelled(ctx context.Context, e OrderCancelled) error {
	rec, err := r.load(ctx, e.SagaID)
	if err != nil {
		return err
	}
	if err := r.addStepOnce(ctx, &rec, sagastore.StepOrderCancel, sagastore.StepCompensated,
		sagastore.WithMessageID(e.MessageID)); err != nil {
		return err
	}
	return r.transition(ctx, &rec, sagastore.StatusFailedCompensated)
}

// compensate issues the command for action. Without an order id there is
// nothing a participant can act on, so the saga parks in
// FAILED_COMPENSATION_PENDING for an operator.
func (r *Runner) compensate(ctx context.Context, rec *sagastore.Record, action Action) error {
	orderID := rec.Context.OrderID
	if orderID == "" {
		r.logger.ErrorContext(ctx, "cannot compensate without order id", "saga_id", rec.SagaID, "action", action)
		return r.transition(ctx, rec, sagastore.StatusFailedCompensationPending)
	}

	switch action {
	case ActionShippingCancel:
		if err := r.issue(ctx, rec, sagastore.StepShippingCancel, messaging.ShippingCancelCommand,
			messaging.OrderRef{OrderID: orderID}); err != nil {
			return err
		}
		return r.transition(ctx, rec, sagastore.StatusCompensatingShipping)
	case ActionOrderCancel:
		if err := r.issue(ctx, rec, sagastore.StepOrderCancel, messaging.OrderCancelCommand,
			messaging.OrderRef{OrderID: orderID}); err != nil {
			return err
		}
		return r.transition(ctx, rec, sagastore.StatusCompensatingOrder)
	default:
		return fmt.Errorf("coordinator: unknown compensation action %q", action)
	}
}

// RetryCompensation re-issues OrderCancelCommand for a saga parked in
// FAILED_COMPENSATION_PENDING. It is the operator entry point and its
// errors are reported to the caller, never retried.
func (r *Runner) RetryCompensation(ctx context.Context, id string) error {
	rec, found, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrSagaNotFound, id)
	}
	if rec.Status != sagastore.StatusFailedCompensationPending {
		return fmt.Errorf("%w: %s is %s", ErrNotAwaitingCompensation, id, rec.Status)
	}
	if rec.Context.OrderID == "" {
		return fmt.Errorf("%w: %s", ErrNothingToCompensate, id)
	}

	if err := r.send(ctx, &rec, sagastore.StepOrderCancel, messaging.OrderCancelCommand,
		messaging.OrderRef{OrderID: rec.Context.OrderID}); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "compensation retried", "saga_id", id, "order_id", rec.Context.OrderID)
	return r.transition(ctx, &rec, sagastore.StatusCompensatingOrder)
}

// Get returns a saga record for the HTTP facade.
func (r *Runner) Get(ctx context.Context, id string) (sagastore.Record, bool, error) {
	return r.store.Get(ctx, id)
}

// --- helpers ---

// load fetches the record an event refers to. A missing record cannot
// appear by retrying, so the error is permanent.
func (r *Runner) load(ctx context.Context, id string) (sagastore.Record, error) {
	rec, found, err := r.store.Get(ctx, id)
	if err != nil {
		return sagastore.Record{}, err
	}
	if !found {
		return sagastore.Record{}, broker.Permanent(fmt.Errorf("%w: %s", ErrSagaNotFound, id))
	}
	return rec, nil
}

// issue publishes a command unless its SENT step is already recorded.
func (r *Runner) issue(ctx context.Context, rec *sagastore.Record, step sagastore.StepName, typ messaging.Type, payload any) error {
	if rec.HasStepStatus(step, sagastore.StepSent) {
		return nil
	}
	return r.send(ctx, rec, step, typ, payload)
}

// send publishes a command and then records it as SENT. Publishing first
// means a failed publish surfaces as a retryable error instead of a SENT
// step for a command that never left.
func (r *Runner) send(ctx context.Context, rec *sagastore.Record, step sagastore.StepName, typ messaging.Type, payload any) error {
	env := messaging.New(rec.SagaID, typ, payload)
	if err := broker.PublishEnvelope(ctx, r.pub, env); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "command issued", "saga_id", rec.SagaID, "type", typ, "message_id", env.MessageID)
	return r.appendStep(ctx, rec, step, sagastore.StepSent,
		sagastore.WithMessageID(env.MessageID),
		sagastore.WithDetails(payload),
	)
}

func (r *Runner) addStepOnce(ctx context.Context, rec *sagastore.Record, step sagastore.StepName, status sagastore.StepStatus, opts ...sagastore.StepOption) error {
	if rec.HasStepStatus(step, status) {
		return nil
	}
	return r.appendStep(ctx, rec, step, status, opts...)
}

// appendStep writes through to the store and mirrors the entry on rec so
// later guards in the same handler see it.
func (r *Runner) appendStep(ctx context.Context, rec *sagastore.Record, step sagastore.StepName, status sagastore.StepStatus, opts ...sagastore.StepOption) error {
	if err := r.store.AddStep(ctx, rec.SagaID, step, status, opts...); err != nil {
		return err
	}
	rec.Steps = append(rec.Steps, sagastore.NewStep(ctx, step, status, opts...))
	return nil
}

func (r *Runner) setContext(ctx context.Context, rec *sagastore.Record, field sagastore.Field, value string) error {
	if err := r.store.SetContextValue(ctx, rec.SagaID, field, value); err != nil {
		return err
	}
	switch field {
	case sagastore.FieldOrderID:
		rec.Context.OrderID = value
	case sagastore.FieldShipmentID:
		rec.Context.ShipmentID = value
	case sagastore.FieldPaymentID:
		rec.Context.PaymentID = value
	}
	return nil
}

func (r *Runner) transition(ctx context.Context, rec *sagastore.Record, status sagastore.Status) error {
	if rec.Status == status {
		return nil
	}
	if err := r.store.UpdateStatus(ctx, rec.SagaID, status); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "saga transitioned", "saga_id", rec.SagaID, "from", rec.Status, "to", status)
	rec.Status = status
	r.metrics.IncTransition(string(status))
	return nil
}

// failedStage derives which forward stage failed from the history.
func failedStage(rec sagastore.Record) messaging.Stage {
	switch {
	case rec.HasStepStatus(sagastore.StepPaymentCharge, sagastore.StepFailed):
		return messaging.StagePayment
	case rec.HasStepStatus(sagastore.StepShippingCreate, sagastore.StepFailed):
		return messaging.StageShipping
	default:
		return messaging.StageOrder
	}
}
