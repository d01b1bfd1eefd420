package saga

import (
	"context"

	"packflow/internal/ledger"
	"packflow/internal/payments"
)

// Observer is invoked at saga lifecycle points. The coordinator depends
// on no logging framework; callers attach telemetry through this.
type Observer interface {
	StageStarted(orderID, txID string, state State)
	StageFinished(orderID, txID string, state State, err error)
	CompensationRun(orderID, txID, detail string, err error)
	SagaFinished(orderID, txID string, result Result)
}

// NoopObserver ignores every event.
type NoopObserver struct{}

func (NoopObserver) StageStarted(string, string, State)            {}
func (NoopObserver) StageFinished(string, string, State, error)    {}
func (NoopObserver) CompensationRun(string, string, string, error) {}
func (NoopObserver) SagaFinished(string, string, Result)           {}

// Observers fans events out to several observers in order.
type Observers []Observer

func (o Observers) StageStarted(orderID, txID string, state State) {
	for _, obs := range o {
		obs.StageStarted(orderID, txID, state)
	}
}

func (o Observers) StageFinished(orderID, txID string, state State, err error) {
	for _, obs := range o {
		obs.StageFinished(orderID, txID, state, err)
	}
}

func (o Observers) CompensationRun(orderID, txID, detail string, err error) {
	for _, obs := range o {
		obs.CompensationRun(orderID, txID, detail, err)
	}
}

func (o Observers) SagaFinished(orderID, txID string, result Result) {
	for _, obs := range o {
		obs.SagaFinished(orderID, txID, result)
	}
}

// Notification event types.
const (
	EventOrderProcessed = "order_processed"
	EventOrderFailed    = "order_failed"
)

// NotificationDispatcher is told about terminal saga outcomes.
// Fire-and-forget: dispatch failures never affect the saga result.
type NotificationDispatcher interface {
	Notify(ctx context.Context, orderID string, result Result, eventType string) error
}

// AuditLog receives completed stock transactions and payment attempts
// for a durable trail. Failures are logged, not propagated.
type AuditLog interface {
	RecordStockTransaction(ctx context.Context, tx ledger.StockTransaction) error
	RecordPaymentAttempt(ctx context.Context, orderID string, attempt payments.Attempt) error
}

// NoopAuditLog discards audit records.
type NoopAuditLog struct{}

func (NoopAuditLog) RecordStockTransaction(context.Context, ledger.StockTransaction) error {
	return nil
}

func (NoopAuditLog) RecordPaymentAttempt(context.Context, string, payments.Attempt) error {
	return nil
}
