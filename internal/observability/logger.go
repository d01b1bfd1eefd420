package observability

import (
	"context"

	"github.com/rs/zerolog"

	"packflow/internal/saga"
)

// LogObserver writes saga lifecycle events as structured log lines.
type LogObserver struct {
	logger zerolog.Logger
}

// NewLogObserver constructs an observer over the given logger.
func NewLogObserver(logger zerolog.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) StageStarted(orderID, txID string, state saga.State) {
	o.logger.Debug().
		Str("order_id", orderID).
		Str("transaction_id", txID).
		Str("stage", string(state)).
		Msg("saga stage started")
}

func (o *LogObserver) StageFinished(orderID, txID string, state saga.State, err error) {
	event := o.logger.Debug()
	if err != nil {
		event = o.logger.Warn().Err(err)
	}
	event.
		Str("order_id", orderID).
		Str("transaction_id", txID).
		Str("stage", string(state)).
		Msg("saga stage finished")
}

func (o *LogObserver) CompensationRun(orderID, txID, detail string, err error) {
	event := o.logger.Info()
	if err != nil {
		event = o.logger.Error().Err(err)
	}
	event.
		Str("order_id", orderID).
		Str("transaction_id", txID).
		Str("detail", detail).
		Msg("saga compensation run")
}

func (o *LogObserver) SagaFinished(orderID, txID string, result saga.Result) {
	event := o.logger.Info()
	if !result.Success {
		event = o.logger.Warn().
			Str("error_code", result.ErrorCode).
			Str("error_message", result.ErrorMessage)
	}
	event.
		Str("order_id", orderID).
		Str("transaction_id", txID).
		Str("status", result.Status).
		Int("payment_attempts", result.PaymentAttempts).
		Msg("saga finished")
}

// LogNotifier is a notification dispatcher that logs terminal order
// events instead of calling an external channel.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a notifier over the given logger.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, orderID string, result saga.Result, eventType string) error {
	n.logger.Info().
		Str("order_id", orderID).
		Str("event", eventType).
		Str("transaction_id", result.TransactionID).
		Bool("success", result.Success).
		Msg("order notification")
	return nil
}
