package saga

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"packflow/internal/fulfillment"
	"packflow/internal/ledger"
	"packflow/internal/payments"
	"packflow/internal/reservation"
)

// TransactionID derives the saga's idempotency key from the order id.
// The same order always maps to the same key, and two orders never
// share one.
func TransactionID(orderID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("packflow/orders/"+orderID)).String()
}

// InventoryReserver holds and releases stock for a saga run.
type InventoryReserver interface {
	Reserve(ctx context.Context, sagaID, orderID string, items []reservation.Item, allowNegative bool) (reservation.Result, error)
	Release(ctx context.Context, sagaID string, items []reservation.Item) (ledger.StockTransaction, error)
}

// PaymentCharger charges a payment method under a retry policy.
type PaymentCharger interface {
	Charge(ctx context.Context, req payments.Request, policy payments.RetryPolicy) (payments.Outcome, error)
}

// Fulfiller produces the shipment record for a paid order.
type Fulfiller interface {
	Create(ctx context.Context, req fulfillment.Request) (fulfillment.Package, error)
}

// Config wires a Coordinator. Reservations, Payments, Fulfillment and
// Store are required; the rest default to no-ops.
type Config struct {
	Reservations InventoryReserver
	Payments     PaymentCharger
	Fulfillment  Fulfiller
	Store        Store
	Notifier     NotificationDispatcher
	Audit        AuditLog
	Observer     Observer

	// PaymentBaseDelay and PaymentAttemptTimeout feed the retry policy
	// built from each run's Options.
	PaymentBaseDelay      time.Duration
	PaymentAttemptTimeout time.Duration

	Logf func(format string, args ...any)
}

// Coordinator sequences one order through reservation, payment and
// fulfillment, compensating reserved stock when a later stage fails.
// Stages within a run are strictly sequential; distinct runs share no
// state beyond the stock ledger.
type Coordinator struct {
	reservations InventoryReserver
	payments     PaymentCharger
	fulfillment  Fulfiller
	store        Store
	notifier     NotificationDispatcher
	audit        AuditLog
	observer     Observer

	paymentBaseDelay      time.Duration
	paymentAttemptTimeout time.Duration

	logf    func(format string, args ...any)
	newTxID func(orderID string) string
	now     func() time.Time
}

// NewCoordinator constructs a Coordinator from config.
func NewCoordinator(cfg Config) *Coordinator {
	observer := cfg.Observer
	if observer == nil {
		observer = NoopObserver{}
	}
	audit := cfg.Audit
	if audit == nil {
		audit = NoopAuditLog{}
	}
	logf := cfg.Logf
	if logf == nil {
		logf = log.Printf
	}
	baseDelay := cfg.PaymentBaseDelay
	if baseDelay <= 0 {
		baseDelay = payments.DefaultRetryPolicy().BaseDelay
	}
	return &Coordinator{
		reservations:          cfg.Reservations,
		payments:              cfg.Payments,
		fulfillment:           cfg.Fulfillment,
		store:                 cfg.Store,
		notifier:              cfg.Notifier,
		audit:                 audit,
		observer:              observer,
		paymentBaseDelay:      baseDelay,
		paymentAttemptTimeout: cfg.PaymentAttemptTimeout,
		logf:                  logf,
		newTxID:               TransactionID,
		now:                   time.Now,
	}
}

// Run executes the saga for one order and returns its terminal result.
// Lower-layer errors never escape: they are classified, compensated
// where applicable, and folded into the result.
func (c *Coordinator) Run(ctx context.Context, order Order, opts Options) Result {
	if opts.MaxPaymentAttempts < 1 {
		opts.MaxPaymentAttempts = DefaultOptions().MaxPaymentAttempts
	}

	c.observer.StageStarted(order.ID, "", StateValidating)
	if err := order.Validate(); err != nil {
		c.observer.StageFinished(order.ID, "", StateValidating, err)
		result := Result{
			OrderID:      order.ID,
			Status:       StatusFailed,
			ErrorCode:    CodeInvalidOrder,
			ErrorMessage: err.Error(),
			Timestamp:    c.now().UTC(),
		}
		c.observer.SagaFinished(order.ID, "", result)
		c.notify(ctx, order.ID, result)
		return result
	}
	c.observer.StageFinished(order.ID, "", StateValidating, nil)

	txID := c.newTxID(order.ID)
	totals := ComputeTotals(order, opts)

	rec, created, err := c.store.Begin(ctx, txID, order.ID, totals.Total)
	if err != nil {
		code := CodeInternal
		if errors.Is(err, ErrIdempotencyConflict) {
			code = CodeIdempotencyConflict
		}
		return Result{
			OrderID:       order.ID,
			TransactionID: txID,
			Status:        StatusFailed,
			ErrorCode:     code,
			ErrorMessage:  err.Error(),
			Timestamp:     c.now().UTC(),
		}
	}
	if !created {
		// Idempotent re-run: a terminal execution returns its recorded
		// result; an in-flight one is refused rather than duplicated.
		if rec.Result != nil {
			return *rec.Result
		}
		return Result{
			OrderID:       order.ID,
			TransactionID: txID,
			Status:        StatusFailed,
			ErrorCode:     CodeSagaInProgress,
			ErrorMessage:  "saga already running for this order",
			Timestamp:     c.now().UTC(),
		}
	}

	items := reservationItems(order)

	c.enterStage(ctx, txID, order.ID, StateReservingInventory)
	reserved, err := c.reservations.Reserve(ctx, txID, order.ID, items, opts.AllowNegativeStock)
	c.exitStage(ctx, txID, order.ID, StateReservingInventory, err)
	if err != nil {
		code := CodeInternal
		var insufficient *ledger.InsufficientStockError
		if errors.As(err, &insufficient) {
			code = CodeInsufficientInventory
		}
		// Nothing was charged and nothing held: no compensation.
		return c.fail(ctx, txID, order, failure{code: code, err: err})
	}
	c.auditStock(ctx, reserved.Transaction)

	c.enterStage(ctx, txID, order.ID, StateChargingPayment)
	outcome, err := c.payments.Charge(ctx, payments.Request{
		OrderID:  order.ID,
		Amount:   totals.Total,
		Currency: currencyOf(order),
		Method:   order.Payment,
		Customer: order.Customer,
	}, payments.RetryPolicy{
		MaxAttempts:       opts.MaxPaymentAttempts,
		BaseDelay:         c.paymentBaseDelay,
		PerAttemptTimeout: c.paymentAttemptTimeout,
		RetryOnDecline:    opts.RetryOnDecline,
	})
	c.exitStage(ctx, txID, order.ID, StateChargingPayment, err)
	for _, attempt := range outcome.Attempts {
		c.auditPayment(ctx, order.ID, attempt)
	}
	if err != nil {
		code, msg := classifyPaymentError(err)
		return c.fail(ctx, txID, order, failure{
			code:       code,
			err:        errors.New(msg),
			compensate: true,
			items:      items,
			fraudScore: outcome.FraudScore,
			attempts:   len(outcome.Attempts),
		})
	}

	c.enterStage(ctx, txID, order.ID, StateCreatingFulfillment)
	pkg, err := c.fulfillment.Create(ctx, fulfillment.Request{
		OrderID:      order.ID,
		SKUs:         orderSKUs(order),
		Express:      opts.ExpressShipping,
		GiftWrap:     opts.GiftWrap,
		ShippingCost: totals.ShippingCost,
	})
	c.exitStage(ctx, txID, order.ID, StateCreatingFulfillment, err)
	if err != nil {
		// Stock is restored here; the charge is not auto-refunded. The
		// payment transaction id rides along so the payment collaborator
		// can reverse it.
		return c.fail(ctx, txID, order, failure{
			code:         CodeFulfillmentFailed,
			err:          err,
			compensate:   true,
			items:        items,
			paymentTxnID: outcome.TransactionID,
			fraudScore:   outcome.FraudScore,
			attempts:     len(outcome.Attempts),
		})
	}

	result := Result{
		Success:              true,
		OrderID:              order.ID,
		TransactionID:        txID,
		Status:               StatusProcessed,
		TrackingNumber:       pkg.TrackingNumber,
		Carrier:              pkg.Carrier,
		EstimatedDelivery:    pkg.EstimatedDelivery,
		Totals:               &totals,
		PaymentTransactionID: outcome.TransactionID,
		FraudScore:           outcome.FraudScore,
		PaymentAttempts:      len(outcome.Attempts),
		Timestamp:            c.now().UTC(),
	}
	// Detached so a caller gone away after the charge cannot leave a
	// charged execution stuck non-terminal.
	ctx = context.WithoutCancel(ctx)
	if err := c.store.Complete(ctx, txID, result); err != nil {
		c.logf("complete saga %s: %v", txID, err)
	}
	c.observer.SagaFinished(order.ID, txID, result)
	c.notify(ctx, order.ID, result)
	return result
}

// CompensateReservation releases stock reserved for an order whose saga
// was abandoned after the reservation stage. Idempotent per order: the
// release batch id derives from the saga transaction id. Callers must
// only invoke it for sagas known to have reserved.
func (c *Coordinator) CompensateReservation(ctx context.Context, order Order) error {
	if err := order.Validate(); err != nil {
		return err
	}
	txID := c.newTxID(order.ID)
	tx, err := c.reservations.Release(ctx, txID, reservationItems(order))
	c.observer.CompensationRun(order.ID, txID, "release abandoned reservation", err)
	if err != nil {
		return err
	}
	c.auditStock(ctx, tx)
	return nil
}

type failure struct {
	code         string
	err          error
	compensate   bool
	items        []reservation.Item
	paymentTxnID string
	fraudScore   int
	attempts     int
}

func (c *Coordinator) fail(ctx context.Context, txID string, order Order, f failure) Result {
	// The caller may already have abandoned the saga. Compensation and
	// the terminal record must still go through, or reserved stock is
	// never restored and the execution is stuck non-terminal.
	ctx = context.WithoutCancel(ctx)

	result := Result{
		OrderID:              order.ID,
		TransactionID:        txID,
		Status:               StatusFailed,
		ErrorCode:            f.code,
		ErrorMessage:         f.err.Error(),
		PaymentTransactionID: f.paymentTxnID,
		FraudScore:           f.fraudScore,
		PaymentAttempts:      f.attempts,
		Timestamp:            c.now().UTC(),
	}
	if f.compensate {
		result.CompensationError = c.compensate(ctx, txID, order.ID, f.items)
	}
	if err := c.store.Complete(ctx, txID, result); err != nil {
		c.logf("complete saga %s: %v", txID, err)
	}
	c.observer.SagaFinished(order.ID, txID, result)
	c.notify(ctx, order.ID, result)
	return result
}

// compensate restores every quantity decremented during reservation for
// this saga run. Its error is reported alongside, never instead of, the
// original failure.
func (c *Coordinator) compensate(ctx context.Context, txID, orderID string, items []reservation.Item) string {
	if err := c.store.UpdateState(ctx, txID, StateCompensating); err != nil {
		c.logf("mark saga %s compensating: %v", txID, err)
	}
	c.recordStep(ctx, txID, "compensation", "started", "release reserved stock")

	tx, err := c.reservations.Release(ctx, txID, items)
	c.observer.CompensationRun(orderID, txID, "release reserved stock", err)
	if err != nil {
		c.recordStep(ctx, txID, "compensation", "failed", err.Error())
		return err.Error()
	}
	c.recordStep(ctx, txID, "compensation", "succeeded", "")
	c.auditStock(ctx, tx)
	return ""
}

func (c *Coordinator) enterStage(ctx context.Context, txID, orderID string, state State) {
	if err := c.store.UpdateState(ctx, txID, state); err != nil {
		c.logf("update saga %s state to %s: %v", txID, state, err)
	}
	c.recordStep(ctx, txID, string(state), "started", "")
	c.observer.StageStarted(orderID, txID, state)
}

func (c *Coordinator) exitStage(ctx context.Context, txID, orderID string, state State, err error) {
	status, detail := "succeeded", ""
	if err != nil {
		status, detail = "failed", err.Error()
	}
	c.recordStep(ctx, txID, string(state), status, detail)
	c.observer.StageFinished(orderID, txID, state, err)
}

func (c *Coordinator) recordStep(ctx context.Context, txID, step, status, detail string) {
	if err := c.store.RecordStep(ctx, txID, step, status, detail); err != nil {
		c.logf("record step %s/%s for saga %s: %v", step, status, txID, err)
	}
}

func (c *Coordinator) notify(ctx context.Context, orderID string, result Result) {
	if c.notifier == nil {
		return
	}
	event := EventOrderFailed
	if result.Success {
		event = EventOrderProcessed
	}
	if err := c.notifier.Notify(ctx, orderID, result, event); err != nil {
		c.logf("notify %s for order %s: %v", event, orderID, err)
	}
}

func (c *Coordinator) auditStock(ctx context.Context, tx ledger.StockTransaction) {
	if err := c.audit.RecordStockTransaction(ctx, tx); err != nil {
		c.logf("audit stock transaction %s: %v", tx.BatchID, err)
	}
}

func (c *Coordinator) auditPayment(ctx context.Context, orderID string, attempt payments.Attempt) {
	if err := c.audit.RecordPaymentAttempt(ctx, orderID, attempt); err != nil {
		c.logf("audit payment attempt %d for order %s: %v", attempt.Number, orderID, err)
	}
}

func classifyPaymentError(err error) (code, msg string) {
	var pErr *payments.Error
	if errors.As(err, &pErr) {
		return string(pErr.Code), pErr.Message
	}
	return CodeInternal, err.Error()
}

func reservationItems(order Order) []reservation.Item {
	items := make([]reservation.Item, len(order.Items))
	for i, item := range order.Items {
		items[i] = reservation.Item{SKU: item.SKU, Quantity: item.Quantity}
	}
	return items
}

func orderSKUs(order Order) []string {
	skus := make([]string, len(order.Items))
	for i, item := range order.Items {
		skus[i] = item.SKU
	}
	return skus
}

func currencyOf(order Order) string {
	if order.Currency != "" {
		return order.Currency
	}
	return "USD"
}
