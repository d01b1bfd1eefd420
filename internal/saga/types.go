package saga

import (
	"errors"
	"fmt"
	"math"
	"time"

	"packflow/internal/payments"
)

// OrderItem is one SKU and quantity within an order.
type OrderItem struct {
	SKU       string  `json:"sku"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// Address is where a fulfilled order ships.
type Address struct {
	Line1      string `json:"line1"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Order is a customer purchase request. It is immutable input to the
// saga: the coordinator never mutates it.
type Order struct {
	ID       string            `json:"id"`
	Customer payments.Customer `json:"customer"`
	Items    []OrderItem       `json:"items"`
	Shipping Address           `json:"shipping"`
	Payment  payments.Method   `json:"payment"`
	Currency string            `json:"currency"`
}

// Validate rejects orders missing id, items, customer, or shipping.
func (o Order) Validate() error {
	if o.ID == "" {
		return errors.New("order id required")
	}
	if o.Customer.ID == "" {
		return errors.New("customer required")
	}
	if len(o.Items) == 0 {
		return errors.New("order has no items")
	}
	for _, item := range o.Items {
		if item.SKU == "" {
			return errors.New("item sku required")
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("item %q: quantity must be positive", item.SKU)
		}
		if item.UnitPrice < 0 {
			return fmt.Errorf("item %q: unit price must not be negative", item.SKU)
		}
	}
	if o.Shipping.Line1 == "" || o.Shipping.City == "" || o.Shipping.Country == "" {
		return errors.New("shipping address required")
	}
	return nil
}

// Options are the caller's knobs for one saga run.
type Options struct {
	ExpressShipping    bool `json:"expressShipping"`
	GiftWrap           bool `json:"giftWrap"`
	AllowNegativeStock bool `json:"allowNegativeStock"`
	RetryOnDecline     bool `json:"retryOnDecline"`
	MaxPaymentAttempts int  `json:"maxPaymentAttempts"`
}

// DefaultOptions mirrors the documented defaults: three payment
// attempts with declines retried.
func DefaultOptions() Options {
	return Options{RetryOnDecline: true, MaxPaymentAttempts: 3}
}

// State is the saga's position in its lifecycle.
type State string

const (
	StateValidating          State = "validating"
	StateReservingInventory  State = "reserving_inventory"
	StateChargingPayment     State = "charging_payment"
	StateCreatingFulfillment State = "creating_fulfillment"
	StateCompensating        State = "compensating"
	StateCompleted           State = "completed"
	StateFailed              State = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Result statuses.
const (
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// Saga-level error codes. Payment codes pass through from the payments
// package unchanged.
const (
	CodeInvalidOrder          = "invalid_order"
	CodeInsufficientInventory = "insufficient_inventory"
	CodeFulfillmentFailed     = "fulfillment_failed"
	CodeIdempotencyConflict   = "idempotency_conflict"
	CodeSagaInProgress        = "saga_in_progress"
	CodeInternal              = "internal_error"
)

// Totals is the priced breakdown of an order.
type Totals struct {
	Subtotal     float64 `json:"subtotal"`
	ShippingCost float64 `json:"shippingCost"`
	GiftWrapCost float64 `json:"giftWrapCost"`
	Tax          float64 `json:"tax"`
	Total        float64 `json:"total"`
}

const (
	standardShippingCost = 5.99
	expressShippingCost  = 19.99
	giftWrapCost         = 3.99
	taxRate              = 0.08
)

// ComputeTotals prices an order under the given options.
func ComputeTotals(order Order, opts Options) Totals {
	subtotal := 0.0
	for _, item := range order.Items {
		subtotal += float64(item.Quantity) * item.UnitPrice
	}
	subtotal = roundCents(subtotal)

	shipping := standardShippingCost
	if opts.ExpressShipping {
		shipping = expressShippingCost
	}
	wrap := 0.0
	if opts.GiftWrap {
		wrap = giftWrapCost
	}
	tax := roundCents(subtotal * taxRate)

	return Totals{
		Subtotal:     subtotal,
		ShippingCost: shipping,
		GiftWrapCost: wrap,
		Tax:          tax,
		Total:        roundCents(subtotal + shipping + wrap + tax),
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// Result is the terminal outcome of one saga run.
type Result struct {
	Success              bool      `json:"success"`
	OrderID              string    `json:"orderId"`
	TransactionID        string    `json:"transactionId"`
	Status               string    `json:"status"`
	TrackingNumber       string    `json:"trackingNumber,omitempty"`
	Carrier              string    `json:"carrier,omitempty"`
	EstimatedDelivery    time.Time `json:"estimatedDelivery,omitzero"`
	Totals               *Totals   `json:"totals,omitempty"`
	PaymentTransactionID string    `json:"paymentTransactionId,omitempty"`
	FraudScore           int       `json:"fraudScore"`
	PaymentAttempts      int       `json:"paymentAttempts"`
	ErrorCode            string    `json:"errorCode,omitempty"`
	ErrorMessage         string    `json:"errorMessage,omitempty"`
	CompensationError    string    `json:"compensationError,omitempty"`
	Timestamp            time.Time `json:"timestamp"`
}
