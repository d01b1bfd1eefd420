package reservation

import (
	"context"
	"errors"
	"fmt"
	"log"

	"packflow/internal/ledger"
)

// Item is one SKU and quantity to hold for an order.
type Item struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// Hold describes reserved stock for one saga run.
type Hold struct {
	SagaID  string
	OrderID string
	Items   []Item
}

// HoldRecorder mirrors live holds to an external registry. Recorder
// failures never fail a reservation; the stock ledger is authoritative.
type HoldRecorder interface {
	RecordHold(ctx context.Context, hold Hold) error
	ReleaseHold(ctx context.Context, sagaID string) error
}

// Result reports what a reservation did: the applied ledger transaction
// on success, or the per-SKU shortage report on failure.
type Result struct {
	Transaction ledger.StockTransaction
	Unavailable []ledger.ShortSKU
}

// ErrNoItems signals a reservation with nothing to hold.
var ErrNoItems = errors.New("no items to reserve")

// Service holds and releases inventory through the stock ledger.
// Reservation batch ids derive from the saga transaction id, so a
// re-run of the same saga cannot double-decrement.
type Service struct {
	ledger *ledger.Ledger
	holds  HoldRecorder
	logf   func(format string, args ...any)
}

// NewService constructs a reservation service. The hold recorder may be
// nil; logf defaults to log.Printf.
func NewService(l *ledger.Ledger, holds HoldRecorder, logf func(format string, args ...any)) *Service {
	if logf == nil {
		logf = log.Printf
	}
	return &Service{ledger: l, holds: holds, logf: logf}
}

// Check reports which of the given items cannot currently be satisfied,
// without mutating anything.
func (s *Service) Check(ctx context.Context, items []Item) ([]ledger.ShortSKU, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	skus := make([]string, len(items))
	for i, item := range items {
		skus[i] = item.SKU
	}
	available, err := s.ledger.Available(ctx, skus)
	if err != nil {
		return nil, fmt.Errorf("check availability: %w", err)
	}

	var short []ledger.ShortSKU
	for _, item := range items {
		if available[item.SKU] < item.Quantity {
			short = append(short, ledger.ShortSKU{
				SKU:       item.SKU,
				Available: available[item.SKU],
				Requested: item.Quantity,
			})
		}
	}
	return short, nil
}

// Reserve decrements stock for every item as one atomic batch. On a
// shortage the result lists every unavailable SKU and nothing is held.
func (s *Service) Reserve(ctx context.Context, sagaID, orderID string, items []Item, allowNegative bool) (Result, error) {
	deltas, err := toDeltas(items, -1)
	if err != nil {
		return Result{}, err
	}

	tx, err := s.ledger.Apply(ctx, "reserve:"+sagaID, deltas, ledger.Policy{
		AllowNegative: allowNegative,
		ReasonTag:     "reservation",
	})
	if err != nil {
		var insufficient *ledger.InsufficientStockError
		if errors.As(err, &insufficient) {
			return Result{Unavailable: insufficient.Short}, err
		}
		return Result{}, err
	}

	if s.holds != nil {
		if err := s.holds.RecordHold(ctx, Hold{SagaID: sagaID, OrderID: orderID, Items: items}); err != nil {
			s.logf("record hold for saga %s: %v", sagaID, err)
		}
	}
	return Result{Transaction: tx}, nil
}

// Release restores the quantities decremented by Reserve for this saga
// run. It is idempotent for a given saga id.
func (s *Service) Release(ctx context.Context, sagaID string, items []Item) (ledger.StockTransaction, error) {
	deltas, err := toDeltas(items, 1)
	if err != nil {
		return ledger.StockTransaction{}, err
	}

	tx, err := s.ledger.Apply(ctx, "release:"+sagaID, deltas, ledger.Policy{
		ReasonTag: "reservation_release",
	})
	if err != nil {
		return ledger.StockTransaction{}, err
	}

	if s.holds != nil {
		if err := s.holds.ReleaseHold(ctx, sagaID); err != nil {
			s.logf("release hold for saga %s: %v", sagaID, err)
		}
	}
	return tx, nil
}

func toDeltas(items []Item, sign int) ([]ledger.StockDelta, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	deltas := make([]ledger.StockDelta, len(items))
	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item %q: quantity must be positive, got %d", item.SKU, item.Quantity)
		}
		deltas[i] = ledger.StockDelta{SKU: item.SKU, Delta: sign * item.Quantity}
	}
	return deltas, nil
}
