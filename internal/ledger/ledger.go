package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// StockDelta is a requested quantity change for one SKU.
type StockDelta struct {
	SKU   string
	Delta int
}

// Policy controls how a batch is validated before it is applied.
type Policy struct {
	AllowNegative bool
	ReasonTag     string
}

// SKUChange records the before/after quantity for one SKU in a batch.
type SKUChange struct {
	SKU    string
	Before int
	After  int
}

// StockTransaction is one atomic application of a batch of deltas.
// It is immutable once returned.
type StockTransaction struct {
	BatchID   string
	Reason    string
	Changes   []SKUChange
	AppliedAt time.Time
}

// Store holds current per-SKU quantities.
type Store interface {
	Quantities(ctx context.Context, skus []string) (map[string]int, error)
	SetQuantity(ctx context.Context, sku string, qty int) error
}

// Ledger applies batches of stock deltas atomically against a Store.
//
// A single mutex serializes Apply so two concurrent batches touching
// overlapping SKUs cannot both validate against a stale read and then
// both write.
type Ledger struct {
	mu      sync.Mutex
	store   Store
	applied map[string]StockTransaction
	now     func() time.Time
}

// NewLedger constructs a Ledger over the given store.
func NewLedger(store Store) *Ledger {
	return &Ledger{
		store:   store,
		applied: make(map[string]StockTransaction),
		now:     time.Now,
	}
}

// Apply validates and applies a batch of deltas as a unit. Either every
// delta is applied, or none are and the store is left unchanged.
//
// Re-applying a batch ID that already succeeded returns the recorded
// transaction without mutating quantities.
func (l *Ledger) Apply(ctx context.Context, batchID string, deltas []StockDelta, policy Policy) (StockTransaction, error) {
	if batchID == "" {
		return StockTransaction{}, ErrMissingBatchID
	}
	if len(deltas) == 0 {
		return StockTransaction{}, ErrEmptyBatch
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if tx, ok := l.applied[batchID]; ok {
		return tx, nil
	}

	seen := make(map[string]struct{}, len(deltas))
	skus := make([]string, 0, len(deltas))
	for _, d := range deltas {
		if d.SKU == "" {
			return StockTransaction{}, ErrMissingSKU
		}
		if _, dup := seen[d.SKU]; dup {
			return StockTransaction{}, &DuplicateSKUError{SKU: d.SKU}
		}
		seen[d.SKU] = struct{}{}
		skus = append(skus, d.SKU)
	}

	current, err := l.store.Quantities(ctx, skus)
	if err != nil {
		return StockTransaction{}, fmt.Errorf("read quantities: %w", err)
	}

	if !policy.AllowNegative {
		var short []ShortSKU
		for _, d := range deltas {
			if current[d.SKU]+d.Delta < 0 {
				short = append(short, ShortSKU{
					SKU:       d.SKU,
					Available: current[d.SKU],
					Requested: -d.Delta,
				})
			}
		}
		if len(short) > 0 {
			return StockTransaction{}, &InsufficientStockError{Short: short}
		}
	}

	tx := StockTransaction{
		BatchID:   batchID,
		Reason:    policy.ReasonTag,
		AppliedAt: l.now(),
		Changes:   make([]SKUChange, 0, len(deltas)),
	}
	for i, d := range deltas {
		after := current[d.SKU] + d.Delta
		if err := l.store.SetQuantity(ctx, d.SKU, after); err != nil {
			return StockTransaction{}, &StockWriteError{
				SKU:        d.SKU,
				Err:        err,
				Unreverted: l.revert(ctx, deltas[:i], current),
			}
		}
		tx.Changes = append(tx.Changes, SKUChange{SKU: d.SKU, Before: current[d.SKU], After: after})
	}

	l.applied[batchID] = tx
	return tx, nil
}

// Available returns the current quantities for the given SKUs without
// mutating anything. Missing SKUs report zero.
func (l *Ledger) Available(ctx context.Context, skus []string) (map[string]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Quantities(ctx, skus)
}

// revert restores the original quantities for deltas already written in
// a failed batch and returns the SKUs whose restore also failed. The
// restores run detached from the batch context: when cancellation is
// what failed the write, the restore writes must still go through or
// the batch stays half applied.
func (l *Ledger) revert(ctx context.Context, written []StockDelta, before map[string]int) []string {
	ctx = context.WithoutCancel(ctx)
	var failed []string
	for i := len(written) - 1; i >= 0; i-- {
		sku := written[i].SKU
		if err := l.store.SetQuantity(ctx, sku, before[sku]); err != nil {
			failed = append(failed, sku)
		}
	}
	return failed
}
