package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type failingStore struct {
	*MemoryStore
	failSKU string
	err     error
}

func (s *failingStore) SetQuantity(ctx context.Context, sku string, qty int) error {
	if sku == s.failSKU {
		return s.err
	}
	return s.MemoryStore.SetQuantity(ctx, sku, qty)
}

func TestLedger_ApplyDecrementsAllSKUs(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(map[string]int{"A": 10, "B": 5})
	l := NewLedger(store)

	tx, err := l.Apply(context.Background(), "batch-1", []StockDelta{
		{SKU: "A", Delta: -5},
		{SKU: "B", Delta: -3},
	}, Policy{ReasonTag: "sale"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if tx.BatchID != "batch-1" || tx.Reason != "sale" {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
	if len(tx.Changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(tx.Changes))
	}
	if tx.Changes[0] != (SKUChange{SKU: "A", Before: 10, After: 5}) {
		t.Fatalf("unexpected change for A: %+v", tx.Changes[0])
	}
	if tx.Changes[1] != (SKUChange{SKU: "B", Before: 5, After: 2}) {
		t.Fatalf("unexpected change for B: %+v", tx.Changes[1])
	}
	if store.Quantity("A") != 5 || store.Quantity("B") != 2 {
		t.Fatalf("unexpected quantities: %+v", store.Snapshot())
	}
}

func TestLedger_RejectsInsufficientStock_ListingEveryShortSKU(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(map[string]int{"A": 10, "B": 2})
	l := NewLedger(store)

	_, err := l.Apply(context.Background(), "batch-1", []StockDelta{
		{SKU: "A", Delta: -5},
		{SKU: "B", Delta: -3},
	}, Policy{})

	var insufficient *InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if len(insufficient.Short) != 1 {
		t.Fatalf("expected 1 short sku, got %+v", insufficient.Short)
	}
	short := insufficient.Short[0]
	if short.SKU != "B" || short.Available != 2 || short.Requested != 3 {
		t.Fatalf("unexpected short entry: %+v", short)
	}
	if store.Quantity("A") != 10 || store.Quantity("B") != 2 {
		t.Fatalf("stock mutated on rejected batch: %+v", store.Snapshot())
	}
}

func TestLedger_ReportsAllShortSKUs(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(map[string]int{"A": 1, "B": 1})
	l := NewLedger(store)

	_, err := l.Apply(context.Background(), "batch-1", []StockDelta{
		{SKU: "A", Delta: -2},
		{SKU: "B", Delta: -4},
	}, Policy{})

	var insufficient *InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	skus := insufficient.SKUs()
	if len(skus) != 2 || skus[0] != "A" || skus[1] != "B" {
		t.Fatalf("expected both short skus, got %v", skus)
	}
}

func TestLedger_RejectsDuplicateSKU(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(map[string]int{"A": 10})
	l := NewLedger(store)

	_, err := l.Apply(context.Background(), "batch-1", []StockDelta{
		{SKU: "A", Delta: -5},
		{SKU: "A", Delta: 2},
	}, Policy{})

	var dup *DuplicateSKUError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateSKUError, got %v", err)
	}
	if dup.SKU != "A" {
		t.Fatalf("unexpected sku: %s", dup.SKU)
	}
	if store.Quantity("A") != 10 {
		t.Fatalf("stock mutated on rejected batch")
	}
}

func TestLedger_RejectsEmptyBatchAndMissingBatchID(t *testing.T) {
	t.Parallel()

	l := NewLedger(NewMemoryStore(nil))

	if _, err := l.Apply(context.Background(), "batch-1", nil, Policy{}); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
	if _, err := l.Apply(context.Background(), "", []StockDelta{{SKU: "A", Delta: 1}}, Policy{}); !errors.Is(err, ErrMissingBatchID) {
		t.Fatalf("expected ErrMissingBatchID, got %v", err)
	}
}

func TestLedger_AllowNegativePolicy(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(map[string]int{"A": 2})
	l := NewLedger(store)

	tx, err := l.Apply(context.Background(), "batch-1", []StockDelta{
		{SKU: "A", Delta: -5},
	}, Policy{AllowNegative: true})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if tx.Changes[0].After != -3 {
		t.Fatalf("expected quantity -3, got %d", tx.Changes[0].After)
	}
	if store.Quantity("A") != -3 {
		t.Fatalf("unexpected quantity: %d", store.Quantity("A"))
	}
}

func TestLedger_ReplaySameBatchIDDoesNotDoubleApply(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(map[string]int{"A": 10})
	l := NewLedger(store)
	deltas := []StockDelta{{SKU: "A", Delta: -4}}

	first, err := l.Apply(context.Background(), "batch-1", deltas, Policy{})
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	second, err := l.Apply(context.Background(), "batch-1", deltas, Policy{})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if store.Quantity("A") != 6 {
		t.Fatalf("replay double-applied: quantity %d", store.Quantity("A"))
	}
	if second.Changes[0] != first.Changes[0] || !second.AppliedAt.Equal(first.AppliedAt) {
		t.Fatalf("replay returned a different transaction: %+v vs %+v", second, first)
	}
}

func TestLedger_WriteFailureRevertsAppliedDeltas(t *testing.T) {
	t.Parallel()

	store := &failingStore{
		MemoryStore: NewMemoryStore(map[string]int{"A": 10, "B": 5}),
		failSKU:     "B",
		err:         errors.New("disk full"),
	}
	l := NewLedger(store)

	_, err := l.Apply(context.Background(), "batch-1", []StockDelta{
		{SKU: "A", Delta: -5},
		{SKU: "B", Delta: -3},
	}, Policy{})

	var write *StockWriteError
	if !errors.As(err, &write) {
		t.Fatalf("expected StockWriteError, got %v", err)
	}
	if write.SKU != "B" {
		t.Fatalf("unexpected failing sku: %s", write.SKU)
	}
	if store.Quantity("A") != 10 || store.Quantity("B") != 5 {
		t.Fatalf("partial batch visible after revert: %+v", store.Snapshot())
	}
}

// cancellingStore cancels the batch context after its first successful
// write, so the next write in the batch fails with context.Canceled.
type cancellingStore struct {
	*MemoryStore
	cancel context.CancelFunc
	writes int
}

func (s *cancellingStore) SetQuantity(ctx context.Context, sku string, qty int) error {
	if err := s.MemoryStore.SetQuantity(ctx, sku, qty); err != nil {
		return err
	}
	s.writes++
	if s.writes == 1 {
		s.cancel()
	}
	return nil
}

func TestLedger_CancelledContextMidBatchStillReverts(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	store := &cancellingStore{
		MemoryStore: NewMemoryStore(map[string]int{"A": 10, "B": 10}),
		cancel:      cancel,
	}
	l := NewLedger(store)

	_, err := l.Apply(ctx, "batch-1", []StockDelta{
		{SKU: "A", Delta: -5},
		{SKU: "B", Delta: -5},
	}, Policy{})

	var write *StockWriteError
	if !errors.As(err, &write) {
		t.Fatalf("expected StockWriteError, got %v", err)
	}
	if write.SKU != "B" {
		t.Fatalf("unexpected failing sku: %s", write.SKU)
	}
	if len(write.Unreverted) != 0 {
		t.Fatalf("restore writes failed for: %v", write.Unreverted)
	}
	if store.Quantity("A") != 10 || store.Quantity("B") != 10 {
		t.Fatalf("partial batch visible after cancellation: %+v", store.Snapshot())
	}

	tx, err := l.Apply(context.Background(), "batch-1", []StockDelta{
		{SKU: "A", Delta: -5},
		{SKU: "B", Delta: -5},
	}, Policy{})
	if err != nil {
		t.Fatalf("retry after cancellation: %v", err)
	}
	if store.Quantity("A") != 5 || store.Quantity("B") != 5 || len(tx.Changes) != 2 {
		t.Fatalf("retry did not apply cleanly: %+v", store.Snapshot())
	}
}

func TestLedger_ConcurrentBatchesKeepStockConsistent(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(map[string]int{"A": 100})
	l := NewLedger(store)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Apply(context.Background(), batchID(i), []StockDelta{
				{SKU: "A", Delta: -5},
			}, Policy{})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	if store.Quantity("A") != 0 {
		t.Fatalf("expected quantity 0 after 20 decrements of 5, got %d", store.Quantity("A"))
	}
}

func batchID(i int) string {
	return "batch-" + string(rune('a'+i))
}
