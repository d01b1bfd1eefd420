package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyBatch signals a batch with no deltas.
var ErrEmptyBatch = errors.New("stock batch is empty")

// ErrMissingBatchID signals a batch submitted without an identifier.
var ErrMissingBatchID = errors.New("batch id required")

// ErrMissingSKU signals a delta without a SKU.
var ErrMissingSKU = errors.New("delta sku required")

// DuplicateSKUError signals a SKU appearing more than once in a batch.
type DuplicateSKUError struct {
	SKU string
}

func (e *DuplicateSKUError) Error() string {
	return fmt.Sprintf("duplicate sku %q in batch", e.SKU)
}

// ShortSKU describes one SKU that cannot absorb its requested decrement.
type ShortSKU struct {
	SKU       string
	Available int
	Requested int
}

// InsufficientStockError reports every SKU in a batch whose quantity
// would go negative, not just the first.
type InsufficientStockError struct {
	Short []ShortSKU
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, len(e.Short))
	for i, s := range e.Short {
		parts[i] = fmt.Sprintf("%s (%d available, %d requested)", s.SKU, s.Available, s.Requested)
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

// SKUs returns the offending SKUs in batch order.
func (e *InsufficientStockError) SKUs() []string {
	skus := make([]string, len(e.Short))
	for i, s := range e.Short {
		skus[i] = s.SKU
	}
	return skus
}

// StockWriteError signals a store-level write failure mid-batch. The
// ledger reverts deltas already applied before returning it; SKUs whose
// restore write also failed are listed in Unreverted.
type StockWriteError struct {
	SKU        string
	Err        error
	Unreverted []string
}

func (e *StockWriteError) Error() string {
	msg := fmt.Sprintf("write sku %q: %v", e.SKU, e.Err)
	if len(e.Unreverted) > 0 {
		msg += " (unreverted: " + strings.Join(e.Unreverted, ", ") + ")"
	}
	return msg
}

func (e *StockWriteError) Unwrap() error {
	return e.Err
}
