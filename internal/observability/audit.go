package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"packflow/internal/ledger"
	"packflow/internal/payments"
)

// AuditEntry is one line in the audit trail.
type AuditEntry struct {
	Kind       string             `json:"kind"`
	At         time.Time          `json:"at"`
	BatchID    string             `json:"batchId,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	Changes    []ledger.SKUChange `json:"changes,omitempty"`
	OrderID    string             `json:"orderId,omitempty"`
	Attempt    int                `json:"attempt,omitempty"`
	Outcome    string             `json:"outcome,omitempty"`
	Amount     float64            `json:"amount,omitempty"`
	Currency   string             `json:"currency,omitempty"`
	Reference  string             `json:"reference,omitempty"`
	FraudScore int                `json:"fraudScore,omitempty"`
}

// FileAuditLog appends audit entries to a file as JSON lines. Each
// write is synced before returning.
type FileAuditLog struct {
	mu sync.Mutex
	f  *os.File
}

// NewFileAuditLog opens (or creates) the audit file for appending.
func NewFileAuditLog(path string) (*FileAuditLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileAuditLog{f: f}, nil
}

// RecordStockTransaction appends an applied stock batch to the trail.
func (l *FileAuditLog) RecordStockTransaction(ctx context.Context, tx ledger.StockTransaction) error {
	return l.write(ctx, AuditEntry{
		Kind:    "stock_transaction",
		At:      tx.AppliedAt,
		BatchID: tx.BatchID,
		Reason:  tx.Reason,
		Changes: tx.Changes,
	})
}

// RecordPaymentAttempt appends one payment attempt to the trail.
func (l *FileAuditLog) RecordPaymentAttempt(ctx context.Context, orderID string, attempt payments.Attempt) error {
	return l.write(ctx, AuditEntry{
		Kind:       "payment_attempt",
		At:         attempt.At,
		OrderID:    orderID,
		Attempt:    attempt.Number,
		Outcome:    attempt.Outcome,
		Amount:     attempt.Amount,
		Currency:   attempt.Currency,
		Reference:  attempt.Reference,
		FraudScore: attempt.FraudScore,
	})
}

func (l *FileAuditLog) write(ctx context.Context, entry AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	n, err := l.f.Write(append(data, '\n'))
	if err != nil {
		return err
	}
	if n != len(data)+1 {
		return fmt.Errorf("partial write: wrote %d of %d bytes", n, len(data)+1)
	}

	return l.f.Sync()
}

// Close releases the underlying file handle.
func (l *FileAuditLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
