package payments

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Gateway attempts a single charge. Implementations return ErrDeclined,
// ErrTimeout, or another error for unclassified failures.
type Gateway interface {
	Charge(ctx context.Context, req Request) (Receipt, error)
}

// NewApprovingGateway constructs an in-memory gateway that approves every
// charge and remembers it. Used as the wiring fallback when no real
// processor is configured.
func NewApprovingGateway() *ApprovingGateway {
	return &ApprovingGateway{receipts: make(map[string]Receipt)}
}

// ApprovingGateway approves all charges and tracks receipts in memory.
type ApprovingGateway struct {
	mu       sync.Mutex
	receipts map[string]Receipt
}

func (g *ApprovingGateway) Charge(ctx context.Context, req Request) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	receipt := Receipt{
		TransactionID: uuid.NewString(),
		Reference:     "appr-" + uuid.NewString()[:8],
		Amount:        req.Amount,
		Currency:      req.Currency,
		ChargedAt:     time.Now().UTC(),
	}

	g.mu.Lock()
	g.receipts[req.OrderID] = receipt
	g.mu.Unlock()
	return receipt, nil
}

// ReceiptFor returns the receipt recorded for an order (for testing/inspection).
func (g *ApprovingGateway) ReceiptFor(orderID string) (Receipt, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	receipt, ok := g.receipts[orderID]
	return receipt, ok
}
