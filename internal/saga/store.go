package saga

import (
	"context"
	"errors"
	"sync"
)

// ErrIdempotencyConflict signals a transaction id reused with a
// different order payload.
var ErrIdempotencyConflict = errors.New("transaction id reused with different payload")

// Record is a stored saga execution.
type Record struct {
	TransactionID string
	OrderID       string
	Amount        float64
	State         State
	Result        *Result
}

// Step is one recorded stage event within an execution.
type Step struct {
	Name   string
	Status string
	Detail string
}

// Store persists saga executions and their step history. Begin carries
// the idempotency contract: the same transaction id always maps to the
// same execution, and a terminal execution keeps its result so re-runs
// can return it without redoing side effects.
type Store interface {
	Begin(ctx context.Context, txID, orderID string, amount float64) (Record, bool, error)
	UpdateState(ctx context.Context, txID string, state State) error
	RecordStep(ctx context.Context, txID, step, status, detail string) error
	Complete(ctx context.Context, txID string, result Result) error
}

type memExecution struct {
	record Record
	steps  []Step
}

// MemoryStore keeps saga executions in memory.
type MemoryStore struct {
	mu         sync.Mutex
	executions map[string]*memExecution
}

// NewMemoryStore constructs an empty in-memory saga store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{executions: make(map[string]*memExecution)}
}

func (s *MemoryStore) Begin(ctx context.Context, txID, orderID string, amount float64) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.executions[txID]; ok {
		if existing.record.OrderID != orderID || existing.record.Amount != amount {
			return Record{}, false, ErrIdempotencyConflict
		}
		return existing.record, false, nil
	}

	exec := &memExecution{record: Record{
		TransactionID: txID,
		OrderID:       orderID,
		Amount:        amount,
		State:         StateValidating,
	}}
	s.executions[txID] = exec
	return exec.record, true, nil
}

func (s *MemoryStore) UpdateState(ctx context.Context, txID string, state State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[txID]
	if !ok {
		return errors.New("unknown transaction id: " + txID)
	}
	exec.record.State = state
	return nil
}

func (s *MemoryStore) RecordStep(ctx context.Context, txID, step, status, detail string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[txID]
	if !ok {
		return errors.New("unknown transaction id: " + txID)
	}
	exec.steps = append(exec.steps, Step{Name: step, Status: status, Detail: detail})
	return nil
}

func (s *MemoryStore) Complete(ctx context.Context, txID string, result Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[txID]
	if !ok {
		return errors.New("unknown transaction id: " + txID)
	}
	stored := result
	exec.record.Result = &stored
	if result.Success {
		exec.record.State = StateCompleted
	} else {
		exec.record.State = StateFailed
	}
	return nil
}

// Steps returns the recorded step history for a transaction (for
// testing/inspection).
func (s *MemoryStore) Steps(txID string) []Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[txID]
	if !ok {
		return nil
	}
	return append([]Step(nil), exec.steps...)
}

// RecordFor returns the stored record for a transaction (for
// testing/inspection).
func (s *MemoryStore) RecordFor(txID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[txID]
	if !ok {
		return Record{}, false
	}
	return exec.record, true
}
