package sagadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"packflow/internal/saga"
)

// PostgresStore persists saga executions and step history in Postgres.
// It implements saga.Store: the transaction id is the idempotency key,
// and terminal results are kept as JSON so re-runs can return them.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a store backed by Postgres.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresStoreWithSchema initializes the schema then returns the store.
func NewPostgresStoreWithSchema(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	store := NewPostgresStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates saga tables if they do not exist.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS saga_executions (
			transaction_id TEXT PRIMARY KEY,
			order_id TEXT UNIQUE NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			state TEXT NOT NULL,
			result JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS saga_steps (
			id BIGSERIAL PRIMARY KEY,
			transaction_id TEXT NOT NULL,
			step TEXT NOT NULL,
			status TEXT NOT NULL,
			detail TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			FOREIGN KEY (transaction_id) REFERENCES saga_executions(transaction_id) ON DELETE CASCADE
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

// Begin inserts a new execution or returns the existing one for the
// transaction id.
func (s *PostgresStore) Begin(ctx context.Context, txID, orderID string, amount float64) (saga.Record, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO saga_executions (transaction_id, order_id, amount, state)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (transaction_id) DO NOTHING`,
		txID, orderID, amount, saga.StateValidating,
	)
	if err != nil {
		return saga.Record{}, false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return saga.Record{}, false, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT order_id, amount, state, result
		FROM saga_executions
		WHERE transaction_id = $1`,
		txID,
	)

	record := saga.Record{TransactionID: txID}
	var state string
	var result []byte
	if err := row.Scan(&record.OrderID, &record.Amount, &state, &result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return saga.Record{}, false, fmt.Errorf("saga execution not found after insert")
		}
		return saga.Record{}, false, err
	}
	record.State = saga.State(state)
	if len(result) > 0 {
		var stored saga.Result
		if err := json.Unmarshal(result, &stored); err != nil {
			return saga.Record{}, false, fmt.Errorf("decode stored result: %w", err)
		}
		record.Result = &stored
	}

	if record.OrderID != orderID || record.Amount != amount {
		return saga.Record{}, false, saga.ErrIdempotencyConflict
	}

	return record, affected == 1, nil
}

// UpdateState updates the execution's state and timestamp.
func (s *PostgresStore) UpdateState(ctx context.Context, txID string, state saga.State) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE saga_executions
		SET state = $2, updated_at = NOW()
		WHERE transaction_id = $1`,
		txID, state,
	)
	return err
}

// RecordStep appends a step row.
func (s *PostgresStore) RecordStep(ctx context.Context, txID, step, status, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO saga_steps (transaction_id, step, status, detail)
		VALUES ($1, $2, $3, $4)`,
		txID, step, status, detail,
	)
	return err
}

// Complete stores the terminal result and moves the execution to its
// terminal state.
func (s *PostgresStore) Complete(ctx context.Context, txID string, result saga.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	state := saga.StateFailed
	if result.Success {
		state = saga.StateCompleted
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE saga_executions
		SET state = $2, result = $3, updated_at = NOW()
		WHERE transaction_id = $1`,
		txID, state, payload,
	)
	return err
}
