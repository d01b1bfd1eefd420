package ledgerdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore persists per-SKU stock quantities in Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a stock store backed by Postgres.
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

// InitSchema creates the stock table if it does not exist.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS stock_levels (
			sku TEXT PRIMARY KEY,
			quantity BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// Quantities returns the current quantity for each requested SKU.
// SKUs without a row report zero.
func (s *PostgresStore) Quantities(ctx context.Context, skus []string) (map[string]int, error) {
	out := make(map[string]int, len(skus))
	for _, sku := range skus {
		row := s.db.QueryRowContext(ctx, `SELECT quantity FROM stock_levels WHERE sku = $1`, sku)
		var qty int
		switch err := row.Scan(&qty); {
		case err == nil:
			out[sku] = qty
		case errors.Is(err, sql.ErrNoRows):
			out[sku] = 0
		default:
			return nil, fmt.Errorf("read sku %q: %w", sku, err)
		}
	}
	return out, nil
}

// SetQuantity upserts the quantity for one SKU.
func (s *PostgresStore) SetQuantity(ctx context.Context, sku string, qty int) error {
	if sku == "" {
		return fmt.Errorf("sku required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_levels (sku, quantity) VALUES ($1, $2)
		ON CONFLICT (sku) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = NOW()`,
		sku, qty,
	)
	return err
}
