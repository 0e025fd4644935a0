// Package repository holds the database/sql helpers the publish ledger runs
// its reads and batched writes through.
package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// Querier is implemented by *sql.DB, *sql.Tx, and *sql.Conn.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Executor is implemented by *sql.DB, *sql.Tx, and *sql.Conn.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanFunc reads one row into a T.
type ScanFunc[T any] func(Scanner) (T, error)

// WithTx runs fn in a transaction, committing when it returns nil and
// rolling back otherwise.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// QueryOne scans the single row query returns.
func QueryOne[T any](ctx context.Context, q Querier, query string, args []any, scan ScanFunc[T]) (T, error) {
	return scan(q.QueryRowContext(ctx, query, args...))
}

// QueryMany scans every row query returns. No rows yields an empty slice.
func QueryMany[T any](ctx context.Context, q Querier, query string, args []any, scan ScanFunc[T]) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	return results, rows.Err()
}

// ExecEach runs statement once per item with the arguments args derives from
// it. Each run must affect exactly one row; the first failure stops the
// batch and names the item's index.
func ExecEach[T any](ctx context.Context, e Executor, statement string, items []T, args func(T) []any) error {
	for i, item := range items {
		result, err := e.ExecContext(ctx, statement, args(item)...)
		if err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		if n == 0 {
			return fmt.Errorf("item %d: %w", i, sql.ErrNoRows)
		}
	}
	return nil
}

// Count scans a single integer column, as returned by COUNT(*).
func Count(s Scanner) (int, error) {
	var n int
	err := s.Scan(&n)
	return n, err
}
