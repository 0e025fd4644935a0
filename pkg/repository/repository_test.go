package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JaimeStill/canopy/pkg/repository"
)

var (
	errNotFound    = errors.New("not found")
	errDuplicate   = errors.New("duplicate")
	errUnavailable = errors.New("unavailable")
)

var ledgerErrors = repository.ErrorMap{
	NotFound:    errNotFound,
	Duplicate:   errDuplicate,
	Unavailable: errUnavailable,
}

func TestErrorMap(t *testing.T) {
	other := errors.New("bad input")
	foreignKey := &pgconn.PgError{Code: "23503"}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", sql.ErrNoRows, errNotFound},
		{"wrapped no rows", fmt.Errorf("find entry: %w", sql.ErrNoRows), errNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, errDuplicate},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, errUnavailable},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, errUnavailable},
		{"connection failure", fmt.Errorf("item 2: %w", &pgconn.PgError{Code: "08006"}), errUnavailable},
		{"other pg error", foreignKey, foreignKey},
		{"passthrough", other, other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ledgerErrors.Map(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("Map(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorMapNilTargetsPassThrough(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505"}
	if got := (repository.ErrorMap{}).Map(dup); got != dup {
		t.Errorf("Map = %v, want unchanged", got)
	}
}

type affected int64

func (a affected) LastInsertId() (int64, error) { return 0, nil }
func (a affected) RowsAffected() (int64, error) { return int64(a), nil }

// recorder is an Executor that reports rows[i] affected rows for the ith
// statement.
type recorder struct {
	rows []int64
	args [][]any
}

func (r *recorder) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	n := r.rows[len(r.args)]
	r.args = append(r.args, args)
	return affected(n), nil
}

type feature struct {
	key    string
	status int
}

func featureArgs(f feature) []any { return []any{f.key, f.status} }

func TestExecEach(t *testing.T) {
	features := []feature{{"cpt-1", 2}, {"cpt-2", 4}, {"cpt-3", 4}}

	t.Run("all applied", func(t *testing.T) {
		rec := &recorder{rows: []int64{1, 1, 1}}
		if err := repository.ExecEach(context.Background(), rec, "UPSERT", features, featureArgs); err != nil {
			t.Fatal(err)
		}
		if len(rec.args) != 3 || rec.args[1][0] != "cpt-2" || rec.args[1][1] != 4 {
			t.Errorf("args = %v", rec.args)
		}
	})

	t.Run("stops at first missing row", func(t *testing.T) {
		rec := &recorder{rows: []int64{1, 0, 1}}
		err := repository.ExecEach(context.Background(), rec, "UPSERT", features, featureArgs)
		if !errors.Is(err, sql.ErrNoRows) {
			t.Fatalf("expected sql.ErrNoRows, got %v", err)
		}
		if len(rec.args) != 2 {
			t.Errorf("statements run = %d, want 2", len(rec.args))
		}
	})
}

type intRow int

func (r intRow) Scan(dest ...any) error {
	*dest[0].(*int) = int(r)
	return nil
}

func TestCount(t *testing.T) {
	n, err := repository.Count(intRow(42))
	if err != nil || n != 42 {
		t.Errorf("Count = %d, %v", n, err)
	}
}
