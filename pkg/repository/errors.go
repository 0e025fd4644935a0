package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgConnectionClass      = "08"
)

// ErrorMap translates database errors into a domain's own errors. A nil
// target leaves that class of error unchanged.
type ErrorMap struct {
	NotFound    error
	Duplicate   error
	Unavailable error
}

// Map returns the domain error for err. No rows maps to NotFound, unique
// violations to Duplicate, and connection loss, serialization failures, and
// deadlocks to Unavailable. Anything else is returned unchanged.
func (m ErrorMap) Map(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) && m.NotFound != nil {
		return m.NotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		if pgconn.SafeToRetry(err) && m.Unavailable != nil {
			return fmt.Errorf("%w: %v", m.Unavailable, err)
		}
		return err
	}

	switch {
	case pgErr.Code == pgUniqueViolation && m.Duplicate != nil:
		return m.Duplicate
	case (pgErr.Code == pgSerializationFailure ||
		pgErr.Code == pgDeadlockDetected ||
		strings.HasPrefix(pgErr.Code, pgConnectionClass)) && m.Unavailable != nil:
		return fmt.Errorf("%w: %s", m.Unavailable, pgErr.Message)
	}
	return err
}
