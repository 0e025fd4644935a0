package database

import (
	"errors"
	"fmt"
)

// ErrNotReady marks a failed readiness check against the ledger database.
var ErrNotReady = errors.New("database not ready")

// NotReadyError names the server a readiness check could not reach.
type NotReadyError struct {
	Addr string
	Err  error
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%v at %s: %v", ErrNotReady, e.Addr, e.Err)
}

func (e *NotReadyError) Unwrap() []error {
	return []error{ErrNotReady, e.Err}
}
