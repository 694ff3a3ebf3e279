package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a branch, event or packet id does not resolve
	ErrNotFound = errors.New("not found")

	// ErrInvalidOperation is returned when a request is well-formed but not
	// allowed in the current state, e.g. rescheduling an executed event
	ErrInvalidOperation = errors.New("invalid operation")
)

// PersistenceError wraps a failure reported by the backing store.
// It is never retried by the engine.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Persistence wraps err as a PersistenceError unless it is nil or already
// carries one of the domain sentinels.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidOperation) {
		return err
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsPersistence reports whether err originated in the store
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
