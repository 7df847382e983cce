package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a partner or invoice does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicate is returned when appending a transaction ID that already exists.
	ErrDuplicate = errors.New("store: duplicate id")

	// ErrContention is returned when a partner lock could not be taken in time.
	ErrContention = errors.New("store: lock contention")

	// ErrUnavailable matches every *UnavailableError via errors.Is.
	ErrUnavailable = errors.New("store: unavailable")
)

// UnavailableError reports that persistence could not serve a request.
// It is always retryable and must never be read as a zero balance.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrUnavailable) match.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// Unavailable wraps err as an *UnavailableError for op.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UnavailableError{Op: op, Err: err}
}

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable reports whether the caller may retry the failed operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrContention) ||
		errors.Is(err, context.DeadlineExceeded)
}
