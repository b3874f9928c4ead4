package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// This is a generic version of the entity-specific not found errors.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity.
	ErrDuplicate = errors.New("entity already exists")

	// ErrStaleWrite is returned when a status write loses to a concurrent
	// writer: the entity has already moved past the state the write
	// assumed, e.g. a duplicate lease trying to re-complete a block that
	// is already ready. Callers generally treat it as convergence, not
	// failure.
	ErrStaleWrite = errors.New("stale write rejected")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// Entity-specific "not found" errors

	// ErrCourseNotFound indicates that the requested course does not exist.
	ErrCourseNotFound = fmt.Errorf("%w: course", ErrNotFound)

	// ErrLessonNotFound indicates that the course exists but has no lesson
	// with the requested ID.
	ErrLessonNotFound = fmt.Errorf("%w: lesson", ErrNotFound)

	// ErrBlockNotFound indicates that the lesson exists but has no block
	// with the requested ID.
	ErrBlockNotFound = fmt.Errorf("%w: block", ErrNotFound)

	// ErrTaskNotFound indicates that the requested queue task does not exist.
	ErrTaskNotFound = fmt.Errorf("%w: task", ErrNotFound)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
