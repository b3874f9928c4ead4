package task

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store errors
var (
	// ErrNoTask is returned by Lease when no task of the requested kind
	// is available.
	ErrNoTask = errors.New("no task available")

	// ErrLeaseLost is returned by Ack and Nack when the caller no longer
	// holds the task's lease, typically because the lease expired and
	// another worker took it over.
	ErrLeaseLost = errors.New("task lease lost")
)

// Store defines the persistence contract for the durable task queue.
//
// Leasing rather than dequeueing is what makes the queue crash-safe: a
// leased task whose lease expires becomes visible to Lease again, so
// work stranded by a dead worker is retried without any recovery pass.
type Store interface {
	// Enqueue persists a new queued task. If a queued or leased task
	// already exists for the same kind and target, Enqueue is a silent
	// no-op; terminal tasks never block a new enqueue.
	Enqueue(ctx context.Context, t *Task) error

	// Lease atomically claims the highest-priority available task of the
	// given kind for the named worker, marking it leased until now+leaseFor.
	// Queued tasks and leased tasks with expired leases are both eligible.
	// Returns ErrNoTask when nothing is available.
	Lease(ctx context.Context, kind Kind, workerID string, leaseFor time.Duration) (*Task, error)

	// Ack marks a leased task done. Returns ErrLeaseLost if the worker
	// no longer holds the lease.
	Ack(ctx context.Context, taskID uuid.UUID, workerID string) error

	// Nack records a failed attempt. If the task has attempts remaining
	// it returns to queued for another lease; otherwise it is marked
	// failed and Nack reports terminal=true so the caller can propagate
	// the error onto the target entity. Returns ErrLeaseLost if the
	// worker no longer holds the lease.
	Nack(ctx context.Context, taskID uuid.UUID, workerID string, reason string, maxAttempts int) (terminal bool, err error)

	// CountActive returns the number of queued or leased tasks of the
	// given kind, used for monitoring.
	CountActive(ctx context.Context, kind Kind) (int, error)

	// ReapExpired returns leased tasks whose lease has expired back to
	// queued, clearing the lease, and reports how many were reclaimed.
	// Lease also treats expired leases as eligible; the reaper exists so
	// stranded tasks re-enter the queue promptly even when no worker of
	// that kind is polling, and so reclamation is visible in metrics.
	ReapExpired(ctx context.Context) (int64, error)

	// PurgeTerminal deletes done and failed tasks older than the given
	// retention window and returns how many were removed.
	PurgeTerminal(ctx context.Context, olderThan time.Duration) (int64, error)
}
