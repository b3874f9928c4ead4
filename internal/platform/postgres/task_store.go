package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/coursegen-api/internal/platform/logger"
	"github.com/phrazzld/coursegen-api/internal/store"
	"github.com/phrazzld/coursegen-api/internal/task"
)

// PostgresTaskStore implements the task.Store interface using
// PostgreSQL.
type PostgresTaskStore struct {
	db store.DBTX
}

// NewPostgresTaskStore creates a new PostgresTaskStore.
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	return &PostgresTaskStore{db: db}
}

// Enqueue persists a new queued task. The partial unique index on
// (kind, course_id, lesson_id, block_id) over active states makes a
// concurrent duplicate a conflict, which is silently dropped.
func (s *PostgresTaskStore) Enqueue(ctx context.Context, t *task.Task) error {
	log := logger.FromContext(ctx)

	if err := t.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO generation_tasks
			(id, kind, course_id, lesson_id, block_id, priority, state, attempts, last_error, lease_owner, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, '', '', $8, $9)
		ON CONFLICT (kind, course_id, lesson_id, block_id) WHERE state IN ('queued', 'leased')
		DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		t.ID,
		t.Kind,
		t.CourseID,
		t.LessonID,
		t.BlockID,
		t.Priority,
		task.StateQueued,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to enqueue task",
			"kind", t.Kind,
			"course_id", t.CourseID,
			"error", err)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	return nil
}

// Lease atomically claims the highest-priority available task of the
// given kind. SKIP LOCKED keeps concurrent workers from blocking on each
// other, and expired leases are eligible so stranded work self-heals.
func (s *PostgresTaskStore) Lease(ctx context.Context, kind task.Kind, workerID string, leaseFor time.Duration) (*task.Task, error) {
	now := time.Now().UTC()

	query := `
		UPDATE generation_tasks
		SET state = $1, lease_owner = $2, lease_expires_at = $3, updated_at = $4
		WHERE id = (
			SELECT id
			FROM generation_tasks
			WHERE kind = $5
			  AND (state = 'queued' OR (state = 'leased' AND lease_expires_at <= $4))
			ORDER BY priority ASC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, kind, course_id, lesson_id, block_id, priority, state, attempts, last_error, lease_owner, lease_expires_at, created_at, updated_at
	`

	row := s.db.QueryRowContext(ctx, query,
		task.StateLeased,
		workerID,
		now.Add(leaseFor),
		now,
		kind,
	)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, task.ErrNoTask
		}
		return nil, fmt.Errorf("failed to lease task: %w", err)
	}

	return t, nil
}

// Ack marks a leased task done, provided the worker still holds its
// lease.
func (s *PostgresTaskStore) Ack(ctx context.Context, taskID uuid.UUID, workerID string) error {
	query := `
		UPDATE generation_tasks
		SET state = $1, lease_owner = '', lease_expires_at = NULL, updated_at = $2
		WHERE id = $3 AND state = $4 AND lease_owner = $5
	`

	result, err := s.db.ExecContext(ctx, query,
		task.StateDone,
		time.Now().UTC(),
		taskID,
		task.StateLeased,
		workerID,
	)
	if err != nil {
		return fmt.Errorf("failed to ack task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return task.ErrLeaseLost
	}

	return nil
}

// Nack records a failed attempt and either requeues the task or marks
// it failed when its attempts are exhausted.
func (s *PostgresTaskStore) Nack(ctx context.Context, taskID uuid.UUID, workerID string, reason string, maxAttempts int) (bool, error) {
	query := `
		UPDATE generation_tasks
		SET attempts = attempts + 1,
		    last_error = $1,
		    state = CASE WHEN attempts + 1 >= $2 THEN 'failed' ELSE 'queued' END,
		    lease_owner = '',
		    lease_expires_at = NULL,
		    updated_at = $3
		WHERE id = $4 AND state = $5 AND lease_owner = $6
		RETURNING state
	`

	var state task.State
	err := s.db.QueryRowContext(ctx, query,
		reason,
		maxAttempts,
		time.Now().UTC(),
		taskID,
		task.StateLeased,
		workerID,
	).Scan(&state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, task.ErrLeaseLost
		}
		return false, fmt.Errorf("failed to nack task: %w", err)
	}

	return state == task.StateFailed, nil
}

// CountActive returns the number of queued or leased tasks of the kind.
func (s *PostgresTaskStore) CountActive(ctx context.Context, kind task.Kind) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM generation_tasks
		WHERE kind = $1 AND state IN ('queued', 'leased')
	`

	var count int
	if err := s.db.QueryRowContext(ctx, query, kind).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active tasks: %w", err)
	}
	return count, nil
}

// ReapExpired returns expired leases to the queue.
func (s *PostgresTaskStore) ReapExpired(ctx context.Context) (int64, error) {
	query := `
		UPDATE generation_tasks
		SET state = 'queued', lease_owner = '', lease_expires_at = NULL, updated_at = $1
		WHERE state = 'leased' AND lease_expires_at <= $1
	`

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to reap expired leases: %w", err)
	}

	reaped, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return reaped, nil
}

// PurgeTerminal deletes done and failed tasks past the retention window.
func (s *PostgresTaskStore) PurgeTerminal(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM generation_tasks
		WHERE state IN ('done', 'failed') AND updated_at < $1
	`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to purge terminal tasks: %w", err)
	}

	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return purged, nil
}

// scanTask reads one task row.
func scanTask(row *sql.Row) (*task.Task, error) {
	var t task.Task
	var leaseExpires sql.NullTime

	err := row.Scan(
		&t.ID,
		&t.Kind,
		&t.CourseID,
		&t.LessonID,
		&t.BlockID,
		&t.Priority,
		&t.State,
		&t.Attempts,
		&t.LastError,
		&t.LeaseOwner,
		&leaseExpires,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if leaseExpires.Valid {
		expires := leaseExpires.Time
		t.LeaseExpiresAt = &expires
	}

	return &t, nil
}

var _ task.Store = (*PostgresTaskStore)(nil)
