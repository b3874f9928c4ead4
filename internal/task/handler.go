package task

import (
	"context"

	"github.com/google/uuid"

	"github.com/phrazzld/coursegen-api/internal/domain"
)

// Handler processes tasks of one kind.
//
// Handle must be idempotent: a task may be processed more than once when
// a lease expires mid-flight, and the second processing must converge on
// the same result. Handlers achieve this by recomputing from current
// entity state (a target that is already ready is a successful no-op)
// and by treating store.ErrStaleWrite as convergence rather than
// failure.
//
// A nil return from Handle acknowledges the task, including the cases
// where the handler decided nothing needed doing or wrote a terminal
// failure onto the entity itself. A non-nil return means the attempt
// failed retryably; the runner records it and the task is retried until
// its attempts are exhausted, at which point the runner calls Fail so
// the final error lands on the target entity.
type Handler interface {
	// Kind returns the task kind this handler processes.
	Kind() Kind

	// Handle performs one processing attempt.
	Handle(ctx context.Context, t *Task) error

	// Fail propagates a permanently failed task's error onto its target
	// entity so clients can observe the failure.
	Fail(ctx context.Context, t *Task, reason string) error
}

// Generator is the slice of the generation service the handlers need.
type Generator interface {
	GenerateOutline(ctx context.Context, course *domain.Course) (*domain.Outline, error)
	GenerateLessonBlocks(ctx context.Context, course *domain.Course, section *domain.Section, lesson *domain.Lesson) ([]domain.Block, error)
	GenerateBlockContent(ctx context.Context, course *domain.Course, lesson *domain.Lesson, block *domain.Block) (*domain.BlockContent, error)
}

// BlocksReadyNotifier receives the completion signal for a lesson whose
// block skeleton just became ready. The scheduler implements it to
// enqueue eager content generation.
type BlocksReadyNotifier interface {
	OnBlocksReady(ctx context.Context, courseID uuid.UUID, lessonID string) error
}

// NoopNotifier discards completion signals. Used where no cascade is
// wanted, such as tests.
type NoopNotifier struct{}

// OnBlocksReady implements BlocksReadyNotifier.
func (NoopNotifier) OnBlocksReady(context.Context, uuid.UUID, string) error { return nil }
