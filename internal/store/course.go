package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/coursegen-api/internal/domain"
)

// CourseStore defines the persistence contract for courses and the
// generation-status writes of the pipeline.
//
// Every status mutation is transition-guarded and atomic: the new status
// and its sibling payload/error field are written together, and a write
// that would regress a terminal entity (e.g. re-completing an already
// ready lesson) fails with ErrStaleWrite. Workers rely on that guard for
// idempotent convergence — a duplicate lease either observes the ready
// entity and no-ops, or has its late write rejected here.
type CourseStore interface {
	// Create persists a new course with a pending outline.
	Create(ctx context.Context, course *domain.Course) error

	// GetByID retrieves a course with its full outline document.
	// Returns ErrCourseNotFound if no such course exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Course, error)

	// MarkOutlineGenerating transitions the outline status to generating.
	// Returns ErrStaleWrite if the outline is already terminal.
	MarkOutlineGenerating(ctx context.Context, courseID uuid.UUID) error

	// SaveOutline writes {outlineStatus: ready, outline} atomically.
	// Lessons in the outline start with pending block status.
	// Returns ErrStaleWrite if the outline is already ready.
	SaveOutline(ctx context.Context, courseID uuid.UUID, outline *domain.Outline) error

	// FailOutline writes {outlineStatus: failed, outlineError} atomically.
	// Returns ErrStaleWrite if the outline is already ready.
	FailOutline(ctx context.Context, courseID uuid.UUID, errMsg string) error

	// ResetOutline is the explicit regeneration path: ready|failed → pending,
	// clearing the stored error. Returns domain.ErrInvalidTransition when the
	// outline is pending or generating.
	ResetOutline(ctx context.Context, courseID uuid.UUID) error

	// MarkLessonBlocksGenerating transitions a lesson's block status to
	// generating. Returns ErrLessonNotFound or ErrStaleWrite.
	MarkLessonBlocksGenerating(ctx context.Context, courseID uuid.UUID, lessonID string) error

	// SaveLessonBlocks writes {blocksStatus: ready, blocks} atomically. All
	// blocks must be pending skeletons. Returns ErrStaleWrite if the lesson's
	// blocks are already ready.
	SaveLessonBlocks(ctx context.Context, courseID uuid.UUID, lessonID string, blocks []domain.Block) error

	// FailLessonBlocks writes {blocksStatus: failed, blocksError} atomically.
	FailLessonBlocks(ctx context.Context, courseID uuid.UUID, lessonID string, errMsg string) error

	// MarkBlockContentGenerating transitions a block's content status to
	// generating.
	MarkBlockContentGenerating(ctx context.Context, courseID uuid.UUID, lessonID, blockID string) error

	// SaveBlockContent writes {contentStatus: ready, content} atomically.
	// Returns ErrStaleWrite if the block content is already ready.
	SaveBlockContent(ctx context.Context, courseID uuid.UUID, lessonID, blockID string, content *domain.BlockContent) error

	// FailBlockContent writes {contentStatus: error, contentError} atomically.
	FailBlockContent(ctx context.Context, courseID uuid.UUID, lessonID, blockID string, errMsg string) error

	// ResetBlockContent is the explicit per-block regeneration path:
	// ready|error → pending, clearing content and error together.
	ResetBlockContent(ctx context.Context, courseID uuid.UUID, lessonID, blockID string) error

	// WithTx returns a CourseStore bound to the provided transaction,
	// allowing multiple operations to commit atomically.
	WithTx(tx *sql.Tx) CourseStore
}
