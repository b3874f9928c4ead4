package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/coursegen-api/internal/generation"
	"github.com/phrazzld/coursegen-api/internal/redact"
	"github.com/phrazzld/coursegen-api/internal/store"
)

// BlocksHandler generates lesson block skeletons.
type BlocksHandler struct {
	courses   store.CourseStore
	generator Generator
	notifier  BlocksReadyNotifier
	logger    *slog.Logger
}

// NewBlocksHandler creates the handler for lesson skeleton tasks.
func NewBlocksHandler(
	courses store.CourseStore,
	generator Generator,
	notifier BlocksReadyNotifier,
	logger *slog.Logger,
) *BlocksHandler {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &BlocksHandler{
		courses:   courses,
		generator: generator,
		notifier:  notifier,
		logger:    logger.With("handler", "lesson_blocks"),
	}
}

// Kind implements Handler.
func (h *BlocksHandler) Kind() Kind { return KindLessonBlocks }

// Handle generates and saves the block skeleton for the task's lesson,
// then signals the scheduler so eager content generation can begin.
func (h *BlocksHandler) Handle(ctx context.Context, t *Task) error {
	course, err := h.courses.GetByID(ctx, t.CourseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.logger.WarnContext(ctx, "dropping skeleton task for missing course",
				"course_id", t.CourseID)
			return nil
		}
		return fmt.Errorf("failed to load course: %w", err)
	}

	lesson, section := course.FindLesson(t.LessonID)
	if lesson == nil {
		// The outline may have been regenerated since this task was
		// enqueued, removing the lesson.
		h.logger.WarnContext(ctx, "dropping skeleton task for missing lesson",
			"course_id", t.CourseID,
			"lesson_id", t.LessonID)
		return nil
	}

	if !lesson.BlocksStatus.CanStartGeneration() {
		h.logger.DebugContext(ctx, "lesson blocks not eligible for generation",
			"course_id", course.ID,
			"lesson_id", lesson.ID,
			"blocks_status", lesson.BlocksStatus)
		return nil
	}

	if err := h.courses.MarkLessonBlocksGenerating(ctx, course.ID, lesson.ID); err != nil {
		if errors.Is(err, store.ErrStaleWrite) || errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to mark lesson blocks generating: %w", err)
	}

	blocks, err := h.generator.GenerateLessonBlocks(ctx, course, section, lesson)
	if err != nil {
		if errors.Is(err, generation.ErrContentBlocked) {
			if failErr := h.courses.FailLessonBlocks(ctx, course.ID, lesson.ID, redact.Error(err)); failErr != nil &&
				!errors.Is(failErr, store.ErrStaleWrite) && !errors.Is(failErr, store.ErrNotFound) {
				return fmt.Errorf("failed to record blocked skeleton: %w", failErr)
			}
			return nil
		}
		return fmt.Errorf("lesson skeleton generation failed: %w", err)
	}

	if err := h.courses.SaveLessonBlocks(ctx, course.ID, lesson.ID, blocks); err != nil {
		if errors.Is(err, store.ErrStaleWrite) || errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to save lesson blocks: %w", err)
	}

	h.logger.InfoContext(ctx, "lesson blocks ready",
		"course_id", course.ID,
		"lesson_id", lesson.ID,
		"blocks", len(blocks))

	// The skeleton is already committed; a notification failure must not
	// fail the task, or a retry would observe ready and never notify.
	if err := h.notifier.OnBlocksReady(ctx, course.ID, lesson.ID); err != nil {
		h.logger.ErrorContext(ctx, "blocks-ready notification failed",
			"course_id", course.ID,
			"lesson_id", lesson.ID,
			"error", err)
	}

	return nil
}

// Fail implements Handler by marking the lesson's block skeleton failed.
func (h *BlocksHandler) Fail(ctx context.Context, t *Task, reason string) error {
	err := h.courses.FailLessonBlocks(ctx, t.CourseID, t.LessonID, reason)
	if err != nil && (errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrStaleWrite)) {
		return nil
	}
	return err
}

var _ Handler = (*BlocksHandler)(nil)
