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

// OutlineHandler generates course outlines.
type OutlineHandler struct {
	courses   store.CourseStore
	generator Generator
	logger    *slog.Logger
}

// NewOutlineHandler creates the handler for outline tasks.
func NewOutlineHandler(courses store.CourseStore, generator Generator, logger *slog.Logger) *OutlineHandler {
	return &OutlineHandler{
		courses:   courses,
		generator: generator,
		logger:    logger.With("handler", "outline"),
	}
}

// Kind implements Handler.
func (h *OutlineHandler) Kind() Kind { return KindOutline }

// Handle generates and saves the outline for the task's course.
func (h *OutlineHandler) Handle(ctx context.Context, t *Task) error {
	course, err := h.courses.GetByID(ctx, t.CourseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.logger.WarnContext(ctx, "dropping outline task for missing course",
				"course_id", t.CourseID)
			return nil
		}
		return fmt.Errorf("failed to load course: %w", err)
	}

	// A ready outline means a previous attempt (or a concurrent worker)
	// already finished; a failed one is waiting for an explicit
	// regeneration. Either way there is nothing to do.
	if !course.OutlineStatus.CanStartGeneration() {
		h.logger.DebugContext(ctx, "outline not eligible for generation",
			"course_id", course.ID,
			"outline_status", course.OutlineStatus)
		return nil
	}

	if err := h.courses.MarkOutlineGenerating(ctx, course.ID); err != nil {
		if errors.Is(err, store.ErrStaleWrite) {
			return nil
		}
		return fmt.Errorf("failed to mark outline generating: %w", err)
	}

	outline, err := h.generator.GenerateOutline(ctx, course)
	if err != nil {
		if errors.Is(err, generation.ErrContentBlocked) {
			// Retrying the same prompt cannot succeed; fail the course
			// now and consume the task.
			if failErr := h.courses.FailOutline(ctx, course.ID, redact.Error(err)); failErr != nil &&
				!errors.Is(failErr, store.ErrStaleWrite) {
				return fmt.Errorf("failed to record blocked outline: %w", failErr)
			}
			return nil
		}
		return fmt.Errorf("outline generation failed: %w", err)
	}

	if err := h.courses.SaveOutline(ctx, course.ID, outline); err != nil {
		if errors.Is(err, store.ErrStaleWrite) {
			return nil
		}
		return fmt.Errorf("failed to save outline: %w", err)
	}

	h.logger.InfoContext(ctx, "outline ready",
		"course_id", course.ID,
		"sections", len(outline.Sections))

	// Lessons stay pending until a learner views the course; block
	// skeletons are generated on demand, not cascaded from here.
	return nil
}

// Fail implements Handler by marking the course outline failed.
func (h *OutlineHandler) Fail(ctx context.Context, t *Task, reason string) error {
	err := h.courses.FailOutline(ctx, t.CourseID, reason)
	if err != nil && (errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrStaleWrite)) {
		return nil
	}
	return err
}

var _ Handler = (*OutlineHandler)(nil)
