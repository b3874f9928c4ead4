package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/coursegen-api/internal/domain"
	"github.com/phrazzld/coursegen-api/internal/generation"
	"github.com/phrazzld/coursegen-api/internal/redact"
	"github.com/phrazzld/coursegen-api/internal/store"
)

// ContentHandler generates block content payloads.
type ContentHandler struct {
	courses   store.CourseStore
	generator Generator
	logger    *slog.Logger
}

// NewContentHandler creates the handler for block content tasks.
func NewContentHandler(courses store.CourseStore, generator Generator, logger *slog.Logger) *ContentHandler {
	return &ContentHandler{
		courses:   courses,
		generator: generator,
		logger:    logger.With("handler", "block_content"),
	}
}

// Kind implements Handler.
func (h *ContentHandler) Kind() Kind { return KindBlockContent }

// Handle generates and saves the content for the task's block.
func (h *ContentHandler) Handle(ctx context.Context, t *Task) error {
	course, err := h.courses.GetByID(ctx, t.CourseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.logger.WarnContext(ctx, "dropping content task for missing course",
				"course_id", t.CourseID)
			return nil
		}
		return fmt.Errorf("failed to load course: %w", err)
	}

	lesson, _ := course.FindLesson(t.LessonID)
	if lesson == nil {
		h.logger.WarnContext(ctx, "dropping content task for missing lesson",
			"course_id", t.CourseID,
			"lesson_id", t.LessonID)
		return nil
	}

	var block *domain.Block
	for i := range lesson.Blocks {
		if lesson.Blocks[i].ID == t.BlockID {
			block = &lesson.Blocks[i]
			break
		}
	}
	if block == nil {
		h.logger.WarnContext(ctx, "dropping content task for missing block",
			"course_id", t.CourseID,
			"lesson_id", t.LessonID,
			"block_id", t.BlockID)
		return nil
	}

	if !block.ContentStatus.CanStartGeneration() {
		h.logger.DebugContext(ctx, "block content not eligible for generation",
			"course_id", course.ID,
			"lesson_id", lesson.ID,
			"block_id", block.ID,
			"content_status", block.ContentStatus)
		return nil
	}

	if err := h.courses.MarkBlockContentGenerating(ctx, course.ID, lesson.ID, block.ID); err != nil {
		if errors.Is(err, store.ErrStaleWrite) || errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to mark block content generating: %w", err)
	}

	content, err := h.generator.GenerateBlockContent(ctx, course, lesson, block)
	if err != nil {
		if errors.Is(err, generation.ErrContentBlocked) {
			if failErr := h.courses.FailBlockContent(ctx, course.ID, lesson.ID, block.ID, redact.Error(err)); failErr != nil &&
				!errors.Is(failErr, store.ErrStaleWrite) && !errors.Is(failErr, store.ErrNotFound) {
				return fmt.Errorf("failed to record blocked content: %w", failErr)
			}
			return nil
		}
		return fmt.Errorf("block content generation failed: %w", err)
	}

	if err := h.courses.SaveBlockContent(ctx, course.ID, lesson.ID, block.ID, content); err != nil {
		if errors.Is(err, store.ErrStaleWrite) || errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to save block content: %w", err)
	}

	h.logger.InfoContext(ctx, "block content ready",
		"course_id", course.ID,
		"lesson_id", lesson.ID,
		"block_id", block.ID,
		"block_type", block.Type)

	return nil
}

// Fail implements Handler by marking the block's content errored.
func (h *ContentHandler) Fail(ctx context.Context, t *Task, reason string) error {
	err := h.courses.FailBlockContent(ctx, t.CourseID, t.LessonID, t.BlockID, reason)
	if err != nil && (errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrStaleWrite)) {
		return nil
	}
	return err
}

var _ Handler = (*ContentHandler)(nil)
