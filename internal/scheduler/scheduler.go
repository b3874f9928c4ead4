// Package scheduler implements the cascade policy of the generation
// pipeline: which tasks get enqueued, at what priority, in reaction to
// course creation, lesson views, skeleton completion, and explicit
// regeneration requests.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/phrazzld/coursegen-api/internal/config"
	"github.com/phrazzld/coursegen-api/internal/domain"
	"github.com/phrazzld/coursegen-api/internal/events"
	"github.com/phrazzld/coursegen-api/internal/platform/metrics"
	"github.com/phrazzld/coursegen-api/internal/store"
	"github.com/phrazzld/coursegen-api/internal/task"
)

// Scheduler decides what generation work enters the queue. It never
// generates anything itself and never blocks a learner-facing request:
// every decision is an enqueue, and duplicate enqueues are absorbed by
// the queue's per-target dedup.
type Scheduler struct {
	tasks   task.Store
	courses store.CourseStore
	cfg     config.SchedulerConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a scheduler with the given cascade tuning.
func New(
	tasks task.Store,
	courses store.CourseStore,
	cfg config.SchedulerConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) (*Scheduler, error) {
	if tasks == nil {
		return nil, errors.New("task store cannot be nil")
	}
	if courses == nil {
		return nil, errors.New("course store cannot be nil")
	}
	return &Scheduler{
		tasks:   tasks,
		courses: courses,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With("component", "scheduler"),
	}, nil
}

// RequestOutline enqueues outline generation for a newly created course.
func (s *Scheduler) RequestOutline(ctx context.Context, courseID uuid.UUID) error {
	return s.enqueue(ctx, task.NewOutlineTask(courseID, task.PriorityMedium))
}

// HandleEvent implements events.Handler. The scheduler only reacts to
// view intents; unknown event types are ignored.
func (s *Scheduler) HandleEvent(ctx context.Context, event *events.Event) error {
	if event.Type != events.EventTypeViewIntent {
		return nil
	}

	var payload events.ViewIntentPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return fmt.Errorf("malformed view intent payload: %w", err)
	}

	return s.OnLessonViewed(ctx, payload.CourseID, payload.LessonID)
}

// OnLessonViewed runs the look-ahead cascade for a lesson view: the
// viewed lesson's skeleton is enqueued at high priority if still
// pending, following lessons in reading order at low priority, and if
// the viewed lesson's skeleton is already ready its pending blocks get
// eager content generation.
//
// The cascade is advisory. If the learner navigates away, already
// enqueued look-ahead work still completes; it is never cancelled.
func (s *Scheduler) OnLessonViewed(ctx context.Context, courseID uuid.UUID, lessonID string) error {
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return fmt.Errorf("failed to load course for view cascade: %w", err)
	}

	// Without a ready outline there are no lessons to schedule yet.
	if course.Outline == nil {
		return nil
	}

	viewed, _ := course.FindLesson(lessonID)
	if viewed == nil {
		return store.ErrLessonNotFound
	}

	switch {
	case viewed.BlocksStatus == domain.GenerationStatusPending:
		if err := s.enqueue(ctx, task.NewLessonBlocksTask(courseID, lessonID, task.PriorityHigh)); err != nil {
			return err
		}
	case viewed.BlocksStatus == domain.GenerationStatusReady:
		// Skeleton exists; make sure the first blocks the learner will
		// hit have content on the way.
		if err := s.enqueueEagerContent(ctx, courseID, viewed); err != nil {
			return err
		}
	}

	for _, next := range course.LessonsAfter(lessonID, s.cfg.LookaheadLessons) {
		if next.BlocksStatus != domain.GenerationStatusPending {
			continue
		}
		if err := s.enqueue(ctx, task.NewLessonBlocksTask(courseID, next.ID, task.PriorityLow)); err != nil {
			return err
		}
	}

	return nil
}

// OnBlocksReady implements task.BlocksReadyNotifier: when a lesson's
// skeleton completes, content generation starts eagerly for the blocks
// the learner will read first.
func (s *Scheduler) OnBlocksReady(ctx context.Context, courseID uuid.UUID, lessonID string) error {
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return fmt.Errorf("failed to load course for content cascade: %w", err)
	}

	lesson, _ := course.FindLesson(lessonID)
	if lesson == nil {
		return store.ErrLessonNotFound
	}

	return s.enqueueEagerContent(ctx, courseID, lesson)
}

// RequestOutlineRegeneration resets a failed or ready outline back to
// pending and enqueues regeneration at urgent priority. Returns
// domain.ErrInvalidTransition when the outline is pending or still
// generating.
func (s *Scheduler) RequestOutlineRegeneration(ctx context.Context, courseID uuid.UUID) error {
	if err := s.courses.ResetOutline(ctx, courseID); err != nil {
		return err
	}
	return s.enqueue(ctx, task.NewOutlineTask(courseID, task.PriorityUrgent))
}

// RequestBlockRegeneration resets an errored or ready block's content
// back to pending and enqueues regeneration at urgent priority. Returns
// domain.ErrInvalidTransition when the block is pending or still
// generating.
func (s *Scheduler) RequestBlockRegeneration(ctx context.Context, courseID uuid.UUID, lessonID, blockID string) error {
	if err := s.courses.ResetBlockContent(ctx, courseID, lessonID, blockID); err != nil {
		return err
	}
	return s.enqueue(ctx, task.NewBlockContentTask(courseID, lessonID, blockID, task.PriorityUrgent))
}

// enqueueEagerContent enqueues urgent content tasks for the first
// EagerContentBlocks pending blocks of the lesson, in block order.
func (s *Scheduler) enqueueEagerContent(ctx context.Context, courseID uuid.UUID, lesson *domain.Lesson) error {
	remaining := s.cfg.EagerContentBlocks
	for i := range lesson.Blocks {
		if remaining == 0 {
			break
		}
		block := &lesson.Blocks[i]
		if block.ContentStatus != domain.ContentStatusPending {
			continue
		}
		if err := s.enqueue(ctx, task.NewBlockContentTask(courseID, lesson.ID, block.ID, task.PriorityUrgent)); err != nil {
			return err
		}
		remaining--
	}
	return nil
}

func (s *Scheduler) enqueue(ctx context.Context, t *task.Task) error {
	if err := s.tasks.Enqueue(ctx, t); err != nil {
		return fmt.Errorf("failed to enqueue %s task: %w", t.Kind, err)
	}

	if s.metrics != nil {
		s.metrics.TasksEnqueued.WithLabelValues(string(t.Kind)).Inc()
	}

	s.logger.DebugContext(ctx, "task enqueued",
		"kind", t.Kind,
		"course_id", t.CourseID,
		"lesson_id", t.LessonID,
		"block_id", t.BlockID,
		"priority", t.Priority)
	return nil
}

var _ events.Handler = (*Scheduler)(nil)
var _ task.BlocksReadyNotifier = (*Scheduler)(nil)
