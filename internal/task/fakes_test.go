package task

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/coursegen-api/internal/domain"
	"github.com/phrazzld/coursegen-api/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memTaskStore is an in-memory Store with the same lease and dedup
// semantics as the postgres implementation.
type memTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*Task
	now   func() time.Time
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{
		tasks: make(map[uuid.UUID]*Task),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *memTaskStore) Enqueue(_ context.Context, t *Task) error {
	if err := t.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.tasks {
		if existing.State.IsTerminal() {
			continue
		}
		if existing.Kind == t.Kind &&
			existing.CourseID == t.CourseID &&
			existing.LessonID == t.LessonID &&
			existing.BlockID == t.BlockID {
			return nil
		}
	}

	clone := *t
	s.tasks[t.ID] = &clone
	return nil
}

func (s *memTaskStore) Lease(_ context.Context, kind Kind, workerID string, leaseFor time.Duration) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var best *Task
	for _, t := range s.tasks {
		if t.Kind != kind {
			continue
		}
		eligible := t.State == StateQueued ||
			(t.State == StateLeased && t.LeaseExpiresAt != nil && !t.LeaseExpiresAt.After(now))
		if !eligible {
			continue
		}
		if best == nil ||
			t.Priority < best.Priority ||
			(t.Priority == best.Priority && t.CreatedAt.Before(best.CreatedAt)) {
			best = t
		}
	}

	if best == nil {
		return nil, ErrNoTask
	}

	expires := now.Add(leaseFor)
	best.State = StateLeased
	best.LeaseOwner = workerID
	best.LeaseExpiresAt = &expires
	best.UpdatedAt = now

	clone := *best
	return &clone, nil
}

func (s *memTaskStore) Ack(_ context.Context, taskID uuid.UUID, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok || t.State != StateLeased || t.LeaseOwner != workerID {
		return ErrLeaseLost
	}

	t.State = StateDone
	t.LeaseOwner = ""
	t.LeaseExpiresAt = nil
	t.UpdatedAt = s.now()
	return nil
}

func (s *memTaskStore) Nack(_ context.Context, taskID uuid.UUID, workerID string, reason string, maxAttempts int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok || t.State != StateLeased || t.LeaseOwner != workerID {
		return false, ErrLeaseLost
	}

	t.Attempts++
	t.LastError = reason
	t.LeaseOwner = ""
	t.LeaseExpiresAt = nil
	t.UpdatedAt = s.now()

	if t.Attempts >= maxAttempts {
		t.State = StateFailed
		return true, nil
	}
	t.State = StateQueued
	return false, nil
}

func (s *memTaskStore) CountActive(_ context.Context, kind Kind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, t := range s.tasks {
		if t.Kind == kind && !t.State.IsTerminal() {
			count++
		}
	}
	return count, nil
}

func (s *memTaskStore) ReapExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var reaped int64
	for _, t := range s.tasks {
		if t.State == StateLeased && t.LeaseExpiresAt != nil && !t.LeaseExpiresAt.After(now) {
			t.State = StateQueued
			t.LeaseOwner = ""
			t.LeaseExpiresAt = nil
			t.UpdatedAt = now
			reaped++
		}
	}
	return reaped, nil
}

func (s *memTaskStore) PurgeTerminal(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-olderThan)
	var purged int64
	for id, t := range s.tasks {
		if t.State.IsTerminal() && t.UpdatedAt.Before(cutoff) {
			delete(s.tasks, id)
			purged++
		}
	}
	return purged, nil
}

// get returns a copy of the stored task for assertions.
func (s *memTaskStore) get(id uuid.UUID) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

func (s *memTaskStore) activeFor(kind Kind, courseID uuid.UUID, lessonID, blockID string) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Task
	for _, t := range s.tasks {
		if t.Kind == kind && t.CourseID == courseID &&
			t.LessonID == lessonID && t.BlockID == blockID && !t.State.IsTerminal() {
			out = append(out, *t)
		}
	}
	return out
}

var _ Store = (*memTaskStore)(nil)

// memCourseStore is an in-memory CourseStore with the same transition
// guards as the postgres implementation.
type memCourseStore struct {
	mu      sync.Mutex
	courses map[uuid.UUID]*domain.Course
}

func newMemCourseStore() *memCourseStore {
	return &memCourseStore{courses: make(map[uuid.UUID]*domain.Course)}
}

func (s *memCourseStore) put(c *domain.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[c.ID] = c
}

func (s *memCourseStore) Create(_ context.Context, course *domain.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.courses[course.ID]; exists {
		return store.ErrDuplicate
	}
	clone := *course
	s.courses[course.ID] = &clone
	return nil
}

func (s *memCourseStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[id]
	if !ok {
		return nil, store.ErrCourseNotFound
	}
	clone := *c
	return &clone, nil
}

func (s *memCourseStore) MarkOutlineGenerating(_ context.Context, courseID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[courseID]
	if !ok {
		return store.ErrCourseNotFound
	}
	if c.OutlineStatus.IsTerminal() {
		return store.ErrStaleWrite
	}
	c.OutlineStatus = domain.GenerationStatusGenerating
	return nil
}

func (s *memCourseStore) SaveOutline(_ context.Context, courseID uuid.UUID, outline *domain.Outline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[courseID]
	if !ok {
		return store.ErrCourseNotFound
	}
	if c.OutlineStatus == domain.GenerationStatusReady {
		return store.ErrStaleWrite
	}
	c.OutlineStatus = domain.GenerationStatusReady
	c.OutlineError = ""
	c.Outline = outline
	return nil
}

func (s *memCourseStore) FailOutline(_ context.Context, courseID uuid.UUID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[courseID]
	if !ok {
		return store.ErrCourseNotFound
	}
	if c.OutlineStatus == domain.GenerationStatusReady {
		return store.ErrStaleWrite
	}
	c.OutlineStatus = domain.GenerationStatusFailed
	c.OutlineError = errMsg
	return nil
}

func (s *memCourseStore) ResetOutline(_ context.Context, courseID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[courseID]
	if !ok {
		return store.ErrCourseNotFound
	}
	if !c.OutlineStatus.CanRegenerate() {
		return domain.ErrInvalidTransition
	}
	c.OutlineStatus = domain.GenerationStatusPending
	c.OutlineError = ""
	c.Outline = nil
	return nil
}

func (s *memCourseStore) withLesson(courseID uuid.UUID, lessonID string, fn func(*domain.Lesson) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[courseID]
	if !ok {
		return store.ErrCourseNotFound
	}
	lesson, _ := c.FindLesson(lessonID)
	if lesson == nil {
		return store.ErrLessonNotFound
	}
	return fn(lesson)
}

func (s *memCourseStore) MarkLessonBlocksGenerating(_ context.Context, courseID uuid.UUID, lessonID string) error {
	return s.withLesson(courseID, lessonID, func(l *domain.Lesson) error {
		if l.BlocksStatus.IsTerminal() {
			return store.ErrStaleWrite
		}
		l.BlocksStatus = domain.GenerationStatusGenerating
		return nil
	})
}

func (s *memCourseStore) SaveLessonBlocks(_ context.Context, courseID uuid.UUID, lessonID string, blocks []domain.Block) error {
	return s.withLesson(courseID, lessonID, func(l *domain.Lesson) error {
		if l.BlocksStatus == domain.GenerationStatusReady {
			return store.ErrStaleWrite
		}
		l.BlocksStatus = domain.GenerationStatusReady
		l.BlocksError = ""
		l.Blocks = blocks
		return nil
	})
}

func (s *memCourseStore) FailLessonBlocks(_ context.Context, courseID uuid.UUID, lessonID string, errMsg string) error {
	return s.withLesson(courseID, lessonID, func(l *domain.Lesson) error {
		if l.BlocksStatus == domain.GenerationStatusReady {
			return store.ErrStaleWrite
		}
		l.BlocksStatus = domain.GenerationStatusFailed
		l.BlocksError = errMsg
		return nil
	})
}

func (s *memCourseStore) withBlock(courseID uuid.UUID, lessonID, blockID string, fn func(*domain.Block) error) error {
	return s.withLesson(courseID, lessonID, func(l *domain.Lesson) error {
		for i := range l.Blocks {
			if l.Blocks[i].ID == blockID {
				return fn(&l.Blocks[i])
			}
		}
		return store.ErrBlockNotFound
	})
}

func (s *memCourseStore) MarkBlockContentGenerating(_ context.Context, courseID uuid.UUID, lessonID, blockID string) error {
	return s.withBlock(courseID, lessonID, blockID, func(b *domain.Block) error {
		if b.ContentStatus.IsTerminal() {
			return store.ErrStaleWrite
		}
		b.ContentStatus = domain.ContentStatusGenerating
		return nil
	})
}

func (s *memCourseStore) SaveBlockContent(_ context.Context, courseID uuid.UUID, lessonID, blockID string, content *domain.BlockContent) error {
	return s.withBlock(courseID, lessonID, blockID, func(b *domain.Block) error {
		if b.ContentStatus == domain.ContentStatusReady {
			return store.ErrStaleWrite
		}
		b.ContentStatus = domain.ContentStatusReady
		b.ContentError = ""
		b.Content = content
		return nil
	})
}

func (s *memCourseStore) FailBlockContent(_ context.Context, courseID uuid.UUID, lessonID, blockID string, errMsg string) error {
	return s.withBlock(courseID, lessonID, blockID, func(b *domain.Block) error {
		if b.ContentStatus == domain.ContentStatusReady {
			return store.ErrStaleWrite
		}
		b.ContentStatus = domain.ContentStatusError
		b.ContentError = errMsg
		b.Content = nil
		return nil
	})
}

func (s *memCourseStore) ResetBlockContent(_ context.Context, courseID uuid.UUID, lessonID, blockID string) error {
	return s.withBlock(courseID, lessonID, blockID, func(b *domain.Block) error {
		if !b.ContentStatus.CanRegenerate() {
			return domain.ErrInvalidTransition
		}
		b.ContentStatus = domain.ContentStatusPending
		b.ContentError = ""
		b.Content = nil
		return nil
	})
}

func (s *memCourseStore) WithTx(_ *sql.Tx) store.CourseStore { return s }

var _ store.CourseStore = (*memCourseStore)(nil)

// fakeGenerator stubs the three generation stages with function fields.
type fakeGenerator struct {
	outlineFn func(ctx context.Context, course *domain.Course) (*domain.Outline, error)
	blocksFn  func(ctx context.Context, course *domain.Course, section *domain.Section, lesson *domain.Lesson) ([]domain.Block, error)
	contentFn func(ctx context.Context, course *domain.Course, lesson *domain.Lesson, block *domain.Block) (*domain.BlockContent, error)
}

func (f *fakeGenerator) GenerateOutline(ctx context.Context, course *domain.Course) (*domain.Outline, error) {
	if f.outlineFn == nil {
		return nil, fmt.Errorf("unexpected GenerateOutline call")
	}
	return f.outlineFn(ctx, course)
}

func (f *fakeGenerator) GenerateLessonBlocks(ctx context.Context, course *domain.Course, section *domain.Section, lesson *domain.Lesson) ([]domain.Block, error) {
	if f.blocksFn == nil {
		return nil, fmt.Errorf("unexpected GenerateLessonBlocks call")
	}
	return f.blocksFn(ctx, course, section, lesson)
}

func (f *fakeGenerator) GenerateBlockContent(ctx context.Context, course *domain.Course, lesson *domain.Lesson, block *domain.Block) (*domain.BlockContent, error) {
	if f.contentFn == nil {
		return nil, fmt.Errorf("unexpected GenerateBlockContent call")
	}
	return f.contentFn(ctx, course, lesson, block)
}

var _ Generator = (*fakeGenerator)(nil)

// recordingNotifier captures blocks-ready notifications.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (n *recordingNotifier) OnBlocksReady(_ context.Context, courseID uuid.UUID, lessonID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, courseID.String()+"/"+lessonID)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}
