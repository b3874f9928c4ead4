package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/coursegen-api/internal/config"
	"github.com/phrazzld/coursegen-api/internal/domain"
	"github.com/phrazzld/coursegen-api/internal/events"
	"github.com/phrazzld/coursegen-api/internal/store"
	"github.com/phrazzld/coursegen-api/internal/task"
)

// captureQueue records enqueued tasks without any queue semantics.
type captureQueue struct {
	task.Store
	enqueued []*task.Task
}

func (q *captureQueue) Enqueue(_ context.Context, t *task.Task) error {
	q.enqueued = append(q.enqueued, t)
	return nil
}

func (q *captureQueue) byKind(kind task.Kind) []*task.Task {
	var out []*task.Task
	for _, t := range q.enqueued {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// stubCourses serves a single course and records reset calls.
type stubCourses struct {
	store.CourseStore
	course *domain.Course

	resetOutlineErr error
	resetBlockErr   error
	outlineResets   int
	blockResets     []string
}

func (s *stubCourses) GetByID(_ context.Context, id uuid.UUID) (*domain.Course, error) {
	if s.course == nil || s.course.ID != id {
		return nil, store.ErrCourseNotFound
	}
	return s.course, nil
}

func (s *stubCourses) ResetOutline(_ context.Context, _ uuid.UUID) error {
	if s.resetOutlineErr != nil {
		return s.resetOutlineErr
	}
	s.outlineResets++
	return nil
}

func (s *stubCourses) ResetBlockContent(_ context.Context, _ uuid.UUID, lessonID, blockID string) error {
	if s.resetBlockErr != nil {
		return s.resetBlockErr
	}
	s.blockResets = append(s.blockResets, lessonID+"/"+blockID)
	return nil
}

func testConfig() config.SchedulerConfig {
	return config.SchedulerConfig{LookaheadLessons: 2, EagerContentBlocks: 3}
}

func newTestScheduler(t *testing.T, queue task.Store, courses store.CourseStore) *Scheduler {
	t.Helper()
	s, err := New(queue, courses, testConfig(),
		nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

// fixtureCourse builds a ready outline with two sections holding three
// and two lessons (IDs s1-l1..s1-l3, s2-l1, s2-l2), all pending.
func fixtureCourse(t *testing.T) *domain.Course {
	t.Helper()
	course, err := domain.NewCourse(uuid.New(), "Learn Go")
	require.NoError(t, err)
	course.OutlineStatus = domain.GenerationStatusReady
	course.Outline = &domain.Outline{
		Title:       "Learn Go",
		Description: "d",
		Sections: []domain.Section{
			{
				ID:    "s1",
				Title: "Basics",
				Lessons: []domain.Lesson{
					domain.NewLesson("s1-l1", "One", "", 10),
					domain.NewLesson("s1-l2", "Two", "", 10),
					domain.NewLesson("s1-l3", "Three", "", 10),
				},
			},
			{
				ID:    "s2",
				Title: "Beyond",
				Lessons: []domain.Lesson{
					domain.NewLesson("s2-l1", "Four", "", 10),
					domain.NewLesson("s2-l2", "Five", "", 10),
				},
			},
		},
	}
	return course
}

func TestRequestOutlineEnqueuesMediumPriority(t *testing.T) {
	t.Parallel()

	queue := &captureQueue{}
	courseID := uuid.New()
	s := newTestScheduler(t, queue, &stubCourses{})

	require.NoError(t, s.RequestOutline(context.Background(), courseID))

	require.Len(t, queue.enqueued, 1)
	got := queue.enqueued[0]
	assert.Equal(t, task.KindOutline, got.Kind)
	assert.Equal(t, courseID, got.CourseID)
	assert.Equal(t, task.PriorityMedium, got.Priority)
}

func TestViewCascadeEnqueuesViewedAndLookahead(t *testing.T) {
	t.Parallel()

	queue := &captureQueue{}
	course := fixtureCourse(t)
	s := newTestScheduler(t, queue, &stubCourses{course: course})

	require.NoError(t, s.OnLessonViewed(context.Background(), course.ID, "s1-l2"))

	blocks := queue.byKind(task.KindLessonBlocks)
	require.Len(t, blocks, 3)

	assert.Equal(t, "s1-l2", blocks[0].LessonID)
	assert.Equal(t, task.PriorityHigh, blocks[0].Priority)

	// Look-ahead crosses the section boundary.
	assert.Equal(t, "s1-l3", blocks[1].LessonID)
	assert.Equal(t, task.PriorityLow, blocks[1].Priority)
	assert.Equal(t, "s2-l1", blocks[2].LessonID)
	assert.Equal(t, task.PriorityLow, blocks[2].Priority)
}

func TestViewCascadeSkipsNonPendingLessons(t *testing.T) {
	t.Parallel()

	queue := &captureQueue{}
	course := fixtureCourse(t)
	// Viewed lesson is generating, the next lesson is already ready.
	course.Outline.Sections[0].Lessons[1].BlocksStatus = domain.GenerationStatusGenerating
	course.Outline.Sections[0].Lessons[2].BlocksStatus = domain.GenerationStatusReady
	s := newTestScheduler(t, queue, &stubCourses{course: course})

	require.NoError(t, s.OnLessonViewed(context.Background(), course.ID, "s1-l2"))

	blocks := queue.byKind(task.KindLessonBlocks)
	require.Len(t, blocks, 1)
	assert.Equal(t, "s2-l1", blocks[0].LessonID)
	assert.Equal(t, task.PriorityLow, blocks[0].Priority)
}

func TestViewOfReadyLessonEnqueuesEagerContent(t *testing.T) {
	t.Parallel()

	queue := &captureQueue{}
	course := fixtureCourse(t)
	lesson, _ := course.FindLesson("s1-l1")
	lesson.BlocksStatus = domain.GenerationStatusReady
	lesson.Blocks = []domain.Block{
		domain.NewBlock("b1", domain.BlockTypeText, "B1", "", 0),
		domain.NewBlock("b2", domain.BlockTypeText, "B2", "", 1),
		domain.NewBlock("b3", domain.BlockTypeText, "B3", "", 2),
		domain.NewBlock("b4", domain.BlockTypeText, "B4", "", 3),
	}
	// b1 already has content; it must not be re-enqueued.
	lesson.Blocks[0].ContentStatus = domain.ContentStatusReady
	lesson.Blocks[0].Content = &domain.BlockContent{Text: &domain.TextContent{Markdown: "x"}}

	s := newTestScheduler(t, queue, &stubCourses{course: course})
	require.NoError(t, s.OnLessonViewed(context.Background(), course.ID, "s1-l1"))

	// No skeleton task for a ready lesson.
	for _, blockTask := range queue.byKind(task.KindLessonBlocks) {
		assert.NotEqual(t, "s1-l1", blockTask.LessonID)
	}

	content := queue.byKind(task.KindBlockContent)
	require.Len(t, content, 3)
	assert.Equal(t, "b2", content[0].BlockID)
	assert.Equal(t, "b3", content[1].BlockID)
	assert.Equal(t, "b4", content[2].BlockID)
	for _, ct := range content {
		assert.Equal(t, task.PriorityUrgent, ct.Priority)
	}
}

func TestViewBeforeOutlineReadyIsNoOp(t *testing.T) {
	t.Parallel()

	queue := &captureQueue{}
	course, err := domain.NewCourse(uuid.New(), "Learn Go")
	require.NoError(t, err)

	s := newTestScheduler(t, queue, &stubCourses{course: course})
	require.NoError(t, s.OnLessonViewed(context.Background(), course.ID, "s1-l1"))
	assert.Empty(t, queue.enqueued)
}

func TestViewUnknownLessonFails(t *testing.T) {
	t.Parallel()

	queue := &captureQueue{}
	course := fixtureCourse(t)
	s := newTestScheduler(t, queue, &stubCourses{course: course})

	err := s.OnLessonViewed(context.Background(), course.ID, "nope")
	assert.ErrorIs(t, err, store.ErrLessonNotFound)
	assert.Empty(t, queue.enqueued)
}

func TestOnBlocksReadyEnqueuesFirstPendingBlocks(t *testing.T) {
	t.Parallel()

	queue := &captureQueue{}
	course := fixtureCourse(t)
	lesson, _ := course.FindLesson("s2-l1")
	lesson.BlocksStatus = domain.GenerationStatusReady
	lesson.Blocks = []domain.Block{
		domain.NewBlock("b1", domain.BlockTypeText, "B1", "", 0),
		domain.NewBlock("b2", domain.BlockTypeCode, "B2", "", 1),
		domain.NewBlock("b3", domain.BlockTypeQuestion, "B3", "", 2),
		domain.NewBlock("b4", domain.BlockTypeSummary, "B4", "", 3),
	}

	s := newTestScheduler(t, queue, &stubCourses{course: course})
	require.NoError(t, s.OnBlocksReady(context.Background(), course.ID, "s2-l1"))

	content := queue.byKind(task.KindBlockContent)
	require.Len(t, content, 3)
	assert.Equal(t, []string{"b1", "b2", "b3"},
		[]string{content[0].BlockID, content[1].BlockID, content[2].BlockID})
}

func TestHandleEventDispatchesViewIntent(t *testing.T) {
	t.Parallel()

	queue := &captureQueue{}
	course := fixtureCourse(t)
	s := newTestScheduler(t, queue, &stubCourses{course: course})

	event, err := events.NewViewIntentEvent(course.ID, "s1-l1")
	require.NoError(t, err)
	require.NoError(t, s.HandleEvent(context.Background(), event))

	blocks := queue.byKind(task.KindLessonBlocks)
	require.NotEmpty(t, blocks)
	assert.Equal(t, "s1-l1", blocks[0].LessonID)
}

func TestHandleEventIgnoresUnknownTypes(t *testing.T) {
	t.Parallel()

	queue := &captureQueue{}
	s := newTestScheduler(t, queue, &stubCourses{})

	event, err := events.NewEvent("lesson_completed", map[string]string{"x": "y"})
	require.NoError(t, err)
	require.NoError(t, s.HandleEvent(context.Background(), event))
	assert.Empty(t, queue.enqueued)
}

func TestRequestOutlineRegeneration(t *testing.T) {
	t.Parallel()

	queue := &captureQueue{}
	courses := &stubCourses{}
	s := newTestScheduler(t, queue, courses)
	courseID := uuid.New()

	require.NoError(t, s.RequestOutlineRegeneration(context.Background(), courseID))
	assert.Equal(t, 1, courses.outlineResets)

	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, task.KindOutline, queue.enqueued[0].Kind)
	assert.Equal(t, task.PriorityUrgent, queue.enqueued[0].Priority)
}

func TestRequestOutlineRegenerationRejectedWhileGenerating(t *testing.T) {
	t.Parallel()

	queue := &captureQueue{}
	courses := &stubCourses{resetOutlineErr: domain.ErrInvalidTransition}
	s := newTestScheduler(t, queue, courses)

	err := s.RequestOutlineRegeneration(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Empty(t, queue.enqueued)
}

func TestRequestBlockRegeneration(t *testing.T) {
	t.Parallel()

	queue := &captureQueue{}
	courses := &stubCourses{}
	s := newTestScheduler(t, queue, courses)
	courseID := uuid.New()

	require.NoError(t, s.RequestBlockRegeneration(context.Background(), courseID, "l1", "b1"))
	assert.Equal(t, []string{"l1/b1"}, courses.blockResets)

	require.Len(t, queue.enqueued, 1)
	got := queue.enqueued[0]
	assert.Equal(t, task.KindBlockContent, got.Kind)
	assert.Equal(t, task.PriorityUrgent, got.Priority)
	assert.Equal(t, "b1", got.BlockID)
}
