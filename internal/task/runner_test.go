package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler is a scriptable Handler for runner tests.
type recordingHandler struct {
	kind     Kind
	handleFn func(ctx context.Context, t *Task) error

	mu      sync.Mutex
	handled []uuid.UUID
	failed  []string
}

func (h *recordingHandler) Kind() Kind { return h.kind }

func (h *recordingHandler) Handle(ctx context.Context, t *Task) error {
	h.mu.Lock()
	h.handled = append(h.handled, t.ID)
	h.mu.Unlock()
	if h.handleFn != nil {
		return h.handleFn(ctx, t)
	}
	return nil
}

func (h *recordingHandler) Fail(_ context.Context, _ *Task, reason string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed = append(h.failed, reason)
	return nil
}

func (h *recordingHandler) handledIDs() []uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uuid.UUID(nil), h.handled...)
}

func (h *recordingHandler) failReasons() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.failed...)
}

func testRunnerConfig() RunnerConfig {
	cfg := DefaultRunnerConfig()
	cfg.Workers = map[Kind]int{KindOutline: 1}
	cfg.PollInterval = 5 * time.Millisecond
	cfg.LeaseDuration = time.Minute
	cfg.MaxAttempts = 3
	cfg.JanitorInterval = 0
	return cfg
}

func TestRunnerProcessesInPriorityOrder(t *testing.T) {
	t.Parallel()

	ts := newMemTaskStore()
	ctx := context.Background()

	low := NewOutlineTask(uuid.New(), PriorityLow)
	medium := NewOutlineTask(uuid.New(), PriorityMedium)
	urgent := NewOutlineTask(uuid.New(), PriorityUrgent)
	for _, task := range []*Task{low, medium, urgent} {
		require.NoError(t, ts.Enqueue(ctx, task))
	}

	handler := &recordingHandler{kind: KindOutline}
	runner, err := NewRunner(ts, []Handler{handler}, testRunnerConfig(), nil, testLogger())
	require.NoError(t, err)

	require.NoError(t, runner.Start())
	defer runner.Stop()

	require.Eventually(t, func() bool {
		return len(handler.handledIDs()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []uuid.UUID{urgent.ID, medium.ID, low.ID}, handler.handledIDs())

	for _, task := range []*Task{low, medium, urgent} {
		got, ok := ts.get(task.ID)
		require.True(t, ok)
		assert.Equal(t, StateDone, got.State)
	}
}

func TestRunnerRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	ts := newMemTaskStore()
	ctx := context.Background()

	queued := NewOutlineTask(uuid.New(), PriorityMedium)
	require.NoError(t, ts.Enqueue(ctx, queued))

	var mu sync.Mutex
	attempts := 0
	handler := &recordingHandler{
		kind: KindOutline,
		handleFn: func(context.Context, *Task) error {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			if attempts < 3 {
				return errors.New("transient")
			}
			return nil
		},
	}

	runner, err := NewRunner(ts, []Handler{handler}, testRunnerConfig(), nil, testLogger())
	require.NoError(t, err)
	require.NoError(t, runner.Start())
	defer runner.Stop()

	require.Eventually(t, func() bool {
		got, ok := ts.get(queued.ID)
		return ok && got.State == StateDone
	}, 2*time.Second, 5*time.Millisecond)

	got, _ := ts.get(queued.ID)
	assert.Equal(t, 2, got.Attempts)
	assert.Empty(t, handler.failReasons())
}

func TestRunnerFailsTaskAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	ts := newMemTaskStore()
	ctx := context.Background()

	queued := NewOutlineTask(uuid.New(), PriorityMedium)
	require.NoError(t, ts.Enqueue(ctx, queued))

	handler := &recordingHandler{
		kind: KindOutline,
		handleFn: func(context.Context, *Task) error {
			return errors.New("model unavailable")
		},
	}

	runner, err := NewRunner(ts, []Handler{handler}, testRunnerConfig(), nil, testLogger())
	require.NoError(t, err)
	require.NoError(t, runner.Start())
	defer runner.Stop()

	require.Eventually(t, func() bool {
		got, ok := ts.get(queued.ID)
		return ok && got.State == StateFailed
	}, 2*time.Second, 5*time.Millisecond)

	got, _ := ts.get(queued.ID)
	assert.Equal(t, 3, got.Attempts)
	assert.Contains(t, got.LastError, "model unavailable")

	// Fail is invoked exactly once, with the final error.
	require.Eventually(t, func() bool {
		return len(handler.failReasons()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, handler.failReasons()[0], "model unavailable")
	assert.Len(t, handler.handledIDs(), 3)
}

func TestRunnerRecoversFromHandlerPanic(t *testing.T) {
	t.Parallel()

	ts := newMemTaskStore()
	ctx := context.Background()

	queued := NewOutlineTask(uuid.New(), PriorityMedium)
	require.NoError(t, ts.Enqueue(ctx, queued))

	handler := &recordingHandler{
		kind: KindOutline,
		handleFn: func(context.Context, *Task) error {
			panic("nil outline")
		},
	}

	runner, err := NewRunner(ts, []Handler{handler}, testRunnerConfig(), nil, testLogger())
	require.NoError(t, err)
	require.NoError(t, runner.Start())
	defer runner.Stop()

	require.Eventually(t, func() bool {
		got, ok := ts.get(queued.ID)
		return ok && got.State == StateFailed
	}, 2*time.Second, 5*time.Millisecond)

	got, _ := ts.get(queued.ID)
	assert.Contains(t, got.LastError, "panicked")
}

func TestRunnerStopIsIdempotent(t *testing.T) {
	t.Parallel()

	runner, err := NewRunner(newMemTaskStore(), []Handler{&recordingHandler{kind: KindOutline}},
		testRunnerConfig(), nil, testLogger())
	require.NoError(t, err)

	require.NoError(t, runner.Start())
	assert.Error(t, runner.Start())

	runner.Stop()
	runner.Stop()
}

func TestNewRunnerRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := NewRunner(nil, []Handler{&recordingHandler{kind: KindOutline}}, testRunnerConfig(), nil, testLogger())
	assert.Error(t, err)

	_, err = NewRunner(newMemTaskStore(), nil, testRunnerConfig(), nil, testLogger())
	assert.Error(t, err)

	_, err = NewRunner(newMemTaskStore(), []Handler{
		&recordingHandler{kind: KindOutline},
		&recordingHandler{kind: KindOutline},
	}, testRunnerConfig(), nil, testLogger())
	assert.Error(t, err)

	bad := testRunnerConfig()
	bad.MaxAttempts = 0
	_, err = NewRunner(newMemTaskStore(), []Handler{&recordingHandler{kind: KindOutline}}, bad, nil, testLogger())
	assert.Error(t, err)
}

func TestEnqueueDeduplicatesActiveTasks(t *testing.T) {
	t.Parallel()

	ts := newMemTaskStore()
	ctx := context.Background()
	courseID := uuid.New()

	first := NewBlockContentTask(courseID, "l1", "b1", PriorityUrgent)
	dup := NewBlockContentTask(courseID, "l1", "b1", PriorityLow)
	other := NewBlockContentTask(courseID, "l1", "b2", PriorityUrgent)

	require.NoError(t, ts.Enqueue(ctx, first))
	require.NoError(t, ts.Enqueue(ctx, dup))
	require.NoError(t, ts.Enqueue(ctx, other))

	assert.Len(t, ts.activeFor(KindBlockContent, courseID, "l1", "b1"), 1)
	assert.Len(t, ts.activeFor(KindBlockContent, courseID, "l1", "b2"), 1)

	count, err := ts.CountActive(ctx, KindBlockContent)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestEnqueueAllowedAfterTerminalTask(t *testing.T) {
	t.Parallel()

	ts := newMemTaskStore()
	ctx := context.Background()
	courseID := uuid.New()

	first := NewOutlineTask(courseID, PriorityMedium)
	require.NoError(t, ts.Enqueue(ctx, first))

	leased, err := ts.Lease(ctx, KindOutline, "w1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, ts.Ack(ctx, leased.ID, "w1"))

	// Same target again, e.g. after a regeneration request.
	second := NewOutlineTask(courseID, PriorityMedium)
	require.NoError(t, ts.Enqueue(ctx, second))

	count, err := ts.CountActive(ctx, KindOutline)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestExpiredLeaseIsReleasable(t *testing.T) {
	t.Parallel()

	ts := newMemTaskStore()
	now := time.Now().UTC()
	ts.now = func() time.Time { return now }
	ctx := context.Background()

	queued := NewOutlineTask(uuid.New(), PriorityMedium)
	require.NoError(t, ts.Enqueue(ctx, queued))

	first, err := ts.Lease(ctx, KindOutline, "w1", time.Minute)
	require.NoError(t, err)

	// Still leased: nothing available for other workers.
	_, err = ts.Lease(ctx, KindOutline, "w2", time.Minute)
	assert.ErrorIs(t, err, ErrNoTask)

	// Lease expires; the task becomes available again.
	now = now.Add(2 * time.Minute)
	second, err := ts.Lease(ctx, KindOutline, "w2", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// The original worker's settle attempts are rejected.
	assert.ErrorIs(t, ts.Ack(ctx, first.ID, "w1"), ErrLeaseLost)
	_, err = ts.Nack(ctx, first.ID, "w1", "late", 3)
	assert.ErrorIs(t, err, ErrLeaseLost)

	// The new owner settles normally.
	require.NoError(t, ts.Ack(ctx, second.ID, "w2"))
}

func TestReapExpiredRequeuesStrandedTasks(t *testing.T) {
	t.Parallel()

	ts := newMemTaskStore()
	now := time.Now().UTC()
	ts.now = func() time.Time { return now }
	ctx := context.Background()

	stranded := NewOutlineTask(uuid.New(), PriorityMedium)
	require.NoError(t, ts.Enqueue(ctx, stranded))
	_, err := ts.Lease(ctx, KindOutline, "w1", time.Minute)
	require.NoError(t, err)

	held := NewOutlineTask(uuid.New(), PriorityMedium)
	require.NoError(t, ts.Enqueue(ctx, held))
	_, err = ts.Lease(ctx, KindOutline, "w2", 10*time.Minute)
	require.NoError(t, err)

	// Only the first lease has expired.
	now = now.Add(2 * time.Minute)
	reaped, err := ts.ReapExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, reaped)

	got, ok := ts.get(stranded.ID)
	require.True(t, ok)
	assert.Equal(t, StateQueued, got.State)
	assert.Empty(t, got.LeaseOwner)

	got, ok = ts.get(held.ID)
	require.True(t, ok)
	assert.Equal(t, StateLeased, got.State)
}

func TestPurgeTerminalRespectsRetention(t *testing.T) {
	t.Parallel()

	ts := newMemTaskStore()
	now := time.Now().UTC()
	ts.now = func() time.Time { return now }
	ctx := context.Background()

	done := NewOutlineTask(uuid.New(), PriorityMedium)
	require.NoError(t, ts.Enqueue(ctx, done))
	leased, err := ts.Lease(ctx, KindOutline, "w1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, ts.Ack(ctx, leased.ID, "w1"))

	active := NewOutlineTask(uuid.New(), PriorityMedium)
	require.NoError(t, ts.Enqueue(ctx, active))

	// Within retention: nothing purged.
	purged, err := ts.PurgeTerminal(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, purged)

	now = now.Add(25 * time.Hour)
	purged, err = ts.PurgeTerminal(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	_, ok := ts.get(done.ID)
	assert.False(t, ok)
	_, ok = ts.get(active.ID)
	assert.True(t, ok)
}
