package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/coursegen-api/internal/platform/metrics"
	"github.com/phrazzld/coursegen-api/internal/redact"
)

// RunnerConfig holds configuration for the task runner.
type RunnerConfig struct {
	// Workers maps each task kind to its worker pool size.
	Workers map[Kind]int

	// PollInterval is how long an idle worker sleeps between lease
	// attempts.
	PollInterval time.Duration

	// LeaseDuration bounds how long a crashed worker can strand a task
	// before it becomes leasable again.
	LeaseDuration time.Duration

	// MaxAttempts bounds processing attempts per task before it is
	// marked failed.
	MaxAttempts int

	// JanitorInterval is how often terminal tasks are purged.
	JanitorInterval time.Duration

	// TerminalRetention is how long done and failed tasks are kept for
	// inspection before the janitor removes them.
	TerminalRetention time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Workers: map[Kind]int{
			KindOutline:      2,
			KindLessonBlocks: 2,
			KindBlockContent: 4,
		},
		PollInterval:      2 * time.Second,
		LeaseDuration:     10 * time.Minute,
		MaxAttempts:       3,
		JanitorInterval:   5 * time.Minute,
		TerminalRetention: 24 * time.Hour,
	}
}

// Runner drives the worker pools that drain the task queue. Each kind
// gets its own pool so a burst of one stage cannot starve the others.
type Runner struct {
	store    Store
	handlers map[Kind]Handler
	config   RunnerConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	active bool
}

// NewRunner creates a runner over the given store and handlers.
func NewRunner(
	store Store,
	handlers []Handler,
	config RunnerConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) (*Runner, error) {
	if store == nil {
		return nil, errors.New("task store cannot be nil")
	}
	if len(handlers) == 0 {
		return nil, errors.New("at least one handler is required")
	}
	if config.PollInterval <= 0 || config.LeaseDuration <= 0 || config.MaxAttempts < 1 {
		return nil, errors.New("invalid runner configuration")
	}

	byKind := make(map[Kind]Handler, len(handlers))
	for _, h := range handlers {
		if _, dup := byKind[h.Kind()]; dup {
			return nil, fmt.Errorf("duplicate handler for kind %q", h.Kind())
		}
		byKind[h.Kind()] = h
	}

	return &Runner{
		store:    store,
		handlers: byKind,
		config:   config,
		metrics:  m,
		logger:   logger.With("component", "task_runner"),
	}, nil
}

// Start launches the worker pools and the janitor. It returns
// immediately; processing continues until Stop is called.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return errors.New("runner already started")
	}
	r.active = true

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	for kind, handler := range r.handlers {
		count := r.config.Workers[kind]
		if count < 1 {
			count = 1
		}
		for i := 0; i < count; i++ {
			workerID := fmt.Sprintf("%s-%d", kind, i)
			r.wg.Add(1)
			go r.worker(ctx, workerID, handler)
		}
		r.logger.Info("worker pool started", "kind", kind, "workers", count)
	}

	if r.config.JanitorInterval > 0 {
		r.wg.Add(1)
		go r.janitor(ctx)
	}

	return nil
}

// Stop cancels all workers and waits for in-flight tasks to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.active = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
	r.logger.Info("task runner stopped")
}

// worker is the lease-process-ack loop for one goroutine.
func (r *Runner) worker(ctx context.Context, workerID string, handler Handler) {
	defer r.wg.Done()

	kind := handler.Kind()
	logger := r.logger.With("worker_id", workerID, "kind", kind)
	logger.Debug("worker started")

	for {
		if ctx.Err() != nil {
			logger.Debug("worker stopping")
			return
		}

		t, err := r.store.Lease(ctx, kind, workerID, r.config.LeaseDuration)
		if err != nil {
			if errors.Is(err, ErrNoTask) {
				r.sleep(ctx, r.config.PollInterval)
				continue
			}
			if ctx.Err() != nil {
				return
			}
			logger.Error("lease failed", "error", err)
			r.sleep(ctx, r.config.PollInterval)
			continue
		}

		r.process(ctx, workerID, handler, t, logger)
	}
}

// process runs one handler attempt and settles the task.
func (r *Runner) process(ctx context.Context, workerID string, handler Handler, t *Task, logger *slog.Logger) {
	kindLabel := string(t.Kind)
	if r.metrics != nil {
		r.metrics.TasksLeased.WithLabelValues(kindLabel).Inc()
		r.metrics.ActiveWorkers.WithLabelValues(kindLabel).Inc()
		defer r.metrics.ActiveWorkers.WithLabelValues(kindLabel).Dec()
	}

	start := time.Now()
	err := r.handle(ctx, handler, t)
	if r.metrics != nil {
		r.metrics.GenerationDuration.WithLabelValues(kindLabel).Observe(time.Since(start).Seconds())
	}

	if err == nil {
		if ackErr := r.store.Ack(ctx, t.ID, workerID); ackErr != nil {
			// A lost lease means another worker owns the task now and
			// will settle it; anything else is worth surfacing.
			if !errors.Is(ackErr, ErrLeaseLost) {
				logger.Error("ack failed", "task_id", t.ID, "error", ackErr)
			}
			return
		}
		if r.metrics != nil {
			r.metrics.TasksCompleted.WithLabelValues(kindLabel).Inc()
		}
		logger.Debug("task done", "task_id", t.ID, "attempt", t.Attempts+1)
		return
	}

	logger.Warn("task attempt failed",
		"task_id", t.ID,
		"attempt", t.Attempts+1,
		"max_attempts", r.config.MaxAttempts,
		"error", err)

	// Failure reasons are persisted and may surface to clients, so scrub
	// provider secrets before they leave this process.
	reason := redact.Error(err)
	terminal, nackErr := r.store.Nack(ctx, t.ID, workerID, reason, r.config.MaxAttempts)
	if nackErr != nil {
		if !errors.Is(nackErr, ErrLeaseLost) {
			logger.Error("nack failed", "task_id", t.ID, "error", nackErr)
		}
		return
	}

	if terminal {
		if r.metrics != nil {
			r.metrics.TasksFailed.WithLabelValues(kindLabel).Inc()
		}
		logger.Error("task permanently failed", "task_id", t.ID, "error", err)
		if failErr := handler.Fail(ctx, t, reason); failErr != nil {
			logger.Error("failed to propagate task failure",
				"task_id", t.ID,
				"error", failErr)
		}
	}
}

// handle invokes the handler, converting a panic into a failed attempt
// so one bad task cannot take down a worker.
func (r *Runner) handle(ctx context.Context, handler Handler, t *Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panicked: %v", p)
		}
	}()
	return handler.Handle(ctx, t)
}

// janitor periodically removes terminal tasks past their retention.
func (r *Runner) janitor(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reaped, err := r.store.ReapExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					r.logger.Error("lease reap failed", "error", err)
				}
			} else if reaped > 0 {
				if r.metrics != nil {
					r.metrics.LeasesReaped.Add(float64(reaped))
				}
				r.logger.Warn("reclaimed expired leases", "count", reaped)
			}

			purged, err := r.store.PurgeTerminal(ctx, r.config.TerminalRetention)
			if err != nil {
				if ctx.Err() == nil {
					r.logger.Error("terminal task purge failed", "error", err)
				}
				continue
			}
			if purged > 0 {
				r.logger.Info("purged terminal tasks", "count", purged)
			}
		}
	}
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
