package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/phrazzld/coursegen-api/internal/api"
	"github.com/phrazzld/coursegen-api/internal/config"
	"github.com/phrazzld/coursegen-api/internal/events"
	"github.com/phrazzld/coursegen-api/internal/generation"
	"github.com/phrazzld/coursegen-api/internal/platform/gemini"
	"github.com/phrazzld/coursegen-api/internal/platform/logger"
	"github.com/phrazzld/coursegen-api/internal/platform/metrics"
	"github.com/phrazzld/coursegen-api/internal/platform/openai"
	"github.com/phrazzld/coursegen-api/internal/platform/postgres"
	"github.com/phrazzld/coursegen-api/internal/scheduler"
	"github.com/phrazzld/coursegen-api/internal/task"
)

const (
	dbConnectTimeout = 10 * time.Second
	shutdownTimeout  = 30 * time.Second
)

// run wires the whole pipeline together and blocks until shutdown.
func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	ctx = logger.WithLogger(ctx, log)

	db, err := openDatabase(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("failed to close database", "error", closeErr)
		}
	}()

	if err := runMigrations(ctx, db); err != nil {
		return err
	}
	log.Info("database ready")

	m := metrics.New()
	courseStore := postgres.NewPostgresCourseStore(db)
	taskStore := postgres.NewPostgresTaskStore(db)

	completer, err := newCompleter(ctx, log, cfg.LLM)
	if err != nil {
		return err
	}

	generator, err := generation.NewService(completer, log)
	if err != nil {
		return fmt.Errorf("failed to create generation service: %w", err)
	}

	sched, err := scheduler.New(taskStore, courseStore, cfg.Scheduler, m, log)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	emitter := events.NewInMemoryEmitter(log)
	emitter.RegisterHandler(sched)

	runner, err := task.NewRunner(
		taskStore,
		[]task.Handler{
			task.NewOutlineHandler(courseStore, generator, log),
			task.NewBlocksHandler(courseStore, generator, sched, log),
			task.NewContentHandler(courseStore, generator, log),
		},
		task.RunnerConfig{
			Workers: map[task.Kind]int{
				task.KindOutline:      cfg.Worker.OutlineWorkers,
				task.KindLessonBlocks: cfg.Worker.BlocksWorkers,
				task.KindBlockContent: cfg.Worker.ContentWorkers,
			},
			PollInterval:      cfg.Worker.PollInterval,
			LeaseDuration:     cfg.Worker.LeaseDuration,
			MaxAttempts:       cfg.Worker.MaxAttempts,
			JanitorInterval:   cfg.Worker.JanitorInterval,
			TerminalRetention: cfg.Worker.TerminalRetention,
		},
		m,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create task runner: %w", err)
	}

	router := api.NewRouter(api.NewCourseHandler(courseStore, sched, emitter), m.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := runner.Start(); err != nil {
		return fmt.Errorf("failed to start task runner: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		runner.Stop()
		return fmt.Errorf("http server failed: %w", err)
	}

	// Stop accepting requests first, then drain in-flight generation.
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", "error", err)
	}
	runner.Stop()

	log.Info("shutdown complete")
	return nil
}

// openDatabase opens and verifies the connection pool.
func openDatabase(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, dbConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// newCompleter selects the LLM provider from configuration.
func newCompleter(ctx context.Context, log *slog.Logger, cfg config.LLMConfig) (generation.Completer, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewClient(log, cfg)
	case "gemini":
		return gemini.NewClient(ctx, log, cfg)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
