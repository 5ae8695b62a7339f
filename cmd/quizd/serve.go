package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/filiup/quizsession/internal/database"
	"github.com/filiup/quizsession/internal/handler"
	"github.com/filiup/quizsession/internal/middleware"
	"github.com/filiup/quizsession/internal/repository"
	"github.com/filiup/quizsession/internal/router"
	"github.com/filiup/quizsession/internal/service"
	"github.com/filiup/quizsession/internal/validator"
	"github.com/filiup/quizsession/internal/worker"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var migrationsDir string
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if autoMigrate {
				m, err := database.NewMigrator(migrationsDir, a.cfg.DatabaseURL, a.log)
				if err != nil {
					return err
				}
				err = m.Up()
				m.Close()
				if err != nil {
					return err
				}
			}
			return serve(a)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "migrate", false, "apply pending migrations before serving")
	cmd.Flags().StringVar(&migrationsDir, "migrations", "migrations", "path to migration files")
	return cmd
}

func serve(a *app) error {
	cfg, log := a.cfg, a.log
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting quiz attempt API")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to PostgreSQL")
		return err
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to Redis")
		return err
	}
	defer rdb.Close()

	// ─── Repositories & Services ───────────────────────────────────────
	quizRepo := repository.NewQuizRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	violationRepo := repository.NewViolationRepository(pool)

	authService := service.NewAuthService(cfg.JWTSecret, cfg.JWTExpiry)
	quizService := service.NewQuizService(quizRepo, rdb, log)
	attemptService := service.NewAttemptService(attemptRepo, quizService, rdb,
		service.AttemptOptions{SubmitGrace: cfg.SubmitGrace}, log)

	// ─── Handlers ──────────────────────────────────────────────────────
	handlers := &router.Handlers{
		Attempt: handler.NewAttemptHandler(quizService, attemptService, log),
		WS:      handler.NewWSHandler(attemptService, cfg.TimeWarningBefore, log, cfg.AllowedOrigins),
		System:  handler.NewSystemHandler(pool, rdb, log),
	}
	violationLimiter := middleware.NewRateLimiter(ctx, 30, time.Minute)

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	for _, start := range []func(context.Context){
		worker.NewProgressWorker(attemptRepo, rdb, log).Start,
		worker.NewViolationWorker(violationRepo, rdb, log).Start,
	} {
		workers.Add(1)
		go func(start func(context.Context)) {
			defer workers.Done()
			start(workerCtx)
		}(start)
	}

	// ─── HTTP Server ───────────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router.SetupRouter(authService, handlers, violationLimiter, cfg, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")
	case err = <-serveErr:
		log.Error().Err(err).Msg("Server error")
	}

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Error().Err(shutdownErr).Msg("HTTP server shutdown error")
	}

	// 2. Stop workers and wait for their queues to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
	return err
}
