package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stemsi/webexam/internal/config"
	"github.com/stemsi/webexam/internal/database"
	"github.com/stemsi/webexam/internal/handler"
	"github.com/stemsi/webexam/internal/logger"
	"github.com/stemsi/webexam/internal/middleware"
	"github.com/stemsi/webexam/internal/repository"
	"github.com/stemsi/webexam/internal/router"
	"github.com/stemsi/webexam/internal/service"
	"github.com/stemsi/webexam/internal/validator"
	"github.com/stemsi/webexam/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting WebExam")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	db := repository.NewDB(pool, cfg.DBRetryAttempts, cfg.DBRetryBackoff, log)
	userRepo := repository.NewUserRepository(db)
	examRepo := repository.NewExamRepository(db)
	sessionRepo := repository.NewExamSessionRepository(db)
	answerRepo := repository.NewAnswerRepository(db)
	resultRepo := repository.NewResultRepository(db)
	examCache := repository.NewExamDefinitionCache(examRepo, rdb, cfg.ExamCacheTTL, log)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, userRepo, log)
	monitorService := service.NewMonitorService(rdb, log)
	examService := service.NewExamService(examRepo, examCache, sessionRepo, log)
	sessionService := service.NewExamSessionService(examCache, sessionRepo, answerRepo, monitorService, log)
	resultService := service.NewResultService(resultRepo, examCache, sessionRepo, answerRepo, monitorService, log)

	sweeper := worker.NewExpirySweeper(sessionService, rdb, cfg.SweepSpec(), cfg.SweepTimeout, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	deps := map[string]handler.Pinger{
		"postgres": pool.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, log),
		User:    handler.NewUserHandler(authService, log),
		Exam:    handler.NewExamHandler(examService, resultService, sessionService, log),
		Taking:  handler.NewExamTakingHandler(sessionService, log),
		Result:  handler.NewResultHandler(resultService, log),
		Monitor: handler.NewMonitorHandler(resultService, monitorService, log),
		WS:      handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		System:  handler.NewSystemHandler(deps, sweeper, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workersDone := make(chan struct{})

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.Run(workerCtx.Done())

	if cfg.SweepEnabled() {
		go func() {
			defer close(workersDone)
			if err := sweeper.Start(workerCtx); err != nil {
				log.Error().Err(err).Msg("Expiry sweeper stopped with error")
			}
		}()
	} else {
		log.Info().Msg("Expiry sweeper disabled, sessions expire on access only")
		close(workersDone)
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, limiter, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers; a sweep in flight is awaited.
	workerCancel()
	<-workersDone

	log.Info().Msg("Server stopped")
}
