package main

import (
	"context"
	"os"

	"github.com/stemsi/webexam/internal/config"
	"github.com/stemsi/webexam/internal/database"
	"github.com/stemsi/webexam/internal/logger"
	"github.com/stemsi/webexam/internal/repository"
	"github.com/stemsi/webexam/internal/service"
	"github.com/stemsi/webexam/internal/worker"
)

// sweep expires every overdue session once and exits. It is meant for cron
// jobs on deployments that run the server with SWEEP_SCHEDULE=off.
func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// Redis is optional here: it only coordinates with running servers and
	// carries monitor events.
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, sweeping without lock")
	}

	db := repository.NewDB(pool, cfg.DBRetryAttempts, cfg.DBRetryBackoff, log)
	exams := repository.NewExamDefinitionCache(repository.NewExamRepository(db), rdb, cfg.ExamCacheTTL, log)
	sessions := service.NewExamSessionService(
		exams,
		repository.NewExamSessionRepository(db),
		repository.NewAnswerRepository(db),
		service.NewMonitorService(rdb, log),
		log,
	)

	// A nil *redis.Client must not end up inside the Locker interface.
	var lock worker.Locker
	if rdb != nil {
		defer rdb.Close()
		lock = rdb
	}

	n, err := worker.NewExpirySweeper(sessions, lock, cfg.SweepSpec(), cfg.SweepTimeout, log).RunOnce(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Expiry sweep failed")
		os.Exit(1)
	}
	log.Info().Int("expired", n).Msg("Expiry sweep complete")
}
