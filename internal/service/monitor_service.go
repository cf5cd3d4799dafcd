package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/webexam/internal/config"
	"github.com/stemsi/webexam/internal/model"
)

// MonitorService fans session lifecycle events out over Redis pub/sub so
// that exam authors can watch attempts live.
type MonitorService struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewMonitorService creates a new MonitorService. A nil client disables
// publishing.
func NewMonitorService(rdb *redis.Client, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		rdb: rdb,
		log: log.With().Str("component", "monitor_service").Logger(),
	}
}

// Publish sends ev to the exam's monitor channel. Failures are logged only.
func (s *MonitorService) Publish(ctx context.Context, ev model.SessionEvent) {
	if s.rdb == nil {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		s.log.Error().Err(err).Str("type", ev.Type).Msg("Failed to encode session event")
		return
	}

	channel := config.CacheKey.ExamMonitorChannel(ev.ExamID.String())
	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		s.log.Warn().Err(err).
			Str("channel", channel).
			Str("type", ev.Type).
			Msg("Failed to publish session event")
	}
}

// Subscribe opens a subscription to an exam's monitor channel. The caller
// must close it.
func (s *MonitorService) Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID.String()))
}
