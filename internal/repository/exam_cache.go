package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/webexam/internal/config"
	"github.com/stemsi/webexam/internal/model"
)

// ExamDefinitionSource loads exam definitions from the primary store.
type ExamDefinitionSource interface {
	GetDefinition(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, error)
}

// ExamDefinitionCache is a Redis cache-aside layer over an ExamDefinitionSource.
// Redis failures degrade to reading the source directly.
type ExamDefinitionCache struct {
	source ExamDefinitionSource
	rdb    *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewExamDefinitionCache creates a new ExamDefinitionCache. A nil rdb disables caching.
func NewExamDefinitionCache(source ExamDefinitionSource, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *ExamDefinitionCache {
	return &ExamDefinitionCache{
		source: source,
		rdb:    rdb,
		ttl:    ttl,
		log:    log.With().Str("component", "exam_cache").Logger(),
	}
}

// GetDefinition returns the cached definition or loads and caches it.
func (c *ExamDefinitionCache) GetDefinition(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, error) {
	if c.rdb == nil {
		return c.source.GetDefinition(ctx, id)
	}

	key := config.CacheKey.ExamDefinitionKey(id.String())
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var def model.ExamDefinition
		if jsonErr := json.Unmarshal(raw, &def); jsonErr == nil {
			return &def, nil
		}
		c.log.Warn().Str("exam_id", id.String()).Msg("Discarding undecodable cached exam definition")
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Exam cache read failed")
	}

	def, err := c.source.GetDefinition(ctx, id)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(def); err == nil {
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Exam cache write failed")
		}
	}
	return def, nil
}

// Invalidate drops the cached definition of an exam.
func (c *ExamDefinitionCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	if c.rdb == nil {
		return nil
	}
	if err := c.rdb.Del(ctx, config.CacheKey.ExamDefinitionKey(id.String())).Err(); err != nil {
		return fmt.Errorf("invalidate exam %s: %w", id, err)
	}
	return nil
}
