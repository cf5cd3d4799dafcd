package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/stemsi/webexam/internal/config"
)

// SessionSweeper expires overdue exam sessions in bulk.
type SessionSweeper interface {
	SweepExpiredSessions(ctx context.Context) (int, error)
}

// Locker is the subset of the Redis client used for the sweep lock.
type Locker interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// releaseLockScript deletes the lock only while it still carries our token.
const releaseLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// ExpirySweeper periodically moves running sessions past their deadline to
// EXPIRED. Sessions are also expired lazily on access; the sweep keeps
// listings and statistics honest for sessions nobody touches again.
type ExpirySweeper struct {
	sessions SessionSweeper
	lock     Locker
	spec     string
	timeout  time.Duration
	log      zerolog.Logger
}

// NewExpirySweeper creates a new ExpirySweeper. lock may be nil, in which
// case runs are not coordinated across processes.
func NewExpirySweeper(sessions SessionSweeper, lock Locker, spec string, timeout time.Duration, log zerolog.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		sessions: sessions,
		lock:     lock,
		spec:     spec,
		timeout:  timeout,
		log:      log.With().Str("component", "expiry_sweeper").Logger(),
	}
}

// Start schedules the sweep and blocks until ctx is cancelled. A run still
// in progress is awaited before returning.
func (w *ExpirySweeper) Start(ctx context.Context) error {
	cl := cronLogger{log: w.log}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	if _, err := c.AddFunc(w.spec, func() {
		if _, err := w.RunOnce(ctx); err != nil {
			w.log.Error().Err(err).Msg("Expiry sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule expiry sweep %q: %w", w.spec, err)
	}

	c.Start()
	w.log.Info().Str("schedule", w.spec).Msg("ExpirySweeper started")

	<-ctx.Done()
	<-c.Stop().Done()
	w.log.Info().Msg("ExpirySweeper stopped")
	return nil
}

// RunOnce performs a single sweep. It reports zero without sweeping when
// another process holds the lock.
func (w *ExpirySweeper) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if w.lock != nil {
		key := config.CacheKey.ExpirySweepLock()
		token := uuid.NewString()
		ok, err := w.lock.SetNX(ctx, key, token, w.timeout).Result()
		if err != nil {
			return 0, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !ok {
			w.log.Debug().Msg("Expiry sweep skipped, lock held elsewhere")
			return 0, nil
		}
		defer func() {
			// Released on a fresh context so a timed-out run still frees the lock.
			n, err := w.lock.Eval(context.Background(), releaseLockScript, []string{key}, token).Int64()
			if err != nil {
				w.log.Warn().Err(err).Msg("Failed to release sweep lock")
				return
			}
			if n == 0 {
				w.log.Warn().Msg("Sweep lock expired before the run finished")
			}
		}()
	}

	start := time.Now()
	n, err := w.sessions.SweepExpiredSessions(ctx)
	if err != nil {
		return 0, err
	}
	w.log.Debug().Int("expired", n).Dur("took", time.Since(start)).Msg("Expiry sweep finished")
	return n, nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
