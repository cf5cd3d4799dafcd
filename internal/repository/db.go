package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
	// ErrStaleState is returned when a conditional state transition matched no row.
	ErrStaleState = errors.New("record is not in the expected state")
	// ErrInUse is returned when a row is still referenced by other rows.
	ErrInUse = errors.New("record is still referenced")
)

// DB is the connection pool shared by all repositories together with the
// retry policy for transient failures.
type DB struct {
	pool     *pgxpool.Pool
	attempts int
	backoff  time.Duration
	log      zerolog.Logger
}

// NewDB wraps pool. attempts below 1 is treated as 1.
func NewDB(pool *pgxpool.Pool, attempts int, backoff time.Duration, log zerolog.Logger) *DB {
	if attempts < 1 {
		attempts = 1
	}
	return &DB{
		pool:     pool,
		attempts: attempts,
		backoff:  backoff,
		log:      log.With().Str("component", "db").Logger(),
	}
}

// Pool exposes the underlying pool.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// run executes fn, retrying transient connection failures with linear backoff.
func (db *DB) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= db.attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !isTransient(err) || attempt == db.attempts {
			break
		}

		db.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("Transient database error, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(db.backoff * time.Duration(attempt)):
		}
	}
	return translate(err)
}

// tx runs fn inside a transaction under the same retry policy.
func (db *DB) tx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	return db.run(ctx, op, func(ctx context.Context) error {
		return pgx.BeginFunc(ctx, db.pool, fn)
	})
}

// isTransient reports whether err is safe to retry: the statement never
// reached the server, the connection could not be established, or the
// transaction was aborted by a serialization conflict or deadlock.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if pgconn.SafeToRetry(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// translate maps driver errors onto the repository sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrDuplicate
		case "23503":
			return ErrInUse
		}
	}
	return err
}
