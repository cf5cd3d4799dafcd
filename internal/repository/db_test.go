package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", pgx.ErrNoRows, ErrNotFound},
		{"wrapped no rows", fmt.Errorf("get: %w", pgx.ErrNoRows), ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, ErrDuplicate},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, ErrInUse},
		{"stale state passes through", ErrStaleState, ErrStaleState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate(tt.err)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("translate(nil) = %v", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Fatalf("translate(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"connect error", &pgconn.ConnectError{}, true},
		{"context canceled", context.Canceled, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransient(tt.err); got != tt.want {
				t.Fatalf("isTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRunRetriesTransientErrors(t *testing.T) {
	db := NewDB(nil, 3, time.Millisecond, zerolog.Nop())

	calls := 0
	err := db.run(context.Background(), "test", func(context.Context) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on third attempt, got err=%v calls=%d", err, calls)
	}
}

func TestRunStopsAfterBoundedAttempts(t *testing.T) {
	db := NewDB(nil, 2, time.Millisecond, zerolog.Nop())

	calls := 0
	err := db.run(context.Background(), "test", func(context.Context) error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "40P01" {
		t.Fatalf("expected last error to surface, got %v", err)
	}
}

func TestRunDoesNotRetryBusinessErrors(t *testing.T) {
	db := NewDB(nil, 5, time.Millisecond, zerolog.Nop())

	calls := 0
	err := db.run(context.Background(), "test", func(context.Context) error {
		calls++
		return &pgconn.PgError{Code: "23505"}
	})
	if calls != 1 || !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected a single attempt returning ErrDuplicate, got calls=%d err=%v", calls, err)
	}
}
