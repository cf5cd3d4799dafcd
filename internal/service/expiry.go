package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/webexam/internal/metrics"
	"github.com/stemsi/webexam/internal/model"
)

// sessionExpirer closes overdue running sessions on read. It is shared by
// every service that reads sessions.
type sessionExpirer struct {
	sessions SessionStore
	events   EventPublisher
	log      zerolog.Logger
}

// apply expires session in place when it is past its deadline at now. The end
// time is the nominal deadline, not the time the expiry was noticed. When
// another writer closed the session first, session is reloaded from the store.
func (x sessionExpirer) apply(ctx context.Context, session *model.ExamSession, def *model.ExamDefinition, now time.Time) error {
	if !session.Overdue(def.Duration(), now) {
		return nil
	}

	deadline := session.Deadline(def.Duration())
	closed, err := x.sessions.Close(ctx, session.ID, model.SessionStatusExpired, deadline)
	if err != nil {
		return fmt.Errorf("expire session: %w", err)
	}
	if !closed {
		fresh, err := x.sessions.GetByID(ctx, session.ID)
		if err != nil {
			return fmt.Errorf("reload session: %w", err)
		}
		*session = *fresh
		return nil
	}

	session.Status = model.SessionStatusExpired
	session.EndTime = &deadline

	metrics.SessionsExpired.WithLabelValues("lazy").Inc()
	x.events.Publish(ctx, model.SessionEvent{
		Type:      model.EventSessionExpired,
		ExamID:    session.ExamID,
		SessionID: session.ID,
		UserID:    session.UserID,
		At:        now,
	})
	x.log.Info().
		Str("session_id", session.ID.String()).
		Time("deadline", deadline).
		Msg("Exam session expired")
	return nil
}
