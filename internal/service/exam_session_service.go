package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/webexam/internal/metrics"
	"github.com/stemsi/webexam/internal/model"
	"github.com/stemsi/webexam/internal/repository"
	"github.com/stemsi/webexam/internal/scoring"
)

// AnswerInput is an answer submitted for one question.
type AnswerInput struct {
	QuestionID        uuid.UUID
	SelectedOptionIDs []uuid.UUID
	AnswerText        *string
}

// ExamSessionService runs the exam-taking state machine: starting attempts,
// delivering questions, taking answers, expiring and submitting sessions.
// It holds no mutable state between calls; the stores are the authority.
type ExamSessionService struct {
	exams    ExamReader
	sessions SessionStore
	answers  AnswerStore
	events   EventPublisher
	expirer  sessionExpirer
	log      zerolog.Logger
	now      func() time.Time
}

// NewExamSessionService creates a new ExamSessionService. events may be nil.
func NewExamSessionService(
	exams ExamReader,
	sessions SessionStore,
	answers AnswerStore,
	events EventPublisher,
	log zerolog.Logger,
) *ExamSessionService {
	if events == nil {
		events = nopPublisher{}
	}
	log = log.With().Str("component", "exam_session_service").Logger()
	return &ExamSessionService{
		exams:    exams,
		sessions: sessions,
		answers:  answers,
		events:   events,
		expirer:  sessionExpirer{sessions: sessions, events: events, log: log},
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────────────

// StartExam opens a new attempt and returns it positioned on the first question.
func (s *ExamSessionService) StartExam(ctx context.Context, examID uuid.UUID, userID int) (*model.SessionView, error) {
	def, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if err := s.checkEligibility(ctx, def, userID); err != nil {
		return nil, err
	}

	session := &model.ExamSession{
		UserID:               userID,
		ExamID:               examID,
		StartTime:            s.now(),
		Status:               model.SessionStatusInProgress,
		CurrentQuestionIndex: 0,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		// A concurrent start won the race on the active-session constraint.
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrActiveSessionExists
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	metrics.SessionsStarted.Inc()
	s.publish(ctx, model.EventSessionStarted, session, nil)
	s.log.Info().
		Str("session_id", session.ID.String()).
		Str("exam_id", examID.String()).
		Int("user_id", userID).
		Msg("Exam session started")

	return s.view(session, def, true), nil
}

// CanStartExam reports whether the user may start a new attempt now. Business
// reasons yield false; only store failures are returned as errors.
func (s *ExamSessionService) CanStartExam(ctx context.Context, examID uuid.UUID, userID int) (bool, error) {
	def, err := s.loadExam(ctx, examID)
	if err != nil {
		if KindOf(err) != KindInternal {
			return false, nil
		}
		return false, err
	}
	if err := s.checkEligibility(ctx, def, userID); err != nil {
		if KindOf(err) != KindInternal {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetRemainingAttempts returns how many more attempts the user may start,
// never less than zero. A missing exam has no attempts.
func (s *ExamSessionService) GetRemainingAttempts(ctx context.Context, examID uuid.UUID, userID int) (int, error) {
	def, err := s.loadExam(ctx, examID)
	if err != nil {
		if errors.Is(err, ErrExamNotFound) {
			return 0, nil
		}
		return 0, err
	}

	used, err := s.sessions.CountAttempts(ctx, userID, examID)
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return max(0, def.MaxAttempts-used), nil
}

// checkEligibility verifies that def can be started by userID. A running
// session past its deadline is expired on the way.
func (s *ExamSessionService) checkEligibility(ctx context.Context, def *model.ExamDefinition, userID int) error {
	if !def.IsPublished {
		return ErrExamNotPublished
	}
	if len(def.Questions) == 0 {
		return ErrNoQuestions
	}

	active, err := s.sessions.GetActive(ctx, userID, def.ID)
	switch {
	case err == nil:
		if err := s.checkExpiry(ctx, active, def); err != nil {
			return err
		}
		if active.Status == model.SessionStatusInProgress {
			return ErrActiveSessionExists
		}
	case !errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("get active session: %w", err)
	}

	used, err := s.sessions.CountAttempts(ctx, userID, def.ID)
	if err != nil {
		return fmt.Errorf("count attempts: %w", err)
	}
	if used >= def.MaxAttempts {
		return ErrNoAttemptsLeft
	}
	return nil
}

// GetActiveSession returns the user's running session for an exam, or nil
// when there is none or it just ran out of time.
func (s *ExamSessionService) GetActiveSession(ctx context.Context, examID uuid.UUID, userID int) (*model.SessionView, error) {
	session, err := s.sessions.GetActive(ctx, userID, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active session: %w", err)
	}

	def, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if err := s.checkExpiry(ctx, session, def); err != nil {
		return nil, err
	}
	if session.Status != model.SessionStatusInProgress {
		return nil, nil
	}
	return s.view(session, def, true), nil
}

// GetSessionStatus returns a session of any status owned by the user.
func (s *ExamSessionService) GetSessionStatus(ctx context.Context, sessionID uuid.UUID, userID int) (*model.SessionView, error) {
	session, def, err := s.access(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	return s.view(session, def, true), nil
}

// GetUserSessions lists the user's sessions, newest first, optionally for one exam.
func (s *ExamSessionService) GetUserSessions(ctx context.Context, userID int, examID *uuid.UUID) ([]model.SessionView, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID, examID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	defs := make(map[uuid.UUID]*model.ExamDefinition)
	views := make([]model.SessionView, 0, len(sessions))
	for i := range sessions {
		session := &sessions[i]
		def, ok := defs[session.ExamID]
		if !ok {
			def, err = s.loadExam(ctx, session.ExamID)
			if err != nil {
				return nil, err
			}
			defs[session.ExamID] = def
		}
		if err := s.checkExpiry(ctx, session, def); err != nil {
			return nil, err
		}
		views = append(views, *s.view(session, def, false))
	}
	return views, nil
}

// SubmitExam closes a running session and scores it. A session can be
// submitted exactly once.
func (s *ExamSessionService) SubmitExam(ctx context.Context, sessionID uuid.UUID, userID int) (*model.ResultView, error) {
	session, def, err := s.activeAccess(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	end := s.now()
	result, err := s.sessions.Submit(ctx, session.ID, end, func(answers []model.UserAnswer) *model.ExamResult {
		byQuestion := make(map[uuid.UUID]*model.UserAnswer, len(answers))
		for i := range answers {
			byQuestion[answers[i].QuestionID] = &answers[i]
		}
		outcome := scoring.Evaluate(def, byQuestion)
		return &model.ExamResult{
			SessionID:        session.ID,
			TotalScore:       outcome.TotalScore,
			MaxPossibleScore: outcome.MaxPossibleScore,
			Percentage:       outcome.Percentage,
			IsPassed:         outcome.Passed,
			CalculatedAt:     end,
			Feedback:         outcome.Feedback,
		}
	})
	if err != nil {
		if errors.Is(err, repository.ErrStaleState) || errors.Is(err, repository.ErrDuplicate) {
			return nil, s.closedReason(ctx, session.ID)
		}
		return nil, fmt.Errorf("submit session: %w", err)
	}
	session.Status = model.SessionStatusSubmitted
	session.EndTime = &end

	metrics.SessionsSubmitted.Inc()
	pct := result.Percentage
	s.publishWith(ctx, model.SessionEvent{
		Type:       model.EventSessionSubmitted,
		ExamID:     session.ExamID,
		SessionID:  session.ID,
		UserID:     session.UserID,
		Percentage: &pct,
		At:         end,
	})
	s.log.Info().
		Str("session_id", session.ID.String()).
		Int("total_score", result.TotalScore).
		Int("max_score", result.MaxPossibleScore).
		Float64("percentage", result.Percentage).
		Bool("passed", result.IsPassed).
		Msg("Exam session submitted")

	return &model.ResultView{ExamResult: *result, ExamID: def.ID, ExamTitle: def.Title}, nil
}

// TerminateSession ends a running session on behalf of the exam's author
// or an admin. No result is recorded.
func (s *ExamSessionService) TerminateSession(ctx context.Context, sessionID uuid.UUID, actor Actor) (*model.SessionView, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	def, err := s.loadExam(ctx, session.ExamID)
	if err != nil {
		return nil, err
	}
	if !actor.owns(&def.Exam) {
		return nil, ErrNotExamAuthor
	}
	if err := s.checkExpiry(ctx, session, def); err != nil {
		return nil, err
	}
	if session.Status != model.SessionStatusInProgress {
		return nil, ErrSessionClosed
	}

	end := s.now()
	closed, err := s.sessions.Close(ctx, session.ID, model.SessionStatusTerminated, end)
	if err != nil {
		return nil, fmt.Errorf("terminate session: %w", err)
	}
	if !closed {
		return nil, s.closedReason(ctx, session.ID)
	}
	session.Status = model.SessionStatusTerminated
	session.EndTime = &end

	metrics.SessionsTerminated.Inc()
	s.publish(ctx, model.EventSessionTerminated, session, nil)
	s.log.Info().
		Str("session_id", session.ID.String()).
		Int("terminated_by", actor.UserID).
		Msg("Exam session terminated")

	return s.view(session, def, false), nil
}

// SweepExpiredSessions expires every running session past its deadline and
// returns how many were expired.
func (s *ExamSessionService) SweepExpiredSessions(ctx context.Context) (int, error) {
	expired, err := s.sessions.ExpireOverdue(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("expire overdue sessions: %w", err)
	}

	for i := range expired {
		s.publish(ctx, model.EventSessionExpired, &expired[i], nil)
	}
	if len(expired) > 0 {
		metrics.SessionsExpired.WithLabelValues("sweep").Add(float64(len(expired)))
		s.log.Info().Int("expired", len(expired)).Msg("Expired overdue exam sessions")
	}
	return len(expired), nil
}

// ─── Question delivery ─────────────────────────────────────────────────────

// GetNextQuestion advances the cursor past an answered question and returns
// the question now under it. An unanswered current question is returned
// again. nil means every question has been reached.
func (s *ExamSessionService) GetNextQuestion(ctx context.Context, sessionID uuid.UUID, userID int) (*model.QuestionView, error) {
	session, def, err := s.activeAccess(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	index := session.CurrentQuestionIndex
	current, ok := def.QuestionAt(index)
	if !ok {
		return nil, nil
	}

	if _, err := s.answers.Get(ctx, session.ID, current.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewQuestionView(current, index, false), nil
		}
		return nil, fmt.Errorf("get answer: %w", err)
	}

	next := index + 1
	if next >= len(def.Questions) {
		return nil, nil
	}
	if err := s.sessions.UpdateCursor(ctx, session.ID, next); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, s.closedReason(ctx, session.ID)
		}
		return nil, fmt.Errorf("update cursor: %w", err)
	}
	session.CurrentQuestionIndex = next

	q, _ := def.QuestionAt(next)
	return model.NewQuestionView(q, next, false), nil
}

// GetQuestion returns a question of the session's exam by id.
func (s *ExamSessionService) GetQuestion(ctx context.Context, sessionID, questionID uuid.UUID, userID int) (*model.QuestionView, error) {
	_, def, err := s.activeAccess(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	q, index, ok := def.Question(questionID)
	if !ok {
		return nil, ErrQuestionNotFound
	}
	return model.NewQuestionView(q, index, false), nil
}

// ─── Answer intake ─────────────────────────────────────────────────────────

// SubmitAnswer validates an answer against its question type and stores it,
// replacing any earlier answer to the same question.
func (s *ExamSessionService) SubmitAnswer(ctx context.Context, sessionID uuid.UUID, userID int, in AnswerInput) error {
	session, def, err := s.activeAccess(ctx, sessionID, userID)
	if err != nil {
		return err
	}

	q, _, ok := def.Question(in.QuestionID)
	if !ok {
		return ErrQuestionNotFound
	}

	selected, err := validateAnswer(q, in)
	if err != nil {
		return err
	}

	answer := &model.UserAnswer{
		SessionID:         session.ID,
		QuestionID:        q.ID,
		AnswerText:        in.AnswerText,
		SelectedOptionIDs: selected,
		AnsweredAt:        s.now(),
	}
	if err := s.answers.Upsert(ctx, answer); err != nil {
		// The session was closed after the access check.
		if errors.Is(err, repository.ErrStaleState) {
			return s.closedReason(ctx, session.ID)
		}
		return fmt.Errorf("save answer: %w", err)
	}

	metrics.AnswersSaved.Inc()
	s.publish(ctx, model.EventAnswerSaved, session, &q.ID)
	s.log.Debug().
		Str("session_id", session.ID.String()).
		Str("question_id", q.ID.String()).
		Msg("Answer saved")
	return nil
}

// validateAnswer applies the per-type rules and returns the de-duplicated
// option selection to store. Free-text questions store no options.
func validateAnswer(q *model.Question, in AnswerInput) ([]uuid.UUID, error) {
	selected := make([]uuid.UUID, 0, len(in.SelectedOptionIDs))
	seen := make(map[uuid.UUID]struct{}, len(in.SelectedOptionIDs))
	for _, id := range in.SelectedOptionIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		selected = append(selected, id)
	}

	switch q.Type {
	case model.QuestionTypeSingleChoice:
		if len(selected) > 1 {
			return nil, ErrTooManyOptions
		}
	case model.QuestionTypeMultipleChoice:
		if len(selected) == 0 {
			return nil, ErrOptionRequired
		}
	case model.QuestionTypeTextAnswer:
		if in.AnswerText == nil || strings.TrimSpace(*in.AnswerText) == "" {
			return nil, ErrAnswerTextRequired
		}
		return nil, nil
	case model.QuestionTypeCodeAnswer:
		return nil, nil
	}

	for _, id := range selected {
		if !q.HasOption(id) {
			return nil, ErrUnknownOption
		}
	}
	return selected, nil
}

// ─── Access guard & expiry ─────────────────────────────────────────────────

func (s *ExamSessionService) getSession(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// access loads a session owned by userID together with its exam and applies
// the expiry check.
func (s *ExamSessionService) access(ctx context.Context, sessionID uuid.UUID, userID int) (*model.ExamSession, *model.ExamDefinition, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if session.UserID != userID {
		return nil, nil, ErrSessionNotOwned
	}

	def, err := s.loadExam(ctx, session.ExamID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.checkExpiry(ctx, session, def); err != nil {
		return nil, nil, err
	}
	return session, def, nil
}

// activeAccess is access restricted to sessions still in progress.
func (s *ExamSessionService) activeAccess(ctx context.Context, sessionID uuid.UUID, userID int) (*model.ExamSession, *model.ExamDefinition, error) {
	session, def, err := s.access(ctx, sessionID, userID)
	if err != nil {
		return nil, nil, err
	}
	switch session.Status {
	case model.SessionStatusInProgress:
		return session, def, nil
	case model.SessionStatusExpired:
		return nil, nil, ErrSessionExpired
	default:
		return nil, nil, ErrSessionClosed
	}
}

// checkExpiry expires an overdue running session in place.
func (s *ExamSessionService) checkExpiry(ctx context.Context, session *model.ExamSession, def *model.ExamDefinition) error {
	return s.expirer.apply(ctx, session, def, s.now())
}

// closedReason reloads a session that lost a state race and reports why it
// is no longer running.
func (s *ExamSessionService) closedReason(ctx context.Context, sessionID uuid.UUID) error {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status == model.SessionStatusExpired {
		return ErrSessionExpired
	}
	return ErrSessionClosed
}

// ─── Helpers ───────────────────────────────────────────────────────────────

func (s *ExamSessionService) loadExam(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	def, err := s.exams.GetDefinition(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return def, nil
}

func (s *ExamSessionService) view(session *model.ExamSession, def *model.ExamDefinition, withCurrent bool) *model.SessionView {
	v := &model.SessionView{
		ID:                   session.ID,
		ExamID:               session.ExamID,
		ExamTitle:            def.Title,
		Status:               session.Status,
		StartTime:            session.StartTime,
		EndTime:              session.EndTime,
		CurrentQuestionIndex: session.CurrentQuestionIndex,
		TotalQuestions:       len(def.Questions),
		TimeRemainingSeconds: session.RemainingSeconds(def.Duration(), s.now()),
		IsExpired:            session.Status == model.SessionStatusExpired,
		IsSubmitted:          session.Status == model.SessionStatusSubmitted,
	}
	if withCurrent && session.Status == model.SessionStatusInProgress {
		if q, ok := def.QuestionAt(session.CurrentQuestionIndex); ok {
			v.CurrentQuestion = model.NewQuestionView(q, session.CurrentQuestionIndex, false)
		}
	}
	return v
}

func (s *ExamSessionService) publish(ctx context.Context, typ string, session *model.ExamSession, questionID *uuid.UUID) {
	s.publishWith(ctx, model.SessionEvent{
		Type:       typ,
		ExamID:     session.ExamID,
		SessionID:  session.ID,
		UserID:     session.UserID,
		QuestionID: questionID,
		At:         s.now(),
	})
}

func (s *ExamSessionService) publishWith(ctx context.Context, ev model.SessionEvent) {
	s.events.Publish(ctx, ev)
}
