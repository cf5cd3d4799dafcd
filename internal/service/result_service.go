package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stemsi/webexam/internal/model"
	"github.com/stemsi/webexam/internal/repository"
	"github.com/stemsi/webexam/internal/scoring"
)

// scoreBuckets are the statistics distribution ranges, highest first.
var scoreBuckets = []struct {
	label string
	min   int
}{
	{"90-100", 90},
	{"75-89", 75},
	{"60-74", 60},
	{"40-59", 40},
	{"0-39", 0},
}

// ResultService reads scored sessions for takers and authors.
type ResultService struct {
	results  ResultStore
	exams    ExamReader
	sessions SessionStore
	answers  AnswerStore
	expirer  sessionExpirer
	log      zerolog.Logger
	now      func() time.Time
}

// NewResultService creates a new ResultService. events receives the expiries
// noticed while listing attempts and may be nil.
func NewResultService(
	results ResultStore,
	exams ExamReader,
	sessions SessionStore,
	answers AnswerStore,
	events EventPublisher,
	log zerolog.Logger,
) *ResultService {
	if events == nil {
		events = nopPublisher{}
	}
	log = log.With().Str("component", "result_service").Logger()
	return &ResultService{
		results:  results,
		exams:    exams,
		sessions: sessions,
		answers:  answers,
		expirer:  sessionExpirer{sessions: sessions, events: events, log: log},
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetResultBySession returns the result of one of the user's sessions.
func (s *ResultService) GetResultBySession(ctx context.Context, sessionID uuid.UUID, userID int) (*model.ResultView, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.UserID != userID {
		return nil, ErrSessionNotOwned
	}

	r, err := s.results.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, s.resultErr(err)
	}
	def, err := s.exam(ctx, r.ExamID)
	if err != nil {
		return nil, err
	}
	return &model.ResultView{ExamResult: r.ExamResult, ExamID: def.ID, ExamTitle: def.Title}, nil
}

// GetResultDetails returns a result with a per-question breakdown.
func (s *ResultService) GetResultDetails(ctx context.Context, resultID uuid.UUID, userID int) (*model.ResultDetails, error) {
	r, err := s.results.GetByID(ctx, resultID)
	if err != nil {
		return nil, s.resultErr(err)
	}
	if r.UserID != userID {
		return nil, ErrResultNotOwned
	}

	def, err := s.exam(ctx, r.ExamID)
	if err != nil {
		return nil, err
	}
	answers, err := s.answers.ListBySession(ctx, r.SessionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	byQuestion := make(map[uuid.UUID]*model.UserAnswer, len(answers))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = &answers[i]
	}

	details := &model.ResultDetails{
		ResultView: model.ResultView{ExamResult: r.ExamResult, ExamID: def.ID, ExamTitle: def.Title},
		Questions:  make([]model.QuestionResult, 0, len(def.Questions)),
	}
	for i := range def.Questions {
		q := &def.Questions[i]
		a := byQuestion[q.ID]
		earned := scoring.Question(q, a)

		qr := model.QuestionResult{
			QuestionID:        q.ID,
			Text:              q.Text,
			Type:              q.Type,
			MaxPoints:         q.Points,
			PointsEarned:      earned,
			IsCorrect:         q.Points > 0 && earned == q.Points,
			SelectedOptionIDs: []uuid.UUID{},
			CorrectOptionIDs:  []uuid.UUID{},
		}
		for _, o := range q.Options {
			if o.IsCorrect {
				qr.CorrectOptionIDs = append(qr.CorrectOptionIDs, o.ID)
			}
		}
		if a != nil {
			qr.SelectedOptionIDs = append(qr.SelectedOptionIDs, a.SelectedOptionIDs...)
			qr.AnswerText = a.AnswerText
		}
		details.Questions = append(details.Questions, qr)
	}
	return details, nil
}

// GetUserResults summarises the user's results per exam, most recent exam first.
func (s *ResultService) GetUserResults(ctx context.Context, userID int) ([]model.UserExamResult, error) {
	results, err := s.results.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	byExam := make(map[uuid.UUID]*model.UserExamResult)
	order := make([]uuid.UUID, 0)
	for i := range results {
		r := &results[i]
		agg, ok := byExam[r.ExamID]
		if !ok {
			def, err := s.exam(ctx, r.ExamID)
			if err != nil {
				return nil, err
			}
			agg = &model.UserExamResult{
				ExamID:         r.ExamID,
				ExamTitle:      def.Title,
				BestScore:      r.TotalScore,
				MaxScore:       r.MaxPossibleScore,
				BestPercentage: r.Percentage,
			}
			byExam[r.ExamID] = agg
			order = append(order, r.ExamID)
		}

		agg.AttemptCount++
		agg.HasPassed = agg.HasPassed || r.IsPassed
		if r.Percentage > agg.BestPercentage {
			agg.BestPercentage = r.Percentage
			agg.BestScore = r.TotalScore
			agg.MaxScore = r.MaxPossibleScore
		}
		if r.CalculatedAt.After(agg.LastAttemptDate) {
			agg.LastAttemptDate = r.CalculatedAt
		}
	}

	out := make([]model.UserExamResult, 0, len(order))
	for _, id := range order {
		out = append(out, *byExam[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastAttemptDate.After(out[j].LastAttemptDate) })
	return out, nil
}

// GetExamStatistics aggregates every result of an exam for its author.
func (s *ResultService) GetExamStatistics(ctx context.Context, examID uuid.UUID, actor Actor) (*model.ExamStatistics, error) {
	def, err := s.exam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !actor.owns(&def.Exam) {
		return nil, ErrNotExamAuthor
	}

	results, err := s.results.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return Statistics(examID, results), nil
}

// Statistics computes attempt, pass and distribution figures over results.
// Each result lands in the bucket of its floored percentage.
func Statistics(examID uuid.UUID, results []model.SessionResult) *model.ExamStatistics {
	stats := &model.ExamStatistics{
		ExamID:            examID,
		TotalAttempts:     len(results),
		ScoreDistribution: make([]model.ScoreBucket, len(scoreBuckets)),
	}
	for i, b := range scoreBuckets {
		stats.ScoreDistribution[i].Range = b.label
	}
	if len(results) == 0 {
		return stats
	}

	sum := decimal.Zero
	for _, r := range results {
		sum = sum.Add(decimal.NewFromFloat(r.Percentage))
		if r.IsPassed {
			stats.PassedAttempts++
		}
		floor := int(math.Floor(r.Percentage))
		for i, b := range scoreBuckets {
			if floor >= b.min {
				stats.ScoreDistribution[i].Count++
				break
			}
		}
	}

	n := decimal.NewFromInt(int64(len(results)))
	stats.AverageScore = sum.Div(n).RoundBank(2).InexactFloat64()
	stats.PassRate = decimal.NewFromInt(int64(stats.PassedAttempts)).
		Mul(decimal.NewFromInt(100)).
		Div(n).
		RoundBank(2).
		InexactFloat64()
	return stats
}

// GetExamAttempts lists every session of an exam for its author, newest
// first. Running attempts past their deadline are expired on the way.
func (s *ResultService) GetExamAttempts(ctx context.Context, examID uuid.UUID, actor Actor) ([]model.ExamAttempt, error) {
	def, err := s.exam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !actor.owns(&def.Exam) {
		return nil, ErrNotExamAuthor
	}

	attempts, err := s.sessions.ListAttempts(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	now := s.now()
	for i := range attempts {
		a := &attempts[i]
		if a.Status != model.SessionStatusInProgress {
			continue
		}
		session := &model.ExamSession{
			ID:        a.SessionID,
			UserID:    a.UserID,
			ExamID:    examID,
			StartTime: a.StartTime,
			EndTime:   a.EndTime,
			Status:    a.Status,
		}
		if err := s.expirer.apply(ctx, session, def, now); err != nil {
			return nil, err
		}
		a.Status = session.Status
		a.EndTime = session.EndTime
	}
	if attempts == nil {
		attempts = []model.ExamAttempt{}
	}
	return attempts, nil
}

func (s *ResultService) exam(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	def, err := s.exams.GetDefinition(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return def, nil
}

func (s *ResultService) resultErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrResultNotFound
	}
	return fmt.Errorf("get result: %w", err)
}
