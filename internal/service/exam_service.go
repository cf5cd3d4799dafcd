package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/webexam/internal/model"
	"github.com/stemsi/webexam/internal/repository"
)

// ExamService handles exam authoring. Definitions are immutable once created
// apart from metadata and the published flag.
type ExamService struct {
	exams    ExamStore
	cache    ExamCacheInvalidator
	sessions SessionStore
	log      zerolog.Logger
}

// NewExamService creates a new ExamService. cache may be nil.
func NewExamService(exams ExamStore, cache ExamCacheInvalidator, sessions SessionStore, log zerolog.Logger) *ExamService {
	return &ExamService{
		exams:    exams,
		cache:    cache,
		sessions: sessions,
		log:      log.With().Str("component", "exam_service").Logger(),
	}
}

// CreateExam stores a new unpublished exam with its questions.
func (s *ExamService) CreateExam(ctx context.Context, actor Actor, req model.CreateExamRequest) (*model.ExamDefinition, error) {
	if !actor.CanAuthor() {
		return nil, ErrRoleNotAllowed
	}

	def := &model.ExamDefinition{
		Exam: model.Exam{
			Title:           strings.TrimSpace(req.Title),
			Description:     req.Description,
			DurationMinutes: req.DurationMinutes,
			PassingScore:    req.PassingScore,
			MaxAttempts:     req.MaxAttempts,
			CreatedBy:       actor.UserID,
		},
		Questions: make([]model.Question, 0, len(req.Questions)),
	}

	for i, qr := range req.Questions {
		q := model.Question{
			Text:   qr.Text,
			Type:   model.QuestionType(qr.Type),
			Points: qr.Points,
			Order:  qr.Order,
		}
		if q.Order == 0 {
			q.Order = i + 1
		}
		if q.Type.IsChoice() {
			if len(qr.Options) == 0 {
				return nil, ErrOptionRequired
			}
			for j, opt := range qr.Options {
				o := model.AnswerOption{Text: opt.Text, IsCorrect: opt.IsCorrect, Order: opt.Order}
				if o.Order == 0 {
					o.Order = j + 1
				}
				q.Options = append(q.Options, o)
			}
			sort.SliceStable(q.Options, func(a, b int) bool { return q.Options[a].Order < q.Options[b].Order })
		}
		def.Questions = append(def.Questions, q)
	}
	sort.SliceStable(def.Questions, func(a, b int) bool { return def.Questions[a].Order < def.Questions[b].Order })

	if err := s.exams.Create(ctx, def); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}

	s.log.Info().
		Str("exam_id", def.ID.String()).
		Int("created_by", actor.UserID).
		Int("questions", len(def.Questions)).
		Msg("Exam created")
	return def, nil
}

// UpdateExam changes exam metadata.
func (s *ExamService) UpdateExam(ctx context.Context, actor Actor, examID uuid.UUID, req model.UpdateExamRequest) (*model.Exam, error) {
	e, err := s.owned(ctx, actor, examID)
	if err != nil {
		return nil, err
	}

	e.Title = strings.TrimSpace(req.Title)
	e.Description = req.Description
	e.DurationMinutes = req.DurationMinutes
	e.PassingScore = req.PassingScore
	e.MaxAttempts = req.MaxAttempts
	if err := s.exams.Update(ctx, e); err != nil {
		return nil, s.storeErr("update exam", err)
	}

	if err := s.invalidate(ctx, examID); err != nil {
		return nil, err
	}
	return e, nil
}

// DeleteExam removes an exam that was never attempted.
func (s *ExamService) DeleteExam(ctx context.Context, actor Actor, examID uuid.UUID) error {
	if _, err := s.owned(ctx, actor, examID); err != nil {
		return err
	}

	n, err := s.sessions.CountByExam(ctx, examID)
	if err != nil {
		return fmt.Errorf("count sessions: %w", err)
	}
	if n > 0 {
		return ErrExamHasSessions
	}

	if err := s.exams.Delete(ctx, examID); err != nil {
		// A session was started between the count and the delete.
		if errors.Is(err, repository.ErrInUse) {
			return ErrExamHasSessions
		}
		return s.storeErr("delete exam", err)
	}

	if err := s.invalidate(ctx, examID); err != nil {
		return err
	}
	s.log.Info().Str("exam_id", examID.String()).Int("deleted_by", actor.UserID).Msg("Exam deleted")
	return nil
}

// PublishExam makes an exam available to takers.
func (s *ExamService) PublishExam(ctx context.Context, actor Actor, examID uuid.UUID) error {
	if _, err := s.owned(ctx, actor, examID); err != nil {
		return err
	}

	def, err := s.exams.GetDefinition(ctx, examID)
	if err != nil {
		return s.storeErr("get exam", err)
	}
	if len(def.Questions) == 0 {
		return ErrNoQuestions
	}
	for i := range def.Questions {
		q := &def.Questions[i]
		if !q.Type.IsChoice() {
			continue
		}
		correct := len(q.CorrectOptionIDs())
		if correct == 0 {
			return ErrNoCorrectOption
		}
		if q.Type == model.QuestionTypeSingleChoice && correct > 1 {
			s.log.Warn().
				Str("exam_id", examID.String()).
				Str("question_id", q.ID.String()).
				Int("correct_options", correct).
				Msg("Single choice question has several correct options")
		}
	}

	if err := s.exams.SetPublished(ctx, examID, true); err != nil {
		return s.storeErr("publish exam", err)
	}
	if err := s.invalidate(ctx, examID); err != nil {
		return err
	}
	s.log.Info().Str("exam_id", examID.String()).Msg("Exam published")
	return nil
}

// UnpublishExam withdraws an exam. Running sessions are not affected.
func (s *ExamService) UnpublishExam(ctx context.Context, actor Actor, examID uuid.UUID) error {
	if _, err := s.owned(ctx, actor, examID); err != nil {
		return err
	}
	if err := s.exams.SetPublished(ctx, examID, false); err != nil {
		return s.storeErr("unpublish exam", err)
	}
	if err := s.invalidate(ctx, examID); err != nil {
		return err
	}
	s.log.Info().Str("exam_id", examID.String()).Msg("Exam unpublished")
	return nil
}

// GetExam returns an exam with its questions. Only the author and admins
// see correctness flags and unpublished exams.
func (s *ExamService) GetExam(ctx context.Context, actor Actor, examID uuid.UUID) (*model.ExamView, error) {
	def, err := s.exams.GetDefinition(ctx, examID)
	if err != nil {
		return nil, s.storeErr("get exam", err)
	}

	author := actor.owns(&def.Exam)
	if !def.IsPublished && !author {
		return nil, ErrNotExamAuthor
	}

	v := &model.ExamView{Exam: def.Exam, Questions: make([]model.QuestionView, 0, len(def.Questions))}
	for i := range def.Questions {
		v.Questions = append(v.Questions, *model.NewQuestionView(&def.Questions[i], i, author))
	}
	return v, nil
}

// ListPublishedExams lists every published exam.
func (s *ExamService) ListPublishedExams(ctx context.Context) ([]model.Exam, error) {
	exams, err := s.exams.ListPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("list published exams: %w", err)
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, nil
}

// ListMyExams lists the exams authored by the actor.
func (s *ExamService) ListMyExams(ctx context.Context, actor Actor) ([]model.Exam, error) {
	if !actor.CanAuthor() {
		return nil, ErrRoleNotAllowed
	}
	exams, err := s.exams.ListByCreator(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, nil
}

// owned loads an exam the actor may manage.
func (s *ExamService) owned(ctx context.Context, actor Actor, examID uuid.UUID) (*model.Exam, error) {
	e, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, s.storeErr("get exam", err)
	}
	if !actor.owns(e) {
		return nil, ErrNotExamAuthor
	}
	return e, nil
}

func (s *ExamService) storeErr(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrExamNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

// invalidate drops the cached definition after a committed change. Failures
// are returned so the caller can repeat the change.
func (s *ExamService) invalidate(ctx context.Context, examID uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Invalidate(ctx, examID); err != nil {
		s.log.Error().Err(err).Str("exam_id", examID.String()).Msg("Failed to invalidate exam cache")
		return fmt.Errorf("invalidate exam cache: %w", err)
	}
	return nil
}
