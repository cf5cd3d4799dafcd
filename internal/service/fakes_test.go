package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/webexam/internal/model"
	"github.com/stemsi/webexam/internal/repository"
)

// memDB is an in-memory stand-in for the Postgres schema. Every store view
// below shares its mutex, so each method is atomic like a single statement.
type memDB struct {
	mu       sync.Mutex
	exams    map[uuid.UUID]*model.ExamDefinition
	sessions map[uuid.UUID]*model.ExamSession
	answers  map[uuid.UUID]map[uuid.UUID]*model.UserAnswer
	results  map[uuid.UUID]*model.ExamResult // by session
	users    map[int]*model.User
	nextUser int
}

func newMemDB() *memDB {
	return &memDB{
		exams:    make(map[uuid.UUID]*model.ExamDefinition),
		sessions: make(map[uuid.UUID]*model.ExamSession),
		answers:  make(map[uuid.UUID]map[uuid.UUID]*model.UserAnswer),
		results:  make(map[uuid.UUID]*model.ExamResult),
		users:    make(map[int]*model.User),
	}
}

// ─── Exams ─────────────────────────────────────────────────────────────────

type memExams struct{ db *memDB }

func (m memExams) GetDefinition(_ context.Context, id uuid.UUID) (*model.ExamDefinition, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	def, ok := m.db.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *def
	cp.QuestionCount = len(def.Questions)
	return &cp, nil
}

func (m memExams) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	def, err := m.GetDefinition(ctx, id)
	if err != nil {
		return nil, err
	}
	return &def.Exam, nil
}

func (m memExams) Create(_ context.Context, def *model.ExamDefinition) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	def.ID = uuid.New()
	for i := range def.Questions {
		q := &def.Questions[i]
		q.ID = uuid.New()
		q.ExamID = def.ID
		for j := range q.Options {
			q.Options[j].ID = uuid.New()
			q.Options[j].QuestionID = q.ID
		}
	}
	def.QuestionCount = len(def.Questions)
	cp := *def
	m.db.exams[def.ID] = &cp
	return nil
}

func (m memExams) Update(_ context.Context, e *model.Exam) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	def, ok := m.db.exams[e.ID]
	if !ok {
		return repository.ErrNotFound
	}
	def.Title = e.Title
	def.Description = e.Description
	def.DurationMinutes = e.DurationMinutes
	def.PassingScore = e.PassingScore
	def.MaxAttempts = e.MaxAttempts
	return nil
}

func (m memExams) SetPublished(_ context.Context, id uuid.UUID, published bool) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	def, ok := m.db.exams[id]
	if !ok {
		return repository.ErrNotFound
	}
	def.IsPublished = published
	return nil
}

func (m memExams) Delete(_ context.Context, id uuid.UUID) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.exams[id]; !ok {
		return repository.ErrNotFound
	}
	for _, s := range m.db.sessions {
		if s.ExamID == id {
			return repository.ErrInUse
		}
	}
	delete(m.db.exams, id)
	return nil
}

func (m memExams) ListPublished(_ context.Context) ([]model.Exam, error) {
	return m.list(func(e *model.Exam) bool { return e.IsPublished }), nil
}

func (m memExams) ListByCreator(_ context.Context, userID int) ([]model.Exam, error) {
	return m.list(func(e *model.Exam) bool { return e.CreatedBy == userID }), nil
}

func (m memExams) list(keep func(*model.Exam) bool) []model.Exam {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []model.Exam
	for _, def := range m.db.exams {
		if keep(&def.Exam) {
			out = append(out, def.Exam)
		}
	}
	return out
}

// ─── Sessions ──────────────────────────────────────────────────────────────

type memSessions struct{ db *memDB }

func (m memSessions) Create(_ context.Context, s *model.ExamSession) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, existing := range m.db.sessions {
		if existing.UserID == s.UserID && existing.ExamID == s.ExamID &&
			existing.Status == model.SessionStatusInProgress {
			return repository.ErrDuplicate
		}
	}
	s.ID = uuid.New()
	s.CreatedAt = s.StartTime
	s.UpdatedAt = s.StartTime
	cp := *s
	m.db.sessions[s.ID] = &cp
	return nil
}

func (m memSessions) GetByID(_ context.Context, id uuid.UUID) (*model.ExamSession, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s, ok := m.db.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m memSessions) GetActive(_ context.Context, userID int, examID uuid.UUID) (*model.ExamSession, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, s := range m.db.sessions {
		if s.UserID == userID && s.ExamID == examID && s.Status == model.SessionStatusInProgress {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m memSessions) CountAttempts(_ context.Context, userID int, examID uuid.UUID) (int, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	n := 0
	for _, s := range m.db.sessions {
		if s.UserID == userID && s.ExamID == examID {
			n++
		}
	}
	return n, nil
}

func (m memSessions) CountByExam(_ context.Context, examID uuid.UUID) (int, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	n := 0
	for _, s := range m.db.sessions {
		if s.ExamID == examID {
			n++
		}
	}
	return n, nil
}

func (m memSessions) ListByUser(_ context.Context, userID int, examID *uuid.UUID) ([]model.ExamSession, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []model.ExamSession
	for _, s := range m.db.sessions {
		if s.UserID == userID && (examID == nil || s.ExamID == *examID) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (m memSessions) ListAttempts(_ context.Context, examID uuid.UUID) ([]model.ExamAttempt, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []model.ExamAttempt
	for _, s := range m.db.sessions {
		if s.ExamID != examID {
			continue
		}
		a := model.ExamAttempt{
			SessionID: s.ID,
			UserID:    s.UserID,
			Status:    s.Status,
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
		}
		if r, ok := m.db.results[s.ID]; ok {
			pct, passed := r.Percentage, r.IsPassed
			a.Percentage = &pct
			a.IsPassed = &passed
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (m memSessions) UpdateCursor(_ context.Context, id uuid.UUID, index int) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s, ok := m.db.sessions[id]
	if !ok || s.Status != model.SessionStatusInProgress {
		return repository.ErrStaleState
	}
	s.CurrentQuestionIndex = index
	return nil
}

func (m memSessions) Close(_ context.Context, id uuid.UUID, status model.SessionStatus, end time.Time) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s, ok := m.db.sessions[id]
	if !ok || s.Status != model.SessionStatusInProgress {
		return false, nil
	}
	s.Status = status
	s.EndTime = &end
	return true, nil
}

func (m memSessions) ExpireOverdue(_ context.Context, now time.Time) ([]model.ExamSession, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []model.ExamSession
	for _, s := range m.db.sessions {
		def, ok := m.db.exams[s.ExamID]
		if !ok || !s.Overdue(def.Duration(), now) {
			continue
		}
		end := s.Deadline(def.Duration())
		s.Status = model.SessionStatusExpired
		s.EndTime = &end
		out = append(out, *s)
	}
	return out, nil
}

func (m memSessions) Submit(_ context.Context, id uuid.UUID, end time.Time,
	score func([]model.UserAnswer) *model.ExamResult) (*model.ExamResult, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s, ok := m.db.sessions[id]
	if !ok || s.Status != model.SessionStatusInProgress {
		return nil, repository.ErrStaleState
	}
	if _, exists := m.db.results[id]; exists {
		return nil, repository.ErrDuplicate
	}
	var answers []model.UserAnswer
	for _, a := range m.db.answers[id] {
		answers = append(answers, *a)
	}
	result := score(answers)
	s.Status = model.SessionStatusSubmitted
	s.EndTime = &end
	result.ID = uuid.New()
	result.SessionID = id
	cp := *result
	m.db.results[id] = &cp
	return result, nil
}

// ─── Answers ───────────────────────────────────────────────────────────────

type memAnswers struct{ db *memDB }

func (m memAnswers) Upsert(_ context.Context, a *model.UserAnswer) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s, ok := m.db.sessions[a.SessionID]
	if !ok {
		return repository.ErrNotFound
	}
	if s.Status != model.SessionStatusInProgress {
		return repository.ErrStaleState
	}
	bySession, ok := m.db.answers[a.SessionID]
	if !ok {
		bySession = make(map[uuid.UUID]*model.UserAnswer)
		m.db.answers[a.SessionID] = bySession
	}
	if prev, ok := bySession[a.QuestionID]; ok {
		a.ID = prev.ID
	} else {
		a.ID = uuid.New()
	}
	cp := *a
	cp.SelectedOptionIDs = append([]uuid.UUID(nil), a.SelectedOptionIDs...)
	bySession[a.QuestionID] = &cp
	return nil
}

func (m memAnswers) Get(_ context.Context, sessionID, questionID uuid.UUID) (*model.UserAnswer, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	a, ok := m.db.answers[sessionID][questionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m memAnswers) ListBySession(_ context.Context, sessionID uuid.UUID) ([]model.UserAnswer, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []model.UserAnswer
	for _, a := range m.db.answers[sessionID] {
		out = append(out, *a)
	}
	return out, nil
}

// ─── Results ───────────────────────────────────────────────────────────────

type memResults struct{ db *memDB }

func (m memResults) join(r *model.ExamResult) model.SessionResult {
	s := m.db.sessions[r.SessionID]
	return model.SessionResult{ExamResult: *r, UserID: s.UserID, ExamID: s.ExamID}
}

func (m memResults) GetByID(_ context.Context, id uuid.UUID) (*model.SessionResult, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, r := range m.db.results {
		if r.ID == id {
			sr := m.join(r)
			return &sr, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m memResults) GetBySession(_ context.Context, sessionID uuid.UUID) (*model.SessionResult, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	r, ok := m.db.results[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	sr := m.join(r)
	return &sr, nil
}

func (m memResults) ListByUser(_ context.Context, userID int) ([]model.SessionResult, error) {
	return m.list(func(sr *model.SessionResult) bool { return sr.UserID == userID }), nil
}

func (m memResults) ListByExam(_ context.Context, examID uuid.UUID) ([]model.SessionResult, error) {
	return m.list(func(sr *model.SessionResult) bool { return sr.ExamID == examID }), nil
}

func (m memResults) list(keep func(*model.SessionResult) bool) []model.SessionResult {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []model.SessionResult
	for _, r := range m.db.results {
		sr := m.join(r)
		if keep(&sr) {
			out = append(out, sr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CalculatedAt.After(out[j].CalculatedAt) })
	return out
}

// ─── Users ─────────────────────────────────────────────────────────────────

type memUsers struct{ db *memDB }

func (m memUsers) Create(_ context.Context, u *model.User) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, existing := range m.db.users {
		if existing.Email == u.Email {
			return repository.ErrDuplicate
		}
	}
	m.db.nextUser++
	u.ID = m.db.nextUser
	cp := *u
	m.db.users[u.ID] = &cp
	return nil
}

func (m memUsers) GetByID(_ context.Context, id int) (*model.User, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	u, ok := m.db.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, u := range m.db.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m memUsers) List(_ context.Context) ([]model.User, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := make([]model.User, 0, len(m.db.users))
	for _, u := range m.db.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memUsers) SetActive(_ context.Context, id int, active bool) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	u, ok := m.db.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsActive = active
	return nil
}

func (m memUsers) UpdatePassword(_ context.Context, id int, hash string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	u, ok := m.db.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

// ─── Events ────────────────────────────────────────────────────────────────

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.SessionEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev model.SessionEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

// ─── Fixtures ──────────────────────────────────────────────────────────────

// clock is a settable time source for services under test.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// harness wires the services against one memDB.
type harness struct {
	db       *memDB
	clock    *clock
	events   *recordingPublisher
	sessions *ExamSessionService
	results  *ResultService
	exams    *ExamService
}

func newHarness() *harness {
	db := newMemDB()
	h := &harness{db: db, clock: newClock(), events: &recordingPublisher{}}
	log := zerolog.Nop()

	h.sessions = NewExamSessionService(memExams{db}, memSessions{db}, memAnswers{db}, h.events, log)
	h.sessions.now = h.clock.Now
	h.results = NewResultService(memResults{db}, memExams{db}, memSessions{db}, memAnswers{db}, h.events, log)
	h.results.now = h.clock.Now
	h.exams = NewExamService(memExams{db}, nil, memSessions{db}, log)
	return h
}

const (
	authorID  = 1
	studentID = 2
	otherID   = 3
)

// sampleExam is a published 30 minute exam worth 20 points:
//
//	Q1 single choice (5): A correct, B wrong
//	Q2 multiple choice (10): A, B, C correct, D wrong
//	Q3 text answer (5)
type sampleExam struct {
	def *model.ExamDefinition
	q1A uuid.UUID
	q1B uuid.UUID
	q2A uuid.UUID
	q2B uuid.UUID
	q2C uuid.UUID
	q2D uuid.UUID
}

func (h *harness) seedExam(maxAttempts int) *sampleExam {
	opt := func(text string, correct bool, order int) model.AnswerOption {
		return model.AnswerOption{ID: uuid.New(), Text: text, IsCorrect: correct, Order: order}
	}
	q1 := model.Question{ID: uuid.New(), Text: "2 + 2?", Type: model.QuestionTypeSingleChoice, Points: 5, Order: 1,
		Options: []model.AnswerOption{opt("4", true, 1), opt("5", false, 2)}}
	q2 := model.Question{ID: uuid.New(), Text: "Pick primes", Type: model.QuestionTypeMultipleChoice, Points: 10, Order: 2,
		Options: []model.AnswerOption{opt("2", true, 1), opt("3", true, 2), opt("5", true, 3), opt("4", false, 4)}}
	q3 := model.Question{ID: uuid.New(), Text: "Explain", Type: model.QuestionTypeTextAnswer, Points: 5, Order: 3}

	def := &model.ExamDefinition{
		Exam: model.Exam{
			ID:              uuid.New(),
			Title:           "Arithmetic",
			DurationMinutes: 30,
			PassingScore:    50,
			MaxAttempts:     maxAttempts,
			IsPublished:     true,
			CreatedBy:       authorID,
		},
		Questions: []model.Question{q1, q2, q3},
	}
	h.db.mu.Lock()
	h.db.exams[def.ID] = def
	h.db.mu.Unlock()

	return &sampleExam{
		def: def,
		q1A: q1.Options[0].ID, q1B: q1.Options[1].ID,
		q2A: q2.Options[0].ID, q2B: q2.Options[1].ID, q2C: q2.Options[2].ID, q2D: q2.Options[3].ID,
	}
}

func (e *sampleExam) question(i int) uuid.UUID {
	return e.def.Questions[i].ID
}

func strptr(s string) *string { return &s }
