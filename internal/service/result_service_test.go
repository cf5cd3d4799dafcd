package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/webexam/internal/model"
)

// submitWith runs a full attempt answering Q1 with q1 and Q2 with q2.
func submitWith(t *testing.T, h *harness, exam *sampleExam, userID int, q1, q2 []uuid.UUID) *model.ResultView {
	t.Helper()
	ctx := context.Background()
	v, err := h.sessions.StartExam(ctx, exam.def.ID, userID)
	if err != nil {
		t.Fatalf("StartExam() error = %v", err)
	}
	answers := []AnswerInput{
		{QuestionID: exam.question(0), SelectedOptionIDs: q1},
		{QuestionID: exam.question(1), SelectedOptionIDs: q2},
	}
	for _, in := range answers {
		if len(in.SelectedOptionIDs) == 0 {
			continue
		}
		if err := h.sessions.SubmitAnswer(ctx, v.ID, userID, in); err != nil {
			t.Fatalf("SubmitAnswer() error = %v", err)
		}
	}
	res, err := h.sessions.SubmitExam(ctx, v.ID, userID)
	if err != nil {
		t.Fatalf("SubmitExam() error = %v", err)
	}
	h.clock.Advance(time.Minute)
	return res
}

func TestGetResultBySession(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	exam := h.seedExam(1)
	res := submitWith(t, h, exam, studentID, []uuid.UUID{exam.q1A}, nil)

	got, err := h.results.GetResultBySession(ctx, res.SessionID, studentID)
	if err != nil {
		t.Fatalf("GetResultBySession() error = %v", err)
	}
	if got.ID != res.ID || got.ExamTitle != "Arithmetic" || got.TotalScore != 5 {
		t.Fatalf("result = %+v", got)
	}

	if _, err := h.results.GetResultBySession(ctx, res.SessionID, otherID); !errors.Is(err, ErrSessionNotOwned) {
		t.Fatalf("err = %v, want ErrSessionNotOwned", err)
	}

	running := mustStart(t, h, exam.def.ID, otherID)
	if _, err := h.results.GetResultBySession(ctx, running.ID, otherID); !errors.Is(err, ErrResultNotFound) {
		t.Fatalf("err = %v, want ErrResultNotFound", err)
	}
}

func TestGetResultDetails(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	exam := h.seedExam(1)
	res := submitWith(t, h, exam, studentID, []uuid.UUID{exam.q1B}, []uuid.UUID{exam.q2A, exam.q2B, exam.q2C})

	if _, err := h.results.GetResultDetails(ctx, res.ID, otherID); !errors.Is(err, ErrResultNotOwned) {
		t.Fatalf("err = %v, want ErrResultNotOwned", err)
	}

	d, err := h.results.GetResultDetails(ctx, res.ID, studentID)
	if err != nil {
		t.Fatalf("GetResultDetails() error = %v", err)
	}
	if len(d.Questions) != 3 {
		t.Fatalf("questions = %d, want 3", len(d.Questions))
	}

	q1, q2, q3 := d.Questions[0], d.Questions[1], d.Questions[2]
	if q1.PointsEarned != 0 || q1.IsCorrect || len(q1.CorrectOptionIDs) != 1 || q1.CorrectOptionIDs[0] != exam.q1A {
		t.Errorf("q1 = %+v", q1)
	}
	if q2.PointsEarned != 10 || !q2.IsCorrect || len(q2.SelectedOptionIDs) != 3 {
		t.Errorf("q2 = %+v", q2)
	}
	if q3.PointsEarned != 0 || q3.AnswerText != nil || len(q3.SelectedOptionIDs) != 0 {
		t.Errorf("q3 = %+v", q3)
	}

	var sum int
	for _, q := range d.Questions {
		sum += q.PointsEarned
	}
	if sum != d.TotalScore {
		t.Errorf("breakdown sums to %d, result says %d", sum, d.TotalScore)
	}
}

func TestGetUserResults(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	exam := h.seedExam(3)
	other := h.seedExam(1)

	// Scores: 0%, 5+3 = 40%, 0% on exam and 75% on other.
	submitWith(t, h, exam, studentID, nil, nil)
	submitWith(t, h, exam, studentID, []uuid.UUID{exam.q1A}, []uuid.UUID{exam.q2A})
	submitWith(t, h, exam, studentID, []uuid.UUID{exam.q1B}, []uuid.UUID{exam.q2D})
	last := submitWith(t, h, other, studentID, []uuid.UUID{other.q1A}, []uuid.UUID{other.q2A, other.q2B, other.q2C})

	got, err := h.results.GetUserResults(ctx, studentID)
	if err != nil {
		t.Fatalf("GetUserResults() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("groups = %d, want 2", len(got))
	}

	if got[0].ExamID != other.def.ID || got[0].BestPercentage != 75 || !got[0].HasPassed || got[0].AttemptCount != 1 {
		t.Errorf("latest group = %+v", got[0])
	}
	if !got[0].LastAttemptDate.Equal(last.CalculatedAt) {
		t.Errorf("LastAttemptDate = %v, want %v", got[0].LastAttemptDate, last.CalculatedAt)
	}
	if got[1].ExamID != exam.def.ID || got[1].BestPercentage != 40 || got[1].BestScore != 8 || got[1].AttemptCount != 3 || got[1].HasPassed {
		t.Errorf("older group = %+v", got[1])
	}

	empty, err := h.results.GetUserResults(ctx, otherID)
	if err != nil || len(empty) != 0 {
		t.Fatalf("no results: %+v, %v", empty, err)
	}
}

func TestStatistics(t *testing.T) {
	examID := uuid.New()
	result := func(pct float64, passed bool) model.SessionResult {
		return model.SessionResult{ExamResult: model.ExamResult{Percentage: pct, IsPassed: passed}, ExamID: examID}
	}

	stats := Statistics(examID, []model.SessionResult{
		result(100, true),
		result(89.99, true),
		result(75, true),
		result(74.5, false),
		result(59.99, false),
		result(39.99, false),
	})

	if stats.TotalAttempts != 6 || stats.PassedAttempts != 3 {
		t.Fatalf("attempts = %d/%d", stats.PassedAttempts, stats.TotalAttempts)
	}
	if stats.PassRate != 50 {
		t.Errorf("PassRate = %v, want 50", stats.PassRate)
	}
	// (100 + 89.99 + 75 + 74.5 + 59.99 + 39.99) / 6 = 73.245
	if stats.AverageScore != 73.24 {
		t.Errorf("AverageScore = %v, want 73.24", stats.AverageScore)
	}

	want := map[string]int{"90-100": 1, "75-89": 2, "60-74": 1, "40-59": 1, "0-39": 1}
	for _, b := range stats.ScoreDistribution {
		if b.Count != want[b.Range] {
			t.Errorf("bucket %s = %d, want %d", b.Range, b.Count, want[b.Range])
		}
	}
}

func TestStatisticsEmpty(t *testing.T) {
	stats := Statistics(uuid.New(), nil)
	if stats.TotalAttempts != 0 || stats.AverageScore != 0 || stats.PassRate != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(stats.ScoreDistribution) != 5 {
		t.Fatalf("buckets = %d, want 5", len(stats.ScoreDistribution))
	}
}

func TestGetExamStatistics(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	exam := h.seedExam(2)
	submitWith(t, h, exam, studentID, []uuid.UUID{exam.q1A}, []uuid.UUID{exam.q2A, exam.q2B, exam.q2C})
	submitWith(t, h, exam, otherID, nil, nil)

	if _, err := h.results.GetExamStatistics(ctx, exam.def.ID, student); !errors.Is(err, ErrNotExamAuthor) {
		t.Fatalf("err = %v, want ErrNotExamAuthor", err)
	}

	stats, err := h.results.GetExamStatistics(ctx, exam.def.ID, teacher)
	if err != nil {
		t.Fatalf("GetExamStatistics() error = %v", err)
	}
	if stats.TotalAttempts != 2 || stats.PassedAttempts != 1 || stats.AverageScore != 37.5 || stats.PassRate != 50 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestGetExamAttempts(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	exam := h.seedExam(2)

	submitWith(t, h, exam, studentID, []uuid.UUID{exam.q1A}, nil)
	running := mustStart(t, h, exam.def.ID, otherID)
	h.clock.Advance(time.Hour)

	if _, err := h.results.GetExamAttempts(ctx, exam.def.ID, student); !errors.Is(err, ErrNotExamAuthor) {
		t.Fatalf("err = %v, want ErrNotExamAuthor", err)
	}

	attempts, err := h.results.GetExamAttempts(ctx, exam.def.ID, admin)
	if err != nil {
		t.Fatalf("GetExamAttempts() error = %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(attempts))
	}

	latest, first := attempts[0], attempts[1]
	if latest.SessionID != running.ID || latest.Status != model.SessionStatusExpired || latest.Percentage != nil {
		t.Errorf("latest = %+v", latest)
	}
	if latest.EndTime == nil || !latest.EndTime.Equal(running.StartTime.Add(30*time.Minute)) {
		t.Errorf("latest end = %v", latest.EndTime)
	}
	if first.Status != model.SessionStatusSubmitted || first.Percentage == nil || *first.Percentage != 25 {
		t.Errorf("first = %+v", first)
	}

	var expired []model.SessionEvent
	h.events.mu.Lock()
	for _, ev := range h.events.events {
		if ev.Type == model.EventSessionExpired {
			expired = append(expired, ev)
		}
	}
	h.events.mu.Unlock()
	if len(expired) != 1 || expired[0].SessionID != running.ID || expired[0].UserID != otherID {
		t.Errorf("expired events = %+v, want one for the running session", expired)
	}
}

// terminatingSessions closes the session as terminated just before the
// expiry write, so the expiry finds it already closed.
type terminatingSessions struct {
	memSessions
}

func (m terminatingSessions) Close(ctx context.Context, id uuid.UUID, status model.SessionStatus, end time.Time) (bool, error) {
	if _, err := m.memSessions.Close(ctx, id, model.SessionStatusTerminated, end.Add(-time.Minute)); err != nil {
		return false, err
	}
	return m.memSessions.Close(ctx, id, status, end)
}

func TestGetExamAttemptsAdoptsConcurrentClose(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	exam := h.seedExam(1)
	running := mustStart(t, h, exam.def.ID, studentID)
	h.clock.Advance(time.Hour)

	h.results = NewResultService(memResults{h.db}, memExams{h.db}, terminatingSessions{memSessions{h.db}},
		memAnswers{h.db}, h.events, zerolog.Nop())
	h.results.now = h.clock.Now

	attempts, err := h.results.GetExamAttempts(ctx, exam.def.ID, admin)
	if err != nil {
		t.Fatalf("GetExamAttempts() error = %v", err)
	}
	if len(attempts) != 1 || attempts[0].SessionID != running.ID {
		t.Fatalf("attempts = %+v", attempts)
	}
	if attempts[0].Status != model.SessionStatusTerminated || attempts[0].EndTime == nil {
		t.Fatalf("attempt = %+v, want the stored TERMINATED state", attempts[0])
	}
	for _, typ := range h.events.types() {
		if typ == model.EventSessionExpired {
			t.Fatal("expiry event published for a session closed by someone else")
		}
	}
}
