package scoring

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/webexam/internal/model"
)

func choiceQuestion(typ model.QuestionType, points int, correct []bool) (*model.Question, []uuid.UUID) {
	q := &model.Question{ID: uuid.New(), Type: typ, Points: points}
	ids := make([]uuid.UUID, len(correct))
	for i, c := range correct {
		ids[i] = uuid.New()
		q.Options = append(q.Options, model.AnswerOption{ID: ids[i], QuestionID: q.ID, IsCorrect: c, Order: i})
	}
	return q, ids
}

func answer(selected ...uuid.UUID) *model.UserAnswer {
	return &model.UserAnswer{SelectedOptionIDs: selected}
}

func TestSingleChoice(t *testing.T) {
	q, opts := choiceQuestion(model.QuestionTypeSingleChoice, 5, []bool{true, false, false})
	correct, wrong := opts[0], opts[1]

	tests := []struct {
		name string
		a    *model.UserAnswer
		want int
	}{
		{"correct option earns full points", answer(correct), 5},
		{"wrong option earns nothing", answer(wrong), 0},
		{"empty selection earns nothing", answer(), 0},
		{"unanswered earns nothing", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Question(q, tt.a); got != tt.want {
				t.Fatalf("Question() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSingleChoiceSeveralCorrect(t *testing.T) {
	q, opts := choiceQuestion(model.QuestionTypeSingleChoice, 4, []bool{true, true, false})
	if got := Question(q, answer(opts[1])); got != 4 {
		t.Fatalf("any correct option should earn full credit, got %d", got)
	}
}

func TestMultipleChoicePartialCredit(t *testing.T) {
	// Options A, B, C correct; D wrong.
	q, opts := choiceQuestion(model.QuestionTypeMultipleChoice, 10, []bool{true, true, true, false})
	a, b, c, d := opts[0], opts[1], opts[2], opts[3]

	tests := []struct {
		name string
		a    *model.UserAnswer
		want int
	}{
		{"all correct", answer(a, b, c), 10},
		{"two of three", answer(a, b), 6},
		{"one correct one wrong", answer(a, d), 2},
		{"only wrong", answer(d), 0},
		{"all options", answer(a, b, c, d), 9},
		{"nothing selected", answer(), 0},
		{"duplicates count once", answer(a, a, b), 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Question(q, tt.a); got != tt.want {
				t.Fatalf("Question() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMultipleChoiceWithoutCorrectOptions(t *testing.T) {
	q, opts := choiceQuestion(model.QuestionTypeMultipleChoice, 10, []bool{false, false})
	if got := Question(q, answer(opts[0])); got != 0 {
		t.Fatalf("question without correct options should score 0, got %d", got)
	}
}

func TestFreeTextNeverScores(t *testing.T) {
	text := "a thorough essay"
	for _, typ := range []model.QuestionType{model.QuestionTypeTextAnswer, model.QuestionTypeCodeAnswer} {
		q := &model.Question{ID: uuid.New(), Type: typ, Points: 7}
		if got := Question(q, &model.UserAnswer{AnswerText: &text}); got != 0 {
			t.Fatalf("%s scored %d, want 0", typ, got)
		}
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		total, max int
		want       float64
	}{
		{0, 0, 0},
		{5, 0, 0},
		{0, 10, 0},
		{10, 10, 100},
		{2, 3, 66.67},
		{1, 3, 33.33},
		{1, 800, 0.12},
		{3, 800, 0.38},
		{6, 15, 40},
	}

	for _, tt := range tests {
		if got := Percentage(tt.total, tt.max); got != tt.want {
			t.Errorf("Percentage(%d, %d) = %v, want %v", tt.total, tt.max, got, tt.want)
		}
	}
}

func TestFeedback(t *testing.T) {
	tests := []struct {
		pct    float64
		passed bool
		want   string
	}{
		{95, true, FeedbackExcellent},
		{90, true, FeedbackExcellent},
		{89.99, true, FeedbackGood},
		{75, true, FeedbackGood},
		{60, true, FeedbackPassed},
		{74, false, FeedbackAlmost},
		{50, false, FeedbackAlmost},
		{49.99, false, FeedbackPrepare},
		{0, false, FeedbackPrepare},
	}

	for _, tt := range tests {
		if got := Feedback(tt.pct, tt.passed); got != tt.want {
			t.Errorf("Feedback(%v, %v) = %q, want %q", tt.pct, tt.passed, got, tt.want)
		}
	}
}

func TestEvaluate(t *testing.T) {
	single, sOpts := choiceQuestion(model.QuestionTypeSingleChoice, 5, []bool{false, true})
	multi, mOpts := choiceQuestion(model.QuestionTypeMultipleChoice, 10, []bool{true, true, true, false})
	text := &model.Question{ID: uuid.New(), Type: model.QuestionTypeTextAnswer, Points: 5}

	def := &model.ExamDefinition{
		Exam:      model.Exam{PassingScore: 50},
		Questions: []model.Question{*single, *multi, *text},
	}
	essay := "answer"
	answers := map[uuid.UUID]*model.UserAnswer{
		single.ID: answer(sOpts[1]),
		multi.ID:  answer(mOpts[0], mOpts[1]),
		text.ID:   {AnswerText: &essay},
	}

	out := Evaluate(def, answers)
	if out.TotalScore != 11 || out.MaxPossibleScore != 20 {
		t.Fatalf("score = %d/%d, want 11/20", out.TotalScore, out.MaxPossibleScore)
	}
	if out.Percentage != 55 || !out.Passed || out.Feedback != FeedbackPassed {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(out.Questions) != 3 || out.Questions[1].Earned != 6 || out.Questions[2].Earned != 0 {
		t.Fatalf("unexpected per-question scores %+v", out.Questions)
	}
}

func TestEvaluateEmptyExam(t *testing.T) {
	out := Evaluate(&model.ExamDefinition{Exam: model.Exam{PassingScore: 60}}, nil)
	if out.TotalScore != 0 || out.MaxPossibleScore != 0 || out.Percentage != 0 {
		t.Fatalf("empty exam should score zero, got %+v", out)
	}
	if out.Passed {
		t.Fatal("empty exam with a positive threshold should not pass")
	}
}
