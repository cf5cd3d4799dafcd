// Package scoring computes exam results from recorded answers.
package scoring

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stemsi/webexam/internal/model"
)

// Feedback strings shown with a result.
const (
	FeedbackExcellent = "Excellent result!"
	FeedbackGood      = "Good result!"
	FeedbackPassed    = "Exam passed successfully."
	FeedbackAlmost    = "Almost there, try again!"
	FeedbackPrepare   = "You need to prepare better for the exam."
)

// QuestionScore is the outcome for a single question.
type QuestionScore struct {
	QuestionID uuid.UUID
	Points     int
	Earned     int
}

// Outcome is the full evaluation of a session.
type Outcome struct {
	TotalScore       int
	MaxPossibleScore int
	Percentage       float64
	Passed           bool
	Feedback         string
	Questions        []QuestionScore
}

// Evaluate scores every question of def against answers keyed by question id.
// Questions without an answer earn nothing.
func Evaluate(def *model.ExamDefinition, answers map[uuid.UUID]*model.UserAnswer) Outcome {
	out := Outcome{Questions: make([]QuestionScore, 0, len(def.Questions))}

	for i := range def.Questions {
		q := &def.Questions[i]
		earned := Question(q, answers[q.ID])
		out.TotalScore += earned
		out.MaxPossibleScore += q.Points
		out.Questions = append(out.Questions, QuestionScore{QuestionID: q.ID, Points: q.Points, Earned: earned})
	}

	out.Percentage = Percentage(out.TotalScore, out.MaxPossibleScore)
	out.Passed = out.Percentage >= float64(def.PassingScore)
	out.Feedback = Feedback(out.Percentage, out.Passed)
	return out
}

// Question returns the points earned for one question.
func Question(q *model.Question, a *model.UserAnswer) int {
	if a == nil {
		return 0
	}

	switch q.Type {
	case model.QuestionTypeSingleChoice:
		return singleChoice(q, a.SelectedOptionIDs)
	case model.QuestionTypeMultipleChoice:
		return multipleChoice(q, a.SelectedOptionIDs)
	default:
		// Text and code answers need manual grading.
		return 0
	}
}

func singleChoice(q *model.Question, selected []uuid.UUID) int {
	correct := q.CorrectOptionIDs()
	for _, id := range selected {
		if _, ok := correct[id]; ok {
			return q.Points
		}
	}
	return 0
}

// multipleChoice awards floor(points*correctSelected/correctCount) and takes
// one point off per wrong selection, never going below zero.
func multipleChoice(q *model.Question, selected []uuid.UUID) int {
	if len(selected) == 0 {
		return 0
	}
	correct := q.CorrectOptionIDs()
	if len(correct) == 0 {
		return 0
	}

	seen := make(map[uuid.UUID]struct{}, len(selected))
	var hits, misses int
	for _, id := range selected {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := correct[id]; ok {
			hits++
		} else {
			misses++
		}
	}

	score := q.Points*hits/len(correct) - misses
	if score < 0 {
		return 0
	}
	return score
}

// Percentage is total/max as a percentage rounded to two places with
// half-to-even rounding. An exam worth nothing scores 0.
func Percentage(total, max int) float64 {
	if max <= 0 {
		return 0
	}
	return decimal.NewFromInt(int64(total)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(max))).
		RoundBank(2).
		InexactFloat64()
}

// Feedback maps a percentage and pass flag to the result message.
func Feedback(percentage float64, passed bool) string {
	if passed {
		switch {
		case percentage >= 90:
			return FeedbackExcellent
		case percentage >= 75:
			return FeedbackGood
		default:
			return FeedbackPassed
		}
	}
	if percentage >= 50 {
		return FeedbackAlmost
	}
	return FeedbackPrepare
}
