package http

import (
	"time"

	"geeko-live/internal/domain"
)

// SessionView is the public shape of a session. The quiz snapshot stays
// server-side; only the question under play is exposed, and correct answers
// only once the session has ended and the quiz opted into revealing them.
type SessionView struct {
	ID                string               `json:"id"`
	Code              string               `json:"code"`
	QuizID            string               `json:"quizId"`
	Title             string               `json:"title"`
	StartedBy         string               `json:"startedBy"`
	Status            domain.SessionStatus `json:"status"`
	CurrentQuestion   int                  `json:"currentQuestion"`
	TotalQuestions    int                  `json:"totalQuestions"`
	Question          *QuestionView        `json:"question,omitempty"`
	Questions         []QuestionView       `json:"questions,omitempty"` // post-game reveal
	QuestionStartedAt *time.Time           `json:"questionStartedAt,omitempty"`
	CreatedAt         time.Time            `json:"createdAt"`
	StartedAt         *time.Time           `json:"startedAt,omitempty"`
	EndedAt           *time.Time           `json:"endedAt,omitempty"`
}

type QuestionView struct {
	ID               string              `json:"id"`
	Text             string              `json:"text"`
	Type             domain.QuestionType `json:"type"`
	Options          []string            `json:"options,omitempty"`
	Correct          []string            `json:"correct,omitempty"`
	PointsBase       int                 `json:"pointsBase"`
	TimeLimitSeconds int                 `json:"timeLimitSeconds"`
	ImageURL         string              `json:"imageUrl,omitempty"`
}

func sessionView(s domain.Session) SessionView {
	view := SessionView{
		ID:                s.ID,
		Code:              s.Code,
		QuizID:            s.QuizID,
		Title:             s.Quiz.Title,
		StartedBy:         s.StartedBy,
		Status:            s.Status,
		CurrentQuestion:   s.CurrentQuestion,
		TotalQuestions:    len(s.Quiz.Questions),
		QuestionStartedAt: timePtr(s.QuestionStartedAt),
		CreatedAt:         s.CreatedAt,
		StartedAt:         timePtr(s.StartedAt),
		EndedAt:           timePtr(s.EndedAt),
	}
	if q, ok := s.CurrentQuestionData(); ok {
		view.Question = questionView(s, q, false)
	}
	if s.Status == domain.SessionCompleted && s.Quiz.ShowCorrectAnswers {
		view.Questions = make([]QuestionView, 0, len(s.Quiz.Questions))
		for _, q := range s.Quiz.Questions {
			view.Questions = append(view.Questions, *questionView(s, q, true))
		}
	}
	return view
}

func questionView(s domain.Session, q domain.Question, reveal bool) *QuestionView {
	view := &QuestionView{
		ID:               q.ID,
		Text:             q.Text,
		Type:             q.Type,
		Options:          q.Options,
		PointsBase:       q.PointsBase,
		TimeLimitSeconds: s.Quiz.EffectiveTimeLimit(q),
		ImageURL:         q.ImageURL,
	}
	if reveal {
		view.Correct = q.Correct
	}
	return view
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
