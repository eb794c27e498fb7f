package domain

import "time"

// QuestionType discriminates how a question is answered and scored.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	TypeAnswer     QuestionType = "type_answer"
)

// EndCondition decides when the gateway recommends closing the current question.
type EndCondition string

const (
	EndOnTime        EndCondition = "time"
	EndOnAllAnswered EndCondition = "all_answered"
)

// QuizStatus marks whether a quiz is still being authored or is playable.
type QuizStatus string

const (
	QuizDraft QuizStatus = "draft"
	QuizReady QuizStatus = "ready"
)

const DefaultPointsBase = 1000

// Question is one immutable entry of a quiz's question bank.
type Question struct {
	ID               string       `json:"id"`
	Text             string       `json:"text"`
	Type             QuestionType `json:"type"`
	Options          []string     `json:"options"`
	Correct          []string     `json:"correct"`
	PointsBase       int          `json:"pointsBase"` // defaults to DefaultPointsBase if zero
	TimeLimitSeconds int          `json:"timeLimitSeconds,omitempty"`
	OrderIndex       int          `json:"orderIndex"`
	ImageURL         string       `json:"imageUrl,omitempty"`
}

// Quiz is an authored, ordered set of questions plus timing settings.
type Quiz struct {
	ID                 string       `json:"id"`
	CohortID           string       `json:"cohortId,omitempty"`
	Title              string       `json:"title"`
	Description        string       `json:"description,omitempty"`
	TimeLimitSeconds   int          `json:"timeLimitSeconds"` // per-question fallback
	ShowCorrectAnswers bool         `json:"showCorrectAnswers"`
	Status             QuizStatus   `json:"status"`
	EndCondition       EndCondition `json:"endCondition,omitempty"`
	Questions          []Question   `json:"questions"`
}

// EffectiveTimeLimit returns the question's time window, falling back to the
// quiz-level default when the question does not set one.
func (q Quiz) EffectiveTimeLimit(question Question) int {
	if question.TimeLimitSeconds > 0 {
		return question.TimeLimitSeconds
	}
	return q.TimeLimitSeconds
}

// SessionStatus is the lifecycle state of one play-through.
type SessionStatus string

const (
	SessionWaiting    SessionStatus = "waiting"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionCancelled  SessionStatus = "cancelled"
)

// Terminal reports whether no further mutation of the session is allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

// Session is one live play-through of a quiz. The quiz's question list is
// snapshotted into the session at create time so authoring edits never affect
// a running game.
type Session struct {
	ID                string        `json:"id"`
	Code              string        `json:"code"`
	QuizID            string        `json:"quizId"`
	Quiz              Quiz          `json:"quiz"`
	StartedBy         string        `json:"startedBy"`
	Status            SessionStatus `json:"status"`
	CurrentQuestion   int           `json:"currentQuestion"` // -1 while waiting
	QuestionStartedAt time.Time     `json:"questionStartedAt,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	StartedAt         time.Time     `json:"startedAt,omitempty"`
	EndedAt           time.Time     `json:"endedAt,omitempty"`
}

// CurrentQuestionData returns the question under play, or false while the
// session is waiting, terminal, or the pointer is out of range.
func (s Session) CurrentQuestionData() (Question, bool) {
	if s.Status != SessionInProgress {
		return Question{}, false
	}
	if s.CurrentQuestion < 0 || s.CurrentQuestion >= len(s.Quiz.Questions) {
		return Question{}, false
	}
	return s.Quiz.Questions[s.CurrentQuestion], true
}

// QuestionScore is one participant's outcome for one question.
type QuestionScore struct {
	Points  int  `json:"points"`
	Correct bool `json:"correct"`
}

// Participant is a joined identity's standing within one session.
type Participant struct {
	ID         string                   `json:"id"`
	SessionID  string                   `json:"sessionId"`
	UserID     string                   `json:"userId"`
	Nickname   string                   `json:"nickname"`
	TotalScore int                      `json:"totalScore"`
	Breakdown  map[string]QuestionScore `json:"breakdown,omitempty"`
	JoinedAt   time.Time                `json:"joinedAt"`
}

// Submission carries the raw answer payload before type-specific validation.
// Choices is used for multiple_choice, Value for true_false and type_answer.
type Submission struct {
	QuestionID       string   `json:"questionId"`
	Choices          []string `json:"choices,omitempty"`
	Value            string   `json:"value,omitempty"`
	TimeTakenSeconds float64  `json:"timeTakenSeconds"`
}

// Answer is one ledger entry: a participant's single submission for one
// question within one session. Never mutated once written.
type Answer struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"sessionId"`
	QuestionID       string    `json:"questionId"`
	UserID           string    `json:"userId"`
	Selected         []string  `json:"selected"`
	IsCorrect        bool      `json:"isCorrect"`
	PointsEarned     int       `json:"pointsEarned"`
	TimeTakenSeconds float64   `json:"timeTakenSeconds"`
	AnsweredAt       time.Time `json:"answeredAt"`
}

// LeaderboardEntry is a snapshot-friendly view of a participant's rank.
type LeaderboardEntry struct {
	Position   int    `json:"position"`
	UserID     string `json:"userId"`
	Nickname   string `json:"nickname"`
	TotalScore int    `json:"totalScore"`
}

// Leaderboard captures the ordered standings for a session.
type Leaderboard struct {
	SessionID string             `json:"sessionId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// AdvanceSignal is the gateway's computed recommendation; it never mutates.
type AdvanceSignal string

const (
	SignalNone        AdvanceSignal = ""
	SignalTimeUp      AdvanceSignal = "time_up"
	SignalAllAnswered AdvanceSignal = "all_answered"
)

// LiveState is the read model served to polling clients each cycle.
type LiveState struct {
	SessionID         string        `json:"sessionId"`
	Status            SessionStatus `json:"status"`
	CurrentQuestion   int           `json:"currentQuestion"`
	QuestionStartedAt time.Time     `json:"questionStartedAt,omitempty"`
	TotalQuestions    int           `json:"totalQuestions"`
	AnswersReceived   int           `json:"answersReceived"`
	ParticipantsCount int           `json:"participantsCount"`
	ShouldEnd         AdvanceSignal `json:"shouldEnd,omitempty"`
	Leaderboard       Leaderboard   `json:"leaderboard"`
}

// QuestionStats is the host's per-question reveal view. It aggregates over the
// full ledger, so answers from participants who later left still count.
type QuestionStats struct {
	QuestionID   string         `json:"questionId"`
	Answers      int            `json:"answers"`
	CorrectCount int            `json:"correctCount"`
	PickCounts   map[string]int `json:"pickCounts"`
}
