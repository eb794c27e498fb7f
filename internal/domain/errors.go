package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrSessionNotFound is returned when a session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrQuestionNotFound indicates a question ID is not part of the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrNotReady is returned when a quiz is still a draft or has no questions.
	ErrNotReady = errors.New("quiz not ready to play")
	// ErrInvalidTransition signals a state machine misuse. Concurrent losers of
	// a transition race get this and should treat it as a benign no-op.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrSessionClosed is returned when joining a terminal session.
	ErrSessionClosed = errors.New("session closed")
	// ErrSessionNotActive is returned when submitting outside in_progress.
	ErrSessionNotActive = errors.New("session not active")
	// ErrNotEligible is returned when the identity's cohort does not match the quiz's.
	ErrNotEligible = errors.New("not eligible for this quiz")
	// ErrNotAParticipant is returned when a user acts before joining.
	ErrNotAParticipant = errors.New("not a participant of this session")
	// ErrWrongQuestion rejects stale submissions for a question that is no
	// longer the current one.
	ErrWrongQuestion = errors.New("answer targets a question that is not current")
	// ErrDuplicateAnswer rejects a second submission for the same question.
	ErrDuplicateAnswer = errors.New("answer already submitted")
	// ErrNotHost is returned when a host-only action comes from someone else.
	ErrNotHost = errors.New("caller is not the session host")
	// ErrInvalidSubmission rejects payloads whose shape does not match the
	// question type.
	ErrInvalidSubmission = errors.New("submission does not match question type")
)
