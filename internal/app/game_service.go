package app

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"geeko-live/internal/domain"
	"geeko-live/internal/scoring"
)

// GameStore persists sessions, participants and the answer ledger. Every
// method is an atomic unit: concurrency guards (CAS transitions, unique
// constraints) live behind this interface, not in the service.
type GameStore interface {
	CreateSession(ctx context.Context, s domain.Session) error
	GetSession(ctx context.Context, id string) (domain.Session, error)
	GetSessionByCode(ctx context.Context, code string) (domain.Session, error)
	// TransitionSession applies mutate to the session iff its status is one of
	// from; otherwise it returns domain.ErrInvalidTransition. Exactly one of
	// two concurrent callers wins.
	TransitionSession(ctx context.Context, id string, from []domain.SessionStatus, mutate func(*domain.Session) error) (domain.Session, error)
	// AddParticipant inserts if absent and returns the existing row otherwise,
	// so a double join never creates a duplicate.
	AddParticipant(ctx context.Context, p domain.Participant) (domain.Participant, error)
	GetParticipant(ctx context.Context, sessionID, userID string) (domain.Participant, error)
	// RemoveParticipant is idempotent; removing an absent row is not an error.
	RemoveParticipant(ctx context.Context, sessionID, userID string) error
	Participants(ctx context.Context, sessionID string) ([]domain.Participant, error)
	// RecordAnswer re-checks, inside its atomic unit, that the session is
	// in_progress and the answer targets the current question, inserts the
	// ledger entry once and adds the points to the participant's total.
	RecordAnswer(ctx context.Context, a domain.Answer) error
	AnswersFor(ctx context.Context, sessionID, questionID string) ([]domain.Answer, error)
	CountAnswers(ctx context.Context, sessionID, questionID string) (int, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// CohortChecker answers whether an identity belongs to a quiz's cohort.
// Membership itself is owned by the identity service.
type CohortChecker interface {
	Eligible(ctx context.Context, userID, cohortID string) (bool, error)
}

// LeaderboardMirror receives standings after every score change, for readers
// outside this process. Publishing is best-effort.
type LeaderboardMirror interface {
	Publish(ctx context.Context, lb domain.Leaderboard) error
}

// TransitionResult tells the host what Advance did.
type TransitionResult string

const (
	ResultAdvanced TransitionResult = "advanced"
	ResultFinished TransitionResult = "finished"
)

// GameService contains the live session use cases.
type GameService struct {
	store   GameStore
	quizzes QuizRepository
	cohorts CohortChecker
	mirror  LeaderboardMirror
	now     func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand

	watchMu  sync.Mutex
	watchers map[string]map[chan domain.LiveState]struct{}
}

// Option configures optional service collaborators.
type Option func(*GameService)

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *GameService) { s.now = now }
}

// WithCohortChecker wires the identity service's cohort membership check.
func WithCohortChecker(c CohortChecker) Option {
	return func(s *GameService) { s.cohorts = c }
}

// WithLeaderboardMirror wires a cross-instance standings mirror.
func WithLeaderboardMirror(m LeaderboardMirror) Option {
	return func(s *GameService) { s.mirror = m }
}

func NewGameService(store GameStore, quizzes QuizRepository, opts ...Option) *GameService {
	s := &GameService{
		store:    store,
		quizzes:  quizzes,
		now:      time.Now,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		watchers: make(map[string]map[chan domain.LiveState]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession creates a waiting session from a ready quiz, snapshotting its
// question list so later authoring edits never reach a running game.
func (s *GameService) CreateSession(ctx context.Context, quizID, hostID string) (domain.Session, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Session{}, err
	}
	if !quiz.Playable() {
		return domain.Session{}, domain.ErrNotReady
	}

	session := domain.Session{
		ID:              uuid.NewString(),
		Code:            s.joinCode(),
		QuizID:          quiz.ID,
		Quiz:            quiz,
		StartedBy:       hostID,
		Status:          domain.SessionWaiting,
		CurrentQuestion: -1,
		CreatedAt:       s.now(),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

// Session returns the session by ID.
func (s *GameService) Session(ctx context.Context, sessionID string) (domain.Session, error) {
	return s.store.GetSession(ctx, sessionID)
}

// SessionByCode resolves a human join code to its session.
func (s *GameService) SessionByCode(ctx context.Context, code string) (domain.Session, error) {
	return s.store.GetSessionByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

// Join registers an identity in a session. Joining twice returns the existing
// participant; the second attempt never duplicates the row or resets the score.
func (s *GameService) Join(ctx context.Context, sessionID, userID, nickname string) (domain.Participant, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Participant{}, err
	}
	if session.Status.Terminal() {
		return domain.Participant{}, domain.ErrSessionClosed
	}

	if s.cohorts != nil && session.Quiz.CohortID != "" {
		ok, err := s.cohorts.Eligible(ctx, userID, session.Quiz.CohortID)
		if err != nil {
			return domain.Participant{}, err
		}
		if !ok {
			return domain.Participant{}, domain.ErrNotEligible
		}
	}

	if nickname = strings.TrimSpace(nickname); nickname == "" {
		nickname = userID
	}
	participant, err := s.store.AddParticipant(ctx, domain.Participant{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Nickname:  nickname,
		Breakdown: make(map[string]domain.QuestionScore),
		JoinedAt:  s.now(),
	})
	if err != nil {
		return domain.Participant{}, err
	}
	s.broadcast(ctx, sessionID)
	return participant, nil
}

// Leave removes the caller from the session. The participant's recorded
// answers stay in the ledger for the host's stats but stop counting toward
// the leaderboard.
func (s *GameService) Leave(ctx context.Context, sessionID, userID string) error {
	if err := s.store.RemoveParticipant(ctx, sessionID, userID); err != nil {
		return err
	}
	s.publishStandings(ctx, sessionID)
	s.broadcast(ctx, sessionID)
	return nil
}

// Kick removes a participant on behalf of the host.
func (s *GameService) Kick(ctx context.Context, sessionID, hostID, participantID string) error {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.StartedBy != hostID {
		return domain.ErrNotHost
	}

	participants, err := s.store.Participants(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, p := range participants {
		if p.ID == participantID {
			if err := s.store.RemoveParticipant(ctx, sessionID, p.UserID); err != nil {
				return err
			}
			s.publishStandings(ctx, sessionID)
			s.broadcast(ctx, sessionID)
			return nil
		}
	}
	// Absent participant: kick is idempotent, same as Leave.
	return nil
}

// Start moves a waiting session to in_progress and opens the first question.
func (s *GameService) Start(ctx context.Context, sessionID, hostID string) (domain.Session, error) {
	session, err := s.store.TransitionSession(ctx, sessionID,
		[]domain.SessionStatus{domain.SessionWaiting},
		func(sess *domain.Session) error {
			if sess.StartedBy != hostID {
				return domain.ErrNotHost
			}
			now := s.now()
			sess.Status = domain.SessionInProgress
			sess.CurrentQuestion = 0
			sess.QuestionStartedAt = now
			sess.StartedAt = now
			return nil
		})
	if err != nil {
		return domain.Session{}, err
	}
	s.broadcast(ctx, sessionID)
	return session, nil
}

// Advance moves to the next question, or completes the session when the
// pointer already sits on the last one. Two concurrent calls (host
// double-click, or a host call racing an auto-advance trigger) resolve to
// exactly one state change; the loser gets ErrInvalidTransition.
func (s *GameService) Advance(ctx context.Context, sessionID, hostID string) (domain.Session, TransitionResult, error) {
	result := ResultAdvanced
	session, err := s.store.TransitionSession(ctx, sessionID,
		[]domain.SessionStatus{domain.SessionInProgress},
		func(sess *domain.Session) error {
			if sess.StartedBy != hostID {
				return domain.ErrNotHost
			}
			now := s.now()
			if sess.CurrentQuestion >= len(sess.Quiz.Questions)-1 {
				sess.Status = domain.SessionCompleted
				sess.EndedAt = now
				result = ResultFinished
				return nil
			}
			sess.CurrentQuestion++
			sess.QuestionStartedAt = now
			return nil
		})
	if err != nil {
		return domain.Session{}, "", err
	}
	s.broadcast(ctx, sessionID)
	return session, result, nil
}

// Complete forces a running session to completed.
func (s *GameService) Complete(ctx context.Context, sessionID, hostID string) (domain.Session, error) {
	return s.finalize(ctx, sessionID, hostID, domain.SessionCompleted,
		[]domain.SessionStatus{domain.SessionInProgress})
}

// Cancel aborts a session from waiting or in_progress. Submissions and joins
// arriving after the cancel fail fast.
func (s *GameService) Cancel(ctx context.Context, sessionID, hostID string) (domain.Session, error) {
	return s.finalize(ctx, sessionID, hostID, domain.SessionCancelled,
		[]domain.SessionStatus{domain.SessionWaiting, domain.SessionInProgress})
}

func (s *GameService) finalize(ctx context.Context, sessionID, hostID string, to domain.SessionStatus, from []domain.SessionStatus) (domain.Session, error) {
	session, err := s.store.TransitionSession(ctx, sessionID, from,
		func(sess *domain.Session) error {
			if sess.StartedBy != hostID {
				return domain.ErrNotHost
			}
			sess.Status = to
			sess.EndedAt = s.now()
			return nil
		})
	if err != nil {
		return domain.Session{}, err
	}
	s.broadcast(ctx, sessionID)
	return session, nil
}

// SubmitAnswer validates a submission against the current question, scores it
// and writes it to the ledger exactly once. The duplicate guard and the score
// update are one atomic unit inside the store.
func (s *GameService) SubmitAnswer(ctx context.Context, sessionID, userID string, sub domain.Submission) (domain.Answer, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Answer{}, err
	}
	if session.Status != domain.SessionInProgress {
		return domain.Answer{}, domain.ErrSessionNotActive
	}
	question, ok := session.CurrentQuestionData()
	if !ok {
		return domain.Answer{}, domain.ErrSessionNotActive
	}
	if sub.QuestionID != question.ID {
		return domain.Answer{}, domain.ErrWrongQuestion
	}
	if _, err := s.store.GetParticipant(ctx, sessionID, userID); err != nil {
		return domain.Answer{}, err
	}

	selected, correct, err := scoring.Evaluate(question, sub)
	if err != nil {
		return domain.Answer{}, err
	}
	points := 0
	if correct {
		points = scoring.Points(question.PointsBase, session.Quiz.EffectiveTimeLimit(question), sub.TimeTakenSeconds)
	}

	answer := domain.Answer{
		ID:               uuid.NewString(),
		SessionID:        sessionID,
		QuestionID:       question.ID,
		UserID:           userID,
		Selected:         selected,
		IsCorrect:        correct,
		PointsEarned:     points,
		TimeTakenSeconds: sub.TimeTakenSeconds,
		AnsweredAt:       s.now(),
	}
	if err := s.store.RecordAnswer(ctx, answer); err != nil {
		return domain.Answer{}, err
	}

	s.publishStandings(ctx, sessionID)
	s.broadcast(ctx, sessionID)
	return answer, nil
}

// AnswersFor returns the ledger entries of one question.
func (s *GameService) AnswersFor(ctx context.Context, sessionID, questionID string) ([]domain.Answer, error) {
	return s.store.AnswersFor(ctx, sessionID, questionID)
}

// Leaderboard ranks the current participants of a session.
func (s *GameService) Leaderboard(ctx context.Context, sessionID string) (domain.Leaderboard, error) {
	participants, err := s.store.Participants(ctx, sessionID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	lb := scoring.Rank(sessionID, participants)
	lb.UpdatedAt = s.now()
	return lb, nil
}

// QuestionStats aggregates the ledger of one question for the host's reveal
// view. Answers from participants who left or were kicked still count here.
func (s *GameService) QuestionStats(ctx context.Context, sessionID, hostID, questionID string) (domain.QuestionStats, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.QuestionStats{}, err
	}
	if session.StartedBy != hostID {
		return domain.QuestionStats{}, domain.ErrNotHost
	}
	if !questionInQuiz(session.Quiz, questionID) {
		return domain.QuestionStats{}, domain.ErrQuestionNotFound
	}
	answers, err := s.store.AnswersFor(ctx, sessionID, questionID)
	if err != nil {
		return domain.QuestionStats{}, err
	}
	return scoring.Stats(questionID, answers), nil
}

// Poll builds the live read model and, if the current question's window is
// over per the quiz's end condition, attaches the auto-advance signal. Poll
// never mutates: the actual advance is always an explicit host action, so
// many concurrent pollers cannot race the state machine.
func (s *GameService) Poll(ctx context.Context, sessionID string) (domain.LiveState, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.LiveState{}, err
	}
	participants, err := s.store.Participants(ctx, sessionID)
	if err != nil {
		return domain.LiveState{}, err
	}

	state := domain.LiveState{
		SessionID:         session.ID,
		Status:            session.Status,
		CurrentQuestion:   session.CurrentQuestion,
		QuestionStartedAt: session.QuestionStartedAt,
		TotalQuestions:    len(session.Quiz.Questions),
		ParticipantsCount: len(participants),
		Leaderboard:       scoring.Rank(sessionID, participants),
	}
	state.Leaderboard.UpdatedAt = s.now()

	question, ok := session.CurrentQuestionData()
	if !ok {
		return state, nil
	}
	state.AnswersReceived, err = s.store.CountAnswers(ctx, sessionID, question.ID)
	if err != nil {
		return domain.LiveState{}, err
	}

	switch session.Quiz.EndCondition {
	case domain.EndOnAllAnswered:
		if len(participants) > 0 && state.AnswersReceived >= len(participants) {
			state.ShouldEnd = domain.SignalAllAnswered
		}
	default: // EndOnTime
		limit := session.Quiz.EffectiveTimeLimit(question)
		if limit > 0 && s.now().Sub(session.QuestionStartedAt) >= time.Duration(limit)*time.Second {
			state.ShouldEnd = domain.SignalTimeUp
		}
	}
	return state, nil
}

// Watch returns a channel that receives live state snapshots for a session.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *GameService) Watch(ctx context.Context, sessionID string) (<-chan domain.LiveState, func(), error) {
	initial, err := s.Poll(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan domain.LiveState, 8)
	s.watchMu.Lock()
	set, ok := s.watchers[sessionID]
	if !ok {
		set = make(map[chan domain.LiveState]struct{})
		s.watchers[sessionID] = set
	}
	set[ch] = struct{}{}
	s.watchMu.Unlock()

	ch <- initial

	cancel := func() {
		s.watchMu.Lock()
		if set, ok := s.watchers[sessionID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(s.watchers, sessionID)
			}
		}
		s.watchMu.Unlock()
	}
	return ch, cancel, nil
}

// broadcast pushes a fresh snapshot to all watchers of a session, dropping
// the stale one when a slow client's buffer is full.
func (s *GameService) broadcast(ctx context.Context, sessionID string) {
	s.watchMu.Lock()
	if len(s.watchers[sessionID]) == 0 {
		s.watchMu.Unlock()
		return
	}
	s.watchMu.Unlock()

	state, err := s.Poll(ctx, sessionID)
	if err != nil {
		log.Printf("broadcast: poll session %s: %v", sessionID, err)
		return
	}

	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for ch := range s.watchers[sessionID] {
		select {
		case ch <- state:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- state
		}
	}
}

func (s *GameService) publishStandings(ctx context.Context, sessionID string) {
	if s.mirror == nil {
		return
	}
	lb, err := s.Leaderboard(ctx, sessionID)
	if err != nil {
		log.Printf("mirror: rank session %s: %v", sessionID, err)
		return
	}
	if err := s.mirror.Publish(ctx, lb); err != nil {
		log.Printf("mirror: publish session %s: %v", sessionID, err)
	}
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func (s *GameService) joinCode() string {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	b := make([]byte, 6)
	for i := range b {
		b[i] = codeAlphabet[s.rnd.Intn(len(codeAlphabet))]
	}
	return string(b)
}

func questionInQuiz(quiz domain.Quiz, questionID string) bool {
	for _, q := range quiz.Questions {
		if q.ID == questionID {
			return true
		}
	}
	return false
}
