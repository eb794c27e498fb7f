package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"geeko-live/internal/domain"
)

func TestTransitionSessionCAS(t *testing.T) {
	ctx := context.Background()
	store := NewGameStore()
	seedSession(t, store, "s1", domain.SessionWaiting)

	session, err := store.TransitionSession(ctx, "s1",
		[]domain.SessionStatus{domain.SessionWaiting},
		func(s *domain.Session) error {
			s.Status = domain.SessionInProgress
			s.CurrentQuestion = 0
			return nil
		})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if session.Status != domain.SessionInProgress {
		t.Fatalf("expected in_progress, got %s", session.Status)
	}

	_, err = store.TransitionSession(ctx, "s1",
		[]domain.SessionStatus{domain.SessionWaiting},
		func(s *domain.Session) error { return nil })
	if err != domain.ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTransitionMutateErrorLeavesSessionUntouched(t *testing.T) {
	ctx := context.Background()
	store := NewGameStore()
	seedSession(t, store, "s1", domain.SessionWaiting)

	_, err := store.TransitionSession(ctx, "s1",
		[]domain.SessionStatus{domain.SessionWaiting},
		func(s *domain.Session) error {
			s.Status = domain.SessionInProgress
			return domain.ErrNotHost
		})
	if err != domain.ErrNotHost {
		t.Fatalf("expected mutate error, got %v", err)
	}

	session, _ := store.GetSession(ctx, "s1")
	if session.Status != domain.SessionWaiting {
		t.Fatalf("rejected mutation must not persist, got %s", session.Status)
	}
}

func TestAddParticipantIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewGameStore()
	seedSession(t, store, "s1", domain.SessionWaiting)

	first, err := store.AddParticipant(ctx, participant("p1", "s1", "u1"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	second, err := store.AddParticipant(ctx, participant("p2", "s1", "u1"))
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected existing participant back, got %s vs %s", second.ID, first.ID)
	}

	participants, _ := store.Participants(ctx, "s1")
	if len(participants) != 1 {
		t.Fatalf("expected 1 participant, got %d", len(participants))
	}
}

func TestRecordAnswerOnceAndScore(t *testing.T) {
	ctx := context.Background()
	store := NewGameStore()
	seedSession(t, store, "s1", domain.SessionInProgress)
	if _, err := store.AddParticipant(ctx, participant("p1", "s1", "u1")); err != nil {
		t.Fatalf("add participant: %v", err)
	}

	answer := domain.Answer{
		ID: "a1", SessionID: "s1", QuestionID: "q1", UserID: "u1",
		Selected: []string{"4"}, IsCorrect: true, PointsEarned: 750,
	}
	if err := store.RecordAnswer(ctx, answer); err != nil {
		t.Fatalf("record: %v", err)
	}

	answer.ID = "a2"
	if err := store.RecordAnswer(ctx, answer); err != domain.ErrDuplicateAnswer {
		t.Fatalf("expected ErrDuplicateAnswer, got %v", err)
	}

	p, err := store.GetParticipant(ctx, "s1", "u1")
	if err != nil {
		t.Fatalf("get participant: %v", err)
	}
	if p.TotalScore != 750 {
		t.Fatalf("duplicate must not double-count: score=%d", p.TotalScore)
	}
	if bd := p.Breakdown["q1"]; !bd.Correct || bd.Points != 750 {
		t.Fatalf("unexpected breakdown: %+v", bd)
	}

	n, _ := store.CountAnswers(ctx, "s1", "q1")
	if n != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", n)
	}
}

func TestRecordAnswerConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	store := NewGameStore()
	seedSession(t, store, "s1", domain.SessionInProgress)
	if _, err := store.AddParticipant(ctx, participant("p1", "s1", "u1")); err != nil {
		t.Fatalf("add participant: %v", err)
	}

	const attempts = 16
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			errs <- store.RecordAnswer(ctx, domain.Answer{
				ID: "a", SessionID: "s1", QuestionID: "q1", UserID: "u1",
				IsCorrect: true, PointsEarned: 100,
			})
		}(i)
	}
	wg.Wait()
	close(errs)

	wins, dups := 0, 0
	for err := range errs {
		switch err {
		case nil:
			wins++
		case domain.ErrDuplicateAnswer:
			dups++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || dups != attempts-1 {
		t.Fatalf("expected exactly one success, got wins=%d dups=%d", wins, dups)
	}

	p, _ := store.GetParticipant(ctx, "s1", "u1")
	if p.TotalScore != 100 {
		t.Fatalf("expected score 100 after racing submits, got %d", p.TotalScore)
	}
}

func TestRecordAnswerRejectsInactiveOrStale(t *testing.T) {
	ctx := context.Background()
	store := NewGameStore()
	seedSession(t, store, "s1", domain.SessionWaiting)
	if _, err := store.AddParticipant(ctx, participant("p1", "s1", "u1")); err != nil {
		t.Fatalf("add participant: %v", err)
	}

	err := store.RecordAnswer(ctx, domain.Answer{SessionID: "s1", QuestionID: "q1", UserID: "u1"})
	if err != domain.ErrSessionNotActive {
		t.Fatalf("waiting session: expected ErrSessionNotActive, got %v", err)
	}

	seedSession(t, store, "s2", domain.SessionInProgress)
	if _, err := store.AddParticipant(ctx, participant("p2", "s2", "u1")); err != nil {
		t.Fatalf("add participant: %v", err)
	}
	err = store.RecordAnswer(ctx, domain.Answer{SessionID: "s2", QuestionID: "q2", UserID: "u1"})
	if err != domain.ErrWrongQuestion {
		t.Fatalf("stale question: expected ErrWrongQuestion, got %v", err)
	}
}

func TestGetSessionByCode(t *testing.T) {
	ctx := context.Background()
	store := NewGameStore()
	seedSession(t, store, "s1", domain.SessionWaiting)

	session, err := store.GetSessionByCode(ctx, "ABC123")
	if err != nil {
		t.Fatalf("by code: %v", err)
	}
	if session.ID != "s1" {
		t.Fatalf("expected s1, got %s", session.ID)
	}
	if _, err := store.GetSessionByCode(ctx, "NOPE99"); err != domain.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func seedSession(t *testing.T, store *GameStore, id string, status domain.SessionStatus) {
	t.Helper()
	current := -1
	if status == domain.SessionInProgress {
		current = 0
	}
	err := store.CreateSession(context.Background(), domain.Session{
		ID:     id,
		Code:   "ABC123",
		QuizID: "quiz-1",
		Quiz: domain.Quiz{
			ID:     "quiz-1",
			Status: domain.QuizReady,
			Questions: []domain.Question{
				{ID: "q1", Type: domain.MultipleChoice, Options: []string{"3", "4"}, Correct: []string{"4"}},
			},
		},
		StartedBy:       "host",
		Status:          status,
		CurrentQuestion: current,
		CreatedAt:       time.Now(),
	})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
}

func participant(id, sessionID, userID string) domain.Participant {
	return domain.Participant{
		ID:        id,
		SessionID: sessionID,
		UserID:    userID,
		Nickname:  userID,
		Breakdown: make(map[string]domain.QuestionScore),
		JoinedAt:  time.Now(),
	}
}
