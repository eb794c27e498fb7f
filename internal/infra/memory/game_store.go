package memory

import (
	"context"
	"sort"
	"sync"

	"geeko-live/internal/domain"
)

// GameStore is the in-memory implementation of app.GameStore. A per-session
// mutex makes each store call an atomic unit, which is what gives the
// transition CAS, the idempotent join and the single-answer guarantee under
// concurrent requests.
type GameStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionRecord
	byCode   map[string]string
}

type sessionRecord struct {
	mu           sync.Mutex
	session      domain.Session
	participants map[string]*domain.Participant // keyed by user ID
	answers      map[string][]domain.Answer     // keyed by question ID, in answer order
	answered     map[string]struct{}            // question ID + user ID dedup
}

func NewGameStore() *GameStore {
	return &GameStore{
		sessions: make(map[string]*sessionRecord),
		byCode:   make(map[string]string),
	}
}

func (s *GameStore) CreateSession(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = &sessionRecord{
		session:      session,
		participants: make(map[string]*domain.Participant),
		answers:      make(map[string][]domain.Answer),
		answered:     make(map[string]struct{}),
	}
	if session.Code != "" {
		s.byCode[session.Code] = session.ID
	}
	return nil
}

func (s *GameStore) GetSession(_ context.Context, id string) (domain.Session, error) {
	rec, err := s.record(id)
	if err != nil {
		return domain.Session{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.session, nil
}

func (s *GameStore) GetSessionByCode(ctx context.Context, code string) (domain.Session, error) {
	s.mu.RLock()
	id, ok := s.byCode[code]
	s.mu.RUnlock()
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return s.GetSession(ctx, id)
}

func (s *GameStore) TransitionSession(_ context.Context, id string, from []domain.SessionStatus, mutate func(*domain.Session) error) (domain.Session, error) {
	rec, err := s.record(id)
	if err != nil {
		return domain.Session{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	allowed := false
	for _, status := range from {
		if rec.session.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return domain.Session{}, domain.ErrInvalidTransition
	}

	next := rec.session
	if err := mutate(&next); err != nil {
		return domain.Session{}, err
	}
	rec.session = next
	return next, nil
}

func (s *GameStore) AddParticipant(_ context.Context, p domain.Participant) (domain.Participant, error) {
	rec, err := s.record(p.SessionID)
	if err != nil {
		return domain.Participant{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if existing, ok := rec.participants[p.UserID]; ok {
		return copyParticipant(existing), nil
	}
	stored := p
	if stored.Breakdown == nil {
		stored.Breakdown = make(map[string]domain.QuestionScore)
	}
	rec.participants[p.UserID] = &stored
	return copyParticipant(&stored), nil
}

func (s *GameStore) GetParticipant(_ context.Context, sessionID, userID string) (domain.Participant, error) {
	rec, err := s.record(sessionID)
	if err != nil {
		return domain.Participant{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	p, ok := rec.participants[userID]
	if !ok {
		return domain.Participant{}, domain.ErrNotAParticipant
	}
	return copyParticipant(p), nil
}

func (s *GameStore) RemoveParticipant(_ context.Context, sessionID, userID string) error {
	rec, err := s.record(sessionID)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	delete(rec.participants, userID)
	return nil
}

func (s *GameStore) Participants(_ context.Context, sessionID string) ([]domain.Participant, error) {
	rec, err := s.record(sessionID)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	out := make([]domain.Participant, 0, len(rec.participants))
	for _, p := range rec.participants {
		out = append(out, copyParticipant(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *GameStore) RecordAnswer(_ context.Context, a domain.Answer) error {
	rec, err := s.record(a.SessionID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	// Re-validate under the lock: a cancel or advance may have won the race
	// since the service read the session.
	if rec.session.Status != domain.SessionInProgress {
		return domain.ErrSessionNotActive
	}
	current, ok := rec.session.CurrentQuestionData()
	if !ok || current.ID != a.QuestionID {
		return domain.ErrWrongQuestion
	}
	participant, ok := rec.participants[a.UserID]
	if !ok {
		return domain.ErrNotAParticipant
	}

	key := a.QuestionID + "\x00" + a.UserID
	if _, ok := rec.answered[key]; ok {
		return domain.ErrDuplicateAnswer
	}

	rec.answered[key] = struct{}{}
	rec.answers[a.QuestionID] = append(rec.answers[a.QuestionID], a)
	participant.TotalScore += a.PointsEarned
	participant.Breakdown[a.QuestionID] = domain.QuestionScore{
		Points:  a.PointsEarned,
		Correct: a.IsCorrect,
	}
	return nil
}

func (s *GameStore) AnswersFor(_ context.Context, sessionID, questionID string) ([]domain.Answer, error) {
	rec, err := s.record(sessionID)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]domain.Answer(nil), rec.answers[questionID]...), nil
}

func (s *GameStore) CountAnswers(_ context.Context, sessionID, questionID string) (int, error) {
	rec, err := s.record(sessionID)
	if err != nil {
		return 0, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.answers[questionID]), nil
}

func (s *GameStore) record(sessionID string) (*sessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return rec, nil
}

func copyParticipant(p *domain.Participant) domain.Participant {
	out := *p
	out.Breakdown = make(map[string]domain.QuestionScore, len(p.Breakdown))
	for k, v := range p.Breakdown {
		out.Breakdown[k] = v
	}
	return out
}
