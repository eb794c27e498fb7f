package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"geeko-live/internal/app"
	"geeko-live/internal/domain"
)

// APIHandler exposes the session use cases as a JSON polling API. Clients are
// expected to poll at a bounded interval and re-sync on conflict responses
// instead of treating them as fatal.
type APIHandler struct {
	service *app.GameService
}

func NewAPIHandler(service *app.GameService) *APIHandler {
	return &APIHandler{service: service}
}

// Register wires the routes into the mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /sessions", h.createSession)
	mux.HandleFunc("GET /sessions/{id}", h.getSession)
	mux.HandleFunc("GET /sessions/code/{code}", h.getSessionByCode)
	mux.HandleFunc("POST /sessions/{id}/join", h.join)
	mux.HandleFunc("POST /sessions/{id}/leave", h.leave)
	mux.HandleFunc("POST /sessions/{id}/kick", h.kick)
	mux.HandleFunc("POST /sessions/{id}/start", h.start)
	mux.HandleFunc("POST /sessions/{id}/advance", h.advance)
	mux.HandleFunc("POST /sessions/{id}/complete", h.complete)
	mux.HandleFunc("POST /sessions/{id}/cancel", h.cancel)
	mux.HandleFunc("POST /sessions/{id}/answers", h.submitAnswer)
	mux.HandleFunc("GET /sessions/{id}/poll", h.poll)
	mux.HandleFunc("GET /sessions/{id}/leaderboard", h.leaderboard)
	mux.HandleFunc("GET /sessions/{id}/questions/{questionID}/stats", h.questionStats)
}

type createSessionRequest struct {
	QuizID string `json:"quizId"`
	HostID string `json:"hostId"`
}

func (h *APIHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decode(w, r, &req) {
		return
	}
	session, err := h.service.CreateSession(r.Context(), req.QuizID, req.HostID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionView(session))
}

func (h *APIHandler) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(session))
}

func (h *APIHandler) getSessionByCode(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.SessionByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(session))
}

type joinRequest struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
}

func (h *APIHandler) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decode(w, r, &req) {
		return
	}
	participant, err := h.service.Join(r.Context(), r.PathValue("id"), req.UserID, req.Nickname)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, participant)
}

func (h *APIHandler) leave(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.service.Leave(r.Context(), r.PathValue("id"), req.UserID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type kickRequest struct {
	HostID        string `json:"hostId"`
	ParticipantID string `json:"participantId"`
}

func (h *APIHandler) kick(w http.ResponseWriter, r *http.Request) {
	var req kickRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.service.Kick(r.Context(), r.PathValue("id"), req.HostID, req.ParticipantID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type hostRequest struct {
	HostID string `json:"hostId"`
}

func (h *APIHandler) start(w http.ResponseWriter, r *http.Request) {
	var req hostRequest
	if !decode(w, r, &req) {
		return
	}
	session, err := h.service.Start(r.Context(), r.PathValue("id"), req.HostID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(session))
}

type advanceResponse struct {
	Result  app.TransitionResult `json:"result"`
	Session SessionView          `json:"session"`
}

func (h *APIHandler) advance(w http.ResponseWriter, r *http.Request) {
	var req hostRequest
	if !decode(w, r, &req) {
		return
	}
	session, result, err := h.service.Advance(r.Context(), r.PathValue("id"), req.HostID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, advanceResponse{Result: result, Session: sessionView(session)})
}

func (h *APIHandler) complete(w http.ResponseWriter, r *http.Request) {
	var req hostRequest
	if !decode(w, r, &req) {
		return
	}
	session, err := h.service.Complete(r.Context(), r.PathValue("id"), req.HostID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(session))
}

func (h *APIHandler) cancel(w http.ResponseWriter, r *http.Request) {
	var req hostRequest
	if !decode(w, r, &req) {
		return
	}
	session, err := h.service.Cancel(r.Context(), r.PathValue("id"), req.HostID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(session))
}

type submitRequest struct {
	UserID           string   `json:"userId"`
	QuestionID       string   `json:"questionId"`
	Choices          []string `json:"choices,omitempty"`
	Value            string   `json:"value,omitempty"`
	TimeTakenSeconds float64  `json:"timeTakenSeconds"`
}

type submitResponse struct {
	IsCorrect    bool `json:"isCorrect"`
	PointsEarned int  `json:"pointsEarned"`
}

func (h *APIHandler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decode(w, r, &req) {
		return
	}
	answer, err := h.service.SubmitAnswer(r.Context(), r.PathValue("id"), req.UserID, domain.Submission{
		QuestionID:       req.QuestionID,
		Choices:          req.Choices,
		Value:            req.Value,
		TimeTakenSeconds: req.TimeTakenSeconds,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{IsCorrect: answer.IsCorrect, PointsEarned: answer.PointsEarned})
}

func (h *APIHandler) poll(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.Poll(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *APIHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := h.service.Leaderboard(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *APIHandler) questionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.QuestionStats(r.Context(),
		r.PathValue("id"), r.URL.Query().Get("hostId"), r.PathValue("questionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrQuestionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNotAParticipant):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateAnswer),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrWrongQuestion),
		errors.Is(err, domain.ErrSessionClosed),
		errors.Is(err, domain.ErrSessionNotActive):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNotHost), errors.Is(err, domain.ErrNotEligible):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotReady), errors.Is(err, domain.ErrInvalidSubmission):
		status = http.StatusUnprocessableEntity
	default:
		log.Printf("internal error: %v", err)
		writeJSON(w, status, errorBody{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}
