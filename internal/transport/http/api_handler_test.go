package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"geeko-live/internal/app"
	"geeko-live/internal/domain"
	"geeko-live/internal/infra/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.GameService) {
	t.Helper()
	store := memory.NewGameStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	service := app.NewGameService(store, quizzes)

	mux := http.NewServeMux()
	NewAPIHandler(service).Register(mux)
	mux.HandleFunc("/ws", NewWSHandler(service).ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, service
}

func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:               "quiz-1",
			Title:            "Arithmetic",
			Status:           domain.QuizReady,
			TimeLimitSeconds: 20,
			Questions: []domain.Question{
				{
					ID:      "q1",
					Text:    "What is 2 + 2?",
					Type:    domain.MultipleChoice,
					Options: []string{"3", "4", "5"},
					Correct: []string{"4"},
				},
				{
					ID:      "q2",
					Text:    "Is 7 prime?",
					Type:    domain.TrueFalse,
					Correct: []string{"True"},
				},
			},
		},
	}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/sessions", createSessionRequest{QuizID: "quiz-1", HostID: "host-1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	var created SessionView
	decodeBody(t, resp, &created)
	if created.Status != domain.SessionWaiting || len(created.Code) != 6 {
		t.Fatalf("unexpected created session: %+v", created)
	}
	if created.Question != nil {
		t.Fatalf("waiting session must not expose a question")
	}

	// Lookup by join code.
	resp, err := http.Get(server.URL + "/sessions/code/" + created.Code)
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	var byCode SessionView
	decodeBody(t, resp, &byCode)
	if byCode.ID != created.ID {
		t.Fatalf("code lookup returned %s, want %s", byCode.ID, created.ID)
	}

	resp = postJSON(t, server.URL+"/sessions/"+created.ID+"/join", joinRequest{UserID: "u1", Nickname: "Alice"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join: expected 200, got %d", resp.StatusCode)
	}
	var joined domain.Participant
	decodeBody(t, resp, &joined)
	if joined.Nickname != "Alice" {
		t.Fatalf("expected nickname Alice, got %q", joined.Nickname)
	}

	resp = postJSON(t, server.URL+"/sessions/"+created.ID+"/start", hostRequest{HostID: "host-1"})
	var started SessionView
	decodeBody(t, resp, &started)
	if started.Status != domain.SessionInProgress || started.CurrentQuestion != 0 {
		t.Fatalf("unexpected started session: %+v", started)
	}
	if started.Question == nil || started.Question.ID != "q1" {
		t.Fatalf("expected q1 exposed, got %+v", started.Question)
	}
	if started.Question.Correct != nil {
		t.Fatalf("live question must not expose correct answers")
	}
	if started.Question.TimeLimitSeconds != 20 {
		t.Fatalf("expected quiz-level limit 20, got %d", started.Question.TimeLimitSeconds)
	}

	resp = postJSON(t, server.URL+"/sessions/"+created.ID+"/answers", submitRequest{
		UserID: "u1", QuestionID: "q1", Choices: []string{"4"}, TimeTakenSeconds: 5,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d", resp.StatusCode)
	}
	var result submitResponse
	decodeBody(t, resp, &result)
	if !result.IsCorrect || result.PointsEarned <= 0 {
		t.Fatalf("expected correct answer with points, got %+v", result)
	}

	resp, err = http.Get(server.URL + "/sessions/" + created.ID + "/poll")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	var state domain.LiveState
	decodeBody(t, resp, &state)
	if state.AnswersReceived != 1 || state.ParticipantsCount != 1 {
		t.Fatalf("unexpected live state: %+v", state)
	}

	for i := 0; i < 2; i++ {
		resp = postJSON(t, server.URL+"/sessions/"+created.ID+"/advance", hostRequest{HostID: "host-1"})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("advance %d: expected 200, got %d", i, resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp, err = http.Get(server.URL + "/sessions/" + created.ID + "/leaderboard")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	var lb domain.Leaderboard
	decodeBody(t, resp, &lb)
	if len(lb.Entries) != 1 || lb.Entries[0].UserID != "u1" {
		t.Fatalf("unexpected leaderboard: %+v", lb)
	}

	url := fmt.Sprintf("%s/sessions/%s/questions/q1/stats?hostId=host-1", server.URL, created.ID)
	resp, err = http.Get(url)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var stats domain.QuestionStats
	decodeBody(t, resp, &stats)
	if stats.Answers != 1 || stats.CorrectCount != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	server, service := newTestServer(t)

	resp, err := http.Get(server.URL + "/sessions/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing session: expected 404, got %d", resp.StatusCode)
	}

	resp = postJSON(t, server.URL+"/sessions", createSessionRequest{QuizID: "nope", HostID: "host-1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing quiz: expected 404, got %d", resp.StatusCode)
	}

	session, err := service.CreateSession(context.Background(), "quiz-1", "host-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	// Non-host cannot start.
	resp = postJSON(t, server.URL+"/sessions/"+session.ID+"/start", hostRequest{HostID: "intruder"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-host start: expected 403, got %d", resp.StatusCode)
	}

	// Advancing a waiting session is a state conflict.
	resp = postJSON(t, server.URL+"/sessions/"+session.ID+"/advance", hostRequest{HostID: "host-1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("advance waiting: expected 409, got %d", resp.StatusCode)
	}

	// Answering before the game starts is a state conflict too.
	if _, err := service.Join(context.Background(), session.ID, "u1", "Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	resp = postJSON(t, server.URL+"/sessions/"+session.ID+"/answers", submitRequest{
		UserID: "u1", QuestionID: "q1", Choices: []string{"4"},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("early answer: expected 409, got %d", resp.StatusCode)
	}

	if _, err := service.Start(context.Background(), session.ID, "host-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Duplicate answers conflict.
	first := postJSON(t, server.URL+"/sessions/"+session.ID+"/answers", submitRequest{
		UserID: "u1", QuestionID: "q1", Choices: []string{"4"}, TimeTakenSeconds: 3,
	})
	first.Body.Close()
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first answer: expected 200, got %d", first.StatusCode)
	}
	second := postJSON(t, server.URL+"/sessions/"+session.ID+"/answers", submitRequest{
		UserID: "u1", QuestionID: "q1", Choices: []string{"3"}, TimeTakenSeconds: 4,
	})
	second.Body.Close()
	if second.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate answer: expected 409, got %d", second.StatusCode)
	}

	// Answers from users who never joined are rejected.
	resp = postJSON(t, server.URL+"/sessions/"+session.ID+"/answers", submitRequest{
		UserID: "u2", QuestionID: "q1",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("non-participant answer: expected 404, got %d", resp.StatusCode)
	}
}

func TestKickAndLeaveOverHTTP(t *testing.T) {
	server, service := newTestServer(t)

	session, err := service.CreateSession(context.Background(), "quiz-1", "host-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	bob, err := service.Join(context.Background(), session.ID, "u2", "Bob")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	resp := postJSON(t, server.URL+"/sessions/"+session.ID+"/kick", kickRequest{HostID: "host-1", ParticipantID: bob.ID})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("kick: expected 204, got %d", resp.StatusCode)
	}

	if _, err := service.Join(context.Background(), session.ID, "u3", "Cara"); err != nil {
		t.Fatalf("join: %v", err)
	}
	resp = postJSON(t, server.URL+"/sessions/"+session.ID+"/leave", joinRequest{UserID: "u3"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("leave: expected 204, got %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/sessions/" + session.ID + "/poll")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	var state domain.LiveState
	decodeBody(t, resp, &state)
	if state.ParticipantsCount != 0 {
		t.Fatalf("expected empty session, got %d participants", state.ParticipantsCount)
	}
}
