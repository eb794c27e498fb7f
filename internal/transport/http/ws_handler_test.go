package http

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWebSocketAnswerFlow(t *testing.T) {
	server, service := newTestServer(t)

	session, err := service.CreateSession(context.Background(), "quiz-1", "host-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	u := "ws" + server.URL[len("http"):] + "/ws?sessionId=" + session.ID + "&userId=u1&nickname=Alice"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readNext(conn, t, "joined")
	readNext(conn, t, "state")

	if _, err := service.Start(context.Background(), session.ID, "host-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// The start broadcast lands as a state push.
	for {
		typ, payload := readNext(conn, t, "")
		if typ != "state" {
			t.Fatalf("expected state push, got %s", typ)
		}
		if payload["status"] == "in_progress" {
			break
		}
	}

	answer := map[string]any{
		"type": "answer",
		"payload": map[string]any{
			"questionId":       "q1",
			"choices":          []string{"4"},
			"timeTakenSeconds": 5,
		},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}

	for {
		typ, payload := readNext(conn, t, "")
		if typ != "answerResult" {
			continue
		}
		if payload["correct"] != true {
			t.Fatalf("expected correct answer, got %+v", payload)
		}
		if awarded, ok := payload["awarded"].(float64); !ok || awarded <= 0 {
			t.Fatalf("expected points awarded, got %+v", payload["awarded"])
		}
		break
	}
}

func TestWebSocketRejectsClosedSession(t *testing.T) {
	server, service := newTestServer(t)

	session, err := service.CreateSession(context.Background(), "quiz-1", "host-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := service.Cancel(context.Background(), session.ID, "host-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	u := "ws" + server.URL[len("http"):] + "/ws?sessionId=" + session.ID + "&userId=u1&nickname=Alice"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	typ, _ := readNext(conn, t, "")
	if typ != "error" {
		t.Fatalf("expected error for closed session, got %s", typ)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
