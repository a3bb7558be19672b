package wshub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"ohmyremote/internal/events"
)

func TestHubPublishEventReachesClient(t *testing.T) {
	h := New()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.HandleWS)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	wsURL := "ws" + ts.URL[len("http"):] + "/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			h.PublishEvent("run1", "chat1", events.Event{Type: events.TypeTextDelta, Text: "hi"})
			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	}()
	defer close(done)

	_, raw, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if msg.Type != "run_event" || msg.RunID != "run1" || msg.Event == nil || msg.Event.Text != "hi" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestHubPublishRunStatus(t *testing.T) {
	h := New()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.HandleWS)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	wsURL := "ws" + ts.URL[len("http"):] + "/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			h.PublishRunStatus("run2", "proj1", "completed")
			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	}()
	defer close(done)

	_, raw, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if msg.Type != "run_status" || msg.RunID != "run2" || msg.ProjectID != "proj1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Payload["status"] != "completed" {
		t.Fatalf("expected status payload, got %+v", msg.Payload)
	}
}

func TestHubPublishWithNoClientsDoesNotBlock(t *testing.T) {
	h := New()
	h.PublishEvent("run3", "chat3", events.Event{Type: events.TypeRunFinished, Status: events.RunFinishedSuccess})
}
