package streamer

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"ohmyremote/internal/events"
	"ohmyremote/internal/transport"
)

type fakeTransport struct {
	mu        sync.Mutex
	nextID    int
	sent      []string
	edits     []string
	failEdits bool
}

func (f *fakeTransport) SendMessage(chatID, text string, kb transport.Keyboard) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, text)
	return itoa(int64(f.nextID)), nil
}

func (f *fakeTransport) EditMessage(chatID, messageID, text string, kb transport.Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEdits {
		return errors.New("message not modified")
	}
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeTransport) SendDocument(chatID, filePath, caption string) error { return nil }

func newTestStreamer(ft *fakeTransport) *Streamer {
	s := New(ft, nil)
	s.editIntervalMs = 0 // disable throttling for deterministic tests
	return s
}

func TestHandleEventSendsThenEdits(t *testing.T) {
	ft := &fakeTransport{}
	s := newTestStreamer(ft)

	s.HandleEvent("chat1", "run1", events.Event{Type: events.TypeTextDelta, Text: "hello "})
	if len(ft.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(ft.sent))
	}

	s.HandleEvent("chat1", "run1", events.Event{Type: events.TypeTextDelta, Text: "world"})
	if len(ft.edits) != 1 {
		t.Fatalf("expected 1 edit, got %d", len(ft.edits))
	}
	if !strings.Contains(ft.edits[0], "hello world") {
		t.Fatalf("expected accumulated text in edit, got %q", ft.edits[0])
	}
}

func TestHandleEventEditFailureFallsBackToSend(t *testing.T) {
	ft := &fakeTransport{}
	s := newTestStreamer(ft)

	s.HandleEvent("chat1", "run1", events.Event{Type: events.TypeTextDelta, Text: "a"})
	ft.failEdits = true
	s.HandleEvent("chat1", "run1", events.Event{Type: events.TypeTextDelta, Text: "b"})

	if len(ft.sent) != 2 {
		t.Fatalf("expected fallback send after edit failure, got %d sends", len(ft.sent))
	}
}

func TestHandleEventErrorBypassesThrottleAndBuffer(t *testing.T) {
	ft := &fakeTransport{}
	s := New(ft, nil) // default throttle (2000ms), never elapsed during test

	s.HandleEvent("chat1", "run1", events.Event{Type: events.TypeError, Message: "boom"})
	if len(ft.sent) != 1 || !strings.Contains(ft.sent[0], "boom") {
		t.Fatalf("expected immediate error message, got %+v", ft.sent)
	}
}

func TestToolNamesKeepsLastThree(t *testing.T) {
	ft := &fakeTransport{}
	s := newTestStreamer(ft)
	for _, name := range []string{"a", "b", "c", "d"} {
		s.HandleEvent("chat1", "run1", events.Event{Type: events.TypeToolStart, ToolName: name})
	}
	last := ft.edits[len(ft.edits)-1]
	if strings.Contains(last, "Tools: a,") || !strings.Contains(last, "b, c, d") {
		t.Fatalf("expected only last 3 tool names, got %q", last)
	}
}

func TestFinishRunEditsProgressMessageWithFooter(t *testing.T) {
	ft := &fakeTransport{}
	s := newTestStreamer(ft)
	s.HandleEvent("chat1", "run1", events.Event{Type: events.TypeTextDelta, Text: "done thinking"})

	s.FinishRun("chat1", "run1", FinishInfo{Status: "completed", DurationMs: 4200})

	if len(ft.edits) == 0 {
		t.Fatalf("expected a final edit")
	}
	final := ft.edits[len(ft.edits)-1]
	if !strings.Contains(final, "done thinking") || !strings.Contains(final, "✅") || !strings.Contains(final, "4s") {
		t.Fatalf("unexpected final text: %q", final)
	}
}

func TestFinishRunSplitsOversizedText(t *testing.T) {
	ft := &fakeTransport{}
	s := newTestStreamer(ft)
	big := strings.Repeat("x", maxMessageLen+500)
	s.HandleEvent("chat1", "run1", events.Event{Type: events.TypeTextDelta, Text: big})

	s.FinishRun("chat1", "run1", FinishInfo{Status: "failed", DurationMs: 1000})

	if len(ft.sent) < 2 {
		t.Fatalf("expected additional chunk(s) sent for oversized final text")
	}
}

func TestFinishRunClearsState(t *testing.T) {
	ft := &fakeTransport{}
	s := newTestStreamer(ft)
	s.HandleEvent("chat1", "run1", events.Event{Type: events.TypeTextDelta, Text: "hi"})
	s.FinishRun("chat1", "run1", FinishInfo{Status: "completed", DurationMs: 100})

	s.mu.Lock()
	_, exists := s.runs["run1"]
	s.mu.Unlock()
	if exists {
		t.Fatalf("expected run state to be removed after FinishRun")
	}
}

func TestSanitizeStripsControlCharsKeepsWhitespace(t *testing.T) {
	in := "hello\x00\x01world\tok\n"
	out := sanitize(in)
	if strings.Contains(out, "\x00") || strings.Contains(out, "\x01") {
		t.Fatalf("expected control chars stripped, got %q", out)
	}
	if !strings.Contains(out, "\t") {
		t.Fatalf("expected tab preserved, got %q", out)
	}
}

func TestFormatElapsed(t *testing.T) {
	if got := formatElapsedMs(59_000); got != "59s" {
		t.Fatalf("expected 59s, got %s", got)
	}
	if got := formatElapsedMs(125_000); got != "2m 5s" {
		t.Fatalf("expected 2m 5s, got %s", got)
	}
}
