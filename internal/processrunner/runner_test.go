package processrunner

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRunner_SingleFlight(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	started := make(chan struct{})
	opts := StartOptions{
		SessionKey: "sess-1",
		Command:    "sh",
		Args:       []string{"-c", "sleep 1"},
		OnLifecycle: func(ev LifecycleEvent) {
			if ev.Stage == LifecycleRunning {
				close(started)
			}
		},
	}
	h1, err := r.Start(ctx, opts)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	<-started

	if _, err := r.Start(ctx, opts); err != ErrSingleFlightSession {
		t.Fatalf("expected ErrSingleFlightSession, got %v", err)
	}

	h1.Cancel()
	<-h1.Result
}

func TestRunner_CancelEscalatesToKill(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	var stages []Lifecycle
	var mu sync.Mutex
	started := make(chan struct{})
	ready := make(chan struct{}, 1)

	h, err := r.Start(ctx, StartOptions{
		SessionKey:    "sess-2",
		Command:       "sh",
		Args:          []string{"-c", "trap '' INT; echo ready; exec sleep 5"},
		CancelGraceMs: 50,
		OnStdout: func(chunk []byte) {
			select {
			case ready <- struct{}{}:
			default:
			}
		},
		OnLifecycle: func(ev LifecycleEvent) {
			mu.Lock()
			stages = append(stages, ev.Stage)
			mu.Unlock()
			if ev.Stage == LifecycleRunning {
				close(started)
			}
		},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	<-started
	<-ready // the child has installed its SIGINT trap

	h.Cancel()
	h.Cancel() // no-op, must not panic or double-emit

	select {
	case res := <-h.Result:
		if !res.Cancelled || res.Status != StatusCancelled {
			t.Fatalf("unexpected result: %+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for cancelled result")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(stages) < 4 || stages[0] != LifecycleStarting || stages[len(stages)-1] != LifecycleExited {
		t.Fatalf("unexpected lifecycle sequence: %v", stages)
	}
	hasKilling := false
	for _, s := range stages {
		if s == LifecycleKilling {
			hasKilling = true
		}
	}
	if !hasKilling {
		t.Fatalf("expected a killing stage, got %v", stages)
	}
}

func TestRunner_StdoutBackpressure(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	var mu sync.Mutex
	var chunks []string
	h, err := r.Start(ctx, StartOptions{
		SessionKey: "sess-3",
		Command:    "sh",
		Args:       []string{"-c", "echo one; echo two"},
		OnStdout: func(chunk []byte) {
			mu.Lock()
			chunks = append(chunks, string(chunk))
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	res := <-h.Result
	if res.Status != StatusCompleted {
		t.Fatalf("unexpected status: %+v", res)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(chunks) == 0 {
		t.Fatalf("expected at least one stdout chunk")
	}
}
