package engineparser

import (
	"testing"

	"ohmyremote/internal/events"
)

func TestOpenCodeParser_BasicLifecycle(t *testing.T) {
	p := NewOpenCodeParser()

	evs := p.Push(`{"type":"run_started"}`)
	if len(evs) != 1 || evs[0].Type != events.TypeRunStarted {
		t.Fatalf("unexpected run_started events: %v", evs)
	}

	evs = p.Push(`{"type":"text_delta","text":"partial output"}`)
	if len(evs) != 1 || evs[0].Type != events.TypeTextDelta || evs[0].Text != "partial output" {
		t.Fatalf("unexpected text_delta events: %v", evs)
	}

	evs = p.Push(`{"type":"Tool-Use","part":{"tool":"grep","state":{"status":"pending"}}}`)
	if len(evs) != 1 || evs[0].Type != events.TypeToolStart || evs[0].ToolName != "grep" {
		t.Fatalf("unexpected tool_start events: %v", evs)
	}

	evs = p.Push(`{"type":"tool_use","part":{"tool":"grep","state":{"status":"completed","output":"3 matches"}}}`)
	if len(evs) != 1 || evs[0].Type != events.TypeToolEnd || evs[0].Output != "3 matches" {
		t.Fatalf("unexpected tool_end events: %v", evs)
	}

	evs = p.Push(`{"type":"step_start"}`)
	if evs != nil {
		t.Fatalf("step_start should be dropped, got %v", evs)
	}

	evs = p.Push(`{"type":"run_finished","status":"success"}`)
	if len(evs) != 1 || evs[0].Type != events.TypeRunFinished || evs[0].Status != events.RunFinishedSuccess {
		t.Fatalf("unexpected run_finished events: %v", evs)
	}
}

func TestOpenCodeParser_MalformedLinesCounted(t *testing.T) {
	p := NewOpenCodeParser()
	p.Push(`not json`)
	p.Push(``)
	if p.MalformedCount() != 1 {
		t.Fatalf("malformed count = %d, want 1", p.MalformedCount())
	}
}

func TestOpenCodeParser_FinishSynthesizesOnce(t *testing.T) {
	p := NewOpenCodeParser()
	p.Push(`{"type":"run_finished","status":"success"}`)
	if evs := p.Finish(events.RunFinishedError); evs != nil {
		t.Fatalf("Finish after an observed run_finished should be empty, got %v", evs)
	}

	p2 := NewOpenCodeParser()
	evs := p2.Finish(events.RunFinishedError)
	if len(evs) != 1 || evs[0].Status != events.RunFinishedError {
		t.Fatalf("unexpected synthesized finish: %v", evs)
	}
}
