package engineparser

import (
	"testing"

	"ohmyremote/internal/events"
)

func TestClaudeParser_Resilience(t *testing.T) {
	p := NewClaudeParser()
	var got []events.Type

	for _, e := range p.Push(`{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"hi"}}}`) {
		got = append(got, e.Type)
	}
	if evs := p.Push(`{bad json}`); evs != nil {
		t.Fatalf("malformed line should yield no events, got %v", evs)
	}
	for _, e := range p.Push(`{"type":"result","subtype":"success"}`) {
		got = append(got, e.Type)
	}

	want := []events.Type{events.TypeTextDelta, events.TypeRunFinished}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if p.MalformedCount() != 1 {
		t.Fatalf("malformed count = %d, want 1", p.MalformedCount())
	}
}

func TestClaudeParser_RunFinishedExactlyOnce(t *testing.T) {
	p := NewClaudeParser()
	p.Push(`{"type":"result","subtype":"success"}`)
	p.Push(`{"type":"result","subtype":"success"}`)
	evs := p.Finish(events.RunFinishedUnknown)
	if evs != nil {
		t.Fatalf("Finish should not re-emit run_finished, got %v", evs)
	}
}

func TestClaudeParser_FinishSynthesizesWhenMissing(t *testing.T) {
	p := NewClaudeParser()
	p.Push(`{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"hi"}}}`)
	evs := p.Finish(events.RunFinishedCancelled)
	if len(evs) != 1 || evs[0].Type != events.TypeRunFinished || evs[0].Status != events.RunFinishedCancelled {
		t.Fatalf("unexpected finish events: %v", evs)
	}
}

func TestClaudeParser_ToolLifecycle(t *testing.T) {
	p := NewClaudeParser()
	startEvs := p.Push(`{"type":"stream_event","event":{"type":"content_block_start","content_block":{"type":"tool_use","name":"Bash","id":"call1"}}}`)
	if len(startEvs) != 1 || startEvs[0].Type != events.TypeToolStart || startEvs[0].ToolName != "Bash" {
		t.Fatalf("unexpected tool_start events: %v", startEvs)
	}

	endEvs := p.Push(`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Bash","id":"call1","input":{"cmd":"ls"}}]}}`)
	if len(endEvs) != 1 || endEvs[0].Type != events.TypeToolEnd || endEvs[0].ToolName != "Bash" {
		t.Fatalf("unexpected tool_end events: %v", endEvs)
	}
}

func TestClaudeParser_ErrorResult(t *testing.T) {
	p := NewClaudeParser()
	evs := p.Push(`{"type":"result","is_error":true,"result":"rate limited"}`)
	if len(evs) != 2 {
		t.Fatalf("want error + run_finished, got %v", evs)
	}
	if evs[0].Type != events.TypeError || evs[0].Message != "rate limited" {
		t.Fatalf("unexpected error event: %v", evs[0])
	}
	if evs[1].Type != events.TypeRunFinished || evs[1].Status != events.RunFinishedError {
		t.Fatalf("unexpected run_finished event: %v", evs[1])
	}
}

func TestClaudeParser_SessionID(t *testing.T) {
	p := NewClaudeParser()
	p.Push(`{"type":"result","subtype":"success","session_id":"sess-1"}`)
	if p.EngineSessionID() != "sess-1" {
		t.Fatalf("EngineSessionID() = %q, want sess-1", p.EngineSessionID())
	}
}
