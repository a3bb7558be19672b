package engineparser

import (
	"encoding/json"
	"fmt"

	"ohmyremote/internal/events"
)

// ClaudeParser decodes claude's `stream-json` line-delimited output.
type ClaudeParser struct {
	malformed       int
	sessionID       string
	runFinishedSeen bool
}

// NewClaudeParser returns a fresh claude stream parser.
func NewClaudeParser() *ClaudeParser {
	return &ClaudeParser{}
}

func (p *ClaudeParser) Push(line string) []events.Event {
	if line == "" {
		return nil
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		p.malformed++
		return nil
	}

	if sid, ok := extractSessionID(m); ok {
		p.sessionID = sid
	}

	typ, _ := m["type"].(string)
	switch typ {
	case "stream_event":
		return p.handleStreamEvent(m)
	case "assistant":
		return p.handleAssistant(m)
	case "result":
		return p.handleResult(m)
	case "error":
		return []events.Event{p.errorEvent(m)}
	default:
		return nil
	}
}

func (p *ClaudeParser) handleStreamEvent(m map[string]any) []events.Event {
	event, _ := m["event"].(map[string]any)
	if event == nil {
		return nil
	}
	etype, _ := event["type"].(string)
	switch etype {
	case "content_block_delta":
		delta, _ := event["delta"].(map[string]any)
		if delta == nil {
			return nil
		}
		if dtype, _ := delta["type"].(string); dtype != "text_delta" {
			return nil
		}
		text, _ := delta["text"].(string)
		if text == "" {
			return nil
		}
		return []events.Event{{Type: events.TypeTextDelta, Text: text, Raw: m}}
	case "content_block_start":
		block, _ := event["content_block"].(map[string]any)
		if block == nil {
			return nil
		}
		if btype, _ := block["type"].(string); btype != "tool_use" {
			return nil
		}
		name, _ := block["name"].(string)
		id, _ := block["id"].(string)
		if name == "" {
			return nil
		}
		return []events.Event{{Type: events.TypeToolStart, ToolName: name, CallID: id, Raw: m}}
	default:
		return nil
	}
}

func (p *ClaudeParser) handleAssistant(m map[string]any) []events.Event {
	message, _ := m["message"].(map[string]any)
	if message == nil {
		return nil
	}
	content, _ := message["content"].([]any)
	var out []events.Event
	for _, raw := range content {
		block, _ := raw.(map[string]any)
		if block == nil {
			continue
		}
		if btype, _ := block["type"].(string); btype != "tool_use" {
			continue
		}
		name, _ := block["name"].(string)
		id, _ := block["id"].(string)
		if name == "" {
			continue
		}
		input, _ := block["input"].(map[string]any)
		out = append(out, events.Event{Type: events.TypeToolEnd, ToolName: name, CallID: id, Output: input, Raw: m})
	}
	return out
}

func (p *ClaudeParser) handleResult(m map[string]any) []events.Event {
	isError, _ := m["is_error"].(bool)
	var out []events.Event

	status := events.RunFinishedUnknown
	if isError {
		status = events.RunFinishedError
		out = append(out, p.errorEvent(m))
	} else if subtype, _ := m["subtype"].(string); subtype != "" {
		switch subtype {
		case "success":
			status = events.RunFinishedSuccess
		case "error":
			status = events.RunFinishedError
		case "cancelled", "canceled":
			status = events.RunFinishedCancelled
		default:
			status = events.RunFinishedUnknown
		}
	}

	if fin, ok := p.emitRunFinished(status); ok {
		out = append(out, fin)
	}
	return out
}

func (p *ClaudeParser) errorEvent(m map[string]any) events.Event {
	msg := bestAvailableMessage(m, "result", "error", "message", "body")
	return events.Event{Type: events.TypeError, Message: msg, Raw: m}
}

func (p *ClaudeParser) Finish(terminalStatus events.RunFinishedStatus) []events.Event {
	if fin, ok := p.emitRunFinished(terminalStatus); ok {
		return []events.Event{fin}
	}
	return nil
}

func (p *ClaudeParser) emitRunFinished(status events.RunFinishedStatus) (events.Event, bool) {
	if p.runFinishedSeen {
		return events.Event{}, false
	}
	p.runFinishedSeen = true
	return events.Event{Type: events.TypeRunFinished, Status: status}, true
}

func (p *ClaudeParser) EngineSessionID() string { return p.sessionID }
func (p *ClaudeParser) MalformedCount() int     { return p.malformed }

// bestAvailableMessage returns the first non-empty string field among
// keys, falling back to a truncated stringification of the whole object.
func bestAvailableMessage(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	s := fmt.Sprintf("%v", m)
	const maxLen = 500
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}
