package engineparser

import (
	"encoding/json"
	"strings"

	"ohmyremote/internal/events"
)

// OpenCodeParser decodes opencode's permissive per-event JSON-lines
// output. Unlike claude, event type names are not fixed; they are
// normalized (lowercased, non-alphanumeric runs collapsed to a single
// underscore) before being matched against the known aliases.
type OpenCodeParser struct {
	malformed       int
	sessionID       string
	runFinishedSeen bool
}

// NewOpenCodeParser returns a fresh opencode line parser.
func NewOpenCodeParser() *OpenCodeParser {
	return &OpenCodeParser{}
}

func (p *OpenCodeParser) Push(line string) []events.Event {
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

	rawType, _ := m["type"].(string)
	typ := normalizeType(rawType)

	switch {
	case typ == "started" || typ == "run_started" || typ == "run_start":
		return []events.Event{{Type: events.TypeRunStarted, Raw: m}}

	case typ == "text" || typ == "text_delta" || typ == "message_delta" || typ == "output_text_delta":
		text := firstNonEmptyString(m, "text")
		if text == "" {
			if part, ok := m["part"].(map[string]any); ok {
				text = firstNonEmptyString(part, "text")
			}
		}
		if text == "" {
			text = firstNonEmptyString(m, "delta", "content", "message")
		}
		if text == "" {
			return nil
		}
		return []events.Event{{Type: events.TypeTextDelta, Text: text, Raw: m}}

	case typ == "tool_use":
		return p.handleToolUse(m)

	case strings.HasPrefix(typ, "tool_start") || strings.HasPrefix(typ, "tool_started"):
		name, callID := toolIdentity(m)
		if name == "" {
			return nil
		}
		return []events.Event{{Type: events.TypeToolStart, ToolName: name, CallID: callID, Raw: m}}

	case strings.HasPrefix(typ, "tool_end") || strings.HasPrefix(typ, "tool_call_"):
		name, callID := toolIdentity(m)
		if name == "" {
			return nil
		}
		return []events.Event{{Type: events.TypeToolEnd, ToolName: name, CallID: callID, Output: m["output"], Raw: m}}

	case typ == "step_start" || typ == "step_finish":
		return nil

	case typ == "finished" || typ == "completed" || typ == "run_finished" || typ == "run_end":
		status := events.RunFinishedSuccess
		if s, ok := m["status"].(string); ok && s != "" {
			switch normalizeType(s) {
			case "error", "failed":
				status = events.RunFinishedError
			case "cancelled", "canceled":
				status = events.RunFinishedCancelled
			case "success", "ok", "completed":
				status = events.RunFinishedSuccess
			default:
				status = events.RunFinishedUnknown
			}
		}
		if fin, ok := p.emitRunFinished(status); ok {
			return []events.Event{fin}
		}
		return nil

	case typ == "file_uploaded" || typ == "upload_completed":
		return []events.Event{fileEvent(events.TypeFileUploaded, m)}

	case typ == "file_downloaded" || typ == "download_completed":
		return []events.Event{fileEvent(events.TypeFileDownloaded, m)}

	case typ == "error":
		msg := bestAvailableMessage(m, "message", "error", "result", "body")
		return []events.Event{{Type: events.TypeError, Message: msg, Raw: m}}

	default:
		return nil
	}
}

func (p *OpenCodeParser) handleToolUse(m map[string]any) []events.Event {
	name, callID := toolIdentity(m)
	if name == "" {
		return nil
	}
	part, _ := m["part"].(map[string]any)
	var state map[string]any
	if part != nil {
		state, _ = part["state"].(map[string]any)
	}
	status := ""
	if state != nil {
		status, _ = state["status"].(string)
	}
	if status == "" || status == "pending" {
		return []events.Event{{Type: events.TypeToolStart, ToolName: name, CallID: callID, Raw: m}}
	}
	var output any
	if state != nil {
		if o, ok := state["output"]; ok {
			output = o
		} else if e, ok := state["error"]; ok {
			output = e
		}
	}
	return []events.Event{{Type: events.TypeToolEnd, ToolName: name, CallID: callID, Output: output, Raw: m}}
}

func (p *OpenCodeParser) Finish(terminalStatus events.RunFinishedStatus) []events.Event {
	if fin, ok := p.emitRunFinished(terminalStatus); ok {
		return []events.Event{fin}
	}
	return nil
}

func (p *OpenCodeParser) emitRunFinished(status events.RunFinishedStatus) (events.Event, bool) {
	if p.runFinishedSeen {
		return events.Event{}, false
	}
	p.runFinishedSeen = true
	return events.Event{Type: events.TypeRunFinished, Status: status}, true
}

func (p *OpenCodeParser) EngineSessionID() string { return p.sessionID }
func (p *OpenCodeParser) MalformedCount() int     { return p.malformed }

func normalizeType(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}

func firstNonEmptyString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func toolIdentity(m map[string]any) (name string, callID string) {
	name = firstNonEmptyString(m, "toolName", "tool", "name")
	callID = firstNonEmptyString(m, "callId", "callID", "id")
	if name == "" {
		if part, ok := m["part"].(map[string]any); ok {
			name = firstNonEmptyString(part, "tool", "name")
			if callID == "" {
				callID = firstNonEmptyString(part, "callId", "id")
			}
		}
	}
	return name, callID
}

func fileEvent(t events.Type, m map[string]any) events.Event {
	sizeBytes := int64(0)
	if v, ok := m["sizeBytes"].(float64); ok {
		sizeBytes = int64(v)
	}
	return events.Event{
		Type:      t,
		FilePath:  firstNonEmptyString(m, "filePath", "path"),
		FileName:  firstNonEmptyString(m, "fileName", "name"),
		SizeBytes: sizeBytes,
		URL:       firstNonEmptyString(m, "url"),
		Raw:       m,
	}
}
