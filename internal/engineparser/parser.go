// Package engineparser turns engine-specific line-delimited JSON output
// into the normalized event stream defined by the events package.
package engineparser

import "ohmyremote/internal/events"

// Parser is the shared contract for the claude and opencode line parsers.
// A Parser emits exactly one run_finished event across its lifetime: if
// none was observed in the input, Finish synthesizes one with the given
// terminal status.
type Parser interface {
	// Push decodes a single already-framed line (no trailing newline) and
	// returns zero or more normalized events. Malformed JSON increments
	// the malformed-line counter but never returns an error.
	Push(line string) []events.Event

	// Finish signals end of input with the process's observed terminal
	// status and returns any residual events, including a synthesized
	// run_finished if one was never emitted.
	Finish(terminalStatus events.RunFinishedStatus) []events.Event

	// EngineSessionID returns the latest engine-assigned session id
	// observed in any line, or "" if none was seen.
	EngineSessionID() string

	// MalformedCount returns the number of lines that failed to decode
	// as JSON at all.
	MalformedCount() int
}

// sessionIDFields is the set of keys, in priority order, that carry an
// engine-assigned session id across both engines' JSON shapes.
var sessionIDFields = []string{"session_id", "sessionID", "sessionId"}

func extractSessionID(m map[string]any) (string, bool) {
	for _, key := range sessionIDFields {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}
