// Package streamer implements RunStreamer (C10): it coalesces a run's
// high-rate normalized event stream into throttled progress edits on a
// single chat message, falling back to a fresh send whenever an edit
// fails, and composes the final message when the run terminates.
//
// The throttled-edit-with-send-fallback cadence is grounded on
// internal/localapi/task_agent_actor.go's publish throttle
// (`if !force && now.Sub(lastPublishAt) < 120*time.Millisecond`) and on
// cmd/shellman/stream_pump.go's ticker-driven diff/flush loop, adapted
// from a terminal-frame cadence to a chat-message-edit cadence.
package streamer

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"ohmyremote/internal/events"
	"ohmyremote/internal/transport"
)

const (
	// DefaultEditIntervalMs is the minimum spacing between successive
	// edits to a run's progress message.
	DefaultEditIntervalMs = 2000
	// maxMessageLen mirrors Telegram's message length cap; final text is
	// split across multiple sends if it would exceed this.
	maxMessageLen = 4096
	previewLen    = 300
	maxToolNames  = 3
)

// FinishInfo carries the terminal outcome RunStreamer needs to compose
// the final message.
type FinishInfo struct {
	Status          string
	DurationMs      int64
	EngineSessionID string
}

type runState struct {
	chatID             string
	progressMessageID  string
	startedAt          time.Time
	lastEditAt         time.Time
	textBuffer         strings.Builder
	toolNames          []string
}

// Streamer is C10.
type Streamer struct {
	transport      transport.MessageTransport
	logger         *slog.Logger
	editIntervalMs int64
	now            func() time.Time

	mu   sync.Mutex
	runs map[string]*runState
}

// New builds a Streamer. transport must not be nil. logger/now default if
// unset.
func New(mt transport.MessageTransport, logger *slog.Logger) *Streamer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Streamer{
		transport:      mt,
		logger:         logger,
		editIntervalMs: DefaultEditIntervalMs,
		now:            time.Now,
		runs:           map[string]*runState{},
	}
}

func (s *Streamer) stateFor(chatID, runID string) *runState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.runs[runID]
	if !ok {
		st = &runState{chatID: chatID, startedAt: s.now()}
		s.runs[runID] = st
	}
	return st
}

// HandleEvent accumulates ev into runID's coalescing state and, subject
// to the edit-interval throttle, pushes (or edits in place) a progress
// message in chatID. An `error` event always sends a fresh message
// immediately, bypassing the throttle.
func (s *Streamer) HandleEvent(chatID, runID string, ev events.Event) {
	st := s.stateFor(chatID, runID)

	switch ev.Type {
	case events.TypeTextDelta:
		st.textBuffer.WriteString(ev.Text)
	case events.TypeToolStart:
		if ev.ToolName != "" {
			st.toolNames = append(st.toolNames, ev.ToolName)
		}
	case events.TypeError:
		s.sendErrorMessage(chatID, ev.Message)
		return
	default:
		return
	}

	now := s.now()
	if !st.lastEditAt.IsZero() && now.Sub(st.lastEditAt).Milliseconds() < s.editIntervalMs {
		return
	}
	st.lastEditAt = now
	s.pushProgress(runID, st)
}

func (s *Streamer) sendErrorMessage(chatID, message string) {
	if _, err := s.transport.SendMessage(chatID, "Error: "+message, nil); err != nil {
		s.logger.Error("failed to send error message", "chat_id", chatID, "error", err)
	}
}

func (s *Streamer) pushProgress(runID string, st *runState) {
	text := s.composeProgress(runID, st)
	kb := transport.Keyboard{{{Text: "Stop", CallbackData: "stop_run:" + runID}}}

	if st.progressMessageID == "" {
		msgID, err := s.transport.SendMessage(st.chatID, text, kb)
		if err != nil {
			s.logger.Error("failed to send progress message", "run_id", runID, "error", err)
			return
		}
		st.progressMessageID = msgID
		return
	}

	if err := s.transport.EditMessage(st.chatID, st.progressMessageID, text, kb); err != nil {
		msgID, sendErr := s.transport.SendMessage(st.chatID, text, kb)
		if sendErr != nil {
			s.logger.Error("failed to send fallback progress message", "run_id", runID, "error", sendErr)
			return
		}
		st.progressMessageID = msgID
	}
}

func (s *Streamer) composeProgress(runID string, st *runState) string {
	var b strings.Builder
	b.WriteString("Working... (")
	b.WriteString(formatElapsed(s.now().Sub(st.startedAt)))
	b.WriteString(")")

	if len(st.toolNames) > 0 {
		b.WriteString("\nTools: ")
		b.WriteString(strings.Join(lastN(st.toolNames, maxToolNames), ", "))
	}

	preview := lastChars(st.textBuffer.String(), previewLen)
	preview = strings.TrimSpace(preview)
	if preview != "" {
		b.WriteString("\n\n")
		b.WriteString(preview)
	}
	return b.String()
}

// FinishRun composes the run's final text (sanitized buffer plus a
// status/elapsed footer), edits the progress message if it fits within
// the transport's length cap, otherwise splits it across fresh sends,
// and clears the run's coalescing state.
func (s *Streamer) FinishRun(chatID, runID string, info FinishInfo) {
	s.mu.Lock()
	st, ok := s.runs[runID]
	if ok {
		delete(s.runs, runID)
	}
	s.mu.Unlock()
	if !ok {
		st = &runState{chatID: chatID, startedAt: s.now()}
	}

	footer := "\n\n[" + statusIcon(info.Status) + " in " + formatElapsedMs(info.DurationMs) + "]"
	body := sanitize(st.textBuffer.String())
	finalText := body + footer

	if len(finalText) <= maxMessageLen {
		s.finalizeSingle(chatID, st, finalText)
		return
	}
	s.finalizeSplit(chatID, st, body, footer)
}

func (s *Streamer) finalizeSingle(chatID string, st *runState, finalText string) {
	if st.progressMessageID == "" {
		if _, err := s.transport.SendMessage(chatID, finalText, nil); err != nil {
			s.logger.Error("failed to send final message", "chat_id", chatID, "error", err)
		}
		return
	}
	if err := s.transport.EditMessage(chatID, st.progressMessageID, finalText, nil); err != nil {
		if _, sendErr := s.transport.SendMessage(chatID, finalText, nil); sendErr != nil {
			s.logger.Error("failed to send fallback final message", "chat_id", chatID, "error", sendErr)
		}
	}
}

func (s *Streamer) finalizeSplit(chatID string, st *runState, body, footer string) {
	chunks := splitByLimit(body, maxMessageLen-len(footer))
	if len(chunks) == 0 {
		chunks = []string{""}
	}
	last := len(chunks) - 1
	chunks[last] = chunks[last] + footer

	first := chunks[0]
	if st.progressMessageID == "" {
		if _, err := s.transport.SendMessage(chatID, first, nil); err != nil {
			s.logger.Error("failed to send final message head", "chat_id", chatID, "error", err)
		}
	} else if err := s.transport.EditMessage(chatID, st.progressMessageID, first, nil); err != nil {
		if _, sendErr := s.transport.SendMessage(chatID, first, nil); sendErr != nil {
			s.logger.Error("failed to send fallback final message head", "chat_id", chatID, "error", sendErr)
		}
	}

	for _, chunk := range chunks[1:] {
		if _, err := s.transport.SendMessage(chatID, chunk, nil); err != nil {
			s.logger.Error("failed to send final message chunk", "chat_id", chatID, "error", err)
		}
	}
}

func statusIcon(status string) string {
	switch status {
	case "completed", "success":
		return "✅"
	case "cancelled", "canceled":
		return "⏹"
	case "abandoned":
		return "⚠"
	default:
		return "❌"
	}
}

func formatElapsed(d time.Duration) string {
	return formatElapsedMs(d.Milliseconds())
}

func formatElapsedMs(ms int64) string {
	totalSeconds := ms / 1000
	if totalSeconds < 60 {
		return itoa(totalSeconds) + "s"
	}
	minutes := totalSeconds / 60
	seconds := totalSeconds % 60
	return itoa(minutes) + "m " + itoa(seconds) + "s"
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

func lastN(xs []string, n int) []string {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

func lastChars(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

// sanitize strips ASCII control characters except tab/LF/CR and trims
// leading/trailing whitespace.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			continue
		}
		if r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// splitByLimit splits s into chunks no longer than limit, preferring to
// break on the last newline within the limit and falling back to a hard
// cut when no newline is available.
func splitByLimit(s string, limit int) []string {
	if limit <= 0 {
		limit = maxMessageLen
	}
	var chunks []string
	for len(s) > limit {
		cut := strings.LastIndex(s[:limit], "\n")
		if cut <= 0 {
			cut = limit
		}
		chunks = append(chunks, s[:cut])
		s = strings.TrimPrefix(s[cut:], "\n")
	}
	chunks = append(chunks, s)
	return chunks
}
