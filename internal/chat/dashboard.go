package chat

import (
	"fmt"
	"strings"

	"ohmyremote/internal/store"
	"ohmyremote/internal/transport"
)

// buildDashboard renders the main keyboard: up to three project buttons
// per row, an engine toggle, a models submenu entry, new-session/sessions
// shortcuts, unsafe-mode toggles, and a refresh button.
func (h *Handler) buildDashboard(st *chatState) (string, transport.Keyboard) {
	projects, _ := h.deps.Store.ListProjects()

	var kb transport.Keyboard
	var row []transport.Button
	for _, p := range projects {
		label := p.Name
		if p.ID == st.ProjectID {
			label = "✓ " + label
		}
		row = append(row, transport.Button{Text: label, CallbackData: "proj:" + p.ID})
		if len(row) == 3 {
			kb = append(kb, row)
			row = nil
		}
	}
	if len(row) > 0 {
		kb = append(kb, row)
	}

	otherEngine := "opencode"
	if st.DefaultEngine == "opencode" {
		otherEngine = "claude"
	}
	kb = append(kb, []transport.Button{
		{Text: "Engine: " + st.DefaultEngine, CallbackData: "engine:" + otherEngine},
		{Text: "Models", CallbackData: "models"},
	})
	kb = append(kb, []transport.Button{
		{Text: "New session", CallbackData: "newsession"},
		{Text: "Sessions", CallbackData: "sessions"},
	})
	kb = append(kb, []transport.Button{
		{Text: "Unsafe 30", CallbackData: "unsafe:30"},
		{Text: "Unsafe 60", CallbackData: "unsafe:60"},
		{Text: "Off", CallbackData: "unsafe_off"},
	})
	kb = append(kb, []transport.Button{{Text: "Refresh", CallbackData: "refresh"}})

	text := fmt.Sprintf("Project: %s\nSession: %s\nEngine: %s", orEmpty(projectName(projects, st.ProjectID)), orEmpty(st.SessionID), st.DefaultEngine)
	return text, kb
}

func projectName(projects []store.Project, id string) string {
	for _, p := range projects {
		if p.ID == id {
			return p.Name
		}
	}
	return ""
}

func (h *Handler) buildSessionsMenu(st *chatState) (string, transport.Keyboard) {
	sessions, _ := h.deps.Store.ListSessionsByProject(st.ProjectID)
	var kb transport.Keyboard
	var b strings.Builder
	b.WriteString("Sessions:\n")
	for _, s := range sessions {
		mark := " "
		if s.ID == st.SessionID {
			mark = "✓"
		}
		fmt.Fprintf(&b, "%s %s [%s]\n", mark, s.ID, s.Provider)
		kb = append(kb, []transport.Button{{Text: s.ID, CallbackData: "session:" + s.ID}})
	}
	kb = append(kb, []transport.Button{{Text: "Back", CallbackData: "back"}})
	return b.String(), kb
}

func (h *Handler) buildModelsMenu(st *chatState) (string, transport.Keyboard) {
	models := []string{"claude-opus-4-6", "claude-sonnet-4-6"}
	if st.DefaultEngine == "opencode" {
		models = []string{"opencode-default"}
	}
	var kb transport.Keyboard
	for _, m := range models {
		label := m
		if m == st.Model {
			label = "✓ " + label
		}
		kb = append(kb, []transport.Button{{Text: label, CallbackData: "model:" + m}})
	}
	kb = append(kb, []transport.Button{{Text: "Back", CallbackData: "back"}})
	return "Select a model:", kb
}

func (h *Handler) dispatchCallback(chatID, messageID string, st *chatState, data string) []transport.Action {
	prefix, arg, _ := strings.Cut(data, ":")
	switch prefix {
	case "proj":
		st.ProjectID = arg
		st.SessionID = ""
		_ = h.deps.Store.SetChatProject(st.ChatRowID, arg, h.deps.Now())
		text, kb := h.buildDashboard(st)
		return []transport.Action{editKeyboard(chatID, messageID, text, kb)}
	case "engine":
		st.DefaultEngine = arg
		text, kb := h.buildDashboard(st)
		return []transport.Action{editKeyboard(chatID, messageID, text, kb)}
	case "newsession":
		h.cmdNewSession(chatID, st, st.DefaultEngine)
		text, kb := h.buildDashboard(st)
		return []transport.Action{editKeyboard(chatID, messageID, text, kb)}
	case "continue":
		_ = h.deps.Store.SetSessionEngineSessionID(st.SessionID, "__continue__", h.deps.Now())
		text, kb := h.buildDashboard(st)
		return []transport.Action{editKeyboard(chatID, messageID, text, kb)}
	case "session":
		st.SessionID = arg
		text, kb := h.buildDashboard(st)
		return []transport.Action{editKeyboard(chatID, messageID, text, kb)}
	case "sessions":
		text, kb := h.buildSessionsMenu(st)
		return []transport.Action{editKeyboard(chatID, messageID, text, kb)}
	case "unsafe":
		minutes := 0
		fmt.Sscanf(arg, "%d", &minutes)
		now := h.deps.Now()
		until := now + int64(minutes)*60000
		_ = h.deps.Store.SetChatUnsafeUntil(st.ChatRowID, until, now)
		st.UnsafeUntil = until
		text, kb := h.buildDashboard(st)
		return []transport.Action{editKeyboard(chatID, messageID, text, kb)}
	case "unsafe_off":
		_ = h.deps.Store.SetChatUnsafeUntil(st.ChatRowID, 0, h.deps.Now())
		st.UnsafeUntil = 0
		text, kb := h.buildDashboard(st)
		return []transport.Action{editKeyboard(chatID, messageID, text, kb)}
	case "model":
		st.Model = arg
		text, kb := h.buildDashboard(st)
		return []transport.Action{editKeyboard(chatID, messageID, text, kb)}
	case "agent":
		st.OpenCodeAgent = arg
		text, kb := h.buildDashboard(st)
		return []transport.Action{editKeyboard(chatID, messageID, text, kb)}
	case "models":
		text, kb := h.buildModelsMenu(st)
		return []transport.Action{editKeyboard(chatID, messageID, text, kb)}
	case "clisessions":
		text, kb := h.buildSessionsMenu(st)
		return []transport.Action{editKeyboard(chatID, messageID, text, kb)}
	case "clipeek":
		sess, err := h.deps.Store.GetSession(arg)
		if err != nil {
			return nil
		}
		text := fmt.Sprintf("Session %s\nEngine session: %s\nStatus: %s", sess.ID, orEmpty(sess.EngineSessionID), sess.Status)
		return []transport.Action{editKeyboard(chatID, messageID, text, transport.Keyboard{{{Text: "Back", CallbackData: "back"}}})}
	case "cliattach":
		_ = h.deps.Store.SetSessionEngineSessionID(st.SessionID, arg, h.deps.Now())
		text, kb := h.buildDashboard(st)
		return []transport.Action{editKeyboard(chatID, messageID, text, kb)}
	case "refresh", "back":
		text, kb := h.buildDashboard(st)
		return []transport.Action{editKeyboard(chatID, messageID, text, kb)}
	case "stop_run":
		_ = h.deps.Store.CancelRun(arg, h.deps.Now())
		text, kb := h.buildDashboard(st)
		return []transport.Action{editKeyboard(chatID, messageID, text, kb)}
	default:
		return nil
	}
}
