package chat

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ohmyremote/internal/orchestrator"
	"ohmyremote/internal/store"
	"ohmyremote/internal/transport"
)

func (h *Handler) cmdDashboard(chatID string, st *chatState) []transport.Action {
	text, kb := h.buildDashboard(st)
	return []transport.Action{replyKeyboard(chatID, text, kb)}
}

func (h *Handler) cmdProjects(chatID string, st *chatState) []transport.Action {
	projects, err := h.deps.Store.ListProjects()
	if err != nil {
		return []transport.Action{reply(chatID, "Failed to list projects: "+err.Error())}
	}
	if len(projects) == 0 {
		return []transport.Action{reply(chatID, "No projects configured.")}
	}
	var b strings.Builder
	for _, p := range projects {
		mark := " "
		if p.ID == st.ProjectID {
			mark = "*"
		}
		fmt.Fprintf(&b, "%s %s (%s)\n", mark, p.Name, p.ID)
	}
	return []transport.Action{reply(chatID, b.String())}
}

func (h *Handler) cmdUse(chatID string, st *chatState, projectID string) []transport.Action {
	if projectID == "" {
		return []transport.Action{reply(chatID, "Usage: /use <projectId>")}
	}
	if _, err := h.deps.Store.GetProject(projectID); err != nil {
		return []transport.Action{reply(chatID, "Unknown project: "+projectID)}
	}
	st.ProjectID = projectID
	st.SessionID = ""
	_ = h.deps.Store.SetChatProject(st.ChatRowID, projectID, h.deps.Now())
	return []transport.Action{reply(chatID, "Switched to project "+projectID)}
}

func (h *Handler) cmdSessions(chatID string, st *chatState) []transport.Action {
	if st.ProjectID == "" {
		return []transport.Action{reply(chatID, "No project selected.")}
	}
	sessions, err := h.deps.Store.ListSessionsByProject(st.ProjectID)
	if err != nil {
		return []transport.Action{reply(chatID, "Failed to list sessions: "+err.Error())}
	}
	if len(sessions) == 0 {
		return []transport.Action{reply(chatID, "No sessions yet. /newsession to create one.")}
	}
	var b strings.Builder
	for _, s := range sessions {
		mark := " "
		if s.ID == st.SessionID {
			mark = "*"
		}
		fmt.Fprintf(&b, "%s %s [%s]\n", mark, s.ID, s.Provider)
	}
	return []transport.Action{reply(chatID, b.String())}
}

func (h *Handler) cmdNewSession(chatID string, st *chatState, arg string) []transport.Action {
	engine, _, _ := strings.Cut(arg, " ")
	if engine == "" {
		engine = st.DefaultEngine
	}
	if engine != "claude" && engine != "opencode" {
		return []transport.Action{reply(chatID, "Engine must be claude or opencode.")}
	}
	if st.ProjectID == "" {
		projects, err := h.deps.Store.ListProjects()
		if err != nil || len(projects) == 0 {
			return []transport.Action{reply(chatID, "No project configured.")}
		}
		st.ProjectID = projects[0].ID
	}
	sess := &store.Session{ID: h.deps.NewID(), ProjectID: st.ProjectID, ChatID: st.ChatRowID, Provider: engine, Status: "idle"}
	if err := h.deps.Store.CreateSession(sess, h.deps.Now()); err != nil {
		return []transport.Action{reply(chatID, "Failed to create session: "+err.Error())}
	}
	st.SessionID = sess.ID
	st.DefaultEngine = engine
	return []transport.Action{reply(chatID, "New session: "+sess.ID)}
}

func (h *Handler) cmdUseSession(chatID string, st *chatState, sessionID string) []transport.Action {
	if sessionID == "" {
		return []transport.Action{reply(chatID, "Usage: /use_session <id>")}
	}
	sess, err := h.deps.Store.GetSession(sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return []transport.Action{reply(chatID, "Unknown session: "+sessionID)}
	}
	if err != nil {
		return []transport.Action{reply(chatID, "Failed to load session: "+err.Error())}
	}
	st.SessionID = sess.ID
	st.ProjectID = sess.ProjectID
	st.DefaultEngine = sess.Provider
	return []transport.Action{reply(chatID, "Using session "+sess.ID)}
}

func (h *Handler) cmdEngine(chatID string, st *chatState, engine string) []transport.Action {
	engine = strings.TrimSpace(engine)
	if engine != "claude" && engine != "opencode" {
		return []transport.Action{reply(chatID, "Usage: /engine <claude|opencode>")}
	}
	st.DefaultEngine = engine
	return []transport.Action{reply(chatID, "Engine set to "+engine)}
}

func (h *Handler) cmdRun(chatID string, st *chatState, prompt, messageID string) []transport.Action {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return []transport.Action{reply(chatID, "Usage: /run <prompt>")}
	}
	if h.deps.KillSwitch != nil && h.deps.KillSwitch() {
		h.audit("", chatID, "run", "", "deny", "kill-switch")
		return []transport.Action{reply(chatID, "Maintenance mode, runs are disabled.")}
	}

	projectID, sessionID, err := h.ensureProjectAndSession(st)
	if err != nil {
		return []transport.Action{reply(chatID, "Cannot start a run: "+err.Error())}
	}

	idempotencyKey := "tg:" + chatID + ":" + messageID
	run, err := h.deps.Orchestrator.Enqueue(projectID, sessionID, idempotencyKey, prompt)
	if errors.Is(err, orchestrator.ErrSessionAlreadyActive) {
		return []transport.Action{reply(chatID, "A run is already active on this session. /stop it first or wait.")}
	}
	if err != nil {
		return []transport.Action{reply(chatID, "Failed to enqueue run: "+err.Error())}
	}

	st.LastRunID = run.ID
	h.audit("", chatID, "run", run.ID, "allow", "")
	return []transport.Action{reply(chatID, "Run queued: "+run.ID)}
}

func (h *Handler) cmdContinue(chatID string, st *chatState, prompt, messageID string) []transport.Action {
	if _, sessionID, err := h.ensureProjectAndSession(st); err != nil {
		return []transport.Action{reply(chatID, "Cannot continue: "+err.Error())}
	} else if err := h.deps.Store.SetSessionEngineSessionID(sessionID, "__continue__", h.deps.Now()); err != nil {
		return []transport.Action{reply(chatID, "Failed to continue session: "+err.Error())}
	}
	if strings.TrimSpace(prompt) == "" {
		return []transport.Action{reply(chatID, "Continuing session "+st.SessionID)}
	}
	return h.cmdRun(chatID, st, prompt, messageID)
}

func (h *Handler) cmdAttach(chatID string, st *chatState, arg, messageID string) []transport.Action {
	engineSessionID, rest := splitCommand(arg)
	if engineSessionID == "" {
		return []transport.Action{reply(chatID, "Usage: /attach <engineSessionId> [prompt]")}
	}
	if _, sessionID, err := h.ensureProjectAndSession(st); err != nil {
		return []transport.Action{reply(chatID, "Cannot attach: "+err.Error())}
	} else if err := h.deps.Store.SetSessionEngineSessionID(sessionID, engineSessionID, h.deps.Now()); err != nil {
		return []transport.Action{reply(chatID, "Failed to attach: "+err.Error())}
	}
	if rest == "" {
		return []transport.Action{reply(chatID, "Attached to "+engineSessionID)}
	}
	return h.cmdRun(chatID, st, rest, messageID)
}

func (h *Handler) cmdStop(chatID string, st *chatState) []transport.Action {
	if st.SessionID == "" {
		return []transport.Action{reply(chatID, "No active session.")}
	}
	run, err := h.deps.Store.FindActiveRunBySession(st.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return []transport.Action{reply(chatID, "No run in progress.")}
	}
	if err != nil {
		return []transport.Action{reply(chatID, "Failed to look up run: "+err.Error())}
	}
	if err := h.deps.Store.CancelRun(run.ID, h.deps.Now()); err != nil {
		return []transport.Action{reply(chatID, "Failed to cancel: "+err.Error())}
	}
	return []transport.Action{reply(chatID, "Cancelling run "+run.ID)}
}

func (h *Handler) cmdStatus(chatID string, st *chatState) []transport.Action {
	if st.LastRunID == "" {
		return []transport.Action{reply(chatID, "No runs yet.")}
	}
	run, err := h.deps.Store.GetRun(st.LastRunID)
	if err != nil {
		return []transport.Action{reply(chatID, "Failed to load run: "+err.Error())}
	}
	return []transport.Action{reply(chatID, fmt.Sprintf("Run %s: %s", run.ID, run.Status))}
}

func (h *Handler) cmdCurrent(chatID string, st *chatState) []transport.Action {
	text := fmt.Sprintf("Project: %s\nSession: %s\nEngine: %s", orEmpty(st.ProjectID), orEmpty(st.SessionID), st.DefaultEngine)
	return []transport.Action{reply(chatID, text)}
}

func (h *Handler) cmdWhoami(chatID string) []transport.Action {
	return []transport.Action{reply(chatID, "Owner id: "+h.deps.OwnerUserID)}
}

func (h *Handler) cmdEnableUnsafe(chatID string, st *chatState, arg string) []transport.Action {
	minutes, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || minutes <= 0 {
		return []transport.Action{reply(chatID, "Usage: /enable_unsafe <minutes>")}
	}
	now := h.deps.Now()
	until := now + int64(minutes)*60000
	if err := h.deps.Store.SetChatUnsafeUntil(st.ChatRowID, until, now); err != nil {
		return []transport.Action{reply(chatID, "Failed to enable unsafe mode: "+err.Error())}
	}
	st.UnsafeUntil = until
	return []transport.Action{reply(chatID, "Unsafe mode enabled until "+formatISO(until))}
}

func (h *Handler) cmdUploads(chatID string, st *chatState) []transport.Action {
	files, err := h.deps.Store.ListFilesByChat(st.ChatRowID)
	if err != nil {
		return []transport.Action{reply(chatID, "Failed to list uploads: "+err.Error())}
	}
	if len(files) == 0 {
		return []transport.Action{reply(chatID, "No files yet.")}
	}
	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "%s %s (%d bytes)\n", f.Direction, f.OriginalName, f.SizeBytes)
	}
	return []transport.Action{reply(chatID, b.String())}
}

func (h *Handler) cmdGet(chatID string, st *chatState, arg string) []transport.Action {
	if arg == "" {
		return []transport.Action{reply(chatID, "Usage: /get <path>")}
	}
	if st.ProjectID == "" {
		return []transport.Action{reply(chatID, "No project selected.")}
	}
	project, err := h.deps.Store.GetProject(st.ProjectID)
	if err != nil {
		return []transport.Action{reply(chatID, "Failed to load project: "+err.Error())}
	}
	full := filepath.Join(project.RootPath, filepath.Clean("/"+arg))
	if !strings.HasPrefix(full, filepath.Clean(project.RootPath)+string(filepath.Separator)) {
		return []transport.Action{reply(chatID, "Path escapes the project root.")}
	}
	return []transport.Action{replyWithDocument(chatID, full, arg)}
}

func (h *Handler) cmdHelp(chatID string) []transport.Action {
	return []transport.Action{reply(chatID, strings.Join([]string{
		"/d or /dashboard - show the dashboard",
		"/projects - list projects",
		"/use <id> - switch project",
		"/sessions - list sessions",
		"/newsession <engine> [name] - create a session",
		"/use_session <id> - switch session",
		"/engine <claude|opencode> - set engine",
		"/run <text> - enqueue a run",
		"/continue [text] - continue the session",
		"/attach <engineSessionId> [text] - attach to an engine session",
		"/stop - cancel the active run",
		"/status - last run status",
		"/current - current selection",
		"/whoami - owner id",
		"/enable_unsafe <minutes> - grant unsafe tool access",
		"/uploads - list file records",
		"/get <path> - download a project file",
		"/reload_projects - reload project config",
	}, "\n"))}
}

func (h *Handler) cmdReloadProjects(chatID string, st *chatState) []transport.Action {
	if h.deps.ProjectsConfig == "" {
		return []transport.Action{reply(chatID, "No projects config path configured.")}
	}
	projects, err := h.deps.LoadProjects(h.deps.ProjectsConfig)
	if err != nil {
		return []transport.Action{reply(chatID, "Failed to reload projects: "+err.Error())}
	}
	ids := make([]string, 0, len(projects))
	now := h.deps.Now()
	for _, p := range projects {
		ids = append(ids, p.ID)
		_ = h.deps.Store.UpsertProject(&store.Project{
			ID: p.ID, Name: p.Name, RootPath: p.RootPath,
			DefaultEngine: p.DefaultEngine, OpencodeAttachURL: p.OpencodeAttachURL,
		}, now)
	}
	if err := h.deps.Store.DeleteProjectsNotIn(ids); err != nil {
		return []transport.Action{reply(chatID, "Reloaded but failed to prune: "+err.Error())}
	}
	return []transport.Action{reply(chatID, fmt.Sprintf("Reloaded %d projects.", len(projects)))}
}

func orEmpty(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func formatISO(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
