// Package chat implements ChatCommandHandler (C9): owner gating, inbound
// update dedupe, per-chat state, command dispatch, and dashboard
// rendering. It never talks to a transport directly — it returns a
// sequence of transport.Action for the caller (the transport's
// dispatch loop) to perform, so the handler stays trivially testable.
package chat

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ohmyremote/internal/config"
	"ohmyremote/internal/store"
	"ohmyremote/internal/transport"
)

var errNoProjectConfigured = errors.New("chat: no project configured")

// Orchestrator is the narrow surface the handler needs from C6.
type Orchestrator interface {
	Enqueue(projectID, sessionID, idempotencyKey, prompt string) (*store.Run, error)
}

// Deps wires the handler's collaborators.
type Deps struct {
	Store            *store.Store
	Orchestrator     Orchestrator
	OwnerUserID      string
	KillSwitch       func() bool
	NewID            func() string
	Now              func() int64
	Logger           *slog.Logger
	ProjectsConfig   string
	LoadProjects     func(path string) ([]config.ProjectConfig, error)
}

// Handler is C9.
type Handler struct {
	deps Deps

	mu     sync.Mutex
	states map[string]*chatState
}

// New builds a Handler, defaulting Now/Logger/LoadProjects if unset.
func New(deps Deps) *Handler {
	if deps.Now == nil {
		deps.Now = func() int64 { return time.Now().UnixMilli() }
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.LoadProjects == nil {
		deps.LoadProjects = config.LoadProjects
	}
	return &Handler{deps: deps, states: map[string]*chatState{}}
}

// Handle processes one inbound update and returns the actions to perform.
func (h *Handler) Handle(u transport.Update) ([]transport.Action, error) {
	switch {
	case u.Message != nil:
		return h.handleMessage(u.UpdateID, u.Message)
	case u.CallbackQuery != nil:
		return h.handleCallback(u.UpdateID, u.CallbackQuery)
	default:
		return nil, nil
	}
}

func (h *Handler) handleMessage(updateID string, msg *transport.Message) ([]transport.Action, error) {
	now := h.deps.Now()
	if msg.Chat.Type != "private" {
		h.audit("", msg.Chat.ID, "", "", "deny", "group-or-non-private-chat")
		return nil, nil
	}
	if msg.From.ID != h.deps.OwnerUserID {
		h.audit(msg.From.ID, msg.Chat.ID, "", "", "deny", "non-owner")
		return []transport.Action{reply(msg.Chat.ID, "Access denied.")}, nil
	}

	accepted, err := h.deps.Store.InsertInboxUpdate(updateID, msg.Chat.ID, "", now)
	if err != nil {
		return nil, err
	}
	if !accepted {
		return nil, nil
	}

	st, err := h.hydrate(msg.Chat.ID)
	if err != nil {
		return nil, err
	}

	text := msg.Text
	if len(text) == 0 {
		return nil, nil
	}
	var actions []transport.Action
	if text[0] != '/' {
		actions = h.cmdRun(msg.Chat.ID, st, text, msg.MessageID)
	} else {
		cmd, arg := splitCommand(text)
		actions = h.dispatch(msg.Chat.ID, st, cmd, arg, msg.MessageID)
	}
	return h.applyBanner(st, actions), nil
}

// applyBanner prefixes every reply/reply_keyboard/edit_keyboard action
// with the unsafe-mode banner whenever the chat's unsafe deadline has
// not yet passed; other action kinds pass through unchanged.
func (h *Handler) applyBanner(st *chatState, actions []transport.Action) []transport.Action {
	for i := range actions {
		actions[i] = h.banner(st, actions[i])
	}
	return actions
}

func (h *Handler) dispatch(chatID string, st *chatState, cmd, arg, messageID string) []transport.Action {
	switch cmd {
	case "/d", "/dashboard", "/start":
		return h.cmdDashboard(chatID, st)
	case "/projects":
		return h.cmdProjects(chatID, st)
	case "/use":
		return h.cmdUse(chatID, st, arg)
	case "/sessions":
		return h.cmdSessions(chatID, st)
	case "/newsession":
		return h.cmdNewSession(chatID, st, arg)
	case "/use_session":
		return h.cmdUseSession(chatID, st, arg)
	case "/engine":
		return h.cmdEngine(chatID, st, arg)
	case "/run":
		return h.cmdRun(chatID, st, arg, messageID)
	case "/continue":
		return h.cmdContinue(chatID, st, arg, messageID)
	case "/attach":
		return h.cmdAttach(chatID, st, arg, messageID)
	case "/stop":
		return h.cmdStop(chatID, st)
	case "/status":
		return h.cmdStatus(chatID, st)
	case "/current":
		return h.cmdCurrent(chatID, st)
	case "/whoami":
		return h.cmdWhoami(chatID)
	case "/enable_unsafe":
		return h.cmdEnableUnsafe(chatID, st, arg)
	case "/uploads":
		return h.cmdUploads(chatID, st)
	case "/get":
		return h.cmdGet(chatID, st, arg)
	case "/help":
		return h.cmdHelp(chatID)
	case "/reload_projects":
		return h.cmdReloadProjects(chatID, st)
	default:
		return []transport.Action{reply(chatID, "Unknown command. Try /help.")}
	}
}

func (h *Handler) handleCallback(updateID string, cb *transport.CallbackQuery) ([]transport.Action, error) {
	if cb.Message == nil {
		return nil, nil
	}
	chatID := cb.Message.Chat.ID
	if cb.Message.Chat.Type != "private" {
		h.audit("", chatID, "", "", "deny", "group-or-non-private-chat")
		return nil, nil
	}
	if cb.From.ID != h.deps.OwnerUserID {
		h.audit(cb.From.ID, chatID, "", "", "deny", "non-owner")
		return nil, nil
	}

	accepted, err := h.deps.Store.InsertInboxUpdate(updateID, chatID, "", h.deps.Now())
	if err != nil {
		return nil, err
	}
	if !accepted {
		return nil, nil
	}

	st, err := h.hydrate(chatID)
	if err != nil {
		return nil, err
	}

	actions := h.applyBanner(st, h.dispatchCallback(chatID, cb.Message.MessageID, st, cb.Data))
	return append(actions, answerCallback(cb.ID, "")), nil
}

func splitCommand(text string) (cmd, arg string) {
	parts := strings.SplitN(text, " ", 2)
	cmd = strings.ToLower(parts[0])
	if len(parts) == 2 {
		arg = strings.TrimSpace(parts[1])
	}
	return cmd, arg
}

func (h *Handler) audit(userID, chatID, command, runID string, decision, reason string) {
	_ = h.deps.Store.InsertAuditLog(&store.AuditLog{
		UserID: userID, ChatID: chatID, Command: command, RunID: runID, Decision: decision, Reason: reason,
	}, h.deps.Now())
}
