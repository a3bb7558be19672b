package chat

import "ohmyremote/internal/store"

// chatState is the in-memory, per-external-chat-id state the handler
// keeps between updates: selected project/session, engine/model
// preference, and the unsafe-mode deadline mirrored from the store.
type chatState struct {
	ChatRowID     string
	ProjectID     string
	SessionID     string
	DefaultEngine string
	Model         string
	OpenCodeAgent string
	UnsafeUntil   int64
	LastRunID     string
}

func (h *Handler) hydrate(externalChatID string) (*chatState, error) {
	h.mu.Lock()
	st, ok := h.states[externalChatID]
	h.mu.Unlock()
	if ok {
		return st, nil
	}

	now := h.deps.Now()
	row, err := h.deps.Store.GetOrCreateChat(h.deps.NewID(), externalChatID, now)
	if err != nil {
		return nil, err
	}

	st = &chatState{
		ChatRowID:     row.ID,
		ProjectID:     row.ProjectID,
		DefaultEngine: "claude",
		UnsafeUntil:   row.UnsafeUntil,
	}
	if st.ProjectID == "" {
		if projects, err := h.deps.Store.ListProjects(); err == nil && len(projects) > 0 {
			st.ProjectID = projects[0].ID
		}
	}

	h.mu.Lock()
	h.states[externalChatID] = st
	h.mu.Unlock()
	return st, nil
}

// ensureProjectAndSession resolves (and lazily creates) the project and
// session a run should target: the chat's current selection, falling
// back to the first configured project and the project's first session,
// creating a fresh session owned by this chat as a last resort.
func (h *Handler) ensureProjectAndSession(st *chatState) (projectID, sessionID string, err error) {
	if st.ProjectID == "" {
		projects, err := h.deps.Store.ListProjects()
		if err != nil {
			return "", "", err
		}
		if len(projects) == 0 {
			return "", "", errNoProjectConfigured
		}
		st.ProjectID = projects[0].ID
	}
	if st.SessionID != "" {
		return st.ProjectID, st.SessionID, nil
	}

	sessions, err := h.deps.Store.ListSessionsByProject(st.ProjectID)
	if err != nil {
		return "", "", err
	}
	if len(sessions) > 0 {
		st.SessionID = sessions[0].ID
		return st.ProjectID, st.SessionID, nil
	}

	sess := &store.Session{
		ID:        h.deps.NewID(),
		ProjectID: st.ProjectID,
		ChatID:    st.ChatRowID,
		Provider:  st.DefaultEngine,
		Status:    "idle",
	}
	if err := h.deps.Store.CreateSession(sess, h.deps.Now()); err != nil {
		return "", "", err
	}
	st.SessionID = sess.ID
	return st.ProjectID, st.SessionID, nil
}
