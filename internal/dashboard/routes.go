package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"ohmyremote/internal/store"
)

const defaultRunsLimit = 50

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	projects, err := s.deps.Store.ListProjects()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	respondOK(w, projects)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	projectID := strings.TrimSpace(r.URL.Query().Get("project"))
	if projectID == "" {
		respondError(w, http.StatusBadRequest, "MISSING_PROJECT", "project query parameter is required")
		return
	}
	sessions, err := s.deps.Store.ListSessionsByProject(projectID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	respondOK(w, sessions)
}

func (s *Server) handleRunsList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	projectID := strings.TrimSpace(r.URL.Query().Get("project"))
	if projectID == "" {
		respondError(w, http.StatusBadRequest, "MISSING_PROJECT", "project query parameter is required")
		return
	}
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := s.deps.Store.ListRunsByProject(projectID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	respondOK(w, runs)
}

// handleRunByID serves /api/runs/{id}, /api/runs/{id}/events, and
// /api/runs/{id}/cancel, mirroring the teacher's single-dispatch
// handleRunActions over a trimmed path.
func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	path := trimPrefixPath(r.URL.Path, "/api/runs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || strings.TrimSpace(parts[0]) == "" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
		return
	}
	runID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.getRun(w, runID)
	case len(parts) == 2 && parts[1] == "events" && r.Method == http.MethodGet:
		s.getRunEvents(w, runID)
	case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
		s.cancelRun(w, runID)
	default:
		respondError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	}
}

func (s *Server) getRun(w http.ResponseWriter, runID string) {
	run, err := s.deps.Store.GetRun(runID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "RUN_NOT_FOUND", "no such run")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	respondOK(w, run)
}

func (s *Server) getRunEvents(w http.ResponseWriter, runID string) {
	evs, err := s.deps.Store.ListRunEvents(runID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	out := make([]map[string]any, 0, len(evs))
	for _, ev := range evs {
		var payload any
		_ = json.Unmarshal([]byte(ev.PayloadJSON), &payload)
		out = append(out, map[string]any{
			"seq":       ev.Seq,
			"type":      ev.EventType,
			"payload":   payload,
			"createdAt": ev.CreatedAt,
		})
	}
	respondOK(w, out)
}

func (s *Server) cancelRun(w http.ResponseWriter, runID string) {
	if s.deps.CancelRun == nil {
		respondError(w, http.StatusNotImplemented, "NOT_SUPPORTED", "cancel is not wired")
		return
	}
	if err := s.deps.CancelRun(runID); err != nil {
		respondError(w, http.StatusInternalServerError, "CANCEL_FAILED", err.Error())
		return
	}
	respondOK(w, map[string]any{"run_id": runID, "status": "cancelling"})
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	chatID := strings.TrimSpace(r.URL.Query().Get("chat"))
	if chatID == "" {
		respondError(w, http.StatusBadRequest, "MISSING_CHAT", "chat query parameter is required")
		return
	}
	files, err := s.deps.Store.ListFilesByChat(chatID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	respondOK(w, files)
}
