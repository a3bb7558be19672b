// Package dashboard implements the HTTP dashboard/metrics surface named
// in spec.md as "thin read-views over the store": an operator can watch
// project/session/run state and cancel a run, but all durable
// decisions still flow through the core orchestrator and chat handler.
// Grounded on internal/localapi/server.go's Deps/mux/route-registration
// shape and its respondOK/respondError/writeJSON envelope helpers.
package dashboard

import (
	"encoding/json"
	"net/http"
	"strings"

	"ohmyremote/internal/store"
	"ohmyremote/internal/wshub"
)

// Deps wires the dashboard to the rest of the process.
type Deps struct {
	Store         *store.Store
	Hub           *wshub.Hub
	BasicAuthUser string
	BasicAuthPass string
	CancelRun     func(runID string) error
	ReadyCheck    func() error
}

// Server is the dashboard's HTTP surface.
type Server struct {
	deps    Deps
	mux     *http.ServeMux
	metrics *Metrics
}

// NewServer builds a Server and registers every route.
func NewServer(deps Deps) *Server {
	s := &Server{deps: deps, mux: http.NewServeMux(), metrics: NewMetrics(deps.Store)}

	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/readyz", s.handleReady)
	s.mux.HandleFunc("/metrics", s.handleMetrics)
	if deps.Hub != nil {
		s.mux.HandleFunc("/ws", deps.Hub.HandleWS)
	}

	s.mux.HandleFunc("/api/projects", s.requireAuth(s.handleProjects))
	s.mux.HandleFunc("/api/sessions", s.requireAuth(s.handleSessions))
	s.mux.HandleFunc("/api/runs", s.requireAuth(s.handleRunsList))
	s.mux.HandleFunc("/api/runs/", s.requireAuth(s.handleRunByID))
	s.mux.HandleFunc("/api/files", s.requireAuth(s.handleFiles))

	return s
}

// Handler exposes the registered mux.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondOK(w, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.deps.ReadyCheck != nil {
		if err := s.deps.ReadyCheck(); err != nil {
			respondError(w, http.StatusServiceUnavailable, "NOT_READY", err.Error())
			return
		}
	}
	if err := s.deps.Store.DB().Ping(); err != nil {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY", err.Error())
		return
	}
	respondOK(w, map[string]any{"status": "ready"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.metrics.refresh()
	s.metrics.Handler().ServeHTTP(w, r)
}

// requireAuth gates /api/* behind HTTP basic auth when credentials are
// configured; with no configured credentials the routes are open, since
// an empty DASHBOARD_BASIC_AUTH_USER/PASS means the operator chose not
// to set one (see spec.md's environment table).
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.BasicAuthUser == "" && s.deps.BasicAuthPass == "" {
			next(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.deps.BasicAuthUser || pass != s.deps.BasicAuthPass {
			w.Header().Set("WWW-Authenticate", `Basic realm="ohmyremote"`)
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "basic auth required")
			return
		}
		next(w, r)
	}
}

func respondOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": data})
}

func respondError(w http.ResponseWriter, code int, errCode, msg string) {
	writeJSON(w, code, map[string]any{"ok": false, "error": map[string]any{"code": errCode, "message": msg}})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func trimPrefixPath(path, prefix string) string {
	return strings.TrimSuffix(strings.TrimPrefix(path, prefix), "/")
}
