package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"ohmyremote/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.OpenSQLiteWithMigrations(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return store.New(db)
}

func TestHealthAndReady(t *testing.T) {
	s := NewServer(Deps{Store: newTestStore(t)})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz failed: %v status=%v", err, resp)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/readyz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz failed: %v status=%v", err, resp)
	}
	resp.Body.Close()
}

func TestAPIProjectsRequiresAuthWhenConfigured(t *testing.T) {
	s := NewServer(Deps{Store: newTestStore(t), BasicAuthUser: "op", BasicAuthPass: "secret"})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/projects")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/projects", nil)
	req.SetBasicAuth("op", "secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with credentials, got %v %v", err, resp)
	}
	resp.Body.Close()
}

func TestAPIProjectsOpenWithoutConfiguredAuth(t *testing.T) {
	s := NewServer(Deps{Store: newTestStore(t)})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/projects")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("expected open access, got %v %v", err, resp)
	}
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if ok, _ := body["ok"].(bool); !ok {
		t.Fatalf("expected ok envelope, got %+v", body)
	}
}

func TestAPIRunsListRequiresProject(t *testing.T) {
	s := NewServer(Deps{Store: newTestStore(t)})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/runs")
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing project, got %v %v", err, resp)
	}
	resp.Body.Close()
}

func TestAPIRunNotFound(t *testing.T) {
	s := NewServer(Deps{Store: newTestStore(t)})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/runs/missing")
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for missing run, got %v %v", err, resp)
	}
	resp.Body.Close()
}

func TestCancelRunNotWired(t *testing.T) {
	s := NewServer(Deps{Store: newTestStore(t)})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/runs/abc/cancel", "application/json", nil)
	if err != nil || resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501 when CancelRun unset, got %v %v", err, resp)
	}
	resp.Body.Close()
}

func TestMetricsEndpointServesPrometheusText(t *testing.T) {
	s := NewServer(Deps{Store: newTestStore(t)})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics failed: %v %v", err, resp)
	}
	resp.Body.Close()
}
