package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"ohmyremote/internal/config"
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

func TestDBPathJoinsDataDir(t *testing.T) {
	got := dbPath(config.Config{DataDir: "/var/lib/ohmyremote"})
	want := filepath.Join("/var/lib/ohmyremote", "ohmyremote.db")
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestLoadInitialProjectsUpsertsAndPrunes(t *testing.T) {
	st := newTestStore(t)
	path := filepath.Join(t.TempDir(), "projects.json")
	seed := []config.ProjectConfig{
		{ID: "p1", Name: "One", RootPath: "/repo/one", DefaultEngine: "claude"},
		{ID: "p2", Name: "Two", RootPath: "/repo/two", DefaultEngine: "opencode"},
	}
	data, err := json.Marshal(seed)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := loadInitialProjects(st, config.Config{ProjectsConfigPath: path}); err != nil {
		t.Fatalf("loadInitialProjects: %v", err)
	}
	projects, err := st.ListProjects()
	if err != nil || len(projects) != 2 {
		t.Fatalf("expected 2 projects, got %d err=%v", len(projects), err)
	}

	// Reload with only p1: p2 should be pruned.
	if err := os.WriteFile(path, mustMarshal(t, seed[:1]), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := loadInitialProjects(st, config.Config{ProjectsConfigPath: path}); err != nil {
		t.Fatalf("loadInitialProjects reload: %v", err)
	}
	projects, err = st.ListProjects()
	if err != nil || len(projects) != 1 || projects[0].ID != "p1" {
		t.Fatalf("expected only p1 to remain, got %+v err=%v", projects, err)
	}
}

func TestLoadInitialProjectsNoPathIsNoop(t *testing.T) {
	st := newTestStore(t)
	if err := loadInitialProjects(st, config.Config{}); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestHostOwnerIDNonEmpty(t *testing.T) {
	if hostOwnerID() == "" {
		t.Fatal("expected non-empty owner id")
	}
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}
