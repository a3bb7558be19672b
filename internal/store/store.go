// Package store is the transactional repository over the entities in
// SPEC_FULL.md's data model. Schema is owned by GORM (models.go +
// migrations.go); all reads and writes here go through hand-written
// database/sql statements on the shared *sql.DB, following the teacher's
// dual-access pattern (internal/projectstate/store.go,
// internal/projectstate/run_store.go).
package store

import (
	"database/sql"
	"errors"
	"strings"
)

// ErrDuplicateInboxUpdate is returned by callers that treat a duplicate
// inbox insert as an error rather than inspecting the accepted bool.
var ErrDuplicateInboxUpdate = errors.New("store: duplicate inbox update")

// ErrNotFound is returned when a lookup by id finds no row.
var ErrNotFound = errors.New("store: not found")

// ErrSessionAlreadyActive is returned by EnqueueRun when another run for
// the session is already queued, in_flight, or leased.
var ErrSessionAlreadyActive = errors.New("store: session already active")

// Store wraps the shared *sql.DB handle. SQLite's single-writer model
// means the store never needs to hold its own lock across an await; the
// connection pool is capped to one connection (see connection.go).
type Store struct {
	db *sql.DB
}

// New wraps an already-migrated *sql.DB.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for components (migrations, health
// checks) that need it directly.
func (s *Store) DB() *sql.DB { return s.db }

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

func withTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
