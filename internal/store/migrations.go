package store

import (
	"errors"

	"gorm.io/gorm"
)

// MigrateUp creates/updates tables and indexes from the entity set. Table
// structure changes are not versioned; AutoMigrate is additive-only and
// safe to run on every startup.
func MigrateUp(db *gorm.DB) error {
	if db == nil {
		return errors.New("db is required")
	}
	if err := db.AutoMigrate(
		&Project{},
		&Chat{},
		&Session{},
		&Run{},
		&Job{},
		&RunEvent{},
		&File{},
		&InboxUpdate{},
		&AuditLog{},
	); err != nil {
		return err
	}
	for _, stmt := range []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_run_events_run_seq ON run_events(run_id, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_session_status ON runs(session_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status_available ON jobs(status, available_at);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_chat_created ON audit_log(chat_id, created_at DESC);`,
	} {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
