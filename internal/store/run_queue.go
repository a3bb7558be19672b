package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// EnqueueRun inserts a run and its job atomically (or idempotently returns
// the existing run for a repeated idempotencyKey). It asserts session
// single-flight via a query against runs in {queued,in_flight,leased};
// the in-memory guard layered on top of this in the orchestrator narrows
// the race window further, but the store's own check is what a caller
// relying on it alone can trust.
func (s *Store) EnqueueRun(runID, projectID, sessionID, idempotencyKey, prompt string, now int64) (*Run, error) {
	if existing, err := s.GetRunByIdempotencyKey(idempotencyKey); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	var run *Run
	err := withTx(s.db, func(tx *sql.Tx) error {
		var activeCount int
		if err := tx.QueryRow(
			`SELECT COUNT(1) FROM runs WHERE session_id = ? AND status IN ('queued','in_flight','leased')`,
			sessionID,
		).Scan(&activeCount); err != nil {
			return err
		}
		if activeCount > 0 {
			return ErrSessionAlreadyActive
		}

		if _, err := tx.Exec(
			`INSERT INTO runs (id, project_id, session_id, idempotency_key, prompt, status, started_at, finished_at, summary_json, created_at)
			 VALUES (?, ?, ?, ?, ?, 'queued', 0, 0, '', ?)`,
			runID, projectID, sessionID, idempotencyKey, prompt, now,
		); err != nil {
			if isUniqueConstraintError(err) {
				// A concurrent enqueue with the same idempotencyKey won the
				// race; return its run rather than erroring, per the
				// idempotent-enqueue contract.
				existing, gerr := s.scanRun(tx.QueryRow(
					`SELECT id, project_id, session_id, idempotency_key, prompt, status, started_at, finished_at, summary_json, created_at
					 FROM runs WHERE idempotency_key = ?`, idempotencyKey))
				if gerr == nil {
					run = existing
					return nil
				}
				if !errors.Is(gerr, ErrNotFound) {
					return gerr
				}
				return ErrSessionAlreadyActive
			}
			return err
		}

		jobID := runID + "-job"
		if _, err := tx.Exec(
			`INSERT INTO jobs (id, run_id, status, lease_owner, lease_expires_at, available_at, attempts, last_error, created_at, updated_at)
			 VALUES (?, ?, 'queued', '', 0, ?, 0, '', ?, ?)`,
			jobID, runID, now, now, now,
		); err != nil {
			return err
		}

		run = &Run{ID: runID, ProjectID: projectID, SessionID: sessionID, IdempotencyKey: idempotencyKey, Prompt: prompt, Status: "queued", CreatedAt: now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// GetRunByIdempotencyKey returns ErrNotFound if no run carries that key.
func (s *Store) GetRunByIdempotencyKey(key string) (*Run, error) {
	return s.scanRun(s.db.QueryRow(
		`SELECT id, project_id, session_id, idempotency_key, prompt, status, started_at, finished_at, summary_json, created_at
		 FROM runs WHERE idempotency_key = ?`, key))
}

// GetRun returns ErrNotFound if the run does not exist.
func (s *Store) GetRun(runID string) (*Run, error) {
	return s.scanRun(s.db.QueryRow(
		`SELECT id, project_id, session_id, idempotency_key, prompt, status, started_at, finished_at, summary_json, created_at
		 FROM runs WHERE id = ?`, runID))
}

func (s *Store) scanRun(row *sql.Row) (*Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.ProjectID, &r.SessionID, &r.IdempotencyKey, &r.Prompt, &r.Status, &r.StartedAt, &r.FinishedAt, &r.SummaryJSON, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// FindActiveRunBySession returns a run in {queued,in_flight,leased} for
// sessionID, or ErrNotFound if none.
func (s *Store) FindActiveRunBySession(sessionID string) (*Run, error) {
	return s.scanRun(s.db.QueryRow(
		`SELECT id, project_id, session_id, idempotency_key, prompt, status, started_at, finished_at, summary_json, created_at
		 FROM runs WHERE session_id = ? AND status IN ('queued','in_flight','leased') LIMIT 1`, sessionID))
}

// SetRunStatus transitions a run's status, optionally stamping
// startedAt/finishedAt/summaryJSON (a zero or empty value leaves the
// corresponding column untouched).
func (s *Store) SetRunStatus(runID, status string, startedAt, finishedAt int64, summaryJSON string) error {
	_, err := s.db.Exec(
		`UPDATE runs SET status = ?,
		   started_at = CASE WHEN ? > 0 THEN ? ELSE started_at END,
		   finished_at = CASE WHEN ? > 0 THEN ? ELSE finished_at END,
		   summary_json = CASE WHEN ? != '' THEN ? ELSE summary_json END
		 WHERE id = ?`,
		status, startedAt, startedAt, finishedAt, finishedAt, summaryJSON, summaryJSON, runID,
	)
	return err
}

// LeaseNextJob atomically selects the oldest queued job whose
// availableAt has passed and whose prior lease (if any) has expired,
// flips it to leased, and returns the updated Job. Returns ErrNotFound
// if nothing is leasable.
func (s *Store) LeaseNextJob(owner string, now, leaseDurationMs int64) (*Job, error) {
	var job *Job
	err := withTx(s.db, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRow(
			`SELECT id FROM jobs
			 WHERE status = 'queued' AND available_at <= ? AND (lease_expires_at = 0 OR lease_expires_at <= ?)
			 ORDER BY available_at ASC LIMIT 1`, now, now,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		leaseExpiresAt := now + leaseDurationMs
		res, err := tx.Exec(
			`UPDATE jobs SET status = 'leased', lease_owner = ?, lease_expires_at = ?, attempts = attempts + 1, updated_at = ?
			 WHERE id = ? AND status = 'queued'`,
			owner, leaseExpiresAt, now, id,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		row := tx.QueryRow(
			`SELECT id, run_id, status, lease_owner, lease_expires_at, available_at, attempts, last_error, created_at, updated_at
			 FROM jobs WHERE id = ?`, id)
		var j Job
		if err := row.Scan(&j.ID, &j.RunID, &j.Status, &j.LeaseOwner, &j.LeaseExpiresAt, &j.AvailableAt, &j.Attempts, &j.LastError, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return err
		}
		job = &j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// RenewJobLease extends a leased job's expiry; used by the orchestrator's
// periodic renewal while the job's execution is still running.
func (s *Store) RenewJobLease(jobID string, now, leaseDurationMs int64) error {
	_, err := s.db.Exec(
		`UPDATE jobs SET lease_expires_at = ?, updated_at = ? WHERE id = ? AND status = 'leased'`,
		now+leaseDurationMs, now, jobID,
	)
	return err
}

// CompleteJob marks a job completed.
func (s *Store) CompleteJob(jobID string, now int64) error {
	_, err := s.db.Exec(`UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?`, now, jobID)
	return err
}

// SetJobStatus transitions a job to an arbitrary terminal status (used by
// the orchestrator when an execution's outcome is cancelled rather than
// completed or failed).
func (s *Store) SetJobStatus(jobID, status string, now int64) error {
	_, err := s.db.Exec(`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`, status, now, jobID)
	return err
}

// FailJob marks a job failed with the given message.
func (s *Store) FailJob(jobID, lastError string, now int64) error {
	_, err := s.db.Exec(`UPDATE jobs SET status = 'failed', last_error = ?, updated_at = ? WHERE id = ?`, lastError, now, jobID)
	return err
}

// CancelRun sets a run to cancelled and its job to cancelled, clearing
// any lease.
func (s *Store) CancelRun(runID string, now int64) error {
	return withTx(s.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`UPDATE runs SET status = 'cancelled', finished_at = ? WHERE id = ?`, now, runID); err != nil {
			return err
		}
		_, err := tx.Exec(
			`UPDATE jobs SET status = 'cancelled', lease_owner = '', lease_expires_at = 0, updated_at = ? WHERE run_id = ?`,
			now, runID,
		)
		return err
	})
}

// RequeueLeasedJobByRunID flips a leased job back to queued, clearing
// its lease and resetting availableAt to now.
func (s *Store) RequeueLeasedJobByRunID(runID string, now int64) error {
	_, err := s.db.Exec(
		`UPDATE jobs SET status = 'queued', lease_owner = '', lease_expires_at = 0, available_at = ?, updated_at = ?
		 WHERE run_id = ? AND status = 'leased'`,
		now, now, runID,
	)
	return err
}

// AbandonRun sets a run to abandoned only if it is currently in_flight,
// making it idempotent under concurrent reconciliation passes.
func (s *Store) AbandonRun(runID string, now int64) (bool, error) {
	res, err := s.db.Exec(`UPDATE runs SET status = 'abandoned', finished_at = ? WHERE id = ? AND status = 'in_flight'`, now, runID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListStaleInFlightRuns returns run ids that have been in_flight since
// before the staleness cutoff.
func (s *Store) ListStaleInFlightRuns(cutoff int64) ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM runs WHERE status = 'in_flight' AND started_at > 0 AND started_at < ?`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AppendRunEvent computes the next gap-free seq for runID and inserts the
// event. The surrounding transaction plus SQLite's single-writer
// connection guarantees two concurrent appends to the same run cannot
// observe the same max(seq).
func (s *Store) AppendRunEvent(runID, eventType, payloadJSON string, now int64) (int64, error) {
	var seq int64
	err := withTx(s.db, func(tx *sql.Tx) error {
		var maxSeq sql.NullInt64
		if err := tx.QueryRow(`SELECT MAX(seq) FROM run_events WHERE run_id = ?`, runID).Scan(&maxSeq); err != nil {
			return err
		}
		seq = maxSeq.Int64 + 1
		_, err := tx.Exec(
			`INSERT INTO run_events (run_id, seq, event_type, payload_json, created_at) VALUES (?, ?, ?, ?, ?)`,
			runID, seq, eventType, payloadJSON, now,
		)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("append run event: %w", err)
	}
	return seq, nil
}

// CountRunEventsByType returns how many events of eventType exist for
// runID. The orchestrator's toolCallsCount is counted in memory during
// execution, not derived from this query.
func (s *Store) CountRunEventsByType(runID, eventType string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM run_events WHERE run_id = ? AND event_type = ?`, runID, eventType).Scan(&n)
	return n, err
}

// ListRunsByProject returns the most recent runs for a project, newest
// first, capped at limit.
func (s *Store) ListRunsByProject(projectID string, limit int) ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT id, project_id, session_id, idempotency_key, prompt, status, started_at, finished_at, summary_json, created_at
		 FROM runs WHERE project_id = ? ORDER BY created_at DESC LIMIT ?`, projectID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.SessionID, &r.IdempotencyKey, &r.Prompt, &r.Status, &r.StartedAt, &r.FinishedAt, &r.SummaryJSON, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountRunsByStatus returns the number of runs in each status, for the
// dashboard's thin metrics read-view.
func (s *Store) CountRunsByStatus() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(1) FROM runs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// CountJobsByStatus returns the number of jobs in each status, for the
// dashboard's thin metrics read-view.
func (s *Store) CountJobsByStatus() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// ListRunEvents returns every event for a run in seq order.
func (s *Store) ListRunEvents(runID string) ([]RunEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, seq, event_type, payload_json, created_at FROM run_events WHERE run_id = ? ORDER BY seq ASC`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunEvent
	for rows.Next() {
		var e RunEvent
		if err := rows.Scan(&e.ID, &e.RunID, &e.Seq, &e.EventType, &e.PayloadJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
