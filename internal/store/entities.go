package store

import (
	"database/sql"
	"errors"
)

// UpsertProject inserts or updates a project by id, used by config reload.
func (s *Store) UpsertProject(p *Project, now int64) error {
	_, err := s.db.Exec(
		`INSERT INTO projects (id, name, root_path, default_engine, opencode_attach_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, root_path=excluded.root_path,
		   default_engine=excluded.default_engine, opencode_attach_url=excluded.opencode_attach_url, updated_at=excluded.updated_at`,
		p.ID, p.Name, p.RootPath, p.DefaultEngine, p.OpencodeAttachURL, now, now,
	)
	return err
}

// DeleteProjectsNotIn deletes every project whose id is absent from ids,
// resolving the config-reload Open Question in favor of a real delete
// rather than a "hide from listing" shim.
func (s *Store) DeleteProjectsNotIn(ids []string) error {
	if len(ids) == 0 {
		_, err := s.db.Exec(`DELETE FROM projects`)
		return err
	}
	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, 0, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, id)
	}
	_, err := s.db.Exec(`DELETE FROM projects WHERE id NOT IN (`+string(placeholders)+`)`, args...)
	return err
}

// ListProjects returns every configured project ordered by name.
func (s *Store) ListProjects() ([]Project, error) {
	rows, err := s.db.Query(`SELECT id, name, root_path, default_engine, opencode_attach_url, created_at, updated_at FROM projects ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.RootPath, &p.DefaultEngine, &p.OpencodeAttachURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetProject returns ErrNotFound if no such project exists.
func (s *Store) GetProject(id string) (*Project, error) {
	var p Project
	err := s.db.QueryRow(`SELECT id, name, root_path, default_engine, opencode_attach_url, created_at, updated_at FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.RootPath, &p.DefaultEngine, &p.OpencodeAttachURL, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetOrCreateChat returns the chat row for an external chat id, creating
// one on first contact.
func (s *Store) GetOrCreateChat(id, externalChatID string, now int64) (*Chat, error) {
	c, err := s.GetChatByExternalID(externalChatID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	_, err = s.db.Exec(
		`INSERT INTO chats (id, project_id, external_chat_id, unsafe_until, created_at, updated_at) VALUES (?, '', ?, 0, ?, ?)`,
		id, externalChatID, now, now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return s.GetChatByExternalID(externalChatID)
		}
		return nil, err
	}
	return &Chat{ID: id, ExternalChatID: externalChatID, CreatedAt: now, UpdatedAt: now}, nil
}

// GetChat returns ErrNotFound if no chat with that row id exists.
func (s *Store) GetChat(id string) (*Chat, error) {
	var c Chat
	err := s.db.QueryRow(
		`SELECT id, project_id, external_chat_id, unsafe_until, created_at, updated_at FROM chats WHERE id = ?`,
		id,
	).Scan(&c.ID, &c.ProjectID, &c.ExternalChatID, &c.UnsafeUntil, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetChatByExternalID returns ErrNotFound if unknown.
func (s *Store) GetChatByExternalID(externalChatID string) (*Chat, error) {
	var c Chat
	err := s.db.QueryRow(
		`SELECT id, project_id, external_chat_id, unsafe_until, created_at, updated_at FROM chats WHERE external_chat_id = ?`,
		externalChatID,
	).Scan(&c.ID, &c.ProjectID, &c.ExternalChatID, &c.UnsafeUntil, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SetChatUnsafeUntil persists the unsafe-mode deadline for a chat.
func (s *Store) SetChatUnsafeUntil(chatID string, until, now int64) error {
	_, err := s.db.Exec(`UPDATE chats SET unsafe_until = ?, updated_at = ? WHERE id = ?`, until, now, chatID)
	return err
}

// SetChatProject persists the selected project for a chat.
func (s *Store) SetChatProject(chatID, projectID string, now int64) error {
	_, err := s.db.Exec(`UPDATE chats SET project_id = ?, updated_at = ? WHERE id = ?`, projectID, now, chatID)
	return err
}

// CreateSession inserts a new session row.
func (s *Store) CreateSession(sess *Session, now int64) error {
	sess.CreatedAt, sess.UpdatedAt = now, now
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, project_id, chat_id, provider, engine_session_id, status, prompt, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ProjectID, sess.ChatID, sess.Provider, sess.EngineSessionID, sess.Status, sess.Prompt, now, now,
	)
	return err
}

// GetSession returns ErrNotFound if unknown.
func (s *Store) GetSession(id string) (*Session, error) {
	var sess Session
	err := s.db.QueryRow(
		`SELECT id, project_id, chat_id, provider, engine_session_id, status, prompt, created_at, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.ProjectID, &sess.ChatID, &sess.Provider, &sess.EngineSessionID, &sess.Status, &sess.Prompt, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListSessionsByProject returns sessions ordered by most recently updated.
func (s *Store) ListSessionsByProject(projectID string) ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT id, project_id, chat_id, provider, engine_session_id, status, prompt, created_at, updated_at
		 FROM sessions WHERE project_id = ? ORDER BY updated_at DESC`, projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.ProjectID, &sess.ChatID, &sess.Provider, &sess.EngineSessionID, &sess.Status, &sess.Prompt, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// SetSessionEngineSessionID persists the captured engine-side session id
// (or the "__continue__" marker).
func (s *Store) SetSessionEngineSessionID(id, engineSessionID string, now int64) error {
	_, err := s.db.Exec(`UPDATE sessions SET engine_session_id = ?, updated_at = ? WHERE id = ?`, engineSessionID, now, id)
	return err
}

// InsertInboxUpdate is a first-writer-wins dedupe insert; accepted is
// false when updateID was already present.
func (s *Store) InsertInboxUpdate(updateID, chatID, payloadJSON string, now int64) (bool, error) {
	_, err := s.db.Exec(
		`INSERT INTO inbox_updates (update_id, chat_id, payload_json, received_at) VALUES (?, ?, ?, ?)`,
		updateID, chatID, payloadJSON, now,
	)
	if err == nil {
		return true, nil
	}
	if isUniqueConstraintError(err) {
		return false, nil
	}
	return false, err
}

// InsertFile records upload/download provenance.
func (s *Store) InsertFile(f *File, now int64) error {
	_, err := s.db.Exec(
		`INSERT INTO files (chat_id, run_id, direction, original_name, stored_rel_path, size_bytes, sha256, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ChatID, f.RunID, f.Direction, f.OriginalName, f.StoredRelPath, f.SizeBytes, f.SHA256, now,
	)
	return err
}

// ListFilesByChat returns upload/download records for a chat, newest first.
func (s *Store) ListFilesByChat(chatID string) ([]File, error) {
	rows, err := s.db.Query(
		`SELECT id, chat_id, run_id, direction, original_name, stored_rel_path, size_bytes, sha256, created_at
		 FROM files WHERE chat_id = ? ORDER BY created_at DESC`, chatID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.ChatID, &f.RunID, &f.Direction, &f.OriginalName, &f.StoredRelPath, &f.SizeBytes, &f.SHA256, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// InsertAuditLog appends a security-relevant decision row.
func (s *Store) InsertAuditLog(a *AuditLog, now int64) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_log (user_id, chat_id, command, run_id, decision, reason, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, a.ChatID, a.Command, a.RunID, a.Decision, a.Reason, now,
	)
	return err
}
