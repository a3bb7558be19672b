package store

// Project is a configured on-disk working tree an engine can be run
// against. Immutable during a run; edited only by config reload.
type Project struct {
	ID                string `gorm:"column:id;primaryKey"`
	Name              string `gorm:"column:name;not null;default:''"`
	RootPath          string `gorm:"column:root_path;not null;default:''"`
	DefaultEngine     string `gorm:"column:default_engine;not null;default:'claude'"`
	OpencodeAttachURL string `gorm:"column:opencode_attach_url;not null;default:''"`
	CreatedAt         int64  `gorm:"column:created_at;not null;default:0"`
	UpdatedAt         int64  `gorm:"column:updated_at;not null;default:0"`
}

func (Project) TableName() string { return "projects" }

// Chat is one row per external chat id, carrying the unsafe-mode deadline.
type Chat struct {
	ID             string `gorm:"column:id;primaryKey"`
	ProjectID      string `gorm:"column:project_id;not null;default:''"`
	ExternalChatID string `gorm:"column:external_chat_id;uniqueIndex;not null"`
	UnsafeUntil    int64  `gorm:"column:unsafe_until;not null;default:0"`
	CreatedAt      int64  `gorm:"column:created_at;not null;default:0"`
	UpdatedAt      int64  `gorm:"column:updated_at;not null;default:0"`
}

func (Chat) TableName() string { return "chats" }

// Session is a persistent conversation thread owned by a project,
// optionally bound to an engine-side session id.
type Session struct {
	ID              string `gorm:"column:id;primaryKey"`
	ProjectID       string `gorm:"column:project_id;not null"`
	ChatID          string `gorm:"column:chat_id;not null;default:''"`
	Provider        string `gorm:"column:provider;not null;default:'claude'"`
	EngineSessionID string `gorm:"column:engine_session_id;not null;default:''"`
	Status          string `gorm:"column:status;not null;default:'idle'"`
	Prompt          string `gorm:"column:prompt;not null;default:''"`
	CreatedAt       int64  `gorm:"column:created_at;not null;default:0"`
	UpdatedAt       int64  `gorm:"column:updated_at;not null;default:0"`
}

func (Session) TableName() string { return "sessions" }

// Run is one prompt execution against a session; the unit of durable work.
type Run struct {
	ID             string `gorm:"column:id;primaryKey"`
	ProjectID      string `gorm:"column:project_id;not null"`
	SessionID      string `gorm:"column:session_id;not null"`
	IdempotencyKey string `gorm:"column:idempotency_key;uniqueIndex;not null"`
	Prompt         string `gorm:"column:prompt;not null;default:''"`
	Status         string `gorm:"column:status;not null;default:'queued'"`
	StartedAt      int64  `gorm:"column:started_at;not null;default:0"`
	FinishedAt     int64  `gorm:"column:finished_at;not null;default:0"`
	SummaryJSON    string `gorm:"column:summary_json;not null;default:''"`
	CreatedAt      int64  `gorm:"column:created_at;not null;default:0"`
}

func (Run) TableName() string { return "runs" }

// Job is the queue record attached 1:1 to a Run, carrying lease and
// scheduling metadata.
type Job struct {
	ID             string `gorm:"column:id;primaryKey"`
	RunID          string `gorm:"column:run_id;uniqueIndex;not null"`
	Status         string `gorm:"column:status;not null;default:'queued'"`
	LeaseOwner     string `gorm:"column:lease_owner;not null;default:''"`
	LeaseExpiresAt int64  `gorm:"column:lease_expires_at;not null;default:0"`
	AvailableAt    int64  `gorm:"column:available_at;not null;default:0"`
	Attempts       int    `gorm:"column:attempts;not null;default:0"`
	LastError      string `gorm:"column:last_error;not null;default:''"`
	CreatedAt      int64  `gorm:"column:created_at;not null;default:0"`
	UpdatedAt      int64  `gorm:"column:updated_at;not null;default:0"`
}

func (Job) TableName() string { return "jobs" }

// RunEvent is one append-only normalized event belonging to a run. Seq is
// gap-free and strictly increasing per runId.
type RunEvent struct {
	ID          int64  `gorm:"column:id;primaryKey;autoIncrement"`
	RunID       string `gorm:"column:run_id;not null;index"`
	Seq         int64  `gorm:"column:seq;not null"`
	EventType   string `gorm:"column:event_type;not null"`
	PayloadJSON string `gorm:"column:payload_json;not null;default:''"`
	CreatedAt   int64  `gorm:"column:created_at;not null;default:0"`
}

func (RunEvent) TableName() string { return "run_events" }

// File records upload/download provenance for files exchanged over chat.
type File struct {
	ID            int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ChatID        string `gorm:"column:chat_id;not null;default:''"`
	RunID         string `gorm:"column:run_id;not null;default:''"`
	Direction     string `gorm:"column:direction;not null"`
	OriginalName  string `gorm:"column:original_name;not null;default:''"`
	StoredRelPath string `gorm:"column:stored_rel_path;not null;default:''"`
	SizeBytes     int64  `gorm:"column:size_bytes;not null;default:0"`
	SHA256        string `gorm:"column:sha256;not null;default:''"`
	CreatedAt     int64  `gorm:"column:created_at;not null;default:0"`
}

func (File) TableName() string { return "files" }

// InboxUpdate is the first-write-wins dedupe log of inbound chat updates.
type InboxUpdate struct {
	UpdateID    string `gorm:"column:update_id;primaryKey"`
	ChatID      string `gorm:"column:chat_id;not null;default:''"`
	PayloadJSON string `gorm:"column:payload_json;not null;default:''"`
	ReceivedAt  int64  `gorm:"column:received_at;not null;default:0"`
}

func (InboxUpdate) TableName() string { return "inbox_updates" }

// AuditLog is an append-only record of security-relevant decisions.
type AuditLog struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    string `gorm:"column:user_id;not null;default:''"`
	ChatID    string `gorm:"column:chat_id;not null;default:''"`
	Command   string `gorm:"column:command;not null;default:''"`
	RunID     string `gorm:"column:run_id;not null;default:''"`
	Decision  string `gorm:"column:decision;not null"`
	Reason    string `gorm:"column:reason;not null;default:''"`
	CreatedAt int64  `gorm:"column:created_at;not null;default:0"`
}

func (AuditLog) TableName() string { return "audit_log" }
