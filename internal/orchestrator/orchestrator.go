// Package orchestrator implements RunOrchestrator (C6): idempotent run
// enqueue, lease-execute-finalize, and stale-in-flight reconciliation.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ohmyremote/internal/events"
	"ohmyremote/internal/executor"
	"ohmyremote/internal/store"
)

// ErrSessionAlreadyActive mirrors store.ErrSessionAlreadyActive at the
// orchestrator's API boundary; it is raised by the in-memory guard as
// well as by the store's own transactional check.
var ErrSessionAlreadyActive = errors.New("orchestrator: session already active")

// Engine selects which executor runs a session's provider.
type Engine interface {
	Execute(ctx context.Context, in executor.ExecuteInput) (executor.ExecuteResult, error)
}

// EventSink receives every persisted event, keyed by the run and the chat
// it should be streamed to (resolved from the session). Used to feed C10.
type EventSink func(runID, chatID string, ev events.Event)

// Deps are the collaborators an Orchestrator is built from; project and
// chat lookups go through *store.Store alongside the job/run/session CRUD.
type Deps struct {
	Store            *store.Store
	ClaudeExecutor   Engine
	OpenCodeExecutor Engine
	Logger           *slog.Logger
	NewID            func() string
	Now              func() int64
	KillSwitch       func() bool
	EventSink        EventSink
}

// Orchestrator is C6.
type Orchestrator struct {
	deps Deps

	mu             sync.Mutex
	activeSessions map[string]bool
}

// New builds an Orchestrator from deps, defaulting Now/KillSwitch if unset.
func New(deps Deps) *Orchestrator {
	if deps.Now == nil {
		deps.Now = func() int64 { return time.Now().UnixMilli() }
	}
	if deps.KillSwitch == nil {
		deps.KillSwitch = func() bool { return false }
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{deps: deps, activeSessions: map[string]bool{}}
}

// Summary is the derived run summary persisted at finalization.
type Summary struct {
	DurationMs     int64                    `json:"durationMs"`
	ToolCallsCount int                      `json:"toolCallsCount"`
	BytesIn        int64                    `json:"bytesIn"`
	BytesOut       int64                    `json:"bytesOut"`
	ExitStatus     events.RunFinishedStatus `json:"exitStatus"`
	MalformedCount int                      `json:"malformedCount,omitempty"`
	Error          string                   `json:"error,omitempty"`
}

// Enqueue is idempotent on idempotencyKey and enforces session
// single-flight via both an in-memory set and the store's own check.
func (o *Orchestrator) Enqueue(projectID, sessionID, idempotencyKey, prompt string) (*store.Run, error) {
	if existing, err := o.deps.Store.GetRunByIdempotencyKey(idempotencyKey); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	o.mu.Lock()
	if o.activeSessions[sessionID] {
		o.mu.Unlock()
		return nil, ErrSessionAlreadyActive
	}
	o.mu.Unlock()

	if _, err := o.deps.Store.FindActiveRunBySession(sessionID); err == nil {
		return nil, ErrSessionAlreadyActive
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	runID := o.deps.NewID()
	run, err := o.deps.Store.EnqueueRun(runID, projectID, sessionID, idempotencyKey, prompt, o.deps.Now())
	if errors.Is(err, store.ErrSessionAlreadyActive) {
		return nil, ErrSessionAlreadyActive
	}
	return run, err
}

// Process leases and executes a single job, if one is available.
func (o *Orchestrator) Process(ctx context.Context, owner string, leaseDurationMs int64) error {
	now := o.deps.Now()
	job, err := o.deps.Store.LeaseNextJob(owner, now, leaseDurationMs)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	run, err := o.deps.Store.GetRun(job.RunID)
	if errors.Is(err, store.ErrNotFound) {
		return o.deps.Store.FailJob(job.ID, "run missing", o.deps.Now())
	}
	if err != nil {
		return err
	}

	o.mu.Lock()
	if o.activeSessions[run.SessionID] {
		o.mu.Unlock()
		return o.deps.Store.RequeueLeasedJobByRunID(run.ID, o.deps.Now())
	}
	o.activeSessions[run.SessionID] = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.activeSessions, run.SessionID)
		o.mu.Unlock()
	}()

	session, err := o.deps.Store.GetSession(run.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		finishedAt := o.deps.Now()
		_ = o.deps.Store.SetRunStatus(run.ID, "failed", 0, finishedAt, summaryJSON(Summary{Error: "session missing"}))
		return o.deps.Store.FailJob(job.ID, "session missing", finishedAt)
	}
	if err != nil {
		return err
	}

	// Open Question resolution: re-check the kill switch at process entry,
	// not only at enqueue time.
	if o.deps.KillSwitch() {
		finishedAt := o.deps.Now()
		_ = o.deps.Store.SetRunStatus(run.ID, "failed", 0, finishedAt, summaryJSON(Summary{Error: "kill-switch"}))
		return o.deps.Store.FailJob(job.ID, "kill-switch", finishedAt)
	}

	project, err := o.deps.Store.GetProject(run.ProjectID)
	if err != nil {
		return err
	}
	chat, err := o.deps.Store.GetChat(session.ChatID)
	unsafe := false
	chatExternalID := session.ChatID
	if err == nil {
		unsafe = chat.UnsafeUntil > o.deps.Now()
		chatExternalID = chat.ExternalChatID
	}

	startedAt := o.deps.Now()
	if err := o.deps.Store.SetRunStatus(run.ID, "in_flight", startedAt, 0, ""); err != nil {
		return err
	}

	engine := o.deps.ClaudeExecutor
	if session.Provider == "opencode" {
		engine = o.deps.OpenCodeExecutor
	}

	renewDone := make(chan struct{})
	go o.renewLeaseUntilDone(job.ID, leaseDurationMs, renewDone)
	defer close(renewDone)

	toolStarts := 0
	var appendErr error
	result, execErr := engine.Execute(ctx, executor.ExecuteInput{
		RunID:           run.ID,
		ProjectID:       run.ProjectID,
		SessionID:       run.SessionID,
		ProjectRootPath: project.RootPath,
		Prompt:          run.Prompt,
		EngineSessionID: session.EngineSessionID,
		Unsafe:          unsafe,
		GetRunStatus: func() (string, error) {
			r, err := o.deps.Store.GetRun(run.ID)
			if err != nil {
				return "", err
			}
			return r.Status, nil
		},
		OnEvent: func(ev events.Event) {
			if ev.Type == events.TypeToolStart {
				toolStarts++
			}
			payload, _ := json.Marshal(ev)
			if _, err := o.deps.Store.AppendRunEvent(run.ID, string(ev.Type), string(payload), o.deps.Now()); err != nil {
				appendErr = err
			}
			if o.deps.EventSink != nil {
				o.deps.EventSink(run.ID, chatExternalID, ev)
			}
		},
	})

	finishedAt := o.deps.Now()
	durationMs := finishedAt - startedAt
	if durationMs < 0 {
		durationMs = 0
	}

	if execErr != nil {
		payload, _ := json.Marshal(events.Event{Type: events.TypeError, Message: execErr.Error()})
		_, _ = o.deps.Store.AppendRunEvent(run.ID, string(events.TypeError), string(payload), finishedAt)
		_ = o.deps.Store.SetRunStatus(run.ID, "failed", 0, finishedAt, summaryJSON(Summary{DurationMs: durationMs, ToolCallsCount: toolStarts, ExitStatus: events.RunFinishedError, Error: execErr.Error()}))
		_ = o.deps.Store.FailJob(job.ID, execErr.Error(), finishedAt)
		return execErr
	}
	if appendErr != nil {
		_ = o.deps.Store.SetRunStatus(run.ID, "failed", 0, finishedAt, summaryJSON(Summary{DurationMs: durationMs, ToolCallsCount: toolStarts, ExitStatus: events.RunFinishedError, Error: appendErr.Error()}))
		_ = o.deps.Store.FailJob(job.ID, appendErr.Error(), finishedAt)
		return appendErr
	}

	if result.EngineSessionID != "" && result.EngineSessionID != session.EngineSessionID {
		_ = o.deps.Store.SetSessionEngineSessionID(session.ID, result.EngineSessionID, finishedAt)
	}

	runStatus, jobStatus := outcomeStatuses(result.ExitStatus)
	summary := Summary{
		DurationMs:     durationMs,
		ToolCallsCount: toolStarts,
		BytesOut:       result.BytesOut,
		ExitStatus:     result.ExitStatus,
		MalformedCount: result.MalformedCount,
	}
	if err := o.deps.Store.SetRunStatus(run.ID, runStatus, 0, finishedAt, summaryJSON(summary)); err != nil {
		return err
	}
	return o.deps.Store.SetJobStatus(job.ID, jobStatus, finishedAt)
}

// renewLeaseUntilDone renews jobID's lease at half the lease duration so
// an execution that outlives one lease window (the common case, since a
// run's wall-clock time is driven by the engine, not the lease) is not
// reclaimed by another worker out from under it.
func (o *Orchestrator) renewLeaseUntilDone(jobID string, leaseDurationMs int64, done <-chan struct{}) {
	interval := time.Duration(leaseDurationMs/2) * time.Millisecond
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := o.deps.Store.RenewJobLease(jobID, o.deps.Now(), leaseDurationMs); err != nil {
				o.deps.Logger.Error("lease renewal failed", "job_id", jobID, "error", err)
			}
		}
	}
}

func outcomeStatuses(exit events.RunFinishedStatus) (runStatus, jobStatus string) {
	switch exit {
	case events.RunFinishedSuccess:
		return "completed", "completed"
	case events.RunFinishedCancelled:
		return "cancelled", "cancelled"
	default:
		return "failed", "failed"
	}
}

func summaryJSON(s Summary) string {
	b, err := json.Marshal(s)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Reconcile abandons every in_flight run older than staleBeforeMs and
// requeues its job, returning the abandoned run ids and requeued count.
func (o *Orchestrator) Reconcile(staleBeforeMs int64) ([]string, int, error) {
	now := o.deps.Now()
	cutoff := now - staleBeforeMs
	ids, err := o.deps.Store.ListStaleInFlightRuns(cutoff)
	if err != nil {
		return nil, 0, err
	}
	var abandoned []string
	requeued := 0
	for _, id := range ids {
		ok, err := o.deps.Store.AbandonRun(id, now)
		if err != nil {
			return abandoned, requeued, fmt.Errorf("abandon run %s: %w", id, err)
		}
		if !ok {
			continue
		}
		abandoned = append(abandoned, id)
		if err := o.deps.Store.RequeueLeasedJobByRunID(id, now); err != nil {
			return abandoned, requeued, fmt.Errorf("requeue job for run %s: %w", id, err)
		}
		requeued++
	}
	return abandoned, requeued, nil
}
