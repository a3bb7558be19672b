// Package executor composes the process runner (C4) and the engine
// parsers (C3) into the two concrete EngineExecutor variants (C8):
// argv/environment construction, idle-timeout watchdog, cancellation
// polling, and event forwarding are shared; only argv/env shape, parser
// selection, and idle timeout differ per engine.
package executor

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"ohmyremote/internal/engineparser"
	"ohmyremote/internal/events"
	"ohmyremote/internal/processrunner"
)

// ExecuteInput carries everything an execution needs from the
// orchestrator. EngineSessionID is "" for a new session, the literal
// "__continue__" marker, or a previously captured engine session id.
type ExecuteInput struct {
	RunID           string
	ProjectID       string
	SessionID       string
	ProjectRootPath string
	Prompt          string
	EngineSessionID string
	Unsafe          bool
	Model           string
	OpenCodeAgent   string
	AttachURL       string
	Files           []string
	MaxTurns        int
	MaxBudgetUSD    float64
	DisallowedTools string

	// GetRunStatus is polled every 500ms; if it returns "cancelled" the
	// runner is cancelled.
	GetRunStatus func() (string, error)
	// OnEvent is invoked for every normalized event as it is produced.
	OnEvent func(events.Event)
}

// ExecuteResult is the terminal outcome of one execution.
type ExecuteResult struct {
	ExitStatus      events.RunFinishedStatus
	EngineSessionID string
	BytesOut        int64
	MalformedCount  int
}

// engineConfig is the per-engine behavior plugged into the shared run loop.
type engineConfig struct {
	name        string
	command     string
	idleTimeout time.Duration
	buildArgv   func(in ExecuteInput) []string
	buildEnv    func(in ExecuteInput) []string
	newParser   func() engineparser.Parser
}

// Executor runs one engine variant's executions.
type Executor struct {
	cfg    engineConfig
	runner *processrunner.Runner
	logger *slog.Logger
}

const (
	stderrCap       = 10 * 1024
	cancelPollEvery = 500 * time.Millisecond
)

// Execute spawns the engine CLI, feeds its output through the line framer
// and engine parser, forwards every normalized event via in.OnEvent, and
// returns the terminal outcome.
func (e *Executor) Execute(ctx context.Context, in ExecuteInput) (ExecuteResult, error) {
	parser := e.cfg.newParser()
	framerOut := events.NewLineFramer()
	framerErr := events.NewLineFramer()

	var bytesOut int64
	var stderrTail []byte
	var sawErrorEvent bool
	var idleTriggered atomicBool
	var lastActivity atomicTime
	lastActivity.Set(time.Now())

	emit := func(evs []events.Event) {
		for _, ev := range evs {
			if ev.Type == events.TypeError {
				sawErrorEvent = true
			}
			if encoded, err := json.Marshal(ev); err == nil {
				bytesOut += int64(len(encoded))
			}
			if in.OnEvent != nil {
				in.OnEvent(ev)
			}
		}
	}

	onStdout := func(chunk []byte) {
		lastActivity.Set(time.Now())
		for _, line := range framerOut.Push(chunk) {
			emit(parser.Push(line))
		}
	}
	onStderr := func(chunk []byte) {
		lastActivity.Set(time.Now())
		stderrTail = append(stderrTail, chunk...)
		if len(stderrTail) > stderrCap {
			stderrTail = stderrTail[len(stderrTail)-stderrCap:]
		}
		for _, line := range framerErr.Push(chunk) {
			_ = line // stderr lines are not parsed as events; only buffered for diagnostics
		}
	}

	runCtx, cancelRunCtx := context.WithCancel(ctx)
	defer cancelRunCtx()

	var handle *processrunner.Handle
	handle, err := e.runner.Start(runCtx, processrunner.StartOptions{
		SessionKey:    in.SessionID,
		Command:       e.cfg.command,
		Args:          e.cfg.buildArgv(in),
		Cwd:           in.ProjectRootPath,
		Env:           e.cfg.buildEnv(in),
		CancelGraceMs: 1000,
		OnStdout:      onStdout,
		OnStderr:      onStderr,
		OnLifecycle: func(ev processrunner.LifecycleEvent) {
			e.logger.Debug("engine lifecycle", "engine", e.cfg.name, "run_id", in.RunID, "stage", ev.Stage, "pid", ev.PID)
		},
	})
	if err != nil {
		return ExecuteResult{}, err
	}

	watchdogDone := make(chan struct{})
	go e.watchdog(handle, &lastActivity, &idleTriggered, watchdogDone)
	go e.cancelPoller(handle, in.GetRunStatus, watchdogDone)

	result := <-handle.Result
	close(watchdogDone)

	for _, line := range framerOut.Flush() {
		emit(parser.Push(line))
	}

	terminal := events.RunFinishedSuccess
	switch {
	case result.Cancelled && idleTriggered.Get():
		// Idle-timeout cancellation is functionally identical to an
		// explicit cancel at the runner level, but surfaces as an error
		// here since no user cancel was recorded.
		terminal = events.RunFinishedError
	case result.Cancelled:
		terminal = events.RunFinishedCancelled
	case result.Status == processrunner.StatusFailed:
		terminal = events.RunFinishedError
	}
	emit(parser.Finish(terminal))

	if terminal == events.RunFinishedError && !sawErrorEvent && len(stderrTail) > 0 {
		emit([]events.Event{{Type: events.TypeError, Message: string(stderrTail)}})
	}

	return ExecuteResult{
		ExitStatus:      terminal,
		EngineSessionID: parser.EngineSessionID(),
		BytesOut:        bytesOut,
		MalformedCount:  parser.MalformedCount(),
	}, nil
}

func (e *Executor) watchdog(handle *processrunner.Handle, lastActivity *atomicTime, idleTriggered *atomicBool, done chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if time.Since(lastActivity.Get()) >= e.cfg.idleTimeout {
				idleTriggered.Set(true)
				handle.Cancel()
				return
			}
		}
	}
}

func (e *Executor) cancelPoller(handle *processrunner.Handle, getStatus func() (string, error), done chan struct{}) {
	if getStatus == nil {
		return
	}
	ticker := time.NewTicker(cancelPollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			status, err := getStatus()
			if err != nil {
				continue
			}
			if status == "cancelled" {
				handle.Cancel()
				return
			}
		}
	}
}
