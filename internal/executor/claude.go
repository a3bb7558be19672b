package executor

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"ohmyremote/internal/engineparser"
	"ohmyremote/internal/processrunner"
)

// claudeIdleTimeout is the default idle watchdog for the claude engine,
// measured from the most recent stdout/stderr activity.
const claudeIdleTimeout = 180 * time.Second

// NewClaudeExecutor returns an Executor that drives the `claude` CLI in
// `stream-json` mode.
func NewClaudeExecutor(runner *processrunner.Runner, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		runner: runner,
		logger: logger,
		cfg: engineConfig{
			name:        "claude",
			command:     "claude",
			idleTimeout: claudeIdleTimeout,
			buildArgv:   buildClaudeArgv,
			buildEnv:    func(in ExecuteInput) []string { return sanitizeEnv(nil) },
			newParser:   func() engineparser.Parser { return engineparser.NewClaudeParser() },
		},
	}
}

func buildClaudeArgv(in ExecuteInput) []string {
	args := []string{
		"-p", in.Prompt,
		"--output-format", "stream-json",
		"--include-partial-messages",
		"--verbose",
	}
	if in.Model != "" {
		args = append(args, "--model", in.Model)
	}

	switch in.EngineSessionID {
	case "":
		// new session: no session flags
	case "__continue__":
		args = append(args, "--continue")
	default:
		args = append(args, "--resume", in.EngineSessionID, "--fork-session")
	}

	toolsCSV := "Read,Glob,Grep"
	if in.Unsafe {
		toolsCSV = "Bash,Read,Edit,Write,Glob,Grep"
	}
	args = append(args, "--tools", toolsCSV, "--allowedTools", toolsCSV)

	if in.DisallowedTools != "" {
		args = append(args, "--disallowedTools", in.DisallowedTools)
	}
	if in.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(in.MaxTurns))
	}
	if in.MaxBudgetUSD > 0 {
		args = append(args, "--max-budget-usd", fmt.Sprintf("%g", in.MaxBudgetUSD))
	}
	return args
}
