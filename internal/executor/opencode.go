package executor

import (
	"encoding/json"
	"log/slog"
	"time"

	"ohmyremote/internal/engineparser"
	"ohmyremote/internal/processrunner"
)

// openCodeIdleTimeout is the default idle watchdog for the opencode
// engine — intentionally different from claude's (300s vs 180s); the
// asymmetry is preserved per SPEC_FULL.md's Open Question resolution.
const openCodeIdleTimeout = 300 * time.Second

// NewOpenCodeExecutor returns an Executor that drives the `opencode` CLI
// in `--format json` mode.
func NewOpenCodeExecutor(runner *processrunner.Runner, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		runner: runner,
		logger: logger,
		cfg: engineConfig{
			name:        "opencode",
			command:     "opencode",
			idleTimeout: openCodeIdleTimeout,
			buildArgv:   buildOpenCodeArgv,
			buildEnv:    buildOpenCodeEnv,
			newParser:   func() engineparser.Parser { return engineparser.NewOpenCodeParser() },
		},
	}
}

func buildOpenCodeArgv(in ExecuteInput) []string {
	args := []string{"run", in.Prompt, "--format", "json"}

	switch in.EngineSessionID {
	case "":
		// new session
	case "__continue__":
		args = append(args, "--continue")
	default:
		args = append(args, "--session", in.EngineSessionID)
	}

	if in.AttachURL != "" {
		args = append(args, "--attach", in.AttachURL)
	}
	for _, f := range in.Files {
		args = append(args, "-f", f)
	}
	if in.Model != "" {
		args = append(args, "--model", in.Model)
	}
	if in.OpenCodeAgent != "" {
		args = append(args, "--agent", in.OpenCodeAgent)
	}
	return args
}

func buildOpenCodeEnv(in ExecuteInput) []string {
	policy := map[string]any{
		"*":                  "deny",
		"read":               "allow",
		"glob":               "allow",
		"grep":               "allow",
		"list":               "allow",
		"external_directory": "deny",
	}
	if in.Unsafe {
		policy["edit"] = map[string]any{"*": "allow"}
		policy["bash"] = map[string]any{
			"*": "deny",
			"git *|pnpm *|npm *|cargo *|python *|node *": "allow",
			"rm *|sudo *|dd *|mkfs *":                    "deny",
		}
	}
	doc := map[string]any{"permission": policy}
	content, _ := json.Marshal(doc)
	return sanitizeEnv(map[string]string{"OPENCODE_CONFIG_CONTENT": string(content)})
}
