// Command ohmyremote is the process entrypoint: it loads configuration,
// opens the store, wires the core components (orchestrator, worker
// pool, executors, chat handler, streamer, dashboard), and runs them
// under internal/lifecycle until told to stop. Grounded on
// cmd/shellman/main.go's config-load-then-wire shape and
// internal/command/app.go's urfave/cli Deps/BuildApp pattern.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"ohmyremote/internal/chat"
	"ohmyremote/internal/config"
	"ohmyremote/internal/dashboard"
	"ohmyremote/internal/events"
	"ohmyremote/internal/executor"
	"ohmyremote/internal/lifecycle"
	"ohmyremote/internal/logging"
	"ohmyremote/internal/orchestrator"
	"ohmyremote/internal/processrunner"
	"ohmyremote/internal/store"
	"ohmyremote/internal/streamer"
	"ohmyremote/internal/transport"
	"ohmyremote/internal/workerpool"
	"ohmyremote/internal/wshub"
)

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "ohmyremote",
		Usage: "remote-control bridge for coding-agent CLIs over chat",
		Action: func(c *cli.Context) error {
			return runServe(c.Context)
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "start the chat bridge, worker pool, and dashboard",
				Action: func(c *cli.Context) error {
					return runServe(c.Context)
				},
			},
			{
				Name:  "migrate",
				Usage: "database migration",
				Subcommands: []*cli.Command{
					{
						Name:  "up",
						Usage: "apply pending migrations",
						Action: func(c *cli.Context) error {
							return runMigrateUp()
						},
					},
				},
			},
		},
	}

	if err := app.RunContext(rootCtx, os.Args); err != nil {
		logging.NewLogger(logging.Options{Level: "error", Writer: os.Stderr, Component: "ohmyremote"}).Error("ohmyremote failed", "err", err)
		os.Exit(1)
	}
}

func dbPath(cfg config.Config) string {
	return filepath.Join(cfg.DataDir, "ohmyremote.db")
}

func runMigrateUp() error {
	cfg := config.LoadConfig()
	db, err := store.OpenSQLiteWithMigrations(dbPath(cfg))
	if err != nil {
		return err
	}
	return db.Close()
}

func runServe(ctx context.Context) error {
	cfg := config.LoadConfig()
	logger := logging.NewLogger(logging.Options{Level: cfg.LogLevel, Writer: os.Stderr, Component: "ohmyremote"})

	if cfg.TelegramBotToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}

	db, err := store.OpenSQLiteWithMigrations(dbPath(cfg))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()
	st := store.New(db)

	if _, err := config.LoadOrInitOverrides(filepath.Join(cfg.DataDir, "overrides.toml")); err != nil {
		logger.Warn("failed to load overrides", "err", err)
	}

	if err := loadInitialProjects(st, cfg); err != nil {
		logger.Warn("failed to load initial projects", "err", err)
	}

	tg := newTelegramClient(cfg.TelegramBotToken)
	clock := newRunClock()
	hub := wshub.New()
	streamr := streamer.New(tg, logger.With("component", "streamer"))

	runner := processrunner.New(logger.With("component", "processrunner"))
	claudeExec := executor.NewClaudeExecutor(runner, logger.With("component", "executor.claude"))
	opencodeExec := executor.NewOpenCodeExecutor(runner, logger.With("component", "executor.opencode"))

	ownerID := fmt.Sprintf("%d", cfg.TelegramOwnerUserID)

	orch := orchestrator.New(orchestrator.Deps{
		Store:            st,
		ClaudeExecutor:   claudeExec,
		OpenCodeExecutor: opencodeExec,
		Logger:           logger.With("component", "orchestrator"),
		NewID:            func() string { return uuid.NewString() },
		KillSwitch:       func() bool { return config.GetConfig().KillSwitchDisableRuns },
		EventSink: func(runID, chatID string, ev events.Event) {
			clock.touch(runID)
			hub.PublishEvent(runID, chatID, ev)
			streamr.HandleEvent(chatID, runID, ev)
			if ev.Type == events.TypeRunFinished {
				streamr.FinishRun(chatID, runID, streamer.FinishInfo{
					Status:     string(ev.Status),
					DurationMs: clock.elapsedMs(runID),
				})
				hub.PublishRunStatus(runID, "", string(ev.Status))
			}
		},
	})

	chatHandler := chat.New(chat.Deps{
		Store:          st,
		Orchestrator:   orch,
		OwnerUserID:    ownerID,
		KillSwitch:     func() bool { return config.GetConfig().KillSwitchDisableRuns },
		NewID:          func() string { return uuid.NewString() },
		Logger:         logger.With("component", "chat"),
		ProjectsConfig: cfg.ProjectsConfigPath,
	})

	pool := workerpool.New(orch, logger.With("component", "workerpool"), hostOwnerID())

	dash := dashboard.NewServer(dashboard.Deps{
		Store:         st,
		Hub:           hub,
		BasicAuthUser: cfg.DashboardBasicAuthUsr,
		BasicAuthPass: cfg.DashboardBasicAuthPwd,
		CancelRun: func(runID string) error {
			return st.CancelRun(runID, time.Now().UnixMilli())
		},
	})

	mgr := lifecycle.NewManager()
	mgr.AddRun("workerpool", pool.Run)
	mgr.AddRun("chat-poll", func(runCtx context.Context) error {
		return pollChatUpdates(runCtx, tg, chatHandler, logger.With("component", "chat-poll"))
	})
	mgr.AddRun("dashboard-http", func(runCtx context.Context) error {
		return runDashboardHTTP(runCtx, cfg, dash, logger.With("component", "dashboard"))
	})

	return mgr.StartAndWait(ctx)
}

func hostOwnerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return fmt.Sprintf("worker-%d", os.Getpid())
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func loadInitialProjects(st *store.Store, cfg config.Config) error {
	if cfg.ProjectsConfigPath == "" {
		return nil
	}
	projects, err := config.LoadProjects(cfg.ProjectsConfigPath)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
		if err := st.UpsertProject(&store.Project{
			ID:                p.ID,
			Name:              p.Name,
			RootPath:          p.RootPath,
			DefaultEngine:     p.DefaultEngine,
			OpencodeAttachURL: p.OpencodeAttachURL,
		}, now); err != nil {
			return err
		}
	}
	return st.DeleteProjectsNotIn(ids)
}

// pollChatUpdates runs the Telegram long-poll loop: fetch updates, run
// each through the chat handler, and perform every returned action.
func pollChatUpdates(ctx context.Context, tg *telegramClient, h *chat.Handler, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := tg.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("getUpdates failed", "err", err)
			time.Sleep(2 * time.Second)
			continue
		}

		for _, u := range updates {
			actions, err := h.Handle(u)
			if err != nil {
				logger.Error("chat handler failed", "err", err)
				continue
			}
			performActions(tg, actions, logger)
		}
	}
}

func performActions(tg *telegramClient, actions []transport.Action, logger *slog.Logger) {
	for _, a := range actions {
		var err error
		switch a.Kind {
		case transport.ActionReply, transport.ActionReplyKeyboard:
			_, err = tg.SendMessage(a.ChatID, a.Text, a.Keyboard)
		case transport.ActionEditKeyboard:
			err = tg.EditMessage(a.ChatID, a.MessageID, a.Text, a.Keyboard)
		case transport.ActionReplyWithDocument:
			err = tg.SendDocument(a.ChatID, a.FilePath, a.Caption)
		case transport.ActionAnswerCallback:
			err = tg.AnswerCallback(a.CallbackQueryID, a.Toast)
		}
		if err != nil {
			logger.Warn("action failed", "kind", a.Kind, "err", err)
		}
	}
}

func runDashboardHTTP(ctx context.Context, cfg config.Config, dash *dashboard.Server, logger *slog.Logger) error {
	addr := fmt.Sprintf("%s:%d", cfg.DashboardBindHost, cfg.DashboardPort)
	srv := &http.Server{Addr: addr, Handler: dash.Handler()}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dashboard listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
