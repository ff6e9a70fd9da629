// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Wiring of config, logging, storage, client and engine.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/agentchat/internal/agent"
	"github.com/jeranaias/agentchat/internal/config"
	"github.com/jeranaias/agentchat/internal/ingest"
	"github.com/jeranaias/agentchat/internal/logging"
	"github.com/jeranaias/agentchat/internal/storage"
)

// App holds everything a command needs.
type App struct {
	Config   *config.Config
	Logger   *logrus.Logger
	Repo     *storage.Repository
	Client   *agent.Client
	Engine   *ingest.Engine
	Renderer *Renderer

	Out  io.Writer
	Err  io.Writer
	JSON bool

	closers []func() error
}

// LoadConfig loads the config file named by args, or the default one. A
// default config file that cannot be parsed is reported on stderr and
// the built-in defaults are used.
func LoadConfig(args Args, stderr io.Writer) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg, err = config.Load()
		if cfg == nil {
			return nil, err
		}
		if err != nil {
			fmt.Fprintf(stderr, "%s %v (using defaults)\n", RenderConditional(WarningStyle, "[Warning]"), err)
		}
	}

	if args.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// NewApp loads config and opens storage. Close must be called.
func NewApp(ctx context.Context, args Args, stdout, stderr io.Writer) (*App, error) {
	cfg, err := LoadConfig(args, stderr)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Out: stdout, Err: stderr, JSON: args.JSON}

	logger, closeLog, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		Stderr: stderr,
	})
	if err != nil {
		return nil, err
	}
	app.Logger = logger
	app.closers = append(app.closers, closeLog)

	dir, err := cfg.DataDir()
	if err != nil {
		app.Close()
		return nil, err
	}
	backend, err := storage.OpenBackend(cfg.Storage.Backend, dir)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}
	repo, report, err := storage.Open(ctx, backend, logger)
	if err != nil {
		backend.Close()
		app.Close()
		return nil, err
	}
	app.Repo = repo
	app.closers = append(app.closers, repo.Close)
	app.reportLoad(report)

	app.Client = agent.NewClient(&agent.ClientConfig{
		BaseURL:   cfg.Agent.BaseURL,
		APIKey:    cfg.Agent.APIKey,
		OrgID:     cfg.Agent.OrgID,
		UserEmail: cfg.Agent.UserEmail,
		Timeout:   cfg.Timeout(),
		Logger:    logger,
	})
	app.Engine = ingest.NewEngine(repo, app.Client, ingest.Config{
		UserID:          cfg.Agent.UserEmail,
		AgentID:         cfg.UI.AgentID,
		PersistInterval: cfg.PersistInterval(),
		Logger:          logger,
	})
	app.Renderer = NewRenderer(stdout, cfg, args.NoMarkdown)
	app.Renderer.Queries = repo.Queries

	return app, nil
}

func (a *App) reportLoad(report *storage.LoadReport) {
	if report == nil || a.JSON {
		return
	}
	if report.Recovered > 0 {
		fmt.Fprintf(a.Err, "%s %d interrupted answer(s) from a previous session marked as failed\n",
			RenderConditional(WarningStyle, "[Warning]"), report.Recovered)
	}
	if len(report.Skipped) > 0 {
		fmt.Fprintf(a.Err, "%s could not read conversation(s): %s\n",
			RenderConditional(WarningStyle, "[Warning]"), strings.Join(report.Skipped, ", "))
	}
}

// WatchStorage reloads conversations saved by other agentchat processes
// until the app is closed. Only the file backend can be watched.
func (a *App) WatchStorage() {
	w, err := storage.NewWatcher(a.Repo, storage.DefaultWatchDebounce, a.Logger)
	if err != nil {
		if !errors.Is(err, storage.ErrWatchUnsupported) {
			a.Logger.WithError(err).Warn("Failed to watch conversations")
		}
		return
	}
	if err := w.Watch(); err != nil {
		a.Logger.WithError(err).Warn("Failed to watch conversations")
		w.Close()
		return
	}
	a.closers = append(a.closers, w.Close)
}

// Close waits for background work and releases storage and log files,
// in reverse order of opening.
func (a *App) Close() error {
	if a.Engine != nil {
		a.Engine.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Infof writes a progress line to stderr unless output is JSON.
func (a *App) Infof(format string, args ...any) {
	if a.JSON {
		return
	}
	fmt.Fprintf(a.Err, format+"\n", args...)
}

// cancelOnInterrupt cancels the in-flight answer of the conversation named
// by current on every SIGINT. The returned func stops listening.
func (a *App) cancelOnInterrupt(ctx context.Context, current func() string) func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-sigs:
				id := current()
				if id == "" {
					continue
				}
				cancelled, err := a.Engine.CancelConversation(ctx, id)
				if err != nil {
					a.Logger.WithError(err).Warn("Cancel failed")
					continue
				}
				if cancelled {
					a.Infof("\n%s", RenderConditional(WarningStyle, "[Cancelled]"))
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigs)
			close(done)
			wg.Wait()
		})
	}
}
