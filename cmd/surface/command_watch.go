package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"surface/internal/config"
	"surface/internal/engine"
	"surface/internal/logging"
	"surface/internal/store"
)

type WatchCommand struct {
	stdout    io.Writer
	stderr    io.Writer
	newClient clientFactory
}

func NewWatchCommand(stdout, stderr io.Writer, newClient clientFactory) *WatchCommand {
	return &WatchCommand{stdout: stdout, stderr: stderr, newClient: newClient}
}

// buildWatchLogger prefers the append-only file sink under the data dir so a
// long-running watch does not interleave log lines with session output.
// Stderr is the fallback when the path is unavailable.
func buildWatchLogger(stderr io.Writer, cfg config.Config) (logging.Logger, func() error) {
	level := logging.ParseLevel(cfg.Logging.Level)
	if path, err := config.LogPath(); err == nil {
		if log, closeLog, err := logging.NewFile(path, level); err == nil {
			return log, closeLog
		}
	}
	return logging.New(stderr, level), func() error { return nil }
}

func (c *WatchCommand) Run(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	project := fs.String("project", "", "project path to watch")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, closeLog := buildWatchLogger(c.stderr, cfg)
	defer closeLog()

	backend, err := c.newClient()
	if err != nil {
		return err
	}

	var cache *store.SnapshotCache
	if dbPath, err := config.SnapshotDBPath(); err == nil {
		if opened, err := store.NewSnapshotCache(dbPath); err == nil {
			cache = opened
			defer cache.Close()
		} else {
			log.Warn("snapshot cache unavailable", logging.F("error", err))
		}
	}

	eng := engine.New(backend,
		engine.WithLogger(log),
		engine.WithConfig(cfg),
		engine.WithSnapshotCache(cache),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	events, cancel, err := backend.Events(ctx, *project)
	if err != nil {
		return err
	}
	defer cancel()

	if err := eng.SetActiveProject(ctx, *project); err != nil {
		log.Warn("initial refresh failed; showing last known state",
			logging.F("error", err))
	}

	changes := eng.Subscribe()
	dispatcher := engine.NewDispatcher(eng, log)
	go dispatcher.Run(ctx, events)

	printSessions(c.stdout, eng)
	for {
		select {
		case <-ctx.Done():
			return nil
		case notification := <-eng.Notifications():
			fmt.Fprintf(c.stdout, "! %s %s: %s\n",
				notification.Kind, notification.SessionID, notification.Message)
		case <-changes:
			printSessions(c.stdout, eng)
		}
	}
}
