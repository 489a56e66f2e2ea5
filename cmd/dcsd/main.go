// dcsd – the IPC control-plane daemon for a single-board-computer-attached
// 3D-printer.
//
// Usage:
//
//	dcsd [--root <dir>]
//
// The daemon listens on a UNIX domain socket at <root>/dcs.sock and drives
// every Command/Intercept/Subscribe/PluginHttpEndpoint connection per
// dcsd.yaml under root. It is normally started by the system service
// manager; you do not need to run it by hand.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/duet3d/dcsd/internal/config"
	"github.com/duet3d/dcsd/internal/model"
	"github.com/duet3d/dcsd/internal/modelsource"
	"github.com/duet3d/dcsd/internal/server"
)

func main() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		slog.Error("cannot determine home directory", "error", err)
		os.Exit(1)
	}
	defaultRoot := filepath.Join(homeDir, ".dcsd")
	// DCSD_ROOT env var overrides the default, the same override the
	// teacher's daemons expose as CATHERDD_ROOT/GROVE_ROOT.
	if env := os.Getenv("DCSD_ROOT"); env != "" {
		defaultRoot = env
	}

	rootDir := flag.String("root", defaultRoot, "dcsd data directory (env: DCSD_ROOT)")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := os.MkdirAll(*rootDir, 0o755); err != nil {
		log.Error("create root directory", "root", *rootDir, "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*rootDir)
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	source := newSource()

	daemon, err := server.New(cfg, source, log)
	if err != nil {
		log.Error("daemon init", "error", err)
		os.Exit(1)
	}
	defer daemon.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := daemon.Serve(ctx); err != nil {
		log.Error("daemon serve", "error", err)
		os.Exit(1)
	}
}

// newSource builds the gobreaker-wrapped modelsource.Source production
// code wires against. The real motion-controller transport is out of
// scope (spec.md §1); NewFake stands in as the collaborator the breaker
// decorates, matching the teacher's practice of faking an external process
// in its integration tests rather than modeling the transport here.
func newSource() modelsource.Source {
	fake := modelsource.NewFake(model.Snapshot{
		"state": map[string]any{"status": "idle"},
	})
	return modelsource.NewBreakerSource(fake)
}
