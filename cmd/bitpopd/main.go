// Package main is the entry point for the bitpopd dialog daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	godbus "github.com/godbus/dbus/v5"

	"github.com/jmylchreest/bitpop/internal/config"
	"github.com/jmylchreest/bitpop/internal/dbus"
	"github.com/jmylchreest/bitpop/internal/popup"
	"github.com/jmylchreest/bitpop/internal/tui"
)

var (
	// Build-time variables
	version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ~/.config/bitpop/config.toml)")
	logLevel := flag.String("log-level", "", "Override the configured log level (debug, info, warn, error)")
	logFile := flag.String("log-file", "", "Write logs to this file instead of stderr")
	backend := flag.String("backend", "", "Override the configured dialog backend (dbus, terminal)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("bitpopd version", version)
		os.Exit(0)
	}

	path := *configPath
	if path == "" {
		p, err := config.Path()
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed to get config path:", err)
			os.Exit(1)
		}
		path = p
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	if *backend != "" {
		cfg.Host.Backend = *backend
		if err := cfg.Validate(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	// Set up structured logging. The level follows config reloads.
	level := new(slog.LevelVar)
	level.Set(cfg.SlogLevel())
	if *logLevel != "" {
		l, err := config.ParseLevel(*logLevel)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		level.Set(l)
	}

	var out io.Writer = os.Stderr
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed to open log file:", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()
		out = f
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(path, cfg, level, *logLevel != "", logger); err != nil {
		logger.Error("bitpopd failed", "error", err)
		os.Exit(1)
	}
}

// run wires the daemon together and blocks until a shutdown signal arrives
// or the terminal host quits.
func run(path string, cfg *config.Config, level *slog.LevelVar, levelPinned bool, logger *slog.Logger) error {
	logger.Info("starting bitpopd", "version", version, "backend", cfg.Host.Backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	conn, err := godbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer func() { _ = conn.Close() }()

	var (
		host      popup.Host
		notifier  *dbus.NotificationHost
		terminal  *tui.Host
		hostDone  <-chan struct{}
		termErrCh = make(chan error, 1)
	)

	switch config.Backend(cfg.Host.Backend) {
	case config.BackendTerminal:
		terminal = tui.NewHost(tui.HostOptions{ModelOptions: modelOptions(cfg)}, logger)
		host = terminal
		hostDone = terminal.Done()
		go func() { termErrCh <- terminal.Run() }()
	default:
		notifier, err = dbus.ConnectNotificationHost(ctx, conn, hostOptions(cfg), logger)
		if err != nil {
			return err
		}
		host = notifier
	}

	orch := popup.New(host, popup.Options{
		Logger:             logger,
		JournalLength:      cfg.Journal.Length,
		ServiceMinInterval: cfg.Service.MinInterval.Duration(),
		ServiceMaxKeys:     cfg.Service.RateLimitKeys,
	})

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- orch.Run(ctx) }()

	server := dbus.NewPopupServer(orch, logger)
	if err := server.Start(conn); err != nil {
		cancel()
		if terminal != nil {
			terminal.Quit()
		}
		return err
	}
	defer func() { _ = server.Stop() }()

	orch.HandleServiceAction(popup.ServiceActionStopPlayback, func() {
		if err := server.EmitServiceAction(popup.ServiceActionStopPlayback); err != nil {
			logger.Warn("failed to emit service action", "action", popup.ServiceActionStopPlayback, "error", err)
		}
	})

	// Config hot-reload. The backend is fixed for the life of the process.
	watcher := config.NewWatcher(path, cfg, logger)
	watcher.SetReloadCallback(func(c *config.Config) {
		if c.Host.Backend != cfg.Host.Backend {
			logger.Warn("host backend change requires a restart", "configured", c.Host.Backend, "running", cfg.Host.Backend)
		}
		if !levelPinned {
			level.Set(c.SlogLevel())
		}
		orch.SetServiceMinInterval(c.Service.MinInterval.Duration())
		orch.SetJournalLength(c.Journal.Length)
		if notifier != nil {
			notifier.SetOptions(hostOptions(c))
		}
		logger.Info("configuration reloaded")
	})
	watcher.SetErrorCallback(func(err error) {
		orch.ShowFromService(popup.ServiceAlert{
			Title:   "bitpop",
			Message: fmt.Sprintf("Configuration not reloaded: %v", err),
		})
	})
	if err := watcher.Start(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}
	defer watcher.Stop()

	logger.Info("bitpopd ready", "dbus_interface", dbus.PopupInterface)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
	case <-hostDone:
		logger.Info("terminal host exited, shutting down")
	case err := <-runErrCh:
		return fmt.Errorf("orchestrator stopped: %w", err)
	}

	cancel()
	if err := <-runErrCh; err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("orchestrator stopped with error", "error", err)
	}

	if terminal != nil {
		terminal.Quit()
		if err := <-termErrCh; err != nil {
			logger.Warn("terminal host stopped with error", "error", err)
		}
	}

	logger.Info("bitpopd stopped")
	return nil
}

func hostOptions(cfg *config.Config) dbus.HostOptions {
	return dbus.HostOptions{
		AppName: cfg.DBus.AppName,
		Labels: dbus.Labels{
			Confirm: cfg.Dialog.ConfirmLabel,
			Cancel:  cfg.Dialog.CancelLabel,
		},
		DefaultIcon:       cfg.Dialog.DefaultIcon,
		AlertLightTimeout: cfg.Dialog.AlertLightTimeout.Duration(),
		ExpireTimeout:     cfg.DBus.ExpireTimeout.Duration(),
	}
}

func modelOptions(cfg *config.Config) tui.ModelOptions {
	return tui.ModelOptions{
		ConfirmLabel:      cfg.Dialog.ConfirmLabel,
		CancelLabel:       cfg.Dialog.CancelLabel,
		AlertLightTimeout: cfg.Dialog.AlertLightTimeout.Duration(),
	}
}
