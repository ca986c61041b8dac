// Package daemonrun hosts the platen daemon runtime loop shared by the
// standalone platend binary and the CLI's foreground daemon command.
package daemonrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"platen/internal/config"
	"platen/internal/daemon"
	"platen/internal/history"
	"platen/internal/ipc"
	"platen/internal/logging"
	"platen/internal/orchestrator"
	"platen/internal/project"
	"platen/internal/runner"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides the configured log level when non-empty.
	LogLevel string
}

// Run wires the daemon together and blocks until a signal arrives or a stop
// is requested over IPC.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := history.Open(cfg)
	if err != nil {
		logger.Error("open history store", logging.Error(err))
		return err
	}

	registry := project.NewRegistry(cfg.ProjectRoots(), logger)
	run := runner.New(logger)
	orch := orchestrator.New(cfg, registry, run, store, logger)

	d, err := daemon.New(cfg, store, registry, orch, logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	// The instance lock is taken before the socket so a second daemon
	// cannot rip a live daemon's socket out from under it.
	if err := d.Start(signalCtx); err != nil {
		return err
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	logger.Info("platen daemon ready",
		logging.String("socket", cfg.SocketPath()),
		logging.Int("pid", os.Getpid()))

	select {
	case <-signalCtx.Done():
		logger.Info("platen daemon shutting down", logging.String("reason", "signal"))
	case <-d.ShutdownRequested():
		logger.Info("platen daemon shutting down", logging.String("reason", "stop request"))
	}
	return nil
}
