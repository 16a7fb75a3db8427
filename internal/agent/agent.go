package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"vmonitor-agent/internal/collector"
	"vmonitor-agent/internal/config"
	"vmonitor-agent/internal/stream"
	"vmonitor-agent/internal/system"
)

type Agent struct {
	cfg        config.Config
	logger     *slog.Logger
	id         string
	host       *collector.HostCollector
	sampler    *collector.Sampler
	supervisor *stream.Supervisor
	health     *HealthStatus
	notifier   Notifier
}

func New(cfg config.Config, logger *slog.Logger) (*Agent, error) {
	id := uuid.NewString()
	logger = logger.With("agent_id", id)

	host := collector.NewHostCollector(system.NewReader(logger), cfg.AgentVersion)
	sampler := collector.NewSampler(logger, host, cfg.Interval, cfg.Interval)

	supervisor, err := stream.NewSupervisorFromConfig(cfg, id, host.HostInfo, logger)
	if err != nil {
		return nil, fmt.Errorf("stream supervisor: %w", err)
	}

	return &Agent{
		cfg:        cfg,
		logger:     logger,
		id:         id,
		host:       host,
		sampler:    sampler,
		supervisor: supervisor,
		health:     NewHealthStatus(id, cfg.AgentVersion, supervisor.Snapshot, sampler.Last),
		notifier:   newSystemdNotifier(logger),
	}, nil
}

func (a *Agent) ID() string { return a.id }

func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("starting vmonitor-agent",
		"version", a.cfg.AgentVersion,
		"format", a.cfg.Format,
		"interval", a.cfg.Interval,
		"endpoints", len(a.cfg.EnabledEndpoints()),
	)
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- a.run(runCtx)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case runErr = <-runErrCh:
		// stopped on its own: startup failure or parent ctx cancelled
	case sig := <-sigCh:
		a.logger.Info("shutdown signal received, starting graceful shutdown", "signal", sig.String(), "timeout", a.cfg.ShutdownTimeout)
		a.notifier.Notify(notifyStopping)
		cancelRun()

		graceTimer := time.NewTimer(a.cfg.ShutdownTimeout)
		defer graceTimer.Stop()

		select {
		case runErr = <-runErrCh:
		case sig2 := <-sigCh:
			a.logger.Warn("second signal received, forcing immediate shutdown", "signal", sig2.String())
			runErr = context.Canceled
		case <-graceTimer.C:
			a.logger.Warn("graceful shutdown timeout reached, forcing shutdown", "timeout", a.cfg.ShutdownTimeout)
			runErr = context.DeadlineExceeded
		}
	}

	a.shutdown()

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	a.logger.Info("vmonitor-agent stopped")
	return nil
}

// BuildLogger writes to stdout, as text or JSON per config.
func BuildLogger(cfg config.Config) *slog.Logger {
	return buildLogger(cfg, os.Stdout)
}

func buildLogger(cfg config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	hOpts := &slog.HandlerOptions{Level: level}
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(w, hOpts))
	}
	return slog.New(slog.NewTextHandler(w, hOpts))
}
