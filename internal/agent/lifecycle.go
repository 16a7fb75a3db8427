package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"vmonitor-agent/internal/model"
)

func (a *Agent) run(ctx context.Context) error {
	samples := make(chan *model.Sample, 1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.sampler.Run(gctx, samples)
	})
	g.Go(func() error {
		return a.supervisor.Run(gctx, samples)
	})
	g.Go(func() error {
		return a.runHealthLoop(gctx)
	})
	if strings.TrimSpace(a.cfg.ProbeListenAddr) != "" {
		g.Go(func() error {
			return a.runProbeListener(gctx)
		})
	}

	a.health.SetReady(true)
	a.notifier.Notify(notifyReady)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runHealthLoop logs the health snapshot and feeds the systemd watchdog when one is armed.
func (a *Agent) runHealthLoop(ctx context.Context) error {
	interval := a.cfg.HealthInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	watchdog := a.notifier.WatchdogInterval()
	if watchdog > 0 && watchdog/2 < interval {
		interval = watchdog / 2
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			snap := a.health.Snapshot()
			if watchdog > 0 {
				a.notifier.Notify(notifyWatchdog)
			}
			if snap.Failed > 0 && snap.Failed == len(snap.Sessions) {
				a.logger.Warn("agent health", "status", "degraded", "connected", snap.Connected, "failed", snap.Failed, "last_sequence", snap.LastSequence)
				continue
			}
			a.logger.Debug("agent health", "status", "ok", "connected", snap.Connected, "failed", snap.Failed, "last_sequence", snap.LastSequence)
		}
	}
}

func (a *Agent) shutdown() {
	a.health.SetReady(false)
	for _, st := range a.supervisor.Snapshot() {
		a.logger.Info("endpoint final status", "endpoint", st.Endpoint, "state", st.State, "delivered", st.Delivered, "superseded", st.Superseded, "failures", st.Failures)
	}
}
