package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"vmonitor-agent/internal/config"
	"vmonitor-agent/internal/model"
)

// Supervisor fans samples out to one session per enabled endpoint. It holds no per-endpoint
// state of its own.
type Supervisor struct {
	logger   *slog.Logger
	sessions []*Session
	grace    time.Duration
	failed   atomic.Int32
}

// NewSupervisor creates one session per enabled endpoint; disabled endpoints are skipped.
func NewSupervisor(logger *slog.Logger, endpoints []config.Endpoint, opts SessionOptions, grace time.Duration) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logger
	}
	sup := &Supervisor{logger: logger, grace: grace}

	onFailed := opts.OnFailed
	opts.OnFailed = func(endpoint string, err error) {
		if onFailed != nil {
			onFailed(endpoint, err)
		}
		if int(sup.failed.Add(1)) == len(sup.sessions) {
			sup.logger.Error("all endpoints failed, samples are no longer delivered anywhere", "endpoints", len(sup.sessions))
		}
	}
	for _, ep := range endpoints {
		if !ep.Enabled {
			continue
		}
		sup.sessions = append(sup.sessions, NewSession(ep, opts))
	}
	return sup
}

func (s *Supervisor) Sessions() []*Session { return s.sessions }

// Run starts every session and forwards samples until ctx is cancelled, then waits up to the
// grace period for the sessions to close their connections.
func (s *Supervisor) Run(ctx context.Context, samples <-chan *model.Sample) error {
	if len(s.sessions) == 0 {
		return errors.New("supervisor: no enabled endpoints")
	}

	var wg sync.WaitGroup
	for _, sess := range s.sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sess.Run(ctx)
		}()
	}
	s.logger.Info("delivery started", "endpoints", len(s.sessions))

	for done := false; !done; {
		select {
		case <-ctx.Done():
			done = true
		case sample, ok := <-samples:
			if !ok {
				samples = nil
				continue
			}
			s.Offer(sample)
		}
	}
	s.wait(&wg)
	return nil
}

// Offer hands sample to every live session and returns how many accepted it.
func (s *Supervisor) Offer(sample *model.Sample) int {
	n := 0
	for _, sess := range s.sessions {
		if sess.Offer(sample) {
			n++
		}
	}
	return n
}

func (s *Supervisor) Snapshot() []Status {
	out := make([]Status, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Status())
	}
	return out
}

func (s *Supervisor) wait(wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	if s.grace <= 0 {
		<-done
		return
	}
	t := time.NewTimer(s.grace)
	defer t.Stop()
	select {
	case <-done:
		s.logger.Info("delivery stopped")
	case <-t.C:
		s.logger.Warn("sessions still closing after grace period", "grace", s.grace)
	}
}
