package collector

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"vmonitor-agent/internal/model"
)

// Sampler produces one Sample per interval. The sequence counter belongs to the sampler,
// so a restarted Run continues where the previous one stopped.
type Sampler struct {
	logger      *slog.Logger
	source      Source
	interval    time.Duration
	readTimeout time.Duration
	now         func() time.Time

	sequence atomic.Uint64
	last     atomic.Pointer[model.Sample]
	// unsent holds a sample whose hand-off was cut short by cancellation.
	unsent atomic.Pointer[model.Sample]
}

func NewSampler(logger *slog.Logger, source Source, interval, readTimeout time.Duration) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}
	if readTimeout <= 0 {
		readTimeout = interval
	}
	return &Sampler{
		logger:      logger,
		source:      source,
		interval:    interval,
		readTimeout: readTimeout,
		now:         time.Now,
	}
}

// Run samples immediately, then once per tick, sending each sample to out. It returns nil
// when ctx is cancelled. A slow consumer delays the next tick rather than dropping samples.
// A sample produced but not handed off before cancellation is sent first by the next Run.
func (s *Sampler) Run(ctx context.Context, out chan<- *model.Sample) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if pending := s.unsent.Swap(nil); pending != nil {
		if !s.send(ctx, out, pending) {
			return nil
		}
	}
	if !s.emit(ctx, out) {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !s.emit(ctx, out) {
				return nil
			}
		}
	}
}

func (s *Sampler) emit(ctx context.Context, out chan<- *model.Sample) bool {
	sample, err := s.Tick(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.logger.Warn("sample skipped", "error", err)
		return true
	}
	return s.send(ctx, out, sample)
}

func (s *Sampler) send(ctx context.Context, out chan<- *model.Sample, sample *model.Sample) bool {
	if ctx.Err() != nil {
		s.unsent.Store(sample)
		return false
	}
	select {
	case out <- sample:
		return true
	case <-ctx.Done():
		s.unsent.Store(sample)
		return false
	}
}

// Tick reads the host once and returns the next sample. On failure it returns a
// *SamplingError and leaves the sequence untouched.
func (s *Sampler) Tick(ctx context.Context) (*model.Sample, error) {
	readCtx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	started := time.Now()
	metrics, err := s.source.Collect(readCtx)
	samplerReadDuration.Observe(time.Since(started).Seconds())
	if err == nil && readCtx.Err() != nil {
		err = readCtx.Err()
	}
	if err != nil {
		samplerTicksTotal.WithLabelValues("error").Inc()
		return nil, &SamplingError{Err: err}
	}

	seq := s.sequence.Add(1)
	sample := &model.Sample{
		Sequence:  seq,
		Timestamp: s.now().UTC().Truncate(time.Millisecond),
		Metrics:   metrics,
	}
	s.last.Store(sample)
	samplerTicksTotal.WithLabelValues("ok").Inc()
	samplerSequence.Set(float64(seq))
	return sample, nil
}

// Last returns the most recent sample, or nil before the first successful tick.
func (s *Sampler) Last() *model.Sample {
	return s.last.Load()
}
