package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vmonitor-agent/internal/model"
)

type fakeSource struct {
	mu    sync.Mutex
	calls int
	fail  map[int]bool
	block bool
}

func (f *fakeSource) Collect(ctx context.Context) (model.Metrics, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	fail := f.fail[n]
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return model.Metrics{}, ctx.Err()
	}
	if fail {
		return model.Metrics{}, errors.New("host read failed")
	}
	return model.Metrics{Uptime: uint64(n)}, nil
}

func TestTickSequenceSkipsFailures(t *testing.T) {
	src := &fakeSource{fail: map[int]bool{2: true}}
	s := NewSampler(nil, src, time.Second, 0)
	ctx := context.Background()

	first, err := s.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), first.Sequence)
	require.Equal(t, time.UTC, first.Timestamp.Location())
	require.Zero(t, first.Timestamp.Nanosecond()%int(time.Millisecond))

	_, err = s.Tick(ctx)
	var sampErr *SamplingError
	require.ErrorAs(t, err, &sampErr)

	second, err := s.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), second.Sequence)
	require.Equal(t, uint64(3), second.Metrics.Uptime)
	require.Same(t, second, s.Last())
}

func TestTickReadTimeout(t *testing.T) {
	s := NewSampler(nil, &fakeSource{block: true}, time.Second, 20*time.Millisecond)
	start := time.Now()
	_, err := s.Tick(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)
	require.Nil(t, s.Last())
}

func TestRunEmitsImmediatelyAndContinuesAcrossRestarts(t *testing.T) {
	s := NewSampler(nil, &fakeSource{}, 10*time.Millisecond, 0)
	out := make(chan *model.Sample, 16)

	runFor := func(n int) []uint64 {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.Run(ctx, out) }()

		var seqs []uint64
		for len(seqs) < n {
			select {
			case sample := <-out:
				seqs = append(seqs, sample.Sequence)
			case <-time.After(2 * time.Second):
				t.Fatal("sampler produced nothing")
			}
		}
		cancel()
		require.NoError(t, <-done)
		// drain anything produced between the last read and cancel
		for {
			select {
			case sample := <-out:
				seqs = append(seqs, sample.Sequence)
			default:
				return seqs
			}
		}
	}

	first := runFor(3)
	second := runFor(2)
	all := append(first, second...)
	for i, seq := range all {
		require.Equal(t, uint64(i+1), seq)
	}
}

func TestRunFirstSampleBeforeFirstTick(t *testing.T) {
	s := NewSampler(nil, &fakeSource{}, time.Hour, 0)
	out := make(chan *model.Sample, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx, out) }()

	select {
	case sample := <-out:
		require.Equal(t, uint64(1), sample.Sequence)
	case <-time.After(2 * time.Second):
		t.Fatal("no immediate sample")
	}
}

func TestRunRestartKeepsSampleCutOffByCancel(t *testing.T) {
	src := &fakeSource{}
	s := NewSampler(nil, src, time.Hour, 0)
	out := make(chan *model.Sample)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, out) }()
	require.Eventually(t, func() bool { return s.Last() != nil }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx, out) }()

	for want := uint64(1); want <= 2; want++ {
		select {
		case sample := <-out:
			require.Equal(t, want, sample.Sequence)
		case <-time.After(2 * time.Second):
			t.Fatalf("no sample %d after restart", want)
		}
	}
}
