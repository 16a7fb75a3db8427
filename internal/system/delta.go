package system

import (
	"sync"
	"time"
)

type deltaSample struct {
	value uint64
	at    time.Time
}

type deltaEngine struct {
	mu      sync.Mutex
	samples map[string]deltaSample
}

func newDeltaEngine() *deltaEngine {
	return &deltaEngine{samples: make(map[string]deltaSample)}
}

// Rate stores the current counter and returns its per-second change since the previous
// observation. The first observation and counter resets yield 0.
func (e *deltaEngine) Rate(key string, now time.Time, cur uint64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev, exists := e.samples[key]
	e.samples[key] = deltaSample{value: cur, at: now}
	if !exists {
		return 0
	}
	seconds := now.Sub(prev.at).Seconds()
	if seconds <= 0 || cur < prev.value {
		return 0
	}
	return float64(cur-prev.value) / seconds
}
