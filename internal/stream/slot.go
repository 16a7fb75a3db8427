package stream

import (
	"sync"

	"vmonitor-agent/internal/model"
)

// slot is a single-entry mailbox. A newer sample replaces an undelivered older one.
type slot struct {
	mu     sync.Mutex
	sample *model.Sample
	notify chan struct{}
}

func newSlot() *slot {
	return &slot{notify: make(chan struct{}, 1)}
}

// put stores s and reports whether an undelivered sample was replaced.
func (m *slot) put(s *model.Sample) bool {
	m.mu.Lock()
	replaced := m.sample != nil
	m.sample = s
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return replaced
}

func (m *slot) take() *model.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sample
	m.sample = nil
	return s
}

func (m *slot) ready() <-chan struct{} { return m.notify }
