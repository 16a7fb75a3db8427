package agent

import (
	"sync/atomic"
	"time"

	"vmonitor-agent/internal/model"
	"vmonitor-agent/internal/stream"
)

type HealthStatus struct {
	agentID    string
	version    string
	startedAt  time.Time
	sessions   func() []stream.Status
	lastSample func() *model.Sample
	ready      atomic.Bool
}

type HealthSnapshot struct {
	AgentID      string          `json:"agentId"`
	Version      string          `json:"version"`
	Ready        bool            `json:"ready"`
	StartedAt    time.Time       `json:"startedAt"`
	LastSequence uint64          `json:"lastSequence"`
	LastSampleAt time.Time       `json:"lastSampleAt,omitzero"`
	Connected    int             `json:"connected"`
	Failed       int             `json:"failed"`
	Sessions     []stream.Status `json:"sessions"`
}

func NewHealthStatus(agentID, version string, sessions func() []stream.Status, lastSample func() *model.Sample) *HealthStatus {
	return &HealthStatus{
		agentID:    agentID,
		version:    version,
		startedAt:  time.Now().UTC(),
		sessions:   sessions,
		lastSample: lastSample,
	}
}

func (h *HealthStatus) SetReady(ok bool) {
	h.ready.Store(ok)
}

func (h *HealthStatus) Snapshot() HealthSnapshot {
	out := HealthSnapshot{
		AgentID:   h.agentID,
		Version:   h.version,
		Ready:     h.ready.Load(),
		StartedAt: h.startedAt,
		Sessions:  h.sessions(),
	}
	if s := h.lastSample(); s != nil {
		out.LastSequence = s.Sequence
		out.LastSampleAt = s.Timestamp
	}
	for _, st := range out.Sessions {
		switch st.State {
		case stream.StateConnected:
			out.Connected++
		case stream.StateFailed:
			out.Failed++
		}
	}
	return out
}

// Healthy is false before startup completes and once every endpoint has failed.
func (s HealthSnapshot) Healthy() bool {
	return s.Ready && s.Failed < len(s.Sessions)
}
