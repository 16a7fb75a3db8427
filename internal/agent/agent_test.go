package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"vmonitor-agent/internal/collector"
	"vmonitor-agent/internal/config"
	"vmonitor-agent/internal/model"
	"vmonitor-agent/internal/stream"
)

type staticSource struct{}

func (staticSource) Collect(context.Context) (model.Metrics, error) {
	return model.Metrics{Uptime: 42, System: model.SystemInfo{CPUCores: 4}}, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	states []string
}

func (n *recordingNotifier) Notify(state string) {
	n.mu.Lock()
	n.states = append(n.states, state)
	n.mu.Unlock()
}

func (n *recordingNotifier) WatchdogInterval() time.Duration { return 0 }

func (n *recordingNotifier) seen() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.states...)
}

type sampleCollector struct {
	secret config.Secret
	mu     sync.Mutex
	seqs   []uint64
	agents map[string]struct{}
}

func (c *sampleCollector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("secret") != c.secret.Reveal() {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()
	for {
		typ, b, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		sample, id, err := stream.DecodeSample(stream.CodecForMessageType(typ), b, c.secret)
		if err != nil {
			continue
		}
		c.mu.Lock()
		c.seqs = append(c.seqs, sample.Sequence)
		c.agents[id.AgentID] = struct{}{}
		c.mu.Unlock()
	}
}

func (c *sampleCollector) received() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.seqs...)
}

func testConfig(server string) config.Config {
	policy := config.ConnectionPolicy{BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, MaxRetries: -1}
	return config.Config{
		AgentVersion:    "9.9.9",
		Interval:        20 * time.Millisecond,
		Format:          config.FormatJSON,
		Connection:      policy,
		Endpoints:       []config.Endpoint{{Name: "main", Server: server, Secret: "agent-secret", Enabled: true, Connection: policy}},
		HealthInterval:  time.Hour,
		ShutdownTimeout: 2 * time.Second,
		ConnectTimeout:  time.Second,
		WriteTimeout:    time.Second,
		PingInterval:    time.Hour,
		LogLevel:        "info",
	}
}

func newTestAgent(t *testing.T, cfg config.Config) (*Agent, *recordingNotifier) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(cfg, logger)
	require.NoError(t, err)

	a.sampler = collector.NewSampler(logger, staticSource{}, cfg.Interval, cfg.Interval)
	a.health = NewHealthStatus(a.id, cfg.AgentVersion, a.supervisor.Snapshot, a.sampler.Last)
	n := &recordingNotifier{}
	a.notifier = n
	return a, n
}

func TestAgentRunDeliversSamples(t *testing.T) {
	c := &sampleCollector{secret: "agent-secret", agents: map[string]struct{}{}}
	srv := httptest.NewServer(c)
	t.Cleanup(srv.Close)

	a, n := newTestAgent(t, testConfig("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws"))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return len(c.received()) >= 3 }, 5*time.Second, 5*time.Millisecond)
	got := c.received()
	for i := 1; i < len(got); i++ {
		require.Less(t, got[i-1], got[i])
	}
	c.mu.Lock()
	require.Contains(t, c.agents, a.ID())
	c.mu.Unlock()

	snap := a.health.Snapshot()
	require.True(t, snap.Healthy())
	require.Equal(t, 1, snap.Connected)
	require.Positive(t, snap.LastSequence)

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop")
	}
	require.Contains(t, n.seen(), notifyReady)
	require.False(t, a.health.Snapshot().Ready)
}

func TestProbeRouter(t *testing.T) {
	a, _ := newTestAgent(t, testConfig("ws://127.0.0.1:1/ws"))
	srv := httptest.NewServer(a.probeRouter())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	a.health.SetReady(true)
	resp, err = http.Get(srv.URL + "/healthz/")
	require.NoError(t, err)
	var snap struct {
		AgentID  string `json:"agentId"`
		Ready    bool   `json:"ready"`
		Sessions []struct {
			Endpoint string `json:"endpoint"`
			State    string `json:"state"`
		} `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, a.ID(), snap.AgentID)
	require.True(t, snap.Ready)
	require.Len(t, snap.Sessions, 1)
	require.Equal(t, "main", snap.Sessions[0].Endpoint)
	require.Equal(t, "disconnected", snap.Sessions[0].State)

	resp, err = http.Get(srv.URL + "/version")
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	resp.Body.Close()
	require.Equal(t, "9.9.9", info["agent_version"])
	require.Equal(t, a.ID(), info["agent_id"])

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Contains(t, string(body), "vmonitor_sampler_last_sequence")
	require.NotContains(t, string(body), "agent-secret")
}

func TestHealthSnapshot(t *testing.T) {
	sessions := []stream.Status{
		{Endpoint: "a", State: stream.StateConnected},
		{Endpoint: "b", State: stream.StateFailed},
	}
	var last *model.Sample
	h := NewHealthStatus("id", "1.0.0", func() []stream.Status { return sessions }, func() *model.Sample { return last })

	snap := h.Snapshot()
	require.False(t, snap.Healthy())
	require.Zero(t, snap.LastSequence)

	h.SetReady(true)
	last = &model.Sample{Sequence: 12, Timestamp: time.UnixMilli(1000).UTC()}
	snap = h.Snapshot()
	require.True(t, snap.Healthy())
	require.Equal(t, 1, snap.Connected)
	require.Equal(t, 1, snap.Failed)
	require.Equal(t, uint64(12), snap.LastSequence)

	sessions[0].State = stream.StateFailed
	require.False(t, h.Snapshot().Healthy())
}

func TestBuildLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := buildLogger(config.Config{LogJSON: true, LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "endpoint", config.Endpoint{Name: "e", Server: "wss://h/ws?secret=zzz", Secret: "zzz"})

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.NotContains(t, out, "zzz")

	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &line))
	require.Equal(t, "shown", line["msg"])
	require.Equal(t, "WARN", line["level"])

	buf.Reset()
	buildLogger(config.Config{LogLevel: "debug"}, &buf).Debug("plain")
	require.Contains(t, buf.String(), "msg=plain")
}
