package stream

import (
	"fmt"
	"log/slog"

	"vmonitor-agent/internal/config"
)

// NewSupervisorFromConfig wires codec, dialer and timeouts from cfg.
func NewSupervisorFromConfig(cfg config.Config, agentID string, hostInfo HostInfoFunc, logger *slog.Logger) (*Supervisor, error) {
	codec, err := NewCodec(cfg.Format)
	if err != nil {
		return nil, err
	}
	tlsCfg, err := cfg.TLSConfig()
	if err != nil {
		return nil, fmt.Errorf("tls config: %w", err)
	}
	opts := SessionOptions{
		Logger:         logger,
		Codec:          codec,
		Dialer:         NewWebSocketDialer(tlsCfg, cfg.ReadLimit),
		AgentID:        agentID,
		HostInfo:       hostInfo,
		ConnectTimeout: cfg.ConnectTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		PingInterval:   cfg.PingInterval,
	}
	return NewSupervisor(logger, cfg.Endpoints, opts, cfg.ShutdownTimeout), nil
}
