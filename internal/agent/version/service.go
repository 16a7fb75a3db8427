package version

import (
	"runtime"
	"time"

	"vmonitor-agent/internal/config"
)

func Get(cfg config.Config, agentID string) Info {
	return Info{
		AgentID:         agentID,
		AgentVersion:    cfg.AgentVersion,
		GoVersion:       runtime.Version(),
		OS:              runtime.GOOS,
		Arch:            runtime.GOARCH,
		Format:          cfg.Format,
		ProbeListenAddr: cfg.ProbeListenAddr,
		CheckedAtUnix:   time.Now().UTC().Unix(),
	}
}
