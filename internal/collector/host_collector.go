package collector

import (
	"context"

	"vmonitor-agent/internal/model"
	"vmonitor-agent/internal/system"
)

// Source produces one metrics snapshot per call.
type Source interface {
	Collect(ctx context.Context) (model.Metrics, error)
}

// HostCollector samples the local machine through the system reader.
type HostCollector struct {
	reader  *system.Reader
	version string
}

func NewHostCollector(reader *system.Reader, version string) *HostCollector {
	return &HostCollector{reader: reader, version: version}
}

func (c *HostCollector) Collect(ctx context.Context) (model.Metrics, error) {
	return c.reader.Collect(ctx)
}

// HostInfo reads the static host description stamped with the agent version.
func (c *HostCollector) HostInfo(ctx context.Context) (model.HostInfo, error) {
	return c.reader.HostInfo(ctx, c.version)
}
