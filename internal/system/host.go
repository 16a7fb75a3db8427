package system

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/process"
)

type LoadAvg struct {
	One     float64
	Five    float64
	Fifteen float64
}

func ReadLoadAvg(ctx context.Context) (LoadAvg, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return LoadAvg{}, fmt.Errorf("read load average: %w", err)
	}
	return LoadAvg{One: avg.Load1, Five: avg.Load5, Fifteen: avg.Load15}, nil
}

func ReadUptime(ctx context.Context) (uint64, error) {
	up, err := host.UptimeWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("read uptime: %w", err)
	}
	return up, nil
}

func ReadProcessCount(ctx context.Context) (uint32, error) {
	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("list processes: %w", err)
	}
	return uint32(len(pids)), nil
}

type HostStatic struct {
	OS              string
	OSVersion       string
	Arch            string
	Platform        string
	PlatformVersion string
	Kernel          string
	Hostname        string
	Uptime          uint64
}

func ReadHostStatic(ctx context.Context) (HostStatic, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return HostStatic{}, fmt.Errorf("read host info: %w", err)
	}
	arch := info.KernelArch
	if arch == "" {
		arch = runtime.GOARCH
	}
	return HostStatic{
		OS:              info.OS,
		OSVersion:       firstNonEmpty(info.PlatformVersion, info.KernelVersion),
		Arch:            arch,
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		Kernel:          info.KernelVersion,
		Hostname:        info.Hostname,
		Uptime:          info.Uptime,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
