package system

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
)

// CPUCounters are aggregate CPU times in seconds since boot.
type CPUCounters struct {
	User    float64
	Nice    float64
	System  float64
	Idle    float64
	IOWait  float64
	IRQ     float64
	SoftIRQ float64
	Steal   float64
	Total   float64
}

func ReadCPUCounters(ctx context.Context) (CPUCounters, error) {
	times, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return CPUCounters{}, fmt.Errorf("read cpu times: %w", err)
	}
	if len(times) == 0 {
		return CPUCounters{}, fmt.Errorf("cpu aggregate times not found")
	}
	t := times[0]
	c := CPUCounters{
		User:    t.User,
		Nice:    t.Nice,
		System:  t.System,
		Idle:    t.Idle,
		IOWait:  t.Iowait,
		IRQ:     t.Irq,
		SoftIRQ: t.Softirq,
		Steal:   t.Steal,
	}
	c.Total = c.User + c.Nice + c.System + c.Idle + c.IOWait + c.IRQ + c.SoftIRQ + c.Steal
	return c, nil
}

// CPUUsage returns the busy percentage between two counter snapshots, clamped to [0, 100].
func CPUUsage(prev, cur CPUCounters) float64 {
	if cur.Total <= prev.Total {
		return 0
	}
	totalDelta := cur.Total - prev.Total
	idleDelta := (cur.Idle + cur.IOWait) - (prev.Idle + prev.IOWait)
	if idleDelta < 0 {
		idleDelta = 0
	}
	return clampPercent(((totalDelta - idleDelta) / totalDelta) * 100)
}

func ReadCPUCores(ctx context.Context) (uint32, error) {
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("count cpus: %w", err)
	}
	if n < 0 {
		n = 0
	}
	return uint32(n), nil
}

// ReadCPUModels lists one model name per physical package, in discovery order.
func ReadCPUModels(ctx context.Context) ([]string, error) {
	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("read cpu info: %w", err)
	}
	seen := make(map[string]struct{}, len(infos))
	models := make([]string, 0, 1)
	for _, info := range infos {
		key := info.PhysicalID + "/" + info.ModelName
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		models = append(models, info.ModelName)
	}
	return models, nil
}

func clampPercent(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}
