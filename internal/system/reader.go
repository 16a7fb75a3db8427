package system

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vmonitor-agent/internal/model"
)

// Reader turns host counters into metric snapshots. It keeps the previous CPU and IO
// counters so consecutive calls yield usage percentages and per-second rates.
type Reader struct {
	logger *slog.Logger
	delta  *deltaEngine
	now    func() time.Time

	mu      sync.Mutex
	prevCPU CPUCounters
	hasCPU  bool
}

func NewReader(logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{logger: logger, delta: newDeltaEngine(), now: time.Now}
}

// Collect reads one metrics snapshot. CPU and memory are required; the remaining groups
// are reported as zero when their read fails.
func (r *Reader) Collect(ctx context.Context) (model.Metrics, error) {
	now := r.now()

	cpuNow, err := ReadCPUCounters(ctx)
	if err != nil {
		return model.Metrics{}, err
	}
	memInfo, err := ReadMemoryInfo(ctx)
	if err != nil {
		return model.Metrics{}, err
	}

	var out model.Metrics
	out.System.CPUUsage = r.cpuUsage(cpuNow)
	out.System.MemoryUsed = memInfo.UsedBytes
	out.System.MemoryTotal = memInfo.TotalBytes
	out.System.SwapUsed = memInfo.SwapUsedBytes
	out.System.SwapTotal = memInfo.SwapTotalBytes

	if cores, coresErr := ReadCPUCores(ctx); coresErr == nil {
		out.System.CPUCores = cores
	} else {
		r.logger.Debug("cpu core count unavailable", "error", coresErr)
	}
	if procs, procErr := ReadProcessCount(ctx); procErr == nil {
		out.System.ProcessCount = procs
	} else {
		r.logger.Debug("process count unavailable", "error", procErr)
	}
	if avg, loadErr := ReadLoadAvg(ctx); loadErr == nil {
		out.System.LoadAvg = model.LoadAvg{One: avg.One, Five: avg.Five, Fifteen: avg.Fifteen}
	} else {
		r.logger.Debug("load average unavailable", "error", loadErr)
	}
	if up, upErr := ReadUptime(ctx); upErr == nil {
		out.Uptime = up
	} else {
		r.logger.Debug("uptime unavailable", "error", upErr)
	}

	if netCounters, netErr := ReadNetCounters(ctx); netErr == nil {
		out.Network.DownloadTraffic = netCounters.RxBytes
		out.Network.UploadTraffic = netCounters.TxBytes
		out.Network.DownloadRate = r.delta.Rate("net.rx", now, netCounters.RxBytes)
		out.Network.UploadRate = r.delta.Rate("net.tx", now, netCounters.TxBytes)
	} else {
		r.logger.Debug("network counters unavailable", "error", netErr)
	}
	if sockets, sockErr := ReadSocketCounts(ctx); sockErr == nil {
		out.Network.TCPCount = sockets.TCP
		out.Network.UDPCount = sockets.UDP
	} else {
		r.logger.Debug("socket counts unavailable", "error", sockErr)
	}

	if space, spaceErr := ReadDiskSpace(ctx); spaceErr == nil {
		out.Disk.SpaceUsed = space.UsedBytes
		out.Disk.SpaceTotal = space.TotalBytes
	} else {
		r.logger.Debug("disk space unavailable", "error", spaceErr)
	}
	if io, ioErr := ReadDiskCounters(ctx); ioErr == nil {
		out.Disk.Read = io.ReadBytes
		out.Disk.Write = io.WriteBytes
		out.Disk.ReadRate = r.delta.Rate("disk.read", now, io.ReadBytes)
		out.Disk.WriteRate = r.delta.Rate("disk.write", now, io.WriteBytes)
	} else {
		r.logger.Debug("disk io counters unavailable", "error", ioErr)
	}

	return out, nil
}

// cpuUsage falls back to the since-boot average on the first call.
func (r *Reader) cpuUsage(cur CPUCounters) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.prevCPU
	if !r.hasCPU {
		prev = CPUCounters{}
	}
	r.prevCPU = cur
	r.hasCPU = true
	return CPUUsage(prev, cur)
}

// HostInfo reads the static host description reported to collectors on request.
func (r *Reader) HostInfo(ctx context.Context, version string) (model.HostInfo, error) {
	static, err := ReadHostStatic(ctx)
	if err != nil {
		return model.HostInfo{}, err
	}
	info := model.HostInfo{
		OS:              static.OS,
		OSVersion:       static.OSVersion,
		Arch:            static.Arch,
		Platform:        static.Platform,
		PlatformVersion: static.PlatformVersion,
		Kernel:          static.Kernel,
		Hostname:        static.Hostname,
		Uptime:          static.Uptime,
		Version:         version,
	}
	if models, cpuErr := ReadCPUModels(ctx); cpuErr == nil {
		info.CPU = models
	} else {
		r.logger.Warn("cpu model read failed", "error", cpuErr)
	}
	if memInfo, memErr := ReadMemoryInfo(ctx); memErr == nil {
		info.Memory = memInfo.TotalBytes
	} else {
		r.logger.Warn("memory read failed", "error", memErr)
	}
	if space, spaceErr := ReadDiskSpace(ctx); spaceErr == nil {
		info.Disk = space.TotalBytes
	} else {
		r.logger.Warn("disk space read failed", "error", spaceErr)
	}
	return info, nil
}
