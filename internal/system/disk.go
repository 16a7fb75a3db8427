package system

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
)

type DiskCounters struct {
	ReadBytes  uint64
	WriteBytes uint64
}

// ReadDiskCounters sums IO totals over physical block devices.
func ReadDiskCounters(ctx context.Context) (DiskCounters, error) {
	stats, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return DiskCounters{}, fmt.Errorf("read disk io counters: %w", err)
	}
	var out DiskCounters
	for name, st := range stats {
		if !isBlockDevice(name) || isPartition(name) {
			continue
		}
		out.ReadBytes += st.ReadBytes
		out.WriteBytes += st.WriteBytes
	}
	return out, nil
}

type DiskSpace struct {
	TotalBytes uint64
	UsedBytes  uint64
}

// ReadDiskSpace sums usage over mounted physical filesystems, counting each device once.
func ReadDiskSpace(ctx context.Context) (DiskSpace, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return DiskSpace{}, fmt.Errorf("list partitions: %w", err)
	}
	var out DiskSpace
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		if _, ok := seen[p.Device]; ok {
			continue
		}
		seen[p.Device] = struct{}{}
		usage, usageErr := disk.UsageWithContext(ctx, p.Mountpoint)
		if usageErr != nil {
			continue
		}
		out.TotalBytes += usage.Total
		out.UsedBytes += usage.Used
	}
	return out, nil
}

func isBlockDevice(name string) bool {
	if strings.HasPrefix(name, "loop") || strings.HasPrefix(name, "ram") || strings.HasPrefix(name, "fd") {
		return false
	}
	if strings.HasPrefix(name, "dm-") || strings.HasPrefix(name, "nvme") || strings.HasPrefix(name, "sd") || strings.HasPrefix(name, "vd") || strings.HasPrefix(name, "xvd") || strings.HasPrefix(name, "mmcblk") {
		return true
	}
	return false
}

// isPartition reports names like sda1 or nvme0n1p2 whose IO is already counted on the parent disk.
func isPartition(name string) bool {
	switch {
	case strings.HasPrefix(name, "nvme"), strings.HasPrefix(name, "mmcblk"):
		i := strings.LastIndexByte(name, 'p')
		return i > 0 && i < len(name)-1 && isDigits(name[i+1:]) && strings.ContainsAny(name[:i], "0123456789")
	case strings.HasPrefix(name, "dm-"):
		return false
	default:
		return len(name) > 0 && name[len(name)-1] >= '0' && name[len(name)-1] <= '9'
	}
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
