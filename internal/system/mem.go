package system

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
)

type MemoryInfo struct {
	TotalBytes     uint64
	UsedBytes      uint64
	AvailableBytes uint64
	SwapTotalBytes uint64
	SwapUsedBytes  uint64
}

func ReadMemoryInfo(ctx context.Context) (MemoryInfo, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryInfo{}, fmt.Errorf("read virtual memory: %w", err)
	}
	if vm.Total == 0 {
		return MemoryInfo{}, fmt.Errorf("memory total missing")
	}
	out := MemoryInfo{TotalBytes: vm.Total, AvailableBytes: vm.Available}
	// used is what applications hold; page cache counts as available
	if vm.Available <= vm.Total {
		out.UsedBytes = vm.Total - vm.Available
	} else {
		out.UsedBytes = vm.Used
	}

	// swap is optional; hosts without it report zeros
	if swap, swapErr := mem.SwapMemoryWithContext(ctx); swapErr == nil {
		out.SwapTotalBytes = swap.Total
		out.SwapUsedBytes = swap.Used
	}
	return out, nil
}
