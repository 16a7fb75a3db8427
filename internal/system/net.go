package system

import (
	"context"
	"fmt"

	psnet "github.com/shirou/gopsutil/v3/net"
)

type NetCounters struct {
	RxBytes uint64
	TxBytes uint64
}

// ReadNetCounters sums byte totals over every interface except loopback.
func ReadNetCounters(ctx context.Context) (NetCounters, error) {
	stats, err := psnet.IOCountersWithContext(ctx, true)
	if err != nil {
		return NetCounters{}, fmt.Errorf("read net io counters: %w", err)
	}
	var out NetCounters
	for _, st := range stats {
		if st.Name == "lo" || st.Name == "" {
			continue
		}
		out.RxBytes += st.BytesRecv
		out.TxBytes += st.BytesSent
	}
	return out, nil
}

type SocketCounts struct {
	TCP uint32
	UDP uint32
}

func ReadSocketCounts(ctx context.Context) (SocketCounts, error) {
	tcp, err := psnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return SocketCounts{}, fmt.Errorf("list tcp sockets: %w", err)
	}
	udp, err := psnet.ConnectionsWithContext(ctx, "udp")
	if err != nil {
		return SocketCounts{}, fmt.Errorf("list udp sockets: %w", err)
	}
	return SocketCounts{TCP: uint32(len(tcp)), UDP: uint32(len(udp))}, nil
}
