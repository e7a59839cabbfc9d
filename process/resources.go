package process

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"
	psprocess "github.com/shirou/gopsutil/v4/process"

	"github.com/projecteru2/rf4watch/types"
)

// ErrMetricsUnsupported is returned when the Lister cannot sample metrics.
var ErrMetricsUnsupported = errors.New("process metrics unsupported")

// MetricsSource is an optional Lister capability.
type MetricsSource interface {
	Metrics(ctx context.Context, pid int) (*types.PerformanceMetrics, error)
}

// Metrics implements MetricsSource. Fields that cannot be read stay nil.
func (SystemLister) Metrics(ctx context.Context, pid int) (*types.PerformanceMetrics, error) {
	p, err := psprocess.NewProcessWithContext(ctx, int32(pid)) //nolint:gosec
	if err != nil {
		if errors.Is(err, psprocess.ErrorProcessNotRunning) {
			return nil, ErrProcessGone
		}
		return nil, err
	}
	m := &types.PerformanceMetrics{PID: pid, Timestamp: time.Now()}
	if v, err := p.CPUPercentWithContext(ctx); err == nil {
		m.CPUPercent = &v
	}
	if v, err := p.MemoryPercentWithContext(ctx); err == nil {
		m.MemoryPercent = &v
	}
	if mi, err := p.MemoryInfoWithContext(ctx); err == nil && mi != nil {
		m.MemoryRSS, m.MemoryVMS = &mi.RSS, &mi.VMS
	}
	if v, err := p.NumThreadsWithContext(ctx); err == nil {
		m.NumThreads = &v
	}
	if v, err := p.NumFDsWithContext(ctx); err == nil {
		m.NumFDs = &v
	}
	if io, err := p.IOCountersWithContext(ctx); err == nil && io != nil {
		m.IO = &types.IOCounters{ReadCount: io.ReadCount, WriteCount: io.WriteCount, ReadBytes: io.ReadBytes, WriteBytes: io.WriteBytes}
	}
	if running, _ := p.IsRunningWithContext(ctx); !running {
		return nil, ErrProcessGone
	}
	return m, nil
}

// ReadSystemResources samples host CPU over window, memory, the filesystem
// holding diskPath and network totals. Every part is attempted; the joined
// error lists the parts that failed.
func ReadSystemResources(ctx context.Context, diskPath string, window time.Duration) (types.SystemResources, error) {
	res := types.SystemResources{Timestamp: time.Now()}
	var errs []error
	if pct, err := cpu.PercentWithContext(ctx, window, false); err != nil {
		errs = append(errs, fmt.Errorf("cpu: %w", err))
	} else if len(pct) > 0 {
		res.CPUPercent = &pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("memory: %w", err))
	} else {
		res.Memory = &types.MemoryUsage{Total: vm.Total, Available: vm.Available, Used: vm.Used, UsedPercent: vm.UsedPercent}
	}
	if du, err := disk.UsageWithContext(ctx, diskPath); err != nil {
		errs = append(errs, fmt.Errorf("disk %s: %w", diskPath, err))
	} else {
		res.Disk = &types.DiskUsage{Path: du.Path, Total: du.Total, Free: du.Free, Used: du.Used, UsedPercent: du.UsedPercent}
	}
	if counters, err := psnet.IOCountersWithContext(ctx, false); err != nil {
		errs = append(errs, fmt.Errorf("network: %w", err))
	} else if len(counters) > 0 {
		c := counters[0]
		res.Network = &types.NetworkIO{BytesSent: c.BytesSent, BytesRecv: c.BytesRecv, PacketsSent: c.PacketsSent, PacketsRecv: c.PacketsRecv}
	}
	if bt, err := host.BootTimeWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("boot time: %w", err))
	} else {
		res.BootTime = time.Unix(int64(bt), 0) //nolint:gosec
	}
	return res, errors.Join(errs...)
}
