package types

import "time"

// ProcessStatus is the coarse scheduling state of a watched process.
type ProcessStatus string

const (
	ProcessRunning ProcessStatus = "running" // on-CPU or runnable
	ProcessIdle    ProcessStatus = "idle"    // sleeping / waiting
	ProcessStopped ProcessStatus = "stopped" // SIGSTOP'd or traced
	ProcessUnknown ProcessStatus = "unknown" // metadata unavailable
)

// ProcessRecord is a point-in-time snapshot of the canonical target process.
// Identity is the PID: a PID change is a lost+found pair, never a mutation.
type ProcessRecord struct {
	PID        int           `json:"pid"`
	Name       string        `json:"name"`
	ExePath    string        `json:"exe_path,omitempty"`
	WorkingDir string        `json:"working_dir,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	Status     ProcessStatus `json:"status"`

	// Best-effort metadata; nil means unavailable (permission or race).
	MemoryBytes *uint64  `json:"memory_bytes,omitempty"`
	CPUPercent  *float64 `json:"cpu_percent,omitempty"`
	ThreadCount *int32   `json:"thread_count,omitempty"`
}

// ProcessState is the snapshot returned by the process watcher.
type ProcessState struct {
	Running  bool           `json:"running"`
	PID      int            `json:"pid,omitempty"`
	Snapshot *ProcessRecord `json:"snapshot,omitempty"`
	Uptime   time.Duration  `json:"uptime"`
}

// IOCounters is cumulative process I/O.
type IOCounters struct {
	ReadCount  uint64 `json:"read_count"`
	WriteCount uint64 `json:"write_count"`
	ReadBytes  uint64 `json:"read_bytes"`
	WriteBytes uint64 `json:"write_bytes"`
}

// PerformanceMetrics is a best-effort resource sample of one process. Nil
// fields could not be read.
type PerformanceMetrics struct {
	PID           int         `json:"pid"`
	CPUPercent    *float64    `json:"cpu_percent,omitempty"`
	MemoryPercent *float32    `json:"memory_percent,omitempty"`
	MemoryRSS     *uint64     `json:"memory_rss,omitempty"`
	MemoryVMS     *uint64     `json:"memory_vms,omitempty"`
	NumThreads    *int32      `json:"num_threads,omitempty"`
	NumFDs        *int32      `json:"num_fds,omitempty"`
	IO            *IOCounters `json:"io_counters,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}

// MemoryUsage is host virtual memory.
type MemoryUsage struct {
	Total       uint64  `json:"total"`
	Available   uint64  `json:"available"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"used_percent"`
}

// DiskUsage is usage of the filesystem holding Path.
type DiskUsage struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total"`
	Free        uint64  `json:"free"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"used_percent"`
}

// NetworkIO is host-wide cumulative network traffic.
type NetworkIO struct {
	BytesSent   uint64 `json:"bytes_sent"`
	BytesRecv   uint64 `json:"bytes_recv"`
	PacketsSent uint64 `json:"packets_sent"`
	PacketsRecv uint64 `json:"packets_recv"`
}

// SystemResources is a best-effort host snapshot. Nil fields could not be read.
type SystemResources struct {
	CPUPercent *float64     `json:"cpu_percent,omitempty"`
	Memory     *MemoryUsage `json:"memory,omitempty"`
	Disk       *DiskUsage   `json:"disk,omitempty"`
	Network    *NetworkIO   `json:"network,omitempty"`
	BootTime   time.Time    `json:"boot_time"`
	Timestamp  time.Time    `json:"timestamp"`
}
