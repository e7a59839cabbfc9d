package process

import (
	"context"
	"errors"
	"time"

	"github.com/projecteru2/core/log"
	psprocess "github.com/shirou/gopsutil/v4/process"

	"github.com/projecteru2/rf4watch/types"
	"github.com/projecteru2/rf4watch/utils"
)

// ErrProcessGone is returned by Inspect when the PID no longer exists.
var ErrProcessGone = errors.New("process gone")

// Candidate is a name-matched process found by enumeration.
type Candidate struct {
	PID       int       `json:"pid"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Lister is the OS boundary of the watcher.
type Lister interface {
	// List returns the processes whose name satisfies match. Processes that
	// cannot be read are skipped.
	List(ctx context.Context, match func(name string) bool) ([]Candidate, error)
	// Inspect builds a full record for pid. Individual metadata fields that
	// cannot be read are left nil.
	Inspect(ctx context.Context, pid int) (*types.ProcessRecord, error)
}

// SystemLister enumerates host processes through gopsutil.
type SystemLister struct{}

// List implements Lister.
func (SystemLister) List(ctx context.Context, match func(string) bool) ([]Candidate, error) {
	procs, err := psprocess.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	logger := log.WithFunc("process.List")
	var out []Candidate
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			// access denied or exited mid-scan
			logger.Debugf(ctx, "skip pid %d: %v", p.Pid, err)
			continue
		}
		if !match(name) {
			continue
		}
		c := Candidate{PID: int(p.Pid), Name: name}
		if ms, err := p.CreateTimeWithContext(ctx); err == nil {
			c.CreatedAt = time.UnixMilli(ms)
		}
		out = append(out, c)
	}
	return out, nil
}

// Inspect implements Lister.
func (SystemLister) Inspect(ctx context.Context, pid int) (*types.ProcessRecord, error) {
	if !utils.IsProcessAlive(pid) {
		return nil, ErrProcessGone
	}
	p, err := psprocess.NewProcessWithContext(ctx, int32(pid)) //nolint:gosec
	if err != nil {
		if errors.Is(err, psprocess.ErrorProcessNotRunning) {
			return nil, ErrProcessGone
		}
		return nil, err
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		if running, _ := p.IsRunningWithContext(ctx); !running {
			return nil, ErrProcessGone
		}
	}
	rec := &types.ProcessRecord{PID: pid, Name: name, Status: types.ProcessUnknown}
	if ms, err := p.CreateTimeWithContext(ctx); err == nil {
		rec.CreatedAt = time.UnixMilli(ms)
	}
	if exe, err := p.ExeWithContext(ctx); err == nil {
		rec.ExePath = exe
	}
	if cwd, err := p.CwdWithContext(ctx); err == nil {
		rec.WorkingDir = cwd
	}
	if st, err := p.StatusWithContext(ctx); err == nil {
		rec.Status = mapStatus(st)
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		rec.MemoryBytes = &mem.RSS
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		rec.CPUPercent = &cpu
	}
	if n, err := p.NumThreadsWithContext(ctx); err == nil {
		rec.ThreadCount = &n
	}
	return rec, nil
}

func mapStatus(states []string) types.ProcessStatus {
	if len(states) == 0 {
		return types.ProcessUnknown
	}
	switch states[0] {
	case psprocess.Running:
		return types.ProcessRunning
	case psprocess.Sleep, psprocess.Idle, psprocess.Wait, psprocess.Lock, psprocess.Blocked:
		return types.ProcessIdle
	case psprocess.Stop, psprocess.Zombie:
		return types.ProcessStopped
	default:
		return types.ProcessUnknown
	}
}
