package process

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/projecteru2/rf4watch/types"
)

type meteredLister struct {
	fakeLister
	asked []int
}

func (m *meteredLister) Metrics(_ context.Context, pid int) (*types.PerformanceMetrics, error) {
	m.asked = append(m.asked, pid)
	return &types.PerformanceMetrics{PID: pid, Timestamp: time.Now()}, nil
}

// --- Candidates ---

func TestCandidates_SortedCanonicalFirst(t *testing.T) {
	base := time.Now()
	l := &fakeLister{}
	l.push(
		Candidate{PID: 30, Name: "rf4.exe", CreatedAt: base.Add(time.Minute)},
		Candidate{PID: 20, Name: "RF4.EXE", CreatedAt: base},
		Candidate{PID: 5, Name: "notepad.exe", CreatedAt: base.Add(-time.Hour)},
		Candidate{PID: 10, Name: "rf4.exe", CreatedAt: base},
	)
	w := newWatcher(l, nil, "rf4.exe")
	got, err := w.Candidates(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var pids []int
	for _, c := range got {
		pids = append(pids, c.PID)
	}
	if len(pids) != 3 || pids[0] != 10 || pids[1] != 20 || pids[2] != 30 {
		t.Errorf("expected [10 20 30], got %v", pids)
	}
}

func TestCandidates_EnumerationError(t *testing.T) {
	boom := errors.New("boom")
	w := newWatcher(&fakeLister{listErr: boom}, nil, "rf4.exe")
	if _, err := w.Candidates(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected wrapped enumeration error, got %v", err)
	}
}

// --- Metrics ---

func TestMetrics_Unsupported(t *testing.T) {
	w := newWatcher(&fakeLister{}, nil, "rf4.exe")
	if _, err := w.Metrics(context.Background(), 1); !errors.Is(err, ErrMetricsUnsupported) {
		t.Errorf("expected ErrMetricsUnsupported, got %v", err)
	}
}

func TestMetrics_DefaultsToTrackedProcess(t *testing.T) {
	ctx := context.Background()
	l := &meteredLister{}
	w := newWatcher(l, nil, "rf4.exe")
	if _, err := w.Metrics(ctx, 0); !errors.Is(err, ErrNotTracking) {
		t.Errorf("expected ErrNotTracking, got %v", err)
	}
	l.push(Candidate{PID: 42, Name: "rf4.exe"})
	w.ForceRefresh(ctx)
	m, err := w.Metrics(ctx, 0)
	if err != nil || m.PID != 42 {
		t.Fatalf("expected metrics for 42, got %v (%v)", m, err)
	}
	if _, err := w.Metrics(ctx, 7); err != nil || l.asked[len(l.asked)-1] != 7 {
		t.Errorf("explicit pid not honored: %v %v", l.asked, err)
	}
}

func TestSystemLister_MetricsOfSelf(t *testing.T) {
	m, err := SystemLister{}.Metrics(context.Background(), os.Getpid())
	if err != nil {
		t.Fatal(err)
	}
	if m.MemoryRSS == nil || *m.MemoryRSS == 0 {
		t.Errorf("expected resident memory for the test binary, got %+v", m)
	}
}

func TestReadSystemResources(t *testing.T) {
	res, err := ReadSystemResources(context.Background(), t.TempDir(), 0)
	if res.Memory == nil || res.Memory.Total == 0 {
		t.Errorf("expected host memory, got %+v (%v)", res.Memory, err)
	}
	if res.Disk == nil || res.Disk.Total == 0 {
		t.Errorf("expected disk usage, got %+v (%v)", res.Disk, err)
	}
	if res.Timestamp.IsZero() {
		t.Error("expected timestamp")
	}
}
