package process

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/projecteru2/rf4watch/config"
	"github.com/projecteru2/rf4watch/eventbus"
	"github.com/projecteru2/rf4watch/types"
	"github.com/projecteru2/rf4watch/utils"
)

// fakeLister serves one scripted scan per List call; the last scan repeats.
type fakeLister struct {
	mu      sync.Mutex
	scans   [][]Candidate
	listErr error
	gone    map[int]bool
	inspErr error
	block   chan struct{}
}

func (f *fakeLister) List(ctx context.Context, match func(string) bool) ([]Candidate, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.scans) == 0 {
		return nil, nil
	}
	scan := f.scans[0]
	if len(f.scans) > 1 {
		f.scans = f.scans[1:]
	}
	var out []Candidate
	for _, c := range scan {
		if match(c.Name) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeLister) Inspect(_ context.Context, pid int) (*types.ProcessRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone[pid] {
		return nil, ErrProcessGone
	}
	if f.inspErr != nil {
		return nil, f.inspErr
	}
	return &types.ProcessRecord{PID: pid, Status: types.ProcessRunning}, nil
}

func (f *fakeLister) push(scan ...Candidate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans = append(f.scans, scan)
}

func newWatcher(l Lister, bus *eventbus.Bus, targets ...string) *Watcher {
	return New(config.ProcessConfig{PollIntervalMS: 500, TargetProcessNames: targets}, l, bus)
}

func record(w *Watcher) *[]string {
	var mu sync.Mutex
	var got []string
	w.Subscribe(func(_ context.Context, ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Kind {
		case KindFound:
			got = append(got, fmt.Sprintf("found(%d,%s)", ev.PID, ev.Name))
		case KindLost:
			got = append(got, fmt.Sprintf("lost(%d)", ev.PID))
		}
		return nil
	})
	return &got
}

// --- Lifecycle ---

func TestScenarioFoundThenLost(t *testing.T) {
	l := &fakeLister{scans: [][]Candidate{{{PID: 100, Name: "Game.EXE"}, {PID: 7, Name: "bash"}}, {}}}
	w := newWatcher(l, nil, "game.exe")
	got := record(w)
	ctx := context.Background()

	w.ForceRefresh(ctx)
	st := w.Status()
	if !st.Running || st.PID != 100 || st.Snapshot.Name != "Game.EXE" {
		t.Fatalf("unexpected status after found: %+v", st)
	}
	w.ForceRefresh(ctx)
	if w.Status().Running {
		t.Error("expected not running after lost")
	}
	if fmt.Sprint(*got) != "[found(100,Game.EXE) lost(100)]" {
		t.Errorf("unexpected events %v", *got)
	}
}

func TestPIDChangeEmitsLostBeforeFound(t *testing.T) {
	for _, pair := range [][2]int{{1, 2}, {500, 3}, {42, 4242}} {
		a, b := pair[0], pair[1]
		l := &fakeLister{scans: [][]Candidate{
			{{PID: a, Name: "rf4.exe"}},
			{{PID: b, Name: "RF4.exe"}},
		}}
		w := newWatcher(l, nil, "rf4.exe")
		got := record(w)
		w.ForceRefresh(context.Background())
		w.ForceRefresh(context.Background())
		want := fmt.Sprintf("[found(%d,rf4.exe) lost(%d) found(%d,RF4.exe)]", a, a, b)
		if fmt.Sprint(*got) != want {
			t.Errorf("expected %s, got %v", want, *got)
		}
	}
}

func TestCanonical_StableAcrossTicks(t *testing.T) {
	now := time.Now()
	l := &fakeLister{scans: [][]Candidate{
		{{PID: 30, Name: "rf4.exe", CreatedAt: now}, {PID: 20, Name: "rf4.exe", CreatedAt: now.Add(time.Second)}},
		// an older instance appears; the tracked one still matches
		{{PID: 30, Name: "rf4.exe", CreatedAt: now}, {PID: 10, Name: "rf4.exe", CreatedAt: now.Add(-time.Hour)}},
	}}
	w := newWatcher(l, nil, "rf4")
	got := record(w)
	w.ForceRefresh(context.Background())
	w.ForceRefresh(context.Background())
	if w.Status().PID != 30 || len(*got) != 1 {
		t.Errorf("expected to stay on pid 30 without flapping, events %v", *got)
	}
}

func TestPickCanonical_TieBreak(t *testing.T) {
	ts := time.Unix(1000, 0)
	c, ok := pickCanonical([]Candidate{
		{PID: 9, CreatedAt: ts},
		{PID: 3, CreatedAt: ts},
		{PID: 1, CreatedAt: ts.Add(time.Minute)},
	}, 0)
	if !ok || c.PID != 3 {
		t.Errorf("expected pid 3, got %+v", c)
	}
	if _, ok := pickCanonical(nil, 5); ok {
		t.Error("expected no pick from empty candidates")
	}
}

func TestProcessGoneDuringInspect(t *testing.T) {
	l := &fakeLister{scans: [][]Candidate{{{PID: 5, Name: "rf4.exe"}}}}
	w := newWatcher(l, nil, "rf4.exe")
	got := record(w)
	w.ForceRefresh(context.Background())

	l.mu.Lock()
	l.gone = map[int]bool{5: true}
	l.mu.Unlock()
	w.ForceRefresh(context.Background())

	if w.Status().Running {
		t.Error("expected vanished process treated as lost")
	}
	if fmt.Sprint(*got) != "[found(5,rf4.exe) lost(5)]" {
		t.Errorf("unexpected events %v", *got)
	}
}

func TestInspectFailureDegradesMetadata(t *testing.T) {
	l := &fakeLister{scans: [][]Candidate{{{PID: 5, Name: "rf4.exe"}}}, inspErr: errors.New("access denied")}
	w := newWatcher(l, nil, "rf4.exe")
	w.ForceRefresh(context.Background())
	st := w.Status()
	if !st.Running || st.Snapshot.Status != types.ProcessUnknown || st.Snapshot.MemoryBytes != nil {
		t.Errorf("expected degraded record, got %+v", st.Snapshot)
	}
}

func TestEnumerationFailureKeepsState(t *testing.T) {
	l := &fakeLister{scans: [][]Candidate{{{PID: 5, Name: "rf4.exe"}}}}
	w := newWatcher(l, nil, "rf4.exe")
	got := record(w)
	w.ForceRefresh(context.Background())
	l.mu.Lock()
	l.listErr = errors.New("procfs unavailable")
	l.mu.Unlock()
	w.ForceRefresh(context.Background())
	if w.Status().PID != 5 || len(*got) != 1 {
		t.Errorf("expected state retained, status %+v events %v", w.Status(), *got)
	}
}

func TestCallbackFailureDoesNotStopOthers(t *testing.T) {
	l := &fakeLister{scans: [][]Candidate{{{PID: 1, Name: "rf4.exe"}}}}
	w := newWatcher(l, nil, "rf4.exe")
	w.Subscribe(func(context.Context, Event) error { panic("ui crashed") })
	got := record(w)
	w.ForceRefresh(context.Background())
	if len(*got) != 1 {
		t.Errorf("expected second callback to see found, got %v", *got)
	}
}

func TestUnsubscribe(t *testing.T) {
	w := newWatcher(&fakeLister{}, nil, "x")
	id := w.Subscribe(func(context.Context, Event) error { return nil })
	if !w.Unsubscribe(id) || w.Unsubscribe(id) {
		t.Error("unexpected Unsubscribe result")
	}
}

// --- Bus & polling ---

func TestPublishesToBus(t *testing.T) {
	bus := eventbus.New(0)
	l := &fakeLister{scans: [][]Candidate{{{PID: 1, Name: "rf4.exe"}}, {}}}
	w := newWatcher(l, bus, "rf4.exe")
	w.ForceRefresh(context.Background())
	w.ForceRefresh(context.Background())
	var names []string
	for _, ev := range bus.History("", 0) {
		names = append(names, ev.Name)
	}
	want := []string{EventFound, EventStatusChanged, EventLost}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, names)
	}
}

func TestStopDiscardsInflightTick(t *testing.T) {
	l := &fakeLister{scans: [][]Candidate{{{PID: 9, Name: "rf4.exe"}}}, block: make(chan struct{})}
	w := newWatcher(l, nil, "rf4.exe")
	got := record(w)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	w.Stop()
	if w.Status().Running || len(*got) != 0 {
		t.Errorf("tick applied after stop: status %+v events %v", w.Status(), *got)
	}
	if w.Running() {
		t.Error("expected watcher stopped")
	}
}

func TestStartPollsUntilFound(t *testing.T) {
	l := &fakeLister{scans: [][]Candidate{{}, {{PID: 3, Name: "fishing4.exe"}}}}
	w := newWatcher(l, nil, "fishing4.exe")
	w.SetPollInterval(time.Millisecond) // clamped to 500ms
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	err := utils.WaitFor(context.Background(), 3*time.Second, 10*time.Millisecond, func() (bool, error) {
		return w.Status().Running, nil
	})
	if err != nil {
		t.Fatalf("process never found: %v", err)
	}
}
