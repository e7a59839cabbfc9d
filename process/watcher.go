// Package process tracks the canonical instance of the game process and
// reports its lifecycle as found, lost and status_changed events.
package process

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/rf4watch/config"
	"github.com/projecteru2/rf4watch/eventbus"
	"github.com/projecteru2/rf4watch/types"
	"github.com/projecteru2/rf4watch/utils"
)

// Event names published on the bus.
const (
	EventFound         = "process.found"
	EventLost          = "process.lost"
	EventStatusChanged = "process.status_changed"
)

// ErrNotTracking is returned by Metrics when no process is tracked.
var ErrNotTracking = errors.New("no game process tracked")

// Kind is the lifecycle event kind.
type Kind string

const (
	KindFound         Kind = "found"
	KindLost          Kind = "lost"
	KindStatusChanged Kind = "status_changed"
)

// Event describes one lifecycle transition.
type Event struct {
	Kind   Kind                 `json:"kind"`
	PID    int                  `json:"pid"`
	Name   string               `json:"name,omitempty"`
	Status types.ProcessStatus  `json:"status,omitempty"`
	Record *types.ProcessRecord `json:"record,omitempty"`
}

// Callback receives watcher events in emission order.
type Callback func(ctx context.Context, ev Event) error

// Watcher polls the process table. Ticks never overlap; Stop discards the
// results of a tick still in flight.
type Watcher struct {
	lister  Lister
	bus     *eventbus.Bus
	targets []string
	poller  *utils.Poller

	tickMu sync.Mutex // serializes ticks and ForceRefresh

	mu     sync.Mutex
	record *types.ProcessRecord
	cbs    map[uint64]Callback
	cbSeq  uint64
}

// New creates a stopped Watcher. bus may be nil.
func New(conf config.ProcessConfig, lister Lister, bus *eventbus.Bus) *Watcher {
	targets := make([]string, 0, len(conf.TargetProcessNames))
	for _, t := range conf.TargetProcessNames {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			targets = append(targets, t)
		}
	}
	return &Watcher{
		lister:  lister,
		bus:     bus,
		targets: targets,
		poller:  utils.NewPoller(conf.PollInterval()),
		cbs:     map[uint64]Callback{},
	}
}

// Start begins polling; the first scan runs immediately.
func (w *Watcher) Start(ctx context.Context) error {
	log.WithFunc("process.Start").Infof(ctx, "watching %v every %s", w.targets, w.poller.Interval())
	return w.poller.Start(ctx, w.tick)
}

// Stop halts polling and waits for an in-flight scan to be discarded.
func (w *Watcher) Stop() {
	w.poller.Stop()
}

// Shutdown implements locator.Shutdowner.
func (w *Watcher) Shutdown(context.Context) error {
	w.Stop()
	return nil
}

// Running reports whether the watcher is polling.
func (w *Watcher) Running() bool { return w.poller.Running() }

// SetPollInterval changes the scan period, clamped to the 500ms floor.
func (w *Watcher) SetPollInterval(d time.Duration) {
	w.poller.SetInterval(max(d, config.MinProcessPollMS*time.Millisecond))
}

// ForceRefresh runs one scan synchronously.
func (w *Watcher) ForceRefresh(ctx context.Context) {
	w.tick(ctx)
}

// Status returns a copy of the current state.
func (w *Watcher) Status() types.ProcessState {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.record == nil {
		return types.ProcessState{}
	}
	rec := *w.record
	st := types.ProcessState{Running: true, PID: rec.PID, Snapshot: &rec}
	if !rec.CreatedAt.IsZero() {
		st.Uptime = time.Since(rec.CreatedAt)
	}
	return st
}

// Subscribe registers cb and returns a handle for Unsubscribe.
func (w *Watcher) Subscribe(cb Callback) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cbSeq++
	w.cbs[w.cbSeq] = cb
	return w.cbSeq
}

// Unsubscribe removes a callback, reporting whether it was registered.
func (w *Watcher) Unsubscribe(id uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.cbs[id]
	delete(w.cbs, id)
	return ok
}

// Matches reports whether a process name matches any target.
func (w *Watcher) Matches(name string) bool {
	lower := strings.ToLower(name)
	for _, t := range w.targets {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

func (w *Watcher) tick(ctx context.Context) {
	w.tickMu.Lock()
	defer w.tickMu.Unlock()
	logger := log.WithFunc("process.tick")

	cands, err := w.lister.List(ctx, w.Matches)
	if err != nil {
		logger.Warnf(ctx, "enumerate processes: %v", err)
		return
	}

	w.mu.Lock()
	prevPID := 0
	if w.record != nil {
		prevPID = w.record.PID
	}
	w.mu.Unlock()

	var rec *types.ProcessRecord
	if chosen, ok := pickCanonical(cands, prevPID); ok {
		rec, err = w.lister.Inspect(ctx, chosen.PID)
		switch {
		case errors.Is(err, ErrProcessGone):
			logger.Debugf(ctx, "pid %d exited during inspection", chosen.PID)
			rec = nil
		case err != nil:
			logger.Warnf(ctx, "inspect pid %d: %v", chosen.PID, err)
			rec = &types.ProcessRecord{PID: chosen.PID, Name: chosen.Name, CreatedAt: chosen.CreatedAt, Status: types.ProcessUnknown}
		}
		if rec != nil {
			if rec.Name == "" {
				rec.Name = chosen.Name
			}
			if rec.CreatedAt.IsZero() {
				rec.CreatedAt = chosen.CreatedAt
			}
		}
	}

	w.mu.Lock()
	if ctx.Err() != nil {
		w.mu.Unlock()
		return
	}
	var events []Event
	if prevPID != 0 && (rec == nil || rec.PID != prevPID) {
		events = append(events, Event{Kind: KindLost, PID: prevPID})
	}
	if rec != nil {
		if rec.PID != prevPID {
			events = append(events, Event{Kind: KindFound, PID: rec.PID, Name: rec.Name})
		}
		snap := *rec
		events = append(events, Event{Kind: KindStatusChanged, PID: rec.PID, Name: rec.Name, Status: rec.Status, Record: &snap})
	}
	w.record = rec
	cbs := w.callbacks()
	w.mu.Unlock()

	for _, ev := range events {
		w.emit(ctx, cbs, ev)
	}
}

// callbacks must be called with w.mu held.
func (w *Watcher) callbacks() []Callback {
	ids := make([]uint64, 0, len(w.cbs))
	for id := range w.cbs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Callback, 0, len(ids))
	for _, id := range ids {
		out = append(out, w.cbs[id])
	}
	return out
}

func (w *Watcher) emit(ctx context.Context, cbs []Callback, ev Event) {
	logger := log.WithFunc("process.emit")
	switch ev.Kind {
	case KindFound:
		logger.Infof(ctx, "process found: %s (pid %d)", ev.Name, ev.PID)
	case KindLost:
		logger.Infof(ctx, "process lost: pid %d", ev.PID)
	}
	utils.SafeNotify(ctx, "process.emit", cbs, func(cb Callback) error { return cb(ctx, ev) })
	if w.bus != nil {
		w.bus.Publish(ctx, busName(ev.Kind), ev, "process")
	}
}

func busName(k Kind) string {
	switch k {
	case KindFound:
		return EventFound
	case KindLost:
		return EventLost
	default:
		return EventStatusChanged
	}
}

// pickCanonical keeps the tracked PID while it still matches; otherwise it
// takes the earliest created candidate, lowest PID on ties.
func pickCanonical(cands []Candidate, prevPID int) (Candidate, bool) {
	if len(cands) == 0 {
		return Candidate{}, false
	}
	if prevPID != 0 {
		if i := slices.IndexFunc(cands, func(c Candidate) bool { return c.PID == prevPID }); i >= 0 {
			return cands[i], true
		}
	}
	return slices.MinFunc(cands, compareCandidates), true
}

func compareCandidates(a, b Candidate) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.PID, b.PID)
}

// Candidates lists every matching process in canonical order: earliest
// creation first, then lowest PID. The first entry is what a fresh scan
// would track.
func (w *Watcher) Candidates(ctx context.Context) ([]Candidate, error) {
	cands, err := w.lister.List(ctx, w.Matches)
	if err != nil {
		return nil, fmt.Errorf("enumerate processes: %w", err)
	}
	slices.SortFunc(cands, compareCandidates)
	return cands, nil
}

// Metrics samples resource usage of pid, or of the tracked process when pid
// is 0.
func (w *Watcher) Metrics(ctx context.Context, pid int) (*types.PerformanceMetrics, error) {
	ms, ok := w.lister.(MetricsSource)
	if !ok {
		return nil, ErrMetricsUnsupported
	}
	if pid == 0 {
		if pid = w.Status().PID; pid == 0 {
			return nil, ErrNotTracking
		}
	}
	return ms.Metrics(ctx, pid)
}
