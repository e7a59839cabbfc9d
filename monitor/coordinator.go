// Package monitor combines the process watcher and the connectivity probe
// into a single game status, raising alerts on lifecycle transitions.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/rf4watch/config"
	"github.com/projecteru2/rf4watch/connectivity"
	"github.com/projecteru2/rf4watch/eventbus"
	"github.com/projecteru2/rf4watch/process"
	"github.com/projecteru2/rf4watch/types"
	"github.com/projecteru2/rf4watch/utils"
)

// Event names published on the bus.
const (
	EventStatus = "monitor.status"
	EventAlert  = "monitor.alert"
)

// ErrAlreadyStarted is returned by Start on a running coordinator.
var ErrAlreadyStarted = errors.New("coordinator already started")

// ProcessSource is the process side of the combined status.
type ProcessSource interface {
	Start(ctx context.Context) error
	Stop()
	ForceRefresh(ctx context.Context)
	Status() types.ProcessState
	Subscribe(cb process.Callback) uint64
	Unsubscribe(id uint64) bool
}

// ConnectionSource is the network side of the combined status.
type ConnectionSource interface {
	Start(ctx context.Context) error
	Stop()
	ForceCheck(ctx context.Context)
	Status() types.ConnectionState
	Latest() (types.ConnectionSample, bool)
	Subscribe(cb connectivity.Callback) uint64
	Unsubscribe(id uint64) bool
}

// AlertFunc receives alerts. Errors and panics are logged and contained.
type AlertFunc func(ctx context.Context, a types.Alert) error

// Summary is the comprehensive view of the coordinator.
type Summary struct {
	Monitoring     bool                  `json:"monitoring"`
	AlertsEnabled  bool                  `json:"alerts_enabled"`
	HistoryEnabled bool                  `json:"history_enabled"`
	LastUpdate     time.Time             `json:"last_update"`
	HistorySize    int                   `json:"history_size"`
	Status         types.CombinedStatus  `json:"status"`
	Process        types.ProcessState    `json:"process"`
	Connection     types.ConnectionState `json:"connection"`
}

// Coordinator recomputes the combined status whenever a source reports a
// change, plus on an optional heartbeat.
type Coordinator struct {
	ps        ProcessSource
	cs        ConnectionSource
	bus       *eventbus.Bus
	heartbeat *utils.Poller

	// serializes derive, record and publish across both source goroutines
	recomputeMu sync.Mutex

	mu             sync.Mutex
	started        bool
	psSub, csSub   uint64
	alertsEnabled  bool
	historyEnabled bool
	last           *types.CombinedStatus
	history        *utils.Ring[types.CombinedStatus]
	alerts         map[uint64]AlertFunc
	alertSeq       uint64
}

// New creates a stopped Coordinator. bus may be nil.
func New(conf config.MonitorConfig, ps ProcessSource, cs ConnectionSource, bus *eventbus.Bus) *Coordinator {
	c := &Coordinator{
		ps:             ps,
		cs:             cs,
		bus:            bus,
		alertsEnabled:  conf.AlertsEnabled,
		historyEnabled: conf.HistoryEnabled,
		history:        utils.NewRing[types.CombinedStatus](conf.HistorySize),
		alerts:         map[uint64]AlertFunc{},
	}
	if hb := conf.Heartbeat(); hb > 0 {
		c.heartbeat = utils.NewPoller(hb)
	}
	return c
}

// Start subscribes to both sources and starts them.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.psSub = c.ps.Subscribe(c.onProcess)
	c.csSub = c.cs.Subscribe(c.onConnection)
	c.mu.Unlock()

	if err := errors.Join(c.ps.Start(ctx), c.cs.Start(ctx)); err != nil {
		c.Stop()
		return fmt.Errorf("start sources: %w", err)
	}
	if c.heartbeat != nil {
		if err := c.heartbeat.Start(ctx, func(ctx context.Context) { c.recompute(ctx, true) }); err != nil {
			c.Stop()
			return fmt.Errorf("start heartbeat: %w", err)
		}
	}
	log.WithFunc("monitor.Start").Info(ctx, "game monitoring started")
	return nil
}

// Stop stops both sources and the heartbeat. Safe to call when stopped.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	psSub, csSub := c.psSub, c.csSub
	c.mu.Unlock()

	if c.heartbeat != nil {
		c.heartbeat.Stop()
	}
	c.ps.Stop()
	c.cs.Stop()
	c.ps.Unsubscribe(psSub)
	c.cs.Unsubscribe(csSub)
}

// Shutdown implements locator.Shutdowner.
func (c *Coordinator) Shutdown(context.Context) error {
	c.Stop()
	return nil
}

// ForceRefresh runs both sources synchronously and records a snapshot.
func (c *Coordinator) ForceRefresh(ctx context.Context) {
	c.ps.ForceRefresh(ctx)
	c.cs.ForceCheck(ctx)
	c.recompute(ctx, true)
}

// Status derives the combined status from the sources' current state.
func (c *Coordinator) Status() types.CombinedStatus {
	ps := c.ps.Status()
	sample, _ := c.cs.Latest()
	return types.CombinedStatus{
		Overall:    types.DeriveOverall(ps.Running, sample.Connected),
		Timestamp:  time.Now(),
		Process:    ps,
		Connection: sample,
	}
}

// History returns up to limit most recent snapshots, oldest first.
func (c *Coordinator) History(limit int) []types.CombinedStatus {
	return c.history.Last(limit)
}

// OnAlert registers an alert callback and returns a handle for RemoveAlert.
func (c *Coordinator) OnAlert(cb AlertFunc) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alertSeq++
	c.alerts[c.alertSeq] = cb
	return c.alertSeq
}

// RemoveAlert unregisters an alert callback.
func (c *Coordinator) RemoveAlert(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.alerts[id]
	delete(c.alerts, id)
	return ok
}

// SetAlertsEnabled gates alert delivery.
func (c *Coordinator) SetAlertsEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alertsEnabled = enabled
}

// SetHistoryEnabled gates snapshot recording.
func (c *Coordinator) SetHistoryEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.historyEnabled = enabled
}

// Summary returns the comprehensive status.
func (c *Coordinator) Summary() Summary {
	st := c.Status()
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Summary{
		Monitoring:     c.started,
		AlertsEnabled:  c.alertsEnabled,
		HistoryEnabled: c.historyEnabled,
		HistorySize:    c.history.Len(),
		Status:         st,
		Process:        st.Process,
		Connection:     c.cs.Status(),
	}
	if c.last != nil {
		s.LastUpdate = c.last.Timestamp
	}
	return s
}

func (c *Coordinator) onProcess(ctx context.Context, ev process.Event) error {
	switch ev.Kind {
	case process.KindFound:
		c.alert(ctx, types.AlertProcessFound, fmt.Sprintf("game process found: %s (pid %d)", ev.Name, ev.PID))
		c.recompute(ctx, true)
	case process.KindLost:
		c.alert(ctx, types.AlertProcessLost, fmt.Sprintf("game process lost (pid %d)", ev.PID))
		c.recompute(ctx, true)
	default:
		c.recompute(ctx, false)
	}
	return nil
}

func (c *Coordinator) onConnection(ctx context.Context, ev connectivity.Event) error {
	switch ev.Kind {
	case connectivity.KindEstablished:
		c.alert(ctx, types.AlertConnectionEstablished, "connection established: "+ev.Link)
		c.recompute(ctx, true)
	case connectivity.KindLost:
		c.alert(ctx, types.AlertConnectionLost, "connection lost: "+ev.Reason)
		c.recompute(ctx, true)
	default:
		c.recompute(ctx, false)
	}
	return nil
}

// recompute derives the combined status and records it when force is set
// or when the overall state moved. Snapshots are recorded and published in
// the order they were derived; bus handlers must not call back into it.
func (c *Coordinator) recompute(ctx context.Context, force bool) {
	c.recomputeMu.Lock()
	defer c.recomputeMu.Unlock()
	st := c.Status()
	c.mu.Lock()
	if !force && c.last != nil && c.last.Overall == st.Overall {
		c.mu.Unlock()
		return
	}
	prev := c.last
	c.last = &st
	if c.historyEnabled {
		c.history.Push(st)
	}
	c.mu.Unlock()

	if prev == nil || prev.Overall != st.Overall {
		log.WithFunc("monitor.recompute").Infof(ctx, "game status: %s", st.Overall)
	}
	if c.bus != nil {
		c.bus.Publish(ctx, EventStatus, st, "monitor")
	}
}

func (c *Coordinator) alert(ctx context.Context, kind types.AlertKind, msg string) {
	c.mu.Lock()
	if !c.alertsEnabled {
		c.mu.Unlock()
		return
	}
	ids := make([]uint64, 0, len(c.alerts))
	for id := range c.alerts {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	cbs := make([]AlertFunc, 0, len(ids))
	for _, id := range ids {
		cbs = append(cbs, c.alerts[id])
	}
	c.mu.Unlock()

	a := types.Alert{Kind: kind, Message: msg, Timestamp: time.Now()}
	utils.SafeNotify(ctx, "monitor.alert", cbs, func(cb AlertFunc) error { return cb(ctx, a) })
	if c.bus != nil {
		c.bus.Publish(ctx, EventAlert, a, "monitor")
	}
}
