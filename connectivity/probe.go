// Package connectivity probes general internet reachability and the game
// servers, classifying link quality by latency.
package connectivity

import (
	"context"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/projecteru2/core/log"
	"golang.org/x/sync/errgroup"

	"github.com/projecteru2/rf4watch/config"
	"github.com/projecteru2/rf4watch/eventbus"
	"github.com/projecteru2/rf4watch/types"
	"github.com/projecteru2/rf4watch/utils"
)

// Event names published on the bus.
const (
	EventEstablished = "connection.established"
	EventLost        = "connection.lost"
	EventChanged     = "connection.changed"
)

// Established kinds and lost reasons.
const (
	LinkInternet          = "internet"
	LinkGameServers       = "game_servers"
	ReasonInternetDown    = "internet_disconnected"
	ReasonGameServersDown = "game_servers_unreachable"
)

const (
	tickDeadlineSlack = time.Second
	defaultHTTPPort   = "80"
)

// Kind is the probe event kind.
type Kind string

const (
	KindEstablished Kind = "established"
	KindLost        Kind = "lost"
	KindChanged     Kind = "changed"
)

// Event describes a connectivity transition or a fresh sample.
type Event struct {
	Kind   Kind                   `json:"kind"`
	Link   string                 `json:"link,omitempty"`
	Reason string                 `json:"reason,omitempty"`
	Sample types.ConnectionSample `json:"sample"`
}

// Callback receives probe events in emission order.
type Callback func(ctx context.Context, ev Event) error

// Dialer opens TCP connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Probe polls reachability targets. Ticks never overlap; Stop discards the
// results of a tick still in flight.
type Probe struct {
	conf   config.ConnectionConfig
	dialer Dialer
	hc     *http.Client
	bus    *eventbus.Bus
	poller *utils.Poller

	tickMu sync.Mutex

	mu        sync.Mutex
	latest    *types.ConnectionSample
	connected bool
	gameUp    bool
	history   *utils.Ring[types.ConnectionSample]
	cbs       map[uint64]Callback
	cbSeq     uint64
}

// New creates a stopped Probe. A nil dialer uses net.Dialer with the
// configured dial timeout; bus may be nil.
func New(conf config.ConnectionConfig, dialer Dialer, bus *eventbus.Bus) *Probe {
	if dialer == nil {
		dialer = &net.Dialer{Timeout: conf.DialTimeout()}
	}
	return &Probe{
		conf:    conf,
		dialer:  dialer,
		hc:      utils.NewHTTPClient(conf.HTTPTimeout()),
		bus:     bus,
		poller:  utils.NewPoller(conf.PollInterval()),
		history: utils.NewRing[types.ConnectionSample](conf.HistorySize),
		cbs:     map[uint64]Callback{},
	}
}

// Start begins probing; the first check runs immediately.
func (p *Probe) Start(ctx context.Context) error {
	log.WithFunc("connectivity.Start").Infof(ctx, "probing %d basic targets and %d game servers every %s",
		len(p.conf.BasicTargets), len(p.conf.GameServers), p.poller.Interval())
	return p.poller.Start(ctx, p.tick)
}

// Stop halts probing and waits for an in-flight check to be discarded.
func (p *Probe) Stop() { p.poller.Stop() }

// Shutdown implements locator.Shutdowner.
func (p *Probe) Shutdown(context.Context) error {
	p.Stop()
	return nil
}

// Running reports whether the probe is polling.
func (p *Probe) Running() bool { return p.poller.Running() }

// SetPollInterval changes the probe period, clamped to the 1s floor.
func (p *Probe) SetPollInterval(d time.Duration) {
	p.poller.SetInterval(max(d, config.MinConnectionPollMS*time.Millisecond))
}

// ForceCheck runs one probe round synchronously.
func (p *Probe) ForceCheck(ctx context.Context) { p.tick(ctx) }

// Status returns the latest state. Before the first check quality is unknown.
func (p *Probe) Status() types.ConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := types.ConnectionState{
		Connected:   p.connected,
		Quality:     types.QualityUnknown,
		HistorySize: p.history.Len(),
		Monitoring:  p.poller.Running(),
	}
	if p.latest != nil {
		st.Quality = p.latest.Quality
		st.LastCheck = p.latest.Timestamp
	}
	return st
}

// Latest returns the most recent sample, false before the first check.
func (p *Probe) Latest() (types.ConnectionSample, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		return types.ConnectionSample{Quality: types.QualityUnknown}, false
	}
	return *p.latest, true
}

// History returns up to limit most recent samples, oldest first.
func (p *Probe) History(limit int) []types.ConnectionSample {
	return p.history.Last(limit)
}

// Subscribe registers cb and returns a handle for Unsubscribe.
func (p *Probe) Subscribe(cb Callback) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cbSeq++
	p.cbs[p.cbSeq] = cb
	return p.cbSeq
}

// Unsubscribe removes a callback, reporting whether it was registered.
func (p *Probe) Unsubscribe(id uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.cbs[id]
	delete(p.cbs, id)
	return ok
}

func (p *Probe) tick(ctx context.Context) {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	sample := p.measure(ctx)

	p.mu.Lock()
	if ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	gameUp := len(sample.GameServersReachable) > 0
	var events []Event
	switch {
	case sample.Connected && !p.connected:
		link := LinkInternet
		if gameUp {
			link = LinkGameServers
		}
		events = append(events, Event{Kind: KindEstablished, Link: link, Sample: sample})
	case !sample.Connected && p.connected:
		events = append(events, Event{Kind: KindLost, Reason: ReasonInternetDown, Sample: sample})
	case sample.Connected && p.gameUp && !gameUp:
		events = append(events, Event{Kind: KindLost, Reason: ReasonGameServersDown, Sample: sample})
	case sample.Connected && !p.gameUp && gameUp:
		events = append(events, Event{Kind: KindEstablished, Link: LinkGameServers, Sample: sample})
	}
	events = append(events, Event{Kind: KindChanged, Sample: sample})
	p.connected, p.gameUp = sample.Connected, gameUp
	p.latest = &sample
	p.history.Push(sample)
	cbs := p.callbacks()
	p.mu.Unlock()

	for _, ev := range events {
		p.emit(ctx, cbs, ev)
	}
}

// measure probes every target in parallel under one overall deadline.
func (p *Probe) measure(ctx context.Context) types.ConnectionSample {
	deadline := max(p.conf.DialTimeout(), p.conf.HTTPTimeout()+p.conf.DialTimeout()) + tickDeadlineSlack
	tctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	basic := make([]result, len(p.conf.BasicTargets))
	game := make([]result, len(p.conf.GameServers))
	var g errgroup.Group
	for i, t := range p.conf.BasicTargets {
		g.Go(func() error {
			basic[i] = p.dial(tctx, t)
			return nil
		})
	}
	for i, s := range p.conf.GameServers {
		g.Go(func() error {
			game[i] = p.probeGameServer(tctx, s)
			return nil
		})
	}
	_ = g.Wait()

	logger := log.WithFunc("connectivity.measure")
	for _, r := range slices.Concat(basic, game) {
		if r.err != nil {
			logger.Debugf(ctx, "%s unreachable: %v", r.target, r.err)
		}
	}
	return assemble(time.Now(), basic, game)
}

func (p *Probe) dial(ctx context.Context, addr string) result {
	dctx, cancel := context.WithTimeout(ctx, p.conf.DialTimeout())
	defer cancel()
	start := time.Now()
	conn, err := p.dialer.DialContext(dctx, "tcp", addr)
	if err != nil {
		return result{target: addr, err: err}
	}
	elapsed := time.Since(start)
	_ = conn.Close()
	return result{target: addr, latency: elapsed}
}

// probeGameServer tries an HTTP GET and falls back to a TCP connect on the
// server's port (80 when none is given).
func (p *Probe) probeGameServer(ctx context.Context, server string) result {
	elapsed, err := utils.HTTPReachable(ctx, p.hc, "http://"+server)
	if err == nil {
		return result{target: server, latency: elapsed}
	}
	addr := server
	if _, _, splitErr := net.SplitHostPort(server); splitErr != nil {
		addr = net.JoinHostPort(server, defaultHTTPPort)
	}
	if r := p.dial(ctx, addr); r.err == nil {
		r.target = server
		return r
	}
	return result{target: server, err: err}
}

// callbacks must be called with p.mu held.
func (p *Probe) callbacks() []Callback {
	ids := make([]uint64, 0, len(p.cbs))
	for id := range p.cbs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Callback, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.cbs[id])
	}
	return out
}

func (p *Probe) emit(ctx context.Context, cbs []Callback, ev Event) {
	logger := log.WithFunc("connectivity.emit")
	name := EventChanged
	switch ev.Kind {
	case KindEstablished:
		name = EventEstablished
		logger.Infof(ctx, "connection established: %s", ev.Link)
	case KindLost:
		name = EventLost
		logger.Warnf(ctx, "connection lost: %s", ev.Reason)
	}
	utils.SafeNotify(ctx, "connectivity.emit", cbs, func(cb Callback) error { return cb(ctx, ev) })
	if p.bus != nil {
		p.bus.Publish(ctx, name, ev, "connectivity")
	}
}
