package utils

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrPollerRunning is returned by Start on an already running Poller.
var ErrPollerRunning = errors.New("poller already running")

// WaitFor polls check at the given interval until it returns (true, nil),
// returns a non-nil error, or the timeout/context expires.
func WaitFor(ctx context.Context, timeout, interval time.Duration, check func() (done bool, err error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := check()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("timeout after %s", timeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poller runs a tick function immediately and then on every interval, in a
// single goroutine, so ticks never overlap. The context passed to tick is
// canceled by Stop; Stop returns only after the loop (and any in-flight tick)
// has exited.
type Poller struct {
	mu       sync.Mutex
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	reset    chan time.Duration
}

// NewPoller creates a stopped Poller.
func NewPoller(interval time.Duration) *Poller {
	return &Poller{interval: interval}
}

// Start launches the loop. The loop lives until Stop or until ctx is done.
func (p *Poller) Start(ctx context.Context, tick func(context.Context)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return ErrPollerRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.reset = make(chan time.Duration, 1)
	go p.loop(ctx, p.interval, p.reset, p.done, tick)
	return nil
}

func (p *Poller) loop(ctx context.Context, interval time.Duration, reset <-chan time.Duration, done chan<- struct{}, tick func(context.Context)) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-reset:
			ticker.Reset(d)
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			tick(ctx)
		}
	}
}

// Stop cancels the loop and waits for it to exit. Safe to call when stopped.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done, p.reset = nil, nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// SetInterval changes the tick interval, applied to a running loop at once.
func (p *Poller) SetInterval(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interval = d
	if p.reset == nil {
		return
	}
	select {
	case p.reset <- d:
	default:
		// a pending reset is replaced by this one
		select {
		case <-p.reset:
		default:
		}
		p.reset <- d
	}
}

// Interval returns the configured tick interval.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done != nil
}
