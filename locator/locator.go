// Package locator is a named registry for long-lived components. Entries are
// either pre-built instances or factories that are invoked once, on first
// lookup, and cached thereafter.
package locator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/projecteru2/core/log"
)

var (
	// ErrNotFound is returned when no entry is registered under a name.
	ErrNotFound = errors.New("service not found")
	// ErrTypeMismatch is returned by Resolve when the entry has a different type.
	ErrTypeMismatch = errors.New("service type mismatch")
)

// Shutdowner is the optional teardown capability honored by ShutdownAll.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Factory builds a service lazily.
type Factory func() (any, error)

// Kind describes how an entry was registered.
type Kind string

const (
	KindInstance Kind = "instance"
	KindFactory  Kind = "factory"
)

// Entry is a registered name with its registration kind.
type Entry struct {
	Name  string `json:"name"`
	Kind  Kind   `json:"kind"`
	Built bool   `json:"built"`
}

type entry struct {
	kind     Kind
	instance any
	built    bool
	factory  Factory
	once     *sync.Once
	err      error
}

// Locator is safe for concurrent use.
type Locator struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

// New returns an empty Locator.
func New() *Locator {
	return &Locator{entries: map[string]*entry{}}
}

// RegisterInstance registers a pre-built service, replacing any previous entry.
func (l *Locator) RegisterInstance(name string, obj any) {
	l.put(name, &entry{kind: KindInstance, instance: obj, built: true})
}

// RegisterFactory registers a lazily built singleton, replacing any previous entry.
func (l *Locator) RegisterFactory(name string, f Factory) {
	l.put(name, &entry{kind: KindFactory, factory: f, once: &sync.Once{}})
}

func (l *Locator) put(name string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[name]; !ok {
		l.order = append(l.order, name)
	}
	l.entries[name] = e
}

// Get returns the service registered under name, building it on first use if
// it was registered through a factory. A failed build is cached as well.
func (l *Locator) Get(name string) (any, error) {
	l.mu.RLock()
	e, ok := l.entries[name]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if e.kind == KindInstance {
		return e.instance, nil
	}
	e.once.Do(func() {
		obj, err := e.factory()
		l.mu.Lock()
		defer l.mu.Unlock()
		if err != nil {
			e.err = fmt.Errorf("build %s: %w", name, err)
			return
		}
		e.instance, e.built = obj, true
	})
	l.mu.RLock()
	defer l.mu.RUnlock()
	return e.instance, e.err
}

// Resolve is Get with a type assertion.
func Resolve[T any](l *Locator, name string) (T, error) {
	var zero T
	obj, err := l.Get(name)
	if err != nil {
		return zero, err
	}
	v, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("%s is %T: %w", name, obj, ErrTypeMismatch)
	}
	return v, nil
}

// Has reports whether name is registered.
func (l *Locator) Has(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[name]
	return ok
}

// Unregister removes name, reporting whether it was registered. The service
// itself is not shut down.
func (l *Locator) Unregister(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[name]; !ok {
		return false
	}
	delete(l.entries, name)
	l.order = slices.DeleteFunc(l.order, func(n string) bool { return n == name })
	return true
}

// Names lists registered entries in registration order.
func (l *Locator) Names() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, 0, len(l.order))
	for _, n := range l.order {
		e := l.entries[n]
		out = append(out, Entry{Name: n, Kind: e.kind, Built: e.built})
	}
	return out
}

// ShutdownAll calls Shutdown on every built service that implements
// Shutdowner, in reverse registration order. Every service is attempted;
// failures are joined.
func (l *Locator) ShutdownAll(ctx context.Context) error {
	l.mu.RLock()
	var targets []string
	var svcs []Shutdowner
	for _, n := range slices.Backward(l.order) {
		e := l.entries[n]
		if !e.built {
			continue
		}
		if s, ok := e.instance.(Shutdowner); ok {
			targets = append(targets, n)
			svcs = append(svcs, s)
		}
	}
	l.mu.RUnlock()

	logger := log.WithFunc("locator.ShutdownAll")
	var errs []error
	for i, s := range svcs {
		if err := s.Shutdown(ctx); err != nil {
			logger.Warnf(ctx, "shutdown %s: %v", targets[i], err)
			errs = append(errs, fmt.Errorf("shutdown %s: %w", targets[i], err))
		}
	}
	return errors.Join(errs...)
}
