// Package fileactivity watches the game script's data directories, turning
// filesystem events into classified change events with per-type metadata.
package fileactivity

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	units "github.com/docker/go-units"
	"github.com/fsnotify/fsnotify"
	"github.com/projecteru2/core/log"

	"github.com/projecteru2/rf4watch/config"
	"github.com/projecteru2/rf4watch/eventbus"
	"github.com/projecteru2/rf4watch/types"
	"github.com/projecteru2/rf4watch/utils"
)

// EventChanged is published on the bus for every file change.
const EventChanged = "file.changed"

var (
	// ErrAlreadyStarted is returned by Start on a running monitor.
	ErrAlreadyStarted = errors.New("file monitor already started")
	// ErrNoRoots is returned when no requested root could be watched.
	ErrNoRoots = errors.New("no watchable roots")
)

// Callback receives change events. It runs on the dispatcher goroutine and
// must not block indefinitely.
type Callback func(ctx context.Context, ev types.FileChangeEvent) error

type rawEvent struct {
	path string
	root string
	kind types.ChangeKind
	at   time.Time
}

// Monitor is safe for concurrent use.
type Monitor struct {
	roots     []config.WatchRoot
	hashLimit int64
	tailLines int
	queueSize int
	bus       *eventbus.Bus

	mu       sync.Mutex
	primary  Callback
	named    map[string]Callback
	fsw      *fsnotify.Watcher
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	watching []config.WatchRoot
}

// New creates a stopped Monitor over the configured roots. bus may be nil.
func New(conf *config.Config, bus *eventbus.Bus) (*Monitor, error) {
	limit, err := units.RAMInBytes(conf.Files.HashSizeLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid hash_size_limit %q: %w", conf.Files.HashSizeLimit, err)
	}
	return &Monitor{
		roots:     conf.WatchRootPaths(),
		hashLimit: limit,
		tailLines: max(conf.Files.TailLines, 1),
		queueSize: max(conf.Files.QueueSize, 1),
		bus:       bus,
		named:     map[string]Callback{},
	}, nil
}

// Roots returns the configured roots.
func (m *Monitor) Roots() []config.WatchRoot { return slices.Clone(m.roots) }

// Start watches the named roots (all when names is empty) recursively,
// creating missing directories. A root that cannot be watched is logged and
// skipped. cb may be nil.
//
// Roots are selected by name, not by file category: each default root
// (logs, screenshots, config, session, templates) holds the category it is
// named after, but events still carry the category classified per file, so
// a .png dropped into logs is reported as a screenshot.
func (m *Monitor) Start(ctx context.Context, names []string, cb Callback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fsw != nil {
		return ErrAlreadyStarted
	}
	logger := log.WithFunc("fileactivity.Start")

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	var watching []config.WatchRoot
	for _, r := range m.roots {
		if len(names) > 0 && !slices.Contains(names, r.Name) {
			continue
		}
		if err := utils.EnsureDirs(r.Path); err != nil {
			logger.Warnf(ctx, "skip root %s: %v", r.Name, err)
			continue
		}
		if err := addRecursive(fsw, r.Path); err != nil {
			logger.Warnf(ctx, "skip root %s: %v", r.Name, err)
			continue
		}
		watching = append(watching, r)
	}
	if len(watching) == 0 {
		_ = fsw.Close()
		return ErrNoRoots
	}

	ctx, cancel := context.WithCancel(ctx)
	m.fsw, m.cancel, m.primary, m.watching = fsw, cancel, cb, watching
	queue := make(chan rawEvent, m.queueSize)
	m.wg.Add(2)
	go m.observe(ctx, fsw, queue)
	go m.dispatch(ctx, queue)
	logger.Infof(ctx, "watching %d roots", len(watching))
	return nil
}

// Stop closes the watcher and waits for both goroutines to exit. Events
// still queued are dropped.
func (m *Monitor) Stop() {
	m.mu.Lock()
	fsw, cancel := m.fsw, m.cancel
	m.fsw, m.cancel, m.watching = nil, nil, nil
	m.mu.Unlock()
	if fsw == nil {
		return
	}
	cancel()
	_ = fsw.Close()
	m.wg.Wait()
}

// Shutdown implements locator.Shutdowner.
func (m *Monitor) Shutdown(context.Context) error {
	m.Stop()
	return nil
}

// Running reports whether the monitor is watching.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fsw != nil
}

// RegisterCallback adds or replaces a named callback.
func (m *Monitor) RegisterCallback(name string, cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.named[name] = cb
}

// UnregisterCallback removes a named callback.
func (m *Monitor) UnregisterCallback(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.named[name]
	delete(m.named, name)
	return ok
}

// observe is the only reader of the fsnotify channels.
func (m *Monitor) observe(ctx context.Context, fsw *fsnotify.Watcher, queue chan<- rawEvent) {
	defer m.wg.Done()
	defer close(queue)
	logger := log.WithFunc("fileactivity.observe")
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logger.Warnf(ctx, "watch error: %v", err)
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			raw, ok := m.translate(ctx, fsw, ev)
			if !ok {
				continue
			}
			select {
			case queue <- raw:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (m *Monitor) translate(ctx context.Context, fsw *fsnotify.Watcher, ev fsnotify.Event) (rawEvent, bool) {
	raw := rawEvent{path: ev.Name, root: m.rootOf(ev.Name), at: time.Now()}
	switch {
	case ev.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := addRecursive(fsw, ev.Name); err != nil {
				log.WithFunc("fileactivity.translate").Warnf(ctx, "watch new dir %s: %v", ev.Name, err)
			}
			return raw, false
		}
		raw.kind = types.FileCreated
	case ev.Has(fsnotify.Write):
		raw.kind = types.FileModified
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		raw.kind = types.FileDeleted
	default:
		return raw, false
	}
	return raw, true
}

func (m *Monitor) dispatch(ctx context.Context, queue <-chan rawEvent) {
	defer m.wg.Done()
	for raw := range queue {
		if ctx.Err() != nil {
			return
		}
		ev := m.build(ctx, raw)
		m.mu.Lock()
		cbs := m.callbacks()
		m.mu.Unlock()
		utils.SafeNotify(ctx, "fileactivity.dispatch", cbs, func(cb Callback) error { return cb(ctx, ev) })
		if m.bus != nil {
			m.bus.Publish(ctx, EventChanged, ev, "fileactivity")
		}
	}
}

// callbacks must be called with m.mu held.
func (m *Monitor) callbacks() []Callback {
	var out []Callback
	if m.primary != nil {
		out = append(out, m.primary)
	}
	names := make([]string, 0, len(m.named))
	for n := range m.named {
		names = append(names, n)
	}
	slices.Sort(names)
	for _, n := range names {
		out = append(out, m.named[n])
	}
	return out
}

// build never fails: missing pieces are left empty.
func (m *Monitor) build(ctx context.Context, raw rawEvent) types.FileChangeEvent {
	ev := types.FileChangeEvent{
		Kind:      raw.kind,
		Path:      raw.path,
		Root:      raw.root,
		Category:  Classify(raw.path, raw.root),
		Timestamp: raw.at,
		Metadata:  map[string]any{},
	}
	if raw.kind == types.FileDeleted {
		return ev
	}
	info, err := os.Stat(raw.path)
	if err != nil || !info.Mode().IsRegular() {
		return ev
	}
	size := info.Size()
	ev.Size = &size
	logger := log.WithFunc("fileactivity.build")
	if h, err := hashFile(raw.path, size, m.hashLimit); err != nil {
		logger.Debugf(ctx, "hash %s: %v", raw.path, err)
	} else {
		ev.ContentHash = h
	}
	md, err := extractMetadata(raw.path, ev.Category, size, m.tailLines)
	if err != nil {
		logger.Debugf(ctx, "metadata %s: %v", raw.path, err)
	}
	ev.Metadata = md
	return ev
}

func (m *Monitor) rootOf(path string) string {
	best := ""
	bestLen := -1
	for _, r := range m.roots {
		if path == r.Path || strings.HasPrefix(path, r.Path+string(filepath.Separator)) {
			if len(r.Path) > bestLen {
				best, bestLen = r.Name, len(r.Path)
			}
		}
	}
	return best
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
