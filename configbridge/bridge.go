// Package configbridge reads and writes the game script's configuration
// files by logical name, across YAML, JSON and INI, taking a verbatim backup
// before every overwrite.
package configbridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/opencontainers/go-digest"
	"github.com/projecteru2/core/log"

	"github.com/projecteru2/rf4watch/config"
	"github.com/projecteru2/rf4watch/eventbus"
	"github.com/projecteru2/rf4watch/lock"
	"github.com/projecteru2/rf4watch/lock/flock"
	"github.com/projecteru2/rf4watch/utils"
)

// EventChanged is published on the bus for every configuration change.
const EventChanged = "config.changed"

const lockFile = ".rf4watch.lock"

var (
	// ErrNotFound is returned when no file exists for a logical name.
	ErrNotFound = errors.New("config not found")
	// ErrBackupFailed aborts a write whose pre-write backup could not be taken.
	ErrBackupFailed = errors.New("backup failed")
	// ErrInvalidName rejects logical names and backup IDs that are not plain
	// file names.
	ErrInvalidName = errors.New("invalid name")
)

// ParseError reports unparseable file content.
type ParseError struct {
	Path   string
	Format Format
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s as %s: %v", e.Path, e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Bridge is safe for concurrent use.
type Bridge struct {
	dir       string
	backupDir string
	retention int
	required  map[string][]string
	locker    lock.RWLocker
	bus       *eventbus.Bus

	// fileMu orders goroutines of this process around the single flock
	// handle, which re-enters and is released by any holder's Unlock.
	fileMu sync.Mutex

	mu      sync.Mutex
	cache   map[string]map[string]any
	written map[string]digest.Digest // path -> digest of our last write

	watchMu  sync.Mutex
	watches  map[string]map[uint64]WatchFunc
	watchSeq uint64
	fsw      *fsnotify.Watcher
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a Bridge over the configured directory, creating it and the
// backup directory when missing. bus may be nil.
func New(conf *config.Config, bus *eventbus.Bus) (*Bridge, error) {
	b := &Bridge{
		dir:       conf.ConfigDir(),
		backupDir: conf.BackupDir(),
		retention: conf.ConfigBridge.BackupRetentionCount,
		required:  conf.ConfigBridge.RequiredKeys,
		bus:       bus,
		cache:     map[string]map[string]any{},
		written:   map[string]digest.Digest{},
		watches:   map[string]map[uint64]WatchFunc{},
	}
	if err := utils.EnsureDirs(b.dir, b.backupDir); err != nil {
		return nil, fmt.Errorf("ensure config dirs: %w", err)
	}
	b.locker = flock.New(filepath.Join(b.dir, lockFile))
	return b, nil
}

// Dir returns the managed configuration directory.
func (b *Bridge) Dir() string { return b.dir }

// Read returns the mapping stored under name. With useCache the cached copy
// is returned when present. A parse failure leaves the cache untouched.
func (b *Bridge) Read(ctx context.Context, name string, useCache bool) (map[string]any, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if useCache {
		b.mu.Lock()
		cached, ok := b.cache[name]
		b.mu.Unlock()
		if ok {
			return copyMapping(cached), nil
		}
	}
	path, format, err := b.resolve(name)
	if err != nil {
		return nil, err
	}
	var data []byte
	b.fileMu.Lock()
	defer b.fileMu.Unlock()
	if err := lock.WithRLock(ctx, b.locker, func() error {
		var rerr error
		data, rerr = os.ReadFile(path) //nolint:gosec
		return rerr
	}); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	m, err := Decode(format, data)
	if err != nil {
		return nil, &ParseError{Path: path, Format: format, Err: err}
	}
	b.mu.Lock()
	b.cache[name] = copyMapping(m)
	b.mu.Unlock()
	return m, nil
}

type writeOptions struct {
	backup bool
}

// WriteOption tunes a single Write call.
type WriteOption func(*writeOptions)

// WithoutBackup skips the pre-write backup.
func WithoutBackup() WriteOption {
	return func(o *writeOptions) { o.backup = false }
}

// Write stores data under name. An existing file keeps its format and is
// first copied to the backup directory; when that copy fails nothing is
// written. New names are created in the first supported format.
func (b *Bridge) Write(ctx context.Context, name string, data map[string]any, opts ...WriteOption) error {
	if err := checkName(name); err != nil {
		return err
	}
	o := writeOptions{backup: true}
	for _, opt := range opts {
		opt(&o)
	}
	logger := log.WithFunc("configbridge.Write")

	var path string
	var stored map[string]any
	err := b.exclusive(ctx, func() error {
		var format Format
		var exists bool
		var err error
		path, format, err = b.resolve(name)
		switch {
		case err == nil:
			exists = true
		case errors.Is(err, ErrNotFound):
			path, format = filepath.Join(b.dir, name+extensions[0].ext), extensions[0].format
		default:
			return err
		}
		encoded, err := Encode(format, data)
		if err != nil {
			return fmt.Errorf("encode %s as %s: %w", name, format, err)
		}
		// cache what a reader of the file will see, not the caller's values
		if stored, err = Decode(format, encoded); err != nil {
			return fmt.Errorf("decode encoded %s: %w", name, err)
		}
		if exists && o.backup {
			backup, err := b.backupLocked(path)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrBackupFailed, err)
			}
			logger.Infof(ctx, "backed up %s to %s", path, backup)
		}
		b.mu.Lock()
		b.written[path] = digest.FromBytes(encoded)
		b.mu.Unlock()
		if err := utils.WriteFileAtomic(path, encoded, 0o644); err != nil { //nolint:gosec
			b.mu.Lock()
			delete(b.written, path)
			b.mu.Unlock()
			return fmt.Errorf("write %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.cache[name] = stored
	b.mu.Unlock()
	b.notify(ctx, Change{Name: name, Path: path, Kind: ChangeWritten})
	return nil
}

// exclusive runs fn holding both the in-process and the cross-process lock.
func (b *Bridge) exclusive(ctx context.Context, fn func() error) error {
	b.fileMu.Lock()
	defer b.fileMu.Unlock()
	return lock.WithLock(ctx, b.locker, fn)
}

// ListAvailable returns the logical names present in the config directory.
func (b *Bridge) ListAvailable() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", b.dir, err)
	}
	seen := map[string]bool{}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if _, err := FormatOf(e.Name()); err != nil {
			continue
		}
		seen[strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))] = true
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	slices.Sort(names)
	return names, nil
}

// Invalidate drops the cached copy of name.
func (b *Bridge) Invalidate(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.cache, name)
}

// resolve finds the file for name by extension priority.
func (b *Bridge) resolve(name string) (string, Format, error) {
	for _, e := range extensions {
		path := filepath.Join(b.dir, name+e.ext)
		if utils.FileExists(path) {
			return path, e.format, nil
		}
	}
	return "", "", fmt.Errorf("%s: %w", name, ErrNotFound)
}

// nameOf maps a path inside the config directory back to its logical name.
func (b *Bridge) nameOf(path string) (string, bool) {
	if filepath.Dir(path) != filepath.Clean(b.dir) {
		return "", false
	}
	base := filepath.Base(path)
	if _, err := FormatOf(base); err != nil {
		return "", false
	}
	return strings.TrimSuffix(base, filepath.Ext(base)), true
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return nil
}
