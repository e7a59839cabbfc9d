package configbridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/fsnotify/fsnotify"
	"github.com/opencontainers/go-digest"
	"github.com/projecteru2/core/log"

	"github.com/projecteru2/rf4watch/utils"
)

// ChangeKind tells where a configuration change came from.
type ChangeKind string

const (
	ChangeWritten  ChangeKind = "written"  // through Write
	ChangeRestored ChangeKind = "restored" // through RestoreBackup
	ChangeExternal ChangeKind = "external" // another process modified the file
	ChangeRemoved  ChangeKind = "removed"  // the file disappeared
)

// Change is delivered to watchers of a logical name.
type Change struct {
	Name string     `json:"name"`
	Path string     `json:"path"`
	Kind ChangeKind `json:"kind"`
}

// WatchFunc receives changes of a watched name.
type WatchFunc func(ctx context.Context, c Change) error

// Watch registers cb for changes to name. The directory watch starts with
// the first registration and lives until Close.
func (b *Bridge) Watch(ctx context.Context, name string, cb WatchFunc) (uint64, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	b.watchMu.Lock()
	defer b.watchMu.Unlock()
	if b.fsw == nil {
		if err := b.startLocked(ctx); err != nil {
			return 0, err
		}
	}
	b.watchSeq++
	if b.watches[name] == nil {
		b.watches[name] = map[uint64]WatchFunc{}
	}
	b.watches[name][b.watchSeq] = cb
	return b.watchSeq, nil
}

// Unwatch removes a watch registration.
func (b *Bridge) Unwatch(name string, id uint64) bool {
	b.watchMu.Lock()
	defer b.watchMu.Unlock()
	cbs, ok := b.watches[name]
	if !ok {
		return false
	}
	if _, ok = cbs[id]; !ok {
		return false
	}
	delete(cbs, id)
	if len(cbs) == 0 {
		delete(b.watches, name)
	}
	return true
}

// Close stops the directory watch and waits for its goroutine.
func (b *Bridge) Close() error {
	b.watchMu.Lock()
	fsw, cancel, done := b.fsw, b.cancel, b.done
	b.fsw, b.cancel, b.done = nil, nil, nil
	b.watchMu.Unlock()
	if fsw == nil {
		return nil
	}
	cancel()
	err := fsw.Close()
	<-done
	return err
}

// Shutdown implements locator.Shutdowner.
func (b *Bridge) Shutdown(context.Context) error { return b.Close() }

func (b *Bridge) startLocked(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(b.dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch %s: %w", b.dir, err)
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.fsw, b.cancel, b.done = fsw, cancel, make(chan struct{})
	go b.loop(ctx, fsw, b.done)
	return nil
}

func (b *Bridge) loop(ctx context.Context, fsw *fsnotify.Watcher, done chan<- struct{}) {
	defer close(done)
	logger := log.WithFunc("configbridge.watch")
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
			b.handle(ctx, ev)
		}
	}
}

func (b *Bridge) handle(ctx context.Context, ev fsnotify.Event) {
	name, ok := b.nameOf(ev.Name)
	if !ok {
		return
	}
	kind := ChangeExternal
	switch {
	case ev.Has(fsnotify.Remove):
		kind = ChangeRemoved
	case ev.Has(fsnotify.Rename):
		// rename away; the rename target arrives as Create
		if !utils.FileExists(ev.Name) {
			kind = ChangeRemoved
		}
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		if b.ownWrite(ev.Name) {
			return
		}
	default:
		return
	}
	b.Invalidate(name)
	b.notify(ctx, Change{Name: name, Path: ev.Name, Kind: kind})
}

// ownWrite reports whether path still holds the bytes this bridge wrote.
func (b *Bridge) ownWrite(path string) bool {
	b.mu.Lock()
	want, ok := b.written[path]
	b.mu.Unlock()
	if !ok {
		return false
	}
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return errors.Is(err, os.ErrNotExist)
	}
	return digest.FromBytes(data) == want
}

func (b *Bridge) notify(ctx context.Context, c Change) {
	b.watchMu.Lock()
	var cbs []WatchFunc
	ids := make([]uint64, 0, len(b.watches[c.Name]))
	for id := range b.watches[c.Name] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		cbs = append(cbs, b.watches[c.Name][id])
	}
	b.watchMu.Unlock()

	utils.SafeNotify(ctx, "configbridge.notify", cbs, func(cb WatchFunc) error { return cb(ctx, c) })
	if b.bus != nil {
		b.bus.Publish(ctx, EventChanged, c, "configbridge")
	}
}
