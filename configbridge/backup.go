package configbridge

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/projecteru2/core/log"

	"github.com/projecteru2/rf4watch/utils"
)

const backupLayout = "20060102_150405"

// ErrBackupNotFound is returned when a backup ID does not exist for a name.
var ErrBackupNotFound = errors.New("backup not found")

// Backup describes one immutable backup file.
type Backup struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Format    Format    `json:"format"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	seq       int
}

// backupLocked copies path into the backup directory under a fresh
// {stem}_{YYYYMMDD_HHMMSS}{ext} name, adding _N when the second is taken.
// Caller holds the exclusive lock.
func (b *Bridge) backupLocked(path string) (string, error) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	ts := time.Now().Format(backupLayout)
	for n := 0; ; n++ {
		name := fmt.Sprintf("%s_%s%s", stem, ts, ext)
		if n > 0 {
			name = fmt.Sprintf("%s_%s_%d%s", stem, ts, n, ext)
		}
		dst := filepath.Join(b.backupDir, name)
		err := utils.CopyFile(path, dst)
		if err == nil {
			return dst, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", err
		}
	}
}

func backupPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(name) + `_(\d{8}_\d{6})(?:_(\d+))?(\.[A-Za-z]+)$`)
}

// Backups lists the backups of name, newest first.
func (b *Bridge) Backups(name string) ([]Backup, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(b.backupDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", b.backupDir, err)
	}
	re := backupPattern(name)
	var out []Backup
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		m := re.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		format, err := FormatOf(m[3])
		if err != nil {
			continue
		}
		created, err := time.ParseInLocation(backupLayout, m[1], time.Local)
		if err != nil {
			continue
		}
		bk := Backup{
			ID:        e.Name(),
			Name:      name,
			Path:      filepath.Join(b.backupDir, e.Name()),
			Format:    format,
			CreatedAt: created,
		}
		if m[2] != "" {
			bk.seq, _ = strconv.Atoi(m[2])
		}
		if info, err := e.Info(); err == nil {
			bk.Size = info.Size()
		}
		out = append(out, bk)
	}
	slices.SortFunc(out, func(x, y Backup) int {
		if c := y.CreatedAt.Compare(x.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(y.seq, x.seq)
	})
	return out, nil
}

// RestoreBackup replaces the live file of name with the backup id. The
// current file is backed up first. The restored file keeps the backup's
// format; a live file in another format is removed.
func (b *Bridge) RestoreBackup(ctx context.Context, name, id string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := checkName(id); err != nil {
		return err
	}
	m := backupPattern(name).FindStringSubmatch(id)
	if m == nil {
		return fmt.Errorf("%s for %s: %w", id, name, ErrBackupNotFound)
	}
	if _, err := FormatOf(m[3]); err != nil {
		return err
	}
	src := filepath.Join(b.backupDir, id)
	logger := log.WithFunc("configbridge.RestoreBackup")

	target := filepath.Join(b.dir, name+m[3])
	err := b.exclusive(ctx, func() error {
		data, err := os.ReadFile(src) //nolint:gosec
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%s: %w", id, ErrBackupNotFound)
			}
			return err
		}
		live, _, err := b.resolve(name)
		switch {
		case err == nil:
			if _, err := b.backupLocked(live); err != nil {
				return fmt.Errorf("%w: %w", ErrBackupFailed, err)
			}
		case !errors.Is(err, ErrNotFound):
			return err
		}
		b.mu.Lock()
		b.written[target] = digest.FromBytes(data)
		b.mu.Unlock()
		if err := utils.WriteFileAtomic(target, data, 0o644); err != nil { //nolint:gosec
			return fmt.Errorf("restore %s: %w", target, err)
		}
		if live != "" && live != target {
			if err := os.Remove(live); err != nil {
				logger.Warnf(ctx, "remove superseded %s: %v", live, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.Invalidate(name)
	logger.Infof(ctx, "restored %s from %s", name, id)
	b.notify(ctx, Change{Name: name, Path: target, Kind: ChangeRestored})
	return nil
}

// CleanupBackups keeps the newest keep backups of name and deletes the rest,
// returning how many were removed. keep <= 0 uses the configured retention.
func (b *Bridge) CleanupBackups(ctx context.Context, name string, keep int) (int, error) {
	if keep <= 0 {
		keep = b.retention
	}
	var removed int
	err := b.exclusive(ctx, func() error {
		backups, err := b.Backups(name)
		if err != nil {
			return err
		}
		if len(backups) <= keep {
			return nil
		}
		var errs []error
		for _, bk := range backups[keep:] {
			if err := os.Remove(bk.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("remove %s: %w", bk.ID, err))
				continue
			}
			removed++
		}
		return errors.Join(errs...)
	})
	if removed > 0 {
		log.WithFunc("configbridge.CleanupBackups").Infof(ctx, "pruned %d backups of %s", removed, name)
	}
	return removed, err
}
