package fileactivity

import (
	"bufio"
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/projecteru2/rf4watch/types"
	"github.com/projecteru2/rf4watch/utils"
)

// LogsRoot is the root that log queries read from.
const LogsRoot = "logs"

const defaultRecentLimit = 10

// ErrInvalidLogName rejects log names that are not plain file names.
var ErrInvalidLogName = errors.New("invalid log name")

// walk visits every regular file under the configured roots.
func (m *Monitor) walk(fn func(root string, path string, info fs.FileInfo)) {
	for _, r := range m.roots {
		_ = filepath.WalkDir(r.Path, func(path string, d fs.DirEntry, err error) error {
			if err != nil || !d.Type().IsRegular() {
				return nil //nolint:nilerr // unreadable entries are skipped
			}
			if info, err := d.Info(); err == nil {
				fn(r.Name, path, info)
			}
			return nil
		})
	}
}

// Recent lists up to limit files under the roots, most recently modified
// first. An empty category matches all.
func (m *Monitor) Recent(category types.Category, limit int) []types.FileInfo {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	var files []types.FileInfo
	m.walk(func(root, path string, info fs.FileInfo) {
		cat := Classify(path, root)
		if category != "" && cat != category {
			return
		}
		files = append(files, types.FileInfo{
			Path:     path,
			Name:     info.Name(),
			Root:     root,
			Category: cat,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})
	})
	slices.SortFunc(files, func(a, b types.FileInfo) int {
		if c := b.ModTime.Compare(a.ModTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})
	return files[:min(limit, len(files))]
}

// Statistics aggregates counts and sizes per category and per root.
func (m *Monitor) Statistics() types.FileStatistics {
	st := types.FileStatistics{
		Categories: map[types.Category]types.CountSize{},
		Roots:      map[string]types.RootStats{},
	}
	for _, r := range m.roots {
		if utils.DirExists(r.Path) {
			st.Roots[r.Name] = types.RootStats{Categories: map[types.Category]int{}}
		}
	}
	m.walk(func(root, path string, info fs.FileInfo) {
		tally(&st, root, Classify(path, root), info.Size())
	})
	return st
}

// tally adds one file, creating the root entry when the root appeared after
// the entries were seeded.
func tally(st *types.FileStatistics, root string, cat types.Category, size int64) {
	st.TotalFiles++
	st.TotalSize += size
	cs := st.Categories[cat]
	cs.Count++
	cs.Size += size
	st.Categories[cat] = cs
	rs := st.Roots[root]
	if rs.Categories == nil {
		rs.Categories = map[types.Category]int{}
	}
	rs.Files++
	rs.Size += size
	rs.Categories[cat]++
	st.Roots[root] = rs
}

func (m *Monitor) logsDir() (string, error) {
	for _, r := range m.roots {
		if r.Name == LogsRoot {
			return r.Path, nil
		}
	}
	return "", fmt.Errorf("no %q root configured", LogsRoot)
}

func (m *Monitor) logPath(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidLogName)
	}
	dir, err := m.logsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ReadLogTail returns the last n lines of a log in the logs root, trimmed.
// n <= 0 yields an empty slice once the name is validated.
func (m *Monitor) ReadLogTail(name string, n int) ([]string, error) {
	path, err := m.logPath(name)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return []string{}, nil
	}
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck
	tail := utils.NewRing[string](n)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), maxLogLine)
	for sc.Scan() {
		tail.Push(strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return tail.Last(0), nil
}

// SearchLogs finds lines containing pattern, case-insensitively, in the named
// log or in every *.log file of the logs root. Unreadable files are skipped
// and reported in the joined error alongside the matches found elsewhere.
func (m *Monitor) SearchLogs(pattern, name string) ([]types.LogMatch, error) {
	var paths []string
	if name != "" {
		p, err := m.logPath(name)
		if err != nil {
			return nil, err
		}
		paths = []string{p}
	} else {
		dir, err := m.logsDir()
		if err != nil {
			return nil, err
		}
		if paths, err = filepath.Glob(filepath.Join(dir, "*.log")); err != nil {
			return nil, err
		}
		slices.Sort(paths)
	}
	needle := strings.ToLower(pattern)
	var out []types.LogMatch
	var errs []error
	for _, p := range paths {
		matches, err := searchFile(p, needle)
		if err != nil {
			errs = append(errs, err)
		}
		out = append(out, matches...)
	}
	return out, errors.Join(errs...)
}

func searchFile(path, needle string) ([]types.LogMatch, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	var out []types.LogMatch
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), maxLogLine)
	for n := 1; sc.Scan(); n++ {
		line := sc.Text()
		if strings.Contains(strings.ToLower(line), needle) {
			out = append(out, types.LogMatch{
				File:       filepath.Base(path),
				LineNumber: n,
				Line:       strings.TrimSpace(line),
				Timestamp:  info.ModTime(),
			})
		}
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("search %s: %w", path, err)
	}
	return out, nil
}
