package fileactivity

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/projecteru2/rf4watch/types"
)

// --- Queries ---

func TestRecentAndStatistics(t *testing.T) {
	m, root := newMonitor(t, nil)
	now := time.Now()
	files := map[string]time.Duration{
		"logs/old.log":        -3 * time.Hour,
		"logs/new.log":        -time.Minute,
		"screenshots/a.png":   -time.Hour,
		"session/one.session": -2 * time.Hour,
	}
	for rel, age := range files {
		p := filepath.Join(root, rel)
		writeFile(t, p, "1234")
		_ = os.Chtimes(p, now.Add(age), now.Add(age))
	}

	recent := m.Recent("", 2)
	if len(recent) != 2 || recent[0].Name != "new.log" || recent[1].Name != "a.png" {
		t.Errorf("unexpected recent %+v", recent)
	}
	logs := m.Recent(types.CategoryLog, 0)
	if len(logs) != 2 || logs[1].Name != "old.log" {
		t.Errorf("unexpected recent logs %+v", logs)
	}

	st := m.Statistics()
	if st.TotalFiles != 4 || st.TotalSize != 16 {
		t.Errorf("unexpected totals %d/%d", st.TotalFiles, st.TotalSize)
	}
	if st.Categories[types.CategoryLog].Count != 2 || st.Roots["logs"].Categories[types.CategoryLog] != 2 {
		t.Errorf("unexpected breakdown %+v", st)
	}
}

func TestReadLogTail(t *testing.T) {
	m, root := newMonitor(t, nil)
	writeFile(t, filepath.Join(root, "logs", "a.log"), "1\n2\n3\n4\n")
	got, err := m.ReadLogTail("a.log", 2)
	if err != nil || len(got) != 2 || got[0] != "3" || got[1] != "4" {
		t.Errorf("expected [3 4], got %v (%v)", got, err)
	}
	if _, err := m.ReadLogTail("../etc/passwd", 2); !errors.Is(err, ErrInvalidLogName) {
		t.Errorf("expected ErrInvalidLogName, got %v", err)
	}
	if _, err := m.ReadLogTail("missing.log", 2); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist, got %v", err)
	}
}

func TestSearchLogs(t *testing.T) {
	m, root := newMonitor(t, nil)
	writeFile(t, filepath.Join(root, "logs", "a.log"), "caught Pike\nnothing\n")
	writeFile(t, filepath.Join(root, "logs", "b.log"), "PIKE escaped\n")
	writeFile(t, filepath.Join(root, "logs", "c.txt"), "pike in txt\n")

	got, err := m.SearchLogs("pike", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].File != "a.log" || got[0].LineNumber != 1 || got[1].File != "b.log" {
		t.Errorf("unexpected matches %+v", got)
	}
	if got[0].Timestamp.IsZero() {
		t.Error("expected file mtime on match")
	}
	one, _ := m.SearchLogs("pike", "c.txt")
	if len(one) != 1 || one[0].Line != "pike in txt" {
		t.Errorf("unexpected named search %+v", one)
	}
}

func TestTally_RootMissingFromSeed(t *testing.T) {
	st := types.FileStatistics{
		Categories: map[types.Category]types.CountSize{},
		Roots:      map[string]types.RootStats{},
	}
	tally(&st, "screenshots", types.CategoryScreenshot, 10)
	tally(&st, "screenshots", types.CategoryScreenshot, 5)
	rs := st.Roots["screenshots"]
	if rs.Files != 2 || rs.Size != 15 || rs.Categories[types.CategoryScreenshot] != 2 {
		t.Errorf("unexpected root stats %+v", rs)
	}
	if st.TotalFiles != 2 || st.Categories[types.CategoryScreenshot].Size != 15 {
		t.Errorf("unexpected totals %+v", st)
	}
}

func TestReadLogTail_NonPositiveCount(t *testing.T) {
	m, root := newMonitor(t, nil)
	writeFile(t, filepath.Join(root, "logs", "a.log"), "1\n2\n")
	for _, n := range []int{0, -3} {
		got, err := m.ReadLogTail("a.log", n)
		if err != nil || got == nil || len(got) != 0 {
			t.Errorf("n=%d: expected empty slice, got %v (%v)", n, got, err)
		}
	}
	if _, err := m.ReadLogTail("../x", 0); !errors.Is(err, ErrInvalidLogName) {
		t.Errorf("expected name validation before the count check, got %v", err)
	}
}
