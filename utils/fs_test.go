package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCopyFile_Verbatim(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.yaml")
	if err := os.WriteFile(src, []byte("x: 1\n"), 0o640); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	_ = os.Chtimes(src, old, old)

	dst := filepath.Join(dir, "b.yaml")
	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("copy: %v", err)
	}
	data, _ := os.ReadFile(dst)
	if string(data) != "x: 1\n" {
		t.Errorf("unexpected content %q", data)
	}
	info, _ := os.Stat(dst)
	if !info.ModTime().Equal(old) {
		t.Errorf("mtime not preserved: %s vs %s", info.ModTime(), old)
	}
}

func TestCopyFile_RefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	dst := filepath.Join(dir, "b")
	_ = os.WriteFile(src, []byte("new"), 0o600)
	_ = os.WriteFile(dst, []byte("old"), 0o600)
	if err := CopyFile(src, dst); err == nil {
		t.Fatal("expected error copying onto existing file")
	}
	data, _ := os.ReadFile(dst)
	if string(data) != "old" {
		t.Errorf("existing file clobbered: %q", data)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.json")
	if err := WriteFileAtomic(path, []byte(`{"a":1}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != `{"a":1}` {
		t.Errorf("unexpected content %q", data)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp file left behind: %d entries", len(entries))
	}
}

func TestEnsureDirsAndExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := EnsureDirs(dir); err != nil {
		t.Fatal(err)
	}
	if !DirExists(dir) || FileExists(dir) {
		t.Error("expected directory to exist and not be a regular file")
	}
}

func TestIsProcessAlive(t *testing.T) {
	if !IsProcessAlive(os.Getpid()) {
		t.Error("own process should be alive")
	}
	if IsProcessAlive(0) || IsProcessAlive(-1) {
		t.Error("non-positive PIDs are never alive")
	}
}
