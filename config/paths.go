package config

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/projecteru2/rf4watch/utils"
)

// DiscoverInstallRoot returns the first candidate directory containing the
// marker subdirectory, or "" when none does.
func DiscoverInstallRoot(candidates []string, marker string) string {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if utils.DirExists(filepath.Join(c, marker)) {
			return c
		}
	}
	return ""
}

// InstallRoot resolves the installation root: InstallDir when set, else the
// discovered root, else the working directory.
func (c *Config) InstallRoot() string {
	if c.InstallDir != "" {
		return c.InstallDir
	}
	if root := DiscoverInstallRoot(c.InstallCandidates, c.InstallMarker); root != "" {
		return root
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// ConfigDir returns the directory managed by the configuration bridge.
func (c *Config) ConfigDir() string {
	if c.ConfigBridge.ConfigDir != "" {
		return c.ConfigBridge.ConfigDir
	}
	return filepath.Join(c.InstallRoot(), "config")
}

// BackupDir returns the configuration backup directory.
func (c *Config) BackupDir() string {
	return filepath.Join(c.ConfigDir(), "backups")
}

// WatchRoot is a named directory watched by the file activity monitor.
type WatchRoot struct {
	Name string
	Path string
}

// WatchRootPaths resolves Files.WatchRoots to absolute paths, sorted by name.
func (c *Config) WatchRootPaths() []WatchRoot {
	base := c.InstallRoot()
	roots := make([]WatchRoot, 0, len(c.Files.WatchRoots))
	for name, p := range c.Files.WatchRoots {
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		roots = append(roots, WatchRoot{Name: name, Path: p})
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].Name < roots[j].Name })
	return roots
}
