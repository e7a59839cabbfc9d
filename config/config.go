package config

import (
	"os"
	"path/filepath"
	"time"

	coretypes "github.com/projecteru2/core/types"
)

// Minimum poll intervals; smaller configured values are clamped up.
const (
	MinProcessPollMS    = 500
	MinConnectionPollMS = 1000
)

// Config holds global rf4watch configuration.
type Config struct {
	// InstallDir is the game-script installation root. When empty it is
	// discovered from InstallCandidates, falling back to the working directory.
	// Env: RF4WATCH_INSTALL_DIR.
	InstallDir string `json:"install_dir" mapstructure:"install_dir"`
	// InstallCandidates are the well-known locations tried during discovery.
	InstallCandidates []string `json:"install_candidates" mapstructure:"install_candidates"`
	// InstallMarker is the subdirectory whose presence identifies an
	// installation root. Default: "rf4s".
	InstallMarker string `json:"install_marker" mapstructure:"install_marker"`
	// EventHistorySize bounds the event bus history. Default: 1000.
	EventHistorySize int `json:"event_history_size" mapstructure:"event_history_size"`

	Process      ProcessConfig      `json:"process" mapstructure:"process"`
	Connection   ConnectionConfig   `json:"connection" mapstructure:"connection"`
	Monitor      MonitorConfig      `json:"monitor" mapstructure:"monitor"`
	Files        FilesConfig        `json:"files" mapstructure:"files"`
	ConfigBridge ConfigBridgeConfig `json:"configbridge" mapstructure:"configbridge"`

	// Log configuration, uses eru core's ServerLogConfig.
	Log coretypes.ServerLogConfig `json:"log" mapstructure:"log"`
}

// ProcessConfig configures the process watcher.
type ProcessConfig struct {
	// PollIntervalMS is the scan period. Min 500, default 2000.
	PollIntervalMS int `json:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	// TargetProcessNames are matched case-insensitively as substrings of
	// process names.
	TargetProcessNames []string `json:"target_process_names" mapstructure:"target_process_names"`
}

// ConnectionConfig configures the connectivity probe.
type ConnectionConfig struct {
	// PollIntervalMS is the probe period. Min 1000, default 5000.
	PollIntervalMS int `json:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	// BasicTargets are host:port pairs used for general reachability.
	BasicTargets []string `json:"basic_targets" mapstructure:"basic_targets"`
	// GameServers are hostnames probed over HTTP with a TCP :80 fallback.
	GameServers   []string `json:"game_servers" mapstructure:"game_servers"`
	DialTimeoutMS int      `json:"dial_timeout_ms" mapstructure:"dial_timeout_ms"`
	HTTPTimeoutMS int      `json:"http_timeout_ms" mapstructure:"http_timeout_ms"`
	// HistorySize bounds the sample history. Default: 100.
	HistorySize int `json:"history_size" mapstructure:"history_size"`
}

// MonitorConfig configures the game state coordinator.
type MonitorConfig struct {
	// HistorySize bounds the combined-status history. Default: 1000.
	HistorySize int `json:"history_size" mapstructure:"history_size"`
	// HeartbeatMS adds a timed snapshot on top of event-driven recompute.
	// 0 disables the heartbeat.
	HeartbeatMS    int  `json:"heartbeat_ms" mapstructure:"heartbeat_ms"`
	AlertsEnabled  bool `json:"alerts_enabled" mapstructure:"alerts_enabled"`
	HistoryEnabled bool `json:"history_enabled" mapstructure:"history_enabled"`
}

// FilesConfig configures the file activity monitor.
type FilesConfig struct {
	// WatchRoots maps a root name to a directory. Relative paths resolve
	// against the installation root.
	WatchRoots map[string]string `json:"watch_roots" mapstructure:"watch_roots"`
	// HashSizeLimit is the largest file that gets a content hash, in
	// go-units notation. Default: "1MB".
	HashSizeLimit string `json:"hash_size_limit" mapstructure:"hash_size_limit"`
	// TailLines is how many trailing lines log metadata carries. Default: 5.
	TailLines int `json:"tail_lines" mapstructure:"tail_lines"`
	// QueueSize is the buffer between the watcher and the dispatcher.
	QueueSize int `json:"queue_size" mapstructure:"queue_size"`
}

// ConfigBridgeConfig configures the configuration bridge.
type ConfigBridgeConfig struct {
	// ConfigDir holds the managed configuration files. Default: <install>/config.
	ConfigDir string `json:"config_dir" mapstructure:"config_dir"`
	// BackupRetentionCount is the keep-last-N used by backup pruning. Default: 10.
	BackupRetentionCount int `json:"backup_retention_count" mapstructure:"backup_retention_count"`
	// RequiredKeys lists the top-level keys each logical name must carry.
	RequiredKeys map[string][]string `json:"required_keys" mapstructure:"required_keys"`
}

// DefaultConfig returns a Config with the built-in defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	candidates := []string{
		"C:/RF4S",
		"C:/RussianFishing4Script",
	}
	if home != "" {
		candidates = append(candidates, filepath.Join(home, "RF4S"))
	}
	if wd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(wd), "rf4s"))
	}
	return &Config{
		InstallCandidates: candidates,
		InstallMarker:     "rf4s",
		EventHistorySize:  1000,
		Process: ProcessConfig{
			PollIntervalMS: 2000,
			TargetProcessNames: []string{
				"russianfishing4.exe",
				"rf4.exe",
				"fishing4.exe",
				"russian_fishing_4.exe",
			},
		},
		Connection: ConnectionConfig{
			PollIntervalMS: 5000,
			BasicTargets:   []string{"google.com:80", "8.8.8.8:53", "1.1.1.1:53"},
			GameServers:    []string{"rf4game.com", "russianfishing4.com"},
			DialTimeoutMS:  3000,
			HTTPTimeoutMS:  5000,
			HistorySize:    100,
		},
		Monitor: MonitorConfig{
			HistorySize:    1000,
			AlertsEnabled:  true,
			HistoryEnabled: true,
		},
		Files: FilesConfig{
			WatchRoots: map[string]string{
				"logs":        "logs",
				"screenshots": "screenshots",
				"config":      "config",
				"session":     "session",
				"templates":   "templates",
			},
			HashSizeLimit: "1MB",
			TailLines:     5,
			QueueSize:     256,
		},
		ConfigBridge: ConfigBridgeConfig{
			BackupRetentionCount: 10,
			RequiredKeys:         map[string][]string{"config": {"version"}},
		},
		Log: coretypes.ServerLogConfig{Level: "info"},
	}
}

// Normalize clamps out-of-range values back to usable ones.
func (c *Config) Normalize() {
	def := DefaultConfig()
	c.Process.PollIntervalMS = max(c.Process.PollIntervalMS, MinProcessPollMS)
	c.Connection.PollIntervalMS = max(c.Connection.PollIntervalMS, MinConnectionPollMS)
	if c.Connection.DialTimeoutMS <= 0 {
		c.Connection.DialTimeoutMS = def.Connection.DialTimeoutMS
	}
	if c.Connection.HTTPTimeoutMS <= 0 {
		c.Connection.HTTPTimeoutMS = def.Connection.HTTPTimeoutMS
	}
	if c.Connection.HistorySize <= 0 {
		c.Connection.HistorySize = def.Connection.HistorySize
	}
	if c.Monitor.HistorySize <= 0 {
		c.Monitor.HistorySize = def.Monitor.HistorySize
	}
	c.Monitor.HeartbeatMS = max(c.Monitor.HeartbeatMS, 0)
	if c.EventHistorySize <= 0 {
		c.EventHistorySize = def.EventHistorySize
	}
	if c.Files.HashSizeLimit == "" {
		c.Files.HashSizeLimit = def.Files.HashSizeLimit
	}
	if c.Files.TailLines <= 0 {
		c.Files.TailLines = def.Files.TailLines
	}
	if c.Files.QueueSize <= 0 {
		c.Files.QueueSize = def.Files.QueueSize
	}
	if c.ConfigBridge.BackupRetentionCount <= 0 {
		c.ConfigBridge.BackupRetentionCount = def.ConfigBridge.BackupRetentionCount
	}
	if c.InstallMarker == "" {
		c.InstallMarker = def.InstallMarker
	}
}

// PollInterval returns the process scan period.
func (p ProcessConfig) PollInterval() time.Duration {
	return time.Duration(max(p.PollIntervalMS, MinProcessPollMS)) * time.Millisecond
}

// PollInterval returns the connectivity probe period.
func (c ConnectionConfig) PollInterval() time.Duration {
	return time.Duration(max(c.PollIntervalMS, MinConnectionPollMS)) * time.Millisecond
}

// DialTimeout returns the per-target TCP connect timeout.
func (c ConnectionConfig) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutMS) * time.Millisecond
}

// HTTPTimeout returns the per-request timeout of game-server probes.
func (c ConnectionConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMS) * time.Millisecond
}

// Heartbeat returns the coordinator heartbeat period, 0 when disabled.
func (m MonitorConfig) Heartbeat() time.Duration {
	return time.Duration(m.HeartbeatMS) * time.Millisecond
}
