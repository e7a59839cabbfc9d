package types

import "time"

// Quality is the latency tier of the basic connectivity probes.
type Quality string

const (
	QualityNoConnection Quality = "no_connection"
	QualityExcellent    Quality = "excellent" // < 50ms
	QualityGood         Quality = "good"      // < 100ms
	QualityFair         Quality = "fair"      // < 200ms
	QualityPoor         Quality = "poor"      // < 500ms
	QualityVeryPoor     Quality = "very_poor"
	QualityUnknown      Quality = "unknown"
)

// ConnectionSample is the outcome of one connectivity tick.
type ConnectionSample struct {
	Timestamp    time.Time `json:"timestamp"`
	Connected    bool      `json:"connected"`
	Quality      Quality   `json:"quality"`
	AvgLatencyMS *float64  `json:"avg_latency_ms,omitempty"`

	// Sorted target sets, basic and game-server targets alike.
	ReachableTargets   []string `json:"reachable_targets"`
	UnreachableTargets []string `json:"unreachable_targets"`
	// GameServersReachable is the subset of ReachableTargets that are game servers.
	GameServersReachable []string `json:"game_servers_reachable,omitempty"`
}

// ConnectionState is the snapshot returned by the connectivity probe.
type ConnectionState struct {
	Connected   bool      `json:"connected"`
	Quality     Quality   `json:"quality"`
	LastCheck   time.Time `json:"last_check"`
	HistorySize int       `json:"history_size"`
	Monitoring  bool      `json:"monitoring"`
}
