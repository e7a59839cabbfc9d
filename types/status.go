package types

import "time"

// Overall is the combined game state over (process running, connection active).
type Overall string

const (
	RunningConnected       Overall = "running_connected"
	RunningDisconnected    Overall = "running_disconnected"
	NotRunningConnected    Overall = "not_running_connected"
	NotRunningDisconnected Overall = "not_running_disconnected"
)

// DeriveOverall maps the two source booleans onto the combined state.
func DeriveOverall(running, connected bool) Overall {
	switch {
	case running && connected:
		return RunningConnected
	case running:
		return RunningDisconnected
	case connected:
		return NotRunningConnected
	default:
		return NotRunningDisconnected
	}
}

// CombinedStatus is an immutable snapshot derived by the coordinator.
type CombinedStatus struct {
	Overall    Overall          `json:"overall"`
	Timestamp  time.Time        `json:"timestamp"`
	Process    ProcessState     `json:"process"`
	Connection ConnectionSample `json:"connection"`
}

// AlertKind names a coordinator side-channel notification.
type AlertKind string

const (
	AlertProcessFound          AlertKind = "process_found"
	AlertProcessLost           AlertKind = "process_lost"
	AlertConnectionEstablished AlertKind = "connection_established"
	AlertConnectionLost        AlertKind = "connection_lost"
)

// Alert is delivered to coordinator alert callbacks.
type Alert struct {
	Kind      AlertKind `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
