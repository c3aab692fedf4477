package sim

import (
	"time"

	"shieldflow/internal/storage/models"
)

// State represents the connection lifecycle state
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Disconnecting:
		return "DISCONNECTING"
	default:
		return "UNKNOWN"
	}
}

// Label returns the status text shown on the dashboard.
func (s State) Label() string {
	switch s {
	case Disconnected:
		return "Unsecured"
	case Connecting:
		return "Connecting..."
	case Connected:
		return "Secured"
	case Disconnecting:
		return "Disconnecting..."
	default:
		return "Unknown"
	}
}

// Busy reports whether a delayed transition is outstanding.
func (s State) Busy() bool {
	return s == Connecting || s == Disconnecting
}

// Severity of a log entry
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// LogEntry is one line of the connection log.
type LogEntry struct {
	ID        string
	Time      time.Time
	Timestamp string // Wall-clock time, "15:04:05"
	Message   string
	Severity  Severity
}

// TrafficSample is one point of the traffic chart.
type TrafficSample struct {
	Time         time.Time
	DownloadMbps float64
	UploadMbps   float64
}

// Session exists while Connected or Disconnecting.
type Session struct {
	StartTime time.Time
}

// Elapsed returns whole seconds since the session started.
func (s Session) Elapsed(now time.Time) int {
	d := now.Sub(s.StartTime)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

// StateChange is delivered to state observers after every transition.
type StateChange struct {
	From     State
	To       State
	At       time.Time
	Server   models.Server
	Protocol models.Protocol
	// Duration is the session duration when the change happened. On entering
	// Disconnected it holds the final value before the reset.
	Duration int
}

// Snapshot is a copy of the simulator's observable state.
type Snapshot struct {
	State       State
	Server      models.Server
	Preferences models.Preferences
	Session     *Session
	Duration    int
	Traffic     []TrafficSample // Oldest first
	Logs        []LogEntry      // Newest first
	Closed      bool
}

// Latest returns the newest traffic sample, or a zero sample when the window
// is empty.
func (s Snapshot) Latest() TrafficSample {
	if len(s.Traffic) == 0 {
		return TrafficSample{}
	}
	return s.Traffic[len(s.Traffic)-1]
}
