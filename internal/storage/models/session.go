package models

import "time"

// SessionRecord is the persisted trace of one simulated connection
type SessionRecord struct {
	ID          int64      `json:"id"`
	ServerID    string     `json:"server_id"`
	Protocol    string     `json:"protocol"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"` // NULL while the session is live
	DurationSec int        `json:"duration_sec"`
	OwnerPID    int        `json:"owner_pid"` // Process that recorded the session
}
