package models

import "time"

// Recommendation represents one answer of the server recommendation service
type Recommendation struct {
	ID        int64     `json:"id"`
	Query     string    `json:"query"`
	ServerID  string    `json:"server_id"`
	Reason    string    `json:"reason"`
	Fallback  bool      `json:"fallback"` // true when the service was unavailable
	CreatedAt time.Time `json:"created_at"`
}
