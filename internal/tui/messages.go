package tui

import (
	"shieldflow/internal/recommend"
	"shieldflow/internal/sim"
	"shieldflow/internal/storage/models"
)

// Data loading messages.

type serversLoadedMsg struct {
	servers []*models.Server
	err     error
}

// Simulator messages.

// simChangedMsg wakes the model after a simulator event; the model re-reads
// the snapshot.
type simChangedMsg struct {
	change *sim.StateChange
}

type clockTickMsg struct{}

// Connection lifecycle messages.

type autoConnectMsg struct{}

// Server selection messages.

type serverSelectedMsg struct {
	name    string
	applied bool // Selected through a recommendation
	ok      bool
	err     error
}

// Assistant messages.

type recommendResultMsg struct {
	rec *recommend.Recommendation
	err error
}

// Settings update messages.

type settingSavedMsg struct {
	key string
	err error
}

// Notification message.

type clearNotificationMsg struct {
	version int
}
