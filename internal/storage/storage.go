package storage

import (
	"context"
	"time"

	"shieldflow/internal/storage/models"
)

// Setting keys persisted in the settings table.
const (
	SettingProtocol       = "protocol"
	SettingKillSwitch     = "kill_switch"
	SettingAutoConnect    = "auto_connect"
	SettingSelectedServer = "selected_server"
)

// Storage defines the interface for data persistence
type Storage interface {
	// Server catalog operations
	GetServer(ctx context.Context, id string) (*models.Server, error)
	GetAllServers(ctx context.Context, filter ServerFilter) ([]*models.Server, error)
	UpsertServer(ctx context.Context, server *models.Server) error
	DeleteAllServers(ctx context.Context) error

	// Settings operations
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	GetAllSettings(ctx context.Context) (map[string]string, error)

	// Session history
	CreateSession(ctx context.Context, session *models.SessionRecord) error
	EndSession(ctx context.Context, id int64, endedAt time.Time, durationSec int) error
	GetSessionHistory(ctx context.Context, limit int) ([]*models.SessionRecord, error)

	// Sessions left open by a process that is gone, found by owner pid.
	OpenSessionOwners(ctx context.Context) ([]int, error)
	CloseStaleSessions(ctx context.Context, ownerPID int, at time.Time) (int64, error)

	// Recommendation history
	RecordRecommendation(ctx context.Context, rec *models.Recommendation) error
	GetRecommendationHistory(ctx context.Context, limit int) ([]*models.Recommendation, error)

	// PruneHistory deletes ended sessions and recommendations older than before.
	PruneHistory(ctx context.Context, before time.Time) (int64, error)

	// Transactions
	BeginTx(ctx context.Context) (Transaction, error)

	// Close closes the storage connection
	Close() error
}

// ServerFilter represents filters for querying the server catalog
type ServerFilter struct {
	Premium    *bool
	Feature    string // Case-insensitive match on one feature tag
	SearchTerm string // Search in id, country, city
}

// Transaction represents a database transaction
type Transaction interface {
	Commit() error
	Rollback() error
	Storage
}
