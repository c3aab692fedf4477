package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"shieldflow/internal/storage"
	"shieldflow/internal/storage/models"
	pkgerrors "shieldflow/pkg/errors"
)

// dbHandle is the common interface between *sql.DB and *sql.Tx.
type dbHandle interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// DB implements the Storage interface using SQLite
type DB struct {
	db *sql.DB
}

// New creates a new SQLite storage instance
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	storage := &DB{db: db}

	// Run migrations
	if err := runMigrations(storage); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return storage, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) handle() dbHandle { return d.db }

// BeginTx starts a new transaction
func (d *DB) BeginTx(ctx context.Context) (storage.Transaction, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Tx implements the Transaction interface
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Commit() error    { return t.tx.Commit() }
func (t *Tx) Rollback() error  { return t.tx.Rollback() }
func (t *Tx) handle() dbHandle { return t.tx }

func (t *Tx) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return nil, fmt.Errorf("nested transactions not supported")
}

func (t *Tx) Close() error { return nil }

// ─── Server operations ──────────────────────────────────────────────────────

const serverColumns = `id, country, city, flag, ip, load_percent, ping_ms, premium, features`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanServer(row rowScanner) (*models.Server, error) {
	server := &models.Server{}
	var flag sql.NullString
	var features []byte
	err := row.Scan(
		&server.ID, &server.Country, &server.City, &flag, &server.IP,
		&server.LoadPercent, &server.PingMS, &server.Premium, &features,
	)
	if err != nil {
		return nil, err
	}
	server.Flag = flag.String
	if err := json.Unmarshal(features, &server.Features); err != nil {
		server.Features = []string{}
	}
	return server, nil
}

func (d *DB) GetServer(ctx context.Context, id string) (*models.Server, error) {
	return getServer(ctx, d.handle(), id)
}
func (t *Tx) GetServer(ctx context.Context, id string) (*models.Server, error) {
	return getServer(ctx, t.handle(), id)
}

func getServer(ctx context.Context, h dbHandle, id string) (*models.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers WHERE id = ?`
	server, err := scanServer(h.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &pkgerrors.ServerError{ServerID: id, Err: pkgerrors.ErrServerNotFound}
	}
	if err != nil {
		return nil, err
	}
	return server, nil
}

func (d *DB) GetAllServers(ctx context.Context, filter storage.ServerFilter) ([]*models.Server, error) {
	return getAllServers(ctx, d.handle(), filter)
}
func (t *Tx) GetAllServers(ctx context.Context, filter storage.ServerFilter) ([]*models.Server, error) {
	return getAllServers(ctx, t.handle(), filter)
}

func getAllServers(ctx context.Context, h dbHandle, filter storage.ServerFilter) ([]*models.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers WHERE 1=1`
	args := []interface{}{}

	if filter.Premium != nil {
		query += " AND premium = ?"
		args = append(args, *filter.Premium)
	}
	if filter.SearchTerm != "" {
		query += " AND (id LIKE ? OR country LIKE ? OR city LIKE ?)"
		searchPattern := "%" + filter.SearchTerm + "%"
		args = append(args, searchPattern, searchPattern, searchPattern)
	}
	// Catalog order is insertion order, which is the order the dashboard shows.
	query += " ORDER BY rowid ASC"

	rows, err := h.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var servers []*models.Server
	for rows.Next() {
		server, err := scanServer(rows)
		if err != nil {
			return nil, err
		}

		// Filter by feature if specified
		if filter.Feature != "" {
			found := false
			for _, f := range server.Features {
				if strings.EqualFold(f, filter.Feature) {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}

		servers = append(servers, server)
	}
	return servers, rows.Err()
}

func (d *DB) UpsertServer(ctx context.Context, server *models.Server) error {
	return upsertServer(ctx, d.handle(), server)
}
func (t *Tx) UpsertServer(ctx context.Context, server *models.Server) error {
	return upsertServer(ctx, t.handle(), server)
}

func upsertServer(ctx context.Context, h dbHandle, server *models.Server) error {
	features, err := json.Marshal(server.Features)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}

	query := `
		INSERT INTO servers (` + serverColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			country = excluded.country,
			city = excluded.city,
			flag = excluded.flag,
			ip = excluded.ip,
			load_percent = excluded.load_percent,
			ping_ms = excluded.ping_ms,
			premium = excluded.premium,
			features = excluded.features
	`
	_, err = h.ExecContext(ctx, query,
		server.ID, server.Country, server.City, server.Flag, server.IP,
		server.LoadPercent, server.PingMS, server.Premium, features,
	)
	if err != nil {
		return fmt.Errorf("failed to save server: %w", err)
	}
	return nil
}

func (d *DB) DeleteAllServers(ctx context.Context) error {
	return deleteAllServers(ctx, d.handle())
}
func (t *Tx) DeleteAllServers(ctx context.Context) error {
	return deleteAllServers(ctx, t.handle())
}

func deleteAllServers(ctx context.Context, h dbHandle) error {
	_, err := h.ExecContext(ctx, "DELETE FROM servers")
	return err
}

// ─── Settings operations ────────────────────────────────────────────────────

func (d *DB) GetSetting(ctx context.Context, key string) (string, error) {
	return getSetting(ctx, d.handle(), key)
}
func (t *Tx) GetSetting(ctx context.Context, key string) (string, error) {
	return getSetting(ctx, t.handle(), key)
}

func getSetting(ctx context.Context, h dbHandle, key string) (string, error) {
	var value string
	err := h.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", pkgerrors.ErrSettingNotFound, key)
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (d *DB) SetSetting(ctx context.Context, key, value string) error {
	return setSetting(ctx, d.handle(), key, value)
}
func (t *Tx) SetSetting(ctx context.Context, key, value string) error {
	return setSetting(ctx, t.handle(), key, value)
}

func setSetting(ctx context.Context, h dbHandle, key, value string) error {
	query := `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	_, err := h.ExecContext(ctx, query, key, value)
	return err
}

func (d *DB) GetAllSettings(ctx context.Context) (map[string]string, error) {
	return getAllSettings(ctx, d.handle())
}
func (t *Tx) GetAllSettings(ctx context.Context) (map[string]string, error) {
	return getAllSettings(ctx, t.handle())
}

func getAllSettings(ctx context.Context, h dbHandle) (map[string]string, error) {
	rows, err := h.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

// ─── Session operations ─────────────────────────────────────────────────────

func (d *DB) CreateSession(ctx context.Context, session *models.SessionRecord) error {
	return createSession(ctx, d.handle(), session)
}
func (t *Tx) CreateSession(ctx context.Context, session *models.SessionRecord) error {
	return createSession(ctx, t.handle(), session)
}

func createSession(ctx context.Context, h dbHandle, session *models.SessionRecord) error {
	query := `
		INSERT INTO sessions (server_id, protocol, started_at, owner_pid)
		VALUES (?, ?, ?, ?)
	`
	result, err := h.ExecContext(ctx, query, session.ServerID, session.Protocol, session.StartedAt.UTC(), session.OwnerPID)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	session.ID = id
	return nil
}

func (d *DB) EndSession(ctx context.Context, id int64, endedAt time.Time, durationSec int) error {
	return endSession(ctx, d.handle(), id, endedAt, durationSec)
}
func (t *Tx) EndSession(ctx context.Context, id int64, endedAt time.Time, durationSec int) error {
	return endSession(ctx, t.handle(), id, endedAt, durationSec)
}

func endSession(ctx context.Context, h dbHandle, id int64, endedAt time.Time, durationSec int) error {
	result, err := h.ExecContext(ctx,
		"UPDATE sessions SET ended_at = ?, duration_sec = ? WHERE id = ? AND ended_at IS NULL",
		endedAt.UTC(), durationSec, id,
	)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", pkgerrors.ErrSessionNotFound, id)
	}
	return nil
}

func (d *DB) GetSessionHistory(ctx context.Context, limit int) ([]*models.SessionRecord, error) {
	return getSessionHistory(ctx, d.handle(), limit)
}
func (t *Tx) GetSessionHistory(ctx context.Context, limit int) ([]*models.SessionRecord, error) {
	return getSessionHistory(ctx, t.handle(), limit)
}

func getSessionHistory(ctx context.Context, h dbHandle, limit int) ([]*models.SessionRecord, error) {
	query := `
		SELECT id, server_id, protocol, started_at, ended_at, duration_sec, owner_pid
		FROM sessions
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`
	rows, err := h.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.SessionRecord
	for rows.Next() {
		session := &models.SessionRecord{}
		err := rows.Scan(
			&session.ID, &session.ServerID, &session.Protocol,
			&session.StartedAt, &session.EndedAt, &session.DurationSec,
			&session.OwnerPID,
		)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (d *DB) OpenSessionOwners(ctx context.Context) ([]int, error) {
	return openSessionOwners(ctx, d.handle())
}
func (t *Tx) OpenSessionOwners(ctx context.Context) ([]int, error) {
	return openSessionOwners(ctx, t.handle())
}

func openSessionOwners(ctx context.Context, h dbHandle) ([]int, error) {
	rows, err := h.QueryContext(ctx,
		"SELECT DISTINCT owner_pid FROM sessions WHERE ended_at IS NULL ORDER BY owner_pid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []int
	for rows.Next() {
		var pid int
		if err := rows.Scan(&pid); err != nil {
			return nil, err
		}
		owners = append(owners, pid)
	}
	return owners, rows.Err()
}

func (d *DB) CloseStaleSessions(ctx context.Context, ownerPID int, at time.Time) (int64, error) {
	return closeStaleSessions(ctx, d.handle(), ownerPID, at)
}
func (t *Tx) CloseStaleSessions(ctx context.Context, ownerPID int, at time.Time) (int64, error) {
	return closeStaleSessions(ctx, t.handle(), ownerPID, at)
}

// closeStaleSessions ends the sessions ownerPID left open. The recorded
// duration stays 0 since the owner never reported one.
func closeStaleSessions(ctx context.Context, h dbHandle, ownerPID int, at time.Time) (int64, error) {
	result, err := h.ExecContext(ctx,
		"UPDATE sessions SET ended_at = ? WHERE ended_at IS NULL AND owner_pid = ?",
		at.UTC(), ownerPID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ─── Recommendation operations ──────────────────────────────────────────────

func (d *DB) RecordRecommendation(ctx context.Context, rec *models.Recommendation) error {
	return recordRecommendation(ctx, d.handle(), rec)
}
func (t *Tx) RecordRecommendation(ctx context.Context, rec *models.Recommendation) error {
	return recordRecommendation(ctx, t.handle(), rec)
}

func recordRecommendation(ctx context.Context, h dbHandle, rec *models.Recommendation) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO recommendations (query, server_id, reason, fallback, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := h.ExecContext(ctx, query,
		rec.Query, rec.ServerID, rec.Reason, rec.Fallback, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record recommendation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	rec.ID = id
	return nil
}

func (d *DB) GetRecommendationHistory(ctx context.Context, limit int) ([]*models.Recommendation, error) {
	return getRecommendationHistory(ctx, d.handle(), limit)
}
func (t *Tx) GetRecommendationHistory(ctx context.Context, limit int) ([]*models.Recommendation, error) {
	return getRecommendationHistory(ctx, t.handle(), limit)
}

func getRecommendationHistory(ctx context.Context, h dbHandle, limit int) ([]*models.Recommendation, error) {
	query := `
		SELECT id, query, server_id, reason, fallback, created_at
		FROM recommendations
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	rows, err := h.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.Recommendation
	for rows.Next() {
		rec := &models.Recommendation{}
		var reason sql.NullString
		err := rows.Scan(&rec.ID, &rec.Query, &rec.ServerID, &reason, &rec.Fallback, &rec.CreatedAt)
		if err != nil {
			return nil, err
		}
		rec.Reason = reason.String
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ─── Retention ──────────────────────────────────────────────────────────────

func (d *DB) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	tx, err := d.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	n, err := tx.PruneHistory(ctx, before)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}
	return n, nil
}
func (t *Tx) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	return pruneHistory(ctx, t.handle(), before)
}

func pruneHistory(ctx context.Context, h dbHandle, before time.Time) (int64, error) {
	cutoff := before.UTC()

	sessions, err := h.ExecContext(ctx,
		"DELETE FROM sessions WHERE ended_at IS NOT NULL AND ended_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	recs, err := h.ExecContext(ctx, "DELETE FROM recommendations WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune recommendations: %w", err)
	}

	n1, _ := sessions.RowsAffected()
	n2, _ := recs.RowsAffected()
	return n1 + n2, nil
}
