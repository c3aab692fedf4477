package sqlite

import (
	"database/sql"
	"fmt"
)

const schema = `
-- Server catalog
CREATE TABLE IF NOT EXISTS servers (
    id TEXT PRIMARY KEY,
    country TEXT NOT NULL,
    city TEXT NOT NULL,
    flag TEXT,
    ip TEXT NOT NULL,
    load_percent INTEGER DEFAULT 0,
    ping_ms INTEGER DEFAULT 0,
    premium BOOLEAN DEFAULT 0,
    features TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Application settings (user preferences)
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Simulated session history
CREATE TABLE IF NOT EXISTS sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    server_id TEXT NOT NULL,
    protocol TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    ended_at TIMESTAMP,
    duration_sec INTEGER DEFAULT 0,
    owner_pid INTEGER NOT NULL DEFAULT 0
);

-- Recommendation history
CREATE TABLE IF NOT EXISTS recommendations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    query TEXT NOT NULL,
    server_id TEXT NOT NULL,
    reason TEXT,
    fallback BOOLEAN DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

-- Indexes for performance
CREATE INDEX IF NOT EXISTS idx_servers_country ON servers(country);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
CREATE INDEX IF NOT EXISTS idx_sessions_ended_at ON sessions(ended_at);
CREATE INDEX IF NOT EXISTS idx_recommendations_created_at ON recommendations(created_at);

-- Triggers for updated_at
CREATE TRIGGER IF NOT EXISTS update_servers_timestamp AFTER UPDATE ON servers
BEGIN
    UPDATE servers SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
END;

CREATE TRIGGER IF NOT EXISTS update_settings_timestamp AFTER UPDATE ON settings
BEGIN
    UPDATE settings SET updated_at = CURRENT_TIMESTAMP WHERE key = NEW.key;
END;
`

// defaultServers seeds the catalog on first start only, so that an imported
// catalog is never merged with the built-in one.
const defaultServers = `
INSERT OR IGNORE INTO servers (id, country, city, flag, ip, load_percent, ping_ms, premium, features) VALUES
    ('us-east-1', 'United States', 'New York', '🇺🇸', '104.23.11.90', 62, 45, 0, '["Streaming","P2P"]'),
    ('uk-lon-1', 'United Kingdom', 'London', '🇬🇧', '185.20.12.4', 45, 89, 1, '["BBC iPlayer","Security"]'),
    ('de-fra-1', 'Germany', 'Frankfurt', '🇩🇪', '190.12.44.11', 30, 102, 0, '["Privacy","No-Log"]'),
    ('sg-sin-1', 'Singapore', 'Singapore', '🇸🇬', '120.33.1.55', 15, 210, 1, '["Gaming","Low Latency"]'),
    ('in-mum-1', 'India', 'Mumbai', '🇮🇳', '103.11.20.1', 78, 250, 0, '["Virtual Location"]'),
    ('jp-tok-1', 'Japan', 'Tokyo', '🇯🇵', '45.12.99.10', 40, 180, 1, '["Anime","Streaming"]');
`

const defaultData = `
-- Insert default settings
INSERT OR IGNORE INTO settings (key, value) VALUES
    ('protocol', 'IKEv2'),
    ('kill_switch', 'true'),
    ('auto_connect', 'false'),
    ('selected_server', 'us-east-1');
`

// runMigrations executes the database schema and default data
func runMigrations(db *DB) error {
	// Execute schema
	if _, err := db.db.Exec(schema); err != nil {
		return err
	}

	// Databases created before sessions carried an owner
	if err := addColumn(db, "sessions", "owner_pid", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}

	// Seed the catalog when empty
	var count int
	if err := db.db.QueryRow("SELECT COUNT(*) FROM servers").Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		if _, err := db.db.Exec(defaultServers); err != nil {
			return err
		}
	}

	// Insert default data
	if _, err := db.db.Exec(defaultData); err != nil {
		return err
	}

	return nil
}

// addColumn adds column to table unless it already exists.
func addColumn(db *DB, table, column, decl string) error {
	rows, err := db.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   bool
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = db.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}
