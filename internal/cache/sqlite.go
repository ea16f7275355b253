package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kjstillabower/climate-outlook-service/internal/models"
)

// SQLiteCache implements Cache on a local SQLite database. Unlike the
// volatile backends it survives restarts, which matters for outlooks:
// archive-backed responses stay valid for days, not minutes.
type SQLiteCache struct {
	db *sql.DB
}

type sqliteMigration struct {
	Version     int
	Description string
	SQL         string
}

var sqliteMigrations = []sqliteMigration{
	{
		Version:     1,
		Description: "outlooks table",
		SQL: `
CREATE TABLE IF NOT EXISTS outlooks (
    lat REAL NOT NULL,
    lon REAL NOT NULL,
    target_date TEXT NOT NULL,
    day_window INTEGER NOT NULL,
    units TEXT NOT NULL,
    response TEXT NOT NULL,
    expires_at DATETIME NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(lat, lon, target_date, day_window, units)
);
CREATE INDEX IF NOT EXISTS idx_outlooks_expires ON outlooks(expires_at);
`,
	},
}

// NewSQLiteCache opens (or creates) the database at path and applies
// pending schema migrations.
func NewSQLiteCache(path string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteCache{db: db}, nil
}

func migrateSQLite(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at DATETIME DEFAULT CURRENT_TIMESTAMP)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for _, m := range sqliteMigrations {
		if m.Version <= current {
			continue
		}
		if _, err := db.Exec(m.SQL); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.Version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// Get implements Cache.Get. Expired rows are treated as misses and
// deleted opportunistically.
func (c *SQLiteCache) Get(ctx context.Context, key Key) (models.OutlookResponse, bool, error) {
	var raw string
	var expiresAt time.Time
	err := c.db.QueryRowContext(ctx, `
		SELECT response, expires_at FROM outlooks
		WHERE lat = ? AND lon = ? AND target_date = ? AND day_window = ? AND units = ?
	`, key.Lat, key.Lon, key.TargetDate, key.WindowDays, string(key.Units)).Scan(&raw, &expiresAt)
	if err == sql.ErrNoRows {
		return models.OutlookResponse{}, false, nil
	}
	if err != nil {
		return models.OutlookResponse{}, false, err
	}
	if time.Now().After(expiresAt) {
		_, _ = c.db.ExecContext(ctx, `
			DELETE FROM outlooks
			WHERE lat = ? AND lon = ? AND target_date = ? AND day_window = ? AND units = ?
		`, key.Lat, key.Lon, key.TargetDate, key.WindowDays, string(key.Units))
		return models.OutlookResponse{}, false, nil
	}
	var resp models.OutlookResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return models.OutlookResponse{}, false, err
	}
	return resp, true, nil
}

// Set implements Cache.Set with an upsert on the unique outlook key.
// Concurrent writers race benignly; the row converges to the last write.
func (c *SQLiteCache) Set(ctx context.Context, key Key, value models.OutlookResponse, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO outlooks (lat, lon, target_date, day_window, units, response, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(lat, lon, target_date, day_window, units) DO UPDATE SET
			response = excluded.response,
			expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP
	`, key.Lat, key.Lon, key.TargetDate, key.WindowDays, string(key.Units), string(raw), time.Now().Add(ttl))
	return err
}

// Ping checks database reachability. Used for health checks.
func (c *SQLiteCache) Ping() error {
	return c.db.Ping()
}

// Close closes the underlying database. Call during shutdown.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
