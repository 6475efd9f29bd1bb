// Package database records an anonymous usage log of processed uploads in
// PostgreSQL (lib/pq or pgx) or SQLite, with connection pooling and health
// checks. Contact records, client addresses and user agents are never stored.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/lib/pq"              // registers "postgres"
	_ "modernc.org/sqlite"             // registers "sqlite"
)

// Supported driver names
const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite"
)

// ErrUnsupportedDriver is returned for drivers other than postgres, pgx and sqlite
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// Client wraps a usage log database connection
type Client struct {
	db     *sql.DB
	driver string
}

// Upload is one processed log in the usage log
type Upload struct {
	ID               int64
	JobID            string
	Callsign         string
	Grid             string
	Filename         string
	TotalContacts    int
	ResolvedContacts int
	ProcessingTimeMS int64
	ProcessedAt      time.Time
}

// UsageStats summarizes the usage log
type UsageStats struct {
	Uploads          int64      `json:"uploads"`
	Callsigns        int64      `json:"callsigns"`
	TotalContacts    int64      `json:"total_contacts"`
	ResolvedContacts int64      `json:"resolved_contacts"`
	LastUploadAt     *time.Time `json:"last_upload_at,omitempty"`
}

// NewClient opens the database with connection pooling. SQLite runs over a
// single connection.
func NewClient(driver, dsn string) (*Client, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	switch driver {
	case DriverPostgres, DriverPgx, DriverSQLite:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(1 * time.Minute)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (also failed to close: %w)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to configure sqlite: %w", err)
		}
	}

	return &Client{db: db, driver: driver}, nil
}

// Driver returns the driver name the client was opened with
func (c *Client) Driver() string {
	return c.driver
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL drivers
func (c *Client) rebind(query string) string {
	if c.driver == DriverSQLite {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Migrate creates the usage log table if it does not exist
func (c *Client) Migrate(ctx context.Context) error {
	idColumn := "BIGSERIAL PRIMARY KEY"
	if c.driver == DriverSQLite {
		idColumn = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS uploads (
			id ` + idColumn + `,
			job_id TEXT NOT NULL,
			callsign TEXT NOT NULL,
			grid TEXT NOT NULL,
			filename TEXT NOT NULL DEFAULT '',
			total_contacts INTEGER NOT NULL,
			resolved_contacts INTEGER NOT NULL,
			processing_time_ms BIGINT NOT NULL,
			processed_at_ms BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_uploads_processed_at ON uploads (processed_at_ms)`,
	}

	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// RecordUpload appends one processed upload to the usage log
func (c *Client) RecordUpload(ctx context.Context, u Upload) error {
	query := c.rebind(`
		INSERT INTO uploads (
			job_id, callsign, grid, filename, total_contacts, resolved_contacts,
			processing_time_ms, processed_at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := c.db.ExecContext(ctx, query,
		u.JobID,
		u.Callsign,
		u.Grid,
		u.Filename,
		u.TotalContacts,
		u.ResolvedContacts,
		u.ProcessingTimeMS,
		u.ProcessedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert failed: %w", err)
	}
	return nil
}

// MaxRecentUploads caps how many rows RecentUploads returns
const MaxRecentUploads = 500

// RecentUploads returns the latest uploads, newest first
func (c *Client) RecentUploads(ctx context.Context, limit int) ([]Upload, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > MaxRecentUploads {
		limit = MaxRecentUploads
	}

	query := c.rebind(`
		SELECT
			id, job_id, callsign, grid, filename, total_contacts, resolved_contacts,
			processing_time_ms, processed_at_ms
		FROM uploads
		ORDER BY processed_at_ms DESC, id DESC
		LIMIT ?
	`)

	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }() // nolint:errcheck // Close in defer, error not actionable

	var uploads []Upload
	for rows.Next() {
		var (
			u           Upload
			processedAt int64
		)
		err := rows.Scan(
			&u.ID,
			&u.JobID,
			&u.Callsign,
			&u.Grid,
			&u.Filename,
			&u.TotalContacts,
			&u.ResolvedContacts,
			&u.ProcessingTimeMS,
			&processedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		u.ProcessedAt = time.UnixMilli(processedAt).UTC()
		uploads = append(uploads, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return uploads, nil
}

// GetUsageStats aggregates the whole usage log
func (c *Client) GetUsageStats(ctx context.Context) (UsageStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(DISTINCT callsign),
			COALESCE(SUM(total_contacts), 0),
			COALESCE(SUM(resolved_contacts), 0),
			MAX(processed_at_ms)
		FROM uploads
	`

	var (
		stats UsageStats
		last  sql.NullInt64
	)
	err := c.db.QueryRowContext(ctx, query).Scan(
		&stats.Uploads,
		&stats.Callsigns,
		&stats.TotalContacts,
		&stats.ResolvedContacts,
		&last,
	)
	if err != nil {
		return UsageStats{}, fmt.Errorf("stats query failed: %w", err)
	}

	if last.Valid {
		t := time.UnixMilli(last.Int64).UTC()
		stats.LastUploadAt = &t
	}
	return stats, nil
}

// HealthCheck verifies database connectivity
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
