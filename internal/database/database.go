package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrDuplicateApplication   = errors.New("musician already applied to this gig")
)

// DB is the SQLite store of the marketplace.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_foreign_keys=on"
	}
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single writer keeps version checks and transactions serialized
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: sqlDB, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS gigs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            city TEXT NOT NULL DEFAULT '',
            location TEXT NOT NULL DEFAULT '',
            event_date TEXT NOT NULL DEFAULT '',
            start_time TEXT NOT NULL DEFAULT '',
            end_time TEXT NOT NULL DEFAULT '',
            budget_cents INTEGER,
            genres TEXT NOT NULL DEFAULT '[]',
            contact_phone TEXT NOT NULL DEFAULT '',
            contact_email TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'open',
            created_by INTEGER NOT NULL,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            version INTEGER NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS applications (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            gig_id INTEGER NOT NULL REFERENCES gigs(id),
            musician_id INTEGER NOT NULL,
            musician_name TEXT NOT NULL DEFAULT '',
            cover_letter TEXT NOT NULL DEFAULT '',
            expected_fee_cents INTEGER,
            status TEXT NOT NULL DEFAULT 'pending',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            UNIQUE (gig_id, musician_id)
        )`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            application_id INTEGER NOT NULL REFERENCES applications(id),
            sender_id INTEGER NOT NULL,
            sender_name TEXT NOT NULL DEFAULT '',
            message TEXT NOT NULL,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS chat_reads (
            application_id INTEGER NOT NULL REFERENCES applications(id),
            reader_id INTEGER NOT NULL,
            last_read_at DATETIME NOT NULL,
            PRIMARY KEY (application_id, reader_id)
        )`,
		`CREATE TABLE IF NOT EXISTS calendar_blocks (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            musician_id INTEGER NOT NULL,
            gig_id INTEGER NOT NULL DEFAULT 0,
            date TEXT NOT NULL,
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL,
            source TEXT NOT NULL DEFAULT 'gig',
            external_id TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS calendar_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            gig_id INTEGER NOT NULL,
            musician_id INTEGER NOT NULL DEFAULT 0,
            payload TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_gigs_status ON gigs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_gigs_created_by ON gigs(created_by)`,
		`CREATE INDEX IF NOT EXISTS idx_applications_gig_id ON applications(gig_id)`,
		`CREATE INDEX IF NOT EXISTS idx_applications_musician_id ON applications(musician_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_application_id ON chat_messages(application_id)`,
		`CREATE INDEX IF NOT EXISTS idx_calendar_blocks_musician_date ON calendar_blocks(musician_id, date)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_calendar_blocks_gig ON calendar_blocks(musician_id, gig_id) WHERE gig_id <> 0`,
		`CREATE INDEX IF NOT EXISTS idx_calendar_queue_status ON calendar_queue(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// Ready reports whether the database answers.
func (db *DB) Ready(ctx context.Context) error {
	return db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
	}
	return false
}

func notFound(err error, what string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s %d: %w", what, id, err)
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
