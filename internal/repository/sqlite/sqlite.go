// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// DATABASE/SQL OVERVIEW:
// Go's standard library provides "database/sql", a generic interface for SQL
// databases. Key types:
//   - sql.DB      : a connection pool (NOT a single connection!)
//   - sql.Tx      : a transaction
//   - sql.Row     : a single result row
//   - sql.Rows    : multiple result rows (must be closed!)
//
// Every repository method runs through the querier interface below, which
// both *sql.DB and *sql.Tx satisfy. InTx hands the callback a DB whose
// querier is the open transaction, so the same methods work inside and
// outside a transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	// The blank import registers the pure-Go "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/sakif/circles/internal/apperror"
	"github.com/sakif/circles/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// querier is the subset of *sql.DB and *sql.Tx the repositories use.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a sql.DB connection pool and provides repository methods.
// When tx is set the DB is bound to that transaction.
type DB struct {
	conn *sql.DB
	q    querier
	tx   *sql.Tx
}

// New opens the database and runs migrations.
//
// dbPath examples:
//   - "data/circles.db"  → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests)
//
// An in-memory database lives inside a single connection, so the pool is
// capped at one connection; otherwise each pooled connection would see its
// own empty database.
func New(dbPath string) (*DB, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate", dbPath)
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// Foreign keys are OFF by default in SQLite. The DSN pragma covers file
	// databases; the in-memory connection gets it here.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn, q: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping is used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// InTx runs fn inside a transaction. The transaction is rolled back when fn
// returns an error or panics, and committed otherwise. A DB already bound to
// a transaction runs fn directly so nested calls share one transaction.
func (db *DB) InTx(ctx context.Context, fn func(repository.Store) error) (err error) {
	if db.tx != nil {
		return fn(db)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&DB{conn: db.conn, q: tx, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("sqlite: rolling back after %v: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent;
// columns added after the first release go through addColumnIfNotExists.
func (db *DB) migrate() error {
	for i, stmt := range schema {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("applying schema step %d: %w", i+1, err)
		}
	}

	if err := db.addColumnIfNotExists("events", "featured_image",
		"TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding featured_image to events: %w", err)
	}
	if err := db.addColumnIfNotExists("replies", "image_url",
		"TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding image_url to replies: %w", err)
	}

	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		email         TEXT NOT NULL UNIQUE,
		display_name  TEXT NOT NULL DEFAULT '',
		username      TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL DEFAULT '',
		status        TEXT NOT NULL DEFAULT 'active',
		created_at    DATETIME NOT NULL,
		updated_at    DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS communities (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT NOT NULL,
		slug       TEXT NOT NULL UNIQUE,
		privacy    TEXT NOT NULL DEFAULT 'public',
		creator_id INTEGER NOT NULL REFERENCES users(id),
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS community_members (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		community_id INTEGER NOT NULL REFERENCES communities(id) ON DELETE CASCADE,
		user_id      INTEGER NOT NULL REFERENCES users(id),
		role         TEXT NOT NULL DEFAULT 'member',
		joined_at    DATETIME NOT NULL,
		UNIQUE (community_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_community_members_user ON community_members(user_id)`,

	`CREATE TABLE IF NOT EXISTS circle_edges (
		viewer_id  INTEGER NOT NULL REFERENCES users(id),
		user_id    INTEGER NOT NULL REFERENCES users(id),
		tier       TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (viewer_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		slug                TEXT NOT NULL UNIQUE,
		title               TEXT NOT NULL,
		description         TEXT NOT NULL DEFAULT '',
		starts_at           DATETIME NOT NULL,
		ends_at             DATETIME,
		recurrence_type     TEXT NOT NULL DEFAULT '',
		recurrence_interval INTEGER NOT NULL DEFAULT 0,
		recurrence_days     TEXT NOT NULL DEFAULT '',
		monthly_mode        TEXT NOT NULL DEFAULT '',
		location            TEXT NOT NULL DEFAULT '',
		community_id        INTEGER REFERENCES communities(id),
		privacy             TEXT NOT NULL DEFAULT 'public',
		allow_plus_ones     INTEGER NOT NULL DEFAULT 0,
		share_token         TEXT UNIQUE,
		author_id           INTEGER NOT NULL REFERENCES users(id),
		created_at          DATETIME NOT NULL,
		updated_at          DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_starts_at ON events(starts_at)`,

	`CREATE TABLE IF NOT EXISTS conversations (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		slug         TEXT NOT NULL UNIQUE,
		title        TEXT NOT NULL,
		content      TEXT NOT NULL DEFAULT '',
		author_id    INTEGER NOT NULL REFERENCES users(id),
		community_id INTEGER REFERENCES communities(id),
		event_id     INTEGER REFERENCES events(id),
		privacy      TEXT NOT NULL DEFAULT 'public',
		created_at   DATETIME NOT NULL,
		updated_at   DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_created ON conversations(created_at DESC, id)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_author ON conversations(author_id)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_community ON conversations(community_id)`,

	`CREATE TABLE IF NOT EXISTS replies (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		author_id       INTEGER NOT NULL REFERENCES users(id),
		content         TEXT NOT NULL,
		created_at      DATETIME NOT NULL,
		updated_at      DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_replies_conversation ON replies(conversation_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS guests (
		id                   INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id             INTEGER NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		email                TEXT NOT NULL,
		name                 TEXT NOT NULL DEFAULT '',
		phone                TEXT NOT NULL DEFAULT '',
		dietary_restrictions TEXT NOT NULL DEFAULT '',
		notes                TEXT NOT NULL DEFAULT '',
		plus_one             INTEGER NOT NULL DEFAULT 0,
		plus_one_name        TEXT NOT NULL DEFAULT '',
		status               TEXT NOT NULL DEFAULT 'pending',
		invitation_source    TEXT NOT NULL DEFAULT 'direct',
		rsvp_token           TEXT NOT NULL UNIQUE,
		converted_user_id    INTEGER REFERENCES users(id),
		invited_by           INTEGER NOT NULL DEFAULT 0,
		message              TEXT NOT NULL DEFAULT '',
		rsvp_date            DATETIME,
		cancelled_at         DATETIME,
		created_at           DATETIME NOT NULL,
		updated_at           DATETIME NOT NULL,
		UNIQUE (event_id, email)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_guests_converted_user ON guests(converted_user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_guests_email ON guests(email)`,

	`CREATE TABLE IF NOT EXISTS community_invitations (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		community_id      INTEGER NOT NULL REFERENCES communities(id) ON DELETE CASCADE,
		email             TEXT NOT NULL,
		token             TEXT NOT NULL UNIQUE,
		status            TEXT NOT NULL DEFAULT 'pending',
		invitation_source TEXT NOT NULL DEFAULT 'direct',
		invited_by        INTEGER NOT NULL DEFAULT 0,
		message           TEXT NOT NULL DEFAULT '',
		converted_user_id INTEGER REFERENCES users(id),
		expires_at        DATETIME NOT NULL,
		accepted_at       DATETIME,
		created_at        DATETIME NOT NULL,
		updated_at        DATETIME NOT NULL,
		UNIQUE (community_id, email)
	)`,

	`CREATE TABLE IF NOT EXISTS notification_outbox (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		channel     TEXT NOT NULL,
		recipient   TEXT NOT NULL,
		subject     TEXT NOT NULL DEFAULT '',
		body        TEXT NOT NULL DEFAULT '',
		entity_type TEXT NOT NULL DEFAULT '',
		entity_id   INTEGER NOT NULL DEFAULT 0,
		status      TEXT NOT NULL DEFAULT 'pending',
		attempts    INTEGER NOT NULL DEFAULT 0,
		last_error  TEXT NOT NULL DEFAULT '',
		created_at  DATETIME NOT NULL,
		updated_at  DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_status ON notification_outbox(status, id)`,
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent; running it twice is safe.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// inClause renders "?,?,?" for ids. An empty set renders "NULL" so that
// "x IN (NULL)" matches nothing.
func inClause(ids []int64) (string, []any) {
	if len(ids) == 0 {
		return "NULL", nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

// isUniqueViolation reports whether err came from a UNIQUE constraint.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// requireAffected turns a zero-row UPDATE or DELETE into NotFound.
func requireAffected(res sql.Result, resource string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
