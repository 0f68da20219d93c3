// Package ledger keeps a durable audit trail of forwarded messages in a
// local SQLite database. Unlike the progress file, the ledger is append
// oriented and survives resets, so an operator can always answer "was
// this message copied, and when" after the fact.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// Register the SQLite driver.
	_ "modernc.org/sqlite"
)

//go:embed migrations
var migrationsFS embed.FS

// Ledger is the audit database handle. Safe for use from the single
// migration loop; SQLite itself serializes behind one connection.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger at path and brings its
// schema up to date.
func Open(ctx context.Context, path string) (*Ledger, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping ledger: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Ledger{db: db}, nil
}

// open connects with WAL journaling and a busy timeout. One connection is
// optimal for a local WAL database; more just contend on the file lock.
// The modernc driver wants each pragma prefixed with `_pragma=`.
func open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

// runMigrations applies the embedded schema. The source driver is closed
// on its own; closing the migrate handle would also close the shared
// *sql.DB.
func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "chatmover", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply ledger migrations: %w", err)
	}
	return src.Close()
}

// Migrator returns an admin migrate handle over the ledger at path using
// the embedded schema. Closing the handle closes the database too.
func Migrator(path string) (*migrate.Migrate, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "chatmover", driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// BeginRun opens a new run row and returns its id.
func (l *Ledger) BeginRun(ctx context.Context) (string, error) {
	id := uuid.Must(uuid.NewV7()).String()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at) VALUES (?, ?)`,
		id, stamp(time.Now()))
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the run's end and final counters.
func (l *Ledger) FinishRun(ctx context.Context, runID string, dialogs, messages int) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, dialogs = ?, messages = ? WHERE id = ?`,
		stamp(time.Now()), dialogs, messages, runID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	return nil
}

// RecordForwards appends one row per forwarded message, a single
// transaction per batch.
func (l *Ledger) RecordForwards(ctx context.Context, runID string, convID, destGroup int64, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin forwards tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO forwards (run_id, conv_id, message_id, dest_group, forwarded_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare forwards insert: %w", err)
	}
	defer stmt.Close()

	now := stamp(time.Now())
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, runID, convID, id, destGroup, now); err != nil {
			return fmt.Errorf("insert forward %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// Stats is the aggregate view shown by the stats verb and doctor.
type Stats struct {
	Runs      int
	Forwards  int
	Dialogs   int
	LastRunAt string
}

// Stats summarizes the ledger contents.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	row := l.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(MAX(started_at), '') FROM runs`)
	if err := row.Scan(&s.Runs, &s.LastRunAt); err != nil {
		return Stats{}, fmt.Errorf("count runs: %w", err)
	}
	row = l.db.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(DISTINCT conv_id) FROM forwards`)
	if err := row.Scan(&s.Forwards, &s.Dialogs); err != nil {
		return Stats{}, fmt.Errorf("count forwards: %w", err)
	}
	return s, nil
}

// Forwarded reports whether a message of conv was ever recorded, and the
// most recent destination group it went to.
func (l *Ledger) Forwarded(ctx context.Context, convID int64, messageID int) (bool, int64, error) {
	var dest int64
	row := l.db.QueryRowContext(ctx,
		`SELECT dest_group FROM forwards WHERE conv_id = ? AND message_id = ? ORDER BY forwarded_at DESC LIMIT 1`,
		convID, messageID)
	switch err := row.Scan(&dest); err {
	case nil:
		return true, dest, nil
	case sql.ErrNoRows:
		return false, 0, nil
	default:
		return false, 0, fmt.Errorf("query forward: %w", err)
	}
}

// Close releases the database handle.
func (l *Ledger) Close() error { return l.db.Close() }

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
