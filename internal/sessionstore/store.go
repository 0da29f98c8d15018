// Package sessionstore implements durable key-value persistence of upload
// Sessions, AggregateState, the id->sourceRef map, and upload history
// (spec.md §4.4, §6), backed by an embedded SQLite database.
package sessionstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go driver, registers as "sqlite"

	"github.com/tonimelisma/chunkupload/internal/debounce"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store persists upload state to a single SQLite database file. Writes
// driven by SaveAll are debounced; everything else is synchronous.
// Storage errors on the debounced path are logged and swallowed — per
// spec.md §4.4, persistence is never on the critical path of a successful
// upload.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	expiry time.Duration
	now    func() time.Time

	mu              sync.Mutex
	pendingSessions map[string]sessionRow
	sessionsTrigger *debounce.Trigger
}

// Open creates or migrates the database at dbPath (":memory:" for tests)
// and returns a ready Store. persistDebounce is the trailing window for
// SaveAll (spec.md's PERSISTENCE_DEBOUNCE); sessionExpiry is the session
// TTL applied on every LoadAll (spec.md's SESSION_EXPIRY).
func Open(dbPath string, persistDebounce, sessionExpiry time.Duration, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open %s: %w", dbPath, err)
	}

	// Sole-writer pattern: a single connection avoids SQLITE_BUSY under the
	// debounced writer and, critically, keeps ":memory:" tests pointed at
	// one database instead of a fresh one per pooled connection.
	db.SetMaxOpenConns(1)

	if err := setPragmas(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		db:     db,
		logger: logger,
		expiry: sessionExpiry,
		now:    time.Now,
	}
	s.sessionsTrigger = debounce.New(persistDebounce, s.flushSessions)

	return s, nil
}

// Close stops the debounce trigger (flushing nothing further) and closes
// the database.
func (s *Store) Close() error {
	s.sessionsTrigger.Stop()
	return s.db.Close()
}

func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("sessionstore: %s: %w", p, err)
		}
	}

	return nil
}

func unixToTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("sessionstore: migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("sessionstore: migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("sessionstore: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("sessionstore: applied migration", slog.String("source", r.Source.Path))
	}

	return nil
}
