// Package store owns the SQLite handle shared by the cabletrack components
// and the per-component schema migrations applied to it.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/mod/semver"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// ErrNewerSchema means the inventory was last written by a newer cablectl.
var ErrNewerSchema = errors.New("database was created by a newer version of cabletrack")

// devVersion is the version of unreleased builds. It never blocks a database.
const devVersion = "dev"

// Migration is one schema step owned by a component. Versions are scoped to
// the component name passed to Migrate.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// SQLiteStore wraps the inventory database. Every transaction is started
// with BEGIN IMMEDIATE so two cablectl processes never interleave writes.
type SQLiteStore struct {
	db *sql.DB

	migrateMu sync.Mutex
	bookkeep  sync.Once
	bookErr   error
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=30000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// New opens the inventory at path, creating the file if needed.
func New(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open inventory %q: %w", path, err)
	}
	// One connection keeps :memory: databases alive and avoids writer contention.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open inventory %q: %w", path, err)
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// dsn asks the driver for immediate transactions on file databases.
func dsn(path string) string {
	if path == ":memory:" || strings.Contains(path, "?") {
		return path
	}
	return path + "?_txlock=immediate"
}

func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Tx runs fn in a transaction on the inventory.
func (s *SQLiteStore) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return WithTx(ctx, s.db, fn)
}

// WithTx runs fn inside a transaction on db. The transaction commits when fn
// returns nil and rolls back otherwise; fn's error is always preserved.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

var bookkeepingDDL = []string{`
	CREATE TABLE IF NOT EXISTS schema_migrations (
		component   TEXT     NOT NULL,
		version     INTEGER  NOT NULL,
		description TEXT     NOT NULL,
		applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (component, version)
	)`, `
	CREATE TABLE IF NOT EXISTS schema_version (
		id          INTEGER  PRIMARY KEY CHECK (id = 1),
		app_version TEXT     NOT NULL,
		updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

func (s *SQLiteStore) ensureBookkeeping(ctx context.Context) error {
	s.bookkeep.Do(func() {
		for _, ddl := range bookkeepingDDL {
			if _, err := s.db.ExecContext(ctx, ddl); err != nil {
				s.bookErr = err
				return
			}
		}
	})
	if s.bookErr != nil {
		return fmt.Errorf("create schema tables: %w", s.bookErr)
	}
	return nil
}

// Migrate applies the migrations of component that have not been recorded
// yet, each in its own transaction. Versions must be strictly ascending.
func (s *SQLiteStore) Migrate(ctx context.Context, component string, migrations []Migration) error {
	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version <= migrations[i-1].Version {
			return fmt.Errorf("migrations for %s out of order at version %d", component, migrations[i].Version)
		}
	}
	if err := s.ensureBookkeeping(ctx); err != nil {
		return err
	}

	s.migrateMu.Lock()
	defer s.migrateMu.Unlock()

	done, err := s.applied(ctx, component)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if done[m.Version] {
			continue
		}
		err := s.Tx(ctx, func(tx *sql.Tx) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (component, version, description) VALUES (?, ?, ?)",
				component, m.Version, m.Description)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %s/%d (%s): %w", component, m.Version, m.Description, err)
		}
	}
	return nil
}

func (s *SQLiteStore) applied(ctx context.Context, component string) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT version FROM schema_migrations WHERE component = ?", component)
	if err != nil {
		return nil, fmt.Errorf("list migrations of %s: %w", component, err)
	}
	defer rows.Close()

	done := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		done[v] = true
	}
	return done, rows.Err()
}

// CheckVersion refuses a binary older than the one that last wrote the
// inventory and records newer ones. Development builds always pass and are
// recorded as such.
func (s *SQLiteStore) CheckVersion(ctx context.Context, current string) error {
	if err := s.ensureBookkeeping(ctx); err != nil {
		return err
	}
	return s.Tx(ctx, func(tx *sql.Tx) error {
		var stored string
		err := tx.QueryRowContext(ctx, "SELECT app_version FROM schema_version WHERE id = 1").Scan(&stored)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("read schema version: %w", err)
		case stored != devVersion && current != devVersion:
			switch semver.Compare(canonical(current), canonical(stored)) {
			case -1:
				return fmt.Errorf("%w: database=%s, binary=%s", ErrNewerSchema, stored, current)
			case 0:
				return nil
			}
		case stored == current:
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO schema_version (id, app_version) VALUES (1, ?)
			ON CONFLICT (id) DO UPDATE SET app_version = excluded.app_version, updated_at = CURRENT_TIMESTAMP`,
			current)
		if err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	})
}

// canonical prefixes v for semver, which only accepts "vX.Y.Z".
func canonical(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
