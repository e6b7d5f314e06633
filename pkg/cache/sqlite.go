package cache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Table names shared by every backend.
const (
	TablePokemon   = "pokemon_data"
	TableSpecies   = "pokemon_species"
	TableChains    = "evolution_chains"
	TableMovesets  = "movesets"
	TableProcessed = "processed_pokemon"
)

// sqliteTables is the set of tables created by the embedded migrations. Table
// names are interpolated into SQL, so only these are accepted.
var sqliteTables = map[string]bool{
	TablePokemon:   true,
	TableSpecies:   true,
	TableChains:    true,
	TableMovesets:  true,
	TableProcessed: true,
}

// OpenSQLite opens a SQLite database at path, runs any pending migrations, and
// returns the connection with WAL journaling enabled.
//
// MaxOpenConns is 1: SQLite does not handle concurrent writers well, and every
// statement here is a single-row read or upsert that releases the connection
// before any remote call is made.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		filename := entry.Name()

		var count int
		if err := db.QueryRow(
			"SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", filename,
		).Scan(&count); err != nil {
			return fmt.Errorf("checking migration %s: %w", filename, err)
		}
		if count > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + filename)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", filename, err)
		}
		if err := applyMigration(db, filename, string(content)); err != nil {
			return err
		}
	}
	return nil
}

// applyMigration executes a single migration inside a transaction.
func applyMigration(db *sql.DB, filename, content string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction for migration %s: %w", filename, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(content); err != nil {
		return fmt.Errorf("executing migration %s: %w", filename, err)
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (filename) VALUES (?)", filename,
	); err != nil {
		return fmt.Errorf("recording migration %s: %w", filename, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration %s: %w", filename, err)
	}
	return nil
}

// SQLiteStore is a generic Store over one table of a shared SQLite database.
// Payloads are stored as JSON text and fetch times as unix milliseconds.
type SQLiteStore[K comparable, V any] struct {
	db       *sql.DB
	table    string
	getQuery string
	putQuery string
	logger   zerolog.Logger
}

// NewSQLiteStore creates a store over table in db. The database handle is
// owned by the caller.
func NewSQLiteStore[K comparable, V any](db *sql.DB, table string, logger zerolog.Logger) (*SQLiteStore[K, V], error) {
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	if !sqliteTables[table] {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	return &SQLiteStore[K, V]{
		db:       db,
		table:    table,
		getQuery: fmt.Sprintf("SELECT data, fetched_at FROM %s WHERE cache_key = ?", table),
		putQuery: fmt.Sprintf("INSERT OR REPLACE INTO %s (cache_key, data, fetched_at) VALUES (?, ?, ?)", table),
		logger:   logger.With().Str("component", "SQLiteStore").Str("table", table).Logger(),
	}, nil
}

// Get reads the record for key.
func (s *SQLiteStore[K, V]) Get(ctx context.Context, key K) (Record[V], error) {
	var (
		data      string
		fetchedAt int64
	)
	err := s.db.QueryRowContext(ctx, s.getQuery, key).Scan(&data, &fetchedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record[V]{}, fmt.Errorf("key '%v' in %s: %w", key, s.table, ErrNotFound)
		}
		return Record[V]{}, fmt.Errorf("querying %s for %v: %w", s.table, key, err)
	}

	var value V
	if err := json.Unmarshal([]byte(data), &value); err != nil {
		return Record[V]{}, fmt.Errorf("decoding %s record %v: %w", s.table, key, err)
	}
	return Record[V]{Payload: value, FetchedAt: time.UnixMilli(fetchedAt).UTC()}, nil
}

// Put replaces the record for key.
func (s *SQLiteStore[K, V]) Put(ctx context.Context, key K, value V, fetchedAt time.Time) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s record %v: %w", s.table, key, err)
	}
	if _, err := s.db.ExecContext(ctx, s.putQuery, key, string(data), fetchedAt.UTC().UnixMilli()); err != nil {
		return fmt.Errorf("writing %s record %v: %w", s.table, key, err)
	}
	s.logger.Debug().Str("key", fmt.Sprintf("%v", key)).Msg("Stored record in SQLite.")
	return nil
}

// Close is a no-op; the shared database is closed by its owner.
func (s *SQLiteStore[K, V]) Close() error {
	return nil
}
