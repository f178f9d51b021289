package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS incidents (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	failure    TEXT NOT NULL,
	root_cause TEXT NOT NULL,
	solution   TEXT NOT NULL
);`

// SQLiteConfig holds configuration for the SQLite-backed store.
type SQLiteConfig struct {
	// Path is the database file path. ":memory:" opens an in-memory
	// database, useful for tests and ephemeral deployments.
	Path string
}

// ApplyDefaults sets default values for unset fields.
func (c *SQLiteConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "data/incidents.db"
	}
}

// SQLiteStore implements Store on an embedded SQLite database.
//
// The driver is pure Go (modernc.org/sqlite), so no CGO is required.
// Reads are safe for concurrent use; writes are serialized by SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (creating if needed) the incident database at the
// configured path and ensures the schema exists.
func NewSQLiteStore(cfg SQLiteConfig, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.Path, err)
	}

	// A single connection avoids table-lock contention between the
	// writer and the rebuild reader, and keeps ":memory:" coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("knowledge store opened", zap.String("path", cfg.Path))

	return &SQLiteStore{db: db, logger: logger}, nil
}

// AllRecords returns every incident record ordered by ascending ID.
func (s *SQLiteStore) AllRecords(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, failure, root_cause, solution FROM incidents ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Failure, &r.RootCause, &r.Solution); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

// Get retrieves a single record by ID.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (Record, error) {
	var r Record
	err := s.db.QueryRowContext(ctx,
		`SELECT id, failure, root_cause, solution FROM incidents WHERE id = ?`, id).
		Scan(&r.ID, &r.Failure, &r.RootCause, &r.Solution)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("getting record %d: %w", id, err)
	}
	return r, nil
}

// Add inserts a record and returns its store-assigned ID.
func (s *SQLiteStore) Add(ctx context.Context, rec Record) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO incidents (failure, root_cause, solution) VALUES (?, ?, ?)`,
		rec.Failure, rec.RootCause, rec.Solution)
	if err != nil {
		return 0, fmt.Errorf("inserting record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading inserted id: %w", err)
	}

	s.logger.Debug("record added", zap.Int64("id", id))
	return id, nil
}

// Count returns the number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM incidents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
