// Package state persists graph build history in a SQLite database so
// past runs can be inspected without re-reading the graphs they wrote.
package state

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the sqlite driver
)

//go:embed schema.sql
var schemaSQL string

// BuildRecord is one graph build's outcome.
type BuildRecord struct {
	ID         int64     `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Dialect    string    `json:"dialect"`
	Files      int       `json:"files"`
	Statements int       `json:"statements"`
	Nodes      int       `json:"nodes"`
	Edges      int       `json:"edges"`
	Skipped    int       `json:"skipped"`
	Failures   int       `json:"failures"`
	// GraphPath is where the graph was written, empty for unsaved
	// builds.
	GraphPath string `json:"graph_path"`
}

// Store is a SQLite-backed build history.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewStore creates an unopened store. A nil logger discards output.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{logger: logger}
}

// Open opens the database, creating parent directories for file-backed
// paths. Use ":memory:" for an in-memory database.
func (s *Store) Open(path string) error {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open state database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping state database: %w", err)
	}

	s.db = db
	s.path = path
	return s.initSchema()
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize state schema: %w", err)
	}
	return nil
}

// RecordBuild inserts one build and returns its assigned id.
func (s *Store) RecordBuild(rec *BuildRecord) (int64, error) {
	if s.db == nil {
		return 0, errors.New("state database not opened")
	}

	res, err := s.db.Exec(`
		INSERT INTO builds
			(started_at, finished_at, dialect, files, statements, nodes, edges, skipped, failures, graph_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.FinishedAt.UTC().Format(time.RFC3339Nano),
		rec.Dialect, rec.Files, rec.Statements, rec.Nodes, rec.Edges,
		rec.Skipped, rec.Failures, rec.GraphPath,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record build: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read build id: %w", err)
	}
	rec.ID = id
	s.logger.Debug("build recorded", "id", id, "nodes", rec.Nodes, "edges", rec.Edges)
	return id, nil
}

// GetBuild retrieves one build by id.
func (s *Store) GetBuild(id int64) (*BuildRecord, error) {
	if s.db == nil {
		return nil, errors.New("state database not opened")
	}

	row := s.db.QueryRow(`
		SELECT id, started_at, finished_at, dialect, files, statements, nodes, edges, skipped, failures, graph_path
		FROM builds WHERE id = ?`, id)
	rec, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("build not found: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get build: %w", err)
	}
	return rec, nil
}

// RecentBuilds returns the most recent builds, newest first. A
// non-positive limit means all of them.
func (s *Store) RecentBuilds(limit int) ([]*BuildRecord, error) {
	if s.db == nil {
		return nil, errors.New("state database not opened")
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, dialect, files, statements, nodes, edges, skipped, failures, graph_path
		FROM builds ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var builds []*BuildRecord
	for rows.Next() {
		rec, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		builds = append(builds, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	return builds, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanBuild(row scannable) (*BuildRecord, error) {
	var rec BuildRecord
	var started, finished string
	if err := row.Scan(&rec.ID, &started, &finished, &rec.Dialect,
		&rec.Files, &rec.Statements, &rec.Nodes, &rec.Edges,
		&rec.Skipped, &rec.Failures, &rec.GraphPath); err != nil {
		return nil, err
	}
	var err error
	if rec.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, err
	}
	if rec.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return nil, err
	}
	return &rec, nil
}
