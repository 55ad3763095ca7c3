// Package history persists command runs so past output stays inspectable.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var ErrRunNotFound = errors.New("run not found")

// Run sources.
const (
	SourceCLI   = "cli"
	SourceMCP   = "mcp"
	SourceWatch = "watch"
)

// maxCapturedBytes bounds how much of each stream a run record keeps.
const maxCapturedBytes = 64 * 1024

// Run is one recorded command execution.
type Run struct {
	ID        int64
	Host      string
	Command   string
	Source    string
	Status    string // ok, failed or error
	ExitCode  int
	Error     string
	Stdout    string
	Stderr    string
	StartedAt time.Time
	Duration  time.Duration
}

// StatusFor derives a run status: error when the run never produced an exit
// code, failed on a non-zero one, ok otherwise.
func StatusFor(exitCode int, err error) string {
	switch {
	case err != nil:
		return "error"
	case exitCode != 0:
		return "failed"
	default:
		return "ok"
	}
}

// Store handles run persistence.
type Store struct {
	db *sql.DB
}

// NewStore opens the run history database under dataDir.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "winch.db")
	db, err := sql.Open("sqlite", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		host TEXT NOT NULL,
		command TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT 'cli',
		status TEXT NOT NULL,
		exit_code INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		stdout TEXT NOT NULL DEFAULT '',
		stderr TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_runs_host ON runs(host);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts a run and returns its assigned id. Captured streams are
// truncated so a chatty command cannot bloat the database.
func (s *Store) Record(run *Run) (int64, error) {
	if run.Source == "" {
		run.Source = SourceCLI
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	result, err := s.db.Exec(
		`INSERT INTO runs (host, command, source, status, exit_code, error, stdout, stderr, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Host, run.Command, run.Source, run.Status, run.ExitCode, run.Error,
		truncate(run.Stdout), truncate(run.Stderr),
		run.StartedAt.UTC(), run.Duration.Milliseconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}
	run.ID = id
	return id, nil
}

// Get returns one run by id.
func (s *Store) Get(id int64) (*Run, error) {
	run, err := scanRun(s.db.QueryRow(
		`SELECT id, host, command, source, status, exit_code, error, stdout, stderr, started_at, duration_ms
		 FROM runs WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return run, nil
}

// List returns the most recent runs, newest first. Non-empty host and status
// narrow the result; limit <= 0 means no limit.
func (s *Store) List(host, status string, limit int) ([]*Run, error) {
	query := `SELECT id, host, command, source, status, exit_code, error, stdout, stderr, started_at, duration_ms FROM runs`
	var where []string
	args := []any{}
	if host != "" {
		where = append(where, `host = ?`)
		args = append(args, host)
	}
	if status != "" {
		where = append(where, `status = ?`)
		args = append(args, status)
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY started_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Prune deletes runs older than the retention window and reports how many
// went away.
func (s *Store) Prune(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC()
	result, err := s.db.Exec(`DELETE FROM runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned runs: %w", err)
	}
	return deleted, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var durationMS int64
	if err := row.Scan(
		&run.ID, &run.Host, &run.Command, &run.Source, &run.Status, &run.ExitCode,
		&run.Error, &run.Stdout, &run.Stderr, &run.StartedAt, &durationMS,
	); err != nil {
		return nil, err
	}
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return &run, nil
}

func truncate(s string) string {
	if len(s) <= maxCapturedBytes {
		return s
	}
	return s[:maxCapturedBytes] + "\n... [truncated]"
}
