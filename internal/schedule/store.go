package schedule

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	ErrWatchNotFound = errors.New("watch not found")
	ErrInvalidCron   = errors.New("invalid cron expression")
	ErrDuplicateName = errors.New("watch name already in use")
)

// Store handles watch persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new watch store with SQLite backend
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "watches.db")
	// Enable WAL mode and busy timeout for better concurrent access
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
	CREATE TABLE IF NOT EXISTS watches (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		cron_expr TEXT NOT NULL,
		target TEXT NOT NULL,
		command TEXT NOT NULL,
		powershell INTEGER NOT NULL DEFAULT 0,
		enabled INTEGER NOT NULL DEFAULT 1,
		overlap_behavior TEXT NOT NULL DEFAULT 'skip',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_run_at DATETIME,
		next_run_at DATETIME
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_watches_name ON watches(name);
	CREATE INDEX IF NOT EXISTS idx_watches_enabled ON watches(enabled);
	CREATE INDEX IF NOT EXISTS idx_watches_next_run ON watches(next_run_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Create creates a new watch
func (s *Store) Create(watch *Watch) error {
	if watch.Name == "" {
		return errors.New("watch name required")
	}
	if watch.Target == "" {
		return errors.New("watch target required")
	}
	if watch.Command == "" {
		return errors.New("watch command required")
	}
	if err := ValidateCron(watch.CronExpr); err != nil {
		return err
	}
	if watch.OverlapBehavior == "" {
		watch.OverlapBehavior = OverlapSkip
	}
	if !IsValidOverlapBehavior(watch.OverlapBehavior) {
		return fmt.Errorf("invalid overlap behavior %q", watch.OverlapBehavior)
	}

	if watch.ID == "" {
		watch.ID = "watch_" + uuid.New().String()[:8]
	}
	now := time.Now()
	watch.CreatedAt = now
	watch.UpdatedAt = now

	// Calculate next run time if not set
	if watch.NextRunAt == nil && watch.Enabled {
		nextRun, err := NextRun(watch.CronExpr, now)
		if err == nil {
			watch.NextRunAt = &nextRun
		}
	}

	_, err := s.db.Exec(`
		INSERT INTO watches (id, name, cron_expr, target, command, powershell, enabled, overlap_behavior,
		                     created_at, updated_at, last_run_at, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		watch.ID, watch.Name, watch.CronExpr, watch.Target, watch.Command,
		watch.Powershell, watch.Enabled, watch.OverlapBehavior,
		watch.CreatedAt, watch.UpdatedAt, watch.LastRunAt, watch.NextRunAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateName, watch.Name)
		}
		return fmt.Errorf("failed to insert watch: %w", err)
	}
	return nil
}

// Get returns a watch by ID
func (s *Store) Get(id string) (*Watch, error) {
	watch, err := scanWatch(s.db.QueryRow(selectColumns+` FROM watches WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrWatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query watch: %w", err)
	}
	return watch, nil
}

// Find resolves a watch by ID first, then by name.
func (s *Store) Find(ref string) (*Watch, error) {
	watch, err := s.Get(ref)
	if err == nil {
		return watch, nil
	}
	if !errors.Is(err, ErrWatchNotFound) {
		return nil, err
	}

	watch, err = scanWatch(s.db.QueryRow(selectColumns+` FROM watches WHERE name = ?`, ref))
	if err == sql.ErrNoRows {
		return nil, ErrWatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query watch: %w", err)
	}
	return watch, nil
}

// List returns all watches, optionally filtered by enabled status
func (s *Store) List(enabled *bool) ([]*Watch, error) {
	query := selectColumns + ` FROM watches`
	args := []any{}
	if enabled != nil {
		query += ` WHERE enabled = ?`
		args = append(args, *enabled)
	}
	query += ` ORDER BY name`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list watches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var watches []*Watch
	for rows.Next() {
		watch, err := scanWatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan watch: %w", err)
		}
		watches = append(watches, watch)
	}
	return watches, rows.Err()
}

// Update applies the non-nil fields of update to a watch
func (s *Store) Update(id string, update *WatchUpdate) error {
	watch, err := s.Get(id)
	if err != nil {
		return err
	}

	if update.Name != nil {
		watch.Name = *update.Name
	}
	if update.CronExpr != nil {
		if err := ValidateCron(*update.CronExpr); err != nil {
			return err
		}
		watch.CronExpr = *update.CronExpr
	}
	if update.Target != nil {
		watch.Target = *update.Target
	}
	if update.Command != nil {
		watch.Command = *update.Command
	}
	if update.Powershell != nil {
		watch.Powershell = *update.Powershell
	}
	if update.Enabled != nil {
		watch.Enabled = *update.Enabled
	}
	if update.OverlapBehavior != nil {
		if !IsValidOverlapBehavior(*update.OverlapBehavior) {
			return fmt.Errorf("invalid overlap behavior %q", *update.OverlapBehavior)
		}
		watch.OverlapBehavior = *update.OverlapBehavior
	}

	// Cron or enablement changes move the next run time.
	watch.NextRunAt = nil
	if watch.Enabled {
		nextRun, err := NextRun(watch.CronExpr, time.Now())
		if err == nil {
			watch.NextRunAt = &nextRun
		}
	}
	watch.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE watches SET name = ?, cron_expr = ?, target = ?, command = ?, powershell = ?,
		                   enabled = ?, overlap_behavior = ?, updated_at = ?, next_run_at = ?
		WHERE id = ?`,
		watch.Name, watch.CronExpr, watch.Target, watch.Command, watch.Powershell,
		watch.Enabled, watch.OverlapBehavior, watch.UpdatedAt, watch.NextRunAt, id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateName, watch.Name)
		}
		return fmt.Errorf("failed to update watch: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrWatchNotFound
	}
	return nil
}

// Delete removes a watch
func (s *Store) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM watches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete watch: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrWatchNotFound
	}
	return nil
}

// ListDue returns enabled watches whose next run time has arrived
func (s *Store) ListDue(now time.Time) ([]*Watch, error) {
	rows, err := s.db.Query(
		selectColumns+` FROM watches WHERE enabled = 1 AND next_run_at IS NOT NULL AND next_run_at <= ?`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due watches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var watches []*Watch
	for rows.Next() {
		watch, err := scanWatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan watch: %w", err)
		}
		watches = append(watches, watch)
	}
	return watches, rows.Err()
}

// UpdateRunTimes records a completed run and schedules the next one
func (s *Store) UpdateRunTimes(id string, lastRun, nextRun time.Time) error {
	result, err := s.db.Exec(
		`UPDATE watches SET last_run_at = ?, next_run_at = ?, updated_at = ? WHERE id = ?`,
		lastRun, nextRun, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update run times: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrWatchNotFound
	}
	return nil
}

const selectColumns = `SELECT id, name, cron_expr, target, command, powershell, enabled, overlap_behavior,
	created_at, updated_at, last_run_at, next_run_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanWatch(row scanner) (*Watch, error) {
	var watch Watch
	var lastRunAt, nextRunAt sql.NullTime
	if err := row.Scan(
		&watch.ID, &watch.Name, &watch.CronExpr, &watch.Target, &watch.Command,
		&watch.Powershell, &watch.Enabled, &watch.OverlapBehavior,
		&watch.CreatedAt, &watch.UpdatedAt, &lastRunAt, &nextRunAt,
	); err != nil {
		return nil, err
	}
	if lastRunAt.Valid {
		watch.LastRunAt = &lastRunAt.Time
	}
	if nextRunAt.Valid {
		watch.NextRunAt = &nextRunAt.Time
	}
	return &watch, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
