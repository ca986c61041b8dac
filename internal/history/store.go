package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"platen/internal/config"
)

// Store wraps the SQLite run history database.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the history database under the configured log
// directory and ensures the schema is current.
func Open(cfg *config.Config) (*Store, error) {
	path := cfg.DatabasePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

const runColumns = "id, kind, label, stage_count, status, exit_code, error_message, " +
	"progress_stage, progress_percent, progress_message, output_dir, " +
	"created_at, updated_at, started_at, finished_at"

// ErrNotFound is returned when no run matches the requested id.
var ErrNotFound = errors.New("run not found")

// Insert stores a new run record.
func (s *Store) Insert(ctx context.Context, run *Run) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs ("+runColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		run.ID,
		string(run.Kind),
		run.Label,
		run.StageCount,
		string(run.Status),
		run.ExitCode,
		nullableString(run.ErrorMessage),
		nullableString(run.ProgressStage),
		run.ProgressPercent,
		nullableString(run.ProgressMessage),
		nullableString(run.OutputDir),
		run.CreatedAt.Format(time.RFC3339Nano),
		run.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(run.StartedAt),
		nullableTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// Update persists every mutable field of the run and refreshes its update
// timestamp.
func (s *Store) Update(ctx context.Context, run *Run) error {
	run.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET kind = ?, label = ?, stage_count = ?, status = ?, exit_code = ?,
			error_message = ?, progress_stage = ?, progress_percent = ?, progress_message = ?,
			output_dir = ?, updated_at = ?, started_at = ?, finished_at = ?
		 WHERE id = ?`,
		string(run.Kind),
		run.Label,
		run.StageCount,
		string(run.Status),
		run.ExitCode,
		nullableString(run.ErrorMessage),
		nullableString(run.ProgressStage),
		run.ProgressPercent,
		nullableString(run.ProgressMessage),
		nullableString(run.OutputDir),
		run.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(run.StartedAt),
		nullableTime(run.FinishedAt),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("update run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

// Get fetches a single run by id.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// List returns runs newest first, optionally filtered by status. A limit of
// zero or less returns every run.
func (s *Store) List(ctx context.Context, limit int, statuses ...Status) ([]*Run, error) {
	query := "SELECT " + runColumns + " FROM runs"
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		query += " WHERE status IN (" + makePlaceholders(len(statuses)) + ")"
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Active returns the most recent run still in a non-terminal state, or nil.
func (s *Store) Active(ctx context.Context) (*Run, error) {
	runs, err := s.List(ctx, 1, StatusPending, StatusRunning)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}

// Stats returns the number of runs per status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM runs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("collect run stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan run stats: %w", err)
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

// ResetAbandoned folds runs left pending or running by a previous daemon
// process into failed so the history never reports a phantom active run.
func (s *Store) ResetAbandoned(ctx context.Context) (int, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error_message = ?, updated_at = ?, finished_at = ?
		 WHERE status IN (?, ?)`,
		string(StatusFailed),
		"daemon stopped while the run was in flight",
		now,
		now,
		string(StatusPending),
		string(StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("reset abandoned runs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset abandoned runs: %w", err)
	}
	return int(affected), nil
}

// Clear deletes terminal runs, keeping anything still pending or running.
// It returns the number of rows removed.
func (s *Store) Clear(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM runs WHERE status IN (?, ?, ?)",
		string(StatusCompleted),
		string(StatusFailed),
		string(StatusCancelled),
	)
	if err != nil {
		return 0, fmt.Errorf("clear runs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear runs: %w", err)
	}
	return int(affected), nil
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run             Run
		kind            string
		status          string
		errorMessage    sql.NullString
		progressStage   sql.NullString
		progressMessage sql.NullString
		outputDir       sql.NullString
		createdAt       string
		updatedAt       string
		startedAt       sql.NullString
		finishedAt      sql.NullString
	)

	if err := scanner.Scan(
		&run.ID,
		&kind,
		&run.Label,
		&run.StageCount,
		&status,
		&run.ExitCode,
		&errorMessage,
		&progressStage,
		&run.ProgressPercent,
		&progressMessage,
		&outputDir,
		&createdAt,
		&updatedAt,
		&startedAt,
		&finishedAt,
	); err != nil {
		return nil, err
	}

	run.Kind = Kind(kind)
	run.Status = Status(status)
	run.ErrorMessage = errorMessage.String
	run.ProgressStage = progressStage.String
	run.ProgressMessage = progressMessage.String
	run.OutputDir = outputDir.String

	var err error
	if run.CreatedAt, err = parseTimeString(createdAt); err != nil {
		return nil, err
	}
	if run.UpdatedAt, err = parseTimeString(updatedAt); err != nil {
		return nil, err
	}
	if startedAt.Valid {
		t, err := parseTimeString(startedAt.String)
		if err != nil {
			return nil, err
		}
		run.StartedAt = &t
	}
	if finishedAt.Valid {
		t, err := parseTimeString(finishedAt.String)
		if err != nil {
			return nil, err
		}
		run.FinishedAt = &t
	}
	return &run, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02 15:04:05", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}

func makePlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
