package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tunefetch/tunefetch/internal/domain"
	errpkg "github.com/tunefetch/tunefetch/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  artist TEXT NOT NULL,
  title TEXT NOT NULL,
  album TEXT NOT NULL DEFAULT '',
  priority INTEGER NOT NULL,
  state TEXT NOT NULL,
  progress REAL NOT NULL DEFAULT 0,
  resolved_path TEXT NOT NULL DEFAULT '',
  error_reason TEXT NOT NULL DEFAULT '',
  error_message TEXT NOT NULL DEFAULT '',
  retry_count INTEGER NOT NULL DEFAULT 0,
  last_preempted_at TIMESTAMP,
  created_at TIMESTAMP NOT NULL,
  updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_state ON tasks(state);
CREATE INDEX IF NOT EXISTS idx_tasks_pending_order ON tasks(state, priority, created_at);
`

// SQLiteRepo is the durable TaskRepo backed by a local SQLite database.
// Writes to a single task record are serialized by the upsert statement;
// concurrent writers for distinct tasks are safe.
type SQLiteRepo struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteRepo opens (or creates) the database at path and applies the
// schema. Use ":memory:" for tests.
func NewSQLiteRepo(path string, logger *slog.Logger) (*SQLiteRepo, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// A single connection keeps upserts strictly ordered and avoids
	// SQLITE_BUSY under concurrent workers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("task repository initialized", "db_path", path)
	return &SQLiteRepo{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// Save upserts the full task record in a single statement, so priority and
// state are always persisted together.
func (r *SQLiteRepo) Save(ctx context.Context, task *domain.DownloadTask) error {
	query := `
		INSERT INTO tasks (id, artist, title, album, priority, state, progress,
			resolved_path, error_reason, error_message, retry_count,
			last_preempted_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			artist = excluded.artist,
			title = excluded.title,
			album = excluded.album,
			priority = excluded.priority,
			state = excluded.state,
			progress = excluded.progress,
			resolved_path = excluded.resolved_path,
			error_reason = excluded.error_reason,
			error_message = excluded.error_message,
			retry_count = excluded.retry_count,
			last_preempted_at = excluded.last_preempted_at,
			updated_at = excluded.updated_at
	`

	var preempted any
	if !task.LastPreemptedAt.IsZero() {
		preempted = task.LastPreemptedAt.UTC()
	}

	_, err := r.db.ExecContext(ctx, query,
		task.ID,
		task.Artist,
		task.Title,
		task.Album,
		task.Priority,
		string(task.State),
		task.Progress,
		task.ResolvedPath,
		string(task.ErrorReason),
		task.ErrorMessage,
		task.RetryCount,
		preempted,
		task.CreatedAt.UTC(),
		task.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", task.ID, err)
	}

	r.logger.Debug("task saved", "task_id", task.ID, "state", task.State, "priority", task.Priority)
	return nil
}

const selectCols = `id, artist, title, album, priority, state, progress,
	resolved_path, error_reason, error_message, retry_count,
	last_preempted_at, created_at, updated_at`

// Get retrieves a task by ID.
func (r *SQLiteRepo) Get(ctx context.Context, id string) (*domain.DownloadTask, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectCols+` FROM tasks WHERE id = ?`, id)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, errpkg.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return task, nil
}

// Load returns every task in the store, used for startup recovery.
func (r *SQLiteRepo) Load(ctx context.Context) ([]*domain.DownloadTask, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectCols+` FROM tasks ORDER BY priority ASC, created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// QueryPending returns up to limit Pending tasks ordered by
// (priority asc, created_at asc), skipping IDs already held in memory.
func (r *SQLiteRepo) QueryPending(ctx context.Context, limit int, exclude []string) ([]*domain.DownloadTask, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `SELECT ` + selectCols + ` FROM tasks WHERE state = ?`
	args := []any{string(domain.StatePending)}

	if len(exclude) > 0 {
		query += ` AND id NOT IN (?` + strings.Repeat(",?", len(exclude)-1) + `)`
		for _, id := range exclude {
			args = append(args, id)
		}
	}

	query += ` ORDER BY priority ASC, created_at ASC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// CountPending returns the total number of Pending rows.
func (r *SQLiteRepo) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE state = ?`, string(domain.StatePending)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending tasks: %w", err)
	}
	return n, nil
}

// CountByState returns per-state row counts.
func (r *SQLiteRepo) CountByState(ctx context.Context) (map[domain.TaskState]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM tasks GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks by state: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.TaskState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("failed to scan state count: %w", err)
		}
		counts[domain.TaskState(state)] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*domain.DownloadTask, error) {
	var t domain.DownloadTask
	var state, reason string
	var preempted sql.NullTime

	err := s.Scan(
		&t.ID,
		&t.Artist,
		&t.Title,
		&t.Album,
		&t.Priority,
		&state,
		&t.Progress,
		&t.ResolvedPath,
		&reason,
		&t.ErrorMessage,
		&t.RetryCount,
		&preempted,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.State = domain.TaskState(state)
	t.ErrorReason = domain.FailureReason(reason)
	if preempted.Valid {
		t.LastPreemptedAt = preempted.Time
	}
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*domain.DownloadTask, error) {
	var tasks []*domain.DownloadTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

var _ TaskRepo = (*SQLiteRepo)(nil)
