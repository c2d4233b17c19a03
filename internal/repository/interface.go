package repository

import (
	"context"

	"github.com/tunefetch/tunefetch/internal/domain"
)

// TaskRepo defines the interface for durable task storage. Implementations
// must support atomic single-record upsert: state and priority always land in
// the same write.
type TaskRepo interface {
	// Save upserts the full task record.
	Save(ctx context.Context, task *domain.DownloadTask) error
	// Get retrieves a task by ID; returns errors.ErrTaskNotFound if absent.
	Get(ctx context.Context, id string) (*domain.DownloadTask, error)
	// Load returns every task in the store.
	Load(ctx context.Context) ([]*domain.DownloadTask, error)
	// QueryPending returns up to limit Pending tasks ordered by
	// (priority asc, created_at asc), skipping the excluded IDs.
	QueryPending(ctx context.Context, limit int, exclude []string) ([]*domain.DownloadTask, error)
	// CountPending returns the total number of Pending rows.
	CountPending(ctx context.Context) (int, error)
	// CountByState returns per-state row counts.
	CountByState(ctx context.Context) (map[domain.TaskState]int, error)
}
