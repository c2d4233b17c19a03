package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/tunefetch/tunefetch/internal/domain"
	"github.com/tunefetch/tunefetch/internal/repository"
)

// Buffer is the lazy hydration buffer: a bounded in-memory working set of
// Pending tasks kept sorted by (priority asc, createdAt asc) and refilled
// from the repository on demand. It is a cache, never a source of truth; it
// can always be reconstructed from the store.
type Buffer struct {
	repo      repository.TaskRepo
	size      int
	threshold int
	logger    *slog.Logger

	mu    sync.Mutex
	tasks []*domain.DownloadTask
	index map[string]*domain.DownloadTask
}

// NewBuffer creates a buffer capped at size that refills whenever its pending
// count drops below threshold.
func NewBuffer(repo repository.TaskRepo, size, threshold int, logger *slog.Logger) *Buffer {
	return &Buffer{
		repo:      repo,
		size:      size,
		threshold: threshold,
		logger:    logger,
		index:     make(map[string]*domain.DownloadTask),
	}
}

// Add inserts a Pending task into the working set, keeping sort order. When
// the buffer is full the lowest-priority newest task is evicted; an evicted
// task is not lost, it surfaces again on a later refill. Duplicate IDs are
// ignored.
func (b *Buffer) Add(task *domain.DownloadTask) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.index[task.ID]; ok {
		return false
	}

	b.tasks = append(b.tasks, task)
	b.index[task.ID] = task
	b.sortLocked()

	if len(b.tasks) > b.size {
		evicted := b.tasks[len(b.tasks)-1]
		if evicted.ID == task.ID {
			b.tasks = b.tasks[:len(b.tasks)-1]
			delete(b.index, evicted.ID)
			return false
		}
		b.tasks = b.tasks[:len(b.tasks)-1]
		delete(b.index, evicted.ID)
		b.logger.Debug("working set full, task deferred to storage", "task_id", evicted.ID)
	}
	return true
}

func (b *Buffer) sortLocked() {
	sort.SliceStable(b.tasks, func(i, j int) bool {
		if b.tasks[i].Priority != b.tasks[j].Priority {
			return b.tasks[i].Priority < b.tasks[j].Priority
		}
		return b.tasks[i].CreatedAt.Before(b.tasks[j].CreatedAt)
	})
}

// Take removes and returns the task with the given ID, claiming it for a
// worker. Returns nil if the task is not hydrated.
func (b *Buffer) Take(id string) *domain.DownloadTask {
	b.mu.Lock()
	defer b.mu.Unlock()

	task, ok := b.index[id]
	if !ok {
		return nil
	}
	delete(b.index, id)
	for i, t := range b.tasks {
		if t.ID == id {
			b.tasks = append(b.tasks[:i], b.tasks[i+1:]...)
			break
		}
	}
	return task
}

// Remove discards the task with the given ID, if hydrated.
func (b *Buffer) Remove(id string) bool {
	return b.Take(id) != nil
}

// Get returns the hydrated task with the given ID, or nil.
func (b *Buffer) Get(id string) *domain.DownloadTask {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index[id]
}

// NextForLane returns the oldest Pending task whose priority maps onto the
// given lane index, without removing it.
func (b *Buffer) NextForLane(lanes []domain.Lane, lane int) *domain.DownloadTask {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, t := range b.tasks {
		if domain.LaneForPriority(lanes, t.Priority) == lane {
			return t
		}
	}
	return nil
}

// Len returns the number of hydrated tasks.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tasks)
}

// Refill tops the working set up from storage when the hydrated count has
// dropped below the refill threshold. claimed lists task IDs currently owned
// by active workers: they must be excluded alongside the hydrated IDs,
// because the store may still report them Pending before the worker's first
// write lands. It returns how many tasks were added. An empty buffer with an
// exhausted store refills zero tasks, which is the true idle signal; an
// empty buffer alone is not.
func (b *Buffer) Refill(ctx context.Context, claimed ...string) (int, error) {
	b.mu.Lock()
	current := len(b.tasks)
	if current >= b.threshold {
		b.mu.Unlock()
		return 0, nil
	}
	exclude := make([]string, 0, current+len(claimed))
	for id := range b.index {
		exclude = append(exclude, id)
	}
	exclude = append(exclude, claimed...)
	want := b.size - current
	b.mu.Unlock()

	// Query outside the lock; the store is slower than the working set.
	tasks, err := b.repo.QueryPending(ctx, want, exclude)
	if err != nil {
		return 0, fmt.Errorf("failed to refill working set: %w", err)
	}

	added := 0
	for _, t := range tasks {
		if b.Add(t) {
			added++
		}
	}

	if added > 0 {
		b.logger.Debug("working set refilled", "added", added, "hydrated", b.Len())
	}
	return added, nil
}

// Snapshot returns clones of all hydrated tasks in scheduling order.
func (b *Buffer) Snapshot() []*domain.DownloadTask {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*domain.DownloadTask, len(b.tasks))
	for i, t := range b.tasks {
		out[i] = t.Clone()
	}
	return out
}
