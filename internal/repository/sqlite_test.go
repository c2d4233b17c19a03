package repository

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunefetch/tunefetch/internal/domain"
	errpkg "github.com/tunefetch/tunefetch/internal/errors"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRepo(t *testing.T) *SQLiteRepo {
	t.Helper()
	repo, err := NewSQLiteRepo(":memory:", newTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepo_SaveAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	task := domain.NewTask("Boards of Canada", "Roygbiv", "Music Has the Right", domain.PriorityExpress)
	task.RetryCount = 1

	require.NoError(t, repo.Save(ctx, task))

	got, err := repo.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, "Boards of Canada", got.Artist)
	assert.Equal(t, domain.PriorityExpress, got.Priority)
	assert.Equal(t, domain.StatePending, got.State)
	assert.Equal(t, 1, got.RetryCount)
	assert.True(t, got.LastPreemptedAt.IsZero())
}

func TestSQLiteRepo_GetMissing(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Get(context.Background(), "nope|nope")
	assert.ErrorIs(t, err, errpkg.ErrTaskNotFound)
}

func TestSQLiteRepo_UpsertKeepsStateAndPriorityTogether(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	task := domain.NewTask("a", "t", "", domain.PriorityBackground)
	require.NoError(t, repo.Save(ctx, task))

	task.Priority = domain.PriorityExpress
	require.NoError(t, task.Transition(domain.StateSearching))
	require.NoError(t, repo.Save(ctx, task))

	got, err := repo.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityExpress, got.Priority)
	assert.Equal(t, domain.StateSearching, got.State)
}

func TestSQLiteRepo_QueryPendingOrderAndLimit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		task := domain.NewTask("artist", fmt.Sprintf("standard %d", i), "", domain.PriorityStandard)
		task.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Save(ctx, task))
	}
	express := domain.NewTask("artist", "express late", "", domain.PriorityExpress)
	express.CreatedAt = base.Add(30 * time.Minute)
	require.NoError(t, repo.Save(ctx, express))

	done := domain.NewTask("artist", "already finished", "", domain.PriorityExpress)
	done.State = domain.StateCompleted
	require.NoError(t, repo.Save(ctx, done))

	got, err := repo.QueryPending(ctx, 3, nil)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Express first despite a later creation time, then standard FIFO.
	assert.Equal(t, express.ID, got[0].ID)
	assert.Equal(t, "standard 0", got[1].Title)
	assert.Equal(t, "standard 1", got[2].Title)
}

func TestSQLiteRepo_QueryPendingExcludes(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t1 := domain.NewTask("a", "one", "", domain.PriorityStandard)
	t2 := domain.NewTask("a", "two", "", domain.PriorityStandard)
	t2.CreatedAt = t1.CreatedAt.Add(time.Second)
	require.NoError(t, repo.Save(ctx, t1))
	require.NoError(t, repo.Save(ctx, t2))

	got, err := repo.QueryPending(ctx, 10, []string{t1.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, t2.ID, got[0].ID)
}

func TestSQLiteRepo_CountByState(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p := domain.NewTask("a", "p", "", domain.PriorityStandard)
	require.NoError(t, repo.Save(ctx, p))

	f := domain.NewTask("a", "f", "", domain.PriorityStandard)
	f.Fail(domain.ReasonNoSearchResults, "nothing")
	require.NoError(t, repo.Save(ctx, f))

	counts, err := repo.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.StatePending])
	assert.Equal(t, 1, counts[domain.StateFailed])

	pending, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestSQLiteRepo_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	ctx := context.Background()

	repo, err := NewSQLiteRepo(path, newTestLogger())
	require.NoError(t, err)

	task := domain.NewTask("Plaid", "Eyen", "", domain.PriorityExpress)
	require.NoError(t, task.Transition(domain.StateSearching))
	require.NoError(t, task.Transition(domain.StateDownloading))
	task.Progress = 0.6
	require.NoError(t, repo.Save(ctx, task))
	require.NoError(t, repo.Close())

	reopened, err := NewSQLiteRepo(path, newTestLogger())
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityExpress, got.Priority)
	assert.Equal(t, domain.StateDownloading, got.State)
	assert.InDelta(t, 0.6, got.Progress, 0.001)
}
