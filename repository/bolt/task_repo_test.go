package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/tasks/domain"
)

func newTestRepository(t *testing.T) *TaskRepository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "data", "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

// fixedClock returns successive instants one second apart.
func fixedClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		now := current
		current = current.Add(time.Second)
		return now
	}
}

func TestCreateAssignsSequentialIDs(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	first, err := repo.Create(ctx, &domain.Task{Title: "first"})
	require.NoError(t, err)
	second, err := repo.Create(ctx, &domain.Task{Title: "second"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.True(t, first.CreatedAt.Equal(first.UpdatedAt))
	assert.False(t, first.Completed)
	assert.Nil(t, first.Description)
}

func TestListReturnsInsertionOrder(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	tasks, err := repo.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, tasks, "empty list must encode as [] rather than null")
	assert.Empty(t, tasks)

	for _, title := range []string{"a", "b", "c"} {
		_, err := repo.Create(ctx, &domain.Task{Title: title})
		require.NoError(t, err)
	}

	tasks, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "a", tasks[0].Title)
	assert.Equal(t, "c", tasks[2].Title)
}

func TestUpdateAppliesPatch(t *testing.T) {
	repo := newTestRepository(t)
	repo.now = fixedClock(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	desc := "two litres"
	created, err := repo.Create(ctx, &domain.Task{Title: "Buy milk", Description: &desc})
	require.NoError(t, err)

	done := true
	updated, err := repo.Update(ctx, created.ID, domain.TaskPatch{Completed: &done})
	require.NoError(t, err)
	assert.True(t, updated.Completed)
	assert.Equal(t, "Buy milk", updated.Title)
	require.NotNil(t, updated.Description)
	assert.Equal(t, desc, *updated.Description)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
	assert.True(t, updated.CreatedAt.Equal(created.CreatedAt))

	cleared, err := repo.Update(ctx, created.ID, domain.TaskPatch{Description: domain.NullableString{Set: true}})
	require.NoError(t, err)
	assert.Nil(t, cleared.Description)

	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, stored.Completed)
	assert.Nil(t, stored.Description)
	assert.True(t, stored.UpdatedAt.Equal(cleared.UpdatedAt))
}

func TestMissingIDsReturnNotFound(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)

	title := "ghost"
	_, err = repo.Update(ctx, 999, domain.TaskPatch{Title: &title})
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, 999), domain.ErrTaskNotFound)

	_, err = repo.GetByID(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestDeleteRemovesTask(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, &domain.Task{Title: "Delete me"})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, created.ID))

	_, err = repo.GetByID(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)

	next, err := repo.Create(ctx, &domain.Task{Title: "after"})
	require.NoError(t, err)
	assert.Greater(t, next.ID, created.ID, "ids are never reused")
}

func TestPingAndCancelledContext(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.Ping(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, repo.Ping(ctx), context.Canceled)
	_, err := repo.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, repo.Close())
	assert.Error(t, repo.Ping(context.Background()))
}

func TestDataSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")
	repo, err := Open(path)
	require.NoError(t, err)
	_, err = repo.Create(context.Background(), &domain.Task{Title: "persisted"})
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	tasks, err := reopened.List(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "persisted", tasks[0].Title)
}
