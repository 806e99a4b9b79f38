package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "agent-bff/internal/db"
	"agent-bff/internal/domain"
)

func setupTaskRepo(t *testing.T) *ReconciliationTaskRepo {
	t.Helper()
	return NewReconciliationTaskRepo(internaldb.OpenTestSQLite(t))
}

func newTask(id, bucket string, created time.Time) *domain.ReconciliationTask {
	return &domain.ReconciliationTask{
		ID:             id,
		ResourceID:     "ds-" + id,
		TempBucketName: bucket,
		ActingIdentity: domain.Identity{UserID: "alice", ProjectID: "p1"},
		CreatedAt:      created,
	}
}

func TestReconciliationTaskRepo_Lifecycle(t *testing.T) {
	repo := setupTaskRepo(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, newTask("t1", "tmp-a", created)))

	got, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReconciliationScheduled, got.State)
	assert.Equal(t, "alice", got.ActingIdentity.UserID)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, repo.RecordPoll(ctx, "t1", "preparing"))
	require.NoError(t, repo.RecordPoll(ctx, "t1", "preparing"))
	got, err = repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReconciliationPolling, got.State)
	assert.Equal(t, 2, got.Polls)
	assert.Equal(t, "preparing", got.LastStatus)

	done := created.Add(time.Minute)
	require.NoError(t, repo.Complete(ctx, "t1", "terminal:ready", done))
	got, err = repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReconciliationCompleted, got.State)
	assert.Equal(t, "terminal:ready", got.Reason)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, done.Equal(*got.CompletedAt))

	// Completed tasks cannot be touched again.
	var nf *domain.NotFoundError
	assert.ErrorAs(t, repo.Complete(ctx, "t1", "expired", done), &nf)
	assert.ErrorAs(t, repo.RecordPoll(ctx, "t1", "ready"), &nf)
}

func TestReconciliationTaskRepo_ListPending(t *testing.T) {
	repo := setupTaskRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, newTask("late", "tmp-b", base.Add(time.Hour))))
	require.NoError(t, repo.Create(ctx, newTask("early", "tmp-a", base)))
	require.NoError(t, repo.Create(ctx, newTask("done", "tmp-c", base)))
	require.NoError(t, repo.Complete(ctx, "done", "expired", base))

	pending, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "early", pending[0].ID)
	assert.Equal(t, "late", pending[1].ID)
}

func TestReconciliationTaskRepo_OneOpenTaskPerBucket(t *testing.T) {
	repo := setupTaskRepo(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Create(ctx, newTask("t1", "tmp-a", now)))
	var conflict *domain.ConflictError
	require.ErrorAs(t, repo.Create(ctx, newTask("t2", "tmp-a", now)), &conflict)

	require.NoError(t, repo.Complete(ctx, "t1", "status-error", now))
	assert.NoError(t, repo.Create(ctx, newTask("t3", "tmp-a", now)))
}

func TestReconciliationTaskRepo_GetMissing(t *testing.T) {
	repo := setupTaskRepo(t)

	_, err := repo.Get(context.Background(), "nope")
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}
