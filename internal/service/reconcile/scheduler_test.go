package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-bff/internal/domain"
	"agent-bff/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeBuckets records DeleteBucket calls.
type fakeBuckets struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (f *fakeBuckets) DeleteBucket(_ context.Context, name string) (*domain.DeleteBucketResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.DeleteBucketResult{Bucket: name, Existed: true, DeletedObjectCount: 2}, nil
}

func (f *fakeBuckets) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// statusSequence returns each status in turn, repeating the last one.
func statusSequence(statuses ...string) (*testutil.MockCatalogService, *[]domain.Identity) {
	var mu sync.Mutex
	var seen []domain.Identity
	i := 0
	return &testutil.MockCatalogService{
		GetDatasourceStatusFn: func(ctx context.Context, _ string) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			id, _ := domain.IdentityFromContext(ctx)
			seen = append(seen, id)
			s := statuses[min(i, len(statuses)-1)]
			i++
			return s, nil
		},
	}, &seen
}

func newTask(id string) domain.ReconciliationTask {
	return domain.ReconciliationTask{
		ID:             id,
		ResourceID:     "ds-" + id,
		TempBucketName: "tmp-" + id,
		ActingIdentity: domain.Identity{UserID: "alice", ProjectID: "proj-1"},
	}
}

func TestScheduler_PollsUntilTerminal(t *testing.T) {
	t.Parallel()

	catalog, seen := statusSequence("preparing", "preparing", "ready")
	buckets := &fakeBuckets{}
	repo := &testutil.MockTaskRepo{}
	var polls []string
	repo.RecordPollFn = func(_ context.Context, _ string, status string) error {
		polls = append(polls, status)
		return nil
	}
	s := NewScheduler(catalog, buckets, repo, Options{}, discardLogger())
	ctx := context.Background()

	require.NoError(t, s.Arm(ctx, newTask("t1")))
	require.Len(t, s.Pending(), 1)

	assert.False(t, s.tick(ctx, "t1"))
	assert.Empty(t, buckets.Deleted(), "no-op tick 1")
	assert.False(t, s.tick(ctx, "t1"))
	assert.Empty(t, buckets.Deleted(), "no-op tick 2")
	assert.Equal(t, domain.ReconciliationPolling, s.Pending()[0].State)
	assert.Equal(t, 2, s.Pending()[0].Polls)
	assert.Equal(t, "preparing", s.Pending()[0].LastStatus)

	assert.True(t, s.tick(ctx, "t1"))
	assert.Equal(t, []string{"tmp-t1"}, buckets.Deleted(), "deleted only after the third poll")
	assert.Equal(t, []string{"preparing", "preparing"}, polls)

	reason, ok := repo.CompletionReason("t1")
	require.True(t, ok)
	assert.Equal(t, "terminal:ready", reason)
	assert.Empty(t, s.Pending())
	assert.Empty(t, s.entries)

	// A completed task is never polled again.
	assert.False(t, s.tick(ctx, "t1"))
	assert.Len(t, *seen, 3)
	assert.Len(t, buckets.Deleted(), 1)

	for _, id := range *seen {
		assert.Equal(t, domain.Identity{UserID: "alice", ProjectID: "proj-1"}, id, "polls impersonate the acting identity")
	}
}

func TestScheduler_StatusErrorIsTerminal(t *testing.T) {
	t.Parallel()

	catalog := &testutil.MockCatalogService{
		GetDatasourceStatusFn: func(context.Context, string) (string, error) {
			return "", domain.ErrExternal(domain.ServiceCatalog, "get datasource", 404, errors.New("gone"))
		},
	}
	buckets := &fakeBuckets{}
	repo := &testutil.MockTaskRepo{}
	s := NewScheduler(catalog, buckets, repo, Options{}, discardLogger())

	require.NoError(t, s.Arm(context.Background(), newTask("t1")))
	assert.True(t, s.tick(context.Background(), "t1"))

	assert.Equal(t, []string{"tmp-t1"}, buckets.Deleted())
	reason, _ := repo.CompletionReason("t1")
	assert.Equal(t, domain.CompletionStatusError, reason)
	assert.Empty(t, s.Pending())
}

func TestScheduler_DeleteFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	catalog, _ := statusSequence("failed")
	buckets := &fakeBuckets{err: errors.New("object store down")}
	s := NewScheduler(catalog, buckets, nil, Options{}, discardLogger())

	require.NoError(t, s.Arm(context.Background(), newTask("t1")))
	assert.True(t, s.tick(context.Background(), "t1"))
	assert.False(t, s.tick(context.Background(), "t1"))
	assert.Len(t, buckets.Deleted(), 1)
}

func TestScheduler_MaxAgeExpires(t *testing.T) {
	t.Parallel()

	catalog, seen := statusSequence("preparing")
	buckets := &fakeBuckets{}
	repo := &testutil.MockTaskRepo{}
	s := NewScheduler(catalog, buckets, repo, Options{Interval: time.Minute, MaxAge: time.Hour}, discardLogger())

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	require.NoError(t, s.Arm(context.Background(), newTask("t1")))

	assert.False(t, s.tick(context.Background(), "t1"))
	now = now.Add(61 * time.Minute)
	assert.True(t, s.tick(context.Background(), "t1"))

	assert.Len(t, *seen, 1, "expired task is not polled")
	assert.Equal(t, []string{"tmp-t1"}, buckets.Deleted())
	reason, _ := repo.CompletionReason("t1")
	assert.Equal(t, domain.CompletionExpired, reason)
}

func TestScheduler_ArmPersistenceFailureStillSchedules(t *testing.T) {
	t.Parallel()

	repo := &testutil.MockTaskRepo{
		CreateFn: func(context.Context, *domain.ReconciliationTask) error { return errors.New("disk full") },
	}
	s := NewScheduler(&testutil.MockCatalogService{}, &fakeBuckets{}, repo, Options{}, discardLogger())

	task := newTask("")
	require.NoError(t, s.Arm(context.Background(), task))
	pending := s.Pending()
	require.Len(t, pending, 1)
	assert.NotEmpty(t, pending[0].ID)
	assert.False(t, pending[0].CreatedAt.IsZero())
	assert.Equal(t, domain.ReconciliationScheduled, pending[0].State)
}

func TestScheduler_Start(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		pending   []domain.ReconciliationTask
		repoErr   error
		wantErr   bool
		wantCount int
	}{
		{
			name:      "re-arms persisted tasks",
			pending:   []domain.ReconciliationTask{newTask("a"), newTask("b")},
			wantCount: 2,
		},
		{
			name:      "empty repo succeeds",
			wantCount: 0,
		},
		{
			name:    "repo error propagates",
			repoErr: errors.New("connection refused"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := &testutil.MockTaskRepo{
				ListPendingFn: func(context.Context) ([]domain.ReconciliationTask, error) {
					return tt.pending, tt.repoErr
				},
			}
			s := NewScheduler(&testutil.MockCatalogService{}, &fakeBuckets{}, repo, Options{Interval: time.Hour}, discardLogger())
			t.Cleanup(s.Stop)

			err := s.Start(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, s.entries, tt.wantCount)
			assert.Len(t, s.Pending(), tt.wantCount)
		})
	}
}

func TestScheduler_CronDrivesTicks(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	catalog := &testutil.MockCatalogService{
		GetDatasourceStatusFn: func(context.Context, string) (string, error) {
			if calls.Add(1) < 2 {
				return "preparing", nil
			}
			return "ready", nil
		},
	}
	buckets := &fakeBuckets{}
	s := NewScheduler(catalog, buckets, nil, Options{Interval: time.Second, MaxAge: time.Hour}, discardLogger())
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	require.NoError(t, s.Arm(context.Background(), newTask("live")))

	require.Eventually(t, func() bool {
		return len(buckets.Deleted()) == 1
	}, 10*time.Second, 50*time.Millisecond)
	assert.Empty(t, s.Pending())
	assert.Equal(t, int32(2), calls.Load())
}

func TestScheduler_ArmRejectsIncompleteTask(t *testing.T) {
	t.Parallel()

	s := NewScheduler(&testutil.MockCatalogService{}, &fakeBuckets{}, nil, Options{}, discardLogger())
	err := s.Arm(context.Background(), domain.ReconciliationTask{ResourceID: "ds-1"})
	var valErr *domain.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Empty(t, s.Pending())
}
