// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"
	"io"
	"sync"
	"time"

	"agent-bff/internal/domain"
)

// === Object Store Mock ===

// MockObjectStore implements domain.ObjectStore for testing.
type MockObjectStore struct {
	ListObjectsFn  func(ctx context.Context, bucket string) ([]domain.StoredObject, error)
	CopyObjectFn   func(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (*domain.ObjectInfo, error)
	PutObjectFn    func(ctx context.Context, bucket, key string, body io.Reader, size int64, originalFileName string) (*domain.ObjectInfo, error)
	CreateBucketFn func(ctx context.Context, name string) error
	DeleteBucketFn func(ctx context.Context, name string) (int, error)

	mu      sync.Mutex
	deleted []string // bucket names passed to DeleteBucket
}

// ListObjects implements the interface method for testing.
func (m *MockObjectStore) ListObjects(ctx context.Context, bucket string) ([]domain.StoredObject, error) {
	if m.ListObjectsFn != nil {
		return m.ListObjectsFn(ctx, bucket)
	}
	panic("unexpected call to MockObjectStore.ListObjects")
}

// CopyObject implements the interface method for testing.
func (m *MockObjectStore) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (*domain.ObjectInfo, error) {
	if m.CopyObjectFn != nil {
		return m.CopyObjectFn(ctx, srcBucket, srcKey, dstBucket, dstKey)
	}
	panic("unexpected call to MockObjectStore.CopyObject")
}

// PutObject implements the interface method for testing.
func (m *MockObjectStore) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, originalFileName string) (*domain.ObjectInfo, error) {
	if m.PutObjectFn != nil {
		return m.PutObjectFn(ctx, bucket, key, body, size, originalFileName)
	}
	panic("unexpected call to MockObjectStore.PutObject")
}

// CreateBucket implements the interface method for testing.
func (m *MockObjectStore) CreateBucket(ctx context.Context, name string) error {
	if m.CreateBucketFn != nil {
		return m.CreateBucketFn(ctx, name)
	}
	panic("unexpected call to MockObjectStore.CreateBucket")
}

// DeleteBucket implements the interface method for testing. Every call is
// recorded, successful or not.
func (m *MockObjectStore) DeleteBucket(ctx context.Context, name string) (int, error) {
	m.mu.Lock()
	m.deleted = append(m.deleted, name)
	m.mu.Unlock()
	if m.DeleteBucketFn != nil {
		return m.DeleteBucketFn(ctx, name)
	}
	panic("unexpected call to MockObjectStore.DeleteBucket")
}

// DeletedBuckets returns the bucket names passed to DeleteBucket, in call order.
func (m *MockObjectStore) DeletedBuckets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

var _ domain.ObjectStore = (*MockObjectStore)(nil)

// === Catalog Service Mock ===

// MockCatalogService implements domain.CatalogService for testing.
type MockCatalogService struct {
	CreateDatasourceFn    func(ctx context.Context, spec domain.DatasourceSpec) (*domain.CreatedResource, error)
	CreateDatasetFn       func(ctx context.Context, spec domain.DatasetSpec) (*domain.CreatedResource, error)
	GetDatasourceStatusFn func(ctx context.Context, id string) (string, error)
}

// CreateDatasource implements the interface method for testing.
func (m *MockCatalogService) CreateDatasource(ctx context.Context, spec domain.DatasourceSpec) (*domain.CreatedResource, error) {
	if m.CreateDatasourceFn != nil {
		return m.CreateDatasourceFn(ctx, spec)
	}
	panic("unexpected call to MockCatalogService.CreateDatasource")
}

// CreateDataset implements the interface method for testing.
func (m *MockCatalogService) CreateDataset(ctx context.Context, spec domain.DatasetSpec) (*domain.CreatedResource, error) {
	if m.CreateDatasetFn != nil {
		return m.CreateDatasetFn(ctx, spec)
	}
	panic("unexpected call to MockCatalogService.CreateDataset")
}

// GetDatasourceStatus implements the interface method for testing.
func (m *MockCatalogService) GetDatasourceStatus(ctx context.Context, id string) (string, error) {
	if m.GetDatasourceStatusFn != nil {
		return m.GetDatasourceStatusFn(ctx, id)
	}
	panic("unexpected call to MockCatalogService.GetDatasourceStatus")
}

var _ domain.CatalogService = (*MockCatalogService)(nil)

// === Reconciliation Task Repository Mock ===

// MockTaskRepo implements domain.ReconciliationTaskRepository for testing.
// Unset function fields fall back to no-ops so the scheduler can run without
// persistence wiring.
type MockTaskRepo struct {
	CreateFn      func(ctx context.Context, t *domain.ReconciliationTask) error
	ListPendingFn func(ctx context.Context) ([]domain.ReconciliationTask, error)
	RecordPollFn  func(ctx context.Context, id string, status string) error
	CompleteFn    func(ctx context.Context, id string, reason string, at time.Time) error

	mu        sync.Mutex
	completed map[string]string // id -> reason
}

// Create implements the interface method for testing.
func (m *MockTaskRepo) Create(ctx context.Context, t *domain.ReconciliationTask) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, t)
	}
	return nil
}

// ListPending implements the interface method for testing.
func (m *MockTaskRepo) ListPending(ctx context.Context) ([]domain.ReconciliationTask, error) {
	if m.ListPendingFn != nil {
		return m.ListPendingFn(ctx)
	}
	return nil, nil
}

// RecordPoll implements the interface method for testing.
func (m *MockTaskRepo) RecordPoll(ctx context.Context, id string, status string) error {
	if m.RecordPollFn != nil {
		return m.RecordPollFn(ctx, id, status)
	}
	return nil
}

// Complete implements the interface method for testing.
func (m *MockTaskRepo) Complete(ctx context.Context, id string, reason string, at time.Time) error {
	m.mu.Lock()
	if m.completed == nil {
		m.completed = make(map[string]string)
	}
	m.completed[id] = reason
	m.mu.Unlock()
	if m.CompleteFn != nil {
		return m.CompleteFn(ctx, id, reason, at)
	}
	return nil
}

// CompletionReason returns the reason recorded for id, if any.
func (m *MockTaskRepo) CompletionReason(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.completed[id]
	return r, ok
}

var _ domain.ReconciliationTaskRepository = (*MockTaskRepo)(nil)

// === Reconciliation Armer Mock ===

// MockArmer implements domain.ReconciliationArmer for testing.
type MockArmer struct {
	ArmFn func(ctx context.Context, task domain.ReconciliationTask) error

	mu    sync.Mutex
	Armed []domain.ReconciliationTask
}

// Arm implements the interface method for testing.
func (m *MockArmer) Arm(ctx context.Context, task domain.ReconciliationTask) error {
	if m.ArmFn != nil {
		if err := m.ArmFn(ctx, task); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.Armed = append(m.Armed, task)
	m.mu.Unlock()
	return nil
}

var _ domain.ReconciliationArmer = (*MockArmer)(nil)
