package domain

import (
	"context"
	"io"
	"time"
)

// StoredObject is one entry of a bucket listing. OriginalFileName is nil when
// the object carries no original-filename metadata.
type StoredObject struct {
	Key              string
	OriginalFileName *string
	Size             int64
	ETag             string
}

// ObjectInfo is returned by object writes.
type ObjectInfo struct {
	ETag string
	Size int64
}

// ObjectStore is the object-storage collaborator.
// Implemented by the backends in internal/objectstore.
type ObjectStore interface {
	ListObjects(ctx context.Context, bucket string) ([]StoredObject, error)
	// CopyObject performs a server-side copy.
	CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (*ObjectInfo, error)
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, originalFileName string) (*ObjectInfo, error)
	CreateBucket(ctx context.Context, name string) error
	// DeleteBucket removes every object and then the bucket. It returns a
	// *NotFoundError when the bucket does not exist.
	DeleteBucket(ctx context.Context, name string) (int, error)
}

// CatalogService is the downstream dataset/datasource catalog collaborator.
// Implemented by catalogclient.Client. The acting identity travels in ctx.
type CatalogService interface {
	CreateDatasource(ctx context.Context, spec DatasourceSpec) (*CreatedResource, error)
	CreateDataset(ctx context.Context, spec DatasetSpec) (*CreatedResource, error)
	GetDatasourceStatus(ctx context.Context, id string) (string, error)
}

// IdentityResolver resolves the caller's identity. Failures are tolerated by
// callers, which fall back to configured defaults.
type IdentityResolver interface {
	CurrentIdentity(ctx context.Context) (Identity, error)
}

// IdentityResolverFunc adapts a function to IdentityResolver.
type IdentityResolverFunc func(ctx context.Context) (Identity, error)

// CurrentIdentity implements IdentityResolver.
func (f IdentityResolverFunc) CurrentIdentity(ctx context.Context) (Identity, error) {
	return f(ctx)
}

// ReconciliationTaskRepository persists reconciliation tasks so pending tasks
// survive a restart.
type ReconciliationTaskRepository interface {
	Create(ctx context.Context, t *ReconciliationTask) error
	ListPending(ctx context.Context) ([]ReconciliationTask, error)
	RecordPoll(ctx context.Context, id string, status string) error
	Complete(ctx context.Context, id string, reason string, at time.Time) error
}

// ReconciliationArmer accepts tasks for background reconciliation.
// Implemented by reconcile.Scheduler.
type ReconciliationArmer interface {
	Arm(ctx context.Context, task ReconciliationTask) error
}
