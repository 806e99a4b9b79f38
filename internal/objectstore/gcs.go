package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"agent-bff/internal/config"
	"agent-bff/internal/domain"
)

// GCSStore implements domain.ObjectStore for Google Cloud Storage.
type GCSStore struct {
	client    *storage.Client
	projectID string
}

// NewGCSStore creates a GCSStore. Without GCS_KEY_FILE, application default
// credentials are used.
func NewGCSStore(ctx context.Context, cfg config.StorageConfig) (*GCSStore, error) {
	if cfg.GCSProjectID == "" {
		return nil, fmt.Errorf("gcs project id is required")
	}
	var opts []option.ClientOption
	if cfg.GCSKeyFile != "" {
		opts = append(opts, option.WithAuthCredentialsFile(option.ServiceAccount, cfg.GCSKeyFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSStore{client: client, projectID: cfg.GCSProjectID}, nil
}

// ListObjects lists every object in bucket with its metadata.
func (g *GCSStore) ListObjects(ctx context.Context, bucket string) ([]domain.StoredObject, error) {
	var out []domain.StoredObject
	it := g.client.Bucket(bucket).Objects(ctx, nil)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classifyGCSError("list objects", bucket, "", err)
		}
		out = append(out, domain.StoredObject{
			Key:              attrs.Name,
			Size:             attrs.Size,
			ETag:             attrs.Etag,
			OriginalFileName: OriginalFileName(attrs.Metadata),
		})
	}
	return out, nil
}

// CopyObject performs a server-side rewrite; metadata is copied with it.
func (g *GCSStore) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (*domain.ObjectInfo, error) {
	src := g.client.Bucket(srcBucket).Object(srcKey)
	dst := g.client.Bucket(dstBucket).Object(dstKey)
	attrs, err := dst.CopierFrom(src).Run(ctx)
	if err != nil {
		return nil, classifyGCSError("copy object", srcBucket, srcKey, err)
	}
	return &domain.ObjectInfo{ETag: attrs.Etag, Size: attrs.Size}, nil
}

// PutObject uploads body with the original file name as metadata.
func (g *GCSStore) PutObject(ctx context.Context, bucket, key string, body io.Reader, _ int64, originalFileName string) (*domain.ObjectInfo, error) {
	w := g.client.Bucket(bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if originalFileName != "" {
		w.Metadata = map[string]string{MetaOriginalFileName: encodeMetaValue(originalFileName)}
	}
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return nil, classifyGCSError("put object", bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return nil, classifyGCSError("put object", bucket, key, err)
	}
	attrs := w.Attrs()
	return &domain.ObjectInfo{ETag: attrs.Etag, Size: attrs.Size}, nil
}

// CreateBucket creates a bucket in the configured project.
func (g *GCSStore) CreateBucket(ctx context.Context, name string) error {
	if err := g.client.Bucket(name).Create(ctx, g.projectID, nil); err != nil {
		return classifyGCSError("create bucket", name, "", err)
	}
	return nil
}

// DeleteBucket deletes every object and then the bucket.
func (g *GCSStore) DeleteBucket(ctx context.Context, name string) (int, error) {
	bucket := g.client.Bucket(name)
	deleted := 0
	it := bucket.Objects(ctx, nil)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return deleted, classifyGCSError("list objects", name, "", err)
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return deleted, classifyGCSError("delete object", name, attrs.Name, err)
		}
		deleted++
	}
	if err := bucket.Delete(ctx); err != nil {
		return deleted, classifyGCSError("delete bucket", name, "", err)
	}
	return deleted, nil
}

// classifyGCSError maps GCS errors to domain errors.
func classifyGCSError(op, bucket, key string, err error) error {
	switch {
	case errors.Is(err, storage.ErrBucketNotExist):
		return bucketNotFound(bucket)
	case errors.Is(err, storage.ErrObjectNotExist):
		return objectNotFound(bucket, key)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == 404 {
			if key == "" {
				return bucketNotFound(bucket)
			}
			return objectNotFound(bucket, key)
		}
		return externalError(op, gerr.Code, err)
	}
	return externalError(op, 0, err)
}

var _ domain.ObjectStore = (*GCSStore)(nil)
