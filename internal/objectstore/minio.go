package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	"agent-bff/internal/config"
	"agent-bff/internal/domain"
)

// MinIOStore implements domain.ObjectStore with the minio-go SDK.
type MinIOStore struct {
	client *minio.Client
}

// NewMinIOStore creates a MinIOStore. MINIO_ENDPOINT may be a bare host:port or
// a URL; an https scheme forces TLS.
func NewMinIOStore(cfg config.StorageConfig) (*MinIOStore, error) {
	if cfg.MinIOEndpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.MinIOAccessKey == "" || cfg.MinIOSecretKey == "" {
		return nil, fmt.Errorf("minio credentials are required")
	}

	endpoint := cfg.MinIOEndpoint
	useSSL := cfg.MinIOUseSSL
	if u, err := url.Parse(cfg.MinIOEndpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  miniocreds.NewStaticV4(cfg.MinIOAccessKey, cfg.MinIOSecretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinIOStore{client: client}, nil
}

// ListObjects lists bucket recursively, including user metadata.
func (m *MinIOStore) ListObjects(ctx context.Context, bucket string) ([]domain.StoredObject, error) {
	var out []domain.StoredObject
	for obj := range m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Recursive:    true,
		WithMetadata: true,
	}) {
		if obj.Err != nil {
			return nil, classifyMinioError("list objects", bucket, "", obj.Err)
		}
		out = append(out, domain.StoredObject{
			Key:              obj.Key,
			Size:             obj.Size,
			ETag:             obj.ETag,
			OriginalFileName: OriginalFileName(obj.UserMetadata),
		})
	}
	return out, nil
}

// CopyObject performs a server-side copy.
func (m *MinIOStore) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (*domain.ObjectInfo, error) {
	info, err := m.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: dstBucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: srcBucket, Object: srcKey},
	)
	if err != nil {
		return nil, classifyMinioError("copy object", srcBucket, srcKey, err)
	}
	return &domain.ObjectInfo{ETag: info.ETag, Size: info.Size}, nil
}

// PutObject uploads body with the original file name as user metadata.
func (m *MinIOStore) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, originalFileName string) (*domain.ObjectInfo, error) {
	opts := minio.PutObjectOptions{ContentType: "application/octet-stream"}
	if originalFileName != "" {
		opts.UserMetadata = map[string]string{MetaOriginalFileName: encodeMetaValue(originalFileName)}
	}
	info, err := m.client.PutObject(ctx, bucket, key, body, size, opts)
	if err != nil {
		return nil, classifyMinioError("put object", bucket, key, err)
	}
	return &domain.ObjectInfo{ETag: info.ETag, Size: info.Size}, nil
}

// CreateBucket creates a bucket.
func (m *MinIOStore) CreateBucket(ctx context.Context, name string) error {
	if err := m.client.MakeBucket(ctx, name, minio.MakeBucketOptions{}); err != nil {
		return classifyMinioError("create bucket", name, "", err)
	}
	return nil
}

// DeleteBucket removes every object and then the bucket.
func (m *MinIOStore) DeleteBucket(ctx context.Context, name string) (int, error) {
	exists, err := m.client.BucketExists(ctx, name)
	if err != nil {
		return 0, classifyMinioError("delete bucket", name, "", err)
	}
	if !exists {
		return 0, bucketNotFound(name)
	}

	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	listed := m.client.ListObjects(listCtx, name, minio.ListObjectsOptions{Recursive: true})

	var listErr error
	count := 0
	toDelete := make(chan minio.ObjectInfo)
	go func() {
		defer close(toDelete)
		for obj := range listed {
			if obj.Err != nil {
				listErr = obj.Err
				return
			}
			select {
			case toDelete <- obj:
				count++
			case <-listCtx.Done():
				return
			}
		}
	}()

	var firstErr error
	failed := 0
	for rerr := range m.client.RemoveObjects(ctx, name, toDelete, minio.RemoveObjectsOptions{}) {
		failed++
		if firstErr == nil {
			firstErr = rerr.Err
		}
	}
	if listErr != nil {
		return count - failed, classifyMinioError("list objects", name, "", listErr)
	}
	if firstErr != nil {
		return count - failed, classifyMinioError("delete objects", name, "", firstErr)
	}

	if err := m.client.RemoveBucket(ctx, name); err != nil {
		return count, classifyMinioError("delete bucket", name, "", err)
	}
	return count, nil
}

// classifyMinioError converts minio-go errors to domain errors.
func classifyMinioError(op, bucket, key string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchBucket":
		return bucketNotFound(bucket)
	case "NoSuchKey":
		return objectNotFound(bucket, key)
	}
	return externalError(op, resp.StatusCode, err)
}

var _ domain.ObjectStore = (*MinIOStore)(nil)
