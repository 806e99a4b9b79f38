package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"agent-bff/internal/config"
	"agent-bff/internal/domain"
)

// AzureStore implements domain.ObjectStore for Azure Blob Storage. Buckets map
// to containers.
type AzureStore struct {
	client *azblob.Client
}

// NewAzureStore creates an AzureStore authenticated with the account key.
func NewAzureStore(cfg config.StorageConfig) (*AzureStore, error) {
	if cfg.AzureAccountName == "" || cfg.AzureAccountKey == "" {
		return nil, fmt.Errorf("Azure account name and key are required")
	}
	cred, err := azblob.NewSharedKeyCredential(cfg.AzureAccountName, cfg.AzureAccountKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AzureAccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}
	return &AzureStore{client: client}, nil
}

// ListObjects lists every blob in the container, including metadata.
func (a *AzureStore) ListObjects(ctx context.Context, bucket string) ([]domain.StoredObject, error) {
	var out []domain.StoredObject
	pager := a.client.NewListBlobsFlatPager(bucket, &azblob.ListBlobsFlatOptions{
		Include: azblob.ListBlobsInclude{Metadata: true},
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classifyAzureError("list objects", bucket, "", err)
		}
		for _, item := range page.Segment.BlobItems {
			so := domain.StoredObject{Key: deref(item.Name)}
			if p := item.Properties; p != nil {
				so.Size = deref(p.ContentLength)
				if p.ETag != nil {
					so.ETag = string(*p.ETag)
				}
			}
			so.OriginalFileName = OriginalFileName(flattenMetadata(item.Metadata))
			out = append(out, so)
		}
	}
	return out, nil
}

// CopyObject starts a server-side copy within the account. Shared-key
// authorization of the request covers the same-account source.
func (a *AzureStore) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (*domain.ObjectInfo, error) {
	svc := a.client.ServiceClient()
	src := svc.NewContainerClient(srcBucket).NewBlobClient(srcKey)
	props, err := src.GetProperties(ctx, nil)
	if err != nil {
		return nil, classifyAzureError("copy object", srcBucket, srcKey, err)
	}

	dst := svc.NewContainerClient(dstBucket).NewBlobClient(dstKey)
	resp, err := dst.StartCopyFromURL(ctx, src.URL(), nil)
	if err != nil {
		return nil, classifyAzureError("copy object", dstBucket, dstKey, err)
	}
	info := &domain.ObjectInfo{Size: deref(props.ContentLength)}
	if resp.ETag != nil {
		info.ETag = string(*resp.ETag)
	}
	return info, nil
}

// PutObject uploads body with the original file name as metadata.
func (a *AzureStore) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, originalFileName string) (*domain.ObjectInfo, error) {
	opts := &azblob.UploadStreamOptions{}
	if originalFileName != "" {
		opts.Metadata = map[string]*string{MetaOriginalFileNameAzure: to.Ptr(encodeMetaValue(originalFileName))}
	}
	resp, err := a.client.UploadStream(ctx, bucket, key, body, opts)
	if err != nil {
		return nil, classifyAzureError("put object", bucket, key, err)
	}
	info := &domain.ObjectInfo{Size: size}
	if resp.ETag != nil {
		info.ETag = string(*resp.ETag)
	}
	return info, nil
}

// CreateBucket creates a container.
func (a *AzureStore) CreateBucket(ctx context.Context, name string) error {
	if _, err := a.client.CreateContainer(ctx, name, nil); err != nil {
		return classifyAzureError("create bucket", name, "", err)
	}
	return nil
}

// DeleteBucket deletes every blob and then the container.
func (a *AzureStore) DeleteBucket(ctx context.Context, name string) (int, error) {
	deleted := 0
	pager := a.client.NewListBlobsFlatPager(name, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return deleted, classifyAzureError("list objects", name, "", err)
		}
		for _, item := range page.Segment.BlobItems {
			key := deref(item.Name)
			if _, err := a.client.DeleteBlob(ctx, name, key, nil); err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
				return deleted, classifyAzureError("delete object", name, key, err)
			}
			deleted++
		}
	}
	if _, err := a.client.DeleteContainer(ctx, name, nil); err != nil {
		return deleted, classifyAzureError("delete bucket", name, "", err)
	}
	return deleted, nil
}

// classifyAzureError maps azblob errors to domain errors.
func classifyAzureError(op, bucket, key string, err error) error {
	switch {
	case bloberror.HasCode(err, bloberror.ContainerNotFound, bloberror.ContainerBeingDeleted):
		return bucketNotFound(bucket)
	case bloberror.HasCode(err, bloberror.BlobNotFound):
		return objectNotFound(bucket, key)
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return externalError(op, respErr.StatusCode, err)
	}
	return externalError(op, 0, err)
}

func flattenMetadata(meta map[string]*string) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = deref(v)
	}
	return out
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

var _ domain.ObjectStore = (*AzureStore)(nil)
