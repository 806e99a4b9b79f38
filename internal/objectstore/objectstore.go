// Package objectstore implements domain.ObjectStore for S3-compatible storage,
// MinIO, Google Cloud Storage, Azure Blob Storage and an in-memory store.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"agent-bff/internal/config"
	"agent-bff/internal/domain"
)

// Metadata keys under which the original file name is stored. Readers accept
// any of them case-insensitively; Azure only allows identifier-style keys.
const (
	MetaOriginalFileName      = "original-filename"
	MetaOriginalFileNameAzure = "original_filename"
	metaOriginalFileNameBare  = "originalfilename"
	amzMetaPrefix             = "x-amz-meta-"
)

// New builds the ObjectStore selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (domain.ObjectStore, error) {
	switch cfg.Backend {
	case config.BackendS3:
		return NewS3Store(cfg)
	case config.BackendMinIO:
		return NewMinIOStore(cfg)
	case config.BackendGCS:
		return NewGCSStore(ctx, cfg)
	case config.BackendAzure:
		return NewAzureStore(cfg)
	case config.BackendMemory, "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// OriginalFileName extracts the original file name from object metadata.
// Values are URL-unescaped; nil means no usable metadata.
func OriginalFileName(meta map[string]string) *string {
	for k, v := range meta {
		key := strings.TrimPrefix(strings.ToLower(k), amzMetaPrefix)
		switch key {
		case MetaOriginalFileName, MetaOriginalFileNameAzure, metaOriginalFileNameBare:
		default:
			continue
		}
		if v == "" {
			continue
		}
		if u, err := url.QueryUnescape(v); err == nil {
			v = u
		}
		return &v
	}
	return nil
}

// encodeMetaValue makes a file name safe for HTTP header metadata.
func encodeMetaValue(name string) string {
	return url.QueryEscape(name)
}

// externalError wraps a backend failure. A missing status becomes 504 for
// deadline errors and 502 otherwise.
func externalError(op string, status int, err error) *domain.ExternalServiceError {
	if status == 0 {
		status = http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
	}
	return domain.ErrExternal(domain.ServiceObjectStore, op, status, err)
}

func bucketNotFound(bucket string) *domain.NotFoundError {
	return domain.ErrNotFound("bucket %q not found", bucket)
}

func objectNotFound(bucket, key string) *domain.NotFoundError {
	return domain.ErrNotFound("object %q not found in bucket %q", key, bucket)
}
