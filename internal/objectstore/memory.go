package objectstore

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // ETag, not security
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"

	"agent-bff/internal/domain"
)

type memObject struct {
	data         []byte
	etag         string
	originalName string
}

// MemoryStore is an in-process ObjectStore for local development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]*memObject
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]map[string]*memObject)}
}

// ListObjects returns the bucket's objects sorted by key.
func (m *MemoryStore) ListObjects(ctx context.Context, bucket string) ([]domain.StoredObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, externalError("list objects", 0, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	objs, ok := m.buckets[bucket]
	if !ok {
		return nil, bucketNotFound(bucket)
	}
	out := make([]domain.StoredObject, 0, len(objs))
	for key, o := range objs {
		so := domain.StoredObject{Key: key, Size: int64(len(o.data)), ETag: o.etag}
		if o.originalName != "" {
			name := o.originalName
			so.OriginalFileName = &name
		}
		out = append(out, so)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// CopyObject copies one object; metadata travels with it.
func (m *MemoryStore) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (*domain.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, externalError("copy object", 0, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.buckets[srcBucket]
	if !ok {
		return nil, bucketNotFound(srcBucket)
	}
	o, ok := src[srcKey]
	if !ok {
		return nil, objectNotFound(srcBucket, srcKey)
	}
	dst, ok := m.buckets[dstBucket]
	if !ok {
		return nil, bucketNotFound(dstBucket)
	}
	cp := *o
	cp.data = bytes.Clone(o.data)
	dst[dstKey] = &cp
	return &domain.ObjectInfo{ETag: cp.etag, Size: int64(len(cp.data))}, nil
}

// PutObject stores body under key, reading at most size bytes when size >= 0.
func (m *MemoryStore) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, originalFileName string) (*domain.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, externalError("put object", 0, err)
	}
	if size >= 0 {
		body = io.LimitReader(body, size)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read object body: %w", err)
	}
	sum := md5.Sum(data) //nolint:gosec // ETag, not security
	o := &memObject{data: data, etag: hex.EncodeToString(sum[:]), originalName: originalFileName}

	m.mu.Lock()
	defer m.mu.Unlock()
	objs, ok := m.buckets[bucket]
	if !ok {
		return nil, bucketNotFound(bucket)
	}
	objs[key] = o
	return &domain.ObjectInfo{ETag: o.etag, Size: int64(len(data))}, nil
}

// CreateBucket creates an empty bucket; an existing name is a conflict.
func (m *MemoryStore) CreateBucket(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return externalError("create bucket", 0, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[name]; ok {
		return domain.ErrConflict("bucket %q already exists", name)
	}
	m.buckets[name] = make(map[string]*memObject)
	return nil
}

// DeleteBucket removes the bucket and returns how many objects it held.
func (m *MemoryStore) DeleteBucket(ctx context.Context, name string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, externalError("delete bucket", 0, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	objs, ok := m.buckets[name]
	if !ok {
		return 0, bucketNotFound(name)
	}
	delete(m.buckets, name)
	return len(objs), nil
}

// Object returns a copy of the stored bytes, for tests and diagnostics.
func (m *MemoryStore) Object(bucket, key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.buckets[bucket][key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(o.data), true
}

// HasBucket reports whether the bucket exists.
func (m *MemoryStore) HasBucket(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.buckets[name]
	return ok
}

var _ domain.ObjectStore = (*MemoryStore)(nil)
