// Package storage manages the ephemeral resources of an ingestion run: temp
// buckets in the object store and uploaded files in the local temp root.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"agent-bff/internal/domain"
)

const (
	// DefaultTempBucketPrefix is used when neither the caller nor the config
	// supplies a prefix.
	DefaultTempBucketPrefix = "tmp-dataset"

	// MessageNoMatches is the staging message for a run with zero matches.
	MessageNoMatches = "no matching objects; empty bucket created"

	maxBucketNameLen = 63
	bucketTimeLayout = "20060102150405"
	bucketSuffixLen  = 8
	cleanupTimeout   = 30 * time.Second
)

// generatedNameRE splits a generated bucket name into its prefix and the
// timestamp-id suffix appended by BucketName.
var generatedNameRE = regexp.MustCompile(`^([a-z0-9-]+)-[0-9]{14}-[0-9a-f]{8}$`)

// TempBucketManager provisions, fills and deletes temp buckets.
type TempBucketManager struct {
	store  domain.ObjectStore
	prefix string
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	prefixes map[string]struct{}
}

// NewTempBucketManager creates a TempBucketManager. An empty prefix selects
// DefaultTempBucketPrefix.
func NewTempBucketManager(store domain.ObjectStore, prefix string, logger *slog.Logger) *TempBucketManager {
	if prefix == "" {
		prefix = DefaultTempBucketPrefix
	}
	m := &TempBucketManager{
		store:    store,
		prefix:   prefix,
		now:      time.Now,
		logger:   logger.With("component", "tempbucket"),
		prefixes: map[string]struct{}{},
	}
	m.prefixes[m.effectivePrefix("")] = struct{}{}
	return m
}

// BucketName builds a collision-resistant bucket name from prefix, the current
// time and a random suffix. The result satisfies S3/GCS/Azure naming rules.
func (m *TempBucketManager) BucketName(prefix string) string {
	p := m.effectivePrefix(prefix)
	m.mu.Lock()
	m.prefixes[p] = struct{}{}
	m.mu.Unlock()
	return p + "-" + m.now().UTC().Format(bucketTimeLayout) + "-" + domain.ShortID(bucketSuffixLen)
}

// IsTempBucket reports whether name has the shape BucketName produces with
// the configured prefix or a prefix this manager has generated names for.
func (m *TempBucketManager) IsTempBucket(name string) bool {
	sub := generatedNameRE.FindStringSubmatch(name)
	if sub == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.prefixes[sub[1]]
	return ok
}

func (m *TempBucketManager) effectivePrefix(prefix string) string {
	p := sanitizeBucketPrefix(prefix)
	if p == "" {
		p = sanitizeBucketPrefix(m.prefix)
	}
	if p == "" {
		p = DefaultTempBucketPrefix
	}
	room := maxBucketNameLen - len(bucketTimeLayout) - bucketSuffixLen - 2
	if len(p) > room {
		p = strings.TrimRight(p[:room], "-")
	}
	return p
}

// CreateTempBucket creates a fresh, empty temp bucket. Existence is not
// pre-checked; the generated name is expected to be unused.
func (m *TempBucketManager) CreateTempBucket(ctx context.Context, prefix string) (*domain.TempBucket, error) {
	name := m.BucketName(prefix)
	if err := m.store.CreateBucket(ctx, name); err != nil {
		return nil, fmt.Errorf("create temp bucket %q: %w", name, err)
	}
	m.logger.Info("temp bucket created", "bucket", name)
	return &domain.TempBucket{
		Name:      name,
		CreatedAt: m.now().UTC(),
		Objects:   []domain.CopiedObject{},
	}, nil
}

// CopyObject performs one server-side copy into a temp bucket.
func (m *TempBucketManager) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (*domain.CopiedObject, error) {
	info, err := m.store.CopyObject(ctx, srcBucket, srcKey, dstBucket, dstKey)
	if err != nil {
		return nil, err
	}
	return &domain.CopiedObject{
		SourceBucket: srcBucket,
		SourceKey:    srcKey,
		TargetKey:    dstKey,
		ETag:         info.ETag,
		Size:         info.Size,
	}, nil
}

// Stage creates a temp bucket and copies every match into it under its
// resolved original filename. Individual copy failures are collected in the
// result; only a failure to create the bucket is returned as an error. Zero
// matches still yield an empty bucket.
func (m *TempBucketManager) Stage(ctx context.Context, prefix, srcBucket string, matches []domain.FileMatch) (*domain.StagingResult, error) {
	bucket, err := m.CreateTempBucket(ctx, prefix)
	if err != nil {
		return nil, err
	}

	res := &domain.StagingResult{FailedFiles: []string{}}
	for _, fm := range matches {
		obj, err := m.CopyObject(ctx, srcBucket, fm.Key, bucket.Name, fm.CandidateName)
		if err != nil {
			m.logger.Warn("copy failed",
				"src_bucket", srcBucket, "key", fm.Key, "bucket", bucket.Name, "error", err)
			res.FailureCount++
			res.FailedFiles = append(res.FailedFiles, fm.RequestedName)
			continue
		}
		bucket.Objects = append(bucket.Objects, *obj)
		res.SuccessCount++
	}
	res.Bucket = *bucket

	switch {
	case len(matches) == 0:
		res.Message = MessageNoMatches
	case res.FailureCount > 0:
		res.Message = fmt.Sprintf("copied %d of %d objects; %d failed", res.SuccessCount, len(matches), res.FailureCount)
	default:
		res.Message = fmt.Sprintf("copied %d objects", res.SuccessCount)
	}
	m.logger.Info("temp bucket staged",
		"bucket", bucket.Name, "copied", res.SuccessCount, "failed", res.FailureCount)
	return res, nil
}

// Upload writes a local file into a temp bucket, keyed by its file name.
func (m *TempBucketManager) Upload(ctx context.Context, bucket, fileName string, body io.Reader, size int64) (*domain.CopiedObject, error) {
	info, err := m.store.PutObject(ctx, bucket, fileName, body, size, fileName)
	if err != nil {
		return nil, err
	}
	return &domain.CopiedObject{
		TargetKey: fileName,
		ETag:      info.ETag,
		Size:      info.Size,
	}, nil
}

// DeleteBucket deletes every object in the bucket and then the bucket. It is
// idempotent: a missing bucket is logged as a warning and reported with
// Existed=false and a zero count. Names that IsTempBucket rejects are refused
// without touching the store.
func (m *TempBucketManager) DeleteBucket(ctx context.Context, name string) (*domain.DeleteBucketResult, error) {
	if !m.IsTempBucket(name) {
		return nil, domain.ErrValidation("bucket %q is not a temp bucket", name)
	}
	n, err := m.store.DeleteBucket(ctx, name)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			m.logger.Warn("temp bucket already gone", "bucket", name)
			return &domain.DeleteBucketResult{Bucket: name}, nil
		}
		return nil, fmt.Errorf("delete temp bucket %q: %w", name, err)
	}
	m.logger.Info("temp bucket deleted", "bucket", name, "objects", n)
	return &domain.DeleteBucketResult{Bucket: name, Existed: true, DeletedObjectCount: n}, nil
}

// Cleanup deletes a temp bucket on an error path. Failures are logged and
// swallowed. The caller's cancellation is detached so cleanup still runs when
// the request context is already done.
func (m *TempBucketManager) Cleanup(ctx context.Context, name string) {
	if name == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if _, err := m.DeleteBucket(ctx, name); err != nil {
		m.logger.Error("temp bucket cleanup failed", "bucket", name, "error", err)
	}
}

// sanitizeBucketPrefix lower-cases prefix and keeps only [a-z0-9-], collapsing
// runs of other characters into a single dash.
func sanitizeBucketPrefix(prefix string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(prefix) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
