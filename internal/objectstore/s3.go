package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"agent-bff/internal/config"
	"agent-bff/internal/domain"
)

// s3DeleteBatch is the DeleteObjects per-request limit.
const s3DeleteBatch = 1000

// S3Store implements domain.ObjectStore for AWS S3 and S3-compatible services
// (Hetzner, Ceph, R2).
type S3Store struct {
	client *s3.Client
	region string
}

// NewS3Store creates an S3Store from static credentials. Path-style addressing
// is used unless S3URLStyle is "vhost".
func NewS3Store(cfg config.StorageConfig) (*S3Store, error) {
	if cfg.S3KeyID == "" || cfg.S3Secret == "" || cfg.S3Endpoint == "" || cfg.S3Region == "" {
		return nil, fmt.Errorf("S3 config is incomplete")
	}

	endpoint := cfg.S3Endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}

	client := s3.New(s3.Options{
		Region: cfg.S3Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.S3KeyID, cfg.S3Secret, "",
		),
		BaseEndpoint: aws.String(endpoint),
		UsePathStyle: cfg.S3URLStyle != "vhost",
	})
	return &S3Store{client: client, region: cfg.S3Region}, nil
}

// ListObjects lists every object in bucket. Listings carry no user metadata,
// so each object is HEADed for its original file name.
func (s *S3Store) ListObjects(ctx context.Context, bucket string) ([]domain.StoredObject, error) {
	keys, err := s.listKeys(ctx, bucket)
	if err != nil {
		return nil, err
	}

	out := make([]domain.StoredObject, 0, len(keys))
	for _, obj := range keys {
		so := domain.StoredObject{
			Key:  aws.ToString(obj.Key),
			Size: aws.ToInt64(obj.Size),
			ETag: strings.Trim(aws.ToString(obj.ETag), `"`),
		}
		head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    obj.Key,
		})
		if err != nil {
			return nil, classifyS3Error("head object", bucket, so.Key, err)
		}
		so.OriginalFileName = OriginalFileName(head.Metadata)
		out = append(out, so)
	}
	return out, nil
}

func (s *S3Store) listKeys(ctx context.Context, bucket string) ([]s3types.Object, error) {
	var objects []s3types.Object
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, classifyS3Error("list objects", bucket, "", err)
		}
		objects = append(objects, page.Contents...)
	}
	return objects, nil
}

// CopyObject performs a server-side copy; user metadata is copied with it.
func (s *S3Store) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (*domain.ObjectInfo, error) {
	out, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(dstBucket),
		Key:               aws.String(dstKey),
		CopySource:        aws.String(url.PathEscape(srcBucket) + "/" + escapeKey(srcKey)),
		MetadataDirective: s3types.MetadataDirectiveCopy,
	})
	if err != nil {
		return nil, classifyS3Error("copy object", srcBucket, srcKey, err)
	}

	info := &domain.ObjectInfo{}
	if out.CopyObjectResult != nil {
		info.ETag = strings.Trim(aws.ToString(out.CopyObjectResult.ETag), `"`)
	}
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(dstBucket), Key: aws.String(dstKey)})
	if err == nil {
		info.Size = aws.ToInt64(head.ContentLength)
	}
	return info, nil
}

// PutObject uploads body with the original file name as user metadata.
func (s *S3Store) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, originalFileName string) (*domain.ObjectInfo, error) {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("application/octet-stream"),
	}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}
	if originalFileName != "" {
		in.Metadata = map[string]string{MetaOriginalFileName: encodeMetaValue(originalFileName)}
	}
	out, err := s.client.PutObject(ctx, in)
	if err != nil {
		return nil, classifyS3Error("put object", bucket, key, err)
	}
	return &domain.ObjectInfo{ETag: strings.Trim(aws.ToString(out.ETag), `"`), Size: size}, nil
}

// CreateBucket creates a bucket in the configured region.
func (s *S3Store) CreateBucket(ctx context.Context, name string) error {
	in := &s3.CreateBucketInput{Bucket: aws.String(name)}
	if s.region != "" && s.region != "us-east-1" {
		in.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(s.region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, in); err != nil {
		return classifyS3Error("create bucket", name, "", err)
	}
	return nil
}

// DeleteBucket deletes all objects in batches and then the bucket.
func (s *S3Store) DeleteBucket(ctx context.Context, name string) (int, error) {
	objects, err := s.listKeys(ctx, name)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for start := 0; start < len(objects); start += s3DeleteBatch {
		end := min(start+s3DeleteBatch, len(objects))
		ids := make([]s3types.ObjectIdentifier, 0, end-start)
		for _, o := range objects[start:end] {
			ids = append(ids, s3types.ObjectIdentifier{Key: o.Key})
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(name),
			Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return deleted, classifyS3Error("delete objects", name, "", err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return deleted, externalError("delete objects", 0,
				fmt.Errorf("%d objects not deleted, first %q: %s", len(out.Errors), aws.ToString(e.Key), aws.ToString(e.Message)))
		}
		deleted += len(ids)
	}

	if _, err := s.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)}); err != nil {
		return deleted, classifyS3Error("delete bucket", name, "", err)
	}
	return deleted, nil
}

// classifyS3Error maps SDK errors to NotFoundError or ExternalServiceError.
func classifyS3Error(op, bucket, key string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket":
			return bucketNotFound(bucket)
		case "NoSuchKey", "NotFound":
			if key == "" {
				return bucketNotFound(bucket)
			}
			return objectNotFound(bucket, key)
		}
	}
	var withStatus interface{ HTTPStatusCode() int }
	status := 0
	if errors.As(err, &withStatus) {
		status = withStatus.HTTPStatusCode()
	}
	return externalError(op, status, err)
}

// escapeKey URL-escapes each path segment of an object key.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

var _ domain.ObjectStore = (*S3Store)(nil)
