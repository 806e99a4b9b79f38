// Package ingestion turns named source files into a catalog dataset, staging
// them in a temp bucket that is reconciled away once the catalog has consumed it.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"agent-bff/internal/domain"
	"agent-bff/internal/service/filematch"
	"agent-bff/internal/service/pipeline"
	"agent-bff/internal/service/storage"
)

// Step names reported in logs and pipeline results.
const (
	StepPreparation        = "preparation"
	StepCreateDatasource   = "datasource-creation"
	StepCreateDataset      = "dataset-creation"
	DatasourceTypeBucket   = "object-storage"
	DefaultFallbackUserID  = "system"
	DefaultFallbackProject = "default"
)

// Options holds the orchestrator's configurable defaults.
type Options struct {
	DefaultSourceBucket string
	TempBucketPrefix    string
	FallbackUserID      string
	FallbackProjectID   string
}

// UploadSource opens and removes files staged in the local temp workspace.
// Implemented by storage.TempFiles.
type UploadSource interface {
	Open(uploadID string) (io.ReadCloser, int64, error)
	Remove(uploadID string) error
}

// IngestionService orchestrates both ingestion modes:
// match → stage → create datasource → create dataset → arm reconciliation.
//
//nolint:revive // Name chosen for clarity across package boundaries
type IngestionService struct {
	store    domain.ObjectStore
	catalog  domain.CatalogService
	matcher  *filematch.Matcher
	buckets  *storage.TempBucketManager
	uploads  UploadSource
	identity domain.IdentityResolver
	armer    domain.ReconciliationArmer
	opts     Options
	logger   *slog.Logger
}

// NewIngestionService creates a new IngestionService. uploads and identity may
// be nil; staged uploads are then rejected and the fallback identity is used.
func NewIngestionService(
	store domain.ObjectStore,
	catalog domain.CatalogService,
	matcher *filematch.Matcher,
	buckets *storage.TempBucketManager,
	uploads UploadSource,
	identity domain.IdentityResolver,
	armer domain.ReconciliationArmer,
	opts Options,
	logger *slog.Logger,
) *IngestionService {
	if opts.FallbackUserID == "" {
		opts.FallbackUserID = DefaultFallbackUserID
	}
	if opts.FallbackProjectID == "" {
		opts.FallbackProjectID = DefaultFallbackProject
	}
	return &IngestionService{
		store:    store,
		catalog:  catalog,
		matcher:  matcher,
		buckets:  buckets,
		uploads:  uploads,
		identity: identity,
		armer:    armer,
		opts:     opts,
		logger:   logger.With("component", "ingestion"),
	}
}

// run carries the mutable state of one ingestion.
type run struct {
	req        domain.IngestionRequest
	acting     domain.Identity
	pipe       *pipeline.Pipeline
	result     *domain.IngestionResult
	tempBucket string
	files      []domain.FileRef
	logger     *slog.Logger
}

// IngestFromBucket locates req.FileNames in the source bucket, copies the
// matches into a fresh temp bucket and creates a datasource and dataset over it.
//
// On failure a partial result is returned together with the original error,
// after any temp bucket has been deleted.
func (s *IngestionService) IngestFromBucket(ctx context.Context, req domain.IngestionRequest) (*domain.IngestionResult, error) {
	if err := req.ValidateBucketMode(); err != nil {
		return nil, err
	}
	source := s.opts.DefaultSourceBucket
	if req.SourceBucket != nil && *req.SourceBucket != "" {
		source = *req.SourceBucket
	}
	if source == "" {
		return nil, domain.ErrValidation("sourceBucket is required (no default source bucket configured)")
	}

	ctx, r := s.begin(ctx, "ingest-bucket", req)
	r.logger = r.logger.With("source_bucket", source)

	prep, err := r.pipe.Run(ctx, StepPreparation, func(ctx context.Context) (*pipeline.Outcome, error) {
		objects, err := s.store.ListObjects(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("list source bucket %q: %w", source, err)
		}
		match := s.matcher.Match(objects, r.req.FileNames)
		r.result.Match = match
		if dups := filematch.DuplicateCount(r.req.FileNames); dups > 0 {
			r.logger.Warn("duplicate requested file names collapsed", "duplicates", dups)
		}

		staged, err := s.buckets.Stage(ctx, s.opts.TempBucketPrefix, source, match.Matches)
		if err != nil {
			return nil, err
		}
		r.setTempBucket(staged.Bucket.Name)
		for _, obj := range staged.Bucket.Objects {
			r.files = append(r.files, domain.FileRef{Bucket: staged.Bucket.Name, Key: obj.TargetKey, FileName: obj.TargetKey})
		}

		return &pipeline.Outcome{
			Message: staged.Message,
			Result: map[string]any{
				"sourceBucket":            source,
				"tempBucket":              staged.Bucket.Name,
				"matchedCount":            match.MatchedCount,
				"unmatchedInputFileNames": match.UnmatchedInputFileNames,
				"successCount":            staged.SuccessCount,
				"failureCount":            staged.FailureCount,
				"failedFiles":             staged.FailedFiles,
			},
		}, nil
	})
	r.result.Preparation = &prep
	if err != nil {
		return s.fail(ctx, r, err)
	}

	return s.finish(ctx, r)
}

// IngestFromStagedFiles creates a datasource and dataset over files that are
// already staged. Object references are passed through as-is; local uploads are
// first written to a fresh temp bucket. No filename matching takes place.
func (s *IngestionService) IngestFromStagedFiles(ctx context.Context, req domain.IngestionRequest) (*domain.IngestionResult, error) {
	if err := req.ValidateStagedMode(); err != nil {
		return nil, err
	}

	ctx, r := s.begin(ctx, "ingest-staged", req)

	match := &domain.MatchResult{MatchedKeys: []string{}, UnmatchedInputFileNames: []string{}}
	var uploads []domain.StagedFile
	for _, f := range r.req.StagedFiles {
		if f.IsUpload() {
			uploads = append(uploads, f)
			continue
		}
		r.files = append(r.files, domain.FileRef{Bucket: f.Bucket, Key: f.Key, FileName: f.Name()})
		match.MatchedKeys = append(match.MatchedKeys, f.Key)
	}
	r.result.Match = match

	var prep domain.StepResult
	if len(uploads) == 0 {
		prep = r.pipe.Skip(StepPreparation, "all files are already staged in object storage")
	} else {
		if s.uploads == nil {
			return nil, domain.ErrValidation("local uploads are not enabled")
		}
		var err error
		prep, err = r.pipe.Run(ctx, StepPreparation, func(ctx context.Context) (*pipeline.Outcome, error) {
			return s.uploadStaged(ctx, r, uploads)
		})
		if err != nil {
			r.result.Preparation = &prep
			return s.fail(ctx, r, err)
		}
		for _, f := range uploads {
			match.MatchedKeys = append(match.MatchedKeys, f.Name())
		}
	}
	r.result.Preparation = &prep
	match.MatchedCount = len(match.MatchedKeys)

	return s.finish(ctx, r)
}

// uploadStaged writes every local upload into a new temp bucket. A failure on
// any file fails the step; local files are removed only after all uploads
// succeeded.
func (s *IngestionService) uploadStaged(ctx context.Context, r *run, uploads []domain.StagedFile) (*pipeline.Outcome, error) {
	bucket, err := s.buckets.CreateTempBucket(ctx, s.opts.TempBucketPrefix)
	if err != nil {
		return nil, err
	}
	r.setTempBucket(bucket.Name)

	for _, f := range uploads {
		if err := s.uploadOne(ctx, bucket.Name, f); err != nil {
			return nil, err
		}
		r.files = append(r.files, domain.FileRef{Bucket: bucket.Name, Key: f.Name(), FileName: f.Name()})
	}
	for _, f := range uploads {
		if err := s.uploads.Remove(f.UploadID); err != nil {
			r.logger.Warn("remove uploaded temp file", "upload_id", f.UploadID, "error", err)
		}
	}
	return &pipeline.Outcome{
		Message: fmt.Sprintf("uploaded %d files", len(uploads)),
		Result: map[string]any{
			"tempBucket":    bucket.Name,
			"uploadedCount": len(uploads),
		},
	}, nil
}

func (s *IngestionService) uploadOne(ctx context.Context, bucket string, f domain.StagedFile) error {
	body, size, err := s.uploads.Open(f.UploadID)
	if err != nil {
		return err
	}
	defer body.Close() //nolint:errcheck
	if _, err := s.buckets.Upload(ctx, bucket, f.Name(), body, size); err != nil {
		return fmt.Errorf("upload %q: %w", f.Name(), err)
	}
	return nil
}

// finish runs the shared tail: create datasource, create dataset, arm
// reconciliation for the temp bucket if one exists.
func (s *IngestionService) finish(ctx context.Context, r *run) (*domain.IngestionResult, error) {
	var datasource *domain.CreatedResource
	dsRes, err := r.pipe.Run(ctx, StepCreateDatasource, func(ctx context.Context) (*pipeline.Outcome, error) {
		created, err := s.catalog.CreateDatasource(ctx, domain.DatasourceSpec{
			Name:        r.req.DatasetName,
			Type:        DatasourceTypeBucket,
			Description: r.req.Description,
			ProjectID:   r.req.ProjectID,
			Bucket:      r.tempBucket,
			Files:       r.files,
			CreatedBy:   r.req.CreatedBy,
			UpdatedBy:   r.req.UpdatedBy,
		})
		if err != nil {
			return nil, err
		}
		datasource = created
		return &pipeline.Outcome{
			Message: "datasource created",
			Result:  map[string]any{"datasourceId": created.ID, "status": created.Status, "fileCount": len(r.files)},
		}, nil
	})
	r.result.DatasourceCreation = &dsRes
	if err != nil {
		return s.fail(ctx, r, err)
	}
	r.result.DatasourceID = datasource.ID
	r.result.DatasourceStatus = datasource.Status

	var dataset *domain.CreatedResource
	dtRes, err := r.pipe.Run(ctx, StepCreateDataset, func(ctx context.Context) (*pipeline.Outcome, error) {
		created, err := s.catalog.CreateDataset(ctx, domain.DatasetSpec{
			Name:            r.req.DatasetName,
			Type:            r.req.DatasetType,
			Description:     r.req.Description,
			Tags:            r.req.Tags,
			DatasourceID:    datasource.ID,
			ProcessorParams: r.req.ProcessorParams,
			ProjectID:       r.req.ProjectID,
			CreatedBy:       r.req.CreatedBy,
			UpdatedBy:       r.req.UpdatedBy,
		})
		if err != nil {
			return nil, err
		}
		dataset = created
		return &pipeline.Outcome{
			Message: "dataset created",
			Result:  map[string]any{"datasetId": created.ID, "status": created.Status},
		}, nil
	})
	r.result.DatasetCreation = &dtRes
	if err != nil {
		return s.fail(ctx, r, err)
	}
	r.result.DatasetID = dataset.ID
	r.result.DatasetStatus = dataset.Status

	if r.tempBucket != "" {
		task := domain.ReconciliationTask{
			ID:             domain.NewID(),
			ResourceID:     datasource.ID,
			TempBucketName: r.tempBucket,
			ActingIdentity: r.acting,
			State:          domain.ReconciliationScheduled,
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.armer.Arm(ctx, task); err != nil {
			return s.fail(ctx, r, fmt.Errorf("arm reconciliation: %w", err))
		}
		r.result.ReconciliationArmed = true
	}

	r.result.Success = r.pipe.Success()
	r.logger.Info("ingestion completed",
		"dataset_id", dataset.ID, "datasource_id", datasource.ID, "temp_bucket", r.tempBucket)
	return r.result, nil
}

// fail deletes the temp bucket (best effort) and returns the partial result
// with err unchanged.
func (s *IngestionService) fail(ctx context.Context, r *run, err error) (*domain.IngestionResult, error) {
	r.logger.Error("ingestion failed", "temp_bucket", r.tempBucket, "error", err)
	if r.tempBucket != "" {
		s.buckets.Cleanup(ctx, r.tempBucket)
	}
	r.result.Success = false
	return r.result, err
}

// begin resolves the acting identity, fills request defaults from it and
// returns a context carrying the identity for downstream calls.
func (s *IngestionService) begin(ctx context.Context, name string, req domain.IngestionRequest) (context.Context, *run) {
	who := s.resolveIdentity(ctx)
	if req.ProjectID == "" {
		req.ProjectID = who.ProjectID
	}
	if req.CreatedBy == "" {
		req.CreatedBy = who.UserID
	}
	if req.UpdatedBy == "" {
		req.UpdatedBy = req.CreatedBy
	}
	acting := domain.Identity{UserID: who.UserID, ProjectID: req.ProjectID}

	r := &run{
		req:    req,
		acting: acting,
		pipe:   pipeline.New(name, s.logger),
		result: &domain.IngestionResult{},
		logger: s.logger.With("mode", name, "dataset", req.DatasetName, "user_id", acting.UserID, "project_id", acting.ProjectID),
	}
	return domain.WithIdentity(ctx, acting), r
}

// resolveIdentity never fails: any resolver error or missing field degrades to
// the configured fallback values.
func (s *IngestionService) resolveIdentity(ctx context.Context) domain.Identity {
	var who domain.Identity
	if s.identity != nil {
		id, err := s.identity.CurrentIdentity(ctx)
		if err != nil {
			s.logger.Warn("identity resolution failed; using fallback identity", "error", err)
		} else {
			who = id
		}
	}
	if who.UserID == "" {
		who.UserID = s.opts.FallbackUserID
	}
	if who.ProjectID == "" {
		who.ProjectID = s.opts.FallbackProjectID
	}
	return who
}

func (r *run) setTempBucket(name string) {
	r.tempBucket = name
	r.result.TempBucket = name
}

// ContextIdentityResolver resolves the identity placed in the context by the
// authentication middleware.
var ContextIdentityResolver = domain.IdentityResolverFunc(func(ctx context.Context) (domain.Identity, error) {
	id, ok := domain.IdentityFromContext(ctx)
	if !ok || id.IsZero() {
		return domain.Identity{}, errors.New("no identity in context")
	}
	return id, nil
})
