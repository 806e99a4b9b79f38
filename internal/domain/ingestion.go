package domain

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// IngestionRequest is the caller-supplied parameter object for one ingestion run.
// SourceBucket and FileNames drive the bucket mode; StagedFiles drives the
// staged mode. CreatedBy, UpdatedBy and ProjectID default from the caller's
// identity when empty.
type IngestionRequest struct {
	SourceBucket    *string        `json:"sourceBucket,omitempty"`
	FileNames       []string       `json:"fileNames,omitempty"`
	StagedFiles     []StagedFile   `json:"stagedFiles,omitempty"`
	DatasetName     string         `json:"datasetName"`
	DatasetType     string         `json:"datasetType"`
	Description     string         `json:"description,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	ProcessorParams map[string]any `json:"processorParams,omitempty"`
	ProjectID       string         `json:"projectId,omitempty"`
	CreatedBy       string         `json:"createdBy,omitempty"`
	UpdatedBy       string         `json:"updatedBy,omitempty"`
}

// ValidateBucketMode checks that the request is usable for bucket-mode ingestion.
func (r *IngestionRequest) ValidateBucketMode() error {
	if err := r.validateDataset(); err != nil {
		return err
	}
	if len(r.FileNames) == 0 {
		return ErrValidation("fileNames must not be empty")
	}
	for i, name := range r.FileNames {
		if strings.TrimSpace(name) == "" {
			return ErrValidation("fileNames[%d] must not be blank", i)
		}
	}
	return nil
}

// ValidateStagedMode checks that the request is usable for staged-file ingestion.
func (r *IngestionRequest) ValidateStagedMode() error {
	if err := r.validateDataset(); err != nil {
		return err
	}
	if len(r.StagedFiles) == 0 {
		return ErrValidation("stagedFiles must not be empty")
	}
	uploads := make(map[string]struct{})
	for i, f := range r.StagedFiles {
		if f.IsUpload() {
			key := norm.NFC.String(f.Name())
			if _, dup := uploads[key]; dup {
				return ErrValidation("stagedFiles[%d]: duplicate upload file name %q", i, f.Name())
			}
			uploads[key] = struct{}{}
		}
		switch {
		case f.IsUpload() && (f.Bucket != "" || f.Key != ""):
			return ErrValidation("stagedFiles[%d]: uploadId and bucket/key are mutually exclusive", i)
		case !f.IsUpload() && (f.Bucket == "" || f.Key == ""):
			return ErrValidation("stagedFiles[%d]: either uploadId or bucket and key are required", i)
		}
	}
	return nil
}

func (r *IngestionRequest) validateDataset() error {
	if strings.TrimSpace(r.DatasetName) == "" {
		return ErrValidation("datasetName is required")
	}
	if strings.TrimSpace(r.DatasetType) == "" {
		return ErrValidation("datasetType is required")
	}
	return nil
}

// StagedFile references a file that is already staged for ingestion: either an
// existing object (Bucket + Key) or a local upload (UploadID, relative to the
// temp-file root).
type StagedFile struct {
	FileName string `json:"fileName,omitempty"`
	Bucket   string `json:"bucket,omitempty"`
	Key      string `json:"key,omitempty"`
	UploadID string `json:"uploadId,omitempty"`
}

// IsUpload reports whether the file still lives in the local temp workspace.
func (f StagedFile) IsUpload() bool { return f.UploadID != "" }

// Name returns the logical file name, falling back to the last key segment.
func (f StagedFile) Name() string {
	if f.FileName != "" {
		return f.FileName
	}
	ref := f.Key
	if f.IsUpload() {
		ref = f.UploadID
	}
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

// MatchResult is the derived outcome of one filename-matching pass.
// MatchedCount + len(UnmatchedInputFileNames) may be less than the number of
// requested names when duplicate requested names collapse to one match.
type MatchResult struct {
	MatchedKeys             []string    `json:"matchedKeys"`
	MatchedCount            int         `json:"matchedCount"`
	UnmatchedInputFileNames []string    `json:"unmatchedInputFileNames"`
	Matches                 []FileMatch `json:"-"`
}

// FileMatch pairs a requested name with the stored object it resolved to.
type FileMatch struct {
	RequestedName string
	Key           string
	CandidateName string
}

// TempBucket is an ephemeral storage container holding copies of source objects
// for a single ingestion run.
type TempBucket struct {
	Name      string         `json:"name"`
	CreatedAt time.Time      `json:"createdAt"`
	Objects   []CopiedObject `json:"objects"`
}

// CopiedObject records one object copied into a temp bucket. TargetKey is the
// resolved original filename, not the raw source key.
type CopiedObject struct {
	SourceBucket string `json:"sourceBucket"`
	SourceKey    string `json:"sourceKey"`
	TargetKey    string `json:"targetKey"`
	ETag         string `json:"etag,omitempty"`
	Size         int64  `json:"size"`
}

// StagingResult describes the outcome of provisioning a temp bucket and
// copying objects into it. Copy failures are partial, never fatal.
type StagingResult struct {
	Bucket       TempBucket `json:"bucket"`
	SuccessCount int        `json:"successCount"`
	FailureCount int        `json:"failureCount"`
	FailedFiles  []string   `json:"failedFiles"`
	Message      string     `json:"message"`
}

// DeleteBucketResult describes the outcome of deleting a temp bucket.
type DeleteBucketResult struct {
	Bucket             string `json:"bucket"`
	Existed            bool   `json:"existed"`
	DeletedObjectCount int    `json:"deletedObjectCount"`
}

// IngestionResult is returned by both ingestion modes. On failure a partial
// result is returned alongside the error so callers can see how far the
// pipeline progressed.
type IngestionResult struct {
	Success             bool         `json:"success"`
	DatasetID           string       `json:"datasetId,omitempty"`
	DatasetStatus       string       `json:"datasetStatus,omitempty"`
	DatasourceID        string       `json:"datasourceId,omitempty"`
	DatasourceStatus    string       `json:"datasourceStatus,omitempty"`
	TempBucket          string       `json:"tempBucket,omitempty"`
	Match               *MatchResult `json:"match,omitempty"`
	Preparation         *StepResult  `json:"preparation,omitempty"`
	DatasourceCreation  *StepResult  `json:"datasourceCreation,omitempty"`
	DatasetCreation     *StepResult  `json:"datasetCreation,omitempty"`
	ReconciliationArmed bool         `json:"reconciliationArmed"`
}
