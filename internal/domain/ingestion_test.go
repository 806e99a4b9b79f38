package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBucketMode(t *testing.T) {
	tests := []struct {
		name    string
		req     IngestionRequest
		wantErr string
	}{
		{
			name: "valid",
			req:  IngestionRequest{DatasetName: "q1", DatasetType: "tabular", FileNames: []string{"a.csv"}},
		},
		{
			name:    "missing dataset name",
			req:     IngestionRequest{DatasetType: "tabular", FileNames: []string{"a.csv"}},
			wantErr: "datasetName is required",
		},
		{
			name:    "blank dataset type",
			req:     IngestionRequest{DatasetName: "q1", DatasetType: "  ", FileNames: []string{"a.csv"}},
			wantErr: "datasetType is required",
		},
		{
			name:    "no file names",
			req:     IngestionRequest{DatasetName: "q1", DatasetType: "tabular"},
			wantErr: "fileNames must not be empty",
		},
		{
			name:    "blank file name",
			req:     IngestionRequest{DatasetName: "q1", DatasetType: "tabular", FileNames: []string{"a.csv", " "}},
			wantErr: "fileNames[1] must not be blank",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.ValidateBucketMode()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			var valErr *ValidationError
			require.ErrorAs(t, err, &valErr)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateStagedMode(t *testing.T) {
	base := IngestionRequest{DatasetName: "q1", DatasetType: "tabular"}
	with := func(files ...StagedFile) IngestionRequest {
		r := base
		r.StagedFiles = files
		return r
	}

	tests := []struct {
		name    string
		req     IngestionRequest
		wantErr string
	}{
		{
			name: "upload and object",
			req:  with(StagedFile{UploadID: "u1/a.csv"}, StagedFile{Bucket: "raw", Key: "b.csv"}),
		},
		{
			name:    "empty",
			req:     with(),
			wantErr: "stagedFiles must not be empty",
		},
		{
			name:    "upload with bucket",
			req:     with(StagedFile{UploadID: "u1/a.csv", Bucket: "raw"}),
			wantErr: "mutually exclusive",
		},
		{
			name:    "object without key",
			req:     with(StagedFile{Bucket: "raw"}),
			wantErr: "either uploadId or bucket and key are required",
		},
		{
			name:    "duplicate upload names",
			req:     with(StagedFile{UploadID: "u1/a.csv"}, StagedFile{UploadID: "u2/a.csv"}),
			wantErr: `duplicate upload file name "a.csv"`,
		},
		{
			name:    "duplicate upload names across normalization forms",
			req:     with(StagedFile{UploadID: "u1/caf\u00e9.pdf"}, StagedFile{UploadID: "u2/cafe\u0301.pdf"}),
			wantErr: "duplicate upload file name",
		},
		{
			name: "same name as object is allowed",
			req:  with(StagedFile{UploadID: "u1/a.csv"}, StagedFile{Bucket: "raw", Key: "x/a.csv"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.ValidateStagedMode()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestStagedFile_Name(t *testing.T) {
	assert.Equal(t, "given.csv", StagedFile{FileName: "given.csv", Key: "x/y.csv"}.Name())
	assert.Equal(t, "y.csv", StagedFile{Bucket: "b", Key: "x/y.csv"}.Name())
	assert.Equal(t, "a.csv", StagedFile{UploadID: "0192/a.csv"}.Name())
	assert.Equal(t, "flat", StagedFile{Bucket: "b", Key: "flat"}.Name())
	assert.True(t, StagedFile{UploadID: "u"}.IsUpload())
	assert.False(t, StagedFile{Key: "k"}.IsUpload())
}
