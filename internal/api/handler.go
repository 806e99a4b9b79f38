// Package api exposes the ingestion pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"agent-bff/internal/domain"
	"agent-bff/internal/service/storage"
)

const (
	maxJSONBody          = 1 << 20
	defaultMaxUploadSize = 512 << 20
	uploadFormField      = "file"
)

// Ingestor runs the two ingestion pipelines.
type Ingestor interface {
	IngestFromBucket(ctx context.Context, req domain.IngestionRequest) (*domain.IngestionResult, error)
	IngestFromStagedFiles(ctx context.Context, req domain.IngestionRequest) (*domain.IngestionResult, error)
}

// UploadStore saves uploaded files into the temp-file workspace.
type UploadStore interface {
	Save(name string, r io.Reader) (*storage.SavedFile, error)
}

// BucketDeleter deletes temp buckets.
type BucketDeleter interface {
	IsTempBucket(name string) bool
	DeleteBucket(ctx context.Context, name string) (*domain.DeleteBucketResult, error)
}

// PendingLister lists reconciliation tasks still waiting on their resource.
type PendingLister interface {
	Pending() []domain.ReconciliationTask
}

// Handler serves the /v1 routes.
type Handler struct {
	ingest        Ingestor
	uploads       UploadStore
	buckets       BucketDeleter
	reconcile     PendingLister
	maxUploadSize int64
	logger        *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(ingest Ingestor, uploads UploadStore, buckets BucketDeleter, reconcile PendingLister, logger *slog.Logger) *Handler {
	return &Handler{
		ingest:        ingest,
		uploads:       uploads,
		buckets:       buckets,
		reconcile:     reconcile,
		maxUploadSize: defaultMaxUploadSize,
		logger:        logger.With("component", "api"),
	}
}

// Routes registers the handler's endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/ingestions/bucket", h.ingestBucket)
	r.Post("/ingestions/staged", h.ingestStaged)
	r.Post("/uploads", h.upload)
	r.Get("/reconciliations", h.listReconciliations)
	r.Delete("/temp-buckets/{name}", h.deleteTempBucket)
}

func (h *Handler) ingestBucket(w http.ResponseWriter, r *http.Request) {
	h.runIngestion(w, r, h.ingest.IngestFromBucket)
}

func (h *Handler) ingestStaged(w http.ResponseWriter, r *http.Request) {
	h.runIngestion(w, r, h.ingest.IngestFromStagedFiles)
}

func (h *Handler) runIngestion(w http.ResponseWriter, r *http.Request, run func(context.Context, domain.IngestionRequest) (*domain.IngestionResult, error)) {
	var req domain.IngestionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	res, err := run(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err, res)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// UploadResponse is returned by POST /v1/uploads.
type UploadResponse struct {
	UploadID string `json:"uploadId"`
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	mr, err := r.MultipartReader()
	if err != nil {
		h.writeError(w, r, domain.ErrValidation("expected multipart/form-data body: %v", err), nil)
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			h.writeError(w, r, domain.ErrValidation("multipart field %q is required", uploadFormField), nil)
			return
		}
		if err != nil {
			h.writeError(w, r, bodyError(err), nil)
			return
		}
		if part.FormName() != uploadFormField {
			_ = part.Close()
			continue
		}
		saved, err := h.uploads.Save(part.FileName(), part)
		_ = part.Close()
		if err != nil {
			h.writeError(w, r, bodyError(err), nil)
			return
		}
		h.logger.Info("upload saved", "upload_id", saved.UploadID, "size", saved.Size)
		writeJSON(w, http.StatusCreated, UploadResponse{UploadID: saved.UploadID, FileName: saved.FileName, Size: saved.Size})
		return
	}
}

// listReconciliations returns the pending tasks of the caller's project. With
// no authenticated identity on the request every task is listed.
func (h *Handler) listReconciliations(w http.ResponseWriter, r *http.Request) {
	caller, authenticated := domain.IdentityFromContext(r.Context())
	views := []domain.ReconciliationView{}
	for _, t := range h.reconcile.Pending() {
		if authenticated && t.ActingIdentity.ProjectID != caller.ProjectID {
			continue
		}
		views = append(views, t.View())
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": views})
}

func (h *Handler) deleteTempBucket(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !h.buckets.IsTempBucket(name) {
		h.logger.Warn("refused non-temp bucket delete", "bucket", name)
		h.writeError(w, r, domain.ErrValidation("bucket %q is not a temp bucket", name), nil)
		return
	}
	res, err := h.buckets.DeleteBucket(r.Context(), name)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			return domain.ErrValidation("content type must be application/json")
		}
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return bodyError(err)
	}
	return nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return domain.ErrValidation("request body exceeds %d bytes", tooLarge.Limit)
	}
	var valErr *domain.ValidationError
	if errors.As(err, &valErr) {
		return err
	}
	return domain.ErrValidation("invalid request body: %v", err)
}
