package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"agent-bff/internal/domain"
	"agent-bff/internal/middleware"
)

// ErrorResponse is the body of every non-2xx response. Result carries the
// partial ingestion outcome when a pipeline failed midway.
type ErrorResponse struct {
	Code      int                     `json:"code"`
	Message   string                  `json:"message"`
	ErrorCode string                  `json:"errorCode,omitempty"`
	RequestID string                  `json:"requestId,omitempty"`
	Result    *domain.IngestionResult `json:"result,omitempty"`
}

// httpStatusFromDomainError maps domain errors to HTTP status codes.
func httpStatusFromDomainError(err error) int {
	var (
		notFound     *domain.NotFoundError
		accessDenied *domain.AccessDeniedError
		validation   *domain.ValidationError
		conflict     *domain.ConflictError
		security     *domain.SecurityViolationError
		external     *domain.ExternalServiceError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &accessDenied), errors.As(err, &security):
		return http.StatusForbidden
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &external):
		if external.Timeout() {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, partial *domain.IngestionResult) {
	status := httpStatusFromDomainError(err)
	body := ErrorResponse{
		Code:      status,
		Message:   err.Error(),
		ErrorCode: domain.NewStepError(err).ErrorCode,
		RequestID: middleware.RequestIDFromContext(r.Context()),
		Result:    partial,
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err, "request_id", body.RequestID)
		body.Message = "internal error"
	}
	writeJSON(w, status, body)
}
