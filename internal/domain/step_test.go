package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

type codedError struct{ code string }

func (e codedError) Error() string         { return "coded" }
func (e codedError) StepErrorCode() string { return e.code }

func TestNewStepError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{"nil", nil, ErrCodeStepFailed, 0},
		{"plain", errors.New("boom"), ErrCodeStepFailed, 0},
		{"external", ErrExternal(ServiceCatalog, "create dataset", http.StatusConflict, errors.New("exists")), ErrCodeExternalService, http.StatusConflict},
		{"wrapped external", fmt.Errorf("step: %w", ErrExternal(ServiceObjectStore, "copy", 0, nil)), ErrCodeExternalService, 0},
		{"validation", ErrValidation("bad"), ErrCodeValidation, 0},
		{"not found", ErrNotFound("missing"), ErrCodeNotFound, 0},
		{"security", &SecurityViolationError{Path: "../x", Root: "/tmp"}, ErrCodeSecurityViolation, 0},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout, 0},
		{"canceled", fmt.Errorf("poll: %w", context.Canceled), ErrCodeTimeout, 0},
		{"custom code", codedError{code: "NO_MATCHES"}, "NO_MATCHES", 0},
		{"empty custom code falls through", codedError{}, ErrCodeStepFailed, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := NewStepError(tt.err)
			assert.Equal(t, tt.wantCode, se.ErrorCode)
			assert.Equal(t, tt.wantStatus, se.StatusCode)
			assert.NotEmpty(t, se.ErrorMessage)
		})
	}
}

func TestExternalServiceError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := ErrExternal(ServiceCatalog, "get datasource", http.StatusGatewayTimeout, cause)
	assert.True(t, err.Timeout())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "external service error: catalog get datasource failed (status 504): dial tcp: refused", err.Error())
	assert.False(t, ErrExternal(ServiceCatalog, "x", http.StatusBadGateway, nil).Timeout())
}

func TestIdentity(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{UserID: "alice"})
	id, ok := IdentityFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "alice", id.UserID)
	assert.False(t, id.IsZero())
	assert.True(t, Identity{}.IsZero())
}

func TestShortID(t *testing.T) {
	assert.Len(t, ShortID(8), 8)
	assert.Len(t, ShortID(0), 32)
	assert.NotEqual(t, ShortID(12), ShortID(12))
	assert.Len(t, NewID(), 36)
}
