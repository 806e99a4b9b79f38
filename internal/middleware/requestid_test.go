package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		headerID string
		wantNew  bool
	}{
		{"valid id kept", "abc-123_DEF.7", false},
		{"missing header", "", true},
		{"newline log forging", "id\nINJECTED: x", true},
		{"spaces", "id with spaces", true},
		{"markup", "<script>", true},
		{"max length", strings.Repeat("a", 128), false},
		{"too long", strings.Repeat("a", 129), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				captured = RequestIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.headerID != "" {
				req.Header.Set(HeaderRequestID, tt.headerID)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.NotEmpty(t, captured)
			assert.Equal(t, captured, rec.Header().Get(HeaderRequestID))
			if tt.wantNew {
				parsed, err := uuid.Parse(captured)
				require.NoError(t, err)
				assert.Equal(t, uuid.Version(7), parsed.Version())
			} else {
				assert.Equal(t, tt.headerID, captured)
			}
		})
	}
}

func TestRequestIDFromContext_Empty(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}
