package catalogclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-bff/internal/domain"
)

func newTestClient(url string) *Client {
	return NewClient(url, "", 0, 0, slog.New(slog.DiscardHandler))
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	c := NewClient("http://catalog:8080/", "tok", 0, 0, slog.New(slog.DiscardHandler))
	assert.Equal(t, "http://catalog:8080", c.BaseURL)
	assert.Equal(t, 30*time.Second, c.HTTPClient.Timeout)
	assert.Nil(t, c.limiter)

	c = NewClient("http://catalog", "", 5*time.Second, 0.5, slog.New(slog.DiscardHandler))
	assert.Equal(t, 5*time.Second, c.HTTPClient.Timeout)
	require.NotNil(t, c.limiter)
	assert.Equal(t, 1, c.limiter.Burst())
}

func TestCreateDatasource(t *testing.T) {
	t.Parallel()

	var (
		gotMethod, gotPath, gotAuth, gotUser, gotProject, gotCT string
		gotSpec                                                 domain.DatasourceSpec
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotUser = r.Header.Get(HeaderUserID)
		gotProject = r.Header.Get(HeaderProjectID)
		gotCT = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotSpec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"ds-1","status":"preparing","extra":true}`)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "secret", 0, 0, slog.New(slog.DiscardHandler))
	ctx := domain.WithIdentity(context.Background(), domain.Identity{UserID: "alice", ProjectID: "proj-1"})
	got, err := c.CreateDatasource(ctx, domain.DatasourceSpec{
		Name:   "sales",
		Bucket: "tmp-1",
		Files:  []domain.FileRef{{Bucket: "tmp-1", Key: "a.csv", FileName: "a.csv"}},
	})
	require.NoError(t, err)

	assert.Equal(t, &domain.CreatedResource{ID: "ds-1", Status: "preparing"}, got)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/v1/datasources", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "alice", gotUser)
	assert.Equal(t, "proj-1", gotProject)
	assert.Equal(t, "application/json", gotCT)
	assert.Equal(t, "tmp-1", gotSpec.Bucket)
	require.Len(t, gotSpec.Files, 1)
}

func TestCreateDataset(t *testing.T) {
	t.Parallel()

	var gotSpec domain.DatasetSpec
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/datasets", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&gotSpec)
		_, _ = io.WriteString(w, `{"id":"dt-1","status":"creating"}`)
	}))
	t.Cleanup(srv.Close)

	got, err := newTestClient(srv.URL).CreateDataset(context.Background(), domain.DatasetSpec{
		Name:            "sales",
		DatasourceID:    "ds-1",
		ProcessorParams: map[string]any{"chunk": float64(512)},
	})
	require.NoError(t, err)
	assert.Equal(t, "dt-1", got.ID)
	assert.Equal(t, "ds-1", gotSpec.DatasourceID)
	assert.Equal(t, float64(512), gotSpec.ProcessorParams["chunk"])
}

func TestGetDatasourceStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/datasources/ds%2F1", r.URL.EscapedPath())
		_, _ = io.WriteString(w, `{"id":"ds/1","status":"ready"}`)
	}))
	t.Cleanup(srv.Close)

	status, err := newTestClient(srv.URL).GetDatasourceStatus(context.Background(), "ds/1")
	require.NoError(t, err)
	assert.Equal(t, "ready", status)
}

func TestClient_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
	}{
		{"json message", http.StatusConflict, `{"code":409,"message":"datasource exists"}`, http.StatusConflict, "datasource exists"},
		{"json error field", http.StatusBadRequest, `{"error":"bad spec"}`, http.StatusBadRequest, "bad spec"},
		{"plain text", http.StatusServiceUnavailable, "upstream down\n", http.StatusServiceUnavailable, "upstream down"},
		{"empty body", http.StatusInternalServerError, "", http.StatusInternalServerError, "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			t.Cleanup(srv.Close)

			_, err := newTestClient(srv.URL).CreateDataset(context.Background(), domain.DatasetSpec{})
			var ext *domain.ExternalServiceError
			require.ErrorAs(t, err, &ext)
			assert.Equal(t, domain.ServiceCatalog, ext.Service)
			assert.Equal(t, "create dataset", ext.Operation)
			assert.Equal(t, tt.wantStatus, ext.StatusCode)
			assert.Equal(t, tt.wantMsg, ext.Message)
		})
	}
}

func TestClient_MissingID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status":"preparing"}`)
	}))
	t.Cleanup(srv.Close)

	_, err := newTestClient(srv.URL).CreateDatasource(context.Background(), domain.DatasourceSpec{})
	var ext *domain.ExternalServiceError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, http.StatusBadGateway, ext.StatusCode)
}

func TestClient_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c := NewClient(srv.URL, "", 50*time.Millisecond, 0, slog.New(slog.DiscardHandler))
	_, err := c.GetDatasourceStatus(context.Background(), "ds-1")
	var ext *domain.ExternalServiceError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, http.StatusGatewayTimeout, ext.StatusCode)
	assert.True(t, ext.Timeout())
}

func TestClient_ConnectionRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url).GetDatasourceStatus(context.Background(), "ds-1")
	var ext *domain.ExternalServiceError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, http.StatusBadGateway, ext.StatusCode)
	assert.NotNil(t, errors.Unwrap(ext))
}
