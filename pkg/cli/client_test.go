package cli

import (
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:8080/", "tok")
	assert.Equal(t, "http://localhost:8080", c.BaseURL)
	assert.Equal(t, "tok", c.Token)
	require.NotNil(t, c.HTTPClient)
	assert.Equal(t, 30*time.Second, c.HTTPClient.Timeout)
}

func TestDo_Request(t *testing.T) {
	var (
		gotPath, gotQuery, gotAuth, gotCT, gotBody string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		gotAuth, gotCT = r.Header.Get("Authorization"), r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	resp, err := NewClient(srv.URL, "secret").Do(http.MethodPost, "/ingestions/bucket",
		url.Values{"dry": {"1"}}, map[string]string{"datasetName": "q1"})
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "/v1/ingestions/bucket", gotPath)
	assert.Equal(t, "dry=1", gotQuery)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "application/json", gotCT)
	assert.JSONEq(t, `{"datasetName":"q1"}`, gotBody)
}

func TestDo_NoTokenNoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	resp, err := NewClient(srv.URL, "").Do(http.MethodGet, "/reconciliations", nil, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
}

func TestDo_ConnectionRefused(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:1", "").Do(http.MethodGet, "/reconciliations", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute request")
}

func TestUpload_Multipart(t *testing.T) {
	var gotName, gotContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/uploads", r.URL.Path)
		mt, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		assert.Equal(t, "multipart/form-data", mt)
		part, err := multipart.NewReader(r.Body, params["boundary"]).NextPart()
		require.NoError(t, err)
		assert.Equal(t, "file", part.FormName())
		gotName = part.FileName()
		b, _ := io.ReadAll(part)
		gotContent = string(b)
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)

	resp, err := NewClient(srv.URL, "").Upload("sales.csv", strings.NewReader("a,b\n1,2\n"))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "sales.csv", gotName)
	assert.Equal(t, "a,b\n1,2\n", gotContent)
}

func newResponse(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}
}

func TestCheckError(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    string
		wantCode   string
		wantResult bool
	}{
		{name: "200", status: 200},
		{name: "201", status: 201},
		{
			name:    "structured",
			status:  404,
			body:    `{"code":404,"message":"bucket not found"}`,
			wantErr: "API error (HTTP 404): bucket not found",
		},
		{
			name:       "partial result",
			status:     502,
			body:       `{"code":502,"message":"catalog unavailable","errorCode":"DATASET_CREATION_FAILED","result":{"success":false}}`,
			wantErr:    "API error (HTTP 502): catalog unavailable [DATASET_CREATION_FAILED]",
			wantCode:   "DATASET_CREATION_FAILED",
			wantResult: true,
		},
		{
			name:    "raw body",
			status:  500,
			body:    "Internal Server Error\n",
			wantErr: "API error (HTTP 500): Internal Server Error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckError(newResponse(tt.status, tt.body))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.wantErr, err.Error())
			assert.Equal(t, tt.status, apiErr.HTTPStatus)
			assert.Equal(t, tt.wantCode, apiErr.ErrorCode)
			assert.Equal(t, tt.wantResult, len(apiErr.Result) > 0)
		})
	}
}

func TestDecodeResponse_BadJSON(t *testing.T) {
	var out map[string]any
	err := decodeResponse(newResponse(200, "not json"), &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}
