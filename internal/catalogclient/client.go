// Package catalogclient is the HTTP client for the downstream dataset and
// datasource catalog.
package catalogclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"agent-bff/internal/domain"
)

// Headers carrying the acting identity to the catalog.
const (
	HeaderUserID    = "X-User-Id"
	HeaderProjectID = "X-Project-Id"

	defaultTimeout = 30 * time.Second
	maxErrorBody   = 4 << 10
)

// Client implements domain.CatalogService over HTTP/JSON.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a catalog client. rps <= 0 disables client-side throttling.
func NewClient(baseURL, token string, timeout time.Duration, rps float64, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "catalogclient"),
	}
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return c
}

type createdResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateDatasource calls POST /v1/datasources.
func (c *Client) CreateDatasource(ctx context.Context, spec domain.DatasourceSpec) (*domain.CreatedResource, error) {
	var out createdResponse
	if err := c.do(ctx, "create datasource", http.MethodPost, "/v1/datasources", spec, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, domain.ErrExternal(domain.ServiceCatalog, "create datasource", http.StatusBadGateway,
			errors.New("response carries no datasource id"))
	}
	return &domain.CreatedResource{ID: out.ID, Status: out.Status}, nil
}

// CreateDataset calls POST /v1/datasets.
func (c *Client) CreateDataset(ctx context.Context, spec domain.DatasetSpec) (*domain.CreatedResource, error) {
	var out createdResponse
	if err := c.do(ctx, "create dataset", http.MethodPost, "/v1/datasets", spec, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, domain.ErrExternal(domain.ServiceCatalog, "create dataset", http.StatusBadGateway,
			errors.New("response carries no dataset id"))
	}
	return &domain.CreatedResource{ID: out.ID, Status: out.Status}, nil
}

// GetDatasourceStatus calls GET /v1/datasources/{id} and returns its status.
func (c *Client) GetDatasourceStatus(ctx context.Context, id string) (string, error) {
	var out createdResponse
	if err := c.do(ctx, "get datasource", http.MethodGet, "/v1/datasources/"+url.PathEscape(id), nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// do sends one JSON request. Every failure is an *domain.ExternalServiceError:
// transport timeouts map to 504, other transport failures to 502, and non-2xx
// responses keep their status.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return transportError(op, err)
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if id, ok := domain.IdentityFromContext(ctx); ok {
		if id.UserID != "" {
			req.Header.Set(HeaderUserID, id.UserID)
		}
		if id.ProjectID != "" {
			req.Header.Set(HeaderProjectID, id.ProjectID)
		}
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.logger.Warn("catalog request failed", "op", op, "error", err)
		return transportError(op, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	c.logger.Debug("catalog request", "op", op, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.ErrExternal(domain.ServiceCatalog, op, resp.StatusCode, errors.New(errorMessage(resp)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.ErrExternal(domain.ServiceCatalog, op, http.StatusBadGateway, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func transportError(op string, err error) *domain.ExternalServiceError {
	status := http.StatusBadGateway
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		status = http.StatusGatewayTimeout
	}
	return domain.ErrExternal(domain.ServiceCatalog, op, status, err)
}

// errorMessage extracts "message" (or "error") from a JSON error body, falling
// back to the raw body text or the status text.
func errorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if s := strings.TrimSpace(string(raw)); s != "" {
		return s
	}
	return http.StatusText(resp.StatusCode)
}

var _ domain.CatalogService = (*Client)(nil)
