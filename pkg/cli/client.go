package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the agent-bff /v1 API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a Client with a 30s timeout.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	HTTPStatus int
	Code       int
	ErrorCode  string
	Message    string
	RequestID  string
	// Result is the partial ingestion outcome, when the server sent one.
	Result json.RawMessage
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("API error (HTTP %d): %s", e.HTTPStatus, e.Message)
	if e.ErrorCode != "" {
		msg += " [" + e.ErrorCode + "]"
	}
	return msg
}

// Do sends a JSON request to /v1 + path. body may be nil.
func (c *Client) Do(method, path string, query url.Values, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := c.newRequest(method, path, query, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req)
}

// Upload streams one file to POST /v1/uploads as multipart form field "file".
func (c *Client) Upload(fileName string, r io.Reader) (*http.Response, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", fileName)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	req, err := c.newRequest(http.MethodPost, "/uploads", nil, pr)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.send(req)
}

func (c *Client) newRequest(method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.BaseURL + "/v1" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequest(method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

// CheckError returns an *APIError for non-2xx responses and consumes the body.
func CheckError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	data, _ := ReadBody(resp)
	apiErr := &APIError{HTTPStatus: resp.StatusCode}
	var body struct {
		Code      int             `json:"code"`
		Message   string          `json:"message"`
		ErrorCode string          `json:"errorCode"`
		RequestID string          `json:"requestId"`
		Result    json.RawMessage `json:"result"`
	}
	if json.Unmarshal(data, &body) == nil && body.Message != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
		apiErr.ErrorCode = body.ErrorCode
		apiErr.RequestID = body.RequestID
		apiErr.Result = body.Result
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(data))
	return apiErr
}

// ReadBody reads and closes the response body.
func ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close() //nolint:errcheck
	return io.ReadAll(resp.Body)
}

// decodeResponse checks resp for an API error and decodes the body into out.
func decodeResponse(resp *http.Response, out any) error {
	if err := CheckError(resp); err != nil {
		return err
	}
	data, err := ReadBody(resp)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
