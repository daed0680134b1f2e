// Package api is the client for the rental backend REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultHealthTimeout = 3 * time.Second
	defaultHealthPath    = "/api/health"

	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
)

// StatusError is returned for backend responses with a status code outside 2xx.
type StatusError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend responded with %s", e.Status)
}

type Options struct {
	// HTTPClient is the underlying client. A client with Timeout is created when nil.
	HTTPClient    *http.Client
	Timeout       time.Duration
	RetryMax      int
	HealthPath    string
	HealthTimeout time.Duration
}

type Client struct {
	baseURL       string
	http          *retryablehttp.Client
	healthPath    string
	healthTimeout time.Duration
}

func NewClient(baseURL string, opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	rc := retryablehttp.NewClient()
	rc.HTTPClient = hc
	rc.RetryMax = max(opts.RetryMax, 0)
	rc.Logger = nil
	rc.ResponseLogHook = logResponse
	rc.ErrorHandler = passResponse

	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          rc,
		healthPath:    opts.HealthPath,
		healthTimeout: opts.HealthTimeout,
	}
	if c.healthPath == "" {
		c.healthPath = defaultHealthPath
	}
	if c.healthTimeout <= 0 {
		c.healthTimeout = defaultHealthTimeout
	}
	return c
}

func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) Post(ctx context.Context, path string, body any) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *Client) Put(ctx context.Context, path string, body any) ([]byte, error) {
	return c.do(ctx, http.MethodPut, path, body)
}

func (c *Client) Delete(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

// Health reports whether the backend answers its health endpoint within the health timeout.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()
	_, err := c.do(ctx, http.MethodGet, c.healthPath, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path = strings.TrimRight(u.Path, "/") + path

	var raw any
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		raw = b
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), raw)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", contentTypeJSON)
	if raw != nil {
		req.Header.Set(headerContentType, contentTypeJSON)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: statusText(resp), Body: data}
	}
	return data, nil
}

// passResponse hands the last response to the caller once retries are exhausted,
// so status codes are reported by the client and transport errors stay unwrapped.
func passResponse(resp *http.Response, err error, _ int) (*http.Response, error) {
	if resp != nil {
		return resp, nil
	}
	return nil, err
}

// logResponse is a callback for retryablehttp.
// HTTP errors are logged with WARN level, all other responses with DEBUG level.
func logResponse(_ retryablehttp.Logger, r *http.Response) {
	isHTTPError := r.StatusCode >= 400
	level := slog.LevelDebug
	if isHTTPError {
		level = slog.LevelWarn
	}
	ctx := context.Background()
	if r.Request != nil {
		ctx = r.Request.Context()
	}
	if !slog.Default().Enabled(ctx, level) {
		return
	}
	args := []any{"status", statusText(r)}
	if r.Request != nil {
		args = append(args, "method", r.Request.Method, "url", r.Request.URL)
	}
	if isHTTPError {
		body, err := copyResponseBody(r)
		if err != nil {
			slog.Error("Failed to extract response body", "error", err)
		} else {
			args = append(args, "body", string(body))
		}
	}
	slog.Log(ctx, level, "Backend response", args...)
}

// copyResponseBody returns a copy of the response body and preserves it.
func copyResponseBody(r *http.Response) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewBuffer(body))
	return body, nil
}

func statusText(r *http.Response) string {
	return fmt.Sprintf("%d %s", r.StatusCode, http.StatusText(r.StatusCode))
}
