// Package kvfinder provides a client for the KVFinder-web cavity detection service.
package kvfinder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/cavitas/internal/interfaces"
	"github.com/ternarybob/cavitas/internal/models"
)

const (
	// DefaultBaseURL is the public KVFinder-web server.
	DefaultBaseURL = "http://kvfinder-web.cnpem.br"

	// DefaultAPIPath is the path of the job API below the base URL.
	DefaultAPIPath = "/api"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 5

	// DefaultDataLimit is the largest create request the service accepts.
	DefaultDataLimit = 5 * 1024 * 1024
)

// Client talks to the detection service job API.
type Client struct {
	baseURL    string
	apiPath    string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
	dataLimit  int64
}

var _ interfaces.DetectionService = (*Client)(nil)

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithAPIPath sets the job API path below the base URL.
func WithAPIPath(path string) ClientOption {
	return func(c *Client) {
		path = strings.Trim(path, "/")
		if path != "" {
			path = "/" + path
		}
		c.apiPath = path
	}
}

// WithHTTPClient sets a custom HTTP client. A zero timeout is replaced by DefaultTimeout.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit. Zero disables limiting.
func WithRateLimit(requestsPerSecond float64) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithDataLimit sets the largest encoded create request the client will send.
func WithDataLimit(bytes int64) ClientOption {
	return func(c *Client) {
		c.dataLimit = bytes
	}
}

// NewClient creates a new detection service client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiPath: DefaultAPIPath,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter:   rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		dataLimit: DefaultDataLimit,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient.Timeout <= 0 {
		c.httpClient.Timeout = DefaultTimeout
	}

	return c
}

// Probe reports whether the service root answers. Any HTTP response counts.
func (c *Client) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.logger != nil {
			c.logger.Debug().Err(err).Str("url", c.baseURL).Msg("Detection service probe failed")
		}
		return false
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return true
}

// Submit sends a create request. A reply carrying output means the service
// already knew the job (Known is set).
func (c *Client) Submit(ctx context.Context, req *models.CreateRequest) (*models.SubmitResult, error) {
	const op = "submit"

	body, err := json.Marshal(req)
	if err != nil {
		return nil, newError(KindContentError, op, err, "failed to encode request: %v", err)
	}
	if c.dataLimit > 0 && int64(len(body)) > c.dataLimit {
		return nil, newError(KindPayloadTooLarge, op, nil,
			"request is %d bytes, limit is %d bytes", len(body), c.dataLimit)
	}

	reply, err := c.do(ctx, op, http.MethodPost, c.apiPath+"/create", body)
	if err != nil {
		return nil, err
	}

	status, err := models.ParseJobStatus(reply.Status)
	if err != nil {
		return nil, newError(KindContentError, op, err, "%v", err)
	}
	if reply.ID == "" {
		return nil, newError(KindContentError, op, nil, "reply has no job id")
	}

	result := &models.SubmitResult{
		ID:     reply.ID,
		Status: status,
		Output: reply.Output,
		Known:  reply.Output != nil,
	}
	if !result.Known {
		// a fresh job always starts queued regardless of the echoed status
		result.Status = models.JobStatusQueued
	}
	return result, nil
}

// Fetch returns the status of job id, with output once it has completed.
func (c *Client) Fetch(ctx context.Context, id string) (*models.FetchResult, error) {
	const op = "fetch"

	reply, err := c.do(ctx, op, http.MethodGet, c.apiPath+"/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	status, err := models.ParseJobStatus(reply.Status)
	if err != nil {
		return nil, newError(KindContentError, op, err, "%v", err)
	}
	if status == models.JobStatusCompleted && reply.Output == nil {
		return nil, newError(KindContentError, op, nil, "completed job %s has no output", id)
	}

	return &models.FetchResult{Status: status, Output: reply.Output}, nil
}

// do performs a request and decodes the reply.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte) (*models.ServiceReply, error) {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, newError(KindTimeout, op, err, "rate limiter: %v", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, newError(KindServiceError, op, err, "failed to create request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("method", method).
			Str("url", c.baseURL+path).
			Int("bytes", len(body)).
			Msg("Detection service request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(op, err)
	}

	switch {
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return nil, newError(KindPayloadTooLarge, op, nil, "service rejected request size (status %d)", resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, newError(KindNotFound, op, nil, "%s not found", path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, newError(KindServiceError, op, nil, "status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var reply models.ServiceReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, newError(KindContentError, op, err, "failed to decode reply: %v", err)
	}
	if reply.Status == "" {
		return nil, newError(KindContentError, op, nil, "reply has no status")
	}

	return &reply, nil
}

// String describes the client endpoint for logs.
func (c *Client) String() string {
	return fmt.Sprintf("%s%s", c.baseURL, c.apiPath)
}
