// Package render talks to the external video render backend. The core
// only submits code buffers and polls job status; rendering itself is
// fully remote.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"cadence/internal/domain"
)

// Job statuses reported by the render backend.
const (
	StatusQueued    = "queued"
	StatusRendering = "rendering"
	StatusDone      = "done"
	StatusFailed    = "failed"
)

// SubmitRequest is one render submission.
type SubmitRequest struct {
	SessionID string `json:"session_id"`
	Code      string `json:"code"`
	Aspect    string `json:"aspect"`
}

// Job is the render backend's view of a submission.
type Job struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	URL      *string `json:"url,omitempty"`
	Error    *string `json:"error,omitempty"`
}

// Client is an HTTP client for the render backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a render client for the given base URL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Submit queues a render job for the given code buffer.
func (c *Client) Submit(ctx context.Context, req *SubmitRequest) (*Job, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: render backend not configured", domain.ErrTransport)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode render request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build render request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	return c.do(httpReq, http.StatusAccepted, http.StatusCreated, http.StatusOK)
}

// Job fetches the current state of a render job.
func (c *Client) Job(ctx context.Context, jobID string) (*Job, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: render backend not configured", domain.ErrTransport)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build render request: %w", err)
	}

	return c.do(httpReq, http.StatusOK)
}

func (c *Client) do(req *http.Request, okStatuses ...int) (*Job, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("render backend unreachable", "url", req.URL.String(), "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: render job", domain.ErrNotFound)
	}

	ok := false
	for _, status := range okStatuses {
		if resp.StatusCode == status {
			ok = true
			break
		}
	}
	if !ok {
		c.logger.Error("render backend error", "url", req.URL.String(), "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: render backend returned %d", domain.ErrTransport, resp.StatusCode)
	}

	var job Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("%w: malformed render response: %v", domain.ErrTransport, err)
	}
	return &job, nil
}
