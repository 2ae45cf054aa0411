// Package backend talks to the analyzer service that consumes scan results.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/osintkit/deepscan/pkg/platform"
	"github.com/osintkit/deepscan/pkg/profile"
)

const (
	analyzePath = "/api/deep-scan/analyze"
	healthPath  = "/api/health"

	requestTimeout = 30 * time.Second
)

// Client submits scan results to the analyzer.
type Client struct {
	httpClient *http.Client
	baseURL    func(ctx context.Context) string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// New creates a Client. baseURL is consulted per request so settings changes
// take effect without restarting.
func New(baseURL func(ctx context.Context) string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    baseURL,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// analyzeRequest is the wire format for scan submission.
type analyzeRequest struct {
	ScanID           string                                  `json:"scan_id"`
	IdentifierType   string                                  `json:"identifier_type"`
	IdentifierValue  string                                  `json:"identifier_value"`
	PlatformsScanned []string                                `json:"platforms_scanned"`
	Results          map[platform.ID]*profile.PlatformResult `json:"results"`
	ScanDurationMS   int64                                   `json:"scan_duration_ms"`
}

// SubmitScan sends a completed scan to the analyzer. Transient failures are
// retried; the last error is returned when all attempts fail.
func (c *Client) SubmitScan(ctx context.Context, scan *profile.Scan) error {
	platforms := make([]string, 0, len(scan.Platforms))
	for _, p := range scan.Platforms {
		platforms = append(platforms, string(p))
	}
	req := analyzeRequest{
		ScanID:           scan.ID,
		IdentifierType:   string(scan.IdentifierType),
		IdentifierValue:  scan.IdentifierValue,
		PlatformsScanned: platforms,
		Results:          scan.Results,
		ScanDurationMS:   scan.EndTime.Sub(scan.StartTime).Milliseconds(),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding scan %s: %w", scan.ID, err)
	}

	c.logger.InfoContext(ctx, "submitting scan to analyzer", "scan_id", scan.ID, "platforms", platforms)
	_, err = c.post(ctx, analyzePath, body)
	if err != nil {
		return fmt.Errorf("submitting scan %s: %w", scan.ID, err)
	}
	return nil
}

// Send posts arbitrary JSON to an analyzer endpoint and returns the response
// body. The endpoint must be a path, not a full URL.
func (c *Client) Send(ctx context.Context, endpoint string, data json.RawMessage) (json.RawMessage, error) {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.post(ctx, endpoint, data)
}

// Health checks analyzer reachability.
func (c *Client) Health(ctx context.Context) error {
	url := strings.TrimRight(c.baseURL(ctx), "/") + healthPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("analyzer health check: %w", err)
	}
	defer func() { _ = resp.Body.Close() }() //nolint:errcheck // error ignored intentionally
	_, _ = io.Copy(io.Discard, resp.Body)    //nolint:errcheck // drain for connection reuse
	if resp.StatusCode != http.StatusOK {
		return &HTTPError{URL: url, StatusCode: resp.StatusCode}
	}
	return nil
}

// HTTPError is a non-2xx analyzer response.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

func (c *Client) post(ctx context.Context, path string, body []byte) (json.RawMessage, error) {
	url := strings.TrimRight(c.baseURL(ctx), "/") + path

	var respBody []byte
	err := retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return retry.Unrecoverable(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }() //nolint:errcheck // error ignored intentionally

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return &HTTPError{URL: url, StatusCode: resp.StatusCode}
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return retry.Unrecoverable(&HTTPError{URL: url, StatusCode: resp.StatusCode})
		}
		respBody = data
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.DebugContext(ctx, "retrying analyzer request", "url", url, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return respBody, nil
}
