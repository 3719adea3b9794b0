// SPDX-License-Identifier: MPL-2.0

// Package semantic talks to the remote semantic query service. It submits
// and reads query and copilot jobs and can act as the dashboard and results
// snapshot store when dashboards are kept remotely.
package semantic

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

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// RPS and Burst bound outbound requests. RPS <= 0 disables limiting.
	RPS        float64
	Burst      int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

func NewClient(config Config) *Client {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RPS > 0 {
		burst := config.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RPS), burst)
	}
	return &Client{
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		token:      config.Token,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger,
	}
}

// do sends a JSON request. body may be nil. requestID, when set, is sent as
// X-Request-ID so the service can deduplicate retried submissions.
func (c *Client) do(ctx context.Context, method, path string, body any, requestID string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// call performs a request and decodes a successful JSON response into out.
// out may be nil to discard the body.
func (c *Client) call(ctx context.Context, method, path string, body any, out any, expected ...int) error {
	requestID := ""
	if method == http.MethodPost {
		requestID = uuid.NewString()
	}
	resp, err := c.do(ctx, method, path, body, requestID)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !statusIn(resp.StatusCode, expected) {
		err := decodeAPIError(resp)
		c.logger.Debug("Semantic service request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("requestId", requestID),
			slog.Any("error", err),
		)
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response of %s %s: %w", method, path, err)
	}
	return nil
}

func statusIn(status int, expected []int) bool {
	if len(expected) == 0 {
		return status >= 200 && status < 300
	}
	for _, s := range expected {
		if s == status {
			return true
		}
	}
	return false
}
