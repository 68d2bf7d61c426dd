// Package fetch retrieves page markup from the provisioned service.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/qaflow/internal/failure"
	"github.com/fyrsmithlabs/qaflow/internal/logging"
	"go.uber.org/zap"
)

// maxBodySize caps a fetched page.
const maxBodySize = 10 << 20

// Client fetches pages relative to a base URL.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logging.Logger
}

// NewClient creates a Client. A zero timeout means no client-side timeout.
func NewClient(baseURL string, timeout time.Duration, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// URL returns the absolute URL for path.
func (c *Client) URL(path string) string {
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	return c.baseURL + path
}

// Fetch returns the body of GET base+path. Transport errors and non-2xx
// statuses are fetch failures.
func (c *Client) Fetch(ctx context.Context, path string) (string, error) {
	url := c.URL(path)
	op := "fetch " + url

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", failure.New(failure.KindFetch, op, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn(ctx, "fetch failed", zap.String("url", url), zap.Error(err))
		return "", failure.New(failure.KindFetch, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn(ctx, "fetch returned error status", zap.String("url", url), zap.Int("status", resp.StatusCode))
		return "", failure.New(failure.KindFetch, op, fmt.Errorf("unexpected status %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", failure.New(failure.KindFetch, op, fmt.Errorf("reading body: %w", err))
	}

	c.logger.Debug(ctx, "fetched page", zap.String("url", url), zap.Int("bytes", len(body)))
	return string(body), nil
}
