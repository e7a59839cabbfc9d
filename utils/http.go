package utils

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxDrain bounds how much of a probe response body is read before closing.
const maxDrain = 64 << 10

// APIError carries the HTTP status code of a server-side failure.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string { return e.Message }

// NewHTTPClient returns a client whose requests, including redirects, are
// bounded by timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// HTTPReachable issues a GET to url. Any response below 500 counts as
// reachable; 5xx is returned as *APIError, transport failures as plain errors.
// The returned duration is the time to response headers.
func HTTPReachable(ctx context.Context, hc *http.Client, url string) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request GET %s: %w", url, err)
	}
	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("GET %s: %w", url, err)
	}
	elapsed := time.Since(start)
	defer resp.Body.Close()                                         //nolint:errcheck
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain)) //nolint:errcheck
	if resp.StatusCode >= http.StatusInternalServerError {
		return elapsed, &APIError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("GET %s → %d", url, resp.StatusCode),
		}
	}
	return elapsed, nil
}
