package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// ErrTimeout marks a fetch that did not complete within the connection
// timeout. The dashboard reports it as a lost connection rather than an error.
var ErrTimeout = errors.New("metrics fetch timed out")

// Fetcher returns the raw metrics text of one snapshot.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

type HTTPFetcher struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

func NewHTTPFetcher(url string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		url:     url,
		timeout: timeout,
		client:  &http.Client{},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", f.classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("metrics endpoint returned non-success status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", f.classify(ctx, err)
	}
	return string(body), nil
}

func (f *HTTPFetcher) classify(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w after %s: %v", ErrTimeout, f.timeout, err)
	}
	return fmt.Errorf("failed to fetch metrics: %w", err)
}
