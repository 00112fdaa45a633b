package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// Fetcher opens a source locator for reading.
type Fetcher interface {
	CanFetch(locator string) bool
	Fetch(ctx context.Context, locator string) (io.ReadCloser, error)
}

// ErrUnsupportedSource indicates no fetcher accepts the locator.
var ErrUnsupportedSource = errors.New("unsupported source locator")

// FileFetcher reads local paths and file:// locators.
type FileFetcher struct{}

func (FileFetcher) CanFetch(locator string) bool {
	if strings.HasPrefix(locator, "file://") {
		return true
	}
	return !strings.Contains(locator, "://")
}

func (FileFetcher) Fetch(_ context.Context, locator string) (io.ReadCloser, error) {
	path := strings.TrimPrefix(locator, "file://")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	return f, nil
}

// HTTPFetcher downloads http(s) locators.
type HTTPFetcher struct {
	Client *http.Client
}

func (*HTTPFetcher) CanFetch(locator string) bool {
	l := strings.ToLower(locator)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

func (h *HTTPFetcher) Fetch(ctx context.Context, locator string) (io.ReadCloser, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/csv, text/plain;q=0.9, */*;q=0.1")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("fetch: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	return resp.Body, nil
}
