package platform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"creator-bridge/internal/bridge"
)

const defaultUserAgent = "CreatorBridge/1.0"

// HTTPFetcher streams media from platform CDN URLs.
type HTTPFetcher struct {
	http      *http.Client
	userAgent string
}

func NewHTTPFetcher(httpClient *http.Client) *HTTPFetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPFetcher{http: httpClient, userAgent: defaultUserAgent}
}

// Fetch returns the response body. The caller closes it.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, bridge.Permanent(fmt.Errorf("invalid media url: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching media: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, bridge.ClassifyHTTPStatus("media host", resp.StatusCode, strings.TrimSpace(string(body)), retryAfter(resp.Header, time.Now()))
	}
	return resp.Body, nil
}
