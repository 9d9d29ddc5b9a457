// Package platform implements the Instagram and TikTok source adapters and
// the HTTP fetcher that streams their media.
package platform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"creator-bridge/internal/bridge"
	"creator-bridge/internal/metrics"
)

// maxErrorBody bounds how much of an error response is kept for the message.
const maxErrorBody = 4 << 10

// client is the HTTP plumbing shared by the platform adapters.
type client struct {
	service string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

func newClient(service, baseURL string, httpClient *http.Client, limiter *rate.Limiter) client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		limiter: limiter,
	}
}

// do sends req after waiting for the rate limiter and decodes a JSON body into out.
// apiErr, when non-nil, may turn a platform error envelope into a typed error.
func (c *client) do(ctx context.Context, req *http.Request, out any, apiErr func(code int, body []byte) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s rate limiter: %w", c.service, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", c.service, err)
	}
	defer resp.Body.Close()
	metrics.UpstreamRequests.WithLabelValues(c.service, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if apiErr != nil {
			if err := apiErr(resp.StatusCode, body); err != nil {
				return err
			}
		}
		return bridge.ClassifyHTTPStatus(c.service, resp.StatusCode, strings.TrimSpace(string(body)), retryAfter(resp.Header, time.Now()))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", c.service, err)
	}
	return nil
}

// retryAfter parses a Retry-After header given as seconds or an HTTP date.
func retryAfter(h http.Header, now time.Time) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

// accessToken returns the connection's token, refusing one that has expired.
func accessToken(conn *bridge.Connection) (*oauth2.Token, error) {
	tok := &oauth2.Token{AccessToken: conn.AccessToken, TokenType: "Bearer"}
	if conn.TokenExpiry != nil {
		tok.Expiry = *conn.TokenExpiry
	}
	if !tok.Valid() {
		return nil, bridge.Permanent(fmt.Errorf("%w: connection %s has no valid access token", bridge.ErrConnectionUnavailable, conn.ID))
	}
	return tok, nil
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(rps), max(burst, 1))
}
