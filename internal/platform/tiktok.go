package platform

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"creator-bridge/internal/bridge"
)

const (
	DefaultTikTokURL = "https://open.tiktokapis.com"

	tiktokFields = "id,title,video_description,duration,create_time,cover_image_url,share_url,download_url,width,height,like_count,comment_count,share_count,view_count"

	// TikTok caps max_count for video/list.
	tiktokMaxPage = 20
)

// TikTok reads posts through the TikTok Display API (v2).
type TikTok struct {
	client
}

// NewTikTok creates an adapter. An empty baseURL uses the public API host.
func NewTikTok(baseURL string, httpClient *http.Client, limiter *rate.Limiter) *TikTok {
	if baseURL == "" {
		baseURL = DefaultTikTokURL
	}
	return &TikTok{client: newClient("tiktok", baseURL, httpClient, limiter)}
}

func (*TikTok) Platform() string { return bridge.PlatformTikTok }

type ttVideo struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	VideoDescription string  `json:"video_description"`
	Duration         float64 `json:"duration"`
	CreateTime       int64   `json:"create_time"`
	CoverImageURL    string  `json:"cover_image_url"`
	ShareURL         string  `json:"share_url"`
	DownloadURL      string  `json:"download_url"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	LikeCount        int64   `json:"like_count"`
	CommentCount     int64   `json:"comment_count"`
	ShareCount       int64   `json:"share_count"`
	ViewCount        int64   `json:"view_count"`
}

type ttError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	LogID   string `json:"log_id"`
}

type ttResponse struct {
	Data struct {
		Videos  []ttVideo `json:"videos"`
		Cursor  int64     `json:"cursor"`
		HasMore bool      `json:"has_more"`
	} `json:"data"`
	Error ttError `json:"error"`
}

// ListRecent returns the account's recent videos, newest first.
func (tt *TikTok) ListRecent(ctx context.Context, conn *bridge.Connection, cursor string, limit int) (*bridge.ListPage, error) {
	if limit <= 0 || limit > tiktokMaxPage {
		limit = tiktokMaxPage
	}
	body := map[string]any{"max_count": limit}
	if cursor != "" {
		c, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid tiktok cursor %q: %w", cursor, err)
		}
		body["cursor"] = c
	}

	var resp ttResponse
	if err := tt.post(ctx, conn, "/v2/video/list/", body, &resp); err != nil {
		return nil, err
	}

	out := &bridge.ListPage{HasMore: resp.Data.HasMore}
	if resp.Data.HasMore {
		out.NextCursor = strconv.FormatInt(resp.Data.Cursor, 10)
	}
	for _, v := range resp.Data.Videos {
		out.Items = append(out.Items, v.descriptor())
	}
	return out, nil
}

// GetDetails fetches one video by id.
func (tt *TikTok) GetDetails(ctx context.Context, conn *bridge.Connection, externalID string) (*bridge.VideoDescriptor, error) {
	body := map[string]any{
		"filters": map[string]any{"video_ids": []string{externalID}},
	}

	var resp ttResponse
	if err := tt.post(ctx, conn, "/v2/video/query/", body, &resp); err != nil {
		return nil, err
	}
	for _, v := range resp.Data.Videos {
		if v.ID == externalID {
			d := v.descriptor()
			return &d, nil
		}
	}
	return nil, fmt.Errorf("tiktok video %s: %w", externalID, bridge.ErrNotFound)
}

func (tt *TikTok) post(ctx context.Context, conn *bridge.Connection, path string, body any, out *ttResponse) error {
	tok, err := accessToken(conn)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding tiktok request: %w", err)
	}
	q := url.Values{}
	q.Set("fields", tiktokFields)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tt.baseURL+path+"?"+q.Encode(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	tok.SetAuthHeader(req)

	if err := tt.do(ctx, req, out, tiktokError); err != nil {
		return err
	}
	return out.Error.err(0)
}

// tiktokError decodes the error envelope TikTok sends with non-2xx statuses.
func tiktokError(code int, body []byte) error {
	var resp ttResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	return resp.Error.err(code)
}

// err maps a TikTok error code; "ok" and empty codes are not errors.
func (e ttError) err(status int) error {
	switch e.Code {
	case "", "ok":
		return nil
	case "access_token_invalid", "scope_not_authorized", "scope_permission_missed":
		return bridge.Permanent(fmt.Errorf("%w: tiktok: %s", bridge.ErrConnectionUnavailable, e.Code))
	case "rate_limit_exceeded":
		return &bridge.RateLimitedError{Service: "tiktok"}
	case "invalid_params":
		return bridge.Permanent(fmt.Errorf("tiktok rejected request: %s", e.Message))
	}
	if status == 0 {
		status = http.StatusBadGateway
	}
	return &bridge.HTTPStatusError{Service: "tiktok", Code: status, Body: e.Code + ": " + e.Message}
}

func (v ttVideo) descriptor() bridge.VideoDescriptor {
	caption := v.VideoDescription
	if caption == "" {
		caption = v.Title
	}
	d := bridge.VideoDescriptor{
		ExternalID:      v.ID,
		Caption:         caption,
		MediaURL:        v.DownloadURL,
		ThumbnailURL:    v.CoverImageURL,
		Permalink:       v.ShareURL,
		DurationSeconds: v.Duration,
		Width:           v.Width,
		Height:          v.Height,
		Stats: &bridge.Stats{
			Likes:    v.LikeCount,
			Comments: v.CommentCount,
			Shares:   v.ShareCount,
			Views:    v.ViewCount,
		},
	}
	if v.DownloadURL != "" {
		d.MediaURLs = []string{v.DownloadURL}
	}
	if v.CreateTime > 0 {
		t := time.Unix(v.CreateTime, 0).UTC()
		d.PostedAt = &t
	}
	return d
}
