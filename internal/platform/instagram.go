package platform

import (
	"context"
	"errors"
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
	DefaultInstagramURL = "https://graph.instagram.com"

	instagramListFields   = "id,caption,media_type,media_url,thumbnail_url,permalink,timestamp,username"
	instagramDetailFields = "id,caption,media_type,media_url,thumbnail_url,permalink,timestamp,username,like_count,comments_count,children{id,media_type,media_url,thumbnail_url}"
)

// Graph API error codes that matter to the pipeline.
const (
	igCodeInvalidToken = 190
	igCodeAppLimit     = 4
	igCodeUserLimit    = 17
	igCodeThrottled    = 32
	igCodeRateLimit    = 613
)

// Instagram reads posts through the Instagram Graph API.
type Instagram struct {
	client
}

// NewInstagram creates an adapter. An empty baseURL uses the public Graph API.
func NewInstagram(baseURL string, httpClient *http.Client, limiter *rate.Limiter) *Instagram {
	if baseURL == "" {
		baseURL = DefaultInstagramURL
	}
	return &Instagram{client: newClient("instagram", baseURL, httpClient, limiter)}
}

func (*Instagram) Platform() string { return bridge.PlatformInstagram }

type igMedia struct {
	ID            string `json:"id"`
	Caption       string `json:"caption"`
	MediaType     string `json:"media_type"`
	MediaURL      string `json:"media_url"`
	ThumbnailURL  string `json:"thumbnail_url"`
	Permalink     string `json:"permalink"`
	Timestamp     string `json:"timestamp"`
	Username      string `json:"username"`
	LikeCount     int64  `json:"like_count"`
	CommentsCount int64  `json:"comments_count"`
	Children      *struct {
		Data []igMedia `json:"data"`
	} `json:"children"`
}

type igPage struct {
	Data   []igMedia `json:"data"`
	Paging struct {
		Cursors struct {
			After string `json:"after"`
		} `json:"cursors"`
		Next string `json:"next"`
	} `json:"paging"`
}

type igErrorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// ListRecent returns the account's recent video and carousel posts.
func (ig *Instagram) ListRecent(ctx context.Context, conn *bridge.Connection, cursor string, limit int) (*bridge.ListPage, error) {
	tok, err := accessToken(conn)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("fields", instagramListFields)
	q.Set("access_token", tok.AccessToken)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("after", cursor)
	}

	var page igPage
	if err := ig.get(ctx, "/me/media", q, &page); err != nil {
		return nil, err
	}

	out := &bridge.ListPage{HasMore: page.Paging.Next != ""}
	if out.HasMore {
		out.NextCursor = page.Paging.Cursors.After
	}
	for _, m := range page.Data {
		if m.MediaType != "VIDEO" && m.MediaType != "CAROUSEL_ALBUM" {
			continue
		}
		out.Items = append(out.Items, m.descriptor())
	}
	return out, nil
}

// GetDetails fetches one post. Carousel posts resolve to their first video child;
// posts without any video are rejected as invalid media.
func (ig *Instagram) GetDetails(ctx context.Context, conn *bridge.Connection, externalID string) (*bridge.VideoDescriptor, error) {
	tok, err := accessToken(conn)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("fields", instagramDetailFields)
	q.Set("access_token", tok.AccessToken)

	var m igMedia
	if err := ig.get(ctx, "/"+url.PathEscape(externalID), q, &m); err != nil {
		return nil, err
	}

	v := m.descriptor()
	switch m.MediaType {
	case "VIDEO":
	case "CAROUSEL_ALBUM":
		v.MediaURL, v.MediaURLs = "", nil
		if m.Children != nil {
			for _, c := range m.Children.Data {
				if c.MediaType != "VIDEO" {
					continue
				}
				if v.MediaURL == "" {
					v.MediaURL = c.MediaURL
					if c.ThumbnailURL != "" {
						v.ThumbnailURL = c.ThumbnailURL
					}
				}
				v.MediaURLs = append(v.MediaURLs, c.MediaURL)
			}
		}
		if v.MediaURL == "" {
			return nil, bridge.Permanent(fmt.Errorf("%w: instagram carousel %s has no video", bridge.ErrInvalidMedia, externalID))
		}
	default:
		return nil, bridge.Permanent(fmt.Errorf("%w: instagram post %s is %s, not a video", bridge.ErrInvalidMedia, externalID, m.MediaType))
	}

	v.Stats = &bridge.Stats{Likes: m.LikeCount, Comments: m.CommentsCount}
	return &v, nil
}

func (ig *Instagram) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ig.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return ig.do(ctx, req, out, instagramError)
}

// instagramError maps Graph API error envelopes onto the pipeline's error types.
func instagramError(code int, body []byte) error {
	var env igErrorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error.Code == 0 {
		return nil
	}
	msg := env.Error.Message
	switch env.Error.Code {
	case igCodeInvalidToken:
		return bridge.Permanent(fmt.Errorf("%w: instagram: %s", bridge.ErrConnectionUnavailable, msg))
	case igCodeAppLimit, igCodeUserLimit, igCodeThrottled, igCodeRateLimit:
		return &bridge.RateLimitedError{Service: "instagram"}
	}
	if code == http.StatusNotFound || env.Error.Type == "GraphMethodException" {
		return fmt.Errorf("instagram: %s: %w", msg, bridge.ErrNotFound)
	}
	return &bridge.HTTPStatusError{Service: "instagram", Code: code, Body: msg}
}

func (m igMedia) descriptor() bridge.VideoDescriptor {
	v := bridge.VideoDescriptor{
		ExternalID:   m.ID,
		Caption:      m.Caption,
		MediaURL:     m.MediaURL,
		ThumbnailURL: m.ThumbnailURL,
		Permalink:    m.Permalink,
	}
	if m.MediaURL != "" {
		v.MediaURLs = []string{m.MediaURL}
	}
	if t, err := parseInstagramTime(m.Timestamp); err == nil {
		v.PostedAt = &t
	}
	return v
}

// Graph API timestamps look like 2024-03-01T12:00:00+0000.
func parseInstagramTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if t, err := time.Parse("2006-01-02T15:04:05-0700", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
