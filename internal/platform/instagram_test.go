package platform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"creator-bridge/internal/bridge"
)

func testConn(platform string) *bridge.Connection {
	return &bridge.Connection{ID: "conn-1", Platform: platform, AccountID: "acct-1", AccessToken: "tok-123", IsActive: true}
}

func newInstagramServer(t *testing.T, handler http.HandlerFunc) *Instagram {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewInstagram(srv.URL, srv.Client(), nil)
}

func TestInstagram_ListRecent(t *testing.T) {
	ig := newInstagramServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/media" {
			t.Errorf("path = %q, want /me/media", r.URL.Path)
		}
		if got := r.URL.Query().Get("access_token"); got != "tok-123" {
			t.Errorf("access_token = %q, want tok-123", got)
		}
		if got := r.URL.Query().Get("after"); got != "cur-0" {
			t.Errorf("after = %q, want cur-0", got)
		}
		w.Write([]byte(`{
			"data": [
				{"id": "ig_001", "media_type": "VIDEO", "caption": "Beach day #summer", "media_url": "https://cdn/ig_001.mp4", "timestamp": "2024-03-01T12:00:00+0000"},
				{"id": "ig_002", "media_type": "IMAGE", "media_url": "https://cdn/ig_002.jpg"},
				{"id": "ig_003", "media_type": "CAROUSEL_ALBUM"}
			],
			"paging": {"cursors": {"after": "cur-1"}, "next": "https://graph.instagram.com/next"}
		}`))
	})

	page, err := ig.ListRecent(context.Background(), testConn("instagram"), "cur-0", 10)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2 (images skipped)", len(page.Items))
	}
	if page.Items[0].ExternalID != "ig_001" || page.Items[1].ExternalID != "ig_003" {
		t.Errorf("Items = %s, %s; want ig_001, ig_003", page.Items[0].ExternalID, page.Items[1].ExternalID)
	}
	if !page.HasMore || page.NextCursor != "cur-1" {
		t.Errorf("HasMore = %v, NextCursor = %q; want true, cur-1", page.HasMore, page.NextCursor)
	}
	want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if page.Items[0].PostedAt == nil || !page.Items[0].PostedAt.Equal(want) {
		t.Errorf("PostedAt = %v, want %v", page.Items[0].PostedAt, want)
	}
}

func TestInstagram_GetDetails(t *testing.T) {
	t.Run("video", func(t *testing.T) {
		ig := newInstagramServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/ig_001" {
				t.Errorf("path = %q, want /ig_001", r.URL.Path)
			}
			w.Write([]byte(`{"id": "ig_001", "media_type": "VIDEO", "caption": "Beach day",
				"media_url": "https://cdn/ig_001.mp4", "thumbnail_url": "https://cdn/ig_001.jpg",
				"permalink": "https://instagram.com/p/ig_001", "like_count": 12, "comments_count": 3}`))
		})

		v, err := ig.GetDetails(context.Background(), testConn("instagram"), "ig_001")
		if err != nil {
			t.Fatalf("GetDetails() error = %v", err)
		}
		if v.MediaURL != "https://cdn/ig_001.mp4" {
			t.Errorf("MediaURL = %q", v.MediaURL)
		}
		if v.Permalink != "https://instagram.com/p/ig_001" {
			t.Errorf("Permalink = %q", v.Permalink)
		}
		if v.Stats == nil || v.Stats.Likes != 12 || v.Stats.Comments != 3 {
			t.Errorf("Stats = %+v, want likes=12 comments=3", v.Stats)
		}
	})

	t.Run("carousel resolves to first video child", func(t *testing.T) {
		ig := newInstagramServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id": "ig_003", "media_type": "CAROUSEL_ALBUM", "media_url": "https://cdn/cover.jpg",
				"children": {"data": [
					{"id": "c1", "media_type": "IMAGE", "media_url": "https://cdn/c1.jpg"},
					{"id": "c2", "media_type": "VIDEO", "media_url": "https://cdn/c2.mp4", "thumbnail_url": "https://cdn/c2.jpg"},
					{"id": "c3", "media_type": "VIDEO", "media_url": "https://cdn/c3.mp4"}
				]}}`))
		})

		v, err := ig.GetDetails(context.Background(), testConn("instagram"), "ig_003")
		if err != nil {
			t.Fatalf("GetDetails() error = %v", err)
		}
		if v.MediaURL != "https://cdn/c2.mp4" {
			t.Errorf("MediaURL = %q, want first video child", v.MediaURL)
		}
		if v.ThumbnailURL != "https://cdn/c2.jpg" {
			t.Errorf("ThumbnailURL = %q, want child thumbnail", v.ThumbnailURL)
		}
		if len(v.MediaURLs) != 2 {
			t.Errorf("len(MediaURLs) = %d, want 2", len(v.MediaURLs))
		}
	})

	t.Run("image is invalid media", func(t *testing.T) {
		ig := newInstagramServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id": "ig_002", "media_type": "IMAGE"}`))
		})
		_, err := ig.GetDetails(context.Background(), testConn("instagram"), "ig_002")
		if !errors.Is(err, bridge.ErrInvalidMedia) {
			t.Fatalf("GetDetails() error = %v, want ErrInvalidMedia", err)
		}
		if bridge.IsRetryable(err) {
			t.Error("invalid media classified as retryable")
		}
	})
}

func TestInstagram_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		header    map[string]string
		body      string
		check     func(t *testing.T, err error)
		retryable bool
	}{
		{
			name:   "invalid token",
			status: http.StatusBadRequest,
			body:   `{"error": {"message": "Error validating access token", "type": "OAuthException", "code": 190}}`,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, bridge.ErrConnectionUnavailable) {
					t.Errorf("error = %v, want ErrConnectionUnavailable", err)
				}
			},
		},
		{
			name:   "application rate limit",
			status: http.StatusForbidden,
			body:   `{"error": {"message": "Application request limit reached", "code": 4}}`,
			check: func(t *testing.T, err error) {
				var rl *bridge.RateLimitedError
				if !errors.As(err, &rl) {
					t.Errorf("error = %v, want RateLimitedError", err)
				}
			},
			retryable: true,
		},
		{
			name:   "plain 429 with retry-after",
			status: http.StatusTooManyRequests,
			header: map[string]string{"Retry-After": "7"},
			body:   `slow down`,
			check: func(t *testing.T, err error) {
				var rl *bridge.RateLimitedError
				if !errors.As(err, &rl) || rl.RetryAfter != 7*time.Second {
					t.Errorf("error = %v, want RateLimitedError with 7s hint", err)
				}
			},
			retryable: true,
		},
		{
			name:   "missing post",
			status: http.StatusNotFound,
			body:   `{"error": {"message": "Unsupported get request", "type": "GraphMethodException", "code": 100}}`,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, bridge.ErrNotFound) {
					t.Errorf("error = %v, want ErrNotFound", err)
				}
			},
		},
		{
			name:      "upstream outage",
			status:    http.StatusServiceUnavailable,
			body:      `unavailable`,
			check:     func(t *testing.T, err error) {},
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ig := newInstagramServer(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := ig.GetDetails(context.Background(), testConn("instagram"), "ig_001")
			if err == nil {
				t.Fatal("GetDetails() expected error, got nil")
			}
			tt.check(t, err)
			if got := bridge.IsRetryable(err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestAccessToken_Expired(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	conn := testConn("instagram")
	conn.TokenExpiry = &past

	ig := NewInstagram("http://127.0.0.1:0", nil, nil)
	_, err := ig.ListRecent(context.Background(), conn, "", 10)
	if !errors.Is(err, bridge.ErrConnectionUnavailable) {
		t.Errorf("ListRecent() error = %v, want ErrConnectionUnavailable", err)
	}
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 0},
		{"30", 30 * time.Second},
		{"-1", 0},
		{now.Add(time.Minute).Format(http.TimeFormat), time.Minute},
		{"garbage", 0},
	}
	for _, tt := range tests {
		h := http.Header{}
		if tt.value != "" {
			h.Set("Retry-After", tt.value)
		}
		if got := retryAfter(h, now); got != tt.want {
			t.Errorf("retryAfter(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
