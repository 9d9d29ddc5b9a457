package bridge

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"
)

// VideoDescriptor is a source post normalized across platforms.
// Optional fields are left zero when the platform omits them.
type VideoDescriptor struct {
	ExternalID      string
	AccountID       string
	Caption         string
	MediaURL        string
	MediaURLs       []string
	ThumbnailURL    string
	Permalink       string
	DurationSeconds float64
	Width           int
	Height          int
	PostedAt        *time.Time
	Stats           *Stats
}

// ListPage is one page of recent posts.
type ListPage struct {
	Items      []VideoDescriptor
	NextCursor string
	HasMore    bool
}

// PlatformAdapter fetches posts from a source platform.
// Implementations return an error wrapping ErrNotFound for missing posts and
// *RateLimitedError when the upstream API throttles.
type PlatformAdapter interface {
	Platform() string
	ListRecent(ctx context.Context, conn *Connection, cursor string, limit int) (*ListPage, error)
	GetDetails(ctx context.Context, conn *Connection, externalID string) (*VideoDescriptor, error)
}

// MediaFetcher streams source media from a URL.
type MediaFetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// PlatformSet indexes adapters by platform name.
type PlatformSet struct {
	adapters map[string]PlatformAdapter
}

// NewPlatformSet builds a set from the given adapters. Later adapters replace earlier ones with the same name.
func NewPlatformSet(adapters ...PlatformAdapter) *PlatformSet {
	s := &PlatformSet{adapters: make(map[string]PlatformAdapter, len(adapters))}
	for _, a := range adapters {
		s.adapters[a.Platform()] = a
	}
	return s
}

// Get returns the adapter for platform.
func (s *PlatformSet) Get(platform string) (PlatformAdapter, error) {
	a, ok := s.adapters[platform]
	if !ok {
		return nil, fmt.Errorf("unsupported platform: %q", platform)
	}
	return a, nil
}

// Names returns the configured platform names, sorted.
func (s *PlatformSet) Names() []string {
	names := make([]string, 0, len(s.adapters))
	for n := range s.adapters {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
