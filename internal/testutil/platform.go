package testutil

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"creator-bridge/internal/bridge"
)

// MP4Header is enough of an ISO media file for content sniffing to report video/mp4.
var MP4Header = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm',
	0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'i', 's', 'o', '2',
}

// VideoBytes returns distinct, sniffable mp4 content for name.
func VideoBytes(name string) []byte {
	return append(slices.Clone(MP4Header), []byte("payload:"+name)...)
}

// FakePlatform is an in-memory PlatformAdapter. Safe for concurrent use.
type FakePlatform struct {
	name string

	mu      sync.Mutex
	videos  []bridge.VideoDescriptor
	errs    map[string][]error
	details map[string]int
}

func NewFakePlatform(name string) *FakePlatform {
	return &FakePlatform{name: name, errs: make(map[string][]error), details: make(map[string]int)}
}

func (p *FakePlatform) Platform() string { return p.name }

// AddVideo makes v visible to ListRecent and GetDetails, newest first.
func (p *FakePlatform) AddVideo(v bridge.VideoDescriptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.videos = append([]bridge.VideoDescriptor{v}, p.videos...)
}

// FailDetails queues errors returned by GetDetails for id before it succeeds.
func (p *FakePlatform) FailDetails(id string, errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[id] = append(p.errs[id], errs...)
}

// DetailCalls returns how many times GetDetails was called for id.
func (p *FakePlatform) DetailCalls(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.details[id]
}

// ListRecent pages through the videos using the item offset as the cursor.
func (p *FakePlatform) ListRecent(ctx context.Context, conn *bridge.Connection, cursor string, limit int) (*bridge.ListPage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, bridge.Permanent(fmt.Errorf("bad cursor %q", cursor))
		}
		start = n
	}
	end := min(start+limit, len(p.videos))
	if start > end {
		start = end
	}
	page := &bridge.ListPage{Items: slices.Clone(p.videos[start:end])}
	if end < len(p.videos) {
		page.HasMore = true
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func (p *FakePlatform) GetDetails(ctx context.Context, conn *bridge.Connection, externalID string) (*bridge.VideoDescriptor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.details[externalID]++
	if errs := p.errs[externalID]; len(errs) > 0 {
		p.errs[externalID] = errs[1:]
		return nil, errs[0]
	}
	for _, v := range p.videos {
		if v.ExternalID == externalID {
			v := v
			return &v, nil
		}
	}
	return nil, fmt.Errorf("%s post %s: %w", p.name, externalID, bridge.ErrNotFound)
}

// MediaServer serves video bytes at /media/<name> and counts requests.
type MediaServer struct {
	*httptest.Server

	mu       sync.Mutex
	files    map[string][]byte
	failures map[string][]int
	hits     map[string]int
}

// NewMediaServer starts a server that is closed when the test completes.
func NewMediaServer(t *testing.T) *MediaServer {
	t.Helper()
	m := &MediaServer{files: make(map[string][]byte), failures: make(map[string][]int), hits: make(map[string]int)}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.Close)
	return m
}

// Add publishes data under name and returns its URL.
func (m *MediaServer) Add(name string, data []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = data
	return m.URL + "/media/" + name
}

// Fail makes the next requests for name answer with the given statuses.
func (m *MediaServer) Fail(name string, statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[name] = append(m.failures[name], statuses...)
}

// Hits returns the number of requests for name.
func (m *MediaServer) Hits(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[name]
}

func (m *MediaServer) serve(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/media/")

	m.mu.Lock()
	m.hits[name]++
	if fs := m.failures[name]; len(fs) > 0 {
		m.failures[name] = fs[1:]
		m.mu.Unlock()
		w.WriteHeader(fs[0])
		return
	}
	data, ok := m.files[name]
	m.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}
