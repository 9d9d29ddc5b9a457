package testutil

import (
	"context"
	"testing"
	"time"

	"creator-bridge/internal/bridge"
	"creator-bridge/internal/database"
	"creator-bridge/internal/media"
	"creator-bridge/internal/platform"
	"creator-bridge/internal/staging"
)

// TestUser is the user id harness helpers act as.
const TestUser = "user-1"

// Harness wires a Service and Engine over real storage, staging and media
// inspection with fake platforms and destinations.
type Harness struct {
	Store     *database.SQLiteStore
	Staging   *staging.Area
	Clock     *StubClock
	IDs       *StubIDGenerator
	Media     *MediaServer
	Instagram *FakePlatform
	TikTok    *FakePlatform
	JW        *FakeDestination
	Archive   *FakeDestination
	Engine    *bridge.Engine
	Service   *bridge.Service
}

// NewHarness builds a harness with a "jwplayer" and an "archive" destination.
// Retries wait a millisecond so exhausted-retry paths stay fast.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	h := &Harness{
		Store:     NewTestStore(t),
		Staging:   NewTestStagingArea(t),
		Clock:     FixedClock(),
		IDs:       NewStubIDGenerator(),
		Media:     NewMediaServer(t),
		Instagram: NewFakePlatform(bridge.PlatformInstagram),
		TikTok:    NewFakePlatform(bridge.PlatformTikTok),
		JW:        NewFakeDestination("jwplayer"),
		Archive:   NewFakeDestination("archive"),
	}

	cfg := bridge.EngineConfig{
		Workers: 2,
		Retry: bridge.RetryPolicy{
			MaxRetries:     2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
		},
		DownloadTimeout: 5 * time.Second,
		UploadTimeout:   5 * time.Second,
	}
	destinations := bridge.NewDestinationSet(h.JW, h.Archive)
	h.Engine = bridge.NewEngine(h.Store, h.Staging, platform.NewHTTPFetcher(h.Media.Client()),
		media.NewInspector(), destinations, bridge.NewNopLogger(), h.Clock, cfg)
	h.Service = bridge.NewService(h.Store, h.Engine, bridge.NewPlatformSet(h.Instagram, h.TikTok),
		destinations, NewTestEncryptor(), NewTestKeys(), bridge.NewNopLogger(), h.Clock, h.IDs)
	return h
}

// Connect adds an active connection for platformName and returns its id.
func (h *Harness) Connect(t *testing.T, platformName string) string {
	t.Helper()
	conn, err := h.Service.AddConnection(context.Background(), TestUser, bridge.ConnectionInput{
		Platform:      platformName,
		AccountID:     "acct-" + platformName,
		AccountHandle: "creator",
		AccessToken:   "token-" + platformName,
	})
	if err != nil {
		t.Fatalf("AddConnection(%s) error: %v", platformName, err)
	}
	return conn.ID
}

// PublishVideo makes a post visible on the fake platform with media served by h.Media.
func (h *Harness) PublishVideo(p *FakePlatform, id, caption string) bridge.VideoDescriptor {
	v := bridge.VideoDescriptor{
		ExternalID:   id,
		Caption:      caption,
		MediaURL:     h.Media.Add(id, VideoBytes(id)),
		ThumbnailURL: "https://cdn.example.com/" + id + ".jpg",
		Permalink:    "https://social.example.com/p/" + id,
	}
	p.AddVideo(v)
	return v
}

// Import imports one post and returns the new record id.
func (h *Harness) Import(t *testing.T, platformName, connID, videoID string, destinations ...string) string {
	t.Helper()
	res, err := h.Service.Import(context.Background(), TestUser, bridge.ImportRequest{
		Videos:       []bridge.ImportItem{{Platform: platformName, ConnectionID: connID, VideoID: videoID}},
		Destinations: destinations,
	})
	if err != nil {
		t.Fatalf("Import(%s) error: %v", videoID, err)
	}
	r := res.Results[0]
	if !r.Success {
		t.Fatalf("Import(%s) failed: %s", videoID, r.Error)
	}
	return r.ContentID
}

// Drain runs the engine until the queue is empty.
func (h *Harness) Drain(t *testing.T) {
	t.Helper()
	if err := h.Engine.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() error: %v", err)
	}
}

// Record loads a record and fails the test if it is missing.
func (h *Harness) Record(t *testing.T, id string) *bridge.ContentRecord {
	t.Helper()
	rec, err := h.Store.GetRecord(context.Background(), TestUser, id)
	if err != nil {
		t.Fatalf("GetRecord(%s) error: %v", id, err)
	}
	if rec == nil {
		t.Fatalf("record %s not found", id)
	}
	return rec
}
