package bridge_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"creator-bridge/internal/bridge"
	"creator-bridge/internal/testutil"
)

func TestService_AddConnection(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()

	conn, err := h.Service.AddConnection(ctx, testutil.TestUser, bridge.ConnectionInput{
		Platform:     bridge.PlatformTikTok,
		AccountID:    "tt-42",
		AccessToken:  "plain-access",
		RefreshToken: "plain-refresh",
	})
	if err != nil {
		t.Fatalf("AddConnection() error: %v", err)
	}
	if !conn.IsActive {
		t.Error("new connection should be active")
	}

	stored, err := h.Store.GetConnection(ctx, testutil.TestUser, conn.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetConnection() = %v, %v", stored, err)
	}
	if stored.AccessToken == "plain-access" || stored.RefreshToken == "plain-refresh" {
		t.Error("tokens stored in plaintext")
	}
	if plain, _ := testutil.NewTestKeys().Open(stored.AccessToken); plain != "plain-access" {
		t.Errorf("sealed access token opens to %q", plain)
	}

	t.Run("unsupported platform", func(t *testing.T) {
		_, err := h.Service.AddConnection(ctx, testutil.TestUser, bridge.ConnectionInput{Platform: "myspace", AccessToken: "x"})
		if err == nil {
			t.Error("expected error for unsupported platform")
		}
	})
	t.Run("missing token", func(t *testing.T) {
		_, err := h.Service.AddConnection(ctx, testutil.TestUser, bridge.ConnectionInput{Platform: bridge.PlatformTikTok})
		if err == nil {
			t.Error("expected error for missing access token")
		}
	})

	conns, err := h.Service.ListConnections(ctx, testutil.TestUser)
	if err != nil || len(conns) != 1 {
		t.Errorf("ListConnections() = %d, %v", len(conns), err)
	}
	if err := h.Service.DeactivateConnection(ctx, testutil.TestUser, "missing"); !bridge.IsNotFound(err) {
		t.Errorf("DeactivateConnection(missing) error = %v, want not found", err)
	}
}

func TestService_Import(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	igConn := h.Connect(t, bridge.PlatformInstagram)
	ttConn := h.Connect(t, bridge.PlatformTikTok)

	posted := time.Date(2024, 2, 10, 8, 0, 0, 0, time.UTC)
	h.Instagram.AddVideo(bridge.VideoDescriptor{
		ExternalID:      "ig_001",
		Caption:         "Sunrise paddle @friend #SUP #morning",
		MediaURL:        "https://cdn.example.com/ig_001.mp4",
		ThumbnailURL:    "https://cdn.example.com/ig_001.jpg",
		Permalink:       "https://instagram.com/p/ig_001",
		DurationSeconds: 12.5,
		PostedAt:        &posted,
		Stats:           &bridge.Stats{Likes: 10, Comments: 2},
	})
	h.TikTok.AddVideo(bridge.VideoDescriptor{ExternalID: "tt_001", Caption: "", MediaURL: "https://cdn.example.com/tt.mp4"})

	res, err := h.Service.Import(ctx, testutil.TestUser, bridge.ImportRequest{
		Videos: []bridge.ImportItem{
			{Platform: bridge.PlatformInstagram, ConnectionID: igConn, VideoID: "ig_001"},
			{Platform: bridge.PlatformTikTok, ConnectionID: ttConn, VideoID: "tt_001"},
			{Platform: bridge.PlatformInstagram, ConnectionID: igConn, VideoID: "ig_missing"},
			{Platform: bridge.PlatformTikTok, ConnectionID: igConn, VideoID: "tt_wrong_conn"},
		},
		Priority: 15,
	})
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}

	want := bridge.ImportSummary{Total: 4, Successful: 2, Failed: 2}
	if res.Summary != want {
		t.Errorf("Summary = %+v, want %+v", res.Summary, want)
	}
	if !res.Results[0].Success || !res.Results[1].Success {
		t.Fatalf("first two items should succeed: %+v", res.Results[:2])
	}
	if res.Results[2].Success || res.Results[2].Error == "" {
		t.Errorf("missing post result = %+v", res.Results[2])
	}
	if res.Results[3].Success || !strings.Contains(res.Results[3].Error, "connection") {
		t.Errorf("mismatched connection result = %+v", res.Results[3])
	}

	rec := h.Record(t, res.Results[0].ContentID)
	if rec.Status != bridge.StatusQueued {
		t.Errorf("Status = %s, want queued", rec.Status)
	}
	if rec.Priority != bridge.MaxPriority {
		t.Errorf("Priority = %d, want clamped to %d", rec.Priority, bridge.MaxPriority)
	}
	if rec.ImportMethod != bridge.ImportManual {
		t.Errorf("ImportMethod = %s", rec.ImportMethod)
	}
	if rec.SourceAccountID != "acct-instagram" {
		t.Errorf("SourceAccountID = %q, want the connection's account", rec.SourceAccountID)
	}
	if !slices.Equal(rec.Metadata.Hashtags, []string{"sup", "morning"}) {
		t.Errorf("Hashtags = %v", rec.Metadata.Hashtags)
	}
	if rec.Title() != "Sunrise paddle" {
		t.Errorf("Title() = %q", rec.Title())
	}
	if rec.Metadata.Stats == nil || rec.Metadata.Stats.Likes != 10 || !rec.Metadata.Stats.CapturedAt.Equal(h.Clock.Now()) {
		t.Errorf("Stats = %+v", rec.Metadata.Stats)
	}
	if rec.Metadata.PostedAt == nil || !rec.Metadata.PostedAt.Equal(posted) {
		t.Errorf("PostedAt = %v", rec.Metadata.PostedAt)
	}
	if rec.Metadata.Thumbnails.Original != "https://cdn.example.com/ig_001.jpg" {
		t.Errorf("Thumbnails = %+v", rec.Metadata.Thumbnails)
	}
	if h.Engine.Pending() != 0 {
		t.Errorf("Pending() = %d, records without destinations must not be enqueued", h.Engine.Pending())
	}

	tt := h.Record(t, res.Results[1].ContentID)
	if tt.Title() != "TikTok Video" {
		t.Errorf("TikTok Title() = %q", tt.Title())
	}
}

func TestService_Import_Duplicate(t *testing.T) {
	h := testutil.NewHarness(t)
	conn := h.Connect(t, bridge.PlatformInstagram)
	h.PublishVideo(h.Instagram, "ig_001", "clip")
	first := h.Import(t, bridge.PlatformInstagram, conn, "ig_001")

	res, err := h.Service.Import(context.Background(), testutil.TestUser, bridge.ImportRequest{
		Videos: []bridge.ImportItem{{Platform: bridge.PlatformInstagram, ConnectionID: conn, VideoID: "ig_001"}},
	})
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	r := res.Results[0]
	if !r.Success || !r.AlreadyImported || r.ContentID != first {
		t.Errorf("result = %+v, want already imported as %s", r, first)
	}
	if res.Summary.AlreadyImported != 1 || res.Summary.Successful != 0 {
		t.Errorf("Summary = %+v", res.Summary)
	}
	if calls := h.Instagram.DetailCalls("ig_001"); calls != 1 {
		t.Errorf("GetDetails called %d times, want the duplicate answered from the store", calls)
	}

	recs, _ := h.Service.ListContent(context.Background(), testutil.TestUser, bridge.RecordFilter{})
	if len(recs) != 1 {
		t.Errorf("ListContent() = %d records, want 1", len(recs))
	}
}

func TestService_Import_RetriesRateLimit(t *testing.T) {
	h := testutil.NewHarness(t)
	conn := h.Connect(t, bridge.PlatformInstagram)
	h.PublishVideo(h.Instagram, "ig_001", "clip")
	h.Instagram.FailDetails("ig_001", &bridge.RateLimitedError{Service: "instagram", RetryAfter: time.Millisecond})

	id := h.Import(t, bridge.PlatformInstagram, conn, "ig_001")
	if id == "" {
		t.Fatal("no content id")
	}
	if calls := h.Instagram.DetailCalls("ig_001"); calls != 2 {
		t.Errorf("GetDetails called %d times, want 2", calls)
	}
}

func TestService_Import_RejectsBadRequests(t *testing.T) {
	h := testutil.NewHarness(t)
	conn := h.Connect(t, bridge.PlatformInstagram)
	ctx := context.Background()

	if _, err := h.Service.Import(ctx, testutil.TestUser, bridge.ImportRequest{}); err == nil {
		t.Error("empty import should fail")
	}
	_, err := h.Service.Import(ctx, testutil.TestUser, bridge.ImportRequest{
		Videos:       []bridge.ImportItem{{Platform: bridge.PlatformInstagram, ConnectionID: conn, VideoID: "x"}},
		Destinations: []string{"vimeo"},
	})
	if !errors.Is(err, bridge.ErrUnknownDestination) {
		t.Errorf("unknown destination error = %v", err)
	}
}

func TestService_Import_CredentialsLocked(t *testing.T) {
	h := testutil.NewHarness(t)
	conn := h.Connect(t, bridge.PlatformInstagram)
	h.PublishVideo(h.Instagram, "ig_001", "clip")

	locked := bridge.NewService(h.Store, h.Engine, bridge.NewPlatformSet(h.Instagram),
		bridge.NewDestinationSet(h.JW), testutil.NewTestEncryptor(), nil, bridge.NewNopLogger(), h.Clock, h.IDs)
	res, err := locked.Import(context.Background(), testutil.TestUser, bridge.ImportRequest{
		Videos: []bridge.ImportItem{{Platform: bridge.PlatformInstagram, ConnectionID: conn, VideoID: "ig_001"}},
	})
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if res.Results[0].Success || !strings.Contains(res.Results[0].Error, bridge.ErrCredentialsLocked.Error()) {
		t.Errorf("result = %+v, want credentials locked", res.Results[0])
	}
}

func TestService_SyncOneAcks(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	conn := h.Connect(t, bridge.PlatformInstagram)
	for _, v := range []string{"ig_q", "ig_s", "ig_e", "ig_a", "ig_f"} {
		h.PublishVideo(h.Instagram, v, v)
	}
	queued := h.Import(t, bridge.PlatformInstagram, conn, "ig_q")
	synced := h.Import(t, bridge.PlatformInstagram, conn, "ig_s", "jwplayer")
	errored := h.Import(t, bridge.PlatformInstagram, conn, "ig_e", "jwplayer")
	archived := h.Import(t, bridge.PlatformInstagram, conn, "ig_a")
	inflight := h.Import(t, bridge.PlatformInstagram, conn, "ig_f")

	h.JW.FailNext(errored, testutil.PermanentError("jwplayer"))
	h.Drain(t)
	if err := h.Service.Archive(ctx, testutil.TestUser, archived); err != nil {
		t.Fatalf("Archive() error: %v", err)
	}
	if ok, err := h.Store.ClaimRecord(ctx, testutil.TestUser, inflight, h.Clock.Now()); !ok || err != nil {
		t.Fatalf("ClaimRecord() = %v, %v", ok, err)
	}

	tests := []struct {
		id       string
		wantAck  bridge.Ack
		accepted bool
	}{
		{queued, bridge.AckQueued, true},
		{synced, bridge.AckAlreadySynced, false},
		{errored, bridge.AckNeedsRetry, false},
		{archived, bridge.AckArchived, false},
		{inflight, bridge.AckInProgress, false},
	}
	for _, tt := range tests {
		ack, err := h.Service.SyncOne(ctx, testutil.TestUser, tt.id, "jwplayer")
		if err != nil {
			t.Errorf("SyncOne(%s) error: %v", tt.id, err)
			continue
		}
		if ack.Ack != tt.wantAck || ack.Accepted != tt.accepted {
			t.Errorf("SyncOne(%s) = %+v, want %s", tt.id, ack, tt.wantAck)
		}
	}

	if rec := h.Record(t, queued); !slices.Equal(rec.Targets, []string{"jwplayer"}) {
		t.Errorf("Targets = %v, want [jwplayer]", rec.Targets)
	}
	if _, err := h.Service.SyncOne(ctx, testutil.TestUser, "nope", "jwplayer"); !bridge.IsNotFound(err) {
		t.Errorf("SyncOne(missing) error = %v", err)
	}
	if _, err := h.Service.SyncOne(ctx, testutil.TestUser, queued, "vimeo"); !errors.Is(err, bridge.ErrUnknownDestination) {
		t.Errorf("SyncOne(vimeo) error = %v", err)
	}
	if _, err := h.Service.SyncOne(ctx, "someone-else", queued, "jwplayer"); !bridge.IsNotFound(err) {
		t.Errorf("SyncOne() for another user error = %v, want not found", err)
	}
}

func TestService_BulkSync_PerItemAcks(t *testing.T) {
	h := testutil.NewHarness(t)
	conn := h.Connect(t, bridge.PlatformInstagram)
	h.PublishVideo(h.Instagram, "ig_001", "clip")
	id := h.Import(t, bridge.PlatformInstagram, conn, "ig_001")

	res, err := h.Service.BulkSync(context.Background(), testutil.TestUser, []string{id, "missing", id}, "archive")
	if err != nil {
		t.Fatalf("BulkSync() error: %v", err)
	}
	got := []bridge.Ack{res.Results[0].Status, res.Results[1].Status, res.Results[2].Status}
	want := []bridge.Ack{bridge.AckQueued, bridge.AckNotFound, bridge.AckQueued}
	if !slices.Equal(got, want) {
		t.Errorf("acks = %v, want %v", got, want)
	}
	if h.Engine.Pending() != 1 {
		t.Errorf("Pending() = %d, want the repeated id queued once", h.Engine.Pending())
	}

	if _, err := h.Service.BulkSync(context.Background(), testutil.TestUser, nil, "archive"); err == nil {
		t.Error("BulkSync() with no ids should fail")
	}
}

func TestService_Retry_RequiresErrorState(t *testing.T) {
	h := testutil.NewHarness(t)
	conn := h.Connect(t, bridge.PlatformInstagram)
	h.PublishVideo(h.Instagram, "ig_001", "clip")
	id := h.Import(t, bridge.PlatformInstagram, conn, "ig_001")

	_, err := h.Service.Retry(context.Background(), testutil.TestUser, id)
	if !errors.Is(err, bridge.ErrNotInErrorState) {
		t.Errorf("Retry() error = %v, want ErrNotInErrorState", err)
	}
	if _, err := h.Service.Retry(context.Background(), testutil.TestUser, "missing"); !bridge.IsNotFound(err) {
		t.Errorf("Retry(missing) error = %v", err)
	}
}

func TestService_SyncStatusAndOverview(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	ig := h.Connect(t, bridge.PlatformInstagram)
	tt := h.Connect(t, bridge.PlatformTikTok)
	h.PublishVideo(h.Instagram, "ig_1", "First clip")
	h.PublishVideo(h.Instagram, "ig_2", "Second clip")
	h.PublishVideo(h.TikTok, "tt_1", "Third clip")

	ok1 := h.Import(t, bridge.PlatformInstagram, ig, "ig_1", "jwplayer")
	bad := h.Import(t, bridge.PlatformInstagram, ig, "ig_2", "jwplayer")
	h.Import(t, bridge.PlatformTikTok, tt, "tt_1")
	h.JW.FailNext(bad, testutil.PermanentError("jwplayer"))
	h.Drain(t)

	report, err := h.Service.SyncStatus(ctx, testutil.TestUser)
	if err != nil {
		t.Fatalf("SyncStatus() error: %v", err)
	}
	if report.QueuedCount != 1 || report.CompletedCount != 1 || report.FailedCount != 1 || report.ProcessingCount != 0 {
		t.Errorf("report = %+v", report)
	}
	if len(report.RecentCompletions) != 1 {
		t.Fatalf("RecentCompletions = %d, want 1", len(report.RecentCompletions))
	}
	c := report.RecentCompletions[0]
	if c.RecordID != ok1 || c.Destination != "jwplayer" || c.Title != "First clip" {
		t.Errorf("completion = %+v", c)
	}

	ov, err := h.Service.Overview(ctx, testutil.TestUser)
	if err != nil {
		t.Fatalf("Overview() error: %v", err)
	}
	if ov.Total != 3 || ov.ByPlatform[bridge.PlatformInstagram] != 2 || ov.ByPlatform[bridge.PlatformTikTok] != 1 {
		t.Errorf("Overview = %+v", ov)
	}
	if ov.ByStatus[bridge.StatusSynced] != 1 || ov.ByStatus[bridge.StatusError] != 1 {
		t.Errorf("ByStatus = %v", ov.ByStatus)
	}

	other, err := h.Service.SyncStatus(ctx, "user-2")
	if err != nil {
		t.Fatalf("SyncStatus(user-2) error: %v", err)
	}
	if other.QueuedCount+other.CompletedCount+other.FailedCount != 0 || len(other.RecentCompletions) != 0 {
		t.Errorf("another user sees records: %+v", other)
	}
}

func TestService_Browse(t *testing.T) {
	h := testutil.NewHarness(t)
	conn := h.Connect(t, bridge.PlatformInstagram)
	for _, v := range []string{"ig_1", "ig_2", "ig_3"} {
		h.PublishVideo(h.Instagram, v, v)
	}
	imported := h.Import(t, bridge.PlatformInstagram, conn, "ig_2")

	page, err := h.Service.Browse(context.Background(), testutil.TestUser, conn, "", 2)
	if err != nil {
		t.Fatalf("Browse() error: %v", err)
	}
	if len(page.Items) != 2 || !page.HasMore || page.NextCursor == "" {
		t.Fatalf("page = %+v", page)
	}
	// Newest first: ig_3, ig_2.
	if page.Items[0].Video.ExternalID != "ig_3" || page.Items[0].IsImported {
		t.Errorf("item 0 = %+v", page.Items[0])
	}
	if !page.Items[1].IsImported || page.Items[1].ContentID != imported {
		t.Errorf("item 1 = %+v, want imported as %s", page.Items[1], imported)
	}

	next, err := h.Service.Browse(context.Background(), testutil.TestUser, conn, page.NextCursor, 2)
	if err != nil {
		t.Fatalf("Browse(next) error: %v", err)
	}
	if len(next.Items) != 1 || next.HasMore || next.Items[0].Video.ExternalID != "ig_1" {
		t.Errorf("next page = %+v", next)
	}

	if _, err := h.Service.Browse(context.Background(), testutil.TestUser, "missing", "", 0); !errors.Is(err, bridge.ErrConnectionUnavailable) {
		t.Errorf("Browse(missing) error = %v", err)
	}
}

func TestService_ContentEdits(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	conn := h.Connect(t, bridge.PlatformInstagram)
	h.PublishVideo(h.Instagram, "ig_001", "Original caption #tag")
	id := h.Import(t, bridge.PlatformInstagram, conn, "ig_001")

	title := "My edited title"
	prio := 7
	rec, err := h.Service.UpdateMetadata(ctx, testutil.TestUser, id, bridge.MetadataEdit{
		EditedTitle: &title,
		Tags:        []string{"custom"},
		Priority:    &prio,
	})
	if err != nil {
		t.Fatalf("UpdateMetadata() error: %v", err)
	}
	if rec.Title() != title || rec.Priority != 7 {
		t.Errorf("updated record = %q priority %d", rec.Title(), rec.Priority)
	}

	stored := h.Record(t, id)
	if stored.Metadata.EditedTitle != title || stored.Metadata.OriginalCaption != "Original caption #tag" {
		t.Errorf("stored metadata = %+v", stored.Metadata)
	}
	if stored.Status != bridge.StatusQueued {
		t.Errorf("edit changed status to %s", stored.Status)
	}

	if _, err := h.Service.SyncOne(ctx, testutil.TestUser, id, "jwplayer"); err != nil {
		t.Fatalf("SyncOne() error: %v", err)
	}
	h.Drain(t)
	d, ok := h.JW.Delivered(id)
	if !ok {
		t.Fatal("not delivered")
	}
	if d.Meta.Title != title || !slices.Equal(d.Meta.Tags, []string{"custom"}) {
		t.Errorf("delivered metadata = %+v", d.Meta)
	}

	if _, err := h.Service.UpdateMetadata(ctx, testutil.TestUser, "missing", bridge.MetadataEdit{}); !bridge.IsNotFound(err) {
		t.Errorf("UpdateMetadata(missing) error = %v", err)
	}
}

func TestService_ListContentAndArchive(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	ig := h.Connect(t, bridge.PlatformInstagram)
	tt := h.Connect(t, bridge.PlatformTikTok)
	h.PublishVideo(h.Instagram, "ig_1", "Beach sunset")
	h.PublishVideo(h.TikTok, "tt_1", "Kitchen hack")
	a := h.Import(t, bridge.PlatformInstagram, ig, "ig_1")
	h.Import(t, bridge.PlatformTikTok, tt, "tt_1")

	byPlatform, _ := h.Service.ListContent(ctx, testutil.TestUser, bridge.RecordFilter{Platform: bridge.PlatformTikTok})
	if len(byPlatform) != 1 || byPlatform[0].SourcePostID != "tt_1" {
		t.Errorf("platform filter = %d records", len(byPlatform))
	}
	search, _ := h.Service.ListContent(ctx, testutil.TestUser, bridge.RecordFilter{Search: "sunset"})
	if len(search) != 1 || search[0].ID != a {
		t.Errorf("search = %d records", len(search))
	}

	if err := h.Service.Archive(ctx, testutil.TestUser, a); err != nil {
		t.Fatalf("Archive() error: %v", err)
	}
	if err := h.Service.Archive(ctx, testutil.TestUser, a); err != nil {
		t.Errorf("second Archive() error: %v", err)
	}
	visible, _ := h.Service.ListContent(ctx, testutil.TestUser, bridge.RecordFilter{})
	if len(visible) != 1 {
		t.Errorf("ListContent() = %d records, want archived hidden", len(visible))
	}
	all, _ := h.Service.ListContent(ctx, testutil.TestUser, bridge.RecordFilter{IncludeArchived: true})
	if len(all) != 2 {
		t.Errorf("ListContent(IncludeArchived) = %d records", len(all))
	}

	other, _ := h.Service.ListContent(ctx, "user-2", bridge.RecordFilter{IncludeArchived: true})
	if len(other) != 0 {
		t.Errorf("another user sees %d records", len(other))
	}
}

func TestService_ArchiveInFlight(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	conn := h.Connect(t, bridge.PlatformInstagram)
	h.PublishVideo(h.Instagram, "ig_001", "clip")
	id := h.Import(t, bridge.PlatformInstagram, conn, "ig_001")
	h.Store.ClaimRecord(ctx, testutil.TestUser, id, h.Clock.Now())

	if err := h.Service.Archive(ctx, testutil.TestUser, id); !errors.Is(err, bridge.ErrInFlight) {
		t.Errorf("Archive() error = %v, want ErrInFlight", err)
	}
}

func TestService_TestConnection(t *testing.T) {
	ctx := context.Background()
	h := testutil.NewHarness(t)
	conn := h.Connect(t, bridge.PlatformInstagram)
	h.PublishVideo(h.Instagram, "ig_001", "older")
	h.PublishVideo(h.Instagram, "ig_002", "newest")

	check, err := h.Service.TestConnection(ctx, testutil.TestUser, conn)
	if err != nil {
		t.Fatalf("TestConnection() error: %v", err)
	}
	if !check.OK || check.LatestVideoID != "ig_002" {
		t.Errorf("check = %+v, want ok with latest ig_002", check)
	}
	if !strings.Contains(check.Message, "acct-instagram") {
		t.Errorf("message = %q", check.Message)
	}

	stored, err := h.Store.GetConnection(ctx, testutil.TestUser, conn)
	if err != nil {
		t.Fatalf("GetConnection() error: %v", err)
	}
	if stored.LastCheckedAt == nil || !stored.LastCheckedAt.Equal(h.Clock.Now()) {
		t.Errorf("LastCheckedAt = %v, want %v", stored.LastCheckedAt, h.Clock.Now())
	}
}

func TestService_TestConnection_ExpiredToken(t *testing.T) {
	ctx := context.Background()
	h := testutil.NewHarness(t)
	expiry := h.Clock.Now().Add(time.Hour)
	conn, err := h.Service.AddConnection(ctx, testutil.TestUser, bridge.ConnectionInput{
		Platform:    bridge.PlatformTikTok,
		AccountID:   "acct-tiktok",
		AccessToken: "token",
		TokenExpiry: &expiry,
	})
	if err != nil {
		t.Fatalf("AddConnection() error: %v", err)
	}
	h.Clock.Advance(2 * time.Hour)

	check, err := h.Service.TestConnection(ctx, testutil.TestUser, conn.ID)
	if err != nil {
		t.Fatalf("TestConnection() error: %v", err)
	}
	if check.OK || !strings.Contains(check.Message, "expired") {
		t.Errorf("check = %+v, want failure mentioning expiry", check)
	}
	stored, _ := h.Store.GetConnection(ctx, testutil.TestUser, conn.ID)
	if stored.LastCheckedAt != nil {
		t.Errorf("LastCheckedAt = %v, want unset after failed check", stored.LastCheckedAt)
	}
}

func TestService_TestConnection_NotFound(t *testing.T) {
	ctx := context.Background()
	h := testutil.NewHarness(t)
	conn := h.Connect(t, bridge.PlatformInstagram)
	if err := h.Service.DeactivateConnection(ctx, testutil.TestUser, conn); err != nil {
		t.Fatalf("DeactivateConnection() error: %v", err)
	}

	for _, id := range []string{conn, "missing"} {
		if _, err := h.Service.TestConnection(ctx, testutil.TestUser, id); !errors.Is(err, bridge.ErrNotFound) {
			t.Errorf("TestConnection(%s) error = %v, want not found", id, err)
		}
	}
}

func TestService_SetConnectionAutoSync(t *testing.T) {
	ctx := context.Background()
	h := testutil.NewHarness(t)
	conn := h.Connect(t, bridge.PlatformInstagram)

	if _, err := h.Service.SetConnectionAutoSync(ctx, testutil.TestUser, conn, true, []string{"vimeo"}); !errors.Is(err, bridge.ErrUnknownDestination) {
		t.Errorf("unknown destination error = %v", err)
	}
	if _, err := h.Service.SetConnectionAutoSync(ctx, testutil.TestUser, conn, true, nil); err == nil {
		t.Error("enabling without destinations should fail")
	}
	if _, err := h.Service.SetConnectionAutoSync(ctx, testutil.TestUser, "missing", true, []string{"archive"}); !errors.Is(err, bridge.ErrNotFound) {
		t.Errorf("missing connection error = %v", err)
	}

	got, err := h.Service.SetConnectionAutoSync(ctx, testutil.TestUser, conn, true, []string{"archive", "archive"})
	if err != nil {
		t.Fatalf("SetConnectionAutoSync() error: %v", err)
	}
	if !got.AutoSync || !slices.Equal(got.AutoSyncDestinations, []string{"archive"}) {
		t.Errorf("connection auto-sync = %v %v", got.AutoSync, got.AutoSyncDestinations)
	}

	got, err = h.Service.SetConnectionAutoSync(ctx, testutil.TestUser, conn, false, []string{"archive"})
	if err != nil {
		t.Fatalf("SetConnectionAutoSync(off) error: %v", err)
	}
	if got.AutoSync || len(got.AutoSyncDestinations) != 0 {
		t.Errorf("disabled connection auto-sync = %v %v", got.AutoSync, got.AutoSyncDestinations)
	}
}

func TestService_Import_UsesConnectionAutoSync(t *testing.T) {
	ctx := context.Background()
	h := testutil.NewHarness(t)
	conn := h.Connect(t, bridge.PlatformInstagram)
	h.PublishVideo(h.Instagram, "ig_001", "clip")
	h.PublishVideo(h.Instagram, "ig_002", "clip")
	if _, err := h.Service.SetConnectionAutoSync(ctx, testutil.TestUser, conn, true, []string{"archive"}); err != nil {
		t.Fatalf("SetConnectionAutoSync() error: %v", err)
	}

	id := h.Import(t, bridge.PlatformInstagram, conn, "ig_001")
	rec := h.Record(t, id)
	if !rec.AutoSync.Enabled || !slices.Equal(rec.AutoSync.Destinations, []string{"archive"}) {
		t.Errorf("record auto-sync = %+v, want connection default", rec.AutoSync)
	}
	if !slices.Equal(rec.Targets, []string{"archive"}) {
		t.Errorf("targets = %v, want [archive]", rec.Targets)
	}
	h.Drain(t)
	if got := h.Record(t, id).Status; got != bridge.StatusSynced {
		t.Errorf("status = %s, want synced", got)
	}

	// An explicit request setting wins over the connection default.
	res, err := h.Service.Import(ctx, testutil.TestUser, bridge.ImportRequest{
		Videos:   []bridge.ImportItem{{Platform: bridge.PlatformInstagram, ConnectionID: conn, VideoID: "ig_002"}},
		AutoSync: bridge.AutoSync{Enabled: true, Destinations: []string{"jwplayer"}},
	})
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	rec = h.Record(t, res.Results[0].ContentID)
	if !slices.Equal(rec.AutoSync.Destinations, []string{"jwplayer"}) {
		t.Errorf("explicit auto-sync destinations = %v", rec.AutoSync.Destinations)
	}
}

func TestService_ConnectionStats(t *testing.T) {
	ctx := context.Background()
	h := testutil.NewHarness(t)
	ig := h.Connect(t, bridge.PlatformInstagram)
	h.Connect(t, bridge.PlatformTikTok)
	gone := h.Connect(t, bridge.PlatformTikTok)
	if err := h.Service.DeactivateConnection(ctx, testutil.TestUser, gone); err != nil {
		t.Fatalf("DeactivateConnection() error: %v", err)
	}
	if _, err := h.Service.SetConnectionAutoSync(ctx, testutil.TestUser, ig, true, []string{"jwplayer"}); err != nil {
		t.Fatalf("SetConnectionAutoSync() error: %v", err)
	}

	stats, err := h.Service.ConnectionStats(ctx, testutil.TestUser)
	if err != nil {
		t.Fatalf("ConnectionStats() error: %v", err)
	}
	if stats.TotalConnections != 2 || stats.AutoSyncEnabled != 1 {
		t.Errorf("totals = %d connections, %d auto-sync; want 2, 1", stats.TotalConnections, stats.AutoSyncEnabled)
	}
	if p := stats.Platforms[bridge.PlatformTikTok]; p == nil || p.Count != 1 || p.Accounts[0].ID == gone {
		t.Errorf("tiktok = %+v, want the one active account", p)
	}
	if p := stats.Platforms[bridge.PlatformInstagram]; p == nil || !p.Accounts[0].AutoSync {
		t.Errorf("instagram = %+v, want auto-sync account", p)
	}
}
