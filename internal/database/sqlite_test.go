package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"creator-bridge/internal/bridge"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestStore creates a new in-memory store with migrations applied.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func seedConnection(t *testing.T, s *SQLiteStore, userID, id string) {
	t.Helper()
	err := s.CreateConnection(context.Background(), &bridge.Connection{
		ID:          id,
		UserID:      userID,
		Platform:    bridge.PlatformInstagram,
		AccountID:   "acct-1",
		AccessToken: "sealed",
		IsActive:    true,
		CreatedAt:   t0,
	})
	if err != nil {
		t.Fatalf("CreateConnection() error = %v", err)
	}
}

func newRecord(id, postID string) *bridge.ContentRecord {
	return &bridge.ContentRecord{
		ID:             id,
		UserID:         "u1",
		ConnectionID:   "c1",
		SourcePlatform: bridge.PlatformInstagram,
		SourcePostID:   postID,
		SourceURL:      "https://instagram.com/p/" + postID,
		Metadata: bridge.Metadata{
			OriginalCaption: "Sunset run #fitness",
			Hashtags:        []string{"fitness"},
		},
		Status:       bridge.StatusQueued,
		Priority:     5,
		ImportMethod: bridge.ImportManual,
		Targets:      []string{"jwplayer"},
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
}

func seedRecord(t *testing.T, s *SQLiteStore, rec *bridge.ContentRecord) {
	t.Helper()
	if err := s.CreateRecord(context.Background(), rec); err != nil {
		t.Fatalf("CreateRecord(%s) error = %v", rec.ID, err)
	}
}

func mustGet(t *testing.T, s *SQLiteStore, id string) *bridge.ContentRecord {
	t.Helper()
	rec, err := s.GetRecord(context.Background(), "u1", id)
	if err != nil {
		t.Fatalf("GetRecord(%s) error = %v", id, err)
	}
	if rec == nil {
		t.Fatalf("GetRecord(%s) returned nil", id)
	}
	return rec
}

func TestSQLiteStore_CreateAndGetRecord(t *testing.T) {
	s := newTestStore(t)
	seedConnection(t, s, "u1", "c1")
	seedRecord(t, s, newRecord("r1", "ig_001"))

	got := mustGet(t, s, "r1")
	if got.Status != bridge.StatusQueued {
		t.Errorf("Status = %v, want queued", got.Status)
	}
	if got.Priority != 5 {
		t.Errorf("Priority = %d, want 5", got.Priority)
	}
	if len(got.Targets) != 1 || got.Targets[0] != "jwplayer" {
		t.Errorf("Targets = %v, want [jwplayer]", got.Targets)
	}
	if got.Metadata.OriginalCaption != "Sunset run #fitness" {
		t.Errorf("OriginalCaption = %q", got.Metadata.OriginalCaption)
	}
	if !got.CreatedAt.Equal(t0) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, t0)
	}
	if got.AutoSync.LastAutoSyncAt != nil {
		t.Errorf("LastAutoSyncAt = %v, want nil", got.AutoSync.LastAutoSyncAt)
	}

	t.Run("returns nil for another user", func(t *testing.T) {
		rec, err := s.GetRecord(context.Background(), "u2", "r1")
		if err != nil {
			t.Fatalf("GetRecord() error = %v", err)
		}
		if rec != nil {
			t.Errorf("GetRecord() = %v, want nil", rec)
		}
	})

	t.Run("finds by source post", func(t *testing.T) {
		rec, err := s.FindRecordBySourcePost(context.Background(), "u1", bridge.PlatformInstagram, "ig_001")
		if err != nil {
			t.Fatalf("FindRecordBySourcePost() error = %v", err)
		}
		if rec == nil || rec.ID != "r1" {
			t.Errorf("FindRecordBySourcePost() = %v, want r1", rec)
		}
	})
}

func TestSQLiteStore_CreateRecord_Duplicate(t *testing.T) {
	s := newTestStore(t)
	seedConnection(t, s, "u1", "c1")
	seedRecord(t, s, newRecord("r1", "ig_001"))

	err := s.CreateRecord(context.Background(), newRecord("r2", "ig_001"))
	if !errors.Is(err, bridge.ErrDuplicate) {
		t.Errorf("CreateRecord() error = %v, want ErrDuplicate", err)
	}
}

func TestSQLiteStore_ClaimRecord_SingleWinner(t *testing.T) {
	s := newTestStore(t)
	seedConnection(t, s, "u1", "c1")
	seedRecord(t, s, newRecord("r1", "ig_001"))

	const workers = 16
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ClaimRecord(context.Background(), "u1", "r1", t0)
			if err != nil {
				t.Errorf("ClaimRecord() error = %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Errorf("claims won = %d, want exactly 1", got)
	}
	if got := mustGet(t, s, "r1").Status; got != bridge.StatusDownloading {
		t.Errorf("Status = %v, want downloading", got)
	}
}

func TestSQLiteStore_ClaimRecord_SkipsArchived(t *testing.T) {
	s := newTestStore(t)
	seedConnection(t, s, "u1", "c1")
	seedRecord(t, s, newRecord("r1", "ig_001"))

	if ok, err := s.ArchiveRecord(context.Background(), "u1", "r1", t0); err != nil || !ok {
		t.Fatalf("ArchiveRecord() = %v, %v", ok, err)
	}
	ok, err := s.ClaimRecord(context.Background(), "u1", "r1", t0)
	if err != nil {
		t.Fatalf("ClaimRecord() error = %v", err)
	}
	if ok {
		t.Error("ClaimRecord() claimed an archived record")
	}
}

func TestSQLiteStore_TransitionStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedConnection(t, s, "u1", "c1")
	seedRecord(t, s, newRecord("r1", "ig_001"))

	t.Run("rejects transitions outside the state machine", func(t *testing.T) {
		_, err := s.TransitionStatus(ctx, "u1", "r1", bridge.StatusQueued, bridge.StatusSynced, t0)
		if err == nil {
			t.Error("TransitionStatus(queued -> synced) expected error, got nil")
		}
	})

	t.Run("fails the compare when the current status differs", func(t *testing.T) {
		ok, err := s.TransitionStatus(ctx, "u1", "r1", bridge.StatusDownloading, bridge.StatusProcessing, t0)
		if err != nil {
			t.Fatalf("TransitionStatus() error = %v", err)
		}
		if ok {
			t.Error("TransitionStatus() = true for a queued record, want false")
		}
	})

	t.Run("walks the happy path", func(t *testing.T) {
		if ok, _ := s.ClaimRecord(ctx, "u1", "r1", t0); !ok {
			t.Fatal("ClaimRecord() = false")
		}
		steps := [][2]bridge.Status{
			{bridge.StatusDownloading, bridge.StatusProcessing},
			{bridge.StatusProcessing, bridge.StatusUploading},
		}
		for _, st := range steps {
			ok, err := s.TransitionStatus(ctx, "u1", "r1", st[0], st[1], t0)
			if err != nil || !ok {
				t.Fatalf("TransitionStatus(%s -> %s) = %v, %v", st[0], st[1], ok, err)
			}
		}
		if err := s.UpdateMedia(ctx, "u1", "r1", bridge.MediaFile{LocalPath: "/tmp/r1.mp4", Checksum: "abc", FileSize: 42, Format: "mp4"}, t0); err != nil {
			t.Fatalf("UpdateMedia() error = %v", err)
		}
		ok, err := s.MarkSynced(ctx, "u1", "r1", t0.Add(time.Minute))
		if err != nil || !ok {
			t.Fatalf("MarkSynced() = %v, %v", ok, err)
		}

		got := mustGet(t, s, "r1")
		if got.Status != bridge.StatusSynced {
			t.Errorf("Status = %v, want synced", got.Status)
		}
		if got.Media.LocalPath != "" {
			t.Errorf("LocalPath = %q, want cleared", got.Media.LocalPath)
		}
		if got.Media.Checksum != "abc" {
			t.Errorf("Checksum = %q, want kept", got.Media.Checksum)
		}
		if len(got.Targets) != 0 {
			t.Errorf("Targets = %v, want empty", got.Targets)
		}
		if got.AutoSync.Enabled {
			t.Fatal("seed record should not have auto-sync enabled")
		}
		if got.AutoSync.LastAutoSyncAt == nil || !got.AutoSync.LastAutoSyncAt.Equal(t0.Add(time.Minute)) {
			t.Errorf("LastAutoSyncAt = %v, want %v", got.AutoSync.LastAutoSyncAt, t0.Add(time.Minute))
		}
	})
}

func TestSQLiteStore_MarkErrorAndRetry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedConnection(t, s, "u1", "c1")
	seedRecord(t, s, newRecord("r1", "ig_001"))

	if ok, _ := s.ClaimRecord(ctx, "u1", "r1", t0); !ok {
		t.Fatal("ClaimRecord() = false")
	}
	if err := s.UpdateMedia(ctx, "u1", "r1", bridge.MediaFile{LocalPath: "/tmp/r1.mp4"}, t0); err != nil {
		t.Fatalf("UpdateMedia() error = %v", err)
	}
	completed := t0.Add(time.Second)
	if err := s.AppendSyncEntry(ctx, &bridge.SyncEntry{
		RecordID: "r1", Destination: "jwplayer", Status: bridge.SyncFailed, Error: "boom",
		StartedAt: t0, CompletedAt: &completed,
	}); err != nil {
		t.Fatalf("AppendSyncEntry() error = %v", err)
	}

	stageErr := bridge.StageError{Stage: bridge.StageDownload, Message: "404 from CDN", OccurredAt: t0}
	ok, err := s.MarkError(ctx, "u1", "r1", bridge.StatusDownloading, stageErr, true)
	if err != nil || !ok {
		t.Fatalf("MarkError() = %v, %v", ok, err)
	}

	got := mustGet(t, s, "r1")
	if got.Status != bridge.StatusError {
		t.Errorf("Status = %v, want error", got.Status)
	}
	if got.Media.LocalPath != "" {
		t.Errorf("LocalPath = %q, want cleared", got.Media.LocalPath)
	}
	if len(got.Errors) != 1 || got.Errors[0].Stage != bridge.StageDownload {
		t.Fatalf("Errors = %+v, want one download error", got.Errors)
	}

	t.Run("mark error twice fails the compare", func(t *testing.T) {
		ok, err := s.MarkError(ctx, "u1", "r1", bridge.StatusDownloading, stageErr, false)
		if err != nil {
			t.Fatalf("MarkError() error = %v", err)
		}
		if ok {
			t.Error("MarkError() = true for a record already in error")
		}
	})

	ok, err = s.ResetForRetry(ctx, "u1", "r1", t0.Add(time.Hour))
	if err != nil || !ok {
		t.Fatalf("ResetForRetry() = %v, %v", ok, err)
	}

	got = mustGet(t, s, "r1")
	if got.Status != bridge.StatusQueued {
		t.Errorf("Status = %v, want queued", got.Status)
	}
	if len(got.Errors) != 0 {
		t.Errorf("Errors = %+v, want cleared", got.Errors)
	}
	if len(got.SyncHistory) != 1 {
		t.Errorf("len(SyncHistory) = %d, want 1 (history survives retry)", len(got.SyncHistory))
	}
	if len(got.Targets) != 1 {
		t.Errorf("Targets = %v, want kept for the retry", got.Targets)
	}

	t.Run("retry of a queued record fails the compare", func(t *testing.T) {
		ok, err := s.ResetForRetry(ctx, "u1", "r1", t0)
		if err != nil {
			t.Fatalf("ResetForRetry() error = %v", err)
		}
		if ok {
			t.Error("ResetForRetry() = true for a queued record")
		}
	})
}

func TestSQLiteStore_AddTargets(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedConnection(t, s, "u1", "c1")
	seedRecord(t, s, newRecord("r1", "ig_001"))

	ok, err := s.AddTargets(ctx, "u1", "r1", []string{"jwplayer", "archive"}, t0)
	if err != nil || !ok {
		t.Fatalf("AddTargets() = %v, %v", ok, err)
	}
	got := mustGet(t, s, "r1")
	if strings.Join(got.Targets, ",") != "jwplayer,archive" {
		t.Errorf("Targets = %v, want [jwplayer archive]", got.Targets)
	}

	if ok, _ := s.ClaimRecord(ctx, "u1", "r1", t0); !ok {
		t.Fatal("ClaimRecord() = false")
	}
	ok, err = s.AddTargets(ctx, "u1", "r1", []string{"other"}, t0)
	if err != nil {
		t.Fatalf("AddTargets() error = %v", err)
	}
	if ok {
		t.Error("AddTargets() = true for an in-flight record")
	}
}

func TestSQLiteStore_ArchiveRecord_RefusesInFlight(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedConnection(t, s, "u1", "c1")
	seedRecord(t, s, newRecord("r1", "ig_001"))

	if ok, _ := s.ClaimRecord(ctx, "u1", "r1", t0); !ok {
		t.Fatal("ClaimRecord() = false")
	}
	ok, err := s.ArchiveRecord(ctx, "u1", "r1", t0)
	if err != nil {
		t.Fatalf("ArchiveRecord() error = %v", err)
	}
	if ok {
		t.Error("ArchiveRecord() = true for an in-flight record")
	}
}

func TestSQLiteStore_ListRecords(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedConnection(t, s, "u1", "c1")

	for i := range 5 {
		rec := newRecord(fmt.Sprintf("r%d", i), fmt.Sprintf("ig_%03d", i))
		rec.Priority = i
		rec.CreatedAt = t0.Add(time.Duration(i) * time.Minute)
		if i == 4 {
			rec.Metadata.OriginalCaption = "100% pure"
		}
		seedRecord(t, s, rec)
	}
	if ok, _ := s.ArchiveRecord(ctx, "u1", "r0", t0); !ok {
		t.Fatal("ArchiveRecord() = false")
	}

	tests := []struct {
		name   string
		filter bridge.RecordFilter
		want   []string
	}{
		{"all unarchived by priority", bridge.RecordFilter{UserID: "u1"}, []string{"r4", "r3", "r2", "r1"}},
		{"include archived", bridge.RecordFilter{UserID: "u1", IncludeArchived: true}, []string{"r4", "r3", "r2", "r1", "r0"}},
		{"limit and offset", bridge.RecordFilter{UserID: "u1", Limit: 2, Offset: 1}, []string{"r3", "r2"}},
		{"search escapes wildcards", bridge.RecordFilter{UserID: "u1", Search: "100%"}, []string{"r4"}},
		{"search by post id", bridge.RecordFilter{UserID: "u1", Search: "ig_002"}, []string{"r2"}},
		{"status filter", bridge.RecordFilter{UserID: "u1", Status: bridge.StatusSynced}, nil},
		{"other user", bridge.RecordFilter{UserID: "u2"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := s.ListRecords(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListRecords() error = %v", err)
			}
			var ids []string
			for _, r := range recs {
				ids = append(ids, r.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.want, ",") {
				t.Errorf("ListRecords() = %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestSQLiteStore_FindAutoSyncCandidates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedConnection(t, s, "u1", "c1")

	stale := t0.Add(-48 * time.Hour)
	fresh := t0.Add(-time.Hour)

	never := newRecord("never", "p1")
	never.AutoSync = bridge.AutoSync{Enabled: true, Destinations: []string{"jwplayer"}}
	old := newRecord("old", "p2")
	old.AutoSync = bridge.AutoSync{Enabled: true, Destinations: []string{"jwplayer"}, LastAutoSyncAt: &stale}
	recent := newRecord("recent", "p3")
	recent.AutoSync = bridge.AutoSync{Enabled: true, Destinations: []string{"jwplayer"}, LastAutoSyncAt: &fresh}
	disabled := newRecord("disabled", "p4")
	for _, r := range []*bridge.ContentRecord{never, old, recent, disabled} {
		seedRecord(t, s, r)
	}

	recs, err := s.FindAutoSyncCandidates(ctx, t0.Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatalf("FindAutoSyncCandidates() error = %v", err)
	}
	got := make(map[string]bool)
	for _, r := range recs {
		got[r.ID] = true
	}
	if len(got) != 2 || !got["never"] || !got["old"] {
		t.Errorf("FindAutoSyncCandidates() = %v, want never and old", got)
	}
}

func TestSQLiteStore_FindQueuedWithTargets(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedConnection(t, s, "u1", "c1")

	withTargets := newRecord("with", "p1")
	without := newRecord("without", "p2")
	without.Targets = nil
	seedRecord(t, s, withTargets)
	seedRecord(t, s, without)

	recs, err := s.FindQueuedWithTargets(ctx, 0)
	if err != nil {
		t.Fatalf("FindQueuedWithTargets() error = %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "with" {
		t.Errorf("FindQueuedWithTargets() = %v, want [with]", recs)
	}
}

func TestSQLiteStore_FindStaleClaims(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedConnection(t, s, "u1", "c1")
	for _, id := range []string{"old", "fresh", "queued"} {
		seedRecord(t, s, newRecord(id, "p-"+id))
	}
	s.ClaimRecord(ctx, "u1", "old", t0)
	s.TransitionStatus(ctx, "u1", "old", bridge.StatusDownloading, bridge.StatusProcessing, t0)
	s.ClaimRecord(ctx, "u1", "fresh", t0.Add(90*time.Minute))

	recs, err := s.FindStaleClaims(ctx, t0.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("FindStaleClaims() error = %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "old" || recs[0].Status != bridge.StatusProcessing {
		t.Errorf("FindStaleClaims() = %v, want [old] in processing", recs)
	}

	t.Run("a finished record is no longer claimed", func(t *testing.T) {
		s.MarkError(ctx, "u1", "old", bridge.StatusProcessing,
			bridge.StageError{Stage: bridge.StageProcessing, Message: "lost", OccurredAt: t0.Add(2 * time.Hour)}, true)
		recs, err := s.FindStaleClaims(ctx, t0.Add(3*time.Hour), 0)
		if err != nil {
			t.Fatalf("FindStaleClaims() error = %v", err)
		}
		if len(recs) != 1 || recs[0].ID != "fresh" {
			t.Errorf("FindStaleClaims() = %v, want [fresh]", recs)
		}
	})
}

func TestSQLiteStore_StagingOwners(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedConnection(t, s, "u1", "c1")

	inFlight := newRecord("in-flight", "p1")
	kept := newRecord("kept", "p2")
	kept.Status = bridge.StatusError
	kept.Media.LocalPath = "/staging/kept"
	idle := newRecord("idle", "p3")
	for _, r := range []*bridge.ContentRecord{inFlight, kept, idle} {
		seedRecord(t, s, r)
	}
	s.ClaimRecord(ctx, "u1", "in-flight", t0)

	ids, err := s.StagingOwners(ctx)
	if err != nil {
		t.Fatalf("StagingOwners() error = %v", err)
	}
	slices.Sort(ids)
	if !slices.Equal(ids, []string{"in-flight", "kept"}) {
		t.Errorf("StagingOwners() = %v, want [in-flight kept]", ids)
	}
}

func TestSQLiteStore_Reporting(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedConnection(t, s, "u1", "c1")
	seedRecord(t, s, newRecord("r1", "p1"))
	seedRecord(t, s, newRecord("r2", "p2"))

	if ok, _ := s.ClaimRecord(ctx, "u1", "r1", t0); !ok {
		t.Fatal("ClaimRecord() = false")
	}

	byStatus, err := s.CountByStatus(ctx, "u1")
	if err != nil {
		t.Fatalf("CountByStatus() error = %v", err)
	}
	if byStatus[bridge.StatusQueued] != 1 || byStatus[bridge.StatusDownloading] != 1 {
		t.Errorf("CountByStatus() = %v, want one queued and one downloading", byStatus)
	}

	byPlatform, err := s.CountByPlatform(ctx, "u1")
	if err != nil {
		t.Fatalf("CountByPlatform() error = %v", err)
	}
	if byPlatform[bridge.PlatformInstagram] != 2 {
		t.Errorf("CountByPlatform() = %v, want 2 instagram", byPlatform)
	}

	for i, at := range []time.Time{t0.Add(time.Minute), t0.Add(2 * time.Minute)} {
		done := at
		err := s.AppendSyncEntry(ctx, &bridge.SyncEntry{
			RecordID: "r1", Destination: "jwplayer", DestinationID: fmt.Sprintf("m%d", i),
			Status: bridge.SyncSuccess, StartedAt: t0, CompletedAt: &done,
		})
		if err != nil {
			t.Fatalf("AppendSyncEntry() error = %v", err)
		}
	}

	recent, err := s.RecentCompletions(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("RecentCompletions() error = %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("len(RecentCompletions) = %d, want 2", len(recent))
	}
	if recent[0].DestinationID != "m1" {
		t.Errorf("RecentCompletions()[0].DestinationID = %q, want newest first", recent[0].DestinationID)
	}
	if recent[0].Title != "Sunset run" {
		t.Errorf("RecentCompletions()[0].Title = %q, want %q", recent[0].Title, "Sunset run")
	}
}

func TestSQLiteStore_SyncHistoryIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedConnection(t, s, "u1", "c1")
	seedRecord(t, s, newRecord("r1", "p1"))

	entry := &bridge.SyncEntry{RecordID: "r1", Destination: "jwplayer", Status: bridge.SyncFailed, StartedAt: t0}
	if err := s.AppendSyncEntry(ctx, entry); err != nil {
		t.Fatalf("AppendSyncEntry() error = %v", err)
	}
	if entry.ID == 0 {
		t.Error("AppendSyncEntry() did not set the entry ID")
	}
	if _, err := s.DB().ExecContext(ctx, `UPDATE sync_history SET status = 'success'`); err == nil {
		t.Error("UPDATE on sync_history succeeded, want rejection")
	}
}

func TestSQLiteStore_Connections(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedConnection(t, s, "u1", "c1")

	expiry := t0.Add(60 * 24 * time.Hour)
	err := s.CreateConnection(ctx, &bridge.Connection{
		ID: "c2", UserID: "u1", Platform: bridge.PlatformTikTok, AccessToken: "sealed",
		TokenExpiry: &expiry, IsActive: true, CreatedAt: t0.Add(time.Second),
	})
	if err != nil {
		t.Fatalf("CreateConnection() error = %v", err)
	}

	conns, err := s.ListConnections(ctx, "u1")
	if err != nil {
		t.Fatalf("ListConnections() error = %v", err)
	}
	if len(conns) != 2 {
		t.Fatalf("len(ListConnections) = %d, want 2", len(conns))
	}
	if conns[1].TokenExpiry == nil || !conns[1].TokenExpiry.Equal(expiry) {
		t.Errorf("TokenExpiry = %v, want %v", conns[1].TokenExpiry, expiry)
	}

	ok, err := s.SetConnectionActive(ctx, "u1", "c1", false)
	if err != nil || !ok {
		t.Fatalf("SetConnectionActive() = %v, %v", ok, err)
	}
	c, err := s.GetConnection(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("GetConnection() error = %v", err)
	}
	if c.IsActive {
		t.Error("IsActive = true after deactivation")
	}

	missing, err := s.GetConnection(ctx, "u2", "c1")
	if err != nil || missing != nil {
		t.Errorf("GetConnection(other user) = %v, %v, want nil, nil", missing, err)
	}
}

func TestSQLiteStore_ConnectionAutoSyncAndCheck(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedConnection(t, s, "u1", "c1")

	c, err := s.GetConnection(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("GetConnection() error = %v", err)
	}
	if c.AutoSync || len(c.AutoSyncDestinations) != 0 || c.LastCheckedAt != nil {
		t.Errorf("new connection = %+v, want auto-sync off and never checked", c)
	}

	ok, err := s.SetConnectionAutoSync(ctx, "u1", "c1", true, []string{"jwplayer", "archive"})
	if err != nil || !ok {
		t.Fatalf("SetConnectionAutoSync() = %v, %v", ok, err)
	}
	if err := s.MarkConnectionChecked(ctx, "u1", "c1", t0.Add(time.Hour)); err != nil {
		t.Fatalf("MarkConnectionChecked() error = %v", err)
	}
	c, _ = s.GetConnection(ctx, "u1", "c1")
	if !c.AutoSync || !slices.Equal(c.AutoSyncDestinations, []string{"jwplayer", "archive"}) {
		t.Errorf("auto-sync = %v %v", c.AutoSync, c.AutoSyncDestinations)
	}
	if c.LastCheckedAt == nil || !c.LastCheckedAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("LastCheckedAt = %v, want %v", c.LastCheckedAt, t0.Add(time.Hour))
	}

	if ok, _ := s.SetConnectionAutoSync(ctx, "u2", "c1", false, nil); ok {
		t.Error("SetConnectionAutoSync(other user) matched a row")
	}
	if _, err := s.SetConnectionActive(ctx, "u1", "c1", false); err != nil {
		t.Fatalf("SetConnectionActive() error = %v", err)
	}
	if ok, _ := s.SetConnectionAutoSync(ctx, "u1", "c1", false, nil); ok {
		t.Error("SetConnectionAutoSync(inactive) matched a row")
	}
}

func TestSQLiteStore_BackupAndSchema(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedConnection(t, s, "u1", "c1")
	seedRecord(t, s, newRecord("r1", "p1"))

	dest := filepath.Join(t.TempDir(), "backup.db")
	if err := s.BackupTo(ctx, dest); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	db, err := OpenConnection(dest)
	if err != nil {
		t.Fatalf("OpenConnection(backup) error = %v", err)
	}
	defer db.Close()
	restored := NewSQLiteStoreFromDB(db)
	if rec := mustGet(t, restored, "r1"); rec.SourcePostID != "p1" {
		t.Errorf("restored SourcePostID = %q, want p1", rec.SourcePostID)
	}

	schema, err := s.DumpSchema(ctx)
	if err != nil {
		t.Fatalf("DumpSchema() error = %v", err)
	}
	for _, want := range []string{"CREATE TABLE content_records", "CREATE TRIGGER sync_history_no_update"} {
		if !strings.Contains(schema, want) {
			t.Errorf("DumpSchema() missing %q", want)
		}
	}
	if strings.Contains(schema, "schema_migrations") {
		t.Error("DumpSchema() includes the migration table")
	}
}

func TestTimeFormat_SortsLexically(t *testing.T) {
	later := formatTime(time.Date(2024, 1, 1, 9, 0, 0, 5, time.UTC))
	// 10:00 at +01:00 is 09:00 UTC, so it sorts first.
	earlier := formatTime(time.Date(2024, 1, 1, 10, 0, 0, 0, time.FixedZone("x", 3600)))
	if !(earlier < later) {
		t.Errorf("formatTime ordering: %q should sort before %q", earlier, later)
	}

	parsed, err := parseTime(later)
	if err != nil {
		t.Fatalf("parseTime() error = %v", err)
	}
	if parsed.Nanosecond() != 5 {
		t.Errorf("parseTime() lost precision: %v", parsed)
	}
}
