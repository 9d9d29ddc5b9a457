package bridge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"creator-bridge/internal/metrics"
)

// ImportItem identifies one source post to import.
type ImportItem struct {
	Platform     string
	ConnectionID string
	VideoID      string
}

// ImportRequest is a batch of posts plus the settings applied to every new record.
type ImportRequest struct {
	Videos   []ImportItem
	Priority int
	Method   ImportMethod

	// Destinations are delivered to as soon as the record is created.
	Destinations []string

	// AutoSync, when Enabled, lets the scheduler deliver the record later.
	// Left disabled, each record takes its connection's auto-sync default.
	AutoSync AutoSync
}

// ImportItemResult is the outcome for one item.
type ImportItemResult struct {
	VideoID         string
	Platform        string
	Success         bool
	AlreadyImported bool
	ContentID       string
	Error           string
}

// ImportSummary aggregates a batch.
type ImportSummary struct {
	Total           int
	Successful      int
	AlreadyImported int
	Failed          int
}

// ImportResult is returned for every batch; it is never all-or-nothing.
type ImportResult struct {
	Results []ImportItemResult
	Summary ImportSummary
}

// Import creates queued records for the requested posts. Each item is handled
// independently: a failure is reported on that item and the batch continues.
// Only a malformed request returns an error.
func (s *Service) Import(ctx context.Context, userID string, req ImportRequest) (*ImportResult, error) {
	if len(req.Videos) == 0 {
		return nil, fmt.Errorf("no videos to import")
	}
	for _, d := range append(slices.Clone(req.Destinations), req.AutoSync.Destinations...) {
		if !s.destinations.Has(d) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownDestination, d)
		}
	}
	if req.Method == "" {
		req.Method = ImportManual
	}

	result := &ImportResult{Results: make([]ImportItemResult, 0, len(req.Videos))}
	for _, item := range req.Videos {
		r := s.importOne(ctx, userID, req, item)
		result.Results = append(result.Results, r)

		result.Summary.Total++
		switch {
		case r.AlreadyImported:
			result.Summary.AlreadyImported++
			metrics.ImportResults.WithLabelValues(item.Platform, "duplicate").Inc()
		case r.Success:
			result.Summary.Successful++
			metrics.ImportResults.WithLabelValues(item.Platform, "created").Inc()
		default:
			result.Summary.Failed++
			metrics.ImportResults.WithLabelValues(item.Platform, "failed").Inc()
		}
	}

	s.logger.Info("import finished", "total", result.Summary.Total, "created", result.Summary.Successful,
		"duplicates", result.Summary.AlreadyImported, "failed", result.Summary.Failed)
	return result, nil
}

func (s *Service) importOne(ctx context.Context, userID string, req ImportRequest, item ImportItem) ImportItemResult {
	res := ImportItemResult{VideoID: item.VideoID, Platform: item.Platform}
	failed := func(err error) ImportItemResult {
		res.Error = err.Error()
		s.logger.Warn("import item failed", "platform", item.Platform, "video", item.VideoID, "error", err)
		return res
	}

	if item.VideoID == "" || item.ConnectionID == "" {
		return failed(fmt.Errorf("videoId and connectionId are required"))
	}
	adapter, err := s.platforms.Get(item.Platform)
	if err != nil {
		return failed(err)
	}

	existing, err := s.store.FindRecordBySourcePost(ctx, userID, item.Platform, item.VideoID)
	if err != nil {
		return failed(fmt.Errorf("checking for existing record: %w", err))
	}
	if existing != nil {
		res.Success = true
		res.AlreadyImported = true
		res.ContentID = existing.ID
		return res
	}

	conn, err := s.openConnection(ctx, userID, item.ConnectionID)
	if err != nil {
		return failed(fmt.Errorf("invalid platform connection: %w", err))
	}
	if conn.Platform != item.Platform {
		return failed(fmt.Errorf("invalid platform connection: %s connection used for %s", conn.Platform, item.Platform))
	}
	if !req.AutoSync.Enabled {
		if def, ok := s.connectionAutoSync(conn); ok {
			req.AutoSync = def
		}
	}

	var video *VideoDescriptor
	err = withRetry(ctx, s.retry, func(err error, attempt int, wait time.Duration) {
		s.logger.Warn("fetching post details, retrying", "platform", item.Platform, "video", item.VideoID, "attempt", attempt, "wait", wait, "error", err)
	}, func(ctx context.Context) error {
		v, err := adapter.GetDetails(ctx, conn, item.VideoID)
		if err != nil {
			return err
		}
		video = v
		return nil
	})
	if err != nil {
		return failed(fmt.Errorf("fetching post details: %w", err))
	}

	rec := s.newRecord(userID, conn, req, item, video)
	if err := s.store.CreateRecord(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Lost a race with a concurrent import of the same post.
			if existing, ferr := s.store.FindRecordBySourcePost(ctx, userID, item.Platform, item.VideoID); ferr == nil && existing != nil {
				res.Success = true
				res.AlreadyImported = true
				res.ContentID = existing.ID
				return res
			}
		}
		return failed(fmt.Errorf("saving record: %w", err))
	}

	if len(rec.Targets) > 0 {
		s.engine.Enqueue(userID, rec.ID, rec.Priority)
	}

	res.Success = true
	res.ContentID = rec.ID
	s.logger.Info("video imported", "record", rec.ID, "platform", item.Platform, "video", item.VideoID)
	return res
}

func (s *Service) newRecord(userID string, conn *Connection, req ImportRequest, item ImportItem, v *VideoDescriptor) *ContentRecord {
	now := s.clock.Now()

	mediaURL := v.MediaURL
	if mediaURL == "" && len(v.MediaURLs) > 0 {
		mediaURL = v.MediaURLs[0]
	}
	accountID := v.AccountID
	if accountID == "" {
		accountID = conn.AccountID
	}

	stats := v.Stats
	if stats != nil && stats.CapturedAt.IsZero() {
		snapshot := *stats
		snapshot.CapturedAt = now
		stats = &snapshot
	}

	targets := mergeDestinations(req.Destinations, nil)
	autoSync := AutoSync{Enabled: req.AutoSync.Enabled}
	if req.AutoSync.Enabled {
		autoSync.Destinations = mergeDestinations(req.AutoSync.Destinations, nil)
		targets = mergeDestinations(targets, autoSync.Destinations)
	}

	return &ContentRecord{
		ID:               s.idgen.New(),
		UserID:           userID,
		ConnectionID:     conn.ID,
		SourcePlatform:   item.Platform,
		SourceAccountID:  accountID,
		SourcePostID:     item.VideoID,
		SourceURL:        v.Permalink,
		OriginalMediaURL: mediaURL,
		Metadata: Metadata{
			OriginalCaption: v.Caption,
			Hashtags:        ExtractHashtags(v.Caption),
			PostedAt:        v.PostedAt,
			DurationSeconds: v.DurationSeconds,
			Width:           v.Width,
			Height:          v.Height,
			Stats:           stats,
			Thumbnails:      Thumbnails{Original: v.ThumbnailURL},
		},
		Status:       StatusQueued,
		Priority:     ClampPriority(req.Priority),
		ImportMethod: req.Method,
		Targets:      targets,
		AutoSync:     autoSync,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// mergeDestinations returns the union of a and b in first-seen order.
func mergeDestinations(a, b []string) []string {
	var out []string
	for _, d := range append(slices.Clone(a), b...) {
		if d != "" && !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	return out
}
