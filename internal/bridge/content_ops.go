package bridge

import (
	"context"
	"fmt"
)

// BrowseItem is a platform post annotated with its import state.
type BrowseItem struct {
	Video      VideoDescriptor
	IsImported bool
	ContentID  string
}

// BrowsePage is one page of Browse results.
type BrowsePage struct {
	Items      []BrowseItem
	NextCursor string
	HasMore    bool
}

// Overview counts a user's records by status and platform.
type Overview struct {
	Total      int
	ByStatus   map[Status]int
	ByPlatform map[string]int
}

const defaultBrowseLimit = 25

// Browse lists recent posts from a connected account and marks the ones already imported.
func (s *Service) Browse(ctx context.Context, userID, connectionID, cursor string, limit int) (*BrowsePage, error) {
	if limit <= 0 {
		limit = defaultBrowseLimit
	}
	conn, err := s.openConnection(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.platforms.Get(conn.Platform)
	if err != nil {
		return nil, err
	}

	page, err := adapter.ListRecent(ctx, conn, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("listing %s posts: %w", conn.Platform, err)
	}

	out := &BrowsePage{NextCursor: page.NextCursor, HasMore: page.HasMore, Items: make([]BrowseItem, 0, len(page.Items))}
	for _, v := range page.Items {
		item := BrowseItem{Video: v}
		existing, err := s.store.FindRecordBySourcePost(ctx, userID, conn.Platform, v.ExternalID)
		if err != nil {
			return nil, fmt.Errorf("checking import state: %w", err)
		}
		if existing != nil {
			item.IsImported = true
			item.ContentID = existing.ID
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

// ListContent returns the user's records matching f. f.UserID is overwritten.
func (s *Service) ListContent(ctx context.Context, userID string, f RecordFilter) ([]*ContentRecord, error) {
	f.UserID = userID
	recs, err := s.store.ListRecords(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("listing content: %w", err)
	}
	return recs, nil
}

// GetContent returns one record with its history and errors.
func (s *Service) GetContent(ctx context.Context, userID, id string) (*ContentRecord, error) {
	rec, err := s.store.GetRecord(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("loading record: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("content %s: %w", id, ErrNotFound)
	}
	return rec, nil
}

// UpdateMetadata applies a user's edits. Status and history are never touched.
func (s *Service) UpdateMetadata(ctx context.Context, userID, id string, edit MetadataEdit) (*ContentRecord, error) {
	rec, err := s.GetContent(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	priority := rec.Priority
	if edit.Priority != nil {
		priority = ClampPriority(*edit.Priority)
	}
	m := edit.Apply(rec.Metadata)
	if err := s.store.UpdateMetadata(ctx, userID, id, m, priority, s.clock.Now()); err != nil {
		return nil, fmt.Errorf("updating metadata: %w", err)
	}
	rec.Metadata = m
	rec.Priority = priority
	s.logger.Info("metadata updated", "record", id)
	return rec, nil
}

// SetAutoSync enables or disables scheduler delivery for a record.
func (s *Service) SetAutoSync(ctx context.Context, userID, id string, enabled bool, destinations []string) error {
	for _, d := range destinations {
		if !s.destinations.Has(d) {
			return fmt.Errorf("%w: %q", ErrUnknownDestination, d)
		}
	}
	if enabled && len(destinations) == 0 {
		return fmt.Errorf("auto-sync needs at least one destination")
	}
	if _, err := s.GetContent(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.SetAutoSync(ctx, userID, id, enabled, mergeDestinations(destinations, nil), s.clock.Now()); err != nil {
		return fmt.Errorf("updating auto-sync: %w", err)
	}
	return nil
}

// Archive soft-deletes a record. Records owned by a worker cannot be archived.
func (s *Service) Archive(ctx context.Context, userID, id string) error {
	rec, err := s.GetContent(ctx, userID, id)
	if err != nil {
		return err
	}
	if rec.IsArchived {
		return nil
	}
	ok, err := s.store.ArchiveRecord(ctx, userID, id, s.clock.Now())
	if err != nil {
		return fmt.Errorf("archiving record: %w", err)
	}
	if !ok {
		return fmt.Errorf("content %s: %w", id, ErrInFlight)
	}
	s.logger.Info("record archived", "record", id)
	return nil
}

// Overview counts the user's records by status and platform.
func (s *Service) Overview(ctx context.Context, userID string) (*Overview, error) {
	byStatus, err := s.store.CountByStatus(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("counting by status: %w", err)
	}
	byPlatform, err := s.store.CountByPlatform(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("counting by platform: %w", err)
	}
	total := 0
	for _, n := range byStatus {
		total += n
	}
	return &Overview{Total: total, ByStatus: byStatus, ByPlatform: byPlatform}, nil
}
