package bridge

import (
	"context"
	"errors"
	"fmt"
)

// Ack is the per-record answer to a sync request.
type Ack string

const (
	AckQueued        Ack = "queued"
	AckAlreadySynced Ack = "already_synced"
	AckNotFound      Ack = "not_found"
	AckInProgress    Ack = "in_progress"
	AckNeedsRetry    Ack = "needs_retry"
	AckArchived      Ack = "archived"
	AckFailed        Ack = "failed"
)

// SyncAck answers a single-record sync request.
type SyncAck struct {
	Accepted  bool
	ContentID string
	Status    Status
	Ack       Ack
}

// BulkSyncItem is the acknowledgment for one id in a bulk request.
type BulkSyncItem struct {
	ID     string
	Status Ack
	Error  string
}

// BulkSyncResult lists acknowledgments in request order.
type BulkSyncResult struct {
	Results []BulkSyncItem
}

// RetryAck confirms a record was put back in the queue.
type RetryAck struct {
	ContentID string
	Status    Status
}

// SyncStatusReport summarizes pipeline progress for one user.
type SyncStatusReport struct {
	QueuedCount       int
	ProcessingCount   int
	CompletedCount    int
	FailedCount       int
	Pending           int
	RecentCompletions []*Completion
}

const recentCompletionsLimit = 10

// SyncOne requests delivery of one record to destination. The request is
// acknowledged immediately; completion is observed through SyncStatus.
func (s *Service) SyncOne(ctx context.Context, userID, id, destination string) (*SyncAck, error) {
	if !s.destinations.Has(destination) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDestination, destination)
	}
	rec, err := s.store.GetRecord(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("loading record: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("content %s: %w", id, ErrNotFound)
	}
	ack, status, err := s.requestSync(ctx, rec, destination)
	if err != nil {
		return nil, err
	}
	return &SyncAck{Accepted: ack == AckQueued, ContentID: rec.ID, Status: status, Ack: ack}, nil
}

// BulkSync requests delivery of many records. Each id is acknowledged on its
// own; a problem with one id never affects the others.
func (s *Service) BulkSync(ctx context.Context, userID string, ids []string, destination string) (*BulkSyncResult, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("no content ids given")
	}
	if !s.destinations.Has(destination) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDestination, destination)
	}

	result := &BulkSyncResult{Results: make([]BulkSyncItem, 0, len(ids))}
	for _, id := range ids {
		item := BulkSyncItem{ID: id}
		rec, err := s.store.GetRecord(ctx, userID, id)
		switch {
		case err != nil:
			item.Status = AckFailed
			item.Error = err.Error()
		case rec == nil:
			item.Status = AckNotFound
		default:
			ack, _, err := s.requestSync(ctx, rec, destination)
			item.Status = ack
			if err != nil {
				item.Error = err.Error()
			}
		}
		result.Results = append(result.Results, item)
	}
	s.logger.Info("bulk sync requested", "destination", destination, "count", len(ids))
	return result, nil
}

// requestSync adds destination to a queued record's targets and enqueues it.
// Records in any other state are acknowledged without change.
func (s *Service) requestSync(ctx context.Context, rec *ContentRecord, destination string) (Ack, Status, error) {
	switch {
	case rec.IsArchived:
		return AckArchived, rec.Status, nil
	case rec.Status == StatusSynced:
		return AckAlreadySynced, rec.Status, nil
	case rec.Status == StatusError:
		return AckNeedsRetry, rec.Status, nil
	case rec.Status.InFlight():
		return AckInProgress, rec.Status, nil
	}

	ok, err := s.store.AddTargets(ctx, rec.UserID, rec.ID, []string{destination}, s.clock.Now())
	if err != nil {
		return AckFailed, rec.Status, fmt.Errorf("adding destination: %w", err)
	}
	if !ok {
		// A worker claimed it between the read and the update.
		return AckInProgress, StatusDownloading, nil
	}
	s.engine.Enqueue(rec.UserID, rec.ID, rec.Priority)
	return AckQueued, StatusQueued, nil
}

// Retry puts an errored record back in the queue. Its errors are cleared and
// its sync history is kept; destinations already delivered are skipped.
func (s *Service) Retry(ctx context.Context, userID, id string) (*RetryAck, error) {
	rec, err := s.store.GetRecord(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("loading record: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("content %s: %w", id, ErrNotFound)
	}
	if rec.Status != StatusError {
		return nil, fmt.Errorf("content %s is %s: %w", id, rec.Status, ErrNotInErrorState)
	}

	ok, err := s.store.ResetForRetry(ctx, userID, id, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("resetting record: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("content %s: %w", id, ErrNotInErrorState)
	}

	if len(rec.PendingTargets()) > 0 {
		s.engine.Enqueue(userID, id, rec.Priority)
	}
	s.logger.Info("record retried", "record", id)
	return &RetryAck{ContentID: id, Status: StatusQueued}, nil
}

// SyncStatus reports pipeline counts and the latest deliveries.
func (s *Service) SyncStatus(ctx context.Context, userID string) (*SyncStatusReport, error) {
	counts, err := s.store.CountByStatus(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}
	recent, err := s.store.RecentCompletions(ctx, userID, recentCompletionsLimit)
	if err != nil {
		return nil, fmt.Errorf("loading recent completions: %w", err)
	}
	return &SyncStatusReport{
		QueuedCount:       counts[StatusQueued],
		ProcessingCount:   counts[StatusDownloading] + counts[StatusProcessing] + counts[StatusUploading],
		CompletedCount:    counts[StatusSynced],
		FailedCount:       counts[StatusError],
		Pending:           s.engine.Pending(),
		RecentCompletions: recent,
	}, nil
}

// IsNotFound reports whether err means the requested item does not exist.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
