package bridge

import (
	"context"
	"fmt"
	"time"

	"creator-bridge/internal/metrics"
)

// SchedulerConfig controls auto-sync selection.
type SchedulerConfig struct {
	// Staleness is how long after the last auto-sync a record becomes eligible again.
	Staleness time.Duration
	// BatchLimit caps how many records one scan enqueues.
	BatchLimit int
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{Staleness: 24 * time.Hour, BatchLimit: 50}
}

// Scheduler enqueues records whose auto-sync is due.
type Scheduler struct {
	store  Store
	engine *Engine
	logger Logger
	clock  Clock
	cfg    SchedulerConfig
}

func NewScheduler(store Store, engine *Engine, logger Logger, clock Clock, cfg SchedulerConfig) *Scheduler {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = DefaultSchedulerConfig().BatchLimit
	}
	return &Scheduler{store: store, engine: engine, logger: logger, clock: clock, cfg: cfg}
}

// RunOnce scans for due records and enqueues them for their auto-sync
// destinations. Records a worker holds are never selected: only queued
// records qualify, and adding targets is itself conditional on status.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	now := s.clock.Now()
	recs, err := s.store.FindAutoSyncCandidates(ctx, now.Add(-s.cfg.Staleness), s.cfg.BatchLimit)
	if err != nil {
		return 0, fmt.Errorf("finding auto-sync candidates: %w", err)
	}

	enqueued := 0
	for _, rec := range recs {
		if rec.Status != StatusQueued || len(rec.AutoSync.Destinations) == 0 {
			continue
		}
		ok, err := s.store.AddTargets(ctx, rec.UserID, rec.ID, rec.AutoSync.Destinations, now)
		if err != nil {
			s.logger.Error("adding auto-sync targets", "record", rec.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		if s.engine.Enqueue(rec.UserID, rec.ID, rec.Priority) {
			enqueued++
			metrics.AutoSyncEnqueued.Inc()
		}
	}

	if enqueued > 0 {
		s.logger.Info("auto-sync enqueued records", "count", enqueued, "candidates", len(recs))
	}
	return enqueued, nil
}
