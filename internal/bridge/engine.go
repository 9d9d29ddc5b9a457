package bridge

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"creator-bridge/internal/metrics"
)

// EngineConfig controls the worker pool and per-call limits.
type EngineConfig struct {
	Workers         int
	Retry           RetryPolicy
	DownloadTimeout time.Duration
	UploadTimeout   time.Duration

	// ClaimLease is how long a record may stay in flight before Recover
	// treats its worker as lost. Zero means DefaultClaimLease.
	ClaimLease time.Duration
}

// DefaultClaimLease outlasts every download and upload attempt, with backoff,
// that a record can make under the default settings.
const DefaultClaimLease = 2 * time.Hour

// DefaultEngineConfig matches the observed production settings: two workers,
// 60s downloads and 10 minute uploads.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Workers:         2,
		Retry:           DefaultRetryPolicy(),
		DownloadTimeout: 60 * time.Second,
		UploadTimeout:   10 * time.Minute,
		ClaimLease:      DefaultClaimLease,
	}
}

// Engine drives records through download, processing and upload.
// Each worker owns one record at a time, from claim until synced or error.
type Engine struct {
	store        Store
	staging      StagingArea
	fetcher      MediaFetcher
	processor    Processor
	destinations *DestinationSet
	logger       Logger
	clock        Clock
	cfg          EngineConfig
	queue        *Queue
}

// NewEngine creates an Engine. Workers below one are raised to one.
func NewEngine(store Store, staging StagingArea, fetcher MediaFetcher, processor Processor, destinations *DestinationSet, logger Logger, clock Clock, cfg EngineConfig) *Engine {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = DefaultClaimLease
	}
	return &Engine{
		store:        store,
		staging:      staging,
		fetcher:      fetcher,
		processor:    processor,
		destinations: destinations,
		logger:       logger,
		clock:        clock,
		cfg:          cfg,
		queue:        NewQueue(),
	}
}

// Enqueue schedules a record. Returns false if it was already waiting.
func (e *Engine) Enqueue(userID, recordID string, priority int) bool {
	added := e.queue.Push(Task{UserID: userID, RecordID: recordID, Priority: priority})
	metrics.QueueDepth.Set(float64(e.queue.Len()))
	if added {
		e.logger.Debug("record enqueued", "record", recordID, "priority", priority)
	}
	return added
}

// Pending returns the number of tasks waiting for a worker.
func (e *Engine) Pending() int { return e.queue.Len() }

// Recover prepares the store for a new worker pool and returns how many
// records it re-enqueued. Records claimed longer ago than the lease are moved
// to error so they can be retried, staged files that no record owns are
// deleted, and queued records that still have targets are re-enqueued.
func (e *Engine) Recover(ctx context.Context, limit int) (int, error) {
	if err := e.expireClaims(ctx, limit); err != nil {
		return 0, err
	}
	e.pruneStaging(ctx)

	recs, err := e.store.FindQueuedWithTargets(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("finding queued records: %w", err)
	}
	n := 0
	for _, rec := range recs {
		if e.Enqueue(rec.UserID, rec.ID, rec.Priority) {
			n++
		}
	}
	if n > 0 {
		e.logger.Info("recovered queued records", "count", n)
	}
	return n, nil
}

func (e *Engine) expireClaims(ctx context.Context, limit int) error {
	recs, err := e.store.FindStaleClaims(ctx, e.clock.Now().Add(-e.cfg.ClaimLease), limit)
	if err != nil {
		return fmt.Errorf("finding stale claims: %w", err)
	}
	for _, rec := range recs {
		e.logger.Warn("claim expired", "record", rec.ID, "status", rec.Status, "lease", e.cfg.ClaimLease)
		e.fail(ctx, &attempt{rec: rec, stage: stageOf(rec.Status)},
			fmt.Errorf("%w: no outcome within %s of the claim", ErrWorkerLost, e.cfg.ClaimLease))
	}
	return nil
}

// pruneStaging deletes staged files of synced, failed or missing records.
// Failures are logged; they never block recovery.
func (e *Engine) pruneStaging(ctx context.Context) {
	owners, err := e.store.StagingOwners(ctx)
	if err != nil {
		e.logger.Warn("listing staged media owners", "error", err)
		return
	}
	keep := make(map[string]bool, len(owners))
	for _, id := range owners {
		keep[id] = true
	}
	n, err := e.staging.Prune(func(recordID string) bool { return keep[recordID] })
	if err != nil {
		e.logger.Warn("pruning staging area", "error", err)
	}
	if n > 0 {
		e.logger.Info("pruned staging area", "removed", n)
	}
}

// stageOf is the pipeline stage a record in status s is working through.
func stageOf(s Status) Stage {
	switch s {
	case StatusProcessing:
		return StageProcessing
	case StatusUploading:
		return StageUpload
	default:
		return StageDownload
	}
}

// Run starts the worker pool and blocks until ctx is done. Workers finish the
// record they hold before returning.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("sync engine started", "workers", e.cfg.Workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < e.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				task, ok := e.queue.Pop(gctx)
				if !ok {
					return nil
				}
				e.process(gctx, task)
			}
		})
	}
	err := g.Wait()
	e.logger.Info("sync engine stopped")
	return err
}

// Drain processes waiting tasks with the worker pool until the queue is empty.
func (e *Engine) Drain(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < e.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				task, ok := e.queue.TryPop()
				if !ok {
					return nil
				}
				e.process(gctx, task)
			}
		})
	}
	return g.Wait()
}

// attempt tracks one pass over a claimed record.
type attempt struct {
	rec   *ContentRecord
	stage Stage
}

// process claims the task's record and runs it to synced or error.
func (e *Engine) process(ctx context.Context, t Task) {
	metrics.QueueDepth.Set(float64(e.queue.Len()))

	// Shutdown stops dequeuing; a claimed record still runs to an outcome.
	ctx = context.WithoutCancel(ctx)

	rec, err := e.store.GetRecord(ctx, t.UserID, t.RecordID)
	if err != nil {
		e.logger.Error("loading record", "record", t.RecordID, "error", err)
		return
	}
	if rec == nil {
		e.logger.Warn("queued record no longer exists", "record", t.RecordID)
		return
	}
	if rec.Status != StatusQueued || rec.IsArchived {
		e.logger.Debug("skipping record", "record", rec.ID, "status", rec.Status, "archived", rec.IsArchived)
		return
	}
	if len(rec.PendingTargets()) == 0 {
		e.logger.Debug("record has no pending destinations", "record", rec.ID)
		return
	}

	claimed, err := e.store.ClaimRecord(ctx, rec.UserID, rec.ID, e.clock.Now())
	if err != nil {
		e.logger.Error("claiming record", "record", rec.ID, "error", err)
		return
	}
	if !claimed {
		metrics.ClaimConflicts.Inc()
		e.logger.Debug("record claimed elsewhere", "record", rec.ID)
		return
	}
	rec.Status = StatusDownloading

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()
	e.run(ctx, &attempt{rec: rec, stage: StageDownload})
}

func (e *Engine) run(ctx context.Context, a *attempt) {
	defer func() {
		if r := recover(); r != nil {
			e.fail(ctx, a, fmt.Errorf("internal error: %v", r))
		}
	}()

	steps := []struct {
		stage Stage
		next  Status
		run   func(context.Context, *attempt) error
	}{
		{StageDownload, StatusProcessing, e.download},
		{StageProcessing, StatusUploading, e.processMedia},
		{StageUpload, StatusSynced, e.upload},
	}

	for _, step := range steps {
		a.stage = step.stage
		start := time.Now()
		err := step.run(ctx, a)
		metrics.ObserveStage(string(step.stage), start, err)
		if err != nil {
			e.fail(ctx, a, err)
			return
		}
		if step.next == StatusSynced {
			e.complete(ctx, a)
			return
		}
		if err := e.advance(ctx, a, step.next); err != nil {
			e.fail(ctx, a, err)
			return
		}
	}
}

// advance moves the record to the next in-flight status.
func (e *Engine) advance(ctx context.Context, a *attempt, to Status) error {
	ok, err := e.store.TransitionStatus(ctx, a.rec.UserID, a.rec.ID, a.rec.Status, to, e.clock.Now())
	if err != nil {
		return fmt.Errorf("moving to %s: %w", to, err)
	}
	if !ok {
		return Permanent(fmt.Errorf("record left %s while claimed", a.rec.Status))
	}
	a.rec.Status = to
	return nil
}

func (e *Engine) download(ctx context.Context, a *attempt) error {
	rec := a.rec

	conn, err := e.store.GetConnection(ctx, rec.UserID, rec.ConnectionID)
	if err != nil {
		return fmt.Errorf("loading connection: %w", err)
	}
	if conn == nil {
		return Permanent(fmt.Errorf("%w: connection %s not found", ErrConnectionUnavailable, rec.ConnectionID))
	}
	if err := conn.Check(e.clock.Now()); err != nil {
		return Permanent(err)
	}

	if rec.Media.LocalPath != "" && e.staging.Verify(rec.Media) {
		e.logger.Debug("reusing staged media", "record", rec.ID, "path", rec.Media.LocalPath)
		return nil
	}
	if rec.OriginalMediaURL == "" {
		return Permanent(fmt.Errorf("%w: record has no media url", ErrInvalidMedia))
	}

	var staged *MediaFile
	err = withRetry(ctx, e.cfg.Retry, e.onRetry(rec.ID, StageDownload), func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, e.cfg.DownloadTimeout)
		defer cancel()

		body, err := e.fetcher.Fetch(cctx, rec.OriginalMediaURL)
		if err != nil {
			return err
		}
		defer body.Close()

		m, err := e.staging.Store(rec.ID, body)
		if err != nil {
			return err
		}
		staged = m
		return nil
	})
	if err != nil {
		return err
	}

	rec.Media.LocalPath = staged.LocalPath
	rec.Media.Checksum = staged.Checksum
	rec.Media.FileSize = staged.FileSize
	if err := e.store.UpdateMedia(ctx, rec.UserID, rec.ID, rec.Media, e.clock.Now()); err != nil {
		return fmt.Errorf("recording staged media: %w", err)
	}
	e.logger.Info("media downloaded", "record", rec.ID, "size", staged.FileSize, "checksum", staged.Checksum)
	return nil
}

func (e *Engine) processMedia(ctx context.Context, a *attempt) error {
	rec := a.rec
	info, err := e.processor.Process(ctx, rec.Media.LocalPath)
	if err != nil {
		return err
	}
	rec.Media.Format = info.Extension
	if err := e.store.UpdateMedia(ctx, rec.UserID, rec.ID, rec.Media, e.clock.Now()); err != nil {
		return fmt.Errorf("recording media format: %w", err)
	}
	return nil
}

// upload delivers to every target that has no success entry yet, so a retried
// record never re-uploads to a destination that already confirmed it.
func (e *Engine) upload(ctx context.Context, a *attempt) error {
	rec := a.rec
	meta := rec.UploadMetadata()

	for _, name := range rec.PendingTargets() {
		dest, err := e.destinations.Get(name)
		if err != nil {
			return Permanent(err)
		}

		started := e.clock.Now()
		var res *UploadResult
		err = withRetry(ctx, e.cfg.Retry, e.onRetry(rec.ID, StageUpload), func(ctx context.Context) error {
			cctx, cancel := context.WithTimeout(ctx, e.cfg.UploadTimeout)
			defer cancel()
			r, err := dest.Upload(cctx, rec.Media.LocalPath, meta)
			if err != nil {
				return err
			}
			res = r
			return nil
		})
		completed := e.clock.Now()

		entry := &SyncEntry{
			RecordID:    rec.ID,
			Destination: name,
			StartedAt:   started,
			CompletedAt: &completed,
		}
		if err != nil {
			entry.Status = SyncFailed
			entry.Error = err.Error()
		} else {
			entry.Status = SyncSuccess
			entry.DestinationID = res.ExternalID
			entry.DestinationURL = res.ExternalURL
		}
		if aerr := e.store.AppendSyncEntry(ctx, entry); aerr != nil {
			return fmt.Errorf("recording sync entry: %w", aerr)
		}
		rec.SyncHistory = append(rec.SyncHistory, *entry)
		metrics.Deliveries.WithLabelValues(name, string(entry.Status)).Inc()

		if err != nil {
			return err
		}
		e.logger.Info("media uploaded", "record", rec.ID, "destination", name, "external_id", res.ExternalID)
	}
	return nil
}

// complete marks the record synced and deletes its staged file.
func (e *Engine) complete(ctx context.Context, a *attempt) {
	rec := a.rec
	ok, err := e.store.MarkSynced(ctx, rec.UserID, rec.ID, e.clock.Now())
	if err != nil || !ok {
		if err == nil {
			err = fmt.Errorf("record left %s while claimed", rec.Status)
		}
		e.fail(ctx, a, err)
		return
	}
	rec.Status = StatusSynced
	e.removeStaged(rec)
	e.logger.Info("record synced", "record", rec.ID, "destinations", len(rec.Targets))
}

// fail records err against the current stage and moves the record to error.
// A file that finished downloading is kept when the upload failed only
// because its retries ran out, so an explicit retry can reuse it.
func (e *Engine) fail(ctx context.Context, a *attempt, err error) {
	rec := a.rec
	keep := a.stage == StageUpload && IsRetryable(err) && rec.Media.LocalPath != ""

	stageErr := StageError{Stage: a.stage, Message: err.Error(), OccurredAt: e.clock.Now()}
	ok, merr := e.store.MarkError(ctx, rec.UserID, rec.ID, rec.Status, stageErr, !keep)
	if merr != nil {
		e.logger.Error("recording failure", "record", rec.ID, "stage", a.stage, "error", merr, "cause", err)
		return
	}
	if !ok {
		e.logger.Error("record changed status while claimed", "record", rec.ID, "expected", rec.Status)
		return
	}
	rec.Status = StatusError
	rec.Errors = append(rec.Errors, stageErr)
	if !keep {
		e.removeStaged(rec)
	}
	e.logger.Error("record failed", "record", rec.ID, "stage", a.stage, "retryable", IsRetryable(err), "error", err)
}

func (e *Engine) removeStaged(rec *ContentRecord) {
	if rec.Media.LocalPath == "" {
		return
	}
	if err := e.staging.Remove(rec.Media.LocalPath); err != nil {
		e.logger.Warn("removing staged media", "record", rec.ID, "path", rec.Media.LocalPath, "error", err)
	}
	rec.Media.LocalPath = ""
}

func (e *Engine) onRetry(recordID string, stage Stage) func(error, int, time.Duration) {
	return func(err error, attempt int, wait time.Duration) {
		metrics.Retries.WithLabelValues(string(stage)).Inc()
		e.logger.Warn("transient failure, retrying", "record", recordID, "stage", stage, "attempt", attempt, "wait", wait, "error", err)
	}
}
