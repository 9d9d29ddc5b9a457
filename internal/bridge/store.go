package bridge

import (
	"context"
	"time"
)

// RecordFilter narrows ListRecords. Zero values mean "any".
type RecordFilter struct {
	UserID          string
	Status          Status
	Platform        string
	Search          string
	IncludeArchived bool
	Limit           int
	Offset          int
}

// Completion is a successful delivery, newest first in RecentCompletions.
type Completion struct {
	RecordID       string
	Title          string
	Destination    string
	DestinationID  string
	DestinationURL string
	CompletedAt    time.Time
}

// Store is the durable source of truth for records and connections.
// Every record query is scoped by user id. Lookups return nil, nil when
// nothing matches. Methods returning (bool, error) are compare-and-swap
// operations: false means the record was not in the expected state.
type Store interface {
	// Records

	// CreateRecord inserts rec. Returns an error wrapping ErrDuplicate when
	// (user, platform, source post) already exists.
	CreateRecord(ctx context.Context, rec *ContentRecord) error

	// GetRecord returns a record with its sync history and errors.
	GetRecord(ctx context.Context, userID, id string) (*ContentRecord, error)

	// FindRecordBySourcePost looks a record up by its source identity.
	FindRecordBySourcePost(ctx context.Context, userID, platform, postID string) (*ContentRecord, error)

	// ListRecords returns records matching f, highest priority then newest first.
	ListRecords(ctx context.Context, f RecordFilter) ([]*ContentRecord, error)

	// Pipeline state

	// ClaimRecord atomically moves a queued record to downloading.
	ClaimRecord(ctx context.Context, userID, id string, at time.Time) (bool, error)

	// TransitionStatus atomically moves a record from one status to the next.
	// Transitions the state machine does not allow are rejected with an error.
	TransitionStatus(ctx context.Context, userID, id string, from, to Status, at time.Time) (bool, error)

	// UpdateMedia records the staged file for a record.
	UpdateMedia(ctx context.Context, userID, id string, media MediaFile, at time.Time) error

	// AppendSyncEntry adds an entry to a record's audit trail.
	AppendSyncEntry(ctx context.Context, entry *SyncEntry) error

	// MarkSynced moves an uploading record to synced, clears its local path
	// and targets, and stamps the last auto-sync time.
	MarkSynced(ctx context.Context, userID, id string, at time.Time) (bool, error)

	// MarkError moves a record from `from` to error and appends stageErr.
	// When clearMedia is true the local path is cleared in the same transaction.
	MarkError(ctx context.Context, userID, id string, from Status, stageErr StageError, clearMedia bool) (bool, error)

	// ResetForRetry moves an errored record back to queued and clears its errors.
	// Sync history is untouched.
	ResetForRetry(ctx context.Context, userID, id string, at time.Time) (bool, error)

	// AddTargets merges destinations into a queued record's targets.
	AddTargets(ctx context.Context, userID, id string, destinations []string, at time.Time) (bool, error)

	// User edits

	// UpdateMetadata replaces the editable metadata and priority.
	UpdateMetadata(ctx context.Context, userID, id string, m Metadata, priority int, at time.Time) error

	// SetAutoSync updates the auto-sync flag and destinations. LastAutoSyncAt is engine-owned.
	SetAutoSync(ctx context.Context, userID, id string, enabled bool, destinations []string, at time.Time) error

	// ArchiveRecord soft-deletes a record that is not in flight.
	ArchiveRecord(ctx context.Context, userID, id string, at time.Time) (bool, error)

	// Scheduling

	// FindAutoSyncCandidates returns queued, unarchived records with auto-sync
	// enabled whose last auto-sync is missing or before staleBefore.
	FindAutoSyncCandidates(ctx context.Context, staleBefore time.Time, limit int) ([]*ContentRecord, error)

	// FindQueuedWithTargets returns queued records that have delivery targets.
	FindQueuedWithTargets(ctx context.Context, limit int) ([]*ContentRecord, error)

	// FindStaleClaims returns in-flight records claimed before claimedBefore,
	// oldest claim first.
	FindStaleClaims(ctx context.Context, claimedBefore time.Time, limit int) ([]*ContentRecord, error)

	// StagingOwners returns the ids of records that may hold a staged file:
	// those in flight and those with a local path.
	StagingOwners(ctx context.Context) ([]string, error)

	// Reporting

	CountByStatus(ctx context.Context, userID string) (map[Status]int, error)
	CountByPlatform(ctx context.Context, userID string) (map[string]int, error)
	RecentCompletions(ctx context.Context, userID string, limit int) ([]*Completion, error)

	// Connections

	CreateConnection(ctx context.Context, conn *Connection) error
	GetConnection(ctx context.Context, userID, id string) (*Connection, error)
	ListConnections(ctx context.Context, userID string) ([]*Connection, error)
	SetConnectionActive(ctx context.Context, userID, id string, active bool) (bool, error)

	// SetConnectionAutoSync sets the auto-sync default of an active connection.
	SetConnectionAutoSync(ctx context.Context, userID, id string, enabled bool, destinations []string) (bool, error)

	// MarkConnectionChecked stamps the last successful connection test.
	MarkConnectionChecked(ctx context.Context, userID, id string, at time.Time) error

	// Close closes the underlying database.
	Close() error
}
