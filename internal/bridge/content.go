package bridge

import (
	"fmt"
	"slices"
	"time"
)

// Status is the pipeline state of a ContentRecord.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusUploading   Status = "uploading"
	StatusSynced      Status = "synced"
	StatusError       Status = "error"
)

// Statuses lists every status in pipeline order.
var Statuses = []Status{StatusQueued, StatusDownloading, StatusProcessing, StatusUploading, StatusSynced, StatusError}

// transitions is the complete state machine. Anything not listed is rejected.
var transitions = map[Status][]Status{
	StatusQueued:      {StatusDownloading, StatusError},
	StatusDownloading: {StatusProcessing, StatusError},
	StatusProcessing:  {StatusUploading, StatusError},
	StatusUploading:   {StatusSynced, StatusError},
	StatusError:       {StatusQueued},
}

// CanTransition reports whether the state machine allows moving from -> to.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// InFlight reports whether a worker currently owns a record in this status.
func (s Status) InFlight() bool {
	return s == StatusDownloading || s == StatusProcessing || s == StatusUploading
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

// ParseStatus converts a string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown status: %q", s)
	}
	return st, nil
}

// Stage identifies where in the pipeline a failure happened.
type Stage string

const (
	StageDownload   Stage = "download"
	StageProcessing Stage = "processing"
	StageUpload     Stage = "upload"
)

// ImportMethod records how a record entered the system.
type ImportMethod string

const (
	ImportManual ImportMethod = "manual"
	ImportAuto   ImportMethod = "auto"
	ImportBulk   ImportMethod = "bulk"
)

// SyncStatus is the outcome of one delivery attempt to one destination.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSuccess SyncStatus = "success"
	SyncFailed  SyncStatus = "failed"
)

// ContentRecord is one imported social video and its migration state.
type ContentRecord struct {
	ID               string
	UserID           string
	ConnectionID     string
	SourcePlatform   string
	SourceAccountID  string
	SourcePostID     string
	SourceURL        string
	OriginalMediaURL string

	Media    MediaFile
	Metadata Metadata

	Status       Status
	Priority     int
	ImportMethod ImportMethod

	// Targets are the destinations the current or next pass delivers to.
	Targets  []string
	AutoSync AutoSync

	SyncHistory []SyncEntry
	Errors      []StageError

	IsArchived bool
	ArchivedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MediaFile describes the local copy of the source media.
type MediaFile struct {
	LocalPath string
	Checksum  string
	FileSize  int64
	Format    string
}

// Metadata holds the original and user-edited descriptive fields.
type Metadata struct {
	OriginalCaption   string     `json:"original_caption,omitempty"`
	EditedTitle       string     `json:"edited_title,omitempty"`
	EditedDescription string     `json:"edited_description,omitempty"`
	Hashtags          []string   `json:"hashtags,omitempty"`
	Tags              []string   `json:"tags,omitempty"`
	PostedAt          *time.Time `json:"posted_at,omitempty"`
	DurationSeconds   float64    `json:"duration_seconds,omitempty"`
	Width             int        `json:"width,omitempty"`
	Height            int        `json:"height,omitempty"`
	Stats             *Stats     `json:"stats,omitempty"`
	Thumbnails        Thumbnails `json:"thumbnails"`
}

// Stats is an engagement snapshot taken at import time.
type Stats struct {
	Likes      int64     `json:"likes"`
	Comments   int64     `json:"comments"`
	Shares     int64     `json:"shares"`
	Views      int64     `json:"views"`
	CapturedAt time.Time `json:"captured_at"`
}

// Thumbnails references the available poster images.
type Thumbnails struct {
	Original  string `json:"original,omitempty"`
	Custom    string `json:"custom,omitempty"`
	Generated string `json:"generated,omitempty"`
}

// AutoSync configures scheduler-driven delivery.
type AutoSync struct {
	Enabled        bool
	Destinations   []string
	LastAutoSyncAt *time.Time
}

// SyncEntry is one row of the append-only delivery audit trail.
type SyncEntry struct {
	ID             int64
	RecordID       string
	Destination    string
	DestinationID  string
	DestinationURL string
	Status         SyncStatus
	Error          string
	StartedAt      time.Time
	CompletedAt    *time.Time
}

// StageError is a failure recorded against a record.
type StageError struct {
	Stage      Stage
	Message    string
	OccurredAt time.Time
}

// DeliveredTo reports whether a success entry exists for destination.
func (r *ContentRecord) DeliveredTo(destination string) bool {
	for _, e := range r.SyncHistory {
		if e.Destination == destination && e.Status == SyncSuccess {
			return true
		}
	}
	return false
}

// PendingTargets returns the targets that have no success entry yet.
func (r *ContentRecord) PendingTargets() []string {
	var pending []string
	for _, d := range r.Targets {
		if !r.DeliveredTo(d) {
			pending = append(pending, d)
		}
	}
	return pending
}

// Title returns the edited title, falling back to one derived from the caption.
func (r *ContentRecord) Title() string {
	if r.Metadata.EditedTitle != "" {
		return r.Metadata.EditedTitle
	}
	return TitleFromCaption(r.Metadata.OriginalCaption, r.SourcePlatform)
}

// Description returns the edited description or the original caption.
func (r *ContentRecord) Description() string {
	if r.Metadata.EditedDescription != "" {
		return r.Metadata.EditedDescription
	}
	return r.Metadata.OriginalCaption
}

// EffectiveTags returns the edited tags, or the source hashtags when none were set.
func (r *ContentRecord) EffectiveTags() []string {
	if len(r.Metadata.Tags) > 0 {
		return r.Metadata.Tags
	}
	return r.Metadata.Hashtags
}

// Thumbnail returns the custom thumbnail if present, then the original, then the generated one.
func (r *ContentRecord) Thumbnail() string {
	t := r.Metadata.Thumbnails
	switch {
	case t.Custom != "":
		return t.Custom
	case t.Original != "":
		return t.Original
	default:
		return t.Generated
	}
}

// UploadMetadata builds the metadata handed to a destination adapter.
func (r *ContentRecord) UploadMetadata() UploadMetadata {
	return UploadMetadata{
		RecordID:     r.ID,
		Title:        r.Title(),
		Description:  r.Description(),
		Tags:         append([]string(nil), r.EffectiveTags()...),
		ThumbnailURL: r.Thumbnail(),
		Checksum:     r.Media.Checksum,
		Format:       r.Media.Format,
		CustomParams: map[string]string{
			"source_record_id": r.ID,
			"source_platform":  r.SourcePlatform,
			"source_post_id":   r.SourcePostID,
			"source_url":       r.SourceURL,
		},
	}
}

// MetadataEdit carries a user's changes to the editable fields. Nil means unchanged.
type MetadataEdit struct {
	EditedTitle       *string
	EditedDescription *string
	Tags              []string
	CustomThumbnail   *string
	Priority          *int
}

// Apply merges the edit into m and returns the result.
func (e MetadataEdit) Apply(m Metadata) Metadata {
	if e.EditedTitle != nil {
		m.EditedTitle = *e.EditedTitle
	}
	if e.EditedDescription != nil {
		m.EditedDescription = *e.EditedDescription
	}
	if e.Tags != nil {
		m.Tags = append([]string(nil), e.Tags...)
	}
	if e.CustomThumbnail != nil {
		m.Thumbnails.Custom = *e.CustomThumbnail
	}
	return m
}

const (
	MinPriority = 0
	MaxPriority = 10
)

// ClampPriority bounds p to the supported priority range.
func ClampPriority(p int) int {
	return max(MinPriority, min(MaxPriority, p))
}
