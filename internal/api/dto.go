package api

import (
	"time"

	"creator-bridge/internal/bridge"
)

// Requests

type importVideo struct {
	Platform     string `json:"platform" validate:"required,oneof=instagram tiktok"`
	ConnectionID string `json:"connectionId" validate:"required"`
	VideoID      string `json:"videoId" validate:"required"`
}

type autoSyncBody struct {
	Enabled      bool     `json:"enabled"`
	Destinations []string `json:"destinations" validate:"required_if=Enabled true,dive,required"`
}

type importBody struct {
	Videos       []importVideo `json:"videos" validate:"required,min=1,max=100,dive"`
	Priority     int           `json:"priority"`
	Destinations []string      `json:"destinations" validate:"omitempty,dive,required"`
	AutoSync     *autoSyncBody `json:"autoSync"`
}

func (b importBody) request() bridge.ImportRequest {
	req := bridge.ImportRequest{
		Priority:     b.Priority,
		Method:       bridge.ImportManual,
		Destinations: b.Destinations,
	}
	for _, v := range b.Videos {
		req.Videos = append(req.Videos, bridge.ImportItem{Platform: v.Platform, ConnectionID: v.ConnectionID, VideoID: v.VideoID})
	}
	if b.AutoSync != nil {
		req.AutoSync = bridge.AutoSync{Enabled: b.AutoSync.Enabled, Destinations: b.AutoSync.Destinations}
	}
	return req
}

type connectionBody struct {
	Platform      string     `json:"platform" validate:"required,oneof=instagram tiktok"`
	AccountID     string     `json:"accountId" validate:"required"`
	AccountHandle string     `json:"accountHandle"`
	AccessToken   string     `json:"accessToken" validate:"required"`
	RefreshToken  string     `json:"refreshToken"`
	TokenExpiry   *time.Time `json:"tokenExpiry"`
}

type metadataBody struct {
	EditedTitle       *string  `json:"editedTitle" validate:"omitempty,max=200"`
	EditedDescription *string  `json:"editedDescription"`
	Tags              []string `json:"tags" validate:"omitempty,dive,required"`
	CustomThumbnail   *string  `json:"customThumbnail" validate:"omitempty,url"`
	Priority          *int     `json:"priority"`
}

func (b metadataBody) edit() bridge.MetadataEdit {
	return bridge.MetadataEdit{
		EditedTitle:       b.EditedTitle,
		EditedDescription: b.EditedDescription,
		Tags:              b.Tags,
		CustomThumbnail:   b.CustomThumbnail,
		Priority:          b.Priority,
	}
}

type syncBody struct {
	Destination string `json:"destination" validate:"required"`
}

type bulkSyncBody struct {
	ContentIDs  []string `json:"contentIds" validate:"required,min=1,max=500,dive,required"`
	Destination string   `json:"destination" validate:"required"`
}

// Responses

type connectionJSON struct {
	ID                   string     `json:"id"`
	Platform             string     `json:"platform"`
	AccountID            string     `json:"accountId"`
	AccountHandle        string     `json:"accountHandle,omitempty"`
	TokenExpiry          *time.Time `json:"tokenExpiry,omitempty"`
	IsActive             bool       `json:"isActive"`
	AutoSync             bool       `json:"autoSync"`
	AutoSyncDestinations []string   `json:"autoSyncDestinations"`
	LastCheckedAt        *time.Time `json:"lastCheckedAt,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
}

func toConnectionJSON(c *bridge.Connection) connectionJSON {
	return connectionJSON{
		ID:                   c.ID,
		Platform:             c.Platform,
		AccountID:            c.AccountID,
		AccountHandle:        c.AccountHandle,
		TokenExpiry:          c.TokenExpiry,
		IsActive:             c.IsActive,
		AutoSync:             c.AutoSync,
		AutoSyncDestinations: nonNil(c.AutoSyncDestinations),
		LastCheckedAt:        c.LastCheckedAt,
		CreatedAt:            c.CreatedAt,
	}
}

type connectionCheckJSON struct {
	ConnectionID  string    `json:"connectionId"`
	Platform      string    `json:"platform"`
	AccountHandle string    `json:"accountHandle,omitempty"`
	Success       bool      `json:"success"`
	Message       string    `json:"message"`
	LatestVideoID string    `json:"latestVideoId,omitempty"`
	CheckedAt     time.Time `json:"checkedAt"`
}

func toConnectionCheckJSON(c *bridge.ConnectionCheck) connectionCheckJSON {
	return connectionCheckJSON{
		ConnectionID:  c.ConnectionID,
		Platform:      c.Platform,
		AccountHandle: c.AccountHandle,
		Success:       c.OK,
		Message:       c.Message,
		LatestVideoID: c.LatestVideoID,
		CheckedAt:     c.CheckedAt,
	}
}

type connectionSummaryJSON struct {
	ID            string     `json:"id"`
	AccountHandle string     `json:"accountHandle,omitempty"`
	ConnectedAt   time.Time  `json:"connectedAt"`
	LastCheckedAt *time.Time `json:"lastCheckedAt,omitempty"`
	AutoSync      bool       `json:"autoSync"`
}

type platformConnectionsJSON struct {
	Count    int                     `json:"count"`
	Accounts []connectionSummaryJSON `json:"accounts"`
}

type connectionStatsJSON struct {
	TotalConnections int                                `json:"totalConnections"`
	AutoSyncEnabled  int                                `json:"autoSyncEnabled"`
	Platforms        map[string]platformConnectionsJSON `json:"platforms"`
}

func toConnectionStatsJSON(s *bridge.ConnectionStats) connectionStatsJSON {
	out := connectionStatsJSON{
		TotalConnections: s.TotalConnections,
		AutoSyncEnabled:  s.AutoSyncEnabled,
		Platforms:        make(map[string]platformConnectionsJSON, len(s.Platforms)),
	}
	for name, p := range s.Platforms {
		pj := platformConnectionsJSON{Count: p.Count, Accounts: make([]connectionSummaryJSON, 0, len(p.Accounts))}
		for _, a := range p.Accounts {
			pj.Accounts = append(pj.Accounts, connectionSummaryJSON(a))
		}
		out.Platforms[name] = pj
	}
	return out
}

type mediaJSON struct {
	Checksum string `json:"checksum,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`
	Format   string `json:"format,omitempty"`
}

type autoSyncJSON struct {
	Enabled        bool       `json:"enabled"`
	Destinations   []string   `json:"destinations"`
	LastAutoSyncAt *time.Time `json:"lastAutoSyncAt,omitempty"`
}

type syncEntryJSON struct {
	Destination    string     `json:"destination"`
	DestinationID  string     `json:"destinationId,omitempty"`
	DestinationURL string     `json:"destinationUrl,omitempty"`
	Status         string     `json:"status"`
	Error          string     `json:"error,omitempty"`
	StartedAt      time.Time  `json:"startedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

type stageErrorJSON struct {
	Stage      string    `json:"stage"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurredAt"`
}

type contentJSON struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	SourcePlatform   string           `json:"sourcePlatform"`
	SourceAccountID  string           `json:"sourceAccountId"`
	SourcePostID     string           `json:"sourcePostId"`
	SourceURL        string           `json:"sourceUrl,omitempty"`
	OriginalMediaURL string           `json:"originalMediaUrl,omitempty"`
	Media            mediaJSON        `json:"media"`
	Metadata         bridge.Metadata  `json:"metadata"`
	Status           string           `json:"status"`
	Priority         int              `json:"priority"`
	ImportMethod     string           `json:"importMethod"`
	Targets          []string         `json:"targets"`
	AutoSync         autoSyncJSON     `json:"autoSync"`
	SyncHistory      []syncEntryJSON  `json:"syncHistory"`
	Errors           []stageErrorJSON `json:"errors"`
	IsArchived       bool             `json:"isArchived"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

func toContentJSON(r *bridge.ContentRecord) contentJSON {
	out := contentJSON{
		ID:               r.ID,
		Title:            r.Title(),
		SourcePlatform:   r.SourcePlatform,
		SourceAccountID:  r.SourceAccountID,
		SourcePostID:     r.SourcePostID,
		SourceURL:        r.SourceURL,
		OriginalMediaURL: r.OriginalMediaURL,
		Media:            mediaJSON{Checksum: r.Media.Checksum, FileSize: r.Media.FileSize, Format: r.Media.Format},
		Metadata:         r.Metadata,
		Status:           string(r.Status),
		Priority:         r.Priority,
		ImportMethod:     string(r.ImportMethod),
		Targets:          nonNil(r.Targets),
		AutoSync: autoSyncJSON{
			Enabled:        r.AutoSync.Enabled,
			Destinations:   nonNil(r.AutoSync.Destinations),
			LastAutoSyncAt: r.AutoSync.LastAutoSyncAt,
		},
		SyncHistory: make([]syncEntryJSON, 0, len(r.SyncHistory)),
		Errors:      make([]stageErrorJSON, 0, len(r.Errors)),
		IsArchived:  r.IsArchived,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	for _, e := range r.SyncHistory {
		out.SyncHistory = append(out.SyncHistory, syncEntryJSON{
			Destination:    e.Destination,
			DestinationID:  e.DestinationID,
			DestinationURL: e.DestinationURL,
			Status:         string(e.Status),
			Error:          e.Error,
			StartedAt:      e.StartedAt,
			CompletedAt:    e.CompletedAt,
		})
	}
	for _, e := range r.Errors {
		out.Errors = append(out.Errors, stageErrorJSON{Stage: string(e.Stage), Message: e.Message, OccurredAt: e.OccurredAt})
	}
	return out
}

type importResultJSON struct {
	VideoID         string `json:"videoId"`
	Platform        string `json:"platform"`
	Success         bool   `json:"success"`
	AlreadyImported bool   `json:"alreadyImported"`
	ContentID       string `json:"contentId,omitempty"`
	Error           string `json:"error,omitempty"`
}

type importSummaryJSON struct {
	Total           int `json:"total"`
	Successful      int `json:"successful"`
	AlreadyImported int `json:"alreadyImported"`
	Failed          int `json:"failed"`
}

type importResponse struct {
	Results []importResultJSON `json:"results"`
	Summary importSummaryJSON  `json:"summary"`
}

func toImportResponse(res *bridge.ImportResult) importResponse {
	out := importResponse{
		Results: make([]importResultJSON, 0, len(res.Results)),
		Summary: importSummaryJSON(res.Summary),
	}
	for _, r := range res.Results {
		out.Results = append(out.Results, importResultJSON(r))
	}
	return out
}

type browseItemJSON struct {
	ID              string     `json:"id"`
	Caption         string     `json:"caption"`
	MediaURL        string     `json:"mediaUrl,omitempty"`
	ThumbnailURL    string     `json:"thumbnailUrl,omitempty"`
	Permalink       string     `json:"permalink,omitempty"`
	DurationSeconds float64    `json:"durationSeconds,omitempty"`
	PostedAt        *time.Time `json:"postedAt,omitempty"`
	IsImported      bool       `json:"isImported"`
	ContentID       string     `json:"contentId,omitempty"`
}

type browseResponse struct {
	Videos     []browseItemJSON `json:"videos"`
	NextCursor string           `json:"nextCursor,omitempty"`
	HasMore    bool             `json:"hasMore"`
}

func toBrowseResponse(p *bridge.BrowsePage) browseResponse {
	out := browseResponse{NextCursor: p.NextCursor, HasMore: p.HasMore, Videos: make([]browseItemJSON, 0, len(p.Items))}
	for _, it := range p.Items {
		out.Videos = append(out.Videos, browseItemJSON{
			ID:              it.Video.ExternalID,
			Caption:         it.Video.Caption,
			MediaURL:        it.Video.MediaURL,
			ThumbnailURL:    it.Video.ThumbnailURL,
			Permalink:       it.Video.Permalink,
			DurationSeconds: it.Video.DurationSeconds,
			PostedAt:        it.Video.PostedAt,
			IsImported:      it.IsImported,
			ContentID:       it.ContentID,
		})
	}
	return out
}

type syncAckJSON struct {
	Accepted  bool   `json:"accepted"`
	ContentID string `json:"contentId"`
	Status    string `json:"status"`
	Ack       string `json:"ack"`
}

type bulkItemJSON struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type completionJSON struct {
	ContentID      string    `json:"contentId"`
	Title          string    `json:"title"`
	Destination    string    `json:"destination"`
	DestinationID  string    `json:"destinationId"`
	DestinationURL string    `json:"destinationUrl,omitempty"`
	CompletedAt    time.Time `json:"completedAt"`
}

type syncStatusJSON struct {
	QueuedCount       int              `json:"queuedCount"`
	ProcessingCount   int              `json:"processingCount"`
	CompletedCount    int              `json:"completedCount"`
	FailedCount       int              `json:"failedCount"`
	Pending           int              `json:"pending"`
	RecentCompletions []completionJSON `json:"recentCompletions"`
}

func toSyncStatusJSON(r *bridge.SyncStatusReport) syncStatusJSON {
	out := syncStatusJSON{
		QueuedCount:       r.QueuedCount,
		ProcessingCount:   r.ProcessingCount,
		CompletedCount:    r.CompletedCount,
		FailedCount:       r.FailedCount,
		Pending:           r.Pending,
		RecentCompletions: make([]completionJSON, 0, len(r.RecentCompletions)),
	}
	for _, c := range r.RecentCompletions {
		out.RecentCompletions = append(out.RecentCompletions, completionJSON{
			ContentID:      c.RecordID,
			Title:          c.Title,
			Destination:    c.Destination,
			DestinationID:  c.DestinationID,
			DestinationURL: c.DestinationURL,
			CompletedAt:    c.CompletedAt,
		})
	}
	return out
}

type overviewJSON struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"byStatus"`
	ByPlatform map[string]int `json:"byPlatform"`
}

func toOverviewJSON(o *bridge.Overview) overviewJSON {
	out := overviewJSON{Total: o.Total, ByStatus: make(map[string]int, len(o.ByStatus)), ByPlatform: o.ByPlatform}
	for s, n := range o.ByStatus {
		out.ByStatus[string(s)] = n
	}
	if out.ByPlatform == nil {
		out.ByPlatform = map[string]int{}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
