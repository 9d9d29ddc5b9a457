package destination

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"creator-bridge/internal/bridge"
	"creator-bridge/internal/metrics"
)

const (
	DefaultJWPlayerURL = "https://api.jwplayer.com"

	jwDashboardURL = "https://dashboard.jwplayer.com/p/media/"
	maxErrorBody   = 4 << 10
)

// JWPlayer uploads media through the JW Player Management API (v2).
//
// Every media object is tagged with the record id as its external_id, so a
// retried upload finds what an earlier attempt created: a media that is
// processing or ready is returned as-is, one that never received its bytes
// is deleted and created again.
type JWPlayer struct {
	name    string
	siteID  string
	secret  string
	baseURL string
	http    *http.Client
}

func NewJWPlayer(name, siteID, secret, baseURL string, httpClient *http.Client) *JWPlayer {
	if baseURL == "" {
		baseURL = DefaultJWPlayerURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &JWPlayer{
		name:    name,
		siteID:  siteID,
		secret:  secret,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func (j *JWPlayer) Name() string { return j.name }

type jwMetadata struct {
	Title        string            `json:"title"`
	Description  string            `json:"description,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	CustomParams map[string]string `json:"custom_params,omitempty"`
	ExternalID   string            `json:"external_id,omitempty"`
}

type jwMedia struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	UploadLink string     `json:"upload_link"`
	Metadata   jwMetadata `json:"metadata"`
}

type jwMediaList struct {
	Media []jwMedia `json:"media"`
	Total int       `json:"total"`
}

type jwCreateRequest struct {
	Upload struct {
		Method   string `json:"method"`
		MimeType string `json:"mime_type"`
	} `json:"upload"`
	Metadata jwMetadata `json:"metadata"`
}

func (j *JWPlayer) Upload(ctx context.Context, localPath string, meta bridge.UploadMetadata) (*bridge.UploadResult, error) {
	existing, err := j.findByExternalID(ctx, meta.RecordID)
	if err != nil {
		return nil, uploadError(j.name, fmt.Errorf("looking up earlier upload: %w", err))
	}
	if existing != nil {
		switch existing.Status {
		case "processing", "ready", "updating":
			return j.result(existing.ID), nil
		default:
			if err := j.deleteMedia(ctx, existing.ID); err != nil {
				return nil, uploadError(j.name, fmt.Errorf("removing incomplete media %s: %w", existing.ID, err))
			}
		}
	}

	created, err := j.createMedia(ctx, meta)
	if err != nil {
		return nil, uploadError(j.name, fmt.Errorf("creating media: %w", err))
	}
	if err := j.sendFile(ctx, created.UploadLink, localPath, contentType(meta.Format)); err != nil {
		return nil, uploadError(j.name, fmt.Errorf("uploading file for media %s: %w", created.ID, err))
	}
	return j.result(created.ID), nil
}

func (j *JWPlayer) result(mediaID string) *bridge.UploadResult {
	return &bridge.UploadResult{ExternalID: mediaID, ExternalURL: jwDashboardURL + mediaID}
}

func (j *JWPlayer) findByExternalID(ctx context.Context, recordID string) (*jwMedia, error) {
	q := url.Values{}
	q.Set("q", "external_id:"+recordID)
	q.Set("page_length", "1")

	var list jwMediaList
	if err := j.call(ctx, http.MethodGet, j.mediaPath("")+"?"+q.Encode(), nil, &list); err != nil {
		return nil, err
	}
	for _, m := range list.Media {
		if m.Metadata.ExternalID == recordID {
			return &m, nil
		}
	}
	return nil, nil
}

func (j *JWPlayer) createMedia(ctx context.Context, meta bridge.UploadMetadata) (*jwMedia, error) {
	var req jwCreateRequest
	req.Upload.Method = "direct"
	req.Upload.MimeType = contentType(meta.Format)
	req.Metadata = jwMetadata{
		Title:        meta.Title,
		Description:  meta.Description,
		Tags:         meta.Tags,
		CustomParams: meta.CustomParams,
		ExternalID:   meta.RecordID,
	}

	var created jwMedia
	if err := j.call(ctx, http.MethodPost, j.mediaPath(""), req, &created); err != nil {
		return nil, err
	}
	if created.ID == "" || created.UploadLink == "" {
		return nil, bridge.Permanent(fmt.Errorf("jwplayer returned no media id or upload link"))
	}
	return &created, nil
}

func (j *JWPlayer) deleteMedia(ctx context.Context, mediaID string) error {
	err := j.call(ctx, http.MethodDelete, j.mediaPath(mediaID), nil, nil)
	if bridge.IsNotFound(err) {
		return nil
	}
	return err
}

// sendFile PUTs the staged file to the pre-signed upload link.
func (j *JWPlayer) sendFile(ctx context.Context, link, localPath, mimeType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return bridge.Permanent(fmt.Errorf("opening staged file: %w", err))
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat staged file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, link, f)
	if err != nil {
		return bridge.Permanent(fmt.Errorf("invalid upload link: %w", err))
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", mimeType)

	resp, err := j.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()
	metrics.UpstreamRequests.WithLabelValues("jwplayer-upload", strconv.Itoa(resp.StatusCode)).Inc()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return bridge.ClassifyHTTPStatus("jwplayer upload", resp.StatusCode, strings.TrimSpace(string(body)), retryAfter(resp.Header))
	}
	return nil
}

func (j *JWPlayer) mediaPath(mediaID string) string {
	p := "/v2/sites/" + url.PathEscape(j.siteID) + "/media/"
	if mediaID != "" {
		p += url.PathEscape(mediaID) + "/"
	}
	return p
}

// call sends an authenticated JSON request. out may be nil.
func (j *JWPlayer) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return bridge.Permanent(fmt.Errorf("encoding request: %w", err))
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, j.baseURL+path, body)
	if err != nil {
		return bridge.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+j.secret)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := j.http.Do(req)
	if err != nil {
		return fmt.Errorf("jwplayer request failed: %w", err)
	}
	defer resp.Body.Close()
	metrics.UpstreamRequests.WithLabelValues("jwplayer", strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return bridge.ClassifyHTTPStatus("jwplayer", resp.StatusCode, jwErrorMessage(raw), retryAfter(resp.Header))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding jwplayer response: %w", err)
	}
	return nil
}

// jwErrorMessage flattens the API's {"errors": [...]} envelope.
func jwErrorMessage(raw []byte) string {
	var env struct {
		Errors []struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Errors) == 0 {
		return strings.TrimSpace(string(raw))
	}
	msgs := make([]string, 0, len(env.Errors))
	for _, e := range env.Errors {
		msgs = append(msgs, e.Code+": "+e.Description)
	}
	return strings.Join(msgs, "; ")
}

func retryAfter(h http.Header) time.Duration {
	if secs, err := strconv.Atoi(h.Get("Retry-After")); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
