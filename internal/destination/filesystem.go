package destination

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"creator-bridge/internal/bridge"
)

// FileSystemDestination delivers records into a directory tree:
//
//	<root>/
//	  <record id>/
//	    video.<ext>     (the media file)
//	    metadata.json   (title, description, tags, checksum, custom params)
type FileSystemDestination struct {
	name string
	root string
}

// fsManifest is the metadata.json written beside each delivered video.
type fsManifest struct {
	RecordID     string            `json:"record_id"`
	Title        string            `json:"title"`
	Description  string            `json:"description,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	ThumbnailURL string            `json:"thumbnail_url,omitempty"`
	Checksum     string            `json:"checksum"`
	Size         int64             `json:"size"`
	File         string            `json:"file"`
	CustomParams map[string]string `json:"custom_params,omitempty"`
	DeliveredAt  time.Time         `json:"delivered_at"`
}

// NewFileSystemDestination creates a destination rooted at the given path.
func NewFileSystemDestination(name, root string) (*FileSystemDestination, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create destination root: %w", err)
	}
	return &FileSystemDestination{name: name, root: root}, nil
}

func (d *FileSystemDestination) Name() string { return d.name }

// Upload copies the staged file into place. Delivering the same checksum twice is a no-op.
func (d *FileSystemDestination) Upload(ctx context.Context, localPath string, meta bridge.UploadMetadata) (*bridge.UploadResult, error) {
	if meta.RecordID == "" || filepath.Base(meta.RecordID) != meta.RecordID {
		return nil, uploadError(d.name, bridge.Permanent(fmt.Errorf("invalid record id %q", meta.RecordID)))
	}
	dir := filepath.Join(d.root, meta.RecordID)
	videoName := "video" + extension(meta.Format)
	videoPath := filepath.Join(dir, videoName)
	manifestPath := filepath.Join(dir, "metadata.json")

	if m, err := readManifest(manifestPath); err == nil && m.Checksum == meta.Checksum && m.File == videoName {
		if _, err := os.Stat(videoPath); err == nil {
			return d.result(meta.RecordID, videoPath), nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, uploadError(d.name, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, uploadError(d.name, fmt.Errorf("failed to create record directory: %w", err))
	}

	src, err := os.Open(localPath)
	if err != nil {
		return nil, uploadError(d.name, bridge.Permanent(fmt.Errorf("opening staged file: %w", err)))
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return nil, uploadError(d.name, fmt.Errorf("stat staged file: %w", err))
	}

	if err := writeFile(videoPath, src, info.Size()); err != nil {
		return nil, uploadError(d.name, err)
	}

	manifest, err := json.MarshalIndent(fsManifest{
		RecordID:     meta.RecordID,
		Title:        meta.Title,
		Description:  meta.Description,
		Tags:         meta.Tags,
		ThumbnailURL: meta.ThumbnailURL,
		Checksum:     meta.Checksum,
		Size:         info.Size(),
		File:         videoName,
		CustomParams: meta.CustomParams,
		DeliveredAt:  time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return nil, uploadError(d.name, bridge.Permanent(fmt.Errorf("encoding metadata: %w", err)))
	}
	if err := writeFile(manifestPath, bytes.NewReader(manifest), int64(len(manifest))); err != nil {
		return nil, uploadError(d.name, err)
	}

	return d.result(meta.RecordID, videoPath), nil
}

func (d *FileSystemDestination) result(recordID, videoPath string) *bridge.UploadResult {
	abs, err := filepath.Abs(videoPath)
	if err != nil {
		abs = videoPath
	}
	return &bridge.UploadResult{ExternalID: recordID, ExternalURL: "file://" + abs}
}

func readManifest(path string) (*fsManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m fsManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// Create temp file in the same directory to ensure atomic rename works
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}
