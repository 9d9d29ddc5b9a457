package bridge

import (
	"context"
	"io"
)

// StagingArea holds downloaded media on local disk while a worker owns the record.
type StagingArea interface {
	// Store streams r into a new file for recordID, computing its SHA-256.
	// The returned MediaFile has LocalPath, Checksum and FileSize set.
	Store(recordID string, r io.Reader) (*MediaFile, error)

	// Verify reports whether m.LocalPath still exists with m.Checksum.
	Verify(m MediaFile) bool

	// Remove deletes a staged file. Missing files are not an error.
	Remove(path string) error

	// Size returns the total bytes currently staged.
	Size() (int64, error)

	// Prune deletes every staged file, partial downloads included, whose
	// record id keep rejects. It returns the number of files removed.
	Prune(keep func(recordID string) bool) (int, error)
}

// MediaInfo is what the processing stage learns about a staged file.
type MediaInfo struct {
	MIMEType  string
	Extension string
}

// Processor inspects (and may normalize) a staged file before upload.
type Processor interface {
	Process(ctx context.Context, path string) (*MediaInfo, error)
}
