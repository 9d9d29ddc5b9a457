// Package destination implements the upload targets a record can be synced to.
package destination

import (
	"errors"
	"mime"
	"strings"

	"creator-bridge/internal/bridge"
)

// uploadError wraps err as a *bridge.UploadError, keeping the retry
// classification of the underlying failure.
func uploadError(dest string, err error) error {
	if err == nil {
		return nil
	}
	var ue *bridge.UploadError
	if errors.As(err, &ue) {
		return err
	}
	return &bridge.UploadError{Destination: dest, Retryable: bridge.IsRetryable(err), Err: err}
}

// contentType guesses the MIME type for a container format such as "mp4".
func contentType(format string) string {
	if format == "" {
		return "video/mp4"
	}
	if t := mime.TypeByExtension("." + strings.TrimPrefix(format, ".")); t != "" {
		return t
	}
	return "application/octet-stream"
}

// extension returns ".mp4" style suffixes, or "" when the format is unknown.
func extension(format string) string {
	format = strings.TrimPrefix(format, ".")
	if format == "" {
		return ""
	}
	return "." + format
}
