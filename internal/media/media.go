// Package media implements the processing stage: it sniffs a staged file
// and rejects anything that is not a video.
package media

import (
	"context"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"creator-bridge/internal/bridge"
)

// Inspector implements bridge.Processor using content sniffing.
type Inspector struct {
	// Allowed restricts accepted MIME types. Empty accepts any video/* type.
	Allowed []string
}

var _ bridge.Processor = (*Inspector)(nil)

// NewInspector returns an Inspector that accepts the given video types.
func NewInspector(allowed ...string) *Inspector {
	return &Inspector{Allowed: allowed}
}

// Process detects the file's type from its leading bytes. Non-video content
// is a permanent failure.
func (i *Inspector) Process(ctx context.Context, path string) (*bridge.MediaInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detecting media type: %w", err)
	}

	video := videoType(mt)
	if video == nil {
		return nil, bridge.Permanent(fmt.Errorf("%w: detected %s", bridge.ErrInvalidMedia, mt.String()))
	}
	if len(i.Allowed) > 0 && !mimetype.EqualsAny(video.String(), i.Allowed...) {
		return nil, bridge.Permanent(fmt.Errorf("%w: %s is not an accepted format", bridge.ErrInvalidMedia, video.String()))
	}

	return &bridge.MediaInfo{
		MIMEType:  video.String(),
		Extension: strings.TrimPrefix(video.Extension(), "."),
	}, nil
}

// videoType returns mt or its nearest video/* ancestor.
func videoType(mt *mimetype.MIME) *mimetype.MIME {
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "video/") {
			return m
		}
	}
	return nil
}
