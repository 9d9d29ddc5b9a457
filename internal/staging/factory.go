package staging

import (
	"fmt"

	"creator-bridge/internal/config"
)

// DefaultMaxSize is the default largest accepted download (2 GiB).
const DefaultMaxSize int64 = 2 << 30

// NewAreaFromConfig creates a staging Area based on the config type.
func NewAreaFromConfig(cfg config.StagingConfig) (*Area, error) {
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	switch cfg.Type {
	case "temp":
		return NewTempArea(maxSize)
	case "filesystem":
		if cfg.StagingDir == "" {
			return nil, fmt.Errorf("filesystem staging area requires staging_dir to be set")
		}
		return NewArea(cfg.StagingDir, maxSize)
	default:
		return nil, fmt.Errorf("unknown staging area type: %s", cfg.Type)
	}
}
