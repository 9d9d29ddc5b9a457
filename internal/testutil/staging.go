package testutil

import (
	"testing"

	"creator-bridge/internal/staging"
)

// DefaultStagingMaxSize caps a single staged test file (10MB).
const DefaultStagingMaxSize = 10 * 1024 * 1024

// NewTestStagingArea creates a staging area in a per-test temp directory.
func NewTestStagingArea(t *testing.T) *staging.Area {
	t.Helper()
	area, err := staging.NewArea(t.TempDir(), DefaultStagingMaxSize)
	if err != nil {
		t.Fatalf("failed to create staging area: %v", err)
	}
	return area
}
