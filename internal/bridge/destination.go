package bridge

import (
	"context"
	"fmt"
	"slices"
)

// UploadMetadata is what a destination receives alongside the media file.
type UploadMetadata struct {
	RecordID     string
	Title        string
	Description  string
	Tags         []string
	ThumbnailURL string
	Checksum     string
	Format       string
	CustomParams map[string]string
}

// UploadResult is the durable reference a destination returns.
type UploadResult struct {
	ExternalID  string
	ExternalURL string
}

// DestinationAdapter delivers a local media file to a CMS.
//
// Upload must be safe to call again for the same RecordID after a failure:
// adapters detect an earlier delivery and return it instead of creating a
// second remote asset. Failures are reported as *UploadError.
type DestinationAdapter interface {
	Name() string
	Upload(ctx context.Context, localPath string, meta UploadMetadata) (*UploadResult, error)
}

// DestinationSet indexes destination adapters by name.
type DestinationSet struct {
	adapters map[string]DestinationAdapter
}

func NewDestinationSet(adapters ...DestinationAdapter) *DestinationSet {
	s := &DestinationSet{adapters: make(map[string]DestinationAdapter, len(adapters))}
	for _, a := range adapters {
		s.adapters[a.Name()] = a
	}
	return s
}

// Get returns the adapter registered under name.
func (s *DestinationSet) Get(name string) (DestinationAdapter, error) {
	a, ok := s.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDestination, name)
	}
	return a, nil
}

// Has reports whether name is configured.
func (s *DestinationSet) Has(name string) bool {
	_, ok := s.adapters[name]
	return ok
}

// Names returns the configured destination names, sorted.
func (s *DestinationSet) Names() []string {
	names := make([]string, 0, len(s.adapters))
	for n := range s.adapters {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
