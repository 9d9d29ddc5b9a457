package destination

import (
	"context"
	"fmt"
	"os"
	"sync"

	"creator-bridge/internal/bridge"
)

// MemoryUpload is one delivery held by a MemoryDestination.
type MemoryUpload struct {
	Meta bridge.UploadMetadata
	Data []byte
}

// MemoryDestination keeps delivered files in memory, keyed by record id.
// It is useful for testing and dry runs. Safe for concurrent use.
type MemoryDestination struct {
	name    string
	mu      sync.RWMutex
	uploads map[string]*MemoryUpload
	calls   int
}

func NewMemoryDestination(name string) *MemoryDestination {
	return &MemoryDestination{name: name, uploads: make(map[string]*MemoryUpload)}
}

func (m *MemoryDestination) Name() string { return m.name }

// Upload reads the staged file. A record already delivered with the same checksum is returned unchanged.
func (m *MemoryDestination) Upload(ctx context.Context, localPath string, meta bridge.UploadMetadata) (*bridge.UploadResult, error) {
	m.mu.Lock()
	m.calls++
	existing, ok := m.uploads[meta.RecordID]
	m.mu.Unlock()
	if ok && existing.Meta.Checksum == meta.Checksum {
		return m.result(meta.RecordID), nil
	}

	if err := ctx.Err(); err != nil {
		return nil, uploadError(m.name, err)
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, uploadError(m.name, bridge.Permanent(fmt.Errorf("failed to read content: %w", err)))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads[meta.RecordID] = &MemoryUpload{Meta: meta, Data: data}
	return m.result(meta.RecordID), nil
}

func (m *MemoryDestination) result(recordID string) *bridge.UploadResult {
	return &bridge.UploadResult{ExternalID: recordID, ExternalURL: "memory://" + m.name + "/" + recordID}
}

// Get returns the delivery for recordID, or nil.
func (m *MemoryDestination) Get(recordID string) *MemoryUpload {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.uploads[recordID]
}

// Len returns the number of distinct records delivered.
func (m *MemoryDestination) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.uploads)
}

// Calls returns how many times Upload was invoked.
func (m *MemoryDestination) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}
