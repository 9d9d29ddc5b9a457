package testutil

import (
	"context"
	"os"
	"sync"

	"creator-bridge/internal/bridge"
)

// Delivery is one successful FakeDestination upload.
type Delivery struct {
	Meta bridge.UploadMetadata
	Data []byte
}

// FakeDestination records uploads and can be scripted to fail.
// Safe for concurrent use.
type FakeDestination struct {
	name string

	mu         sync.Mutex
	deliveries map[string]Delivery
	calls      map[string]int
	failures   map[string][]error
	failAll    error
	onUpload   func(meta bridge.UploadMetadata)
}

func NewFakeDestination(name string) *FakeDestination {
	return &FakeDestination{
		name:       name,
		deliveries: make(map[string]Delivery),
		calls:      make(map[string]int),
		failures:   make(map[string][]error),
	}
}

func (d *FakeDestination) Name() string { return d.name }

// FailNext queues errors returned for recordID before uploads succeed.
func (d *FakeDestination) FailNext(recordID string, errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[recordID] = append(d.failures[recordID], errs...)
}

// FailAlways makes every upload return err. Nil restores normal behavior.
func (d *FakeDestination) FailAlways(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAll = err
}

// OnUpload registers a hook called at the start of every upload.
func (d *FakeDestination) OnUpload(fn func(meta bridge.UploadMetadata)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onUpload = fn
}

func (d *FakeDestination) Upload(ctx context.Context, localPath string, meta bridge.UploadMetadata) (*bridge.UploadResult, error) {
	d.mu.Lock()
	d.calls[meta.RecordID]++
	hook := d.onUpload
	var err error
	if d.failAll != nil {
		err = d.failAll
	} else if fs := d.failures[meta.RecordID]; len(fs) > 0 {
		err = fs[0]
		d.failures[meta.RecordID] = fs[1:]
	}
	d.mu.Unlock()

	if hook != nil {
		hook(meta)
	}
	if err != nil {
		return nil, err
	}

	data, rerr := os.ReadFile(localPath)
	if rerr != nil {
		return nil, &bridge.UploadError{Destination: d.name, Err: rerr}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.deliveries[meta.RecordID] = Delivery{Meta: meta, Data: data}
	return &bridge.UploadResult{
		ExternalID:  d.name + "-" + meta.RecordID,
		ExternalURL: "https://cms.example.com/" + d.name + "/" + meta.RecordID,
	}, nil
}

// Calls returns how many uploads were attempted for recordID.
func (d *FakeDestination) Calls(recordID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[recordID]
}

// Delivered returns the successful upload for recordID.
func (d *FakeDestination) Delivered(recordID string) (Delivery, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	del, ok := d.deliveries[recordID]
	return del, ok
}

// Count returns the number of records delivered.
func (d *FakeDestination) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.deliveries)
}

// RetryableError is an upload failure the engine should retry.
func RetryableError(dest string) error {
	return &bridge.UploadError{Destination: dest, Retryable: true, Err: &bridge.HTTPStatusError{Service: dest, Code: 503}}
}

// PermanentError is an upload failure the engine must not retry.
func PermanentError(dest string) error {
	return &bridge.UploadError{Destination: dest, Retryable: false, Err: &bridge.HTTPStatusError{Service: dest, Code: 400, Body: "rejected"}}
}
