// Package handle defines locally materialized image data that can be used as
// a display source without re-fetching.
package handle

import (
	"sync"

	"github.com/google/uuid"
)

// Handle is an opaque reference to fetched bytes. Release frees the underlying
// data; a handle must not be used after it has been released.
type Handle interface {
	// URL is the local display source, e.g. "blob:6f1c...".
	URL() string
	// Size is the number of bytes held.
	Size() int64
	Release()
	Released() bool
}

// Blob is an in-memory Handle.
type Blob struct {
	mu          sync.RWMutex
	id          string
	contentType string
	data        []byte
	released    bool
}

// NewBlob copies data into a new Blob.
func NewBlob(data []byte, contentType string) *Blob {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Blob{id: uuid.NewString(), contentType: contentType, data: buf}
}

func (b *Blob) URL() string { return "blob:" + b.id }

func (b *Blob) ContentType() string { return b.contentType }

func (b *Blob) Size() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return int64(len(b.data))
}

// Bytes returns the held data, or nil once released. Callers must not modify it.
func (b *Blob) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.data
}

// Release drops the data. Repeated calls are no-ops.
func (b *Blob) Release() {
	b.mu.Lock()
	b.data = nil
	b.released = true
	b.mu.Unlock()
}

func (b *Blob) Released() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.released
}
