package loader

import "sync"

// Event represents a loader lifecycle event.
// Minimal and stable: name + image ID and optional fields via key/values.
type Event struct {
	Name    string
	ImageID string
	Fields  map[string]any
}

// Event names published by the loader.
const (
	EventFetchStart     = "fetch_start"
	EventFetchDone      = "fetch_done"
	EventFetchFailed    = "fetch_failed"
	EventThumbnailDone  = "thumbnail_done"
	EventThumbnailError = "thumbnail_failed"
	EventCacheHit       = "cache_hit"
	EventDuplicateWait  = "duplicate_wait"
	EventQueued         = "queued"
	EventMemoryDeferred = "memory_deferred"
	EventEvict          = "evict"
	EventDowngrade      = "downgrade"
	EventScaleCommit    = "scale_commit"
	EventCancel         = "cancel"
	EventClear          = "clear"
)

// EventPublisher receives events from the loader. Publish is called with the
// loader lock held: implementations must be non-blocking, must not panic and
// must not call back into the Loader.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// MemoryPublisher stores events in-memory for tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Count returns how many events named name were published.
func (p *MemoryPublisher) Count(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Name == name {
			n++
		}
	}
	return n
}
