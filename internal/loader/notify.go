package loader

import (
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
)

type change struct {
	imageID string
	state   State
}

// notifier fans state changes out to per-image listener sets. Changes are
// queued while the loader lock is held and delivered afterwards, in order, by
// whichever goroutine drains first; a listener that re-enters the Loader only
// appends to the queue.
type notifier struct {
	mu       sync.Mutex
	nextID   uint64
	subs     map[string]map[uint64]Listener
	queue    []change
	draining bool
	log      *zerolog.Logger
}

func newNotifier(log *zerolog.Logger) *notifier {
	return &notifier{subs: make(map[string]map[uint64]Listener), log: log}
}

func (n *notifier) add(imageID string, fn Listener) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	id := n.nextID
	set := n.subs[imageID]
	if set == nil {
		set = make(map[uint64]Listener)
		n.subs[imageID] = set
	}
	set[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if set := n.subs[imageID]; set != nil {
			delete(set, id)
			if len(set) == 0 {
				delete(n.subs, imageID)
			}
		}
	}
}

func (n *notifier) removeAll(imageID string) {
	n.mu.Lock()
	delete(n.subs, imageID)
	n.mu.Unlock()
}

func (n *notifier) reset() {
	n.mu.Lock()
	n.subs = make(map[string]map[uint64]Listener)
	n.queue = nil
	n.mu.Unlock()
}

func (n *notifier) enqueue(imageID string, state State) {
	n.mu.Lock()
	n.queue = append(n.queue, change{imageID: imageID, state: state})
	n.mu.Unlock()
}

// drain delivers queued changes. It must be called without the loader lock.
func (n *notifier) drain() {
	n.mu.Lock()
	if n.draining {
		n.mu.Unlock()
		return
	}
	n.draining = true
	for len(n.queue) > 0 {
		c := n.queue[0]
		n.queue = n.queue[1:]
		fns := make([]Listener, 0, len(n.subs[c.imageID]))
		for _, fn := range n.subs[c.imageID] {
			fns = append(fns, fn)
		}
		n.mu.Unlock()
		for _, fn := range fns {
			n.call(fn, c)
		}
		n.mu.Lock()
	}
	n.draining = false
	n.mu.Unlock()
}

func (n *notifier) call(fn Listener, c change) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error().Str("image_id", c.imageID).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("change listener panicked")
		}
	}()
	fn(c.imageID, c.state)
}
