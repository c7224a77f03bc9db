package loader

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"imgload/internal/clock"
	"imgload/internal/handle"
)

type fetchOutcome struct{ err error }

type fetchCall struct {
	url  string
	done chan fetchOutcome
}

// fakeFetcher either resolves immediately (auto) or parks each call until the
// test resolves it. It records per-URL and total concurrency high-water marks.
type fakeFetcher struct {
	mu       sync.Mutex
	auto     bool
	fail     map[string]error
	pending  []*fetchCall
	calls    map[string]int
	out      map[string]int
	maxOut   map[string]int
	total    int
	maxTotal int
}

func newFakeFetcher(auto bool) *fakeFetcher {
	return &fakeFetcher{
		auto:   auto,
		fail:   make(map[string]error),
		calls:  make(map[string]int),
		out:    make(map[string]int),
		maxOut: make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (handle.Handle, error) {
	f.mu.Lock()
	f.calls[url]++
	f.out[url]++
	if f.out[url] > f.maxOut[url] {
		f.maxOut[url] = f.out[url]
	}
	f.total++
	if f.total > f.maxTotal {
		f.maxTotal = f.total
	}
	var o fetchOutcome
	if f.auto {
		o.err = f.fail[url]
		f.mu.Unlock()
	} else {
		c := &fetchCall{url: url, done: make(chan fetchOutcome, 1)}
		f.pending = append(f.pending, c)
		f.mu.Unlock()
		select {
		case o = <-c.done:
		case <-ctx.Done():
			o.err = ctx.Err()
			f.drop(c)
		}
	}
	f.mu.Lock()
	f.out[url]--
	f.total--
	f.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	return handle.NewBlob([]byte(url), "image/png"), nil
}

func (f *fakeFetcher) drop(c *fetchCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.pending {
		if p == c {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			return
		}
	}
}

func (f *fakeFetcher) setFail(url string, err error) {
	f.mu.Lock()
	f.fail[url] = err
	f.mu.Unlock()
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeFetcher) pendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *fakeFetcher) pendingURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.pending))
	for _, p := range f.pending {
		out = append(out, p.url)
	}
	return out
}

// resolve completes the oldest parked call for url, waiting for it to arrive.
func (f *fakeFetcher) resolve(t *testing.T, url string, err error) {
	t.Helper()
	var c *fetchCall
	waitFor(t, "pending fetch for "+url, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, p := range f.pending {
			if p.url == url {
				c = p
				f.pending = append(f.pending[:i], f.pending[i+1:]...)
				return true
			}
		}
		return false
	})
	c.done <- fetchOutcome{err: err}
}

// countingHandle counts Release calls.
type countingHandle struct {
	name     string
	releases atomic.Int32
}

func (h *countingHandle) URL() string    { return "blob:" + h.name }
func (h *countingHandle) Size() int64    { return int64(len(h.name)) }
func (h *countingHandle) Release()       { h.releases.Add(1) }
func (h *countingHandle) Released() bool { return h.releases.Load() > 0 }

func newTestLoader(t *testing.T, f Fetcher, mutate func(*Config)) (*Loader, *clock.Fake, *MemoryPublisher) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	pub := NewMemoryPublisher()
	cfg := Config{Fetcher: f, Clock: clk, Publisher: pub}
	if mutate != nil {
		mutate(&cfg)
	}
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l, clk, pub
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitState(t *testing.T, l *Loader, id string, want State) {
	t.Helper()
	waitFor(t, id+" to reach "+string(want), func() bool { return l.GetState(id) == want })
}

func countState(l *Loader, s State) int {
	return l.Status().States[string(s)]
}

func register(t *testing.T, l *Loader, img Image) {
	t.Helper()
	if err := l.Register(context.Background(), img); err != nil {
		t.Fatalf("Register(%s): %v", img.ID, err)
	}
}

// recorder collects listener notifications.
type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) listen(_ string, s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}
