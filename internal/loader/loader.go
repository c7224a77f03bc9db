package loader

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"imgload/internal/clock"
	"imgload/internal/handle"
)

// Loader is the progressive loading service. Construct it with New and
// release it with Close; it is safe for concurrent use.
type Loader struct {
	mu     sync.Mutex
	cfg    Config
	clk    clock.Clock
	log    *zerolog.Logger
	pub    EventPublisher
	met    *metrics
	notify *notifier

	tasks    map[string]*task
	enterSeq uint64
	cache    *binaryCache
	inflight inflightRegistry
	// active counts outstanding high-resolution fetches (the concurrency cap).
	active int
	queue  []*task
	memory int64
	sel    sourceSelector

	baseCtx context.Context
	cancel  context.CancelFunc
	closed  bool
}

// New constructs a Loader from cfg, applying defaults to unset fields.
func New(cfg Config) (*Loader, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	l := &Loader{
		cfg:      cfg,
		clk:      cfg.Clock,
		log:      cfg.Logger,
		pub:      cfg.Publisher,
		met:      newMetrics(),
		tasks:    make(map[string]*task),
		inflight: make(inflightRegistry),
		sel:      newSourceSelector(cfg.ThumbnailThreshold, cfg.InitialScale),
	}
	l.notify = newNotifier(cfg.Logger)
	l.cache, err = newBinaryCache(cfg.MaxCacheSize, cfg.Eviction, l.onEvictLocked)
	if err != nil {
		return nil, err
	}
	l.baseCtx, l.cancel = context.WithCancel(context.Background())
	return l, nil
}

// Close stops all timers, cancels outstanding fetches, releases every cached
// handle and drops all listeners. Further mutating calls return ErrClosed.
func (l *Loader) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.cancel()
	l.resetLocked()
	l.mu.Unlock()
	l.notify.reset()
	return nil
}

// RegisterMetrics registers the loader's Prometheus collectors with reg.
func (l *Loader) RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range l.met.collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// GetState returns the state of imageID, or StatePlaceholder if unknown.
func (l *Loader) GetState(imageID string) State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t := l.tasks[imageID]; t != nil {
		return t.state
	}
	return StatePlaceholder
}

// GetHandle returns the cached handle for url. The handle stays valid only
// while its cache entry exists.
func (l *Loader) GetHandle(url string) (handle.Handle, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cache.get(url)
}

// AddChangeListener subscribes fn to state changes of imageID. The returned
// func removes only this subscription.
func (l *Loader) AddChangeListener(imageID string, fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	return l.notify.add(imageID, fn)
}

// RemoveChangeListener drops every subscription for imageID.
func (l *Loader) RemoveChangeListener(imageID string) {
	l.notify.removeAll(imageID)
}

// Clear resets the loader: all tasks, pending work and cached handles are
// dropped. Listeners are kept. Fetches already outstanding complete into the
// empty cache.
func (l *Loader) Clear() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.resetLocked()
	l.pub.Publish(Event{Name: EventClear, Fields: map[string]any{}})
	l.log.Info().Msg("loader cleared")
	l.mu.Unlock()
}

func (l *Loader) resetLocked() {
	for _, t := range l.tasks {
		l.stopTimerLocked(t)
		t.queued = false
	}
	l.tasks = make(map[string]*task)
	l.queue = nil
	l.sel.stop()
	l.cache.clear()
	l.memory = 0
	l.met.queued.Set(0)
	l.met.cacheEntries.Set(0)
	l.met.memoryEstimate.Set(0)
}

// unlock releases l.mu and then delivers queued change notifications.
func (l *Loader) unlock() {
	l.mu.Unlock()
	l.notify.drain()
}

// setStateLocked transitions t and queues a notification.
func (l *Loader) setStateLocked(t *task, s State) {
	if t.state == s {
		return
	}
	t.state = s
	l.notify.enqueue(t.id, s)
}

func (l *Loader) onEvictLocked(url string) {
	l.met.evictionsTotal.Inc()
	l.pub.Publish(Event{Name: EventEvict, Fields: map[string]any{"url": url}})
	l.log.Debug().Str("url", url).Msg("cache eviction")
}
