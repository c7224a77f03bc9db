package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"imgload/internal/handle"
)

const (
	kindOriginal  = "original"
	kindThumbnail = "thumbnail"
)

var errNilHandle = errors.New("fetcher returned no handle")

// scheduleStartLocked arms the start delay for t unless work for it is
// already pending or running.
func (l *Loader) scheduleStartLocked(t *task, d time.Duration) {
	if t.timer != nil || t.queued || t.busy() {
		return
	}
	l.armTimerLocked(t, d)
}

func (l *Loader) armTimerLocked(t *task, d time.Duration) {
	l.stopTimerLocked(t)
	gen := t.timerGen
	t.timer = l.clk.AfterFunc(d, func() { l.onTimer(t, gen) })
}

func (l *Loader) stopTimerLocked(t *task) {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	// Invalidate a callback that already fired but has not taken the lock.
	t.timerGen++
}

// onTimer runs when a start delay or duplicate-URL recheck elapses. The task
// may have been cancelled or left the viewport in the meantime.
func (l *Loader) onTimer(t *task, gen uint64) {
	l.mu.Lock()
	defer l.unlock()
	if l.closed || l.tasks[t.id] != t || t.timerGen != gen {
		return
	}
	t.timer = nil
	l.tryDispatchLocked(t)
}

// tryDispatchLocked starts the high-resolution fetch for t if every gate
// passes: eligibility, cache, duplicate URL, concurrency cap, memory budget.
func (l *Loader) tryDispatchLocked(t *task) {
	if !t.eligible() {
		return
	}
	if h, ok := l.cache.get(t.primaryURL); ok {
		l.pub.Publish(Event{Name: EventCacheHit, ImageID: t.id, Fields: map[string]any{"url": t.primaryURL}})
		l.markLoadedLocked(t, h)
		return
	}
	if l.inflight.has(t.primaryURL) {
		// Another task is fetching the same bytes; recheck the cache shortly.
		l.pub.Publish(Event{Name: EventDuplicateWait, ImageID: t.id, Fields: map[string]any{"url": t.primaryURL}})
		l.armTimerLocked(t, l.cfg.DedupPollInterval)
		return
	}
	if l.active >= l.cfg.MaxConcurrent {
		l.enqueueLocked(t)
		return
	}
	if l.memory >= l.cfg.MemoryThresholdBytes {
		l.releaseUnusedLocked()
		if l.memory >= l.cfg.MemoryThresholdBytes {
			l.pub.Publish(Event{Name: EventMemoryDeferred, ImageID: t.id, Fields: map[string]any{"estimate": l.memory}})
			l.log.Debug().Str("image_id", t.id).Int64("estimate", l.memory).Msg("fetch deferred by memory threshold")
			l.armTimerLocked(t, l.cfg.StartDelay)
			return
		}
	}
	l.dispatchLocked(t)
}

func (l *Loader) dispatchLocked(t *task) {
	url := t.primaryURL
	l.inflight.add(url)
	l.active++
	l.met.inflight.Set(float64(l.active))
	t.loadStartedAt = l.clk.Now()
	l.setStateLocked(t, StateLoading)
	l.pub.Publish(Event{Name: EventFetchStart, ImageID: t.id, Fields: map[string]any{"url": url, "priority": t.priority.String()}})
	l.log.Debug().Str("image_id", t.id).Str("url", url).Msg("fetch start")

	ctx, cancel := l.fetchContext()
	go func() {
		defer cancel()
		start := time.Now()
		h, err := l.safeFetch(ctx, url)
		l.met.fetchDuration.WithLabelValues(kindOriginal).Observe(time.Since(start).Seconds())
		l.completeFetch(t, url, h, err)
	}()
}

func (l *Loader) fetchContext() (context.Context, context.CancelFunc) {
	if l.cfg.FetchTimeout > 0 {
		return context.WithTimeout(l.baseCtx, l.cfg.FetchTimeout)
	}
	return context.WithCancel(l.baseCtx)
}

func (l *Loader) safeFetch(ctx context.Context, url string) (h handle.Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			h, err = nil, fmt.Errorf("fetch %s panicked: %v", url, r)
		}
	}()
	h, err = l.cfg.Fetcher.Fetch(ctx, url)
	if err == nil && h == nil {
		err = errNilHandle
	}
	return h, err
}

// completeFetch always releases the concurrency slot and the in-flight mark,
// even if the task is gone; it only mutates t if t is still registered.
func (l *Loader) completeFetch(t *task, url string, h handle.Handle, err error) {
	l.mu.Lock()
	defer l.unlock()
	l.active--
	l.met.inflight.Set(float64(l.active))
	l.inflight.remove(url)
	if l.closed {
		if h != nil {
			h.Release()
		}
		return
	}
	current := l.tasks[t.id] == t && t.state == StateLoading && t.primaryURL == url
	if err != nil {
		if h != nil {
			h.Release()
		}
		l.met.fetchesTotal.WithLabelValues(kindOriginal, "error").Inc()
		l.pub.Publish(Event{Name: EventFetchFailed, ImageID: t.id, Fields: map[string]any{"url": url, "error": err.Error()}})
		l.log.Warn().Str("image_id", t.id).Str("url", url).Err(err).Msg("fetch failed")
		if current {
			l.fallbackLocked(t)
		}
	} else {
		l.cache.put(url, h)
		l.met.cacheEntries.Set(float64(l.cache.len()))
		l.met.fetchesTotal.WithLabelValues(kindOriginal, "ok").Inc()
		l.pub.Publish(Event{Name: EventFetchDone, ImageID: t.id, Fields: map[string]any{"url": url, "bytes": h.Size()}})
		l.log.Debug().Str("image_id", t.id).Str("url", url).Int64("bytes", h.Size()).Msg("fetch done")
		if current {
			l.markLoadedLocked(t, h)
		}
	}
	l.pumpLocked()
}

// markLoadedLocked moves t to loaded and accounts its estimated size.
func (l *Loader) markLoadedLocked(t *task, h handle.Handle) {
	t.forced = false
	if t.loadStartedAt.IsZero() || t.state != StateLoading {
		t.loadStartedAt = l.clk.Now()
	}
	if t.estBytes == 0 {
		t.estBytes = l.cfg.Estimator.Estimate(t.info(), h)
		l.memory += t.estBytes
		l.met.memoryEstimate.Set(float64(l.memory))
	}
	l.setStateLocked(t, StateLoaded)
}

// fallbackLocked applies the failure transition: thumbnail if one exists,
// otherwise placeholder, announced to listeners as failed.
func (l *Loader) fallbackLocked(t *task) {
	t.forced = false
	if t.thumbnailURL != "" {
		l.setStateLocked(t, StateThumbnail)
		l.startThumbnailLocked(t)
		return
	}
	t.state = StatePlaceholder
	l.notify.enqueue(t.id, StateFailed)
}

func (l *Loader) enqueueLocked(t *task) {
	if t.queued {
		return
	}
	t.queued = true
	l.queue = append(l.queue, t)
	l.met.queued.Set(float64(len(l.queue)))
	l.pub.Publish(Event{Name: EventQueued, ImageID: t.id, Fields: map[string]any{"queue_len": len(l.queue)}})
}

func (l *Loader) dequeueLocked(t *task) {
	if !t.queued {
		return
	}
	t.queued = false
	for i, q := range l.queue {
		if q == t {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			break
		}
	}
	l.met.queued.Set(float64(len(l.queue)))
}

// nextQueuedLocked pops the most eligible queued task: highest priority,
// then earliest viewport entry. Ineligible entries are discarded.
func (l *Loader) nextQueuedLocked() *task {
	best := -1
	for i := 0; i < len(l.queue); {
		q := l.queue[i]
		if l.tasks[q.id] != q || !q.eligible() {
			q.queued = false
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			continue
		}
		if best < 0 || queuedBefore(q, l.queue[best]) {
			best = i
		}
		i++
	}
	if best < 0 {
		l.met.queued.Set(0)
		return nil
	}
	t := l.queue[best]
	l.dequeueLocked(t)
	return t
}

func queuedBefore(a, b *task) bool {
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	if !a.viewportEnteredAt.Equal(b.viewportEnteredAt) {
		return a.viewportEnteredAt.Before(b.viewportEnteredAt)
	}
	return a.enterSeq < b.enterSeq
}

// pumpLocked fills free concurrency slots from the pending queue.
func (l *Loader) pumpLocked() {
	for l.active < l.cfg.MaxConcurrent {
		t := l.nextQueuedLocked()
		if t == nil {
			return
		}
		l.tryDispatchLocked(t)
	}
}

// startThumbnailLocked fetches t's thumbnail outside the concurrency cap and
// start delay. A cached thumbnail is applied at once.
func (l *Loader) startThumbnailLocked(t *task) {
	url := t.thumbnailURL
	if url == "" {
		return
	}
	if _, ok := l.cache.get(url); ok {
		if t.state == StatePlaceholder {
			l.setStateLocked(t, StateThumbnail)
		}
		return
	}
	if !l.inflight.add(url) {
		return
	}
	ctx, cancel := l.fetchContext()
	go func() {
		defer cancel()
		start := time.Now()
		h, err := l.safeFetch(ctx, url)
		l.met.fetchDuration.WithLabelValues(kindThumbnail).Observe(time.Since(start).Seconds())
		l.completeThumbnail(url, h, err)
	}()
}

// completeThumbnail upgrades every placeholder task sharing url.
func (l *Loader) completeThumbnail(url string, h handle.Handle, err error) {
	l.mu.Lock()
	defer l.unlock()
	l.inflight.remove(url)
	if l.closed {
		if h != nil {
			h.Release()
		}
		return
	}
	if err != nil {
		if h != nil {
			h.Release()
		}
		l.met.fetchesTotal.WithLabelValues(kindThumbnail, "error").Inc()
		l.pub.Publish(Event{Name: EventThumbnailError, Fields: map[string]any{"url": url, "error": err.Error()}})
		l.log.Warn().Str("url", url).Err(err).Msg("thumbnail fetch failed")
		return
	}
	l.cache.put(url, h)
	l.met.cacheEntries.Set(float64(l.cache.len()))
	l.met.fetchesTotal.WithLabelValues(kindThumbnail, "ok").Inc()
	l.pub.Publish(Event{Name: EventThumbnailDone, Fields: map[string]any{"url": url, "bytes": h.Size()}})
	for _, t := range l.sortedTasksLocked() {
		if t.thumbnailURL == url && t.state == StatePlaceholder {
			l.setStateLocked(t, StateThumbnail)
		}
	}
}
