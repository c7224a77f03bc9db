package loader

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

// Register upserts the task for img and starts whatever work the current
// policy calls for. At most one task exists per image ID.
func (l *Loader) Register(ctx context.Context, img Image) error {
	if img.ID == "" {
		return fmt.Errorf("%w: empty image id", ErrInvalidArgument)
	}
	if img.PrimaryURL == "" {
		return fmt.Errorf("%w: empty primary url for %q", ErrInvalidArgument, img.ID)
	}
	if img.Scale < 0 || math.IsNaN(img.Scale) || math.IsInf(img.Scale, 0) {
		return fmt.Errorf("%w: scale %v", ErrInvalidArgument, img.Scale)
	}
	if img.Priority < PriorityLow || img.Priority > PriorityHigh {
		return fmt.Errorf("%w: priority %d", ErrInvalidArgument, img.Priority)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.unlock()
	if l.closed {
		return ErrClosed
	}
	l.sel.adopt(img.Scale)
	scale := img.Scale
	if scale == 0 {
		scale = l.sel.current()
	}
	wantOriginal := !l.sel.shouldUseThumbnail(scale)

	t := l.tasks[img.ID]
	if t == nil {
		t = &task{id: img.ID, state: StatePlaceholder}
		l.tasks[img.ID] = t
	}
	if t.state != StateLoading && t.primaryURL != img.PrimaryURL {
		if t.state == StateLoaded {
			// The loaded bytes belong to the old URL.
			l.releaseEstimateLocked(t)
			l.setStateLocked(t, StatePlaceholder)
		}
		t.primaryURL = img.PrimaryURL
	}
	if !t.busy() {
		t.thumbnailURL = img.ThumbnailURL
		t.priority = img.Priority
		t.sizeHint = img.SizeHint
	}
	l.enterViewportLocked(t)

	if t.state != StateLoaded && t.state != StateLoading {
		if h, ok := l.cache.get(t.primaryURL); ok {
			l.stopTimerLocked(t)
			l.dequeueLocked(t)
			l.pub.Publish(Event{Name: EventCacheHit, ImageID: t.id, Fields: map[string]any{"url": t.primaryURL}})
			l.markLoadedLocked(t, h)
			return nil
		}
	}

	if t.busy() {
		return nil
	}
	l.startThumbnailLocked(t)
	t.deferred = !wantOriginal && l.sel.sourceType(l.sel.current()) == SourceOriginal
	if wantOriginal {
		l.scheduleStartLocked(t, l.cfg.StartDelay)
	}
	return nil
}

// Cancel removes the task and any pending work for it. Cached handles are
// kept; an outstanding fetch completes into the cache.
func (l *Loader) Cancel(imageID string) {
	l.mu.Lock()
	defer l.unlock()
	t := l.tasks[imageID]
	if t == nil {
		return
	}
	l.stopTimerLocked(t)
	l.dequeueLocked(t)
	l.releaseEstimateLocked(t)
	delete(l.tasks, imageID)
	l.pub.Publish(Event{Name: EventCancel, ImageID: imageID, Fields: map[string]any{}})
}

// MarkLeftViewport clears the task's viewport presence and cancels any fetch
// that has not started yet. Loaded images are not downgraded.
func (l *Loader) MarkLeftViewport(imageID string) {
	l.mu.Lock()
	defer l.unlock()
	t := l.tasks[imageID]
	if t == nil {
		return
	}
	t.viewportEnteredAt = time.Time{}
	t.forced = false
	l.stopTimerLocked(t)
	l.dequeueLocked(t)
}

// ForceImmediate starts the high-resolution fetch without the start delay,
// ahead of other pending work. The concurrency cap still applies.
func (l *Loader) ForceImmediate(imageID string) error {
	l.mu.Lock()
	defer l.unlock()
	if l.closed {
		return ErrClosed
	}
	t := l.tasks[imageID]
	if t == nil {
		return fmt.Errorf("%w: %q", ErrTaskNotFound, imageID)
	}
	if t.busy() {
		return nil
	}
	l.stopTimerLocked(t)
	l.dequeueLocked(t)
	t.forced = true
	t.deferred = false
	t.priority = PriorityHigh
	l.tryDispatchLocked(t)
	return nil
}

func (l *Loader) enterViewportLocked(t *task) {
	if t.visible() {
		return
	}
	t.viewportEnteredAt = l.clk.Now()
	l.enterSeq++
	t.enterSeq = l.enterSeq
}

// sortedTasksLocked returns tasks in viewport-entry order so bulk operations
// behave deterministically.
func (l *Loader) sortedTasksLocked() []*task {
	out := make([]*task, 0, len(l.tasks))
	for _, t := range l.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].enterSeq != out[j].enterSeq {
			return out[i].enterSeq < out[j].enterSeq
		}
		return out[i].id < out[j].id
	})
	return out
}
