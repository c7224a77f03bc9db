package loader

// MemoryEstimate returns the estimated bytes held by loaded images.
func (l *Loader) MemoryEstimate() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.memory
}

// ReleaseUnused downgrades loaded images that have been out of the viewport
// for longer than ReleaseAfter (measured from load start) and returns how
// many were downgraded. Safe to call periodically.
func (l *Loader) ReleaseUnused() int {
	l.mu.Lock()
	defer l.unlock()
	if l.closed {
		return 0
	}
	return l.releaseUnusedLocked()
}

func (l *Loader) releaseUnusedLocked() int {
	now := l.clk.Now()
	n := 0
	for _, t := range l.sortedTasksLocked() {
		if t.state != StateLoaded || t.visible() || t.forced {
			continue
		}
		if now.Sub(t.loadStartedAt) < l.cfg.ReleaseAfter {
			continue
		}
		l.downgradeLocked(t)
		n++
	}
	return n
}

// downgradeLocked moves a loaded task back to its cheap representation and
// drops the primary handle unless another loaded task still shows it.
func (l *Loader) downgradeLocked(t *task) {
	freed := t.estBytes
	l.releaseEstimateLocked(t)
	if t.thumbnailURL != "" && l.cache.contains(t.thumbnailURL) {
		l.setStateLocked(t, StateThumbnail)
	} else {
		// An evicted thumbnail is fetched again; completion upgrades the task.
		l.setStateLocked(t, StatePlaceholder)
		l.startThumbnailLocked(t)
	}
	if !l.sharedLoadedLocked(t) && l.cache.remove(t.primaryURL) {
		l.met.cacheEntries.Set(float64(l.cache.len()))
	}
	l.met.downgradesTotal.Inc()
	l.pub.Publish(Event{Name: EventDowngrade, ImageID: t.id, Fields: map[string]any{"freed": freed, "estimate": l.memory}})
	l.log.Debug().Str("image_id", t.id).Int64("freed", freed).Int64("estimate", l.memory).Msg("downgraded unused image")
}

func (l *Loader) sharedLoadedLocked(t *task) bool {
	for _, o := range l.tasks {
		if o != t && o.state == StateLoaded && o.primaryURL == t.primaryURL {
			return true
		}
	}
	return false
}

func (l *Loader) releaseEstimateLocked(t *task) {
	if t.estBytes == 0 {
		return
	}
	l.memory -= t.estBytes
	if l.memory < 0 {
		l.memory = 0
	}
	t.estBytes = 0
	l.met.memoryEstimate.Set(float64(l.memory))
}
