package loader

import (
	"time"

	"imgload/pkg/types"
)

// Status builds a detailed status response for /status.
func (l *Loader) Status() types.StatusResponse {
	l.mu.Lock()
	defer l.mu.Unlock()
	resp := types.StatusResponse{
		States:               make(map[string]int),
		Inflight:             l.active,
		MaxConcurrent:        l.cfg.MaxConcurrent,
		Queued:               len(l.queue),
		CacheEntries:         l.cache.len(),
		CacheCapacity:        l.cache.cap(),
		EvictionPolicy:       string(l.cfg.Eviction),
		MemoryEstimateBytes:  l.memory,
		MemoryThresholdBytes: l.cfg.MemoryThresholdBytes,
		Scale:                l.sel.current(),
		Source:               string(l.sel.sourceType(l.sel.current())),
		ScaleCommits:         l.sel.commits,
	}
	tasks := l.sortedTasksLocked()
	resp.Images = make([]types.ImageStatus, 0, len(tasks))
	for _, t := range tasks {
		resp.States[string(t.state)]++
		resp.Images = append(resp.Images, types.ImageStatus{
			ID:                t.id,
			State:             string(t.state),
			Priority:          t.priority.String(),
			PrimaryURL:        t.primaryURL,
			ThumbnailURL:      t.thumbnailURL,
			Visible:           t.visible(),
			ViewportEnteredAt: unixMilli(t.viewportEnteredAt),
			LoadStartedAt:     unixMilli(t.loadStartedAt),
			EstBytes:          t.estBytes,
			Queued:            t.queued,
		})
	}
	return resp
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
