package loader

import (
	"fmt"
	"math"

	"imgload/internal/clock"
)

// sourceSelector decides thumbnail vs. original from the zoom scale and
// debounces policy commits. Guarded by Loader.mu.
type sourceSelector struct {
	threshold    float64
	committed    float64
	hasCommitted bool
	pending      float64
	timer        clock.Timer
	gen          uint64
	commits      uint64
}

func newSourceSelector(threshold, initial float64) sourceSelector {
	s := sourceSelector{threshold: threshold}
	if initial > 0 {
		s.committed, s.hasCommitted = initial, true
	}
	return s
}

func (s *sourceSelector) shouldUseThumbnail(scale float64) bool { return scale < s.threshold }

func (s *sourceSelector) sourceType(scale float64) SourceType {
	if s.shouldUseThumbnail(scale) {
		return SourceThumbnail
	}
	return SourceOriginal
}

// current is the committed scale; an unset selector behaves like 1.0.
func (s *sourceSelector) current() float64 {
	if !s.hasCommitted {
		return 1
	}
	return s.committed
}

// adopt seeds the committed scale from a registration when none is set yet.
func (s *sourceSelector) adopt(scale float64) {
	if scale > 0 && !s.hasCommitted {
		s.committed, s.hasCommitted = scale, true
	}
}

func (s *sourceSelector) stop() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

// ShouldUseThumbnail reports whether scale is below the thumbnail threshold.
func (l *Loader) ShouldUseThumbnail(scale float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sel.shouldUseThumbnail(scale)
}

// SourceType returns the representation the committed scale calls for.
func (l *Loader) SourceType() SourceType {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sel.sourceType(l.sel.current())
}

// Scale returns the committed zoom factor (1.0 until one is committed).
func (l *Loader) Scale() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sel.current()
}

// UpdateScale reports a new zoom level. A change of source type commits only
// after the scale has stayed on the new side of the threshold for the whole
// debounce window; returning to the committed side cancels the pending commit.
// A scale that settles on the original side also starts originals for visible
// images that were registered zoomed out, even when nothing is committed.
func (l *Loader) UpdateScale(scale float64) error {
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return fmt.Errorf("%w: scale %v", ErrInvalidArgument, scale)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	s := &l.sel
	s.stop()
	if s.sourceType(scale) == s.sourceType(s.current()) &&
		(s.sourceType(scale) == SourceThumbnail || !l.hasDeferredLocked()) {
		return nil
	}
	s.pending = scale
	gen := s.gen
	s.timer = l.clk.AfterFunc(l.cfg.ScaleDebounce, func() { l.commitScale(gen) })
	return nil
}

func (l *Loader) commitScale(gen uint64) {
	l.mu.Lock()
	defer l.unlock()
	s := &l.sel
	if l.closed || gen != s.gen {
		return
	}
	s.timer = nil
	from := s.sourceType(s.current())
	to := s.sourceType(s.pending)
	flipped := from != to
	if flipped {
		s.committed, s.hasCommitted = s.pending, true
		s.commits++
		l.met.scaleCommits.Inc()
		l.pub.Publish(Event{Name: EventScaleCommit, Fields: map[string]any{"scale": s.committed, "source": string(to)}})
		l.log.Debug().Float64("scale", s.committed).Str("source", string(to)).Msg("source policy committed")
	}
	if to != SourceOriginal {
		// Zooming out never downgrades; only memory governance does.
		return
	}
	// Without a flip only tasks registered zoomed out are behind the policy.
	for _, t := range l.sortedTasksLocked() {
		if t.visible() && !t.busy() && (flipped || t.deferred) {
			t.deferred = false
			l.scheduleStartLocked(t, l.cfg.StartDelay)
		}
	}
}

func (l *Loader) hasDeferredLocked() bool {
	for _, t := range l.tasks {
		if t.deferred && t.visible() && !t.busy() {
			return true
		}
	}
	return false
}

// ScaleCommits returns how many debounced policy commits have happened.
func (l *Loader) ScaleCommits() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sel.commits
}
