package loader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"imgload/internal/clock"
	"imgload/internal/handle"
)

// State is the externally observable loading state of an image.
type State string

const (
	StatePlaceholder State = "placeholder"
	StateThumbnail   State = "thumbnail"
	StateLoading     State = "loading"
	StateLoaded      State = "loaded"
	// StateFailed is only delivered to listeners when a high-resolution fetch
	// failed and no thumbnail exists; GetState reports placeholder.
	StateFailed State = "failed"
)

// Priority orders pending fetches; higher values are dispatched first.
type Priority int

const (
	PriorityLow    Priority = -1
	PriorityNormal Priority = 0
	PriorityHigh   Priority = 1
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// ParsePriority accepts "low", "normal", "high" and the empty string (normal).
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	case "high":
		return PriorityHigh, nil
	}
	return PriorityNormal, fmt.Errorf("%w: unknown priority %q", ErrInvalidArgument, s)
}

// SourceType names which representation the current zoom calls for.
type SourceType string

const (
	SourceThumbnail SourceType = "thumbnail"
	SourceOriginal  SourceType = "original"
)

// Image describes one canvas image as seen by the renderer.
type Image struct {
	ID           string
	PrimaryURL   string
	ThumbnailURL string
	Priority     Priority
	// Scale is the renderer's zoom at registration; zero means "use the
	// loader's committed scale".
	Scale float64
	// SizeHint is an authoritative decoded size in bytes, if known.
	SizeHint int64
}

// TaskInfo is the read-only view of a task handed to an Estimator.
type TaskInfo struct {
	ImageID      string
	PrimaryURL   string
	ThumbnailURL string
	SizeHint     int64
}

// Fetcher retrieves the bytes behind a URL and materializes them as a handle.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (handle.Handle, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) (handle.Handle, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (handle.Handle, error) {
	return f(ctx, url)
}

// Listener receives state transitions for a single image.
type Listener func(imageID string, state State)

// task is the per-image record. All fields are guarded by Loader.mu.
type task struct {
	id           string
	primaryURL   string
	thumbnailURL string
	priority     Priority
	sizeHint     int64
	state        State

	viewportEnteredAt time.Time
	enterSeq          uint64
	loadStartedAt     time.Time
	// estBytes is what this task contributes to the memory estimate while loaded.
	estBytes int64
	// forced marks an explicit full-size request; it makes the task eligible
	// without viewport presence until the fetch completes.
	forced bool
	queued bool

	// deferred marks a task registered zoomed out while the committed policy
	// already wants originals; it catches up when the zoom settles high.
	deferred bool

	timer    clock.Timer
	timerGen uint64
}

func (t *task) visible() bool { return !t.viewportEnteredAt.IsZero() }

func (t *task) busy() bool { return t.state == StateLoading || t.state == StateLoaded }

// eligible reports whether a high-resolution fetch may start for t.
func (t *task) eligible() bool { return (t.visible() || t.forced) && !t.busy() }

func (t *task) info() TaskInfo {
	return TaskInfo{ImageID: t.id, PrimaryURL: t.primaryURL, ThumbnailURL: t.thumbnailURL, SizeHint: t.sizeHint}
}
