package types

// RegisterRequest is the payload of POST /images.
type RegisterRequest struct {
	// Stable identifier of the image on the canvas.
	// example: img-42
	ID string `json:"id" example:"img-42"`
	// URL of the full-resolution representation.
	// example: https://cdn.example.com/img-42/1920x1080.jpg
	PrimaryURL string `json:"primary_url" example:"https://cdn.example.com/img-42/1920x1080.jpg"`
	// Optional URL of the cheap representation.
	// example: https://cdn.example.com/img-42/thumb.jpg
	ThumbnailURL string `json:"thumbnail_url,omitempty" example:"https://cdn.example.com/img-42/thumb.jpg"`
	// Fetch priority: low, normal or high. Empty means normal.
	// example: normal
	Priority string `json:"priority,omitempty" example:"normal"`
	// Current zoom factor of the canvas; 0 uses the committed scale.
	// example: 1.0
	Scale float64 `json:"scale,omitempty" example:"1.0"`
	// Optional authoritative decoded size in bytes.
	// example: 8294400
	SizeHint int64 `json:"size_hint,omitempty" example:"8294400"`
}

// ScaleRequest is the payload of POST /scale.
type ScaleRequest struct {
	// New zoom factor (> 0).
	// example: 0.9
	Scale float64 `json:"scale" example:"0.9"`
}

// ImageState is returned by GET /images/{id} and streamed by the events endpoint.
type ImageState struct {
	// example: img-42
	ID string `json:"id" example:"img-42"`
	// One of placeholder, thumbnail, loading, loaded, failed.
	// example: loaded
	State string `json:"state" example:"loaded"`
}

// ReleaseResponse is returned by POST /maintenance/release.
type ReleaseResponse struct {
	// Number of images downgraded.
	// example: 3
	Downgraded int `json:"downgraded" example:"3"`
	// Memory estimate after the sweep, in bytes.
	// example: 104857600
	MemoryEstimateBytes int64 `json:"memory_estimate_bytes" example:"104857600"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// ImageStatus summarizes one task for /status.
type ImageStatus struct {
	// example: img-42
	ID string `json:"id" example:"img-42"`
	// example: loaded
	State string `json:"state" example:"loaded"`
	// example: normal
	Priority string `json:"priority" example:"normal"`
	// example: https://cdn.example.com/img-42/1920x1080.jpg
	PrimaryURL string `json:"primary_url" example:"https://cdn.example.com/img-42/1920x1080.jpg"`
	// example: https://cdn.example.com/img-42/thumb.jpg
	ThumbnailURL string `json:"thumbnail_url,omitempty" example:"https://cdn.example.com/img-42/thumb.jpg"`
	// Whether the image is currently in (or requested for) the viewport.
	// example: true
	Visible bool `json:"visible" example:"true"`
	// Viewport entry time (unix milliseconds), 0 when not visible.
	// example: 1700000000000
	ViewportEnteredAt int64 `json:"viewport_entered_at_ms" example:"1700000000000"`
	// High-resolution load start (unix milliseconds), 0 if never started.
	// example: 1700000000200
	LoadStartedAt int64 `json:"load_started_at_ms" example:"1700000000200"`
	// Estimated bytes accounted for this image while loaded.
	// example: 8294400
	EstBytes int64 `json:"est_bytes" example:"8294400"`
	// Whether a fetch is waiting for a concurrency slot.
	// example: false
	Queued bool `json:"queued" example:"false"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Registered images.
	Images []ImageStatus `json:"images"`
	// Count of images per state.
	States map[string]int `json:"states"`
	// High-resolution fetches outstanding.
	// example: 2
	Inflight int `json:"inflight" example:"2"`
	// Concurrency cap.
	// example: 4
	MaxConcurrent int `json:"max_concurrent" example:"4"`
	// Fetches waiting for a slot.
	// example: 0
	Queued int `json:"queued" example:"0"`
	// example: 37
	CacheEntries int `json:"cache_entries" example:"37"`
	// example: 100
	CacheCapacity int `json:"cache_capacity" example:"100"`
	// fifo or lru.
	// example: fifo
	EvictionPolicy string `json:"eviction_policy" example:"fifo"`
	// example: 104857600
	MemoryEstimateBytes int64 `json:"memory_estimate_bytes" example:"104857600"`
	// example: 524288000
	MemoryThresholdBytes int64 `json:"memory_threshold_bytes" example:"524288000"`
	// Committed zoom factor.
	// example: 1
	Scale float64 `json:"scale" example:"1"`
	// thumbnail or original.
	// example: original
	Source string `json:"source" example:"original"`
	// Number of debounced source policy commits.
	// example: 3
	ScaleCommits uint64 `json:"scale_commits" example:"3"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds,omitempty" example:"3600"`
}

// ScaleResponse is returned by POST /scale. The requested scale is applied
// after a debounce, so Scale and Source may still reflect the previous commit.
type ScaleResponse struct {
	// example: 0.9
	Requested float64 `json:"requested" example:"0.9"`
	// Committed zoom factor.
	// example: 1
	Scale float64 `json:"scale" example:"1"`
	// thumbnail or original, per the committed scale.
	// example: original
	Source string `json:"source" example:"original"`
}
