package loader

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"imgload/internal/clock"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxConcurrent        = 4
	defaultMaxCacheSize         = 100
	defaultStartDelay           = 200 * time.Millisecond
	defaultScaleDebounce        = 300 * time.Millisecond
	defaultThumbnailThreshold   = 0.7
	defaultDedupPollInterval    = 100 * time.Millisecond
	defaultMemoryThresholdBytes = 500 << 20
	defaultReleaseAfter         = 60 * time.Second
	defaultFetchTimeout         = 30 * time.Second
)

// EvictionPolicy selects how BinaryCache picks its victim when full.
type EvictionPolicy string

const (
	// EvictFIFO evicts the oldest inserted entry; hits do not refresh it.
	EvictFIFO EvictionPolicy = "fifo"
	// EvictLRU evicts the least recently accessed entry.
	EvictLRU EvictionPolicy = "lru"
)

// ParseEvictionPolicy accepts "fifo", "lru" or "" (fifo).
func ParseEvictionPolicy(s string) (EvictionPolicy, error) {
	switch EvictionPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", EvictFIFO:
		return EvictFIFO, nil
	case EvictLRU:
		return EvictLRU, nil
	}
	return "", fmt.Errorf("%w: unknown eviction policy %q", ErrInvalidArgument, s)
}

// Config encapsulates all tunables for Loader construction.
type Config struct {
	Fetcher Fetcher

	MaxConcurrent int
	MaxCacheSize  int
	Eviction      EvictionPolicy
	// StartDelay is the debounce before a high-resolution fetch starts.
	StartDelay time.Duration
	// ScaleDebounce is how long a zoom level must stay on one side of
	// ThumbnailThreshold before the source policy commits.
	ScaleDebounce      time.Duration
	ThumbnailThreshold float64
	// InitialScale seeds the committed scale; zero leaves it unset until the
	// first registration that carries a scale.
	InitialScale      float64
	DedupPollInterval time.Duration

	MemoryThresholdBytes int64
	ReleaseAfter         time.Duration
	// FetchTimeout bounds each fetch; negative disables the timeout.
	FetchTimeout time.Duration

	Clock     clock.Clock
	Estimator Estimator
	Publisher EventPublisher
	Logger    *zerolog.Logger
}

// withDefaults returns a copy of cfg with zero values replaced by defaults.
func (cfg Config) withDefaults() (Config, error) {
	if cfg.Fetcher == nil {
		return cfg, fmt.Errorf("%w: Fetcher is required", ErrInvalidArgument)
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.MaxCacheSize <= 0 {
		cfg.MaxCacheSize = defaultMaxCacheSize
	}
	pol, err := ParseEvictionPolicy(string(cfg.Eviction))
	if err != nil {
		return cfg, err
	}
	cfg.Eviction = pol
	if cfg.StartDelay <= 0 {
		cfg.StartDelay = defaultStartDelay
	}
	if cfg.ScaleDebounce <= 0 {
		cfg.ScaleDebounce = defaultScaleDebounce
	}
	if cfg.ThumbnailThreshold <= 0 || math.IsNaN(cfg.ThumbnailThreshold) {
		cfg.ThumbnailThreshold = defaultThumbnailThreshold
	}
	if cfg.InitialScale < 0 || math.IsNaN(cfg.InitialScale) || math.IsInf(cfg.InitialScale, 0) {
		return cfg, fmt.Errorf("%w: InitialScale %v", ErrInvalidArgument, cfg.InitialScale)
	}
	if cfg.DedupPollInterval <= 0 {
		cfg.DedupPollInterval = defaultDedupPollInterval
	}
	if cfg.MemoryThresholdBytes <= 0 {
		cfg.MemoryThresholdBytes = defaultMemoryThresholdBytes
	}
	if cfg.ReleaseAfter <= 0 {
		cfg.ReleaseAfter = defaultReleaseAfter
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Estimator == nil {
		cfg.Estimator = DefaultEstimator()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	if cfg.Logger == nil {
		nop := zerolog.Nop()
		cfg.Logger = &nop
	}
	return cfg, nil
}
