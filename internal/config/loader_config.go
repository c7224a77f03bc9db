package config

import (
	"github.com/rs/zerolog"

	"imgload/internal/loader"
)

// LoaderConfig maps the file/env configuration onto loader.Config. Unset
// values stay zero so loader.New applies its own defaults.
func (c Config) LoaderConfig(f loader.Fetcher, log *zerolog.Logger) (loader.Config, error) {
	if err := c.Validate(); err != nil {
		return loader.Config{}, err
	}
	pol, err := loader.ParseEvictionPolicy(c.Eviction)
	if err != nil {
		return loader.Config{}, err
	}
	return loader.Config{
		Fetcher:              f,
		MaxConcurrent:        c.MaxConcurrent,
		MaxCacheSize:         c.MaxCacheSize,
		Eviction:             pol,
		StartDelay:           c.StartDelay.Std(),
		ScaleDebounce:        c.ScaleDebounce.Std(),
		ThumbnailThreshold:   c.ThumbnailThreshold,
		InitialScale:         c.InitialScale,
		DedupPollInterval:    c.DedupPollInterval.Std(),
		MemoryThresholdBytes: int64(c.MemoryThresholdMB) << 20,
		ReleaseAfter:         c.ReleaseAfter.Std(),
		FetchTimeout:         c.FetchTimeout.Std(),
		Logger:               log,
	}, nil
}
