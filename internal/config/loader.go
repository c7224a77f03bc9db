package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. IMGLOAD_ADDR.
const EnvPrefix = "IMGLOAD_"

// Duration is a time.Duration that decodes from strings such as "200ms" in
// every supported config format and in the environment.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults downstream.
type Config struct {
	Addr     string `json:"addr" yaml:"addr" toml:"addr" env:"ADDR"`
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level" env:"LOG_LEVEL"`
	LogJSON  bool   `json:"log_json" yaml:"log_json" toml:"log_json" env:"LOG_JSON"`

	MaxConcurrent      int      `json:"max_concurrent" yaml:"max_concurrent" toml:"max_concurrent" env:"MAX_CONCURRENT"`
	MaxCacheSize       int      `json:"max_cache_size" yaml:"max_cache_size" toml:"max_cache_size" env:"MAX_CACHE_SIZE"`
	Eviction           string   `json:"eviction" yaml:"eviction" toml:"eviction" env:"EVICTION"`
	StartDelay         Duration `json:"start_delay" yaml:"start_delay" toml:"start_delay" env:"START_DELAY"`
	ScaleDebounce      Duration `json:"scale_debounce" yaml:"scale_debounce" toml:"scale_debounce" env:"SCALE_DEBOUNCE"`
	ThumbnailThreshold float64  `json:"thumbnail_threshold" yaml:"thumbnail_threshold" toml:"thumbnail_threshold" env:"THUMBNAIL_THRESHOLD"`
	InitialScale       float64  `json:"initial_scale" yaml:"initial_scale" toml:"initial_scale" env:"INITIAL_SCALE"`
	DedupPollInterval  Duration `json:"dedup_poll_interval" yaml:"dedup_poll_interval" toml:"dedup_poll_interval" env:"DEDUP_POLL_INTERVAL"`

	MemoryThresholdMB int      `json:"memory_threshold_mb" yaml:"memory_threshold_mb" toml:"memory_threshold_mb" env:"MEMORY_THRESHOLD_MB"`
	ReleaseAfter      Duration `json:"release_after" yaml:"release_after" toml:"release_after" env:"RELEASE_AFTER"`
	// ReleaseInterval drives the periodic ReleaseUnused sweep; zero disables it.
	ReleaseInterval Duration `json:"release_interval" yaml:"release_interval" toml:"release_interval" env:"RELEASE_INTERVAL"`

	FetchTimeout  Duration `json:"fetch_timeout" yaml:"fetch_timeout" toml:"fetch_timeout" env:"FETCH_TIMEOUT"`
	MaxFetchBytes int64    `json:"max_fetch_bytes" yaml:"max_fetch_bytes" toml:"max_fetch_bytes" env:"MAX_FETCH_BYTES"`
	UserAgent     string   `json:"user_agent" yaml:"user_agent" toml:"user_agent" env:"USER_AGENT"`
	// FileRoot enables file:// image URLs confined to this directory.
	FileRoot string `json:"file_root" yaml:"file_root" toml:"file_root" env:"FILE_ROOT"`

	HTTPLogLevel string `json:"http_log_level" yaml:"http_log_level" toml:"http_log_level" env:"HTTP_LOG_LEVEL"`
	// SSEKeepAlive spaces keep-alive frames on event streams; negative disables.
	SSEKeepAlive Duration `json:"sse_keepalive" yaml:"sse_keepalive" toml:"sse_keepalive" env:"SSE_KEEPALIVE"`

	CORSEnabled bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled" env:"CORS_ENABLED"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyEnv overlays IMGLOAD_* environment variables onto cfg. Dotenv files
// are loaded first (".env" when none are given); a missing file is ignored.
// Variables already present in the environment win over dotenv entries.
func ApplyEnv(cfg *Config, dotenv ...string) error {
	_ = godotenv.Load(dotenv...)
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate rejects values that cannot be defaulted.
func (c Config) Validate() error {
	switch {
	case c.MaxConcurrent < 0:
		return fmt.Errorf("max_concurrent must be >= 0, got %d", c.MaxConcurrent)
	case c.MaxCacheSize < 0:
		return fmt.Errorf("max_cache_size must be >= 0, got %d", c.MaxCacheSize)
	case c.ThumbnailThreshold < 0:
		return fmt.Errorf("thumbnail_threshold must be >= 0, got %v", c.ThumbnailThreshold)
	case c.InitialScale < 0:
		return fmt.Errorf("initial_scale must be >= 0, got %v", c.InitialScale)
	case c.MemoryThresholdMB < 0:
		return fmt.Errorf("memory_threshold_mb must be >= 0, got %d", c.MemoryThresholdMB)
	case c.ReleaseInterval < 0:
		return fmt.Errorf("release_interval must be >= 0, got %s", c.ReleaseInterval.Std())
	}
	return nil
}
