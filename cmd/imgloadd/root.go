package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"imgload/internal/config"
)

const defaultAddr = ":8080"

// buildRootCmd constructs the Cobra command tree.
func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "imgloadd",
		Short:         "Progressive image loading and caching daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Config file (.yaml, .yml, .json or .toml)")
	root.PersistentFlags().StringSlice("dotenv", nil, "Dotenv files to load before reading IMGLOAD_* variables (default .env)")
	root.PersistentFlags().String("log-level", "", "Log level: debug|info|warn|error|off (defaults IMGLOAD_LOG_LEVEL or info)")
	root.PersistentFlags().Bool("log-json", false, "Emit JSON logs instead of console output")

	serve := &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP API",
		Example: "  imgloadd serve --addr :8080 --max-concurrent 6\n  imgloadd serve --config imgload.yaml",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	f := serve.Flags()
	f.String("addr", defaultAddr, "HTTP listen address, e.g. :8080")
	f.Int("max-concurrent", 0, "Maximum concurrent full-resolution fetches (0=default 4)")
	f.Int("max-cache-size", 0, "Maximum cached entries (0=default 100)")
	f.String("eviction", "", "Cache eviction policy: fifo|lru")
	f.Duration("start-delay", 0, "Debounce before a full-resolution fetch starts (0=default 200ms)")
	f.Duration("scale-debounce", 0, "Debounce before a zoom change switches source policy (0=default 300ms)")
	f.Float64("thumbnail-threshold", 0, "Zoom below which thumbnails suffice (0=default 0.7)")
	f.Float64("initial-scale", 0, "Committed zoom at startup (0=unset)")
	f.Int("memory-threshold-mb", 0, "Memory estimate that triggers governance, in MiB (0=default 500)")
	f.Duration("release-after", 0, "Off-viewport age before an image may be downgraded (0=default 60s)")
	f.Duration("release-interval", 0, "Period of the background release sweep (0=disabled)")
	f.Duration("fetch-timeout", 0, "Per-fetch timeout (0=default 30s, negative disables)")
	f.Int64("max-fetch-bytes", 0, "Maximum response body size per fetch (0=default 64MiB)")
	f.String("user-agent", "", "User-Agent sent to image origins")
	f.String("file-root", "", "Serve file:// image URLs from this directory (disabled when empty)")
	f.Bool("cors", false, "Enable CORS")
	f.String("cors-origins", "", "Comma-separated allowed CORS origins")
	f.String("http-log-level", "", "Access log level: off|error|info|debug (default error)")
	f.Duration("sse-keepalive", 0, "Keep-alive interval on event streams (0=default 15s, negative disables)")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "imgloadd", version)
		},
	}

	root.AddCommand(serve, version)
	return root
}

// resolveConfig layers configuration: file, then environment, then flags the
// user set explicitly.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	flags := cmd.Flags()
	if path, _ := flags.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	dotenv, _ := flags.GetStringSlice("dotenv")
	if err := config.ApplyEnv(&cfg, dotenv...); err != nil {
		return cfg, err
	}
	applyFlags(flags, &cfg)
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyFlags(f *pflag.FlagSet, cfg *config.Config) {
	str := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	integer := func(name string, dst *int) {
		if f.Changed(name) {
			*dst, _ = f.GetInt(name)
		}
	}
	float := func(name string, dst *float64) {
		if f.Changed(name) {
			*dst, _ = f.GetFloat64(name)
		}
	}
	dur := func(name string, dst *config.Duration) {
		if f.Changed(name) {
			d, _ := f.GetDuration(name)
			*dst = config.Duration(d)
		}
	}
	boolean := func(name string, dst *bool) {
		if f.Changed(name) {
			*dst, _ = f.GetBool(name)
		}
	}

	str("addr", &cfg.Addr)
	str("log-level", &cfg.LogLevel)
	boolean("log-json", &cfg.LogJSON)
	integer("max-concurrent", &cfg.MaxConcurrent)
	integer("max-cache-size", &cfg.MaxCacheSize)
	str("eviction", &cfg.Eviction)
	dur("start-delay", &cfg.StartDelay)
	dur("scale-debounce", &cfg.ScaleDebounce)
	float("thumbnail-threshold", &cfg.ThumbnailThreshold)
	float("initial-scale", &cfg.InitialScale)
	integer("memory-threshold-mb", &cfg.MemoryThresholdMB)
	dur("release-after", &cfg.ReleaseAfter)
	dur("release-interval", &cfg.ReleaseInterval)
	dur("fetch-timeout", &cfg.FetchTimeout)
	if f.Changed("max-fetch-bytes") {
		cfg.MaxFetchBytes, _ = f.GetInt64("max-fetch-bytes")
	}
	str("user-agent", &cfg.UserAgent)
	str("file-root", &cfg.FileRoot)
	str("http-log-level", &cfg.HTTPLogLevel)
	dur("sse-keepalive", &cfg.SSEKeepAlive)
	boolean("cors", &cfg.CORSEnabled)
	if f.Changed("cors-origins") {
		v, _ := f.GetString("cors-origins")
		cfg.CORSOrigins = splitCSV(v)
	}
}

// splitCSV splits a comma-separated list, trimming blanks.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second
