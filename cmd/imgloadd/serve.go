package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"imgload/internal/config"
	"imgload/internal/fetch"
	"imgload/internal/httpapi"
	"imgload/internal/loader"
	"imgload/internal/logging"
)

// runServe listens on cfg.Addr and serves until SIGINT/SIGTERM or ctx ends.
func runServe(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	log := logging.Setup(cfg.LogLevel, cfg.LogJSON)
	return serve(ctx, cfg, ln, log)
}

// serve runs the daemon on ln until ctx is canceled, then shuts down
// gracefully: HTTP first, then the loader.
func serve(ctx context.Context, cfg config.Config, ln net.Listener, log zerolog.Logger) error {
	fetcher, err := newFetcher(cfg, log)
	if err != nil {
		_ = ln.Close()
		return err
	}
	loaderLog := log.With().Str("component", "loader").Logger()
	lc, err := cfg.LoaderConfig(fetcher, &loaderLog)
	if err != nil {
		_ = ln.Close()
		return err
	}
	l, err := loader.New(lc)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer func() { _ = l.Close() }()
	if err := l.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		log.Warn().Err(err).Msg("loader metrics not registered")
	}

	configureHTTP(cfg, log)
	baseCtx, cancelBase := context.WithCancel(ctx)
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	srv := &http.Server{
		Handler:           httpapi.NewMux(l),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.ReleaseInterval > 0 {
		go releaseLoop(baseCtx, l, cfg.ReleaseInterval.Std(), log)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Str("version", version).Msg("imgloadd listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	// Event streams only end once the base context is canceled.
	cancelBase()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

func configureHTTP(cfg config.Config, log zerolog.Logger) {
	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	if cfg.HTTPLogLevel != "" {
		httpapi.SetRequestLogLevel(cfg.HTTPLogLevel)
	}
	switch ka := cfg.SSEKeepAlive.Std(); {
	case ka < 0:
		httpapi.SetSSEKeepAliveSeconds(0)
	case ka > 0:
		secs := int64(ka / time.Second)
		if secs == 0 {
			secs = 1
		}
		httpapi.SetSSEKeepAliveSeconds(secs)
	}
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins, nil, nil)
}

// releaseLoop periodically downgrades images that left the viewport long ago.
func releaseLoop(ctx context.Context, l *loader.Loader, every time.Duration, log zerolog.Logger) {
	tk := time.NewTicker(every)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			if n := l.ReleaseUnused(); n > 0 {
				log.Info().Int("downgraded", n).Int64("memory_estimate_bytes", l.MemoryEstimate()).Msg("released unused images")
			}
		}
	}
}

func newFetcher(cfg config.Config, log zerolog.Logger) (*fetch.Router, error) {
	r := fetch.NewRouter(fetch.NewHTTPFetcher(
		fetch.WithMaxBytes(cfg.MaxFetchBytes),
		fetch.WithUserAgent(userAgent(cfg)),
		fetch.WithLogger(log.With().Str("component", "fetch").Logger()),
	))
	if cfg.FileRoot != "" {
		ff, err := fetch.NewFileFetcher(cfg.FileRoot, cfg.MaxFetchBytes)
		if err != nil {
			return nil, err
		}
		r.Handle("file", ff)
	}
	return r, nil
}

func userAgent(cfg config.Config) string {
	if cfg.UserAgent != "" {
		return cfg.UserAgent
	}
	return "imgloadd/" + version
}
