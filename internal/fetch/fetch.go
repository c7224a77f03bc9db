// Package fetch retrieves image bytes over HTTP(S) and materializes them as
// in-process handles.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"imgload/internal/handle"
)

const defaultMaxBytes = 64 << 20

// StatusError reports a non-success HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// IsStatus reports whether err is a non-success HTTP response.
func IsStatus(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// ErrTooLarge is returned when a body exceeds the configured limit.
var ErrTooLarge = errors.New("fetch: response body too large")

// HTTPFetcher implements loader.Fetcher with net/http.
type HTTPFetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
	log       zerolog.Logger
}

// Option customizes an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithClient sets the HTTP client (default http.DefaultClient).
func WithClient(c *http.Client) Option { return func(f *HTTPFetcher) { f.client = c } }

// WithMaxBytes caps the body size; non-positive values keep the default.
func WithMaxBytes(n int64) Option {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option { return func(f *HTTPFetcher) { f.userAgent = ua } }

// WithLogger installs a structured logger.
func WithLogger(l zerolog.Logger) Option { return func(f *HTTPFetcher) { f.log = l } }

func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{client: http.DefaultClient, maxBytes: defaultMaxBytes, log: zerolog.Nop()}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch GETs url and returns its body as a *handle.Blob.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (handle.Handle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", url, err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("fetch %s: %w (limit %d)", url, ErrTooLarge, f.maxBytes)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = detectContentType(body)
	} else if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	f.log.Debug().Str("url", url).Int("bytes", len(body)).Str("content_type", ct).Msg("fetched")
	return handle.NewBlob(body, ct), nil
}
