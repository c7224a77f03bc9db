package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"imgload/internal/handle"
	"imgload/internal/loader"
)

// Router dispatches to a Fetcher by URL scheme.
type Router struct {
	byScheme map[string]loader.Fetcher
}

// NewRouter returns a Router serving http and https through h.
func NewRouter(h loader.Fetcher) *Router {
	return &Router{byScheme: map[string]loader.Fetcher{"http": h, "https": h}}
}

// Handle registers f for scheme, replacing any previous registration.
func (r *Router) Handle(scheme string, f loader.Fetcher) *Router {
	r.byScheme[strings.ToLower(scheme)] = f
	return r
}

func (r *Router) Fetch(ctx context.Context, raw string) (handle.Handle, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", raw, err)
	}
	f, ok := r.byScheme[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("fetch %s: unsupported scheme %q", raw, u.Scheme)
	}
	return f.Fetch(ctx, raw)
}

func detectContentType(b []byte) string {
	ct := http.DetectContentType(b)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}
