package fetch

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"imgload/internal/handle"
)

// ErrOutsideRoot is returned for file URLs that escape the FileFetcher root.
var ErrOutsideRoot = errors.New("fetch: path outside root")

// FileFetcher serves file:// URLs from the local filesystem, confined to Root.
type FileFetcher struct {
	root     string
	maxBytes int64
}

// NewFileFetcher returns a fetcher for files under root. A leading "~" in
// root expands to the user's home directory.
func NewFileFetcher(root string, maxBytes int64) (*FileFetcher, error) {
	base, err := expandHome(root)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	st, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("file root: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("file root %s is not a directory", abs)
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &FileFetcher{root: abs, maxBytes: maxBytes}, nil
}

// Fetch reads the file named by a file:// URL. Relative paths (file:img.png)
// resolve against the root.
func (f *FileFetcher) Fetch(ctx context.Context, raw string) (handle.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", raw, err)
	}
	if u.Scheme != "file" {
		return nil, fmt.Errorf("fetch %s: unsupported scheme %q", raw, u.Scheme)
	}
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(f.root, p)
	}
	p = filepath.Clean(p)
	if p != f.root && !strings.HasPrefix(p, f.root+string(filepath.Separator)) {
		return nil, fmt.Errorf("fetch %s: %w", raw, ErrOutsideRoot)
	}
	st, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &StatusError{URL: raw, StatusCode: http.StatusNotFound}
		}
		return nil, fmt.Errorf("fetch %s: %w", raw, err)
	}
	if st.Size() > f.maxBytes {
		return nil, fmt.Errorf("fetch %s: %w (limit %d)", raw, ErrTooLarge, f.maxBytes)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", raw, err)
	}
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(p)))
	if ct == "" {
		ct = detectContentType(b)
	}
	return handle.NewBlob(b, ct), nil
}

// expandHome expands a leading '~' to the user's home directory.
func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}
