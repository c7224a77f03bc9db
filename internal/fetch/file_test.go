package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"imgload/internal/handle"
)

func writeImage(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestFileFetcher_ReadsUnderRoot(t *testing.T) {
	root := t.TempDir()
	p := writeImage(t, root, "img/a.png", "\x89PNG")
	f, err := NewFileFetcher(root, 0)
	if err != nil {
		t.Fatalf("NewFileFetcher: %v", err)
	}

	h, err := f.Fetch(context.Background(), "file://"+filepath.ToSlash(p))
	if err != nil {
		t.Fatalf("Fetch abs: %v", err)
	}
	if b := h.(*handle.Blob); string(b.Bytes()) != "\x89PNG" || b.ContentType() != "image/png" {
		t.Fatalf("unexpected blob %q %q", b.Bytes(), b.ContentType())
	}
	if _, err := f.Fetch(context.Background(), "file:img/a.png"); err != nil {
		t.Fatalf("Fetch relative: %v", err)
	}
}

func TestFileFetcher_Errors(t *testing.T) {
	root := t.TempDir()
	writeImage(t, root, "big.jpg", "0123456789")
	f, err := NewFileFetcher(root, 4)
	if err != nil {
		t.Fatalf("NewFileFetcher: %v", err)
	}
	ctx := context.Background()

	if _, err := f.Fetch(ctx, "file:missing.jpg"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.Fetch(ctx, "file:../escape.jpg"); !errors.Is(err, ErrOutsideRoot) {
		t.Fatalf("expected ErrOutsideRoot, got %v", err)
	}
	if _, err := f.Fetch(ctx, "file:big.jpg"); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, err := NewFileFetcher(filepath.Join(root, "big.jpg"), 0); err == nil {
		t.Fatalf("expected error for non-directory root")
	}
}

func TestRouter_DispatchesByScheme(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("remote"))
	}))
	defer srv.Close()
	root := t.TempDir()
	writeImage(t, root, "local.jpg", "local")
	ff, err := NewFileFetcher(root, 0)
	if err != nil {
		t.Fatalf("NewFileFetcher: %v", err)
	}
	r := NewRouter(NewHTTPFetcher(WithClient(srv.Client()))).Handle("file", ff)
	ctx := context.Background()

	h, err := r.Fetch(ctx, srv.URL+"/x.jpg")
	if err != nil || string(h.(*handle.Blob).Bytes()) != "remote" {
		t.Fatalf("http dispatch: %v", err)
	}
	h, err = r.Fetch(ctx, "file:local.jpg")
	if err != nil || string(h.(*handle.Blob).Bytes()) != "local" {
		t.Fatalf("file dispatch: %v", err)
	}
	if _, err := r.Fetch(ctx, "ftp://host/x.jpg"); err == nil {
		t.Fatalf("expected unsupported scheme error")
	}
}
