package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"imgload/internal/fetch"
	"imgload/internal/httpapi"
	"imgload/internal/loader"
	"imgload/pkg/types"
)

// origin is an image server that counts hits per path and can hold requests
// until released.
type origin struct {
	srv *httptest.Server

	mu      sync.Mutex
	hits    map[string]int
	active  int
	peak    int
	gate    chan struct{}
	missing map[string]bool
}

func newOrigin(t *testing.T, gated bool) *origin {
	t.Helper()
	o := &origin{hits: map[string]int{}, missing: map[string]bool{}}
	if gated {
		o.gate = make(chan struct{})
	}
	o.srv = httptest.NewServer(http.HandlerFunc(o.serve))
	t.Cleanup(func() {
		o.open()
		o.srv.Close()
	})
	return o
}

func (o *origin) serve(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	o.hits[r.URL.Path]++
	o.active++
	if o.active > o.peak {
		o.peak = o.active
	}
	gate := o.gate
	missing := o.missing[r.URL.Path]
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.active--
		o.mu.Unlock()
	}()

	// Thumbnails are never gated so the progressive path stays observable.
	if gate != nil && !strings.Contains(r.URL.Path, "thumb") {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	if missing {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write([]byte("jpeg:" + r.URL.Path))
}

// open releases every gated request, current and future.
func (o *origin) open() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gate != nil {
		close(o.gate)
		o.gate = nil
	}
}

func (o *origin) url(path string) string { return o.srv.URL + path }

func (o *origin) hitCount(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hits[path]
}

func (o *origin) peakActive() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.peak
}

func (o *origin) setMissing(path string) {
	o.mu.Lock()
	o.missing[path] = true
	o.mu.Unlock()
}

// newServer wires a real-clock loader over HTTP. Delays are shortened so the
// tests run quickly.
func newServer(t *testing.T, o *origin, mutate func(*loader.Config)) (*httptest.Server, *loader.Loader) {
	t.Helper()
	cfg := loader.Config{
		Fetcher:           fetch.NewHTTPFetcher(fetch.WithClient(o.srv.Client())),
		StartDelay:        20 * time.Millisecond,
		ScaleDebounce:     30 * time.Millisecond,
		DedupPollInterval: 5 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	l, err := loader.New(cfg)
	if err != nil {
		t.Fatalf("loader.New: %v", err)
	}
	srv := httptest.NewServer(httpapi.NewMux(l))
	t.Cleanup(func() {
		srv.Close()
		_ = l.Close()
	})
	return srv, l
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func register(t *testing.T, srv *httptest.Server, req types.RegisterRequest) {
	t.Helper()
	b, _ := json.Marshal(req)
	resp, body := httpPostJSON(t, srv.URL+"/images", b)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("register %s: %d %s", req.ID, resp.StatusCode, body)
	}
}

func stateOf(t *testing.T, srv *httptest.Server, id string) string {
	t.Helper()
	_, body := httpGet(t, srv.URL+"/images/"+id)
	var st types.ImageState
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decode state: %v (%s)", err, body)
	}
	return st.State
}

func status(t *testing.T, srv *httptest.Server) types.StatusResponse {
	t.Helper()
	_, body := httpGet(t, srv.URL+"/status")
	var st types.StatusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return st
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
