package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"imgload/internal/handle"
	"imgload/internal/loader"
	"imgload/pkg/types"
)

type mockService struct {
	mu sync.Mutex

	registered   []loader.Image
	registerErr  error
	states       map[string]loader.State
	handles      map[string]handle.Handle
	cancelled    []string
	left         []string
	forced       []string
	forceErr     error
	scales       []float64
	scaleErr     error
	released     int
	cleared      int
	status       types.StatusResponse
	listeners    map[string]loader.Listener
	unsubscribed int
}

func newMockService() *mockService {
	return &mockService{
		states:    map[string]loader.State{},
		handles:   map[string]handle.Handle{},
		listeners: map[string]loader.Listener{},
	}
}

func (m *mockService) Register(ctx context.Context, img loader.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registerErr != nil {
		return m.registerErr
	}
	m.registered = append(m.registered, img)
	m.states[img.ID] = loader.StateThumbnail
	return nil
}

func (m *mockService) GetState(id string) loader.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[id]; ok {
		return s
	}
	return loader.StatePlaceholder
}

func (m *mockService) GetHandle(url string) (handle.Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[url]
	return h, ok
}

func (m *mockService) Cancel(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, id)
}

func (m *mockService) MarkLeftViewport(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.left = append(m.left, id)
}

func (m *mockService) ForceImmediate(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forceErr != nil {
		return m.forceErr
	}
	m.forced = append(m.forced, id)
	m.states[id] = loader.StateLoading
	return nil
}

func (m *mockService) UpdateScale(s float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scaleErr != nil {
		return m.scaleErr
	}
	m.scales = append(m.scales, s)
	return nil
}

func (m *mockService) Scale() float64                { return 1 }
func (m *mockService) SourceType() loader.SourceType { return loader.SourceOriginal }
func (m *mockService) ReleaseUnused() int            { m.mu.Lock(); defer m.mu.Unlock(); m.released++; return 2 }
func (m *mockService) MemoryEstimate() int64         { return 1024 }
func (m *mockService) Clear()                        { m.mu.Lock(); defer m.mu.Unlock(); m.cleared++ }
func (m *mockService) Status() types.StatusResponse  { return m.status }

func (m *mockService) AddChangeListener(id string, fn loader.Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
		m.unsubscribed++
	}
}

func (m *mockService) listener(id string) loader.Listener {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listeners[id]
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRegisterHandler(t *testing.T) {
	svc := newMockService()
	r := NewMux(svc)
	w := doJSON(t, r, http.MethodPost, "/images", `{"id":"a","primary_url":"https://x/a.jpg","thumbnail_url":"https://x/a_t.jpg","priority":"high","scale":0.5,"size_hint":10}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var st types.ImageState
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("json: %v", err)
	}
	if st.ID != "a" || st.State != "thumbnail" {
		t.Fatalf("unexpected body: %+v", st)
	}
	if len(svc.registered) != 1 {
		t.Fatalf("registered=%d", len(svc.registered))
	}
	img := svc.registered[0]
	if img.Priority != loader.PriorityHigh || img.ThumbnailURL != "https://x/a_t.jpg" || img.Scale != 0.5 || img.SizeHint != 10 {
		t.Fatalf("unexpected image: %+v", img)
	}
}

func TestRegisterHandler_Validation(t *testing.T) {
	r := NewMux(newMockService())

	req := httptest.NewRequest(http.MethodPost, "/images", strings.NewReader(`{"id":"a"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("missing content type: status=%d", w.Code)
	}
	cases := map[string]string{
		"bad json":     `{"id":`,
		"missing id":   `{"primary_url":"https://x/a.jpg"}`,
		"missing url":  `{"id":"a"}`,
		"bad priority": `{"id":"a","primary_url":"https://x/a.jpg","priority":"urgent"}`,
	}
	for name, body := range cases {
		w := doJSON(t, r, http.MethodPost, "/images", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d", name, w.Code)
		}
		var e types.ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil || e.Code != http.StatusBadRequest || e.Error == "" {
			t.Fatalf("%s: bad error body %q", name, w.Body.String())
		}
	}
}

func TestImageEndpoints(t *testing.T) {
	svc := newMockService()
	svc.states["a"] = loader.StateLoaded
	r := NewMux(svc)

	w := doJSON(t, r, http.MethodGet, "/images/a", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"loaded"`) {
		t.Fatalf("get: status=%d body=%s", w.Code, w.Body.String())
	}
	w = doJSON(t, r, http.MethodGet, "/images/unknown", "")
	if !strings.Contains(w.Body.String(), `"placeholder"`) {
		t.Fatalf("unknown image should report placeholder: %s", w.Body.String())
	}
	if w := doJSON(t, r, http.MethodDelete, "/images/a", ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete: status=%d", w.Code)
	}
	if w := doJSON(t, r, http.MethodPost, "/images/b/leave", ""); w.Code != http.StatusNoContent {
		t.Fatalf("leave: status=%d", w.Code)
	}
	if w := doJSON(t, r, http.MethodPost, "/images/c/full", ""); w.Code != http.StatusAccepted {
		t.Fatalf("full: status=%d", w.Code)
	}
	if len(svc.cancelled) != 1 || svc.cancelled[0] != "a" || len(svc.left) != 1 || svc.left[0] != "b" || len(svc.forced) != 1 || svc.forced[0] != "c" {
		t.Fatalf("calls: cancelled=%v left=%v forced=%v", svc.cancelled, svc.left, svc.forced)
	}
}

func TestScaleHandler(t *testing.T) {
	svc := newMockService()
	r := NewMux(svc)
	w := doJSON(t, r, http.MethodPost, "/scale", `{"scale":0.4}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d", w.Code)
	}
	var resp types.ScaleResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Requested != 0.4 || resp.Scale != 1 || resp.Source != "original" {
		t.Fatalf("unexpected: %+v", resp)
	}
	if len(svc.scales) != 1 || svc.scales[0] != 0.4 {
		t.Fatalf("scales=%v", svc.scales)
	}
}

func TestBlobHandler(t *testing.T) {
	svc := newMockService()
	svc.handles["https://x/a.jpg"] = handle.NewBlob([]byte("JPEG"), "image/jpeg")
	r := NewMux(svc)

	w := doJSON(t, r, http.MethodGet, "/blob?url=https://x/a.jpg", "")
	if w.Code != http.StatusOK || w.Body.String() != "JPEG" {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("content-type=%s", ct)
	}
	if !strings.HasPrefix(w.Header().Get("X-Blob-URL"), "blob:") {
		t.Fatalf("missing blob url header")
	}
	if w := doJSON(t, r, http.MethodGet, "/blob?url=https://x/missing.jpg", ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing: status=%d", w.Code)
	}
	if w := doJSON(t, r, http.MethodGet, "/blob", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("no url: status=%d", w.Code)
	}
}

func TestStatusReleaseClearHealth(t *testing.T) {
	svc := newMockService()
	svc.status = types.StatusResponse{MaxConcurrent: 4, CacheCapacity: 100}
	r := NewMux(svc)

	w := doJSON(t, r, http.MethodGet, "/status", "")
	var st types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("json: %v", err)
	}
	if st.MaxConcurrent != 4 || st.CacheCapacity != 100 {
		t.Fatalf("unexpected status: %+v", st)
	}

	w = doJSON(t, r, http.MethodPost, "/maintenance/release", "")
	var rel types.ReleaseResponse
	if err := json.Unmarshal(w.Body.Bytes(), &rel); err != nil {
		t.Fatalf("json: %v", err)
	}
	if rel.Downgraded != 2 || rel.MemoryEstimateBytes != 1024 {
		t.Fatalf("unexpected release: %+v", rel)
	}

	if w := doJSON(t, r, http.MethodPost, "/clear", ""); w.Code != http.StatusNoContent || svc.cleared != 1 {
		t.Fatalf("clear: status=%d cleared=%d", w.Code, svc.cleared)
	}
	if w := doJSON(t, r, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", w.Code, w.Body.String())
	}
	if w := doJSON(t, r, http.MethodGet, "/status", ""); w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff header")
	}
}
