package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSetMaxBodyBytes_DefaultWhenNonPositive(t *testing.T) {
	SetMaxBodyBytes(-1)
	if maxBodyBytes != 64<<10 {
		t.Fatalf("expected default 64KiB, got %d", maxBodyBytes)
	}
	SetMaxBodyBytes(1234)
	if maxBodyBytes != 1234 {
		t.Fatalf("expected 1234, got %d", maxBodyBytes)
	}
	SetMaxBodyBytes(0)
}

func TestMaxBodyBytes_RejectsOversizedBody(t *testing.T) {
	SetMaxBodyBytes(32)
	defer SetMaxBodyBytes(0)
	body := `{"id":"a","primary_url":"https://x/` + strings.Repeat("a", 64) + `.jpg"}`
	w := doJSON(t, NewMux(newMockService()), http.MethodPost, "/images", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSetSSEKeepAliveSeconds_NormalizesNegative(t *testing.T) {
	orig := sseKeepAliveSeconds
	defer SetSSEKeepAliveSeconds(orig)
	SetSSEKeepAliveSeconds(-5)
	if sseKeepAliveSeconds != 0 {
		t.Fatalf("expected 0, got %d", sseKeepAliveSeconds)
	}
}

func TestCORS_OptIn(t *testing.T) {
	defer SetCORSOptions(false, nil, nil, nil)

	preflight := func(h http.Handler) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/images", nil)
		req.Header.Set("Origin", "https://canvas.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	SetCORSOptions(false, nil, nil, nil)
	if got := preflight(NewMux(newMockService())).Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("CORS disabled but got allow-origin %q", got)
	}

	SetCORSOptions(true, []string{"https://canvas.example"}, nil, nil)
	if got := preflight(NewMux(newMockService())).Header().Get("Access-Control-Allow-Origin"); got != "https://canvas.example" {
		t.Fatalf("allow-origin=%q", got)
	}
}
