package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"imgload/internal/handle"
	"imgload/internal/httpapi"
	"imgload/internal/loader"
	"imgload/pkg/types"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	l, err := loader.New(loader.Config{
		Fetcher: loader.FetcherFunc(func(ctx context.Context, url string) (handle.Handle, error) {
			return handle.NewBlob([]byte("img:"+url), "image/png"), nil
		}),
		StartDelay:        5 * time.Millisecond,
		ScaleDebounce:     10 * time.Millisecond,
		DedupPollInterval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("loader.New: %v", err)
	}
	srv := httptest.NewServer(httpapi.NewMux(l))
	t.Cleanup(func() {
		srv.Close()
		_ = l.Close()
	})
	return srv
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := mainWithIO(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestMainWithArgs_NoArgs_ShowsUsageAndExit2(t *testing.T) {
	code, out, _ := run(t)
	if code != 2 {
		t.Fatalf("expected exit code 2 for no args, got %d", code)
	}
	if !strings.Contains(out, "imgloadctl") {
		t.Fatalf("expected usage, got %q", out)
	}
}

func TestMainWithArgs_UnknownCommand_Exit1(t *testing.T) {
	if code, _, _ := run(t, "wat"); code != 1 {
		t.Fatalf("expected exit code 1 for unknown command, got %d", code)
	}
}

func TestMainWithArgs_BadEnvironment_Exit1(t *testing.T) {
	t.Setenv("IMGLOADCTL_TIMEOUT", "soon")
	code, _, errOut := run(t, "status")
	if code != 1 || !strings.Contains(errOut, "environment") {
		t.Fatalf("expected environment error, got %d %q", code, errOut)
	}
}

func TestMainWithArgs_RegisterWaitAndStatus(t *testing.T) {
	srv := newTestServer(t)

	code, out, errOut := run(t, "--server", srv.URL, "register", "img-1", "http://cdn/img-1/640x480.jpg",
		"--thumbnail", "http://cdn/img-1/thumb.jpg", "--priority", "high", "--wait", "loaded", "--timeout", "3s")
	if code != 0 {
		t.Fatalf("register: exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "img-1") || !strings.Contains(out, "loaded") {
		t.Fatalf("unexpected register output %q", out)
	}

	code, out, errOut = run(t, "--server", srv.URL, "status")
	if code != 0 {
		t.Fatalf("status: exit %d: %s", code, errOut)
	}
	for _, want := range []string{"fetches:", "ID", "img-1", "loaded", "high", "1.2 MiB"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q:\n%s", want, out)
		}
	}

	code, out, _ = run(t, "--server", srv.URL, "--json", "status")
	if code != 0 {
		t.Fatalf("status --json: exit %d", code)
	}
	var st types.StatusResponse
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode status json: %v", err)
	}
	if len(st.Images) != 1 || st.Images[0].Priority != "high" {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestMainWithArgs_EnvServerAndImageCommands(t *testing.T) {
	srv := newTestServer(t)
	t.Setenv("IMGLOAD_SERVER", srv.URL)

	if code, _, errOut := run(t, "register", "a", "http://cdn/a.png", "--wait", "loaded"); code != 0 {
		t.Fatalf("register: %s", errOut)
	}
	code, out, _ := run(t, "--json", "get", "a")
	if code != 0 || !strings.Contains(out, `"state":"loaded"`) {
		t.Fatalf("get: %d %q", code, out)
	}
	if code, _, errOut := run(t, "leave", "a"); code != 0 {
		t.Fatalf("leave: %s", errOut)
	}
	if code, _, errOut := run(t, "force", "missing"); code != 1 || !strings.Contains(errOut, "404") {
		t.Fatalf("force missing: %d %q", code, errOut)
	}

	dst := filepath.Join(t.TempDir(), "a.png")
	if code, _, errOut := run(t, "blob", "http://cdn/a.png", "-o", dst); code != 0 {
		t.Fatalf("blob: %s", errOut)
	}
	if b, err := os.ReadFile(dst); err != nil || string(b) != "img:http://cdn/a.png" {
		t.Fatalf("blob file: %q %v", b, err)
	}

	code, out, _ = run(t, "watch", "a", "--until", "loaded", "--timeout", "2s")
	if code != 0 || !strings.Contains(out, "loaded") {
		t.Fatalf("watch: %d %q", code, out)
	}

	code, out, _ = run(t, "release")
	if code != 0 || !strings.Contains(out, "downgraded 0") {
		t.Fatalf("release: %d %q", code, out)
	}
	if code, _, errOut := run(t, "cancel", "a"); code != 0 {
		t.Fatalf("cancel: %s", errOut)
	}
	if code, _, errOut := run(t, "clear"); code != 0 {
		t.Fatalf("clear: %s", errOut)
	}
	code, out, _ = run(t, "status")
	if code != 0 || !strings.Contains(out, "no images registered") {
		t.Fatalf("status after clear: %d %q", code, out)
	}
}

func TestMainWithArgs_ScaleAndWait(t *testing.T) {
	srv := newTestServer(t)

	code, out, _ := run(t, "--server", srv.URL, "scale", "0.5")
	if code != 0 || !strings.Contains(out, "requested 0.5") {
		t.Fatalf("scale: %d %q", code, out)
	}
	if code, _, _ := run(t, "--server", srv.URL, "scale", "zoom"); code != 1 {
		t.Fatalf("expected exit 1 for non-numeric scale, got %d", code)
	}
	if code, _, errOut := run(t, "--server", srv.URL, "scale", "0"); code != 1 || !strings.Contains(errOut, "400") {
		t.Fatalf("expected 400 for zero scale, got %d %q", code, errOut)
	}
	if code, _, errOut := run(t, "--server", srv.URL, "wait", "--within", "2s"); code != 0 {
		t.Fatalf("wait: %s", errOut)
	}
}

func TestMainWithArgs_Completion(t *testing.T) {
	code, out, _ := run(t, "completion", "bash")
	if code != 0 || !strings.Contains(out, "imgloadctl") {
		t.Fatalf("completion: %d", code)
	}
}

func TestHumanBytes(t *testing.T) {
	cases := map[int64]string{
		0:             "0 B",
		1023:          "1023 B",
		1024:          "1.0 KiB",
		640 * 480 * 4: "1.2 MiB",
		500 << 20:     "500.0 MiB",
		3 << 30:       "3.0 GiB",
	}
	for in, want := range cases {
		if got := humanBytes(in); got != want {
			t.Fatalf("humanBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
