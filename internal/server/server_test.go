package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/itstheanurag/coderunner/internal/config"
	"github.com/itstheanurag/coderunner/internal/sandbox/sandboxtest"
	"github.com/itstheanurag/coderunner/internal/workspace"
	"github.com/rs/zerolog"
)

// testChdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func testChdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	testChdir(t, t.TempDir())
	conf, err := config.LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	conf.Workspace.Root = filepath.Join(t.TempDir(), workspace.DirName)
	conf.Sandbox.Binary = sandboxtest.FakeFirejail(t)
	return conf
}

func newTestServer(t *testing.T, conf *config.Config) *httptest.Server {
	t.Helper()
	logger := zerolog.Nop()
	s, err := New(conf, &logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.startBackground()
	t.Cleanup(s.cancelFunc)

	ts := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(b)
}

func TestRoutes(t *testing.T) {
	ts := newTestServer(t, testConfig(t))

	tests := []struct {
		method, path, body string
		code               int
		contains           string
	}{
		{http.MethodGet, "/health", "", http.StatusOK, "ok"},
		{http.MethodGet, "/metrics", "", http.StatusOK, "coderunner_workspace_entries"},
		{http.MethodGet, "/api/languages", "", http.StatusOK, `"language":"C++"`},
		{http.MethodGet, "/api", "", http.StatusMethodNotAllowed, ""},
		{http.MethodPost, "/api", `{"language":"Java","source_code":"x","time_limit":5}`, http.StatusBadRequest, "invalid language"},
		{http.MethodPost, "/api", `{"language":"Python3","source_code":"x","time_limit":11}`, http.StatusBadRequest, "time limit must be between 1..10 (seconds)"},
	}

	for _, tc := range tests {
		code, body := do(t, tc.method, ts.URL+tc.path, tc.body)
		if code != tc.code {
			t.Errorf("%s %s: code = %d, want %d", tc.method, tc.path, code, tc.code)
		}
		if !strings.Contains(body, tc.contains) {
			t.Errorf("%s %s: body %q lacks %q", tc.method, tc.path, body, tc.contains)
		}
	}
}

func TestStartupSweep(t *testing.T) {
	conf := testConfig(t)
	if err := os.MkdirAll(filepath.Join(conf.Workspace.Root, "project", "src"), 0750); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(conf.Workspace.Root, "5f1b2c3d-4e5f-4a6b-8c7d-9e0f1a2b3c4d.c")
	foreign := filepath.Join(conf.Workspace.Root, "important-notes.txt")
	for _, path := range []string{stale, foreign} {
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	newTestServer(t, conf)

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale file survived startup: %v", err)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Errorf("foreign file removed at startup: %v", err)
	}
	if _, err := os.Stat(filepath.Join(conf.Workspace.Root, "project", "src")); err != nil {
		t.Errorf("foreign directory removed at startup: %v", err)
	}
}

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
}

func TestExecuteEndToEnd(t *testing.T) {
	requirePython(t)
	ts := newTestServer(t, testConfig(t))

	code, body := do(t, http.MethodPost, ts.URL+"/api", `{"language":"Python3","source_code":"print(input())","input":"hello\n","time_limit":5}`)
	if code != http.StatusOK {
		t.Fatalf("code = %d, body %q", code, body)
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatal(err)
	}
	if out["status"] != "Ok" || out["message"] != "hello\n" {
		t.Errorf("outcome = %v", out)
	}
}

func TestExecuteThroughWorkers(t *testing.T) {
	requirePython(t)
	conf := testConfig(t)
	conf.Admission.Workers = 2
	ts := newTestServer(t, conf)

	code, body := do(t, http.MethodPost, ts.URL+"/api", `{"language":"Python3","source_code":"import sys; sys.stderr.write('bad')","time_limit":2}`)
	if code != http.StatusOK {
		t.Fatalf("code = %d, body %q", code, body)
	}
	if !strings.Contains(body, `"status":"RuntimeError"`) || !strings.Contains(body, `"message":"bad"`) {
		t.Errorf("body = %s", body)
	}
}

func TestRateLimited(t *testing.T) {
	conf := testConfig(t)
	conf.RateLimit.Enabled = true
	conf.RateLimit.PerIPRPS = 0.001
	conf.RateLimit.PerIPBurst = 1
	ts := newTestServer(t, conf)

	payload := `{"language":"Java","source_code":"x","time_limit":5}`
	if code, _ := do(t, http.MethodPost, ts.URL+"/api", payload); code != http.StatusBadRequest {
		t.Fatalf("first request: code = %d, want 400", code)
	}
	if code, _ := do(t, http.MethodPost, ts.URL+"/api", payload); code != http.StatusTooManyRequests {
		t.Errorf("second request: code = %d, want 429", code)
	}
	if code, _ := do(t, http.MethodGet, ts.URL+"/health", ""); code != http.StatusOK {
		t.Errorf("health should not be rate limited, got %d", code)
	}
}

func TestRejectsInvalidTrustedProxy(t *testing.T) {
	conf := testConfig(t)
	conf.RateLimit.Enabled = true
	conf.RateLimit.TrustedProxies = []string{"proxy.internal"}

	logger := zerolog.Nop()
	if _, err := New(conf, &logger); err == nil {
		t.Fatal("New accepted an invalid trusted proxy")
	}
}
