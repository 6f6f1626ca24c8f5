package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// newStubEndpoint serves a fixed generateContent response and records
// the paths it was asked for.
func newStubEndpoint(t *testing.T, text string) (*httptest.Server, *[]string) {
	t.Helper()
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": %q}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 7, "candidatesTokenCount": 3, "totalTokenCount": 10}
		}`, text)
	}))
	t.Cleanup(srv.Close)
	return srv, &paths
}

// writeTestConfig writes a minimal config pointing at the stub server.
// Memory and usage stay disabled so the test never opens a database.
func writeTestConfig(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := fmt.Sprintf(`endpoint:
  base_url: %s
  api_key: test-key
model:
  name: test-model
memory:
  enabled: false
usage:
  enabled: false
`, baseURL)
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRunTask_TextOutput(t *testing.T) {
	srv, paths := newStubEndpoint(t, "Hi there")
	cfgPath := writeTestConfig(t, srv.URL)

	var out, errOut bytes.Buffer
	err := run(context.Background(), &out, &errOut, []string{"-config", cfgPath, "run", "Say", "hi"})
	if err != nil {
		t.Fatalf("run() error: %v", err)
	}

	if got := strings.TrimSpace(out.String()); got != "Hi there" {
		t.Errorf("stdout = %q, want response text only", got)
	}
	if len(*paths) != 1 {
		t.Fatalf("endpoint calls = %d, want 1", len(*paths))
	}
	if want := "/models/test-model:generateContent"; (*paths)[0] != want {
		t.Errorf("endpoint path = %q, want %q", (*paths)[0], want)
	}
}

func TestRunTask_JSONOutput(t *testing.T) {
	srv, _ := newStubEndpoint(t, "Hi there")
	cfgPath := writeTestConfig(t, srv.URL)

	var out, errOut bytes.Buffer
	err := run(context.Background(), &out, &errOut, []string{"-config", cfgPath, "-o", "json", "run", "Say hi"})
	if err != nil {
		t.Fatalf("run() error: %v", err)
	}

	var res struct {
		Response   string `json:"response"`
		Iterations int    `json:"iterations"`
		Model      string `json:"model"`
		Usage      struct {
			TotalTokens int `json:"totalTokenCount"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("stdout is not valid JSON: %v\n%s", err, out.String())
	}
	if res.Response != "Hi there" {
		t.Errorf("response = %q, want %q", res.Response, "Hi there")
	}
	if res.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", res.Iterations)
	}
	if res.Model != "test-model" {
		t.Errorf("model = %q, want test-model", res.Model)
	}
	if res.Usage.TotalTokens != 10 {
		t.Errorf("total tokens = %d, want 10", res.Usage.TotalTokens)
	}
}

func TestRunTask_EndpointFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error": {"code": 500, "message": "backend exploded", "status": "INTERNAL"}}`)
	}))
	t.Cleanup(srv.Close)
	cfgPath := writeTestConfig(t, srv.URL)

	var out, errOut bytes.Buffer
	err := run(context.Background(), &out, &errOut, []string{"-config", cfgPath, "run", "Say hi"})
	if err == nil {
		t.Fatal("run() error = nil, want fatal endpoint failure")
	}
	if !strings.Contains(err.Error(), "backend exploded") {
		t.Errorf("error = %q, want endpoint message included", err)
	}
}

func TestRunTask_ValidatesConfig(t *testing.T) {
	// A config without an API key must fail before any network call.
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := "endpoint:\n  base_url: http://127.0.0.1:1\nmodel:\n  name: test-model\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var out, errOut bytes.Buffer
	err := run(context.Background(), &out, &errOut, []string{"-config", cfgPath, "run", "Say hi"})
	if err == nil {
		t.Fatal("run() error = nil, want validation error")
	}
	if !strings.Contains(err.Error(), "api_key") {
		t.Errorf("error = %q, want api_key requirement", err)
	}
}
