package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/ollachat/internal/config"
	"github.com/kalambet/ollachat/internal/history"
	"github.com/kalambet/ollachat/internal/ollama"
	"github.com/kalambet/ollachat/internal/presets"
	"github.com/kalambet/ollachat/internal/storage"
)

type recordedRequest struct {
	Method string
	Path   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

// captureOutput redirects status output and disables color for one test.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	oldOut, oldColor := stderr, noColor
	stderr, noColor = &buf, true
	t.Cleanup(func() { stderr, noColor = oldOut, oldColor })
	return &buf
}

func TestStatusCommand_Running(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status code = %d, want 200", resp.StatusCode)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(409)
		w.Write([]byte(`{"error":{"message":"a reply is already being generated","type":"conflict"}}`))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, httpClient: ts.Client()}

	resp, err := client.get(ctx, "/chat")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 409 response")
	}
	if !strings.Contains(err.Error(), "409") {
		t.Errorf("error = %q, want it to contain '409'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestRunStatus_ServerRunning(t *testing.T) {
	out := captureOutput(t)

	ollamaSrv := newTestServer(t, map[string]string{
		"GET /api/tags": `{"models":[{"name":"llama3"}]}`,
	})
	api := newTestServer(t, map[string]string{
		"GET /health":     `{"status":"ok"}`,
		"GET /settings":   `{"model":"llama3","temperature":0.7,"context_length":4096,"system_prompt":""}`,
		"GET /transcript": `{"messages":[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}],"generating":true}`,
	})

	cfg := config.Config{}
	cfg.Server.Port = 4100
	err := runStatus(ctx, cfg, ollama.New(ollamaSrv.server.URL+"/api"), api.client())
	if err != nil {
		t.Fatalf("runStatus: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Ollama: running",
		"Server: running on port 4100",
		"Model: llama3",
		"Temperature: 0.7",
		"Context: 4096 tokens",
		"Conversation: 2 messages, generating",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunStatus_ServerStopped(t *testing.T) {
	out := captureOutput(t)

	ollamaSrv := newTestServer(t, map[string]string{})
	ollamaSrv.server.Close()
	api := newTestServer(t, map[string]string{})
	api.server.Close()

	cfg := config.Config{}
	cfg.Server.Port = 4100
	if err := runStatus(ctx, cfg, ollama.New(ollamaSrv.server.URL+"/api"), api.client()); err != nil {
		t.Fatalf("runStatus: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "Ollama: not running") {
		t.Errorf("output = %q, want Ollama not running", got)
	}
	if !strings.Contains(got, "Server: stopped on port 4100") {
		t.Errorf("output = %q, want server stopped", got)
	}
	if strings.Contains(got, "Model:") {
		t.Errorf("settings should not be queried when the server is down:\n%s", got)
	}
}

func TestWriteModels(t *testing.T) {
	var buf bytes.Buffer
	writeModels(&buf, []ollama.ModelInfo{
		{
			Name: "llama3:8b",
			Size: 4_700_000_000,
			Details: ollama.ModelDetails{
				ParameterSize:     "8.0B",
				QuantizationLevel: "Q4_0",
			},
		},
		{Name: "phi3"},
	}, "llama3:8b")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "NAME") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "* llama3:8b") {
		t.Errorf("selected model should be marked, got %q", lines[1])
	}
	for _, want := range []string{"8.0B", "Q4_0", "4.7 GB"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("row %q missing %q", lines[1], want)
		}
	}
	if !strings.HasPrefix(lines[2], "  phi3") {
		t.Errorf("unselected model row = %q", lines[2])
	}
	if !strings.Contains(lines[2], "-") {
		t.Errorf("missing details should show a dash, got %q", lines[2])
	}
}

func TestListHistory(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	listHistory(&buf, []history.Entry{
		{
			ID:        "abc-123",
			Timestamp: now.Add(-2 * time.Hour),
			Messages: []ollama.Message{
				{Role: ollama.RoleUser, Content: "hi"},
				{Role: ollama.RoleAssistant, Content: "hello"},
			},
			Preview: "hi",
		},
	}, now)

	got := buf.String()
	for _, want := range []string{"abc-123", "2 hours ago", "2 msgs", "hi"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q: %q", want, got)
		}
	}
}

func TestListHistory_Empty(t *testing.T) {
	var buf bytes.Buffer
	listHistory(&buf, nil, time.Now())
	if !strings.Contains(buf.String(), "No saved conversations") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestListPresets_Sorted(t *testing.T) {
	captureOutput(t)

	m := presets.NewManager(storage.NewMemory())
	if err := m.Save("beta", "Second prompt."); err != nil {
		t.Fatal(err)
	}
	if err := m.Save("alpha", "First prompt."); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := listPresets(&buf, m); err != nil {
		t.Fatalf("listPresets: %v", err)
	}
	got := buf.String()
	a, b := strings.Index(got, "alpha"), strings.Index(got, "beta")
	if a < 0 || b < 0 || a > b {
		t.Errorf("presets not listed in order:\n%s", got)
	}
	if !strings.Contains(got, "First prompt.") {
		t.Errorf("preview missing:\n%s", got)
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4000
	cfg.Chat.Model = "llama3"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := false
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "4000" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find server.port=4000 in ShowAll output")
	}
}

func TestSessionConfig_ClampsStoredValues(t *testing.T) {
	out := captureOutput(t)

	gc := sessionConfig(config.ChatConfig{
		Model:         "llama3",
		Temperature:   3.5,
		ContextLength: 100000,
		SystemPrompt:  "Be brief.",
	})
	if gc.Temperature != 2 || gc.ContextLength != 8192 {
		t.Errorf("clamped config = %+v", gc)
	}
	if gc.Model != "llama3" || gc.SystemPrompt != "Be brief." {
		t.Errorf("model/system prompt not carried over: %+v", gc)
	}
	if !strings.Contains(out.String(), "chat.context_length 100000 is out of range; using 8192") {
		t.Errorf("warnings = %q", out.String())
	}

	out.Reset()
	gc = sessionConfig(config.ChatConfig{Temperature: 0.7, ContextLength: 4096})
	if gc.Temperature != 0.7 || gc.ContextLength != 4096 {
		t.Errorf("in-range config changed: %+v", gc)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected warnings: %q", out.String())
	}
}
