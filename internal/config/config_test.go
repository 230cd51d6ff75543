package config

import (
	"fmt"
	"strconv"
	"strings"
	"testing"
)

// mapBackend is an in-memory ConfigBackend for tests.
type mapBackend struct {
	data map[string]string
}

func newMapBackend(kv map[string]string) *mapBackend {
	if kv == nil {
		kv = map[string]string{}
	}
	return &mapBackend{data: kv}
}

func (m *mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return 0, false, nil
	}
	var i int
	if _, err := fmt.Sscanf(v, "%d", &i); err != nil {
		return 0, true, err
	}
	return i, true, nil
}

func (m *mapBackend) GetFloat(key string) (float64, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	return f, true, err
}

func (m *mapBackend) SetFloat(key string, val float64) error {
	m.data[key] = strconv.FormatFloat(val, 'g', -1, 64)
	return nil
}

func (m *mapBackend) SetString(key, val string) error {
	m.data[key] = val
	return nil
}

func (m *mapBackend) SetInt(key string, val int) error {
	m.data[key] = fmt.Sprintf("%d", val)
	return nil
}

func (m *mapBackend) Delete(key string) error {
	delete(m.data, key)
	return nil
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied with an empty backend.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMapBackend(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Ollama.BaseURL != "http://localhost:11434/api" {
		t.Errorf("Ollama.BaseURL = %q", cfg.Ollama.BaseURL)
	}
	if cfg.Chat.Temperature != 0.7 {
		t.Errorf("Chat.Temperature = %v, want 0.7", cfg.Chat.Temperature)
	}
	if cfg.Chat.ContextLength != 4096 {
		t.Errorf("Chat.ContextLength = %d, want 4096", cfg.Chat.ContextLength)
	}
	if cfg.Chat.Model != "" {
		t.Errorf("Chat.Model = %q, want empty", cfg.Chat.Model)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" || cfg.Log.File != "" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
}

// TestBackendValues verifies that every key type is read from the backend.
func TestBackendValues(t *testing.T) {
	clearEnv(t)

	b := newMapBackend(map[string]string{
		"server.port":         "5000",
		"ollama.base_url":     "http://gpu-box:11434/api",
		"ollama.timeout":      "2m",
		"chat.model":          "mistral-nemo",
		"chat.temperature":    "1.1",
		"chat.context_length": "8192",
		"chat.system_prompt":  "Be brief.",
		"storage.data_dir":    "/tmp/ollachat-test",
		"log.level":           "debug",
		"log.format":          "json",
		"log.file":            "/tmp/ollachat.log",
	})
	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.Ollama.BaseURL != "http://gpu-box:11434/api" {
		t.Errorf("Ollama.BaseURL = %q", cfg.Ollama.BaseURL)
	}
	if d, _ := cfg.Ollama.RequestTimeout(); d.Minutes() != 2 {
		t.Errorf("RequestTimeout = %v, want 2m", d)
	}
	if cfg.Chat.Model != "mistral-nemo" || cfg.Chat.Temperature != 1.1 || cfg.Chat.ContextLength != 8192 {
		t.Errorf("Chat = %+v", cfg.Chat)
	}
	if cfg.Chat.SystemPrompt != "Be brief." {
		t.Errorf("Chat.SystemPrompt = %q", cfg.Chat.SystemPrompt)
	}
	if cfg.Storage.DataDir != "/tmp/ollachat-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" || cfg.Log.File != "/tmp/ollachat.log" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

// TestEnvOverride verifies that environment variables override backend values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("OLLACHAT_CHAT_MODEL", "env-model")
	t.Setenv("OLLACHAT_CHAT_TEMPERATURE", "0.2")
	t.Setenv("OLLACHAT_SERVER_PORT", "6000")

	cfg, err := loadWith(newMapBackend(map[string]string{"chat.model": "file-model"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Chat.Model != "env-model" {
		t.Errorf("Chat.Model = %q, want env-model", cfg.Chat.Model)
	}
	if cfg.Chat.Temperature != 0.2 {
		t.Errorf("Chat.Temperature = %v, want 0.2", cfg.Chat.Temperature)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
}

// TestEnvOverride_BadValueKeepsDefault verifies unparsable env values are ignored.
func TestEnvOverride_BadValueKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("OLLACHAT_CHAT_CONTEXT_LENGTH", "lots")

	cfg, err := loadWith(newMapBackend(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Chat.ContextLength != 4096 {
		t.Errorf("Chat.ContextLength = %d, want default 4096", cfg.Chat.ContextLength)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		kv   map[string]string
		want string
	}{
		{"bad url", map[string]string{"ollama.base_url": "localhost:11434"}, "ollama.base_url"},
		{"bad timeout", map[string]string{"ollama.timeout": "soon"}, "ollama.timeout"},
		{"bad port", map[string]string{"server.port": "70000"}, "server.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := loadWith(newMapBackend(tt.kv))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestRequestTimeout_Unset(t *testing.T) {
	for _, v := range []string{"", "0"} {
		d, err := OllamaConfig{Timeout: v}.RequestTimeout()
		if err != nil || d != 0 {
			t.Errorf("RequestTimeout(%q) = %v, %v; want 0, nil", v, d, err)
		}
	}
}

func TestSetKey(t *testing.T) {
	b := newMapBackend(nil)

	if err := setKeyWith(b, "chat.model", "llama3.2"); err != nil {
		t.Fatalf("set string: %v", err)
	}
	if err := setKeyWith(b, "chat.context_length", "2048"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if err := setKeyWith(b, "chat.temperature", "0.3"); err != nil {
		t.Fatalf("set float: %v", err)
	}

	clearEnv(t)
	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Chat.Model != "llama3.2" || cfg.Chat.ContextLength != 2048 || cfg.Chat.Temperature != 0.3 {
		t.Errorf("Chat = %+v", cfg.Chat)
	}
}

func TestSetKey_Errors(t *testing.T) {
	b := newMapBackend(nil)
	if err := setKeyWith(b, "chat.context_length", "big"); err == nil {
		t.Error("expected error for non-integer")
	}
	if err := setKeyWith(b, "chat.temperature", "hot"); err == nil {
		t.Error("expected error for non-number")
	}
	if err := setKeyWith(b, "proxy.api_key", "x"); err == nil || !strings.Contains(err.Error(), "unknown config key") {
		t.Errorf("err = %v, want unknown key", err)
	}
}

func TestShowAll(t *testing.T) {
	cfg := defaults()
	infos := ShowAll(cfg)
	if len(infos) != len(ValidKeys()) {
		t.Fatalf("ShowAll returned %d keys, ValidKeys %d", len(infos), len(ValidKeys()))
	}
	found := false
	for _, ki := range infos {
		if ki.Key == "chat.context_length" {
			found = true
			if ki.Value != "4096" || ki.EnvVar != "OLLACHAT_CHAT_CONTEXT_LENGTH" {
				t.Errorf("chat.context_length = %+v", ki)
			}
		}
	}
	if !found {
		t.Error("chat.context_length missing from ShowAll")
	}
}
