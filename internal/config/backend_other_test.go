//go:build !darwin

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileBackend_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ollachat", "config.json")
	b := &fileBackend{path: path, values: map[string]any{}}

	if err := b.SetString("chat.model", "phi3.5"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	if err := b.SetInt("server.port", 4200); err != nil {
		t.Fatalf("SetInt: %v", err)
	}

	reloaded := &fileBackend{path: path, values: map[string]any{}}
	reloaded.load()

	if v, ok, _ := reloaded.GetString("chat.model"); !ok || v != "phi3.5" {
		t.Errorf("chat.model = %q, %v", v, ok)
	}
	if v, ok, err := reloaded.GetInt("server.port"); !ok || err != nil || v != 4200 {
		t.Errorf("server.port = %d, %v, %v", v, ok, err)
	}

	if err := reloaded.Delete("chat.model"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := reloaded.GetString("chat.model"); ok {
		t.Error("chat.model still present after Delete")
	}
}

func TestFileBackend_Numbers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{"chat.temperature": 0.5, "chat.context_length": "2048", "server.port": 4.5, "log.level": true}`), 0o600)

	b := &fileBackend{path: path, values: map[string]any{}}
	b.load()

	if v, ok, err := b.GetFloat("chat.temperature"); !ok || err != nil || v != 0.5 {
		t.Errorf("chat.temperature = %v, %v, %v", v, ok, err)
	}
	if v, ok, _ := b.GetString("chat.temperature"); !ok || v != "0.5" {
		t.Errorf("chat.temperature as string = %q, %v", v, ok)
	}
	if v, ok, err := b.GetInt("chat.context_length"); !ok || err != nil || v != 2048 {
		t.Errorf("quoted chat.context_length = %d, %v, %v", v, ok, err)
	}
	if _, _, err := b.GetInt("server.port"); err == nil {
		t.Error("expected error for fractional port")
	}
	if _, _, err := b.GetFloat("log.level"); err == nil {
		t.Error("expected error for a boolean read as a number")
	}
}

func TestFileBackend_SetFloatPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	b := &fileBackend{path: path, values: map[string]any{}}
	if err := b.SetFloat("chat.temperature", 1.25); err != nil {
		t.Fatalf("SetFloat: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}

	reloaded := &fileBackend{path: path, values: map[string]any{}}
	reloaded.load()
	if v, ok, err := reloaded.GetFloat("chat.temperature"); !ok || err != nil || v != 1.25 {
		t.Errorf("chat.temperature = %v, %v, %v", v, ok, err)
	}
}

func TestFileBackend_CorruptFileIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{not json`), 0o600)

	b := &fileBackend{path: path, values: map[string]any{}}
	b.load()
	if _, ok, _ := b.GetString("chat.model"); ok {
		t.Error("corrupt file should read as empty")
	}
}

func TestConfigFilePath_XDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := configFilePath(); got != filepath.Join("/tmp/xdg", "ollachat", "config.json") {
		t.Errorf("configFilePath() = %q", got)
	}
}
