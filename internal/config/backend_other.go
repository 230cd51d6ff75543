//go:build !darwin

package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

func defaultDataDir() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "ollachat-data"
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "ollachat")
}

func configFilePath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", "ollachat", "config.json")
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "ollachat", "config.json")
}

// fileBackend keeps settings in one flat JSON object, keyed by the dotted
// config key ("chat.model", "server.port", ...).
type fileBackend struct {
	path   string
	values map[string]any
}

func newPlatformBackend() ConfigBackend {
	b := &fileBackend{path: configFilePath(), values: map[string]any{}}
	b.load()
	return b
}

// load reads the file if present. A missing file is an empty config; an
// unreadable one is reported and ignored.
func (b *fileBackend) load() {
	raw, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return
	}
	if err == nil {
		err = json.Unmarshal(raw, &b.values)
	}
	if err != nil {
		slog.Warn("ignoring unreadable config file", "path", b.path, "error", err)
		b.values = map[string]any{}
	}
}

// save writes through a temp file so a crash never leaves half a config.
func (b *fileBackend) save() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	raw, err := json.MarshalIndent(b.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing config: %w", err)
	}
	return nil
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	v, ok := b.values[key]
	if !ok {
		return "", false, nil
	}
	if s, isStr := v.(string); isStr {
		return s, true, nil
	}
	return fmt.Sprint(v), true, nil
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	f, ok, err := b.GetFloat(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	if f != math.Trunc(f) || f < math.MinInt || f > math.MaxInt {
		return 0, true, fmt.Errorf("%s: %v is not an integer", key, f)
	}
	return int(f), true, nil
}

// GetFloat accepts JSON numbers and numeric strings, since hand-edited files
// often quote values.
func (b *fileBackend) GetFloat(key string) (float64, bool, error) {
	v, ok := b.values[key]
	if !ok {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, true, fmt.Errorf("%s: %q is not a number", key, n)
		}
		return f, true, nil
	default:
		return 0, true, fmt.Errorf("%s: unexpected %T value", key, v)
	}
}

func (b *fileBackend) SetString(key, val string) error {
	b.values[key] = val
	return b.save()
}

func (b *fileBackend) SetInt(key string, val int) error {
	b.values[key] = val
	return b.save()
}

func (b *fileBackend) SetFloat(key string, val float64) error {
	b.values[key] = val
	return b.save()
}

func (b *fileBackend) Delete(key string) error {
	delete(b.values, key)
	return b.save()
}
