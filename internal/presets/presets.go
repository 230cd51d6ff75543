// Package presets stores named system prompts in a KV store.
package presets

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"

	"github.com/kalambet/ollachat/internal/storage"
)

// StorageKey is the KV key holding the name -> prompt map.
const StorageKey = "presetPrompts"

var (
	// ErrNotFound is returned when no preset has the requested name.
	ErrNotFound = errors.New("preset not found")

	// ErrEmptyName is returned when saving a preset without a name.
	ErrEmptyName = errors.New("preset name is empty")

	// ErrUnsupportedFile is returned by ImportFile for unknown extensions.
	ErrUnsupportedFile = errors.New("unsupported preset file type")
)

// Manager reads and writes presets. Writes are read-modify-write on a single
// key, so they are serialized.
type Manager struct {
	kv storage.KV
	mu sync.Mutex
}

// NewManager creates a Manager backed by kv.
func NewManager(kv storage.KV) *Manager {
	return &Manager{kv: kv}
}

// load returns the stored presets. A value that no longer decodes reads as
// no presets, so the next Save replaces it.
func (m *Manager) load() (map[string]string, error) {
	all := map[string]string{}
	_, err := storage.GetJSON(m.kv, StorageKey, &all)
	if errors.Is(err, storage.ErrCorrupt) {
		slog.Warn("ignoring unreadable presets", "error", err)
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading presets: %w", err)
	}
	if all == nil {
		all = map[string]string{}
	}
	return all, nil
}

// All returns a copy of every stored preset.
func (m *Manager) All() (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load()
}

// List returns preset names in ascending order.
func (m *Manager) List() ([]string, error) {
	all, err := m.All()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Get returns the prompt saved under name.
func (m *Manager) Get(name string) (string, error) {
	all, err := m.All()
	if err != nil {
		return "", err
	}
	prompt, ok := all[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return prompt, nil
}

// Save creates or replaces the preset called name.
func (m *Manager) Save(name, prompt string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.load()
	if err != nil {
		return err
	}
	all[name] = prompt
	return storage.SetJSON(m.kv, StorageKey, all)
}

// Delete removes the preset called name.
func (m *Manager) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.load()
	if err != nil {
		return err
	}
	if _, ok := all[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(all, name)
	return storage.SetJSON(m.kv, StorageKey, all)
}

// ImportFile saves the text of a .txt, .md or .pdf file as a preset and
// returns the imported prompt.
func (m *Manager) ImportFile(name, path string) (string, error) {
	prompt, err := ReadPromptFile(path)
	if err != nil {
		return "", err
	}
	if err := m.Save(name, prompt); err != nil {
		return "", err
	}
	return prompt, nil
}

// ReadPromptFile extracts prompt text from a file, dispatching on extension.
func ReadPromptFile(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown":
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
		return strings.TrimSpace(string(b)), nil
	case ".pdf":
		return readPDF(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(path))
	}
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
