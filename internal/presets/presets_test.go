package presets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kalambet/ollachat/internal/storage"
)

func TestSaveGetList(t *testing.T) {
	m := NewManager(storage.NewMemory())

	names, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("List on empty store = %v", names)
	}

	m.Save("writer", "You write prose.")
	m.Save("coder", "You write Go.")

	names, _ = m.List()
	if len(names) != 2 || names[0] != "coder" || names[1] != "writer" {
		t.Errorf("List = %v, want [coder writer]", names)
	}

	got, err := m.Get("coder")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "You write Go." {
		t.Errorf("Get = %q", got)
	}
}

func TestSaveOverwrites(t *testing.T) {
	m := NewManager(storage.NewMemory())
	m.Save("a", "one")
	m.Save("a", "two")
	if got, _ := m.Get("a"); got != "two" {
		t.Errorf("Get = %q, want two", got)
	}
}

func TestSaveEmptyName(t *testing.T) {
	m := NewManager(storage.NewMemory())
	if err := m.Save("  ", "x"); !errors.Is(err, ErrEmptyName) {
		t.Errorf("err = %v, want ErrEmptyName", err)
	}
}

func TestGetMissing(t *testing.T) {
	m := NewManager(storage.NewMemory())
	if _, err := m.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	m := NewManager(storage.NewMemory())
	m.Save("a", "x")
	if err := m.Delete("a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after Delete err = %v", err)
	}
	if err := m.Delete("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete err = %v, want ErrNotFound", err)
	}
}

func TestStoredUnderPresetKey(t *testing.T) {
	kv := storage.NewMemory()
	NewManager(kv).Save("coder", "You write Go.")

	var raw map[string]string
	found, err := storage.GetJSON(kv, StorageKey, &raw)
	if err != nil || !found {
		t.Fatalf("GetJSON = %v, %v", found, err)
	}
	if raw["coder"] != "You write Go." {
		t.Errorf("stored map = %v", raw)
	}
}

func TestCorruptPresetsReadEmpty(t *testing.T) {
	kv := storage.NewMemory()
	kv.Set(StorageKey, []byte("not json"))
	m := NewManager(kv)

	names, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("List = %v, want empty", names)
	}
	if _, err := m.Get("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get err = %v, want ErrNotFound", err)
	}

	if err := m.Save("a", "b"); err != nil {
		t.Fatalf("Save over corrupt value: %v", err)
	}
	if got, err := m.Get("a"); err != nil || got != "b" {
		t.Errorf("Get after save = %q, %v", got, err)
	}
}

// failingKV fails every read.
type failingKV struct{ storage.Memory }

func (f *failingKV) Get(string) ([]byte, error) { return nil, errors.New("disk on fire") }

func TestReadFailurePropagates(t *testing.T) {
	m := NewManager(&failingKV{})
	if err := m.Save("a", "b"); err == nil {
		t.Fatal("expected the store's read error")
	}
	if _, err := m.List(); err == nil {
		t.Fatal("expected the store's read error from List")
	}
}

func TestImportFile_Text(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reviewer.md")
	if err := os.WriteFile(path, []byte("\nYou review code carefully.\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewManager(storage.NewMemory())
	prompt, err := m.ImportFile("reviewer", path)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if prompt != "You review code carefully." {
		t.Errorf("prompt = %q", prompt)
	}
	if got, _ := m.Get("reviewer"); got != prompt {
		t.Errorf("stored = %q", got)
	}
}

func TestImportFile_Unsupported(t *testing.T) {
	m := NewManager(storage.NewMemory())
	if _, err := m.ImportFile("x", "prompt.docx"); !errors.Is(err, ErrUnsupportedFile) {
		t.Errorf("err = %v, want ErrUnsupportedFile", err)
	}
}

func TestImportFile_Missing(t *testing.T) {
	m := NewManager(storage.NewMemory())
	if _, err := m.ImportFile("x", filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestImportFile_BadPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	os.WriteFile(path, []byte("not a pdf"), 0o644)

	m := NewManager(storage.NewMemory())
	if _, err := m.ImportFile("x", path); err == nil {
		t.Error("expected error for invalid pdf")
	}
	if _, err := m.Get("x"); !errors.Is(err, ErrNotFound) {
		t.Error("failed import must not save a preset")
	}
}
