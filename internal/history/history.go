// Package history keeps a bounded, most-recent-first list of finished chat
// sessions in a KV store.
package history

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/ollachat/internal/ollama"
	"github.com/kalambet/ollachat/internal/storage"
)

const (
	// StorageKey is the KV key holding the JSON entry list.
	StorageKey = "chatHistory"

	// MaxEntries is the number of sessions kept.
	MaxEntries = 10

	previewRunes = 50
)

// ErrNotFound is returned when no entry has the requested ID.
var ErrNotFound = errors.New("history entry not found")

// Entry is one saved chat session.
type Entry struct {
	ID        string           `json:"id"`
	Timestamp time.Time        `json:"timestamp"`
	Messages  []ollama.Message `json:"messages"`
	Preview   string           `json:"preview"`
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Store reads and writes chat history.
type Store struct {
	kv    storage.KV
	clock Clock
	mu    sync.Mutex
}

// NewStore creates a Store backed by kv.
func NewStore(kv storage.KV) *Store {
	return &Store{kv: kv, clock: realClock{}}
}

// NewStoreWithClock creates a Store with a custom clock (for testing).
func NewStoreWithClock(kv storage.KV, clock Clock) *Store {
	return &Store{kv: kv, clock: clock}
}

// load returns the stored entries. Unreadable data is treated as an empty
// history.
func (s *Store) load() []Entry {
	var entries []Entry
	if _, err := storage.GetJSON(s.kv, StorageKey, &entries); err != nil {
		slog.Warn("ignoring unreadable chat history", "error", err)
		return nil
	}
	return entries
}

// Save records messages as the newest entry and drops the oldest entries
// beyond MaxEntries. An empty transcript is not saved and yields a zero Entry.
func (s *Store) Save(messages []ollama.Message) (Entry, error) {
	if len(messages) == 0 {
		return Entry{}, nil
	}

	msgs := make([]ollama.Message, len(messages))
	copy(msgs, messages)
	e := Entry{
		ID:        uuid.New().String(),
		Timestamp: s.clock.Now().UTC(),
		Messages:  msgs,
		Preview:   Preview(msgs[0].Content),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := append([]Entry{e}, s.load()...)
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}
	if err := storage.SetJSON(s.kv, StorageKey, entries); err != nil {
		return Entry{}, fmt.Errorf("saving chat history: %w", err)
	}
	return e, nil
}

// List returns all entries, most recent first.
func (s *Store) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Get returns the entry with the given ID.
func (s *Store) Get(id string) (Entry, error) {
	for _, e := range s.List() {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Clear removes every entry.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Remove(StorageKey); err != nil {
		return fmt.Errorf("clearing chat history: %w", err)
	}
	return nil
}

// Preview returns the first 50 runes of text followed by "...".
func Preview(text string) string {
	r := []rune(text)
	if len(r) > previewRunes {
		r = r[:previewRunes]
	}
	return string(r) + "..."
}
