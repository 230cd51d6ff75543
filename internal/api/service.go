package api

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/kalambet/ollachat/internal/chat"
	"github.com/kalambet/ollachat/internal/history"
	"github.com/kalambet/ollachat/internal/ollama"
	"github.com/kalambet/ollachat/internal/presets"
)

// ErrBusy is returned when a reply is requested while another is streaming.
var ErrBusy = errors.New("a reply is already being generated")

// ModelLister lists installed models. Implemented by *ollama.Client.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Service is the shared application layer behind the HTTP and MCP surfaces.
// It owns the single-reply-in-flight rule for the session.
type Service struct {
	Session *chat.Session
	Models  ModelLister
	Presets *presets.Manager
	History *history.Store

	generating atomic.Bool
}

// Generating reports whether a reply is currently streaming.
func (s *Service) Generating() bool {
	return s.generating.Load()
}

// begin claims the session for one operation that reads and rewrites the
// transcript. Callers must run end when done.
func (s *Service) begin() (end func(), err error) {
	if !s.generating.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	return func() { s.generating.Store(false) }, nil
}

// Send streams a reply to text. Only one Send runs at a time; a concurrent
// call fails with ErrBusy without contacting the model server.
func (s *Service) Send(ctx context.Context, text string, onDelta func(string)) (string, error) {
	end, err := s.begin()
	if err != nil {
		return "", err
	}
	defer end()
	return s.Session.Send(ctx, text, onDelta)
}

// Reset saves the current transcript to history and clears it. The saved
// entry is zero when the transcript was empty.
func (s *Service) Reset() (history.Entry, error) {
	end, err := s.begin()
	if err != nil {
		return history.Entry{}, err
	}
	defer end()
	entry, err := s.History.Save(s.Session.Transcript())
	if err != nil {
		return history.Entry{}, err
	}
	s.Session.Clear()
	return entry, nil
}

// LoadHistory replaces the transcript with a saved session.
func (s *Service) LoadHistory(id string) (history.Entry, error) {
	end, err := s.begin()
	if err != nil {
		return history.Entry{}, err
	}
	defer end()
	entry, err := s.History.Get(id)
	if err != nil {
		return history.Entry{}, err
	}
	s.Session.Restore(entry.Messages)
	return entry, nil
}

// ApplyPreset makes a saved preset the session's system prompt.
func (s *Service) ApplyPreset(name string) (string, error) {
	prompt, err := s.Presets.Get(name)
	if err != nil {
		return "", err
	}
	s.Session.SetSystemPrompt(prompt)
	return prompt, nil
}

// SelectModel sets the session model after checking it is installed.
func (s *Service) SelectModel(ctx context.Context, name string) error {
	models, err := s.Models.ListModels(ctx)
	if err != nil {
		return err
	}
	for _, m := range models {
		if m == name {
			s.Session.SetModel(name)
			return nil
		}
	}
	return fmt.Errorf("%w: %q is not installed", ErrUnknownModel, name)
}

// ErrUnknownModel is returned by SelectModel for names the server lacks.
var ErrUnknownModel = errors.New("unknown model")

// errorType maps an error to the type field of the JSON error envelope.
func errorType(err error) string {
	switch {
	case errors.Is(err, ollama.ErrServiceUnavailable), errors.Is(err, ollama.ErrMalformedResponse),
		errors.Is(err, ollama.ErrRequestFailed):
		return "upstream_error"
	case errors.Is(err, ollama.ErrStreamAborted):
		return "aborted"
	case errors.Is(err, chat.ErrNoModelSelected), errors.Is(err, ErrUnknownModel):
		return "invalid_request_error"
	case errors.Is(err, ErrBusy):
		return "conflict"
	default:
		return "api_error"
	}
}
