// Package chat holds one conversation: its generation settings and the
// transcript of completed exchanges.
package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/kalambet/ollachat/internal/ollama"
)

// Defaults used when nothing else is configured.
const (
	DefaultTemperature   = 0.7
	DefaultContextLength = 4096
)

// ModelService is the part of the Ollama client a Session needs.
// Implemented by *ollama.Client.
type ModelService interface {
	ListModels(ctx context.Context) ([]string, error)
	ChatStream(ctx context.Context, req ollama.ChatRequest, onDelta func(string)) (ollama.ChatResult, error)
}

// GenerationConfig is the set of parameters sent with every request.
type GenerationConfig struct {
	Model         string  `json:"model"`
	Temperature   float64 `json:"temperature"`
	ContextLength int     `json:"context_length"`
	SystemPrompt  string  `json:"system_prompt"`
}

// DefaultConfig returns the initial generation settings.
func DefaultConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:   DefaultTemperature,
		ContextLength: DefaultContextLength,
	}
}

// Session is a single chat conversation.
//
// The mutex guards config and transcript snapshots only. Two concurrent Send
// calls are not serialized; callers that need one request in flight enforce
// it themselves.
type Session struct {
	svc ModelService

	mu         sync.Mutex
	cfg        GenerationConfig
	transcript []ollama.Message
}

// NewSession creates a Session with the given settings.
func NewSession(svc ModelService, cfg GenerationConfig) *Session {
	return &Session{svc: svc, cfg: cfg}
}

// Initialize selects the first installed model if none is set yet and
// returns the installed model list.
func (s *Session) Initialize(ctx context.Context) ([]string, error) {
	models, err := s.svc.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, ErrNoModels
	}

	s.mu.Lock()
	if s.cfg.Model == "" {
		s.cfg.Model = models[0]
	}
	s.mu.Unlock()
	return models, nil
}

func (s *Session) SetModel(name string) {
	s.mu.Lock()
	s.cfg.Model = name
	s.mu.Unlock()
}

func (s *Session) SetTemperature(t float64) {
	s.mu.Lock()
	s.cfg.Temperature = t
	s.mu.Unlock()
}

func (s *Session) SetContextLength(n int) {
	s.mu.Lock()
	s.cfg.ContextLength = n
	s.mu.Unlock()
}

func (s *Session) SetSystemPrompt(p string) {
	s.mu.Lock()
	s.cfg.SystemPrompt = p
	s.mu.Unlock()
}

// Config returns the current generation settings.
func (s *Session) Config() GenerationConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Transcript returns a copy of the completed exchanges.
func (s *Session) Transcript() []ollama.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ollama.Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Clear empties the transcript. Settings are kept.
func (s *Session) Clear() {
	s.mu.Lock()
	s.transcript = nil
	s.mu.Unlock()
}

// Restore replaces the transcript, e.g. with a saved history entry.
func (s *Session) Restore(messages []ollama.Message) {
	msgs := make([]ollama.Message, len(messages))
	copy(msgs, messages)
	s.mu.Lock()
	s.transcript = msgs
	s.mu.Unlock()
}

// Send streams a reply to userText. Each fragment is passed to onDelta as it
// arrives. On success the user message and the full reply are appended to the
// transcript; on failure the transcript is left as it was.
func (s *Session) Send(ctx context.Context, userText string, onDelta func(string)) (string, error) {
	s.mu.Lock()
	cfg := s.cfg
	history := make([]ollama.Message, len(s.transcript))
	copy(history, s.transcript)
	s.mu.Unlock()

	if cfg.Model == "" {
		return "", ErrNoModelSelected
	}

	messages := make([]ollama.Message, 0, len(history)+2)
	if cfg.SystemPrompt != "" {
		messages = append(messages, ollama.Message{Role: ollama.RoleSystem, Content: cfg.SystemPrompt})
	}
	messages = append(messages, history...)
	user := ollama.Message{Role: ollama.RoleUser, Content: userText}
	messages = append(messages, user)

	res, err := s.svc.ChatStream(ctx, ollama.ChatRequest{
		Model:         cfg.Model,
		Messages:      messages,
		Temperature:   cfg.Temperature,
		ContextLength: cfg.ContextLength,
	}, onDelta)
	if err != nil {
		return "", fmt.Errorf("chat with %s: %w", cfg.Model, err)
	}

	s.mu.Lock()
	s.transcript = append(s.transcript, user, ollama.Message{Role: ollama.RoleAssistant, Content: res.Content})
	s.mu.Unlock()
	return res.Content, nil
}
