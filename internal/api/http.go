package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/ollachat/internal/chat"
	"github.com/kalambet/ollachat/internal/history"
	"github.com/kalambet/ollachat/internal/ollama"
	"github.com/kalambet/ollachat/internal/presets"
)

const maxRequestBodySize = 1 << 20 // 1MB

// NewHandler returns the local HTTP API for svc.
func NewHandler(svc *Service) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/models", handleModels(svc))

	r.Get("/settings", handleGetSettings(svc))
	r.Patch("/settings", handlePatchSettings(svc))

	r.Get("/transcript", handleTranscript(svc))
	r.Post("/chat", handleChat(svc))
	r.Post("/reset", handleReset(svc))

	r.Route("/presets", func(r chi.Router) {
		r.Get("/", handleListPresets(svc))
		r.Get("/{name}", handleGetPreset(svc))
		r.Put("/{name}", handlePutPreset(svc))
		r.Delete("/{name}", handleDeletePreset(svc))
		r.Post("/{name}/apply", handleApplyPreset(svc))
	})

	r.Route("/history", func(r chi.Router) {
		r.Get("/", handleListHistory(svc))
		r.Get("/{id}", handleGetHistory(svc))
		r.Post("/{id}/load", handleLoadHistory(svc))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleModels(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models, err := svc.Models.ListModels(r.Context())
		if err != nil {
			httpError(w, http.StatusBadGateway, errorType(err), "failed to list models: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"models":   models,
			"selected": svc.Session.Config().Model,
		})
	}
}

func handleGetSettings(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Session.Config())
	}
}

// settingsPatch holds the fields a PATCH /settings body may carry.
type settingsPatch struct {
	Model         *string  `json:"model"`
	Temperature   *float64 `json:"temperature"`
	ContextLength *int     `json:"context_length"`
	SystemPrompt  *string  `json:"system_prompt"`
}

func handlePatchSettings(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p settingsPatch
		if !decodeBody(w, r, &p) {
			return
		}

		if p.Model != nil {
			svc.Session.SetModel(strings.TrimSpace(*p.Model))
		}
		if p.Temperature != nil {
			svc.Session.SetTemperature(chat.ClampTemperature(*p.Temperature))
		}
		// Out-of-range context lengths are ignored, not clamped.
		if p.ContextLength != nil && chat.ValidContextLength(*p.ContextLength) {
			svc.Session.SetContextLength(*p.ContextLength)
		}
		if p.SystemPrompt != nil {
			svc.Session.SetSystemPrompt(*p.SystemPrompt)
		}

		writeJSON(w, http.StatusOK, svc.Session.Config())
	}
}

func handleTranscript(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"messages":   svc.Session.Transcript(),
			"generating": svc.Generating(),
		})
	}
}

type chatRequest struct {
	Message string `json:"message"`
}

// chatEvent is one line of the NDJSON reply stream.
type chatEvent struct {
	Delta   string `json:"delta,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

func handleChat(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if !decodeBody(w, r, &req) {
			return
		}
		text := strings.TrimSpace(req.Message)
		if text == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required and must not be empty")
			return
		}
		if svc.Session.Config().Model == "" {
			httpError(w, http.StatusBadRequest, errorType(chat.ErrNoModelSelected), "%v", chat.ErrNoModelSelected)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		// Claim the session before any header goes out so a loser gets 409.
		end, err := svc.begin()
		if err != nil {
			httpError(w, http.StatusConflict, errorType(err), "%v", err)
			return
		}
		defer end()

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Cache-Control", "no-cache")

		enc := json.NewEncoder(w)
		emit := func(ev chatEvent) {
			if err := enc.Encode(ev); err != nil {
				slog.Debug("writing chat event", "error", err)
				return
			}
			flusher.Flush()
		}

		start := time.Now()
		reply, err := svc.Session.Send(r.Context(), text, func(delta string) {
			emit(chatEvent{Delta: delta})
		})
		if err != nil {
			if errors.Is(err, ollama.ErrStreamAborted) {
				slog.Info("chat stream aborted by client", "duration_ms", time.Since(start).Milliseconds())
			} else {
				slog.Warn("chat request failed", "error", err)
			}
			emit(chatEvent{Error: err.Error()})
			return
		}

		slog.Debug("chat reply complete", "chars", len(reply), "duration_ms", time.Since(start).Milliseconds())
		emit(chatEvent{Done: true, Content: reply})
	}
}

func handleReset(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := svc.Reset()
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrBusy) {
				status = http.StatusConflict
			}
			httpError(w, status, errorType(err), "reset failed: %v", err)
			return
		}
		resp := map[string]any{"saved": entry.ID != ""}
		if entry.ID != "" {
			resp["history_id"] = entry.ID
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// --- Presets ---

func handleListPresets(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := svc.Presets.All()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, all)
	}
}

func handleGetPreset(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		prompt, err := svc.Presets.Get(name)
		if err != nil {
			presetError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"name": name, "prompt": prompt})
	}
}

func handlePutPreset(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Prompt string `json:"prompt"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		name := chi.URLParam(r, "name")
		if err := svc.Presets.Save(name, body.Prompt); err != nil {
			presetError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"name": name, "prompt": body.Prompt})
	}
}

func handleDeletePreset(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Presets.Delete(chi.URLParam(r, "name")); err != nil {
			presetError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleApplyPreset(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := svc.ApplyPreset(chi.URLParam(r, "name")); err != nil {
			presetError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, svc.Session.Config())
	}
}

func presetError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, presets.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, presets.ErrEmptyName):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

// --- History ---

type historySummary struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Preview      string    `json:"preview"`
	MessageCount int       `json:"message_count"`
}

func handleListHistory(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := svc.History.List()
		out := make([]historySummary, len(entries))
		for i, e := range entries {
			out[i] = historySummary{ID: e.ID, Timestamp: e.Timestamp, Preview: e.Preview, MessageCount: len(e.Messages)}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetHistory(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := svc.History.Get(chi.URLParam(r, "id"))
		if err != nil {
			historyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

func handleLoadHistory(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := svc.LoadHistory(chi.URLParam(r, "id"))
		if err != nil {
			historyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": entry.ID, "messages": entry.Messages})
	}
}

func historyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, history.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, ErrBusy):
		httpError(w, http.StatusConflict, errorType(err), "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

// --- helpers ---

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
