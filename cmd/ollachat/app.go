package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/kalambet/ollachat/internal/api"
	"github.com/kalambet/ollachat/internal/chat"
	"github.com/kalambet/ollachat/internal/config"
	"github.com/kalambet/ollachat/internal/history"
	"github.com/kalambet/ollachat/internal/logging"
	"github.com/kalambet/ollachat/internal/ollama"
	"github.com/kalambet/ollachat/internal/presets"
	"github.com/kalambet/ollachat/internal/storage"
)

// app bundles everything a command needs: config, logging, the Ollama
// client, the KV store and the chat service built on them.
type app struct {
	cfg    config.Config
	client *ollama.Client
	store  *storage.Store
	svc    *api.Service

	logCloser io.Closer
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, logCloser, err := logging.Init(cfg.Log, os.Stderr)
	if err != nil {
		printWarning("could not open log file %s: %v", cfg.Log.File, err)
	}

	timeout, err := cfg.Ollama.RequestTimeout()
	if err != nil {
		logCloser.Close()
		return nil, err
	}
	client := ollama.New(cfg.Ollama.BaseURL,
		ollama.WithHTTPClient(&http.Client{Timeout: timeout}),
		ollama.WithLogger(logger),
	)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	session := chat.NewSession(client, sessionConfig(cfg.Chat))

	return &app{
		cfg:    cfg,
		client: client,
		store:  store,
		svc: &api.Service{
			Session: session,
			Models:  client,
			Presets: presets.NewManager(store),
			History: history.NewStore(store),
		},
		logCloser: logCloser,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(stderr, "warning: closing storage: %v\n", err)
	}
	a.logCloser.Close()
}

// sessionConfig turns the chat settings into generation parameters. Stored
// values outside the accepted ranges are pulled to the nearest bound.
func sessionConfig(c config.ChatConfig) chat.GenerationConfig {
	gc := chat.GenerationConfig{
		Model:         c.Model,
		Temperature:   chat.ClampTemperature(c.Temperature),
		ContextLength: chat.ClampContextLength(c.ContextLength),
		SystemPrompt:  c.SystemPrompt,
	}
	if gc.Temperature != c.Temperature {
		printWarning("chat.temperature %v is out of range; using %.1f", c.Temperature, gc.Temperature)
	}
	if gc.ContextLength != c.ContextLength {
		printWarning("chat.context_length %d is out of range; using %d", c.ContextLength, gc.ContextLength)
	}
	return gc
}
