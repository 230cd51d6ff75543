package ollama

import (
	"context"
	"fmt"
	"io"
)

// EnsureReady checks that Ollama is running and has at least one model
// installed, writing a short status report to w. It returns the installed
// model names so the caller can pick a default.
func EnsureReady(ctx context.Context, c *Client, w io.Writer) ([]string, error) {
	if !c.IsRunning(ctx) {
		return nil, fmt.Errorf("%w: Ollama is not running at %s. Start it with: ollama serve", ErrServiceUnavailable, c.BaseURL())
	}

	models, err := c.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("no models installed. Pull one with: ollama pull <model>")
	}

	for _, m := range models {
		fmt.Fprintf(w, "model %s: ready\n", m)
	}
	return models, nil
}
