package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Roles accepted by the chat endpoint.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message in the Ollama API format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client communicates with a local Ollama instance over HTTP.
// baseURL already includes the API prefix, e.g. http://localhost:11434/api.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for non-fatal stream problems.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client targeting the given Ollama API base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// Streams can run for minutes; cancellation goes through ctx.
			Timeout: 0,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API base URL the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// tagsResponse mirrors the JSON returned by GET /tags.
type tagsResponse struct {
	Models []ModelInfo `json:"models"`
}

// ModelInfo is one entry of the installed model list.
type ModelInfo struct {
	Name       string       `json:"name"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details"`
}

// ModelDetails describes a model's family and quantization.
type ModelDetails struct {
	Format            string `json:"format"`
	Family            string `json:"family"`
	ParameterSize     string `json:"parameter_size"`
	QuantizationLevel string `json:"quantization_level"`
}

// IsRunning returns true if the Ollama server responds to GET /tags with 200.
func (c *Client) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ListModelInfo returns every installed model entry in server order.
func (c *Client) ListModelInfo(ctx context.Context) ([]ModelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: requesting model list: %w", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d from %s/tags", ErrServiceUnavailable, resp.StatusCode, c.baseURL)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("%w: decoding model list: %w", ErrMalformedResponse, err)
	}
	if tags.Models == nil {
		return nil, fmt.Errorf("%w: missing models field", ErrMalformedResponse)
	}
	return tags.Models, nil
}

// ListModels returns the names of all models available in the local Ollama instance.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	models, err := c.ListModelInfo(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(models))
	for i, m := range models {
		names[i] = m.Name
	}
	return names, nil
}

// ChatRequest is the JSON body for POST /chat.
// Temperature and ContextLength are sent both at the top level and inside
// options, which is where upstream Ollama reads them.
type ChatRequest struct {
	Model         string       `json:"model"`
	Messages      []Message    `json:"messages"`
	Stream        bool         `json:"stream"`
	Temperature   float64      `json:"temperature"`
	ContextLength int          `json:"context_length"`
	Options       *ChatOptions `json:"options,omitempty"`
}

// ChatOptions holds model runtime parameters.
type ChatOptions struct {
	Temperature float64 `json:"temperature"`
	NumCtx      int     `json:"num_ctx,omitempty"`
}

// ChatResult is the outcome of a completed stream.
type ChatResult struct {
	Content string
	Model   string
	Stats   Stats
}

// ChatStream posts req with streaming enabled and delivers each text
// fragment to onDelta as soon as its record is complete. onDelta runs on the
// calling goroutine, in arrival order, and may be nil.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest, onDelta func(string)) (ChatResult, error) {
	req.Stream = true
	if req.Options == nil {
		req.Options = &ChatOptions{Temperature: req.Temperature, NumCtx: req.ContextLength}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return ChatResult{}, fmt.Errorf("marshaling chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return ChatResult{}, fmt.Errorf("creating chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ChatResult{}, fmt.Errorf("%w: %w", ErrStreamAborted, ctx.Err())
		}
		return ChatResult{}, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	if resp.Body == nil {
		return ChatResult{}, fmt.Errorf("%w: response body is not a stream", ErrRequestFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ChatResult{}, fmt.Errorf("%w: unexpected status %d", ErrRequestFailed, resp.StatusCode)
	}

	dec := newStreamDecoder(c.logger, onDelta)
	if err := dec.consume(ctx, resp.Body); err != nil {
		return ChatResult{}, err
	}
	return dec.result(), nil
}
