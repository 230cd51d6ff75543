package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/ollachat/internal/ndjson"
)

const readChunkSize = 32 << 10

// streamRecord is one decoded line of a streamed /chat response. Only
// message.content drives output; the other fields are best effort.
type streamRecord struct {
	Model   string `json:"model"`
	Message *struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done               bool   `json:"done"`
	DoneReason         string `json:"done_reason"`
	PromptEvalCount    int    `json:"prompt_eval_count"`
	EvalCount          int    `json:"eval_count"`
	TotalDuration      int64  `json:"total_duration"`
	LoadDuration       int64  `json:"load_duration"`
	PromptEvalDuration int64  `json:"prompt_eval_duration"`
	EvalDuration       int64  `json:"eval_duration"`
	Error              any    `json:"error"`
}

// Stats are the run statistics carried by the final done record.
type Stats struct {
	DoneReason         string
	PromptTokens       int
	CompletionTokens   int
	TotalDuration      time.Duration
	LoadDuration       time.Duration
	PromptEvalDuration time.Duration
	EvalDuration       time.Duration
}

// TokensPerSecond returns the generation rate, or 0 when unknown.
func (s Stats) TokensPerSecond() float64 {
	if s.EvalDuration <= 0 || s.CompletionTokens == 0 {
		return 0
	}
	return float64(s.CompletionTokens) / s.EvalDuration.Seconds()
}

// streamDecoder turns arbitrarily chunked NDJSON into text deltas.
// The concatenation of every delta it emits is exactly full.
type streamDecoder struct {
	logger  *slog.Logger
	onDelta func(string)

	split ndjson.Splitter
	full  strings.Builder
	model string
	stats Stats
}

func newStreamDecoder(logger *slog.Logger, onDelta func(string)) *streamDecoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &streamDecoder{logger: logger, onDelta: onDelta}
}

// consume reads r until EOF, feeding every chunk through the decoder.
// On cancellation or read failure the buffered tail is discarded.
func (d *streamDecoder) consume(ctx context.Context, r io.Reader) error {
	buf := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			d.split.Flush()
			return fmt.Errorf("%w: %w", ErrStreamAborted, err)
		}

		n, err := r.Read(buf)
		if n > 0 {
			d.push(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			d.finish()
			return nil
		}
		if err != nil {
			d.split.Flush()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("%w: %w", ErrStreamAborted, ctxErr)
			}
			return fmt.Errorf("%w: reading stream: %w", ErrRequestFailed, err)
		}
	}
}

// push handles one received chunk.
func (d *streamDecoder) push(chunk []byte) {
	for _, seg := range d.split.Push(chunk) {
		d.handle(seg, false)
	}
}

// finish parses whatever is left once the stream has ended.
func (d *streamDecoder) finish() {
	if rest := d.split.Flush(); len(rest) > 0 {
		d.handle(rest, true)
	}
}

func (d *streamDecoder) handle(seg []byte, final bool) {
	if ndjson.IsBlank(seg) {
		return
	}

	var rec streamRecord
	if err := json.Unmarshal(seg, &rec); err != nil {
		// A field of an unexpected type is skipped by Unmarshal; the rest of
		// the record, content included, is still usable.
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			decErr := &StreamDecodeError{Segment: seg, Err: err}
			d.logger.Warn("skipping undecodable stream record", "error", decErr, "final", final)
			return
		}
		d.logger.Debug("ignoring mistyped field in stream record", "field", typeErr.Field, "error", err)
	}

	if rec.Model != "" {
		d.model = rec.Model
	}
	if rec.Error != nil && rec.Error != "" {
		d.logger.Warn("model server reported an error in stream", "error", rec.Error)
	}

	if rec.Message != nil && rec.Message.Content != "" {
		d.full.WriteString(rec.Message.Content)
		if d.onDelta != nil {
			d.onDelta(rec.Message.Content)
		}
	}

	if rec.Done {
		d.stats = Stats{
			DoneReason:         rec.DoneReason,
			PromptTokens:       rec.PromptEvalCount,
			CompletionTokens:   rec.EvalCount,
			TotalDuration:      time.Duration(rec.TotalDuration),
			LoadDuration:       time.Duration(rec.LoadDuration),
			PromptEvalDuration: time.Duration(rec.PromptEvalDuration),
			EvalDuration:       time.Duration(rec.EvalDuration),
		}
	}
}

func (d *streamDecoder) result() ChatResult {
	return ChatResult{
		Content: d.full.String(),
		Model:   d.model,
		Stats:   d.stats,
	}
}
