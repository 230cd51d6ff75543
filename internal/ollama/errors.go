package ollama

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceUnavailable is returned when the model server cannot be
	// reached or answers with a non-success status.
	ErrServiceUnavailable = errors.New("model service unavailable")

	// ErrMalformedResponse is returned when a response body lacks the
	// expected structure.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrRequestFailed is returned when a chat request is rejected or its
	// body cannot be read as a stream.
	ErrRequestFailed = errors.New("chat request failed")

	// ErrStreamAborted is returned when the caller cancels a stream.
	ErrStreamAborted = errors.New("stream aborted")
)

// StreamDecodeError describes a single stream record that could not be
// decoded. It is logged and skipped, never returned from ChatStream.
type StreamDecodeError struct {
	Segment []byte
	Err     error
}

func (e *StreamDecodeError) Error() string {
	return fmt.Sprintf("decoding stream record %q: %v", e.Segment, e.Err)
}

func (e *StreamDecodeError) Unwrap() error {
	return e.Err
}
