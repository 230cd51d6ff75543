// Package ndjson reassembles newline-delimited JSON records from a byte
// stream whose chunk boundaries need not line up with record boundaries.
package ndjson

import "bytes"

// Splitter buffers the unterminated tail of the chunks pushed so far.
// A zero Splitter is ready to use. It is not safe for concurrent use.
type Splitter struct {
	buf []byte
}

// Push appends chunk to the buffer and returns every complete
// newline-terminated segment, without the newline, in arrival order.
// The bytes after the last newline stay buffered for the next call.
// Returned segments do not alias the internal buffer.
func (s *Splitter) Push(chunk []byte) [][]byte {
	if len(chunk) == 0 {
		return nil
	}
	s.buf = append(s.buf, chunk...)

	var segments [][]byte
	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			break
		}
		seg := make([]byte, i)
		copy(seg, s.buf[:i])
		segments = append(segments, seg)
		s.buf = s.buf[i+1:]
	}

	// Compact so a long stream does not pin every chunk it has seen.
	if len(s.buf) == 0 {
		s.buf = nil
	} else if cap(s.buf) > 2*len(s.buf)+4096 {
		s.buf = append([]byte(nil), s.buf...)
	}
	return segments
}

// Flush returns whatever is buffered and resets the Splitter.
func (s *Splitter) Flush() []byte {
	rest := s.buf
	s.buf = nil
	return rest
}

// Pending reports how many bytes are buffered.
func (s *Splitter) Pending() int {
	return len(s.buf)
}

// IsBlank reports whether seg holds only whitespace.
func IsBlank(seg []byte) bool {
	return len(bytes.TrimSpace(seg)) == 0
}
