package worker

import (
	"io"
	"sync"

	"golang.org/x/text/encoding/unicode"
)

// boundary marks the bytes that end an output chunk: ASCII punctuation and
// whitespace. Every member is below 0x80, so a flush never splits a
// well-formed UTF-8 sequence.
var boundary = func() (t [256]bool) {
	for _, r := range [][2]byte{{33, 47}, {58, 64}, {91, 96}, {123, 126}} {
		for c := int(r[0]); c <= int(r[1]); c++ {
			t[c] = true
		}
	}
	for _, c := range []byte{' ', '\t', '\n', '\r', '\v', '\f'} {
		t[c] = true
	}
	return t
}()

// IsBoundary reports whether c terminates an output chunk.
func IsBoundary(c byte) bool { return boundary[c] }

// Sink re-segments the engine's byte-at-a-time output into text chunks.
// It implements engine.Device for the stdout stream and io.Writer.
type Sink struct {
	mu      sync.Mutex
	pending []byte
	emit    func(text string)
}

// NewSink returns a sink handing every flushed chunk to emit.
func NewSink(emit func(text string)) *Sink {
	if emit == nil {
		emit = func(string) {}
	}
	return &Sink{emit: emit}
}

// WriteByte appends c and flushes the pending buffer when c is a boundary.
func (s *Sink) WriteByte(c byte) error {
	s.mu.Lock()
	s.pending = append(s.pending, c)
	if !boundary[c] {
		s.mu.Unlock()
		return nil
	}
	text := decodeChunk(s.pending)
	s.pending = s.pending[:0]
	s.mu.Unlock()
	s.emit(text)
	return nil
}

func (s *Sink) Write(p []byte) (int, error) {
	for _, c := range p {
		_ = s.WriteByte(c)
	}
	return len(p), nil
}

// Pending returns a copy of the bytes waiting for a boundary.
func (s *Sink) Pending() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.pending...)
}

// Discard drops bytes written after the last boundary and returns how many
// were dropped.
func (s *Sink) Discard() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.pending)
	s.pending = s.pending[:0]
	return n
}

func (s *Sink) ReadByte() (byte, error) { return 0, io.EOF }
func (s *Sink) Flush() error            { return nil }
func (s *Sink) Sync() error             { return nil }

// decodeChunk decodes UTF-8 the way a browser TextDecoder does: a leading
// byte order mark is dropped and invalid sequences become U+FFFD.
func decodeChunk(b []byte) string {
	out, err := unicode.UTF8BOM.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
