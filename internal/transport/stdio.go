// Package transport carries worker messages over a byte stream: one JSON
// object per line in each direction.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"llamaworker/internal/worker"
	"llamaworker/pkg/types"
)

// maxLineBytes bounds one inbound message (prompts can be long).
const maxLineBytes = 4 << 20

// Encoder writes events as JSON lines. It is safe for concurrent use.
type Encoder struct {
	mu  sync.Mutex
	w   *bufio.Writer
	enc *json.Encoder
	err error
}

func NewEncoder(w io.Writer) *Encoder {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &Encoder{w: bw, enc: enc}
}

// Publish writes one event line. After the first write error all events
// are dropped; Err reports it.
func (e *Encoder) Publish(ev types.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return
	}
	if err := e.enc.Encode(ev); err != nil {
		e.err = err
		return
	}
	e.err = e.w.Flush()
}

func (e *Encoder) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Stdio serves the worker protocol over a pair of streams. It is the
// worker's EventPublisher and tracks commands still waiting for their
// terminal event.
type Stdio struct {
	out     *Encoder
	log     zerolog.Logger
	pending sync.WaitGroup
}

func NewStdio(out io.Writer, log zerolog.Logger) *Stdio {
	return &Stdio{out: NewEncoder(out), log: log}
}

// Publish forwards a worker event to the output stream.
func (s *Stdio) Publish(ev types.Event) {
	s.out.Publish(ev)
	if ev.Event.Terminal() {
		s.pending.Done()
	}
}

// Serve reads commands from in and posts them to w until in is exhausted,
// then waits for every accepted command to finish. Malformed lines are
// answered with an ERROR event and do not reach the worker.
func (s *Stdio) Serve(ctx context.Context, w *worker.Worker, in io.Reader) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		cmd, err := DecodeCommand(line)
		if err != nil {
			s.log.Warn().Err(err).Msg("rejected message")
			s.out.Publish(types.Event{Event: types.ActionError, ID: peekID(line), Code: worker.CodeInvalidRequest, Error: err.Error()})
			continue
		}
		s.pending.Add(1)
		if err := w.Post(ctx, cmd); err != nil {
			s.pending.Done()
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read commands: %w", err)
	}
	s.log.Debug().Msg("input closed, waiting for pending commands")
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return s.out.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
