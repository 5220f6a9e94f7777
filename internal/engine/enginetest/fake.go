// Package enginetest provides a scripted in-memory engine for tests.
package enginetest

import (
	"context"
	"sync"

	"llamaworker/internal/engine"
)

// Script is the body of a fake engine's main.
type Script func(ctx context.Context, stdout engine.Device, args []string) error

// Fake is an engine.Engine backed by a MemFS whose main runs a Script.
type Fake struct {
	Mem    *engine.MemFS
	Shared bool

	mu     sync.Mutex
	script Script
	cfg    engine.Config
	calls  [][]string
	closed bool
}

func New(script Script) *Fake {
	return &Fake{Mem: engine.NewMemFS(), script: script}
}

// Echo returns a script that writes text one byte at a time.
func Echo(text string) Script {
	return func(_ context.Context, stdout engine.Device, _ []string) error {
		return WriteBytes(stdout, text)
	}
}

// WriteBytes feeds s to d byte by byte.
func WriteBytes(d engine.Device, s string) error {
	for i := 0; i < len(s); i++ {
		if err := d.WriteByte(s[i]); err != nil {
			return err
		}
	}
	return nil
}

// Factory returns an engine.Factory handing out f.
func (f *Fake) Factory() engine.Factory {
	return func(_ context.Context, cfg engine.Config) (engine.Engine, error) {
		f.mu.Lock()
		f.cfg = cfg
		f.mu.Unlock()
		return f, nil
	}
}

// SetScript replaces the main body.
func (f *Fake) SetScript(s Script) {
	f.mu.Lock()
	f.script = s
	f.mu.Unlock()
}

func (f *Fake) Kind() engine.Kind  { return "fake" }
func (f *Fake) FS() engine.FS      { return f.Mem }
func (f *Fake) SharedMemory() bool { return f.Shared }

func (f *Fake) Main(ctx context.Context, args []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), args...))
	stdout, script := f.cfg.Device(engine.DeviceStdout), f.script
	f.mu.Unlock()
	if script == nil {
		return nil
	}
	return script(ctx, stdout, args)
}

func (f *Fake) Close(context.Context) error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Calls returns the argument lists main was invoked with.
func (f *Fake) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
