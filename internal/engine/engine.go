// Package engine defines the narrow contract between the worker and an
// inference engine: a private filesystem, two byte devices and a single
// command-line style entry point.
//
// Engines are constructed without running anything (the engine's main is
// never invoked implicitly); every invocation goes through Main. Three
// implementations exist:
//
//   - wasm: a WASI build of the engine executed by wazero, with the sandbox
//     directory mounted as the guest's root filesystem.
//   - process: a native engine binary executed as a child process whose
//     working directory is the sandbox directory.
//   - native: go-llama.cpp bindings, compiled only with `-tags=llama`.
package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Kind names an engine implementation.
type Kind string

const (
	KindWasm    Kind = "wasm"
	KindProcess Kind = "process"
	KindNative  Kind = "native"
)

// ParseKind validates an engine kind string.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindWasm, KindProcess, KindNative:
		return k, nil
	}
	return "", fmt.Errorf("unknown engine kind %q (want wasm, process or native)", s)
}

// Engine is one initialized inference engine instance.
type Engine interface {
	// Kind reports the implementation backing this engine.
	Kind() Kind
	// FS is the engine's private filesystem.
	FS() FS
	// Main invokes the engine's entry point with command-line arguments and
	// blocks until it returns. Output is delivered through the registered
	// devices while Main runs. A non-zero exit status is an *ExitError.
	Main(ctx context.Context, args []string) error
	// SharedMemory reports whether the engine can run multi-threaded.
	SharedMemory() bool
	// Close releases the engine. The filesystem contents are left in place.
	Close(ctx context.Context) error
}

// Config carries what the worker wires into a new engine.
type Config struct {
	// Devices registered for the engine's character output/input streams.
	// Unregistered kinds fall back to Discard.
	Devices map[DeviceKind]Device
	// Logger for engine diagnostics; nil disables logging.
	Logger *zerolog.Logger
}

// Register installs a device for the given kind.
func (c *Config) Register(kind DeviceKind, d Device) {
	if c.Devices == nil {
		c.Devices = make(map[DeviceKind]Device, 3)
	}
	c.Devices[kind] = d
}

// Device returns the registered device for kind or Discard.
func (c Config) Device(kind DeviceKind) Device {
	if d, ok := c.Devices[kind]; ok && d != nil {
		return d
	}
	return Discard
}

func (c Config) logger() zerolog.Logger {
	if c.Logger == nil {
		return zerolog.Nop()
	}
	return *c.Logger
}

// Factory constructs an engine. It must not invoke the engine's main.
type Factory func(ctx context.Context, cfg Config) (Engine, error)

// Options selects and parameterizes an engine implementation.
type Options struct {
	Kind Kind
	// Root is the host directory backing the engine's private filesystem.
	Root    string
	Wasm    WasmOptions
	Process ProcessOptions
}

// NewFactory returns the Factory for opts.Kind.
func NewFactory(opts Options) (Factory, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("engine root directory is empty")
	}
	switch opts.Kind {
	case KindWasm:
		return func(ctx context.Context, cfg Config) (Engine, error) {
			return NewWasm(ctx, opts.Root, opts.Wasm, cfg)
		}, nil
	case KindProcess:
		return func(ctx context.Context, cfg Config) (Engine, error) {
			return NewProcess(opts.Root, opts.Process, cfg)
		}, nil
	case KindNative:
		return func(ctx context.Context, cfg Config) (Engine, error) {
			return NewNative(opts.Root, cfg)
		}, nil
	}
	return nil, fmt.Errorf("unknown engine kind %q", opts.Kind)
}
