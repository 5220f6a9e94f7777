package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"llamaworker/internal/engine"
)

// LoadResult is what a background load hands back to the loop.
type LoadResult struct {
	Engine engine.Engine
	Bytes  int64
	Err    error
}

// Lifecycle owns the worker's single engine instance and its state machine:
// uninitialized -> loading -> ready, or loading -> failed.
//
// Begin and Finish run on the loop goroutine; Load runs on a helper
// goroutine and only touches the staged byte counter.
type Lifecycle struct {
	factory engine.Factory
	fetcher *Fetcher
	stdout  engine.Device
	log     zerolog.Logger

	mu      sync.RWMutex
	state   State
	eng     engine.Engine
	url     string
	lastErr error

	staged atomic.Int64
}

// NewLifecycle wires stdout (normally the Sink) into every engine it builds.
func NewLifecycle(factory engine.Factory, fetcher *Fetcher, stdout engine.Device, log zerolog.Logger) *Lifecycle {
	if fetcher == nil {
		fetcher = NewFetcher(FetchOptions{})
	}
	return &Lifecycle{factory: factory, fetcher: fetcher, stdout: stdout, log: log, state: StateUninitialized}
}

// Begin moves uninitialized -> loading. A worker stages one model for its
// whole life, so any later call fails.
func (l *Lifecycle) Begin(url string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case StateUninitialized:
		l.state, l.url = StateLoading, url
		observeState(l.state)
		return nil
	case StateFailed:
		return ErrLoadFailed
	}
	return ErrAlreadyLoaded
}

// Load constructs the engine without running it and streams url into the
// staged model path.
func (l *Lifecycle) Load(ctx context.Context, url string) LoadResult {
	cfg := engine.Config{Logger: &l.log}
	cfg.Register(engine.DeviceStdout, l.stdout)
	cfg.Register(engine.DeviceStderr, engine.Discard)
	eng, err := l.factory(ctx, cfg)
	if err != nil {
		return LoadResult{Err: fmt.Errorf("create engine: %w", err)}
	}
	l.log.Debug().Str("engine", string(eng.Kind())).Str("url", url).Msg("engine created, staging model")
	var last int64
	n, err := l.fetcher.WriteStream(ctx, eng.FS(), url, ModelPath, func(written, total int64) {
		stagedBytesTotal.Add(float64(written - last))
		last = written
		l.staged.Store(written)
	})
	return LoadResult{Engine: eng, Bytes: n, Err: err}
}

// Finish applies a load result: loading -> ready, or loading -> failed.
// A failed load closes the engine it created.
func (l *Lifecycle) Finish(ctx context.Context, res LoadResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateLoading {
		if res.Engine != nil {
			_ = res.Engine.Close(ctx)
		}
		return fmt.Errorf("finish load in state %s", l.state)
	}
	if res.Err != nil {
		l.state, l.lastErr = StateFailed, res.Err
		observeState(l.state)
		if res.Engine != nil {
			_ = res.Engine.Close(ctx)
		}
		return res.Err
	}
	l.state, l.eng = StateReady, res.Engine
	observeState(l.state)
	return nil
}

// Engine returns the ready engine, or ErrNotReady / ErrLoadFailed.
func (l *Lifecycle) Engine() (engine.Engine, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	switch l.state {
	case StateReady:
		return l.eng, nil
	case StateFailed:
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, l.lastErr)
	}
	return nil, ErrNotReady
}

func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// URL returns the model URL of the accepted LOAD.
func (l *Lifecycle) URL() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.url
}

// StagedBytes reports how much of the model has been written so far.
func (l *Lifecycle) StagedBytes() int64 { return l.staged.Load() }

// Close releases the engine. The staged file is left in place.
func (l *Lifecycle) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.eng == nil {
		return nil
	}
	err := l.eng.Close(ctx)
	l.eng = nil
	return err
}
