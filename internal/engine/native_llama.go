//go:build llama

package engine

import (
	"context"
	"fmt"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
	"github.com/rs/zerolog"
)

// nativeEngine runs go-llama.cpp in process. The model is loaded lazily on
// the first Main because it is staged after the engine is constructed; it
// is reused while the path and context size stay the same.
type nativeEngine struct {
	fs  *DirFS
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	model   *llama.LLama
	path    string
	ctxSize int
}

// NewNative prepares a native engine without loading any model.
func NewNative(root string, cfg Config) (Engine, error) {
	dfs, err := NewDirFS(root, false)
	if err != nil {
		return nil, err
	}
	return &nativeEngine{fs: dfs, cfg: cfg, log: cfg.logger()}, nil
}

func (e *nativeEngine) Kind() Kind         { return KindNative }
func (e *nativeEngine) FS() FS             { return e.fs }
func (e *nativeEngine) SharedMemory() bool { return true }

func (e *nativeEngine) Main(ctx context.Context, args []string) error {
	a, err := parseNativeArgs(args)
	if err != nil {
		return &ExitError{Code: 1, Stderr: err.Error()}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureModel(a.model, a.ctxSize); err != nil {
		return &ExitError{Code: 1, Stderr: err.Error()}
	}

	out := Writer(e.cfg.Device(DeviceStdout))
	defer e.cfg.Device(DeviceStdout).Flush()

	prompt := a.prompt
	if a.chatML {
		prompt = "<|im_start|>user\n" + a.prompt + "<|im_end|>\n<|im_start|>assistant\n"
	}
	if !a.noDisplayPrompt {
		if _, err := out.Write([]byte(prompt)); err != nil {
			return err
		}
	}
	var writeErr error
	e.model.SetTokenCallback(func(tok string) bool {
		if ctx.Err() != nil {
			return false
		}
		if _, err := out.Write([]byte(tok)); err != nil {
			writeErr = err
			return false
		}
		return true
	})
	_, err = e.model.Predict(prompt,
		llama.SetTokens(max(1, a.nPredict)),
		llama.SetThreads(max(1, a.threads)),
		llama.SetTopK(a.topK),
		llama.SetTopP(float32(a.topP)),
		llama.SetTemperature(float32(a.temp)),
	)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		return &ExitError{Code: 1, Stderr: err.Error()}
	}
	return nil
}

func (e *nativeEngine) ensureModel(modelPath string, ctxSize int) error {
	if e.model != nil && e.path == modelPath && e.ctxSize == ctxSize {
		return nil
	}
	if e.model != nil {
		e.model.Free()
		e.model = nil
	}
	m, err := llama.New(modelPath, llama.SetContext(ctxSize))
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	e.log.Info().Str("model", modelPath).Int("ctx_size", ctxSize).Msg("native model loaded")
	e.model, e.path, e.ctxSize = m, modelPath, ctxSize
	return nil
}

func (e *nativeEngine) Close(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model != nil {
		e.model.Free()
		e.model = nil
	}
	return nil
}
