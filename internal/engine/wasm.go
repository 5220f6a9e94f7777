package engine

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"llamaworker/internal/common/fsutil"
)

// WasmOptions configures the wazero-backed engine.
type WasmOptions struct {
	// Path to the WASI build of the engine.
	Path string
	// CacheDir persists compiled code across processes when set.
	CacheDir string
	// Threads enables the threads proposal (shared memory + atomics).
	Threads bool
}

type wasmEngine struct {
	rt       wazero.Runtime
	compiled wazero.CompiledModule
	cache    wazero.CompilationCache
	fs       *DirFS
	cfg      Config
	threads  bool
	log      zerolog.Logger
}

// NewWasm compiles the engine module without running it. The root
// directory is mounted as the guest's "/".
func NewWasm(ctx context.Context, root string, opts WasmOptions, cfg Config) (Engine, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, ErrDependencyUnavailable("wasm engine path is empty")
	}
	p, err := fsutil.ExpandHome(opts.Path)
	if err != nil {
		return nil, err
	}
	bin, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrDependencyUnavailable(fmt.Sprintf("wasm engine not found: %s", p))
		}
		return nil, fmt.Errorf("read wasm engine: %w", err)
	}
	dfs, err := NewDirFS(root, true)
	if err != nil {
		return nil, err
	}

	rc := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if opts.Threads {
		rc = rc.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
	}
	var cache wazero.CompilationCache
	if opts.CacheDir != "" {
		dir, err := fsutil.ExpandHome(opts.CacheDir)
		if err != nil {
			return nil, err
		}
		if cache, err = wazero.NewCompilationCacheWithDir(dir); err != nil {
			return nil, fmt.Errorf("compilation cache: %w", err)
		}
		rc = rc.WithCompilationCache(cache)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, rc)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("instantiate wasi: %w", err)
	}
	compiled, err := rt.CompileModule(ctx, bin)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("compile wasm engine: %w", err)
	}
	log := cfg.logger()
	log.Debug().Str("path", p).Bool("threads", opts.Threads).Str("root", dfs.Root()).Msg("wasm engine compiled")
	return &wasmEngine{rt: rt, compiled: compiled, cache: cache, fs: dfs, cfg: cfg, threads: opts.Threads, log: log}, nil
}

func (e *wasmEngine) Kind() Kind         { return KindWasm }
func (e *wasmEngine) FS() FS             { return e.fs }
func (e *wasmEngine) SharedMemory() bool { return e.threads }

// Main instantiates a fresh anonymous module instance, which runs _start
// with args. The instance is closed when main returns.
func (e *wasmEngine) Main(ctx context.Context, args []string) error {
	stdout := e.cfg.Device(DeviceStdout)
	stderr := e.cfg.Device(DeviceStderr)
	mc := wazero.NewModuleConfig().
		WithName("").
		WithArgs(append([]string{"main"}, args...)...).
		WithStdin(Reader(e.cfg.Device(DeviceStdin))).
		WithStdout(Writer(stdout)).
		WithStderr(Writer(stderr)).
		WithFSConfig(wazero.NewFSConfig().WithDirMount(e.fs.Root(), "/")).
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithRandSource(rand.Reader)

	mod, err := e.rt.InstantiateModule(ctx, e.compiled, mc)
	if mod != nil {
		_ = mod.Close(ctx)
	}
	_ = stdout.Flush()
	_ = stderr.Flush()
	if err == nil {
		return nil
	}
	var exit *sys.ExitError
	if errors.As(err, &exit) {
		switch code := exit.ExitCode(); {
		case code == 0:
			return nil
		case code == sys.ExitCodeContextCanceled || code == sys.ExitCodeDeadlineExceeded:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		default:
			return &ExitError{Code: int(code)}
		}
	}
	return fmt.Errorf("wasm main: %w", err)
}

func (e *wasmEngine) Close(ctx context.Context) error {
	err := e.rt.Close(ctx)
	if e.cache != nil {
		if cerr := e.cache.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}
