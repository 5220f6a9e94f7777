package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// ProcessOptions configures the child-process engine.
type ProcessOptions struct {
	// Binary is the engine executable, resolved through PATH when it has no
	// separator.
	Binary string
	// Env entries are appended to the worker's environment.
	Env []string
	// KillGrace is how long an interrupted engine gets before SIGKILL.
	KillGrace time.Duration
}

const stderrTailBytes = 2048

type processEngine struct {
	binary string
	env    []string
	grace  time.Duration
	fs     *DirFS
	cfg    Config
	log    zerolog.Logger
}

// NewProcess resolves the engine binary. Nothing is started until Main.
func NewProcess(root string, opts ProcessOptions, cfg Config) (Engine, error) {
	if strings.TrimSpace(opts.Binary) == "" {
		return nil, ErrDependencyUnavailable("engine binary is empty")
	}
	bin, err := exec.LookPath(opts.Binary)
	if err != nil {
		return nil, ErrDependencyUnavailable(fmt.Sprintf("engine binary not found: %s", opts.Binary))
	}
	dfs, err := NewDirFS(root, false)
	if err != nil {
		return nil, err
	}
	grace := opts.KillGrace
	if grace <= 0 {
		grace = 2 * time.Second
	}
	return &processEngine{binary: bin, env: opts.Env, grace: grace, fs: dfs, cfg: cfg, log: cfg.logger()}, nil
}

func (e *processEngine) Kind() Kind         { return KindProcess }
func (e *processEngine) FS() FS             { return e.fs }
func (e *processEngine) SharedMemory() bool { return true }
func (e *processEngine) Close(context.Context) error {
	return nil
}

// Main runs the binary with args in the sandbox directory and waits for it.
// Cancelling ctx interrupts the process, then kills it after the grace period.
func (e *processEngine) Main(ctx context.Context, args []string) error {
	stdout := e.cfg.Device(DeviceStdout)
	stderr := e.cfg.Device(DeviceStderr)
	tail := &tailBuffer{max: stderrTailBytes}

	cmd := exec.CommandContext(ctx, e.binary, args...)
	cmd.Dir = e.fs.Root()
	cmd.Env = append(os.Environ(), e.env...)
	cmd.Stdin = Reader(e.cfg.Device(DeviceStdin))
	cmd.Stdout = Writer(stdout)
	cmd.Stderr = io.MultiWriter(Writer(stderr), tail)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGINT) }
	cmd.WaitDelay = e.grace

	start := time.Now()
	err := cmd.Run()
	_ = stdout.Flush()
	_ = stderr.Flush()
	e.log.Debug().Str("binary", e.binary).Dur("elapsed", time.Since(start)).Err(err).Msg("engine process exited")
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		return &ExitError{Code: exit.ExitCode(), Stderr: strings.TrimSpace(tail.String())}
	}
	return fmt.Errorf("start engine: %w", err)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
