package worker

import (
	"context"
	"math"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"llamaworker/internal/engine"
)

// BuildArgs translates a run request into the engine's command line.
// BatchSize and GPULayerCount are not forwarded.
func BuildArgs(req RunRequest, modelPath string, env HostEnv) []string {
	args := []string{
		"--model", modelPath,
		"--n-predict", strconv.Itoa(req.MaxPredictedTokens),
		"--ctx-size", strconv.Itoa(req.ContextSize),
		"--temp", formatFloat(req.Temperature),
		"--top_k", strconv.Itoa(req.TopK),
		"--top_p", formatFloat(req.TopP),
		"--simple-io",
		"--log-disable",
		"--prompt", req.Prompt,
	}
	if env.SharedMemory {
		args = append(args, "--threads", strconv.Itoa(env.Concurrency))
	}
	if req.ChatModeEnabled {
		args = append(args, "--chatml")
	}
	if req.SuppressPromptEcho {
		args = append(args, "--no-display-prompt")
	}
	return args
}

// formatFloat prints the shortest representation that round-trips (0.8, 1),
// switching to exponent form (1e-7, 1e+21) below 1e-6 and from 1e21 up.
func formatFloat(f float64) string {
	if abs := math.Abs(f); abs == 0 || (abs >= 1e-6 && abs < 1e21) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	// Go pads the exponent to two digits
	mant, exp, _ := strings.Cut(s, "e")
	sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
	return mant + "e" + sign + digits
}

// Invoker runs the engine's main for one request at a time.
type Invoker struct {
	sink    *Sink
	threads int
	timeout time.Duration
	log     zerolog.Logger
}

// NewInvoker returns an invoker. threads <= 0 uses runtime.NumCPU; timeout
// <= 0 leaves runs unbounded.
func NewInvoker(sink *Sink, threads int, timeout time.Duration, log zerolog.Logger) *Invoker {
	return &Invoker{sink: sink, threads: threads, timeout: timeout, log: log}
}

// Env reports the host environment for eng.
func (inv *Invoker) Env(eng engine.Engine) HostEnv {
	n := inv.threads
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return HostEnv{SharedMemory: eng.SharedMemory(), Concurrency: n}
}

// Run blocks until the engine returns. Output reaches the host through the
// sink while it runs; bytes after the last boundary are dropped afterwards.
func (inv *Invoker) Run(ctx context.Context, eng engine.Engine, req RunRequest) error {
	args := BuildArgs(req, eng.FS().ExecPath(ModelPath), inv.Env(eng))
	if inv.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}
	inv.log.Debug().Strs("args", args).Msg("engine main")
	err := eng.Main(ctx, args)
	if n := inv.sink.Discard(); n > 0 {
		inv.log.Debug().Int("bytes", n).Msg("dropped output after last boundary")
	}
	if err != nil {
		return &EngineInvocationError{Err: err}
	}
	return nil
}
