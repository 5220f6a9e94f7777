package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"llamaworker/internal/common/fsutil"
	"llamaworker/internal/registry"
	"llamaworker/internal/worker"
	"llamaworker/pkg/types"
)

func newRunCmd(f *flags) *cobra.Command {
	params := types.DefaultRunParams()
	var model string
	cmd := &cobra.Command{
		Use:   "run --model <url|path|id> [prompt]",
		Short: "Load a model, run one prompt and print the output",
		Example: "  llamaworker run --engine process --model ./tinyllama.gguf \"Write a haiku\"\n" +
			"  llamaworker run --model https://example.com/m.gguf --chatml -n 64 -p \"Hello\"",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				params.Prompt = args[0]
			}
			if strings.TrimSpace(model) == "" {
				return fmt.Errorf("--model is required")
			}
			a, err := newApp(cmd, f, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runOnce(ctx, a, model, params, cmd.OutOrStdout())
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&model, "model", "m", "", "Model URL, local file or registry id")
	fl.StringVarP(&params.Prompt, "prompt", "p", "", "Prompt text (or pass it as the argument)")
	fl.BoolVar(&params.ChatML, "chatml", false, "Wrap the prompt in the ChatML template")
	fl.IntVarP(&params.NPredict, "n-predict", "n", params.NPredict, "Maximum tokens to predict")
	fl.IntVar(&params.CtxSize, "ctx-size", params.CtxSize, "Context window size")
	fl.Float64Var(&params.Temp, "temp", params.Temp, "Sampling temperature")
	fl.IntVar(&params.TopK, "top-k", params.TopK, "Top-K sampling")
	fl.Float64Var(&params.TopP, "top-p", params.TopP, "Nucleus sampling probability")
	fl.BoolVar(&params.NoDisplayPrompt, "no-display-prompt", false, "Do not echo the prompt")
	return cmd
}

// loadCommand turns a --model value into a LOAD command: URLs are used as
// given, existing files become file:// URLs, anything else is a registry id.
func loadCommand(model string) (types.Command, error) {
	cmd := types.Command{Event: types.ActionLoad}
	if strings.Contains(model, "://") {
		cmd.URL = model
		return cmd, nil
	}
	p, err := fsutil.ExpandHome(model)
	if err != nil {
		return cmd, err
	}
	if fsutil.PathExists(p) {
		abs, err := filepath.Abs(p)
		if err != nil {
			return cmd, err
		}
		cmd.URL = registry.FileURL(abs)
		return cmd, nil
	}
	cmd.Model = model
	return cmd, nil
}

// runOnce loads the model, runs params and copies every chunk to out.
func runOnce(ctx context.Context, a *app, model string, params types.RunParams, out io.Writer) error {
	load, err := loadCommand(model)
	if err != nil {
		return err
	}
	b := worker.NewBroadcaster()
	w, err := a.newWorker(b, registry.New(a.cfg.ModelsDir))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	host := worker.NewHost(w, b)
	ev, err := host.Do(ctx, load, nil)
	if err != nil {
		return err
	}
	if err := worker.EventError(ev); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	a.log.Debug().Int64("bytes", w.Status().StagedBytes).Msg("model loaded")

	ev, err = host.Do(ctx, types.Command{Event: types.ActionRunMain, RunParams: params}, func(ev types.Event) error {
		if ev.Event != types.ActionWriteResult {
			return nil
		}
		_, err := io.WriteString(out, ev.Text)
		return err
	})
	if err != nil {
		return err
	}
	if err := worker.EventError(ev); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	_, err = io.WriteString(out, "\n")
	return err
}
