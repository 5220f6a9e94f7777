package engine

import (
	"errors"
	"io"

	"github.com/spf13/pflag"
)

// nativeArgs mirrors the subset of the llama.cpp CLI the worker emits.
type nativeArgs struct {
	model           string
	prompt          string
	nPredict        int
	ctxSize         int
	threads         int
	topK            int
	temp            float64
	topP            float64
	chatML          bool
	noDisplayPrompt bool
}

func parseNativeArgs(args []string) (nativeArgs, error) {
	var a nativeArgs
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&a.model, "model", "", "")
	fs.StringVar(&a.prompt, "prompt", "", "")
	fs.IntVar(&a.nPredict, "n-predict", 128, "")
	fs.IntVar(&a.ctxSize, "ctx-size", 2048, "")
	fs.IntVar(&a.threads, "threads", 1, "")
	fs.IntVar(&a.topK, "top_k", 40, "")
	fs.Float64Var(&a.temp, "temp", 0.8, "")
	fs.Float64Var(&a.topP, "top_p", 0.9, "")
	fs.BoolVar(&a.chatML, "chatml", false, "")
	fs.BoolVar(&a.noDisplayPrompt, "no-display-prompt", false, "")
	fs.Bool("simple-io", false, "")
	fs.Bool("log-disable", false, "")
	if err := fs.Parse(args); err != nil {
		return a, err
	}
	if a.model == "" {
		return a, errors.New("--model is required")
	}
	return a, nil
}
