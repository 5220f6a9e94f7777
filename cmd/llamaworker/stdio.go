package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"llamaworker/internal/registry"
	"llamaworker/internal/transport"
)

func newStdioCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Speak the worker protocol as JSON lines on stdin/stdout",
		Long: "Reads LOAD and RUN_MAIN commands, one JSON object per line, from stdin and\n" +
			"writes INITIALIZED, WRITE_RESULT, RUN_COMPLETED and ERROR events to stdout.\n" +
			"Logs go to stderr. The worker exits once stdin is closed and every command\n" +
			"has finished.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, f, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runStdio(ctx, a, os.Stdin, os.Stdout)
		},
	}
}

func runStdio(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	st := transport.NewStdio(out, a.log.With().Str("component", "stdio").Logger())
	w, err := a.newWorker(st, registry.New(a.cfg.ModelsDir))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		return st.Serve(gctx, w, in)
	})
	return g.Wait()
}
