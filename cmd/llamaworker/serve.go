package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"llamaworker/internal/config"
	"llamaworker/internal/httpapi"
	"llamaworker/internal/logging"
	"llamaworker/internal/registry"
	"llamaworker/internal/worker"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the worker over HTTP",
		Example: "  llamaworker serve --engine process --engine-binary llama-cli\n" +
			"  llamaworker serve -c llamaworker.yaml",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, f, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a, f.configPath, cmd.Flags().Changed("log-level"))
		},
	}
	cmd.Flags().StringVar(&f.addr, "addr", "", "HTTP listen address (default "+config.DefaultAddr+")")
	return cmd
}

// configureHTTP applies the http config section to the httpapi package.
func configureHTTP(ctx context.Context, a *app) {
	httpapi.SetLogger(a.log.With().Str("component", "http").Logger())
	httpapi.SetMaxBodyBytes(a.cfg.HTTP.MaxBodyBytes)
	httpapi.SetCORSOrigins(a.cfg.HTTP.CORSOrigins)
	httpapi.SetRequestLogLevel(a.cfg.HTTP.LogLevel)
	httpapi.SetRequestTimeout(a.cfg.HTTP.RequestTimeout.Std())
	httpapi.SetBaseContext(ctx)
}

// serve runs the worker loop and the HTTP server until ctx is done or
// either of them fails. With a config file, log levels follow its edits
// unless pinned by a flag.
func serve(ctx context.Context, a *app, configPath string, levelPinned bool) error {
	reg := registry.New(a.cfg.ModelsDir)
	b := worker.NewBroadcaster()
	w, err := a.newWorker(b, reg)
	if err != nil {
		return err
	}

	configureHTTP(ctx, a)

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, a.log, func(c config.Config, err error) {
			if err != nil {
				return
			}
			httpapi.SetRequestLogLevel(c.HTTP.LogLevel)
			if levelPinned {
				return
			}
			if err := logging.SetLevel(c.Log.Level); err != nil {
				a.log.Warn().Err(err).Msg("ignoring reloaded log level")
			}
		})
		if err != nil {
			a.log.Warn().Err(err).Msg("config hot reload disabled")
		} else {
			defer watcher.Close()
		}
	}

	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           httpapi.NewMux(httpapi.NewService(worker.NewHost(w, b), reg)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	g.Go(func() error {
		a.log.Info().Str("addr", a.cfg.Addr).Str("engine", a.cfg.Engine.Kind).Str("models_dir", a.cfg.ModelsDir).Msg("llamaworker listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			a.log.Warn().Err(err).Msg("graceful shutdown")
		}
		return nil
	})
	return g.Wait()
}
