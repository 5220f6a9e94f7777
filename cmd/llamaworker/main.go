package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"llamaworker/docs"
	"llamaworker/internal/config"
	"llamaworker/internal/engine"
	"llamaworker/internal/logging"
	"llamaworker/internal/registry"
	"llamaworker/internal/worker"
)

var version = "dev"

// flags holds the persistent flag values; set ones override the config file.
type flags struct {
	configPath string
	logLevel   string
	logFormat  string
	logFile    string
	modelsDir  string
	engineKind string
	engineRoot string
	wasmPath   string
	binary     string
	threads    int
	addr       string
}

func main() {
	docs.SwaggerInfo.Version = version
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "llamaworker:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command { return newRootCmdWith(&flags{}) }

// newRootCmdWith builds the command tree with flag values bound to f.
func newRootCmdWith(f *flags) *cobra.Command {
	root := &cobra.Command{
		Use:           "llamaworker",
		Short:         "Sandboxed llama inference worker",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "Config file (.yaml, .json or .toml)")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level: trace|debug|info|warn|error|off")
	pf.StringVar(&f.logFormat, "log-format", "", "Log format: console|json")
	pf.StringVar(&f.logFile, "log-file", "", "Also write JSON logs to this rotated file")
	pf.StringVar(&f.modelsDir, "models-dir", "", "Directory scanned for *.gguf/*.bin models")
	pf.StringVar(&f.engineKind, "engine", "", "Engine kind: wasm|process|native")
	pf.StringVar(&f.engineRoot, "engine-root", "", "Host directory backing the engine filesystem")
	pf.StringVar(&f.wasmPath, "wasm", "", "Path to the WASI engine module")
	pf.StringVar(&f.binary, "engine-binary", "", "Engine executable for the process engine")
	pf.IntVar(&f.threads, "threads", 0, "Override the --threads value passed to the engine")

	root.AddCommand(newServeCmd(f), newStdioCmd(f), newRunCmd(f))
	return root
}

// loadConfig layers file, environment and explicitly set flags, then
// applies defaults.
func loadConfig(cmd *cobra.Command, f *flags) (config.Config, error) {
	cfg, err := config.Prepare(f.configPath)
	if err != nil {
		return cfg, err
	}
	fl := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if fl.Changed(name) {
			*dst = v
		}
	}
	set("log-level", &cfg.Log.Level, f.logLevel)
	set("log-format", &cfg.Log.Format, f.logFormat)
	set("log-file", &cfg.Log.File, f.logFile)
	set("models-dir", &cfg.ModelsDir, f.modelsDir)
	set("engine", &cfg.Engine.Kind, f.engineKind)
	set("engine-root", &cfg.Engine.Root, f.engineRoot)
	set("wasm", &cfg.Engine.WasmPath, f.wasmPath)
	set("engine-binary", &cfg.Engine.Binary, f.binary)
	set("addr", &cfg.Addr, f.addr)
	if fl.Changed("threads") {
		cfg.Engine.Threads = f.threads
	}
	return cfg, cfg.Finalize()
}

// app is the state shared by every subcommand.
type app struct {
	cfg    config.Config
	log    zerolog.Logger
	closer io.Closer
	// factory overrides the configured engine (tests).
	factory engine.Factory
}

// newApp loads the config and builds a logger writing to logOut.
func newApp(cmd *cobra.Command, f *flags, logOut io.Writer) (*app, error) {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log, closer, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		Out:    logOut,
	})
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, closer: closer}, nil
}

func (a *app) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// newWorker builds a worker publishing to pub. Models are resolved through
// reg when it is non-nil.
func (a *app) newWorker(pub worker.EventPublisher, reg *registry.Registry) (*worker.Worker, error) {
	factory := a.factory
	if factory == nil {
		var err error
		if factory, err = engine.NewFactory(a.cfg.EngineOptions()); err != nil {
			return nil, err
		}
	}
	fetcher := worker.NewFetcher(worker.FetchOptions{
		Token:     a.cfg.Fetch.Token,
		UserAgent: a.cfg.Fetch.UserAgent,
		Timeout:   a.cfg.Fetch.Timeout.Std(),
	})
	log := a.log.With().Str("component", "worker").Logger()
	wc := worker.Config{
		Factory:    factory,
		Fetcher:    fetcher,
		Publisher:  pub,
		Logger:     &log,
		Threads:    a.cfg.Engine.Threads,
		RunTimeout: a.cfg.Engine.RunTimeout.Std(),
	}
	if reg != nil {
		wc.ResolveModel = reg.Resolve
	}
	return worker.New(wc)
}
