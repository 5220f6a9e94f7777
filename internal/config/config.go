package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"llamaworker/internal/engine"
	"llamaworker/internal/logging"
)

// Config holds runtime parameters for the worker.
type Config struct {
	Addr      string       `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir string       `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	Engine    EngineConfig `json:"engine" yaml:"engine" toml:"engine"`
	Log       LogConfig    `json:"log" yaml:"log" toml:"log"`
	HTTP      HTTPConfig   `json:"http" yaml:"http" toml:"http"`
	Fetch     FetchConfig  `json:"fetch" yaml:"fetch" toml:"fetch"`
}

// EngineConfig selects and tunes the inference engine.
type EngineConfig struct {
	Kind string `json:"kind" yaml:"kind" toml:"kind"`
	// Root is the host directory backing the engine filesystem.
	Root        string   `json:"root" yaml:"root" toml:"root"`
	WasmPath    string   `json:"wasm_path" yaml:"wasm_path" toml:"wasm_path"`
	WasmThreads bool     `json:"wasm_threads" yaml:"wasm_threads" toml:"wasm_threads"`
	CacheDir    string   `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir"`
	Binary      string   `json:"binary" yaml:"binary" toml:"binary"`
	Env         []string `json:"env" yaml:"env" toml:"env"`
	// Threads overrides the --threads value; 0 uses the CPU count.
	Threads    int      `json:"threads" yaml:"threads" toml:"threads"`
	RunTimeout Duration `json:"run_timeout" yaml:"run_timeout" toml:"run_timeout"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`
	Format string `json:"format" yaml:"format" toml:"format"`
	File   string `json:"file" yaml:"file" toml:"file"`
}

type HTTPConfig struct {
	MaxBodyBytes int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	CORSOrigins  []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	// LogLevel controls per-request logging: off|error|info|debug.
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
	// RequestTimeout bounds /load and /run; 0 means none.
	RequestTimeout Duration `json:"request_timeout" yaml:"request_timeout" toml:"request_timeout"`
}

type FetchConfig struct {
	Token     string   `json:"token" yaml:"token" toml:"token"`
	UserAgent string   `json:"user_agent" yaml:"user_agent" toml:"user_agent"`
	Timeout   Duration `json:"timeout" yaml:"timeout" toml:"timeout"`
}

// Duration is a time.Duration written as "30s" in every config format.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "0" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

// Defaults applied by Finalize when corresponding fields are unset.
const (
	DefaultAddr         = ":8080"
	DefaultModelsDir    = "~/models/llm"
	DefaultEngineRoot   = "~/.cache/llamaworker/fs"
	DefaultBinary       = "llama-cli"
	DefaultMaxBodyBytes = 1 << 20
	DefaultUserAgent    = "llamaworker"
)

// Finalize fills unset fields with defaults and validates the result.
func (c *Config) Finalize() error {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ModelsDir == "" {
		c.ModelsDir = DefaultModelsDir
	}
	if c.Engine.Kind == "" {
		c.Engine.Kind = string(engine.KindWasm)
	}
	if c.Engine.Root == "" {
		c.Engine.Root = DefaultEngineRoot
	}
	if c.Engine.Kind == string(engine.KindProcess) && c.Engine.Binary == "" {
		c.Engine.Binary = DefaultBinary
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.HTTP.LogLevel == "" {
		c.HTTP.LogLevel = "info"
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = DefaultUserAgent
	}
	return c.Validate()
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if _, err := engine.ParseKind(c.Engine.Kind); err != nil {
		errs = append(errs, err)
	}
	if c.Engine.Kind == string(engine.KindWasm) && c.Engine.WasmPath == "" {
		errs = append(errs, errors.New("engine.wasm_path is required for the wasm engine"))
	}
	if c.Engine.Threads < 0 {
		errs = append(errs, fmt.Errorf("engine.threads must be >= 0, got %d", c.Engine.Threads))
	}
	if c.Engine.RunTimeout < 0 {
		errs = append(errs, errors.New("engine.run_timeout must be >= 0"))
	}
	if c.HTTP.RequestTimeout < 0 {
		errs = append(errs, errors.New("http.request_timeout must be >= 0"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// envPrefix namespaces environment overrides.
const envPrefix = "LLAMAWORKER_"

// ApplyEnv overrides fields from LLAMAWORKER_* variables. HF_TOKEN is used
// as the fetch token when LLAMAWORKER_FETCH_TOKEN is unset.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	str("ADDR", &c.Addr)
	str("MODELS_DIR", &c.ModelsDir)
	str("ENGINE", &c.Engine.Kind)
	str("ENGINE_ROOT", &c.Engine.Root)
	str("WASM_PATH", &c.Engine.WasmPath)
	str("ENGINE_BINARY", &c.Engine.Binary)
	str("CACHE_DIR", &c.Engine.CacheDir)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("LOG_FILE", &c.Log.File)
	str("FETCH_TOKEN", &c.Fetch.Token)
	if c.Fetch.Token == "" {
		if v, ok := lookup("HF_TOKEN"); ok {
			c.Fetch.Token = v
		}
	}
	if v, ok := lookup(envPrefix + "THREADS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sTHREADS: %w", envPrefix, err)
		}
		c.Engine.Threads = n
	}
	if err := envDuration(lookup, "RUN_TIMEOUT", &c.Engine.RunTimeout); err != nil {
		return err
	}
	return envDuration(lookup, "HTTP_REQUEST_TIMEOUT", &c.HTTP.RequestTimeout)
}

func envDuration(lookup func(string) (string, bool), key string, dst *Duration) error {
	v, ok := lookup(envPrefix + key)
	if !ok || v == "" {
		return nil
	}
	if err := dst.UnmarshalText([]byte(v)); err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return nil
}

// EngineOptions converts the engine section for engine.NewFactory.
func (c Config) EngineOptions() engine.Options {
	return engine.Options{
		Kind: engine.Kind(c.Engine.Kind),
		Root: c.Engine.Root,
		Wasm: engine.WasmOptions{
			Path:     c.Engine.WasmPath,
			CacheDir: c.Engine.CacheDir,
			Threads:  c.Engine.WasmThreads,
		},
		Process: engine.ProcessOptions{
			Binary: c.Engine.Binary,
			Env:    c.Engine.Env,
		},
	}
}
