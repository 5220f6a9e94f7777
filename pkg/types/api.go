package types

// Action names a worker message kind. Inbound commands and outbound events
// share the same "event" discriminator on the wire.
type Action string

const (
	// Inbound (host -> worker).
	ActionLoad    Action = "LOAD"
	ActionRunMain Action = "RUN_MAIN"

	// Outbound (worker -> host).
	ActionInitialized  Action = "INITIALIZED"
	ActionWriteResult  Action = "WRITE_RESULT"
	ActionRunCompleted Action = "RUN_COMPLETED"
	ActionError        Action = "ERROR"
)

// Terminal reports whether an outbound event ends the command it belongs to.
func (a Action) Terminal() bool {
	switch a {
	case ActionInitialized, ActionRunCompleted, ActionError:
		return true
	}
	return false
}

// RunParams are the RUN_MAIN payload fields, named after the engine's
// command-line options.
type RunParams struct {
	// Prompt text passed to the engine.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// Wrap the prompt in the ChatML template.
	ChatML bool `json:"chatml"`
	// Maximum number of tokens to predict.
	// example: 128
	NPredict int `json:"n_predict" example:"128"`
	// Context window size in tokens.
	// example: 2048
	CtxSize int `json:"ctx_size" example:"2048"`
	// Batch size. Accepted but not forwarded to the engine.
	// example: 512
	BatchSize int `json:"batch_size" example:"512"`
	// Sampling temperature.
	// example: 0.8
	Temp float64 `json:"temp" example:"0.8"`
	// Number of layers to offload to a GPU. Accepted but not forwarded.
	// example: 0
	NGPULayers int `json:"n_gpu_layers" example:"0"`
	// Top-K sampling.
	// example: 40
	TopK int `json:"top_k" example:"40"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP float64 `json:"top_p" example:"0.9"`
	// Do not echo the prompt into the output stream.
	NoDisplayPrompt bool `json:"no_display_prompt"`
}

// DefaultRunParams returns the values used for RUN_MAIN fields the host omits.
func DefaultRunParams() RunParams {
	return RunParams{
		NPredict:  128,
		CtxSize:   2048,
		BatchSize: 512,
		Temp:      0.8,
		TopK:      40,
		TopP:      0.9,
	}
}

// Command is an inbound worker message.
type Command struct {
	Event Action `json:"event"`
	// Optional correlation id echoed on every event produced for this command.
	ID string `json:"id,omitempty"`
	// LOAD: model URL (http, https or file).
	URL string `json:"url,omitempty"`
	// LOAD: registry model id, used when URL is empty.
	Model string `json:"model,omitempty"`
	RunParams
}

// Event is an outbound worker message.
type Event struct {
	Event Action `json:"event"`
	ID    string `json:"id,omitempty"`
	// WRITE_RESULT: one flushed output chunk.
	Text string `json:"text,omitempty"`
	// ERROR: stable machine-readable code and message.
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// LoadRequest is the body of POST /load.
type LoadRequest struct {
	// Model URL. Takes precedence over Model.
	// example: https://huggingface.co/TheBloke/TinyLlama-1.1B-Chat-v1.0-GGUF/resolve/main/tinyllama-1.1b-chat-v1.0.Q4_K_M.gguf
	URL string `json:"url,omitempty"`
	// Registry model id.
	// example: tinyllama-q4.gguf
	Model string `json:"model,omitempty" example:"tinyllama-q4.gguf"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: worker is not ready
	Error string `json:"error" example:"worker is not ready"`
	// HTTP status code.
	// example: 409
	Code int `json:"code" example:"409"`
	// Worker error code, when the failure came from the worker.
	// example: not_ready
	Reason string `json:"reason,omitempty" example:"not_ready"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Lifecycle state: uninitialized, loading, ready or failed.
	// example: ready
	State string `json:"state" example:"ready"`
	// Engine kind backing the worker.
	// example: wasm
	Engine string `json:"engine" example:"wasm"`
	// URL of the staged model, if a load was requested.
	ModelURL string `json:"model_url,omitempty"`
	// Bytes written to the staged model file so far.
	// example: 669000000
	StagedBytes int64 `json:"staged_bytes" example:"669000000"`
	// Whether a run is currently executing.
	Running bool `json:"running"`
	// Number of runs that returned normally.
	// example: 3
	RunsCompleted uint64 `json:"runs_completed" example:"3"`
	// Last error observed by the worker, if any.
	LastError string `json:"last_error,omitempty"`
	// Uptime in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
