package worker

import (
	"fmt"

	"llamaworker/pkg/types"
)

// ModelPath is where the model is staged inside the engine filesystem.
const ModelPath = "/models/model.bin"

// State is the engine lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateReady         State = "ready"
	StateFailed        State = "failed" // terminal; recreate the worker
)

// RunRequest is one validated RUN_MAIN payload.
type RunRequest struct {
	Prompt             string
	ChatModeEnabled    bool
	MaxPredictedTokens int
	ContextSize        int
	BatchSize          int
	Temperature        float64
	GPULayerCount      int
	TopK               int
	TopP               float64
	SuppressPromptEcho bool
}

// RequestFromParams maps wire fields onto a RunRequest.
func RequestFromParams(p types.RunParams) RunRequest {
	return RunRequest{
		Prompt:             p.Prompt,
		ChatModeEnabled:    p.ChatML,
		MaxPredictedTokens: p.NPredict,
		ContextSize:        p.CtxSize,
		BatchSize:          p.BatchSize,
		Temperature:        p.Temp,
		GPULayerCount:      p.NGPULayers,
		TopK:               p.TopK,
		TopP:               p.TopP,
		SuppressPromptEcho: p.NoDisplayPrompt,
	}
}

// Validate checks the numeric ranges of the request.
func (r RunRequest) Validate() error {
	switch {
	case r.MaxPredictedTokens <= 0:
		return invalidRequest("n_predict must be > 0, got %d", r.MaxPredictedTokens)
	case r.ContextSize <= 0:
		return invalidRequest("ctx_size must be > 0, got %d", r.ContextSize)
	case r.BatchSize <= 0:
		return invalidRequest("batch_size must be > 0, got %d", r.BatchSize)
	case r.Temperature < 0:
		return invalidRequest("temp must be >= 0, got %v", r.Temperature)
	case r.GPULayerCount < 0:
		return invalidRequest("n_gpu_layers must be >= 0, got %d", r.GPULayerCount)
	case r.TopK < 0:
		return invalidRequest("top_k must be >= 0, got %d", r.TopK)
	case r.TopP < 0 || r.TopP > 1:
		return invalidRequest("top_p must be in [0,1], got %v", r.TopP)
	}
	return nil
}

func invalidRequest(format string, args ...any) error {
	return &InvalidRequestError{Reason: fmt.Sprintf(format, args...)}
}

// HostEnv describes the execution environment the engine runs in.
type HostEnv struct {
	// SharedMemory gates the --threads argument.
	SharedMemory bool
	// Concurrency is the --threads value.
	Concurrency int
}
