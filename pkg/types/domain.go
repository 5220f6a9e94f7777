package types

// Model represents a model artifact the worker can stage.
type Model struct {
	// Stable identifier for the model.
	// example: tinyllama-q4.gguf
	ID string `json:"id" example:"tinyllama-q4.gguf"`
	// Human-friendly name.
	// example: tinyllama-q4
	Name string `json:"name" example:"tinyllama-q4"`
	// URL the model is fetched from when loaded by id.
	// example: file:///home/user/models/tinyllama-q4.gguf
	URL string `json:"url" example:"file:///home/user/models/tinyllama-q4.gguf"`
	// Size of the artifact in bytes (0 when unknown).
	// example: 669000000
	SizeBytes int64 `json:"size_bytes,omitempty" example:"669000000"`
}
