// Package worker bridges a host to one inference engine instance. It is
// structured into small files by concern:
//
//   - worker.go: Worker type, Config, the single-goroutine message loop.
//   - lifecycle.go: engine construction and the one-time model load.
//   - invoker.go: run request to engine argument translation and invocation.
//   - sink.go: segmenting output sink wired to the engine's stdout device.
//   - stream.go: Fetcher, streaming a model URL into the engine filesystem.
//   - events.go: EventPublisher implementations (noop, memory, broadcaster).
//   - host.go: request/response helper over the message loop.
//   - types.go: State, RunRequest, HostEnv.
//   - errors.go: error types and helpers (IsNotReady, IsFetchError, ...).
//   - metrics.go: Prometheus collectors for loads, runs and chunks.
//
// The loop processes one message at a time. A LOAD hands the download to a
// helper goroutine and keeps serving messages; a RUN_MAIN blocks the loop
// until the engine returns.
package worker
