package worker

import (
	"errors"
	"fmt"

	"llamaworker/internal/engine"
)

// Stable codes carried by ERROR events.
const (
	CodeNotReady          = "not_ready"
	CodeAlreadyLoaded     = "already_loaded"
	CodeLoadFailed        = "load_failed"
	CodeFetchFailed       = "fetch_failed"
	CodeWriteFailed       = "fs_write_failed"
	CodeEngineUnavailable = "engine_unavailable"
	CodeEngineFailure     = "engine_failure"
	CodeInvalidRequest    = "invalid_request"
	CodeUnknownEvent      = "unknown_event"
	CodeInternal          = "internal"
)

// FetchError reports that the model could not be retrieved: the request
// failed, the status was not 2xx, the body was missing, or reading it broke
// mid-stream.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FilesystemWriteError reports a failure opening, writing or closing the
// staged file.
type FilesystemWriteError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemWriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemWriteError) Unwrap() error { return e.Err }

// EngineInvocationError reports that the engine's main failed.
type EngineInvocationError struct{ Err error }

func (e *EngineInvocationError) Error() string { return "engine invocation: " + e.Err.Error() }

func (e *EngineInvocationError) Unwrap() error { return e.Err }

// InvalidRequestError reports a RUN_MAIN payload outside the accepted ranges.
type InvalidRequestError struct{ Reason string }

func (e *InvalidRequestError) Error() string { return "invalid run request: " + e.Reason }

var (
	// ErrNotReady is returned for a run before the model is staged.
	ErrNotReady = errors.New("worker is not ready")
	// ErrAlreadyLoaded is returned for a second LOAD.
	ErrAlreadyLoaded = errors.New("model already loaded or loading")
	// ErrLoadFailed is returned for a run after a failed load.
	ErrLoadFailed = errors.New("model load failed; recreate the worker")
)

// IsNotReady reports whether err is a run rejected before ready.
func IsNotReady(err error) bool { return errors.Is(err, ErrNotReady) }

// IsAlreadyLoaded reports whether err is a rejected repeat LOAD.
func IsAlreadyLoaded(err error) bool { return errors.Is(err, ErrAlreadyLoaded) }

// IsFetchError reports whether err wraps a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// IsFilesystemWriteError reports whether err wraps a FilesystemWriteError.
func IsFilesystemWriteError(err error) bool {
	var we *FilesystemWriteError
	return errors.As(err, &we)
}

// IsInvalidRequest reports whether err wraps an InvalidRequestError.
func IsInvalidRequest(err error) bool {
	var ie *InvalidRequestError
	return errors.As(err, &ie)
}

// IsEngineFailure reports whether err wraps an EngineInvocationError.
func IsEngineFailure(err error) bool {
	var ee *EngineInvocationError
	return errors.As(err, &ee)
}

// ErrorCode maps an error to the code sent to the host.
func ErrorCode(err error) string {
	var ce *CodedError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ce):
		return ce.Code
	case IsNotReady(err):
		return CodeNotReady
	case IsAlreadyLoaded(err):
		return CodeAlreadyLoaded
	case errors.Is(err, ErrLoadFailed):
		return CodeLoadFailed
	case IsInvalidRequest(err):
		return CodeInvalidRequest
	case IsFetchError(err):
		return CodeFetchFailed
	case IsFilesystemWriteError(err):
		return CodeWriteFailed
	case engine.IsDependencyUnavailable(err):
		return CodeEngineUnavailable
	case IsEngineFailure(err):
		return CodeEngineFailure
	}
	return CodeInternal
}
