package worker

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"llamaworker/pkg/types"
)

// Host turns the fire-and-forget message protocol into request/response
// calls. The worker must publish to the Host's Broadcaster.
type Host struct {
	w *Worker
	b *Broadcaster
}

func NewHost(w *Worker, b *Broadcaster) *Host { return &Host{w: w, b: b} }

// Worker returns the underlying worker.
func (h *Host) Worker() *Worker { return h.w }

// Do posts cmd under a fresh correlation id and passes every event for it
// to onEvent until the terminal one, which is returned. A non-nil error from
// onEvent stops forwarding; the command itself keeps running on the worker.
func (h *Host) Do(ctx context.Context, cmd types.Command, onEvent func(types.Event) error) (types.Event, error) {
	cmd.ID = uuid.NewString()
	// subscribed to this id only: a caller still blocked in Post must
	// not hold up the fan-out of another command's events
	events, cancel := h.b.Subscribe(cmd.ID, 64)
	defer cancel()
	if err := h.w.Post(ctx, cmd); err != nil {
		return types.Event{}, err
	}
	for {
		select {
		case <-ctx.Done():
			return types.Event{}, ctx.Err()
		case ev := <-events:
			if onEvent != nil {
				if err := onEvent(ev); err != nil {
					return ev, err
				}
			}
			if ev.Event.Terminal() {
				return ev, nil
			}
		}
	}
}

// EventError converts a terminal ERROR event back into an error whose code
// survives ErrorCode.
func EventError(ev types.Event) error {
	if ev.Event != types.ActionError {
		return nil
	}
	return &CodedError{Code: ev.Code, Err: errors.New(ev.Error)}
}

// CodedError carries an ERROR event's code.
type CodedError struct {
	Code string
	Err  error
}

func (e *CodedError) Error() string { return e.Err.Error() }

func (e *CodedError) Unwrap() error { return e.Err }
