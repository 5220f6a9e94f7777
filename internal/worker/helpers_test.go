package worker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"llamaworker/pkg/types"
)

// modelServer serves body for any path; gate, when set, holds the response
// until it is closed.
func modelServer(t *testing.T, body string, gate <-chan struct{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// startWorker runs a worker until the test ends.
func startWorker(t *testing.T, cfg Config) (*Worker, *MemoryPublisher) {
	t.Helper()
	pub := NewMemoryPublisher()
	if cfg.Publisher == nil {
		cfg.Publisher = pub
	}
	w, err := New(cfg)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w, pub
}

func post(t *testing.T, w *Worker, cmd types.Command) {
	t.Helper()
	require.NoError(t, w.Post(context.Background(), cmd))
}

// waitEvents waits until the publisher holds n events.
func waitEvents(t *testing.T, pub *MemoryPublisher, n int) []types.Event {
	t.Helper()
	require.Eventually(t, func() bool { return len(pub.Events()) >= n }, 5*time.Second, 5*time.Millisecond,
		"want %d events", n)
	return pub.Events()
}

func runCmd(id, prompt string) types.Command {
	p := types.DefaultRunParams()
	p.Prompt = prompt
	return types.Command{Event: types.ActionRunMain, ID: id, RunParams: p}
}

var errEngineCrashed = errors.New("engine crashed")

// testRequest is a valid request with default sampling values.
func testRequest(prompt string) RunRequest {
	p := types.DefaultRunParams()
	p.Prompt = prompt
	return RequestFromParams(p)
}
