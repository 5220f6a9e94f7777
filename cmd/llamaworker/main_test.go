package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llamaworker/internal/config"
	"llamaworker/internal/engine/enginetest"
	"llamaworker/internal/httpapi"
	"llamaworker/internal/registry"
	"llamaworker/pkg/types"
)

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte("engine:\n  kind: wasm\n  wasm_path: /opt/main.wasm\n  threads: 2\nlog:\n  level: warn\n"), 0o644))

	f := &flags{}
	root := newRootCmdWith(f)
	cmd, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags([]string{"--config", p, "--engine", "process", "--engine-binary", "/bin/true", "--addr", ":9000"}))

	cfg, err := loadConfig(cmd, f)
	require.NoError(t, err)
	assert.Equal(t, "process", cfg.Engine.Kind)
	assert.Equal(t, "/bin/true", cfg.Engine.Binary)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 2, cfg.Engine.Threads, "unset flags keep file values")
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	f := &flags{}
	root := newRootCmdWith(f)
	cmd, _, err := root.Find([]string{"stdio"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags([]string{"--engine", "gpu"}))
	_, err = loadConfig(cmd, f)
	assert.ErrorContains(t, err, "unknown engine kind")
}

func TestLoadCommand(t *testing.T) {
	cmd, err := loadCommand("https://example.com/m.gguf")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/m.gguf", cmd.URL)

	p := filepath.Join(t.TempDir(), "local.gguf")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	cmd, err = loadCommand(p)
	require.NoError(t, err)
	assert.Equal(t, registry.FileURL(p), cmd.URL)

	cmd, err = loadCommand("tiny.gguf")
	require.NoError(t, err)
	assert.Equal(t, types.ActionLoad, cmd.Event)
	assert.Equal(t, "tiny.gguf", cmd.Model)
	assert.Empty(t, cmd.URL)
}

func testApp(t *testing.T, fake *enginetest.Fake) (*app, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tiny.gguf"), []byte("weights"), 0o644))
	return &app{cfg: config.Config{ModelsDir: dir}, log: zerolog.Nop(), factory: fake.Factory()}, dir
}

func TestRunOnceByRegistryID(t *testing.T) {
	fake := enginetest.New(enginetest.Echo("Hi there!"))
	a, _ := testApp(t, fake)
	params := types.DefaultRunParams()
	params.Prompt = "hello"

	var out bytes.Buffer
	require.NoError(t, runOnce(context.Background(), a, "tiny.gguf", params, &out))
	assert.Equal(t, "Hi there!\n", out.String())
	staged, ok := fake.Mem.ReadFile("/models/model.bin")
	require.True(t, ok)
	assert.Equal(t, "weights", string(staged))
	assert.True(t, fake.Closed(), "engine is closed when the worker stops")
}

func TestRunOnceReportsWorkerErrors(t *testing.T) {
	a, _ := testApp(t, enginetest.New(enginetest.Echo("x ")))
	err := runOnce(context.Background(), a, "missing.gguf", types.DefaultRunParams(), io.Discard)
	assert.ErrorContains(t, err, "load:")

	params := types.DefaultRunParams()
	params.TopP = 3
	a, dir := testApp(t, enginetest.New(nil))
	err = runOnce(context.Background(), a, filepath.Join(dir, "tiny.gguf"), params, io.Discard)
	assert.ErrorContains(t, err, "run:")
}

// lockedBuffer is a bytes.Buffer safe for one writer and concurrent readers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunStdio(t *testing.T) {
	a, _ := testApp(t, enginetest.New(enginetest.Echo("Hi there!")))
	in, feed := io.Pipe()
	out := &lockedBuffer{}
	done := make(chan error, 1)
	go func() { done <- runStdio(context.Background(), a, in, out) }()

	_, err := io.WriteString(feed, `{"event":"LOAD","id":"l","model":"tiny.gguf"}`+"\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "INITIALIZED") }, 5*time.Second, 5*time.Millisecond)
	_, err = io.WriteString(feed, `{"event":"RUN_MAIN","id":"r","prompt":"hi"}`+"\n")
	require.NoError(t, err)
	require.NoError(t, feed.Close())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stdio worker did not exit after input closed")
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], `"text":"Hi "`)
	assert.Contains(t, lines[2], `"text":"there!"`)
	assert.Contains(t, lines[3], `"RUN_COMPLETED"`)
}

// stallService never completes a command before its context ends.
type stallService struct{}

func (stallService) ListModels() ([]types.Model, error) { return nil, nil }
func (stallService) Status() types.StatusResponse       { return types.StatusResponse{} }
func (stallService) Ready() bool                        { return true }
func (stallService) Do(ctx context.Context, _ types.Command, _ func(types.Event) error) (types.Event, error) {
	<-ctx.Done()
	return types.Event{}, ctx.Err()
}

func TestConfigureHTTPAppliesRequestTimeout(t *testing.T) {
	a := &app{log: zerolog.Nop()}
	a.cfg.HTTP.LogLevel = "off"
	a.cfg.HTTP.RequestTimeout = config.Duration(30 * time.Millisecond)
	configureHTTP(context.Background(), a)
	t.Cleanup(func() {
		httpapi.SetRequestTimeout(0)
		httpapi.SetRequestLogLevel("info")
	})

	srv := httptest.NewServer(httpapi.NewMux(stallService{}))
	defer srv.Close()
	resp, err := http.Post(srv.URL+"/load", "application/json", strings.NewReader(`{"model":"tiny.gguf"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
}
