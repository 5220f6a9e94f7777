package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"llamaworker/internal/engine"
	"llamaworker/internal/httpapi"
	"llamaworker/internal/registry"
	"llamaworker/internal/worker"
	"llamaworker/pkg/types"
)

// fakeLlama mimics the engine CLI: it checks the staged model and echoes
// the prompt. Prompt "fail" exits 3 before printing anything.
const fakeLlama = `#!/bin/sh
model=""
prompt=""
while [ $# -gt 0 ]; do
  case "$1" in
    --model) model="$2"; shift 2 ;;
    --prompt) prompt="$2"; shift 2 ;;
    *) shift ;;
  esac
done
[ -f "$model" ] || { echo "no model at $model" >&2; exit 2; }
[ "$prompt" = "fail" ] && { echo "simulated crash" >&2; exit 3; }
printf 'echo: %s, size %s!' "$prompt" "$(wc -c < "$model" | tr -d ' ')"
`

// writeEngine installs the fake engine script and returns its path.
func writeEngine(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("process engine tests need /bin/sh")
	}
	p := filepath.Join(t.TempDir(), "fake-llama")
	if err := os.WriteFile(p, []byte(fakeLlama), 0o755); err != nil {
		t.Fatalf("write engine: %v", err)
	}
	return p
}

// createTempModelsDir creates a models directory holding the given files.
func createTempModelsDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write temp model %s: %v", name, err)
		}
	}
	return dir
}

// newServer runs a worker with the given engine options behind the HTTP API.
func newServer(t *testing.T, opts engine.Options, modelsDir string) (*httptest.Server, *worker.Worker) {
	t.Helper()
	factory, err := engine.NewFactory(opts)
	if err != nil {
		t.Fatalf("engine factory: %v", err)
	}
	reg := registry.New(modelsDir)
	b := worker.NewBroadcaster()
	w, err := worker.New(worker.Config{Factory: factory, Publisher: b, ResolveModel: reg.Resolve})
	if err != nil {
		t.Fatalf("worker: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	srv := httptest.NewServer(httpapi.NewMux(httpapi.NewService(worker.NewHost(w, b), reg)))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return srv, w
}

func postJSON(t *testing.T, url string, body any) (*http.Response, []byte) {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

// readEvents decodes an NDJSON event stream.
func readEvents(t *testing.T, body []byte) []types.Event {
	t.Helper()
	var out []types.Event
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev types.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		out = append(out, ev)
	}
	return out
}

// joinText concatenates the WRITE_RESULT chunks of a stream.
func joinText(evs []types.Event) string {
	var sb strings.Builder
	for _, ev := range evs {
		if ev.Event == types.ActionWriteResult {
			sb.WriteString(ev.Text)
		}
	}
	return sb.String()
}
