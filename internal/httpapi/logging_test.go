package httpapi

import (
	"bytes"
	"log"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"llamaworker/pkg/types"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"":      LevelOff,
		"off":   LevelOff,
		"error": LevelError,
		"info":  LevelInfo,
		"DEBUG": LevelDebug,
		"weird": LevelInfo, // default
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRequestLogLevel_Overrides(t *testing.T) {
	defer SetRequestLogLevel("info")
	SetRequestLogLevel("error")
	r := httptest.NewRequest("GET", "/x", nil)
	if got := requestLogLevel(r); got != LevelError {
		t.Fatalf("default level not applied: %v", got)
	}
	r = httptest.NewRequest("GET", "/x?log=debug", nil)
	if got := requestLogLevel(r); got != LevelDebug {
		t.Fatalf("query override failed: %v", got)
	}
	r = httptest.NewRequest("GET", "/x?log=1", nil)
	if got := requestLogLevel(r); got != LevelDebug {
		t.Fatalf("short query override failed: %v", got)
	}
	r = httptest.NewRequest("GET", "/x", nil)
	r.Header.Set("X-Log-Level", "off")
	if got := requestLogLevel(r); got != LevelOff {
		t.Fatalf("header override failed: %v", got)
	}
}

func TestEventLogWriter_SplitsLines(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Writer()
	defer log.SetOutput(orig)
	log.SetOutput(&buf)

	lw := &eventLogWriter{}
	_, _ = lw.Write([]byte("a line\npartial"))
	_, _ = lw.Write([]byte("-cont\nlast\n"))

	out := buf.String()
	for _, want := range []string{"run> a line", "run> partial-cont", "run> last"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

func TestRunDebugLoggingUsesZerolog(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))
	defer func() { zlog = nil }()

	svc := &mockService{events: []types.Event{
		{Event: types.ActionWriteResult, Text: "Hi "},
		{Event: types.ActionRunCompleted},
	}}
	rec := postJSON(NewMux(svc), "/run?log=debug", `{"prompt":"hi"}`)
	if rec.Code != 200 {
		t.Fatalf("status=%d", rec.Code)
	}
	out := buf.String()
	for _, want := range []string{`"message":"run start"`, `"message":"run event"`, `"text":"Hi "`, `"message":"run end"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in log: %s", want, out)
		}
	}
}

func TestFailedCommandLoggedAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	defer func() { zlog = nil }()

	svc := &mockService{events: []types.Event{{Event: types.ActionError, Code: "fetch_failed", Error: "404"}}}
	rec := postJSON(NewMux(svc), "/load?log=error", `{"url":"http://x/m"}`)
	if rec.Code != 502 {
		t.Fatalf("status=%d", rec.Code)
	}
	out := buf.String()
	if strings.Contains(out, "load start") || !strings.Contains(out, `"reason":"fetch_failed"`) {
		t.Fatalf("unexpected log: %s", out)
	}
}
