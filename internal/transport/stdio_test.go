package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llamaworker/internal/engine/enginetest"
	"llamaworker/internal/worker"
	"llamaworker/pkg/types"
)

func TestDecodeCommandAppliesDefaults(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"event":"RUN_MAIN","id":"7","prompt":"hi","temp":0.2,"chatml":true}`))
	require.NoError(t, err)
	assert.Equal(t, types.ActionRunMain, cmd.Event)
	assert.Equal(t, "7", cmd.ID)
	assert.Equal(t, 0.2, cmd.Temp)
	assert.True(t, cmd.ChatML)
	assert.Equal(t, 128, cmd.NPredict)
	assert.Equal(t, 2048, cmd.CtxSize)
	assert.Equal(t, 0.9, cmd.TopP)
}

func TestDecodeCommandRejectsInvalid(t *testing.T) {
	bad := []string{
		`not json`,
		`{"url":"http://x"}`,
		`{"event":"DANCE"}`,
		`{"event":"LOAD"}`,
		`{"event":"LOAD","url":""}`,
		`{"event":"RUN_MAIN"}`,
		`{"event":"RUN_MAIN","prompt":"p","top_p":1.5}`,
		`{"event":"RUN_MAIN","prompt":"p","n_predict":0}`,
		`{"event":"RUN_MAIN","prompt":"p","top_k":2.5}`,
		`{"event":"RUN_MAIN","prompt":"p","chatml":"yes"}`,
	}
	for _, in := range bad {
		_, err := DecodeCommand([]byte(in))
		assert.Errorf(t, err, "expected %s to be rejected", in)
	}
	cmd, err := DecodeCommand([]byte(`{"event":"LOAD","model":"tiny"}`))
	require.NoError(t, err)
	assert.Equal(t, "tiny", cmd.Model)
}

func TestStdioServesLoadAndRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("model"))
	}))
	defer srv.Close()

	eng := enginetest.New(enginetest.Echo("Hi there!"))
	var out bytes.Buffer
	st := NewStdio(&out, zerolog.Nop())
	w, err := worker.New(worker.Config{Factory: eng.Factory(), Publisher: st})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	in := strings.Join([]string{
		`{"event":"LOAD","id":"1","url":"` + srv.URL + `/m.gguf"}`,
		``,
		`{"event":"RUN_MAIN","id":"oops","prompt":"x","top_p":7}`,
		`{"event":"RUN_MAIN","id":"2","prompt":"<|im_start|>","no_display_prompt":true}`,
	}, "\n")
	// LOAD is asynchronous and a run is only accepted once ready, so the
	// remaining lines are fed after the load has finished.
	pr := &gatedReader{lines: strings.Split(in, "\n"), wait: func(i int) {
		if i == 2 {
			require.Eventually(t, func() bool { return w.State() == worker.StateReady }, 5*time.Second, time.Millisecond)
		}
	}}
	require.NoError(t, st.Serve(ctx, w, pr))

	var got []types.Event
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var ev types.Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		got = append(got, ev)
	}
	require.Len(t, got, 5)
	assert.Equal(t, types.Event{Event: types.ActionInitialized, ID: "1"}, got[0])
	assert.Equal(t, types.Event{Event: types.ActionError, ID: "oops", Code: worker.CodeInvalidRequest, Error: got[1].Error}, got[1])
	assert.Contains(t, got[1].Error, "top_p")
	assert.Equal(t, types.Event{Event: types.ActionWriteResult, ID: "2", Text: "Hi "}, got[2])
	assert.Equal(t, types.Event{Event: types.ActionWriteResult, ID: "2", Text: "there!"}, got[3])
	assert.Equal(t, types.Event{Event: types.ActionRunCompleted, ID: "2"}, got[4])
	assert.Contains(t, eng.Calls()[0], "<|im_start|>")
}

// gatedReader yields one line per Read, calling wait before line i.
type gatedReader struct {
	lines []string
	i     int
	wait  func(i int)
}

func (g *gatedReader) Read(p []byte) (int, error) {
	if g.i >= len(g.lines) {
		return 0, io.EOF
	}
	g.wait(g.i)
	n := copy(p, g.lines[g.i]+"\n")
	g.i++
	return n, nil
}

func TestEncoderWritesRawText(t *testing.T) {
	var buf bytes.Buffer
	NewEncoder(&buf).Publish(types.Event{Event: types.ActionWriteResult, Text: "<|im_end|>&"})
	assert.Equal(t, `{"event":"WRITE_RESULT","text":"<|im_end|>&"}`+"\n", buf.String())
}

func TestEncoderStopsAfterWriteError(t *testing.T) {
	fw := &failWriter{}
	enc := NewEncoder(fw)
	enc.Publish(types.Event{Event: types.ActionRunCompleted})
	require.Error(t, enc.Err())
	enc.Publish(types.Event{Event: types.ActionRunCompleted})
	assert.Equal(t, 1, fw.calls)
}

type failWriter struct{ calls int }

func (f *failWriter) Write([]byte) (int, error) {
	f.calls++
	return 0, assert.AnError
}
