package httpapi

import (
	"bytes"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, falls back to log.Printf.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

// eventLogWriter logs complete NDJSON event lines of a /run stream.
type eventLogWriter struct {
	rid string
	buf []byte
}

func (lw *eventLogWriter) Write(p []byte) (int, error) {
	lw.buf = append(lw.buf, p...)
	for {
		idx := bytes.IndexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		if line := string(lw.buf[:idx]); line != "" {
			if zlog != nil {
				zlog.Debug().Str("request_id", lw.rid).RawJSON("event", lw.buf[:idx]).Msg("run event")
			} else {
				log.Printf("run> %s", line)
			}
		}
		lw.buf = lw.buf[idx+1:]
	}
	return len(p), nil
}

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

var defaultLogLevel = LevelInfo

// SetRequestLogLevel sets the default per-request log level
// (off|error|info|debug).
func SetRequestLogLevel(s string) { defaultLogLevel = parseLevel(s) }

func requestLogLevel(r *http.Request) LogLevel {
	// Per-request overrides
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// logCommandStart records the beginning of a /load or /run request.
func logCommandStart(r *http.Request, lvl LogLevel, what string) {
	if lvl < LevelInfo {
		return
	}
	if zlog == nil {
		log.Printf("%s start path=%s", what, r.URL.Path)
		return
	}
	zlog.Info().Str("path", r.URL.Path).Str("request_id", middleware.GetReqID(r.Context())).Msg(what + " start")
}

// logCommandEnd records how a /load or /run request finished. Failures are
// logged from LevelError, successes from LevelInfo.
func logCommandEnd(r *http.Request, lvl LogLevel, what string, status int, start time.Time, reason string) {
	failed := status >= http.StatusBadRequest || reason != ""
	if lvl == LevelOff || (!failed && lvl < LevelInfo) {
		return
	}
	if zlog == nil {
		log.Printf("%s end status=%d dur=%s reason=%s", what, status, time.Since(start), reason)
		return
	}
	ev := zlog.Info()
	if failed {
		ev = zlog.Warn().Str("reason", reason)
	}
	ev.Int("status", status).Dur("dur", time.Since(start)).Str("request_id", middleware.GetReqID(r.Context())).Msg(what + " end")
}
