package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llamaworker/internal/transport"
	"llamaworker/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() ([]types.Model, error)
	Status() types.StatusResponse
	Ready() bool
	// Do posts cmd to the worker and forwards its events to onEvent until
	// the terminal one, which is returned.
	Do(ctx context.Context, cmd types.Command, onEvent func(types.Event) error) (types.Event, error)
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if len(corsAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "X-Log-Level"},
			MaxAge:         300,
		}))
	}
	// Compression for JSON endpoints; NDJSON streams are left alone.
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/models", handleModels(svc))
	r.Get("/status", handleStatus(svc))
	r.Post("/load", handleLoad(svc))
	r.Post("/run", handleRun(svc))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(svc.Status().State))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)
	return r
}

// handleModels godoc
// @Summary      List models
// @Description  Models found in the configured models directory, loadable by id.
// @Tags         models
// @Produce      json
// @Success      200  {object}  types.ModelsResponse
// @Failure      500  {object}  types.ErrorResponse
// @Router       /models [get]
func handleModels(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models, err := svc.ListModels()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if models == nil {
			models = []types.Model{}
		}
		writeJSON(w, http.StatusOK, types.ModelsResponse{Models: models})
	}
}

// handleStatus godoc
// @Summary      Worker status
// @Tags         status
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /status [get]
func handleStatus(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	}
}

// handleLoad godoc
// @Summary      Load a model
// @Description  Streams the model into the engine filesystem and waits for INITIALIZED.
// @Tags         worker
// @Accept       json
// @Produce      json
// @Param        request  body      types.LoadRequest  true  "Model to load"
// @Success      200      {object}  types.Event
// @Failure      400      {object}  types.ErrorResponse
// @Failure      409      {object}  types.ErrorResponse
// @Failure      502      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Router       /load [post]
func handleLoad(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cmd, ok := decodeCommand(w, r, types.ActionLoad)
		if !ok {
			return
		}
		lvl := requestLogLevel(r)
		start := time.Now()
		logCommandStart(r, lvl, "load")
		ctx, cancel := commandContext(r)
		defer cancel()

		ev, err := svc.Do(ctx, cmd, nil)
		if err != nil {
			if r.Context().Err() != nil {
				return
			}
			status := commandErrorStatus(err)
			writeJSONError(w, status, err.Error())
			logCommandEnd(r, lvl, "load", status, start, "")
			return
		}
		if ev.Event == types.ActionError {
			writeEventError(w, ev)
			logCommandEnd(r, lvl, "load", statusForCode(ev.Code), start, ev.Code)
			return
		}
		writeJSON(w, http.StatusOK, ev)
		logCommandEnd(r, lvl, "load", http.StatusOK, start, "")
	}
}

// handleRun godoc
// @Summary      Run the engine
// @Description  Streams WRITE_RESULT events as NDJSON, ending with RUN_COMPLETED or ERROR.
// @Description  Failures before the first chunk are returned as a JSON error instead.
// @Tags         worker
// @Accept       json
// @Produce      application/x-ndjson
// @Param        request  body      types.RunParams  true  "Run parameters"
// @Success      200      {object}  types.Event
// @Failure      400      {object}  types.ErrorResponse
// @Failure      409      {object}  types.ErrorResponse
// @Failure      500      {object}  types.ErrorResponse
// @Router       /run [post]
func handleRun(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cmd, ok := decodeCommand(w, r, types.ActionRunMain)
		if !ok {
			return
		}
		lvl := requestLogLevel(r)
		start := time.Now()
		logCommandStart(r, lvl, "run")
		ctx, cancel := commandContext(r)
		defer cancel()

		out := io.Writer(w)
		if lvl >= LevelDebug {
			out = io.MultiWriter(w, &eventLogWriter{rid: middleware.GetReqID(r.Context())})
		}
		enc := json.NewEncoder(out)
		enc.SetEscapeHTML(false)
		flusher, _ := w.(http.Flusher)
		streaming := false
		write := func(ev types.Event) error {
			if !streaming {
				w.Header().Set("Content-Type", "application/x-ndjson")
				w.WriteHeader(http.StatusOK)
				streaming = true
			}
			streamedEventsTotal.WithLabelValues(string(ev.Event)).Inc()
			if err := enc.Encode(ev); err != nil {
				return err
			}
			if flusher != nil {
				flusher.Flush()
			}
			return nil
		}

		ev, err := svc.Do(ctx, cmd, func(ev types.Event) error {
			// a failure before any output becomes a plain HTTP error
			if ev.Event == types.ActionError && !streaming {
				return nil
			}
			return write(ev)
		})
		switch {
		case err != nil && streaming:
			logCommandEnd(r, lvl, "run", http.StatusOK, start, "stream aborted: "+err.Error())
		case err != nil:
			if r.Context().Err() != nil {
				return
			}
			status := commandErrorStatus(err)
			writeJSONError(w, status, err.Error())
			logCommandEnd(r, lvl, "run", status, start, "")
		case ev.Event == types.ActionError && !streaming:
			writeEventError(w, ev)
			logCommandEnd(r, lvl, "run", statusForCode(ev.Code), start, ev.Code)
		default:
			logCommandEnd(r, lvl, "run", http.StatusOK, start, errorReason(ev))
		}
	}
}

func errorReason(ev types.Event) string {
	if ev.Event == types.ActionError {
		return ev.Code
	}
	return ""
}

// decodeCommand reads a JSON object body, stamps it with action and
// validates it like any other wire command.
func decodeCommand(w http.ResponseWriter, r *http.Request, action types.Action) (types.Command, bool) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return types.Command{}, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var fields map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil || fields == nil {
		// If exceeded size, MaxBytesReader may cause an error; still return 400 to avoid size leak details
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return types.Command{}, false
	}
	fields["event"], _ = json.Marshal(action)
	delete(fields, "id")
	data, _ := json.Marshal(fields)
	cmd, err := transport.DecodeCommand(data)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return types.Command{}, false
	}
	return cmd, true
}

// commandContext joins the request with the server base context, so a
// shutdown releases waiting handlers, and applies the request timeout.
func commandContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	if requestTimeout <= 0 {
		return ctx, cancel
	}
	tctx, tcancel := context.WithTimeout(ctx, requestTimeout)
	return tctx, func() {
		tcancel()
		cancel()
	}
}

func commandErrorStatus(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && zlog != nil {
		zlog.Debug().Err(err).Msg("write response")
	}
}
