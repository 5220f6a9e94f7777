package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"llamaworker/internal/engine"
	"llamaworker/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const defaultInboxSize = 16

// Config encapsulates all tunables for Worker construction.
type Config struct {
	// Factory builds the engine on LOAD. Required.
	Factory engine.Factory
	// Fetcher stages the model; a default http/file fetcher when nil.
	Fetcher *Fetcher
	// Publisher receives outbound events; events are dropped when nil.
	Publisher EventPublisher
	Logger    *zerolog.Logger
	// ResolveModel maps a LOAD model id to a URL. LOAD by id fails when nil.
	ResolveModel func(id string) (string, error)
	// Threads overrides the --threads value (default runtime.NumCPU).
	Threads int
	// RunTimeout bounds one engine run; 0 means none.
	RunTimeout time.Duration
	InboxSize  int
}

// Worker owns one engine and serves LOAD and RUN_MAIN commands from a
// single goroutine.
type Worker struct {
	log     zerolog.Logger
	pub     EventPublisher
	resolve func(string) (string, error)

	life *Lifecycle
	inv  *Invoker
	sink *Sink

	inbox  chan types.Command
	loaded chan loadDone
	loads  sync.WaitGroup

	// runID is the correlation id of the executing run, read by the sink.
	runID atomic.Pointer[string]

	running       atomic.Bool
	runsCompleted atomic.Uint64
	lastErr       atomic.Pointer[string]
	started       time.Time
	kind          atomic.Pointer[engine.Kind]
}

type loadDone struct {
	id    string
	begun time.Time
	res   LoadResult
}

// New constructs a Worker. Call Run to start serving.
func New(cfg Config) (*Worker, error) {
	if cfg.Factory == nil {
		return nil, errors.New("worker: engine factory is required")
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = noopPublisher{}
	}
	size := cfg.InboxSize
	if size <= 0 {
		size = defaultInboxSize
	}
	w := &Worker{
		log:     log,
		pub:     pub,
		resolve: cfg.ResolveModel,
		inbox:   make(chan types.Command, size),
		loaded:  make(chan loadDone, 1),
		started: time.Now(),
	}
	w.sink = NewSink(w.emitChunk)
	w.life = NewLifecycle(cfg.Factory, cfg.Fetcher, w.sink, log)
	w.inv = NewInvoker(w.sink, cfg.Threads, cfg.RunTimeout, log)
	observeState(StateUninitialized)
	return w, nil
}

// Post queues a command for the loop. It blocks while the inbox is full.
func (w *Worker) Post(ctx context.Context, cmd types.Command) error {
	select {
	case w.inbox <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run serves commands until ctx is cancelled. Cancelling ctx also aborts an
// in-flight download or engine run. The engine is closed on return.
func (w *Worker) Run(ctx context.Context) error {
	defer func() {
		w.loads.Wait()
		// a load that finished while shutting down still owns its engine
		select {
		case d := <-w.loaded:
			if d.res.Engine != nil {
				_ = d.res.Engine.Close(context.Background())
			}
		default:
		}
		if err := w.life.Close(context.Background()); err != nil {
			w.log.Warn().Err(err).Msg("close engine")
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-w.loaded:
			w.finishLoad(ctx, d)
		case cmd := <-w.inbox:
			w.handle(ctx, cmd)
		}
	}
}

func (w *Worker) handle(ctx context.Context, cmd types.Command) {
	switch cmd.Event {
	case types.ActionLoad:
		w.load(ctx, cmd)
	case types.ActionRunMain:
		w.run(ctx, cmd)
	default:
		w.fail(cmd.ID, CodeUnknownEvent, errors.New("unknown event "+string(cmd.Event)))
	}
}

func (w *Worker) load(ctx context.Context, cmd types.Command) {
	url := strings.TrimSpace(cmd.URL)
	if url == "" && cmd.Model != "" {
		if w.resolve == nil {
			w.fail(cmd.ID, CodeInvalidRequest, &InvalidRequestError{Reason: "no model registry configured"})
			return
		}
		var err error
		if url, err = w.resolve(cmd.Model); err != nil {
			w.fail(cmd.ID, CodeInvalidRequest, &InvalidRequestError{Reason: err.Error()})
			return
		}
	}
	if url == "" {
		w.fail(cmd.ID, CodeInvalidRequest, &InvalidRequestError{Reason: "LOAD requires url or model"})
		return
	}
	if err := w.life.Begin(url); err != nil {
		w.fail(cmd.ID, ErrorCode(err), err)
		return
	}
	w.log.Info().Str("url", url).Str("id", cmd.ID).Msg("loading model")
	begun := time.Now()
	w.loads.Add(1)
	go func() {
		defer w.loads.Done()
		res := w.life.Load(ctx, url)
		select {
		case w.loaded <- loadDone{id: cmd.ID, begun: begun, res: res}:
		case <-ctx.Done():
			if res.Engine != nil {
				_ = res.Engine.Close(context.Background())
			}
		}
	}()
}

func (w *Worker) finishLoad(ctx context.Context, d loadDone) {
	loadDuration.Observe(time.Since(d.begun).Seconds())
	if err := w.life.Finish(ctx, d.res); err != nil {
		loadsTotal.WithLabelValues("error").Inc()
		w.fail(d.id, ErrorCode(err), err)
		return
	}
	loadsTotal.WithLabelValues("ok").Inc()
	k := d.res.Engine.Kind()
	w.kind.Store(&k)
	w.log.Info().Int64("bytes", d.res.Bytes).Str("engine", string(k)).Dur("elapsed", time.Since(d.begun)).Msg("model staged")
	w.pub.Publish(types.Event{Event: types.ActionInitialized, ID: d.id})
}

func (w *Worker) run(ctx context.Context, cmd types.Command) {
	eng, err := w.life.Engine()
	if err != nil {
		w.fail(cmd.ID, ErrorCode(err), err)
		return
	}
	req := RequestFromParams(cmd.RunParams)
	if err := req.Validate(); err != nil {
		w.fail(cmd.ID, CodeInvalidRequest, err)
		return
	}

	id := cmd.ID
	w.runID.Store(&id)
	w.running.Store(true)
	start := time.Now()
	err = w.inv.Run(ctx, eng, req)
	runDuration.Observe(time.Since(start).Seconds())
	w.running.Store(false)
	w.runID.Store(nil)

	if err != nil {
		runsTotal.WithLabelValues("error").Inc()
		w.fail(cmd.ID, ErrorCode(err), err)
		return
	}
	runsTotal.WithLabelValues("ok").Inc()
	w.runsCompleted.Add(1)
	w.pub.Publish(types.Event{Event: types.ActionRunCompleted, ID: cmd.ID})
}

func (w *Worker) emitChunk(text string) {
	chunksTotal.Inc()
	ev := types.Event{Event: types.ActionWriteResult, Text: text}
	if id := w.runID.Load(); id != nil {
		ev.ID = *id
	}
	w.pub.Publish(ev)
}

func (w *Worker) fail(id, code string, err error) {
	msg := err.Error()
	w.lastErr.Store(&msg)
	w.log.Error().Err(err).Str("code", code).Str("id", id).Msg("command failed")
	w.pub.Publish(types.Event{Event: types.ActionError, ID: id, Code: code, Error: msg})
}

// State reports the lifecycle state.
func (w *Worker) State() State { return w.life.State() }

// Status builds a snapshot for /status.
func (w *Worker) Status() types.StatusResponse {
	resp := types.StatusResponse{
		State:          string(w.life.State()),
		ModelURL:       w.life.URL(),
		StagedBytes:    w.life.StagedBytes(),
		Running:        w.running.Load(),
		RunsCompleted:  w.runsCompleted.Load(),
		UptimeSeconds:  int64(time.Since(w.started).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
	if k := w.kind.Load(); k != nil {
		resp.Engine = string(*k)
	}
	if e := w.lastErr.Load(); e != nil {
		resp.LastError = *e
	}
	return resp
}
