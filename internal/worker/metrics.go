package worker

import "github.com/prometheus/client_golang/prometheus"

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llamaworker",
			Subsystem: "worker",
			Name:      "runs_total",
			Help:      "Engine runs by outcome",
		},
		[]string{"status"},
	)

	loadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llamaworker",
			Subsystem: "worker",
			Name:      "loads_total",
			Help:      "Model loads by outcome",
		},
		[]string{"status"},
	)

	chunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "llamaworker",
			Subsystem: "worker",
			Name:      "chunks_total",
			Help:      "Output chunks delivered to the host",
		},
	)

	stagedBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "llamaworker",
			Subsystem: "worker",
			Name:      "staged_bytes_total",
			Help:      "Model bytes written into engine filesystems",
		},
	)

	loadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "llamaworker",
			Subsystem: "worker",
			Name:      "load_duration_seconds",
			Help:      "Time from LOAD to ready or failed",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		},
	)

	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "llamaworker",
			Subsystem: "worker",
			Name:      "run_duration_seconds",
			Help:      "Duration of blocking engine runs",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		},
	)

	lifecycleState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "llamaworker",
			Subsystem: "worker",
			Name:      "state",
			Help:      "1 for the current lifecycle state of the most recently changed worker",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(runsTotal, loadsTotal, chunksTotal, stagedBytesTotal, loadDuration, runDuration, lifecycleState)
}

func observeState(s State) {
	for _, st := range []State{StateUninitialized, StateLoading, StateReady, StateFailed} {
		v := 0.0
		if st == s {
			v = 1
		}
		lifecycleState.WithLabelValues(string(st)).Set(v)
	}
}
