package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Subsystem: "executor",
		Name:      "cycles_total",
		Help:      "Execution cycles by task and terminal result (succeeded | failed).",
	}, []string{"task", "result"})

	CycleDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Subsystem: "executor",
		Name:      "cycle_duration_seconds",
		Help:      "End-to-end cycle time in seconds, resolution through persistence.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"task"})

	CyclesInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Subsystem: "executor",
		Name:      "cycles_inflight",
		Help:      "Cycles currently executing.",
	}, []string{"task"})

	FailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Subsystem: "executor",
		Name:      "failures_total",
		Help:      "Failed cycles by task and error kind.",
	}, []string{"task", "kind"})

	WatermarkSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Subsystem: "executor",
		Name:      "watermark_timestamp_seconds",
		Help:      "Unix timestamp of the last successful execution per task.",
	}, []string{"task"})

	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Subsystem: "runner",
		Name:      "retries_total",
		Help:      "Dispatch retries issued by the scheduler.",
	}, []string{"task"})

	OverlapSkipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Subsystem: "runner",
		Name:      "overlap_skips_total",
		Help:      "Cron fires skipped because the previous cycle was still in flight.",
	}, []string{"task"})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Cycle report events published, by outcome of the publish itself.",
	}, []string{"result"})
)
