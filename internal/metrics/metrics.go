// Package metrics exposes Prometheus collectors for engine calls and
// budget-forced sessions.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flemzord/budgetforce/internal/engine"
	"github.com/flemzord/budgetforce/internal/thinking"
)

const namespace = "budgetforce"

// Metrics owns a private registry so tests and multiple servers in one
// process do not collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	engineCalls    *prometheus.CounterVec
	engineLatency  *prometheus.HistogramVec
	sessions       *prometheus.CounterVec
	inflight       prometheus.Gauge
	iterations     prometheus.Histogram
	thinkingTokens prometheus.Histogram
	drift          prometheus.Histogram
	degraded       prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		engineCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_calls_total",
			Help:      "Engine generate calls by model, stop reason and outcome.",
		}, []string{"model", "stop_reason", "outcome"}),
		engineLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_call_duration_seconds",
			Help:      "Latency of engine generate calls.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"model"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Finished sessions by outcome.",
		}, []string{"outcome"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_inflight",
			Help:      "Sessions currently running.",
		}),
		iterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_iterations",
			Help:      "Continuation nudges per finished session.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34, 55, 100},
		}),
		thinkingTokens: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_thinking_tokens",
			Help:      "Thinking tokens per finished session.",
			Buckets:   prometheus.ExponentialBuckets(64, 2, 11),
		}),
		drift: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "token_count_drift",
			Help:      "Canonical counter delta minus engine-reported completion tokens, per thinking call.",
			Buckets:   []float64{-256, -64, -16, -4, -1, 0, 1, 4, 16, 64, 256},
		}),
		degraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_extractions_total",
			Help:      "Answers whose reasoning markers could not be located.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.engineCalls,
		m.engineLatency,
		m.sessions,
		m.inflight,
		m.iterations,
		m.thinkingTokens,
		m.drift,
		m.degraded,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordEngineCall implements engine.CallRecorder.
func (m *Metrics) RecordEngineCall(model string, res engine.Result, err error, elapsed time.Duration) {
	m.engineLatency.WithLabelValues(model).Observe(elapsed.Seconds())
	stop := string(res.StopReason)
	if err != nil {
		stop = ""
	}
	m.engineCalls.WithLabelValues(model, stop, outcome(err)).Inc()
}

// outcome buckets an engine error into a low-cardinality label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, engine.ErrRateLimit):
		return "rate_limited"
	case errors.Is(err, engine.ErrEngineUnavailable):
		return "unavailable"
	case errors.Is(err, engine.ErrMalformedResponse):
		return "malformed"
	default:
		return "error"
	}
}

// Observe implements thinking.Observer.
func (m *Metrics) Observe(e thinking.Event) {
	switch e.Kind {
	case thinking.EventSessionStart:
		m.inflight.Inc()
	case thinking.EventGenerate:
		if e.EngineTokens > 0 {
			m.drift.Observe(float64(e.DeltaTokens - e.EngineTokens))
		}
	case thinking.EventDone:
		m.inflight.Dec()
		m.sessions.WithLabelValues("done").Inc()
		m.iterations.Observe(float64(e.Iteration))
		m.thinkingTokens.Observe(float64(e.CumulativeTokens))
	case thinking.EventFailed:
		m.inflight.Dec()
		m.sessions.WithLabelValues("failed").Inc()
	}
}

// RecordAnswer records per-answer properties not carried by trace events.
func (m *Metrics) RecordAnswer(fa *thinking.FinalAnswer) {
	if fa != nil && fa.DegradedExtraction {
		m.degraded.Inc()
	}
}

// Interface guards.
var (
	_ engine.CallRecorder = (*Metrics)(nil)
	_ thinking.Observer   = (*Metrics)(nil)
)
