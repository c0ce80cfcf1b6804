// SPDX-License-Identifier: MIT

// Package metrics exposes the tracker's pipeline counters on a private
// Prometheus registry. Every recording method is safe on a nil *Pipeline so
// callers never have to check whether metrics are enabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pitchtrack"

// Pipeline holds the collectors for one tracker process.
type Pipeline struct {
	registry *prometheus.Registry

	windowsAnalysed  prometheus.Counter
	pitchesDetected  prometheus.Counter
	noPitchWindows   prometheus.Counter
	analysisDuration prometheus.Histogram
	budgetOverruns   prometheus.Counter
	streamErrors     *prometheus.CounterVec
	sessionsStarted  prometheus.Counter
	droppedEvents    *prometheus.CounterVec
	lastFrequency    prometheus.Gauge
}

// New registers the pipeline collectors, plus the Go runtime and process
// collectors, on a fresh registry.
func New() *Pipeline {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Pipeline{
		registry: reg,
		windowsAnalysed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_analysed_total",
			Help:      "Total number of analysis windows processed",
		}),
		pitchesDetected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pitches_detected_total",
			Help:      "Total number of windows with a detected pitch",
		}),
		noPitchWindows: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "no_pitch_windows_total",
			Help:      "Total number of windows without a detectable pitch",
		}),
		analysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Time spent estimating and mapping one window",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 14), // 10µs to ~80ms
		}),
		budgetOverruns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_overruns_total",
			Help:      "Windows whose analysis took longer than the window lasts",
		}),
		streamErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_errors_total",
			Help:      "Input stream errors reported by the backend",
		}, []string{"kind"}),
		sessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of capture sessions started",
		}),
		droppedEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_events_total",
			Help:      "Events dropped because a sink queue was full",
		}, []string{"sink"}),
		lastFrequency: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_frequency_hz",
			Help:      "Most recently detected fundamental frequency",
		}),
	}
}

// Registry returns the registry the collectors live on.
func (p *Pipeline) Registry() *prometheus.Registry {
	if p == nil {
		return nil
	}
	return p.registry
}

// WindowAnalysed records one analysed window. frequencyHz is zero when no
// pitch was found.
func (p *Pipeline) WindowAnalysed(took time.Duration, frequencyHz float64) {
	if p == nil {
		return
	}
	p.windowsAnalysed.Inc()
	p.analysisDuration.Observe(took.Seconds())
	if frequencyHz > 0 {
		p.pitchesDetected.Inc()
		p.lastFrequency.Set(frequencyHz)
	} else {
		p.noPitchWindows.Inc()
	}
}

// BudgetOverrun records a window that took longer to analyse than it lasts.
func (p *Pipeline) BudgetOverrun() {
	if p == nil {
		return
	}
	p.budgetOverruns.Inc()
}

// StreamError records an input stream error of the given kind.
func (p *Pipeline) StreamError(kind string) {
	if p == nil {
		return
	}
	p.streamErrors.WithLabelValues(kind).Inc()
}

// SessionStarted records a session reaching the streaming state.
func (p *Pipeline) SessionStarted() {
	if p == nil {
		return
	}
	p.sessionsStarted.Inc()
}

// EventDropped records an event a sink had no room for.
func (p *Pipeline) EventDropped(sink string) {
	if p == nil {
		return
	}
	p.droppedEvents.WithLabelValues(sink).Inc()
}
