// Package metrics exposes the Prometheus counters and histograms emitted by
// the engine, grounded on the teacher's use of client_golang for its own
// request-path instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CallsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lcse",
		Name:      "calls_started_total",
		Help:      "Number of call sessions started, one per accepted voice-stream connection.",
	})

	CallOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lcse",
		Name:      "call_outcomes_total",
		Help:      "Terminal outcomes of finished calls, by outcome.",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lcse",
		Name:      "stage_duration_seconds",
		Help:      "Wall-clock time spent in each FSM stage.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30},
	}, []string{"stage"})

	ASRRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lcse",
		Name:      "asr_retries_total",
		Help:      "Number of ASR transcribe attempts beyond the first per utterance.",
	})

	TTSFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lcse",
		Name:      "tts_failures_total",
		Help:      "Number of TTS synthesize calls that failed after the English fallback.",
	})

	TransferAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lcse",
		Name:      "transfer_attempts_total",
		Help:      "Transfer attempts, by result.",
	}, []string{"result"})

	IngressFramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lcse",
		Name:      "ingress_frames_dropped_total",
		Help:      "Buffered inbound utterances dropped because the Dialog event queue was full.",
	})

	ActiveCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lcse",
		Name:      "active_calls",
		Help:      "Number of calls currently in a non-terminal stage.",
	})
)
