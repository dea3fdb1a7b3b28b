package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Job outcomes reported by the transcription worker.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeDiscarded = "discarded"
	OutcomeRetried   = "retried"
)

// TranscriptionMetrics tracks receipt extraction jobs.
type TranscriptionMetrics struct {
	jobs       *prometheus.CounterVec
	extraction prometheus.Histogram
	claimed    prometheus.Counter
}

// NewTranscriptionMetrics registers the worker metrics on the provided registerer.
func NewTranscriptionMetrics(reg prometheus.Registerer) *TranscriptionMetrics {
	if reg == nil {
		return &TranscriptionMetrics{}
	}
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "receipt_jobs_total",
		Help: "Receipt extraction jobs by outcome.",
	}, []string{"outcome"})
	extraction := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "receipt_extraction_seconds",
		Help:    "Latency of the extraction call.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})
	claimed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "receipt_jobs_claimed_total",
		Help: "Receipt jobs claimed from the queue.",
	})
	reg.MustRegister(jobs, extraction, claimed)
	return &TranscriptionMetrics{
		jobs:       jobs,
		extraction: extraction,
		claimed:    claimed,
	}
}

func (m *TranscriptionMetrics) IncOutcome(outcome string) {
	if m == nil || m.jobs == nil {
		return
	}
	m.jobs.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *TranscriptionMetrics) ObserveExtraction(d time.Duration) {
	if m == nil || m.extraction == nil {
		return
	}
	m.extraction.Observe(d.Seconds())
}

func (m *TranscriptionMetrics) AddClaimed(n int) {
	if m == nil || m.claimed == nil || n <= 0 {
		return
	}
	m.claimed.Add(float64(n))
}
