package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chazu/transmute/classfile"
	"github.com/chazu/transmute/dynamic"
)

// Outcome labels.
const (
	OutcomeTransformed = "transformed"
	OutcomeIgnored     = "ignored"
	OutcomeError       = "error"
)

// MetricsListener counts load attempts by outcome.
type MetricsListener struct {
	// Load attempts by outcome
	Attempts *prometheus.CounterVec

	// Auxiliary types produced by transformations
	Auxiliaries prometheus.Counter

	// Size of rewritten types
	TypeBytes prometheus.Histogram
}

// NewMetricsListener registers the agent metrics with reg. A nil reg uses
// the default registerer.
func NewMetricsListener(reg prometheus.Registerer) *MetricsListener {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &MetricsListener{
		Attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transmute_agent_attempts_total",
			Help: "Total load attempts seen by the agent by outcome",
		}, []string{"outcome"}),

		Auxiliaries: factory.NewCounter(prometheus.CounterOpts{
			Name: "transmute_agent_auxiliary_types_total",
			Help: "Total auxiliary types produced by transformations",
		}),

		TypeBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "transmute_agent_type_bytes",
			Help:    "Size of rewritten class files in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}),
	}
}

func (m *MetricsListener) OnTransformation(_ *classfile.TypeDescription, u *dynamic.Unloaded) {
	if m != nil {
		m.Attempts.WithLabelValues(OutcomeTransformed).Inc()
		m.Auxiliaries.Add(float64(len(u.Auxiliaries)))
		m.TypeBytes.Observe(float64(len(u.Bytes)))
	}
}

func (m *MetricsListener) OnIgnored(string) {
	if m != nil {
		m.Attempts.WithLabelValues(OutcomeIgnored).Inc()
	}
}

func (m *MetricsListener) OnError(string, error) {
	if m != nil {
		m.Attempts.WithLabelValues(OutcomeError).Inc()
	}
}

func (m *MetricsListener) OnComplete(string) {}
