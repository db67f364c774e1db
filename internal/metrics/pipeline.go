// Package metrics exposes prometheus instruments for the generation pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics records generation pipeline activity. A nil receiver or a
// set constructed without a registerer is a no-op, so wiring stays optional
// in tests and CLIs.
type PipelineMetrics struct {
	admissions   *prometheus.CounterVec
	imageOutcome *prometheus.CounterVec
	rerenders    prometheus.Counter
	generatorDur prometheus.Histogram
}

// NewPipelineMetrics registers the pipeline metrics on the provided
// registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	admissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_admissions_total",
		Help: "Generation runs admitted, by tier.",
	}, []string{"tier"})
	imageOutcome := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_images_total",
		Help: "Per-image generation attempts, by outcome.",
	}, []string{"outcome"})
	rerenders := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "generation_rerenders_total",
		Help: "Images re-rendered by the premium upgrade sweep.",
	})
	generatorDur := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "generator_call_duration_seconds",
		Help:    "Duration of artifact generator calls in seconds.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})
	reg.MustRegister(admissions, imageOutcome, rerenders, generatorDur)
	return &PipelineMetrics{
		admissions:   admissions,
		imageOutcome: imageOutcome,
		rerenders:    rerenders,
		generatorDur: generatorDur,
	}
}

// IncAdmission counts one admitted generation run for the tier.
func (m *PipelineMetrics) IncAdmission(tier string) {
	if m == nil || m.admissions == nil {
		return
	}
	m.admissions.WithLabelValues(tier).Inc()
}

// IncImageOutcome counts one finished image attempt.
func (m *PipelineMetrics) IncImageOutcome(outcome string) {
	if m == nil || m.imageOutcome == nil {
		return
	}
	m.imageOutcome.WithLabelValues(outcome).Inc()
}

// IncRerender counts one sweep re-render.
func (m *PipelineMetrics) IncRerender() {
	if m == nil || m.rerenders == nil {
		return
	}
	m.rerenders.Inc()
}

// ObserveGeneratorCall records the duration of one generator round trip.
func (m *PipelineMetrics) ObserveGeneratorCall(d time.Duration) {
	if m == nil || m.generatorDur == nil {
		return
	}
	m.generatorDur.Observe(d.Seconds())
}
