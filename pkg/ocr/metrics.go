package ocr

import "github.com/prometheus/client_golang/prometheus"

// Metrics records pass outcomes and final confidence. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	passes     *prometheus.CounterVec
	confidence prometheus.Histogram
	fused      prometheus.Histogram
}

// NewMetrics registers the engine's collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fintrack",
			Subsystem: "ocr",
			Name:      "passes_total",
			Help:      "Recognition passes by image variant and outcome.",
		}, []string{"variant", "outcome"}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fintrack",
			Subsystem: "ocr",
			Name:      "result_confidence",
			Help:      "Confidence of returned extraction results.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		fused: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fintrack",
			Subsystem: "ocr",
			Name:      "fused_passes",
			Help:      "Number of successful passes fused into one result.",
			Buckets:   []float64{0, 1, 2, 3},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.passes, m.confidence, m.fused)
	}
	return m
}

func (m *Metrics) pass(variant, outcome string) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(variant, outcome).Inc()
}

func (m *Metrics) result(r Result, passes int) {
	if m == nil {
		return
	}
	m.confidence.Observe(r.Confidence)
	if passes >= 0 {
		m.fused.Observe(float64(passes))
	}
}
