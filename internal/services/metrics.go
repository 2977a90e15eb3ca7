package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for pipeline and upload activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	pipelineRuns    *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
	uploads         *prometheus.CounterVec
	pipelinesActive prometheus.Gauge
}

// MustNewMetrics registers the collectors with reg. Registration against a
// registry that already holds them reuses the existing collectors; any other
// registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	pipelineRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "report_console",
			Name:      "pipeline_runs_total",
			Help:      "Finished pipeline runs by outcome.",
		},
		[]string{"pipeline", "outcome"},
	)
	stepDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "report_console",
			Name:      "step_duration_seconds",
			Help:      "Duration of each backend step within a pipeline.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"pipeline", "step", "status"},
	)
	uploads := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "report_console",
			Name:      "uploads_total",
			Help:      "Upload attempts per slot by outcome.",
		},
		[]string{"slot", "outcome"},
	)
	pipelinesActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "report_console",
			Name:      "pipelines_active",
			Help:      "Number of pipelines currently running.",
		},
	)

	pipelineRuns = registerCounterVec(reg, pipelineRuns)
	uploads = registerCounterVec(reg, uploads)

	if err := reg.Register(stepDuration); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			panic(err)
		}
		stepDuration = already.ExistingCollector.(*prometheus.HistogramVec)
	}
	if err := reg.Register(pipelinesActive); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			panic(err)
		}
		pipelinesActive = already.ExistingCollector.(prometheus.Gauge)
	}

	return &Metrics{
		pipelineRuns:    pipelineRuns,
		stepDuration:    stepDuration,
		uploads:         uploads,
		pipelinesActive: pipelinesActive,
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(vec); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			panic(err)
		}
		return already.ExistingCollector.(*prometheus.CounterVec)
	}
	return vec
}

func (m *Metrics) PipelineStarted() {
	if m == nil {
		return
	}
	m.pipelinesActive.Inc()
}

// PipelineFinished records the run outcome and releases the active gauge.
func (m *Metrics) PipelineFinished(pipeline string, err error) {
	if m == nil {
		return
	}
	m.pipelinesActive.Dec()
	m.pipelineRuns.WithLabelValues(pipeline, outcomeLabel(err)).Inc()
}

func (m *Metrics) ObserveStep(pipeline, step string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(pipeline, step, outcomeLabel(err)).Observe(duration.Seconds())
}

func (m *Metrics) IncUpload(slot string, outcome string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(slot, outcome).Inc()
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
