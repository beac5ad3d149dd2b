package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — Prometheus метрики конвейера.
//
// Все методы безопасны для nil: компоненты принимают *Metrics опционально.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	runsTotal     *prometheus.CounterVec
	traceSteps    *prometheus.CounterVec
	evaluations   *prometheus.HistogramVec
	verdicts      *prometheus.CounterVec
	submissions   *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в reg.
// Сервисы передают prometheus.DefaultRegisterer, тесты — prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bomflow_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage", "outcome"},
		),
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bomflow_runs_total",
				Help: "Total number of pipeline runs by terminal status",
			},
			[]string{"status", "failed_stage"},
		),
		traceSteps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bomflow_trace_steps_total",
				Help: "Total number of trace steps written",
			},
			[]string{"stage"},
		),
		evaluations: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bomflow_evaluation_duration_seconds",
				Help:    "Duration of specialist evaluations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"role", "outcome"},
		),
		verdicts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bomflow_verdicts_total",
				Help: "Total number of final verdicts by value",
			},
			[]string{"verdict"},
		),
		submissions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bomflow_submissions_total",
				Help: "Total number of project submissions by source and outcome",
			},
			[]string{"source", "outcome"},
		),
	}
}

// ObserveStage записывает длительность этапа.
func (m *Metrics) ObserveStage(stage string, failed bool, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, outcome(failed)).Observe(d.Seconds())
}

// RunFinished увеличивает счётчик завершённых прогонов.
func (m *Metrics) RunFinished(status, failedStage string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status, failedStage).Inc()
}

// TraceStep увеличивает счётчик записей журнала.
func (m *Metrics) TraceStep(stage string) {
	if m == nil {
		return
	}
	m.traceSteps.WithLabelValues(stage).Inc()
}

// ObserveEvaluation записывает длительность оценки специалиста.
func (m *Metrics) ObserveEvaluation(role string, failed bool, d time.Duration) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(role, outcome(failed)).Observe(d.Seconds())
}

// Verdict увеличивает счётчик вердиктов.
func (m *Metrics) Verdict(verdict string) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(verdict).Inc()
}

// Submission увеличивает счётчик подач (api, worker, scheduler, cli).
func (m *Metrics) Submission(source string, failed bool) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(source, outcome(failed)).Inc()
}

func outcome(failed bool) string {
	if failed {
		return "error"
	}
	return "ok"
}
