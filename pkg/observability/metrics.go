package observability

import (
	"context"

	"github.com/botasky11/totml/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "totml"

// Metrics holds the search collectors.
type Metrics struct {
	nodes         *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	execDuration  *prometheus.HistogramVec
	bestMetric    *prometheus.GaugeVec
	retries       *prometheus.CounterVec
	malformed     prometheus.Counter
	duplicates    prometheus.Counter
	experiments   *prometheus.CounterVec
	stepsProgress *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		nodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_total",
			Help:      "Nodes appended to journals, by kind and verdict.",
		}, []string{"kind", "verdict"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_decisions_total",
			Help:      "Search policy decisions, by action.",
		}, []string{"action"}),
		execDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exec_duration_seconds",
			Help:      "Wall time of candidate code executions.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 14),
		}, []string{"kind"}),
		bestMetric: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_metric",
			Help:      "Best validation metric per experiment.",
		}, []string{"experiment"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_retries_total",
			Help:      "Completions without an extractable plan and code block.",
		}, []string{"action"}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_malformed_total",
			Help:      "Reviews whose structured answer could not be decoded.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_candidates_total",
			Help:      "Appended nodes whose code already existed in the journal.",
		}),
		experiments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "experiments_total",
			Help:      "Experiment lifecycle events, by type.",
		}, []string{"event"}),
		stepsProgress: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "experiment_progress_ratio",
			Help:      "Completed fraction of each experiment's step budget.",
		}, []string{"experiment"}),
	}
	reg.MustRegister(m.nodes, m.decisions, m.execDuration, m.bestMetric,
		m.retries, m.malformed, m.duplicates, m.experiments, m.stepsProgress)
	return m
}

func verdict(n *domain.Node) string {
	if n.Buggy {
		return "buggy"
	}
	return "good"
}

// Hooks returns lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnDecision: func(_ context.Context, e *domain.DecisionEvent) {
			m.decisions.WithLabelValues(string(e.Action)).Inc()
		},
		OnExtractionRetry: func(_ context.Context, e *domain.GenerationEvent) {
			m.retries.WithLabelValues(string(e.Action)).Inc()
		},
		OnNodeExecuted: func(_ context.Context, e *domain.NodeEvent) {
			m.execDuration.WithLabelValues(string(e.Node.Kind)).Observe(e.Node.ExecTime.Seconds())
		},
		OnReviewMalformed: func(_ context.Context, _ *domain.NodeEvent) {
			m.malformed.Inc()
		},
		OnNodeAppended: func(_ context.Context, e *domain.NodeEvent) {
			m.nodes.WithLabelValues(string(e.Node.Kind), verdict(e.Node)).Inc()
			if e.Duplicate {
				m.duplicates.Inc()
			}
		},
	}
}

// ObserveExperiment records an experiment progress event.
func (m *Metrics) ObserveExperiment(e domain.ExperimentEvent) {
	m.experiments.WithLabelValues(string(e.Type)).Inc()
	m.stepsProgress.WithLabelValues(e.ExperimentID).Set(e.Progress)
	if e.BestMetric != nil {
		m.bestMetric.WithLabelValues(e.ExperimentID).Set(*e.BestMetric)
	}
}

// Forget drops the per-experiment series of a deleted experiment.
func (m *Metrics) Forget(experimentID string) {
	m.bestMetric.DeleteLabelValues(experimentID)
	m.stepsProgress.DeleteLabelValues(experimentID)
}
