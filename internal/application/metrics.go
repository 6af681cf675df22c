package application

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
)

const metricsNamespace = "repowatch"

// Metrics records engine activity. A nil *Metrics is valid and records
// nothing, so one-shot CLI runs need no registry.
type Metrics struct {
	tasksTotal      *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	batchDuration   *prometheus.HistogramVec
	fastPathTotal   *prometheus.CounterVec
	newCommitsTotal *prometheus.CounterVec
	flushErrors     *prometheus.CounterVec
	lastBatchUnix   *prometheus.GaugeVec
}

// NewMetrics creates the engine metrics and registers them with reg when it
// is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "tasks_total",
			Help:      "Repository tasks by concern and final status.",
		}, []string{"concern", "status"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "task_duration_seconds",
			Help:      "Wall-clock time of one repository task.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"concern"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "batch_duration_seconds",
			Help:      "Wall-clock time of one batch.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 180, 300},
		}, []string{"concern"}),
		fastPathTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "fast_path_total",
			Help:      "Repositories skipped because nothing moved upstream.",
		}, []string{"concern"}),
		newCommitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "new_commits_total",
			Help:      "Commits reported as new.",
		}, []string{"concern"}),
		flushErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "state",
			Name:      "flush_errors_total",
			Help:      "Failed state writes.",
		}, []string{"concern"}),
		lastBatchUnix: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "last_batch_timestamp_seconds",
			Help:      "Unix time the last batch finished.",
		}, []string{"concern"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.tasksTotal,
			m.taskDuration,
			m.batchDuration,
			m.fastPathTotal,
			m.newCommitsTotal,
			m.flushErrors,
			m.lastBatchUnix,
		)
	}
	return m
}

func (m *Metrics) observeTask(concern model.Concern, status model.TaskStatus, d time.Duration) {
	if m == nil {
		return
	}
	m.tasksTotal.WithLabelValues(string(concern), string(status)).Inc()
	m.taskDuration.WithLabelValues(string(concern)).Observe(d.Seconds())
}

func (m *Metrics) observeBatch(concern model.Concern, d time.Duration, finished time.Time) {
	if m == nil {
		return
	}
	m.batchDuration.WithLabelValues(string(concern)).Observe(d.Seconds())
	m.lastBatchUnix.WithLabelValues(string(concern)).Set(float64(finished.Unix()))
}

func (m *Metrics) fastPath(concern model.Concern) {
	if m == nil {
		return
	}
	m.fastPathTotal.WithLabelValues(string(concern)).Inc()
}

func (m *Metrics) newCommits(concern model.Concern, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.newCommitsTotal.WithLabelValues(string(concern)).Add(float64(n))
}

func (m *Metrics) flushError(concern model.Concern) {
	if m == nil {
		return
	}
	m.flushErrors.WithLabelValues(string(concern)).Inc()
}
