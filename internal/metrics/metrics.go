// Package metrics provides the prometheus metrics of mergeguard.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/simplesurance/mergeguard/internal/logfields"
)

const metricNamespace = "mergeguard"

const loggerName = "metrics"

const (
	githubEventsMetricName   = "processed_github_events_total"
	labelOpsMetricName       = "label_operations_total"
	checkRunsMetricName      = "check_run_reports_total"
	decisionsMetricName      = "merge_decisions_total"
	autoMergesMetricName     = "auto_merges_total"
	evaluationsMetricName    = "running_evaluations_count"
	eventQueueSizeMetricName = "event_queue_size"
)

const (
	repositoryLabel = "repository"
	kindLabel       = "kind"
	operationLabel  = "operation"
	checkLabel      = "check"
	statusLabel     = "status"
	resultLabel     = "result"
)

type LabelOperation string

const (
	LabelOperationAdd    LabelOperation = "add"
	LabelOperationRemove LabelOperation = "remove"
)

type collector struct {
	logger             *zap.Logger
	processedEvents    *prometheus.CounterVec
	labelOps           *prometheus.CounterVec
	checkRuns          *prometheus.CounterVec
	decisions          *prometheus.CounterVec
	autoMerges         *prometheus.CounterVec
	runningEvaluations prometheus.Gauge
	eventQueueSize     prometheus.Gauge
}

var metrics = newCollector()

func newCollector() *collector {
	return &collector{
		logger: zap.L().Named(loggerName),
		processedEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      githubEventsMetricName,
				Help:      "count of processed github webhook events",
			},
			[]string{kindLabel},
		),
		labelOps: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      labelOpsMetricName,
				Help:      "count of labels added to or removed from pull requests",
			},
			[]string{repositoryLabel, operationLabel},
		),
		checkRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      checkRunsMetricName,
				Help:      "count of reported check run states",
			},
			[]string{repositoryLabel, checkLabel, statusLabel},
		),
		decisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      decisionsMetricName,
				Help:      "count of merge eligibility evaluations",
			},
			[]string{repositoryLabel, resultLabel},
		),
		autoMerges: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      autoMergesMetricName,
				Help:      "count of automatically merged pull requests",
			},
			[]string{repositoryLabel},
		),
		runningEvaluations: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Name:      evaluationsMetricName,
				Help:      "number of currently running merge eligibility evaluations",
			},
		),
		eventQueueSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Name:      eventQueueSizeMetricName,
				Help:      "number of github events waiting to be processed",
			},
		),
	}
}

func (m *collector) logGetMetricFailed(metricName string, err error) {
	m.logger.Warn(
		"could not record metric",
		zap.String("metric", metricName),
		logfields.Event("recording_metric_failed"),
		zap.Error(err),
	)
}

func inc(vec *prometheus.CounterVec, metricName string, labels prometheus.Labels) {
	cnt, err := vec.GetMetricWith(labels)
	if err != nil {
		metrics.logGetMetricFailed(metricName, err)
		return
	}

	cnt.Inc()
}

// ProcessedEventsInc counts a handled webhook event of the given kind.
func ProcessedEventsInc(kind string) {
	inc(metrics.processedEvents, githubEventsMetricName, prometheus.Labels{kindLabel: kind})
}

func LabelOpsInc(repository string, op LabelOperation) {
	inc(metrics.labelOps, labelOpsMetricName, prometheus.Labels{
		repositoryLabel: repository,
		operationLabel:  string(op),
	})
}

// CheckRunsInc counts a reported check run state. status is the
// conclusion for completed runs.
func CheckRunsInc(repository, check, status string) {
	inc(metrics.checkRuns, checkRunsMetricName, prometheus.Labels{
		repositoryLabel: repository,
		checkLabel:      check,
		statusLabel:     status,
	})
}

func DecisionsInc(repository string, mergeable bool) {
	result := "blocked"
	if mergeable {
		result = "mergeable"
	}

	inc(metrics.decisions, decisionsMetricName, prometheus.Labels{
		repositoryLabel: repository,
		resultLabel:     result,
	})
}

func AutoMergesInc(repository string) {
	inc(metrics.autoMerges, autoMergesMetricName, prometheus.Labels{repositoryLabel: repository})
}

func RunningEvaluationsInc() {
	metrics.runningEvaluations.Inc()
}

func RunningEvaluationsDec() {
	metrics.runningEvaluations.Dec()
}

func EventQueueSizeSet(n int) {
	metrics.eventQueueSize.Set(float64(n))
}
