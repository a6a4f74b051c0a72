package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "sitewatch_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec

	evaluationCycles  *prometheus.CounterVec
	evaluationLatency *prometheus.HistogramVec
	rulesEvaluated    prometheus.Counter
	ruleFailures      prometheus.Counter

	alarmEventsTotal *prometheus.CounterVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total reading ingest requests by result",
			},
			[]string{"result"},
		)

		evaluationCycles = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "evaluation_cycles_total",
				Help: "Total rule evaluation cycles by result",
			},
			[]string{"result"},
		)
		evaluationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "evaluation_cycle_seconds",
				Help:    "Evaluation cycle duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		rulesEvaluated = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "rules_evaluated_total",
				Help: "Total individual rule evaluations",
			},
		)
		ruleFailures = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "rule_failures_total",
				Help: "Total rule evaluations that failed and were skipped",
			},
		)

		alarmEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_events_total",
				Help: "Total alarm lifecycle events by type",
			},
			[]string{"event"},
		)

		prometheus.MustRegister(
			ingestRequests,
			evaluationCycles,
			evaluationLatency,
			rulesEvaluated,
			ruleFailures,
			alarmEventsTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// IncIngest records one ingest request outcome.
func IncIngest(result string) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
}

// ObserveEvaluationCycle records one scheduler cycle.
func ObserveEvaluationCycle(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if evaluationCycles != nil {
		evaluationCycles.WithLabelValues(result).Inc()
	}
	if evaluationLatency != nil {
		evaluationLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncRuleEvaluated counts one rule evaluation.
func IncRuleEvaluated() {
	if rulesEvaluated != nil {
		rulesEvaluated.Inc()
	}
}

// IncRuleFailure counts one skipped rule failure.
func IncRuleFailure() {
	if ruleFailures != nil {
		ruleFailures.Inc()
	}
}

// IncAlarmEvent counts one alarm lifecycle event.
func IncAlarmEvent(event string) {
	if alarmEventsTotal != nil {
		alarmEventsTotal.WithLabelValues(event).Inc()
	}
}
