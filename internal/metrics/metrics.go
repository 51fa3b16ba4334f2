// Package metrics exposes Prometheus collectors for view tracking and the
// analytics queries.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// View outcomes
const (
	OutcomeRecorded  = "recorded"
	OutcomeDuplicate = "duplicate"
	OutcomeAdmin     = "admin"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

var (
	// ViewsTotal counts tracking attempts by outcome.
	ViewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewtracker_views_total",
			Help: "Total number of product view tracking attempts by outcome",
		},
		[]string{"outcome"},
	)

	// DetailInsertFailuresTotal counts views whose counter was incremented but
	// whose detail row could not be written.
	DetailInsertFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "viewtracker_detail_insert_failures_total",
			Help: "Total number of view detail rows that failed to insert",
		},
	)

	// RetentionDeletedTotal counts detail rows removed by the retention sweep.
	RetentionDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "viewtracker_retention_deleted_total",
			Help: "Total number of view detail rows deleted by retention",
		},
	)

	// QueryDuration tracks the latency of analytics queries.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "viewtracker_query_duration_seconds",
			Help:    "Duration of analytics queries in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"query"},
	)
)

// RecordView counts one tracking attempt.
func RecordView(outcome string) {
	ViewsTotal.WithLabelValues(outcome).Inc()
}

// RecordDetailInsertFailure counts one lost detail row.
func RecordDetailInsertFailure() {
	DetailInsertFailuresTotal.Inc()
}

// RecordRetentionDeleted adds n swept rows.
func RecordRetentionDeleted(n int64) {
	if n > 0 {
		RetentionDeletedTotal.Add(float64(n))
	}
}

// ObserveQuery records the time elapsed since start for the named query.
//
//	defer metrics.ObserveQuery("daily_views", time.Now())
func ObserveQuery(query string, start time.Time) {
	QueryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
}
