// Package metrics holds the prometheus collectors of the execution backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "mes"
	subsystem = "execution"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	// ResultsRecorded counts work result operations by operation and outcome.
	ResultsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "work_results_total",
			Help:      "Work result operations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	// Transitions counts work order lifecycle transitions.
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "work_order_transitions_total",
			Help:      "Work order lifecycle transitions by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	// DowntimeEvents counts downtime operations.
	DowntimeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "downtime_events_total",
			Help:      "Downtime operations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	// AuditDropped counts audit records and domain events lost to a full queue or
	// a failing sink.
	AuditDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "audit_dropped_total",
			Help:      "Audit records and domain events that could not be delivered.",
		},
		[]string{"reason"},
	)

	// OpenDowntime is the number of currently open downtime events.
	OpenDowntime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "open_downtime_events",
			Help:      "Downtime events currently open across all tenants.",
		},
	)

	// LongStoppages is the number of open downtime events older than the
	// configured threshold.
	LongStoppages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "long_stoppages",
			Help:      "Open downtime events older than the long stoppage threshold.",
		},
	)
)

// Outcome maps an error to its outcome label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
