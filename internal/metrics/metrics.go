// Package metrics exposes Prometheus counters and gauges for the
// dispatcher, reaper, and state machine. These are a side channel only:
// nothing in the core reads them back, and no invariant depends on them
// (spec §5).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// DispatcherClaims counts successful nextWorkItem selections, labeled
	// by service.
	DispatcherClaims = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobflow",
		Subsystem: "dispatcher",
		Name:      "claims_total",
		Help:      "Work items claimed via nextWorkItem, by service.",
	}, []string{"service"})

	// DispatcherEmptyPolls counts calls to nextWorkItem that found no
	// eligible user for a service.
	DispatcherEmptyPolls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobflow",
		Subsystem: "dispatcher",
		Name:      "empty_polls_total",
		Help:      "nextWorkItem calls that found no ready work, by service.",
	}, []string{"service"})

	// ReaperDeletions counts rows removed per reap tick, labeled by table.
	ReaperDeletions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobflow",
		Subsystem: "reaper",
		Name:      "rows_deleted_total",
		Help:      "Rows deleted by the reaper, by table.",
	}, []string{"table"})

	// ReaperTickErrors counts swallowed errors from a reap tick.
	ReaperTickErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobflow",
		Subsystem: "reaper",
		Name:      "tick_errors_total",
		Help:      "Errors encountered and swallowed during a reap tick, by stage.",
	}, []string{"stage"})

	// JobTransitions counts successful state transitions, labeled by the
	// resulting status.
	JobTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobflow",
		Subsystem: "jobs",
		Name:      "transitions_total",
		Help:      "Job status transitions applied, by resulting status.",
	}, []string{"status"})

	// ActiveJobs gauges the number of jobs currently in each active status.
	ActiveJobs = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "jobflow",
		Subsystem: "jobs",
		Name:      "active",
		Help:      "Jobs currently in an active status.",
	}, []string{"status"})
)

// MustRegister registers every jobflow metric with reg. Call once at
// startup; a second call against the same registry panics, matching
// prometheus/client_golang's own contract.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(DispatcherClaims, DispatcherEmptyPolls, ReaperDeletions, ReaperTickErrors, JobTransitions, ActiveJobs)
}
