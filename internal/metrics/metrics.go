// Package metrics records onboarding outcomes in a private Prometheus
// registry. A nil *Recorder is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailure = "failure"
)

// Membership results.
const (
	MembershipJoined  = "joined"
	MembershipMissing = "missing"
	MembershipFailed  = "failed"
)

// Ownership attempt results.
const (
	OwnershipApplied   = "applied"
	OwnershipNotMapped = "not_mapped"
	OwnershipFailed    = "failed"
)

// Recorder holds the onboarding metrics.
type Recorder struct {
	registry *prometheus.Registry

	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	GroupMemberships  *prometheus.CounterVec
	OwnershipAttempts *prometheus.CounterVec
}

// New creates a Recorder with all metrics registered on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ad_onboard_operations_total",
			Help: "Total number of onboarding operations by outcome",
		}, []string{"operation", "outcome"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ad_onboard_operation_duration_seconds",
			Help:    "Duration of onboarding operations",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"operation"}),
		GroupMemberships: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ad_onboard_group_memberships_total",
			Help: "Group membership requests by result",
		}, []string{"result"}),
		OwnershipAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ad_onboard_ownership_attempts_total",
			Help: "Home folder ownership attempts by result",
		}, []string{"result"}),
	}
}

// Registry exposes the underlying registry as a Gatherer.
func (r *Recorder) Registry() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// ObserveOperation records the outcome and duration of an operation.
// Call with time.Now() at the start of the operation.
func (r *Recorder) ObserveOperation(operation, outcome string, start time.Time) {
	if r == nil {
		return
	}
	r.Operations.WithLabelValues(operation, outcome).Inc()
	r.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// IncGroupMembership counts one membership request.
func (r *Recorder) IncGroupMembership(result string) {
	if r == nil {
		return
	}
	r.GroupMemberships.WithLabelValues(result).Inc()
}

// IncOwnershipAttempt counts one ownership attempt.
func (r *Recorder) IncOwnershipAttempt(result string) {
	if r == nil {
		return
	}
	r.OwnershipAttempts.WithLabelValues(result).Inc()
}

// WriteTextfile writes all metrics to path in the text exposition format,
// for node_exporter's textfile collector. The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
