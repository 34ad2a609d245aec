// Package metrics exposes launchpad call outcomes as prometheus metrics.
package metrics

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/trufnetwork/launchpad-go/core/types"
)

const namespace = "launchpad"

// outcomes maps sentinel errors to a bounded label set
var outcomes = []struct {
	err   error
	label string
}{
	{types.ErrUnauthorized, "unauthorized"},
	{types.ErrInvalidParams, "invalid_params"},
	{types.ErrInvalidTier, "invalid_tier"},
	{types.ErrInvalidVestingWindow, "invalid_vesting_window"},
	{types.ErrSaleNotStarted, "sale_not_started"},
	{types.ErrSaleEnded, "sale_ended"},
	{types.ErrClaimNotStarted, "claim_not_started"},
	{types.ErrAlreadyFunded, "already_funded"},
	{types.ErrInsufficientFunding, "insufficient_funding"},
	{types.ErrNotFunded, "not_funded"},
	{types.ErrHardCapExceeded, "hard_cap_exceeded"},
	{types.ErrAllocationExceeded, "allocation_exceeded"},
	{types.ErrNotEligible, "not_eligible"},
	{types.ErrStillLocked, "still_locked"},
	{types.ErrPositionNotFound, "position_not_found"},
	{types.ErrTransferFailed, "transfer_failed"},
	{types.ErrDeploymentFailed, "deployment_failed"},
	{types.ErrSaleNotFound, "sale_not_found"},
	{types.ErrReentrantCall, "reentrant_call"},
}

// Outcome returns the metric label of a call result
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	for _, o := range outcomes {
		if errors.Is(err, o.err) {
			return o.label
		}
	}
	return "error"
}

// Collector counts state-changing calls by component, operation and outcome
type Collector struct {
	calls  *prometheus.CounterVec
	events *prometheus.CounterVec
}

// Compile-time checks that Collector implements Metrics and EventSink
var (
	_ types.Metrics   = (*Collector)(nil)
	_ types.EventSink = (*Collector)(nil)
)

// NewCollector creates the metrics and registers them with reg.
// A nil registerer leaves them unregistered.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "State-changing launchpad calls by component, operation and outcome.",
		}, []string{"component", "operation", "outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events emitted by launchpad components.",
		}, []string{"event"}),
	}
	if reg == nil {
		return c, nil
	}
	for _, collector := range []prometheus.Collector{c.calls, c.events} {
		if err := reg.Register(collector); err != nil {
			return nil, errors.Wrap(err, "register launchpad metrics")
		}
	}
	return c, nil
}

// ObserveCall implements types.Metrics
func (c *Collector) ObserveCall(component, operation string, err error) {
	c.calls.WithLabelValues(component, operation, Outcome(err)).Inc()
}

// ObserveEvent counts an emitted event
func (c *Collector) ObserveEvent(event types.Event) {
	c.events.WithLabelValues(event.EventName()).Inc()
}

// Record implements types.EventSink by counting the event
func (c *Collector) Record(_ context.Context, _ common.Address, event types.Event) {
	c.ObserveEvent(event)
}

// Calls exposes the call counter for scraping helpers and tests
func (c *Collector) Calls() *prometheus.CounterVec {
	return c.calls
}

// Events exposes the event counter
func (c *Collector) Events() *prometheus.CounterVec {
	return c.events
}
