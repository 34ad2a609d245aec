package metrics

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trufnetwork/launchpad-go/core/types"
	"github.com/trufnetwork/launchpad-go/core/util"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil", nil, "ok"},
		{"sentinel", types.ErrHardCapExceeded, "hard_cap_exceeded"},
		{"wrapped", errors.Wrap(types.ErrNotEligible, "tier 1"), "not_eligible"},
		{"stacked", errors.WithStack(types.ErrReentrantCall), "reentrant_call"},
		{"unknown", errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Outcome(tt.err))
		})
	}
}

func TestOutcomeCoversSentinels(t *testing.T) {
	seen := make(map[string]bool)
	for _, o := range outcomes {
		assert.Equal(t, o.label, Outcome(o.err))
		assert.False(t, seen[o.label], "duplicate label %s", o.label)
		seen[o.label] = true
	}
}

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.ObserveCall("sale", "purchase", nil)
	c.ObserveCall("sale", "purchase", nil)
	c.ObserveCall("sale", "purchase", errors.Wrap(types.ErrSaleEnded, "late"))
	c.Record(context.Background(), util.LabelAddress("sale"), types.ClaimEvent{})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Calls().WithLabelValues("sale", "purchase", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Calls().WithLabelValues("sale", "purchase", "sale_ended")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Events().WithLabelValues("Claim")))

	count, err := testutil.GatherAndCount(reg, "launchpad_calls_total", "launchpad_events_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// a second collector on the same registry is a duplicate registration
	_, err = NewCollector(reg)
	require.Error(t, err)

	unregistered, err := NewCollector(nil)
	require.NoError(t, err)
	unregistered.ObserveCall("factory", "deploy_sale", nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(unregistered.Calls().WithLabelValues("factory", "deploy_sale", "ok")))
}
