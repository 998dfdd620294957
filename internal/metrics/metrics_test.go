package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosgo/planner/internal/core/event"
	"github.com/bosgo/planner/internal/metrics"
)

func TestCollectorFollowsBus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewSearchCollector()
	require.NoError(t, c.Register(reg))
	bus := event.NewBus()
	c.Subscribe(bus)

	event.Emit(bus, event.SolutionImproved{Strategy: "dfbb", FinishFrame: 900})
	event.Emit(bus, event.SolutionImproved{Strategy: "dfbb", FinishFrame: 728})
	event.Emit(bus, event.SolutionImproved{Strategy: "bucket", Value: 250})
	event.Emit(bus, event.SearchFinished{
		Strategy: "dfbb",
		Outcome:  event.OutcomeSolved,
		Nodes:    1200,
		Elapsed:  150 * time.Millisecond,
	})
	bus.Flush()

	n, err := testutil.GatherAndCount(reg,
		"bosgo_search_runs_total",
		"bosgo_search_nodes_expanded_total",
		"bosgo_search_improvements_total",
		"bosgo_search_best_finish_frame",
		"bosgo_search_best_value",
		"bosgo_search_duration_seconds",
	)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.NewSearchCollector().Register(reg))

	err := metrics.NewSearchCollector().Register(reg)

	assert.ErrorContains(t, err, "register search metrics")
}

func TestRecordedValues(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewSearchCollector()
	require.NoError(t, c.Register(reg))

	c.RecordImproved(event.SolutionImproved{Strategy: "dfbb", FinishFrame: 728})
	c.RecordFinished(event.SearchFinished{Strategy: "dfbb", Outcome: event.OutcomeTimedOut, Nodes: 40})
	c.RecordFinished(event.SearchFinished{Strategy: "dfbb", Outcome: event.OutcomeTimedOut, Nodes: 2})

	families, err := reg.Gather()
	require.NoError(t, err)
	got := make(map[string]float64)
	for _, f := range families {
		for _, m := range f.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				got[f.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				got[f.GetName()] = m.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, got["bosgo_search_runs_total"])
	assert.Equal(t, 42.0, got["bosgo_search_nodes_expanded_total"])
	assert.Equal(t, 728.0, got["bosgo_search_best_finish_frame"])
}
