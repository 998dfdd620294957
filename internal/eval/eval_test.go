package eval_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosgo/planner/internal/data"
	"github.com/bosgo/planner/internal/economy"
	"github.com/bosgo/planner/internal/eval"
	"github.com/bosgo/planner/internal/plan"
)

func loadCatalog(t *testing.T) *data.Catalog {
	t.Helper()
	cat, err := data.DefaultCatalog()
	require.NoError(t, err)
	return cat
}

func place(t *testing.T, cat *data.Catalog, minerals int, names ...string) *economy.State {
	t.Helper()
	ids := make([]data.ActionID, 0, len(names))
	for _, n := range names {
		ids = append(ids, cat.MustLookup(n))
	}
	return economy.NewStateWithUnits(cat, ids, minerals, 0)
}

func TestArmyResourceSum(t *testing.T) {
	cat := loadCatalog(t)
	s := place(t, cat, 500, "Nexus", "Pylon", "Gateway", "CyberneticsCore", "Zealot", "Dragoon", "Probe", "Probe")
	zealot, dragoon := cat.Type(cat.MustLookup("Zealot")), cat.Type(cat.MustLookup("Dragoon"))
	want := float64(zealot.MineralCost + 2*zealot.GasCost + dragoon.MineralCost + 2*dragoon.GasCost)

	assert.Equal(t, want, eval.ArmyTotalResourceSum.Evaluate(s))
	assert.Equal(t, want, eval.ArmyCompletedResourceSum.Evaluate(s))

	s.DoAction(cat.MustLookup("Zealot"))

	assert.Equal(t, want+float64(zealot.MineralCost), eval.ArmyTotalResourceSum.Evaluate(s))
	assert.Equal(t, want, eval.ArmyCompletedResourceSum.Evaluate(s), "the new zealot is not finished")
}

func TestArmyResourceSumOfEmptyState(t *testing.T) {
	cat := loadCatalog(t)
	assert.Zero(t, eval.ArmyTotalResourceSum.Evaluate(economy.NewState(cat)))
}

func TestBuildOrderBetter(t *testing.T) {
	cat := loadCatalog(t)
	probe, pylon, gate := cat.MustLookup("Probe"), cat.MustLookup("Pylon"), cat.MustLookup("Gateway")

	tests := []struct {
		name  string
		a, b  plan.BuildOrder
		wantA bool
	}{
		{"more workers wins", plan.NewBuildOrder(probe, probe, pylon), plan.NewBuildOrder(probe, pylon), true},
		{"fewer workers loses", plan.NewBuildOrder(pylon), plan.NewBuildOrder(probe, pylon, gate), false},
		{"same workers shorter wins", plan.NewBuildOrder(probe, pylon), plan.NewBuildOrder(probe, pylon, gate), true},
		{"equal is not better", plan.NewBuildOrder(probe, pylon), plan.NewBuildOrder(probe, gate), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantA, eval.BuildOrderBetter(cat, tt.a, tt.b))
		})
	}
}

func TestStateDominates(t *testing.T) {
	cat := loadCatalog(t)
	rich := place(t, cat, 200, "Nexus", "Probe", "Probe", "Probe")
	poor := place(t, cat, 100, "Nexus", "Probe", "Probe")
	terran := place(t, cat, 1000, "CommandCenter", "SCV", "SCV", "SCV", "SCV")

	assert.True(t, eval.StateDominates(rich, poor))
	assert.False(t, eval.StateDominates(poor, rich))
	assert.True(t, eval.StateDominates(rich, rich))
	assert.False(t, eval.StateDominates(terran, poor), "different races")

	building := rich.Clone()
	building.DoAction(cat.MustLookup("Probe"))
	assert.False(t, eval.StateDominates(building, rich), "fewer minerals after buying")
}

func TestExprEvaluator(t *testing.T) {
	cat := loadCatalog(t)
	s := place(t, cat, 150, "Nexus", "Pylon", "Gateway", "Zealot", "Zealot", "Probe")

	x, err := eval.NewExpr(`Total("Zealot") * 100 + Minerals() + Completed("probe")`, nil)
	require.NoError(t, err)

	v, err := x.Run(s)
	require.NoError(t, err)
	assert.Equal(t, 351.0, v)
	assert.Equal(t, 351.0, x.Evaluate(s))
}

func TestExprEvaluatorErrors(t *testing.T) {
	cat := loadCatalog(t)
	s := place(t, cat, 0, "Nexus", "Probe")

	_, err := eval.NewExpr(`Total("Zealot") +`, nil)
	assert.Error(t, err, "syntax")

	_, err = eval.NewExpr(`"text"`, nil)
	assert.Error(t, err, "not a number")

	x, err := eval.NewExpr(`Total("Mothership")`, nil)
	require.NoError(t, err)
	_, err = x.Run(s)
	assert.ErrorContains(t, err, "Mothership")
	assert.Zero(t, x.Evaluate(s))
}
