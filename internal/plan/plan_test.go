package plan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosgo/planner/internal/data"
	"github.com/bosgo/planner/internal/economy"
	"github.com/bosgo/planner/internal/plan"
)

func loadCatalog(t *testing.T) *data.Catalog {
	t.Helper()
	cat, err := data.DefaultCatalog()
	require.NoError(t, err)
	return cat
}

func startState(t *testing.T, cat *data.Catalog, name string) *economy.State {
	t.Helper()
	sc, err := data.DefaultScenarios()
	require.NoError(t, err)
	spec, ok := sc.State(name)
	require.True(t, ok, "state %s", name)
	units, err := spec.UnitTypes(cat)
	require.NoError(t, err)
	return economy.NewStateWithUnits(cat, units, spec.Minerals, spec.Gas)
}

func TestBuildOrderCounts(t *testing.T) {
	cat := loadCatalog(t)
	probe, pylon := cat.MustLookup("Probe"), cat.MustLookup("Pylon")

	b := plan.NewBuildOrder(probe, probe, pylon)
	b.AddN(probe, 2)

	assert.Equal(t, 5, b.Len())
	assert.Equal(t, 4, b.Count(probe))
	assert.Equal(t, 1, b.Count(pylon))
	assert.Equal(t, 0, b.Count(cat.MustLookup("Zealot")))
	assert.Equal(t, "2 Probe, Pylon, 2 Probe", b.Compact(cat))

	assert.Equal(t, probe, b.Pop())
	b.PopN(2)
	assert.Equal(t, []string{"Probe", "Probe"}, b.Names(cat))
	assert.Equal(t, 0, b.Count(pylon))

	b.Clear()
	assert.True(t, b.IsEmpty())
	assert.Equal(t, 0, b.Count(probe))
	assert.Panics(t, func() { b.Pop() })
}

func TestBuildOrderCloneIsIndependent(t *testing.T) {
	cat := loadCatalog(t)
	probe := cat.MustLookup("Probe")
	b := plan.NewBuildOrder(probe)

	c := b.Clone()
	c.Add(probe)

	assert.Equal(t, 1, b.Count(probe))
	assert.Equal(t, 2, c.Count(probe))
}

func TestDefaultBuildOrdersAreLegal(t *testing.T) {
	cat := loadCatalog(t)
	sc, err := data.DefaultScenarios()
	require.NoError(t, err)

	tests := []struct {
		order string
		state string
	}{
		{"protoss_two_gate", "protoss_start"},
		{"protoss_dragoon", "protoss_start"},
		{"terran_bio", "terran_start"},
		{"terran_tank", "terran_start"},
		{"zerg_pool", "zerg_start"},
		{"zerg_hydra", "zerg_start"},
	}
	for _, tt := range tests {
		t.Run(tt.order, func(t *testing.T) {
			spec, ok := sc.BuildOrder(tt.order)
			require.True(t, ok)
			ids, err := spec.Resolve(cat)
			require.NoError(t, err)
			s := startState(t, cat, tt.state)

			err = plan.NewBuildOrder(ids...).ApplyTo(s)

			require.NoError(t, err)
			assert.Greater(t, s.Frame(), 0)
		})
	}
}

func TestApplyToStopsAtIllegalAction(t *testing.T) {
	cat := loadCatalog(t)
	s := startState(t, cat, "protoss_start")
	b := plan.NewBuildOrder(cat.MustLookup("Probe"), cat.MustLookup("Zealot"))

	err := b.ApplyTo(s)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "action 1 (Zealot)")
	assert.Equal(t, 6, s.NumUnits(), "the probe was still built")
}

func TestTimelineLeavesStateUntouched(t *testing.T) {
	cat := loadCatalog(t)
	s := startState(t, cat, "protoss_start")
	pylon := cat.MustLookup("Pylon")

	starts, err := plan.NewBuildOrder(pylon).Timeline(s)

	require.NoError(t, err)
	assert.Equal(t, []int{278}, starts)
	assert.Equal(t, 0, s.Frame())
}

func TestSortByPrerequisites(t *testing.T) {
	cat := loadCatalog(t)
	names := []string{"Zealot", "Gateway", "Probe", "Pylon"}
	var ids []data.ActionID
	for _, n := range names {
		ids = append(ids, cat.MustLookup(n))
	}
	b := plan.NewBuildOrder(ids...)

	b.SortByPrerequisites(cat)

	got := b.Names(cat)
	index := func(n string) int {
		for i, v := range got {
			if v == n {
				return i
			}
		}
		return -1
	}
	assert.Less(t, index("Pylon"), index("Gateway"))
	assert.Less(t, index("Gateway"), index("Zealot"))
	assert.Equal(t, 1, b.Count(cat.MustLookup("Zealot")))
}

func TestGoalAchievementCountsEquivalents(t *testing.T) {
	cat := loadCatalog(t)
	hatch := cat.MustLookup("Hatchery")
	g := plan.NewGoal(cat)
	g.SetGoal(hatch, 1)
	s := economy.NewStateWithUnits(cat, []data.ActionID{cat.MustLookup("Lair"), cat.MustLookup("Drone")}, 0, 0)

	assert.True(t, g.IsAchievedBy(s), "a lair counts as a hatchery")

	g.SetGoal(cat.MustLookup("Lair"), 1)
	g.SetGoal(hatch, 0)
	h := economy.NewStateWithUnits(cat, []data.ActionID{hatch, cat.MustLookup("Drone")}, 0, 0)
	assert.False(t, g.IsAchievedBy(h))
}

func TestGoalCountsUnitsInProgress(t *testing.T) {
	cat := loadCatalog(t)
	s := startState(t, cat, "protoss_start")
	pylon := cat.MustLookup("Pylon")
	g := plan.NewGoal(cat)
	g.SetGoal(pylon, 1)
	require.False(t, g.IsAchievedBy(s))

	s.DoAction(pylon)

	assert.True(t, g.IsAchievedBy(s))
	assert.Equal(t, 0, g.Missing(s, pylon))
}

func TestGoalSupplyAndLimits(t *testing.T) {
	cat := loadCatalog(t)
	zealot, probe := cat.MustLookup("Zealot"), cat.MustLookup("Probe")
	g := plan.NewGoal(cat)

	g.SetGoal(zealot, 3)
	g.SetMax(probe, 12)

	assert.Equal(t, 3*cat.Type(zealot).SupplyCost, g.SupplyRequired())
	assert.Equal(t, 3, g.Limit(zealot))
	assert.Equal(t, 12, g.Limit(probe))
	assert.Equal(t, []data.ActionID{zealot}, g.Types())
	assert.Equal(t, cat.Type(zealot).Race, g.Race())
	assert.Contains(t, g.String(), "3 Zealot")
	assert.Contains(t, g.String(), "Probe (max 12)")

	g.SetGoal(zealot, 0)
	assert.Equal(t, 0, g.SupplyRequired())
	assert.True(t, g.IsEmpty())
	assert.Panics(t, func() { g.SetGoal(zealot, -1) })
}

func TestGoalFromScenario(t *testing.T) {
	cat := loadCatalog(t)
	sc, err := data.DefaultScenarios()
	require.NoError(t, err)
	spec, ok := sc.Goal("dragoons")
	require.True(t, ok)
	goal, limit, err := spec.Resolve(cat)
	require.NoError(t, err)

	g := plan.GoalFromCounts(cat, goal, limit)

	assert.Equal(t, 2, g.Goal(cat.MustLookup("Dragoon")))
	assert.Equal(t, 14, g.Max(cat.MustLookup("Probe")))
}
