package search_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosgo/planner/internal/core/event"
	"github.com/bosgo/planner/internal/data"
	"github.com/bosgo/planner/internal/economy"
	"github.com/bosgo/planner/internal/plan"
	"github.com/bosgo/planner/internal/search"
)

func loadCatalog(t *testing.T) *data.Catalog {
	t.Helper()
	cat, err := data.DefaultCatalog()
	require.NoError(t, err)
	return cat
}

func loadScenarios(t *testing.T) *data.Scenarios {
	t.Helper()
	sc, err := data.DefaultScenarios()
	require.NoError(t, err)
	return sc
}

func startState(t *testing.T, cat *data.Catalog, name string) *economy.State {
	t.Helper()
	spec, ok := loadScenarios(t).State(name)
	require.True(t, ok, "state %s", name)
	units, err := spec.UnitTypes(cat)
	require.NoError(t, err)
	return economy.NewStateWithUnits(cat, units, spec.Minerals, spec.Gas)
}

func namedGoal(t *testing.T, cat *data.Catalog, name string) *plan.Goal {
	t.Helper()
	spec, ok := loadScenarios(t).Goal(name)
	require.True(t, ok, "goal %s", name)
	goal, limit, err := spec.Resolve(cat)
	require.NoError(t, err)
	return plan.GoalFromCounts(cat, goal, limit)
}

func namedBuildOrder(t *testing.T, cat *data.Catalog, name string) plan.BuildOrder {
	t.Helper()
	spec, ok := loadScenarios(t).BuildOrder(name)
	require.True(t, ok, "build order %s", name)
	ids, err := spec.Resolve(cat)
	require.NoError(t, err)
	return plan.NewBuildOrder(ids...)
}

// zealotParams is a small exhaustive setting: at most six probes, one pylon
// and one gateway.
func zealotParams(t *testing.T, cat *data.Catalog, zealots int) search.Params {
	t.Helper()
	goal := plan.GoalFromCounts(cat,
		map[data.ActionID]int{cat.MustLookup("Zealot"): zealots},
		map[data.ActionID]int{
			cat.MustLookup("Probe"):   6,
			cat.MustLookup("Pylon"):   1,
			cat.MustLookup("Gateway"): 1,
		},
	)
	p := search.NewParams(startState(t, cat, "protoss_start"), goal)
	for _, n := range []string{"Probe", "Pylon", "Gateway", "Zealot"} {
		p.Relevant.Add(cat.MustLookup(n))
	}
	return p
}

// bruteForce returns the earliest finish frame of any build order over
// relevant that reaches g, without pruning.
func bruteForce(s *economy.State, g *plan.Goal, relevant []data.ActionID) int {
	if g.IsAchievedBy(s) {
		return s.LastActionFinishTime()
	}
	best := search.Unbounded
	for _, a := range relevant {
		if !s.IsLegal(a) {
			continue
		}
		if l := g.Limit(a); l > 0 && s.NumTotal(a) >= l {
			continue
		}
		c := s.Clone()
		c.DoAction(a)
		best = min(best, bruteForce(c, g, relevant))
	}
	return best
}

func TestSearchSingleSupplyProvider(t *testing.T) {
	cat := loadCatalog(t)
	initial := startState(t, cat, "protoss_start")
	goal := namedGoal(t, cat, "pylon")

	tests := []struct {
		name   string
		params search.Params
	}{
		{"plain", search.NewParams(initial, goal)},
		{"configured", search.Configure(initial, goal)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := search.NewStackSearch(tt.params, nil).Search(context.Background())

			require.NoError(t, err)
			assert.True(t, r.Solved)
			assert.False(t, r.TimedOut)
			assert.Equal(t, []string{"Pylon"}, r.BuildOrder.Names(cat))
			assert.Equal(t, 728, r.FinishFrame)
			assert.NoError(t, search.Verify(initial, goal, r))
		})
	}
}

func TestSearchMatchesExhaustiveEnumeration(t *testing.T) {
	cat := loadCatalog(t)

	for _, zealots := range []int{1, 2} {
		p := zealotParams(t, cat, zealots)
		want := bruteForce(p.Initial, p.Goal, p.Relevant.Slice())
		require.Less(t, want, search.Unbounded)

		r, err := search.NewStackSearch(p, nil).Search(context.Background())

		require.NoError(t, err)
		assert.True(t, r.Solved)
		assert.Equal(t, want, r.FinishFrame, "%d zealots", zealots)
		assert.GreaterOrEqual(t, r.FinishFrame, r.LowerBound)
		assert.NoError(t, search.Verify(p.Initial, p.Goal, r))
	}
}

func TestSearchWithOpening(t *testing.T) {
	cat := loadCatalog(t)
	p := zealotParams(t, cat, 1)
	p.Opening = plan.NewBuildOrder(cat.MustLookup("Probe"))

	r, err := search.NewStackSearch(p, nil).Search(context.Background())

	require.NoError(t, err)
	require.True(t, r.HasPlan())
	assert.Equal(t, "Probe", cat.Name(r.BuildOrder.At(0)))
	assert.NoError(t, search.Verify(p.Initial, p.Goal, r))
}

func TestSearchGoalAlreadyMet(t *testing.T) {
	cat := loadCatalog(t)
	initial := startState(t, cat, "protoss_start")
	goal := plan.NewGoal(cat)
	goal.SetGoal(cat.MustLookup("Probe"), 4)

	r, err := search.NewStackSearch(search.NewParams(initial, goal), nil).Search(context.Background())

	require.NoError(t, err)
	assert.True(t, r.Solved)
	assert.True(t, r.BuildOrder.IsEmpty())
}

func TestSearchNeverSelectsUnsatisfiableProducerCount(t *testing.T) {
	cat := loadCatalog(t)
	archon := cat.MustLookup("Archon")
	initial := economy.NewStateWithUnits(cat, []data.ActionID{
		cat.MustLookup("Nexus"),
		cat.MustLookup("Probe"), cat.MustLookup("Probe"), cat.MustLookup("Probe"), cat.MustLookup("Probe"),
		cat.MustLookup("HighTemplar"),
	}, 50, 0)
	require.False(t, initial.IsLegal(archon))

	p := zealotParams(t, cat, 1)
	p.Initial = initial
	p.Goal.SetMax(archon, 1)
	p.Relevant.Add(archon)

	r, err := search.NewStackSearch(p, nil).Search(context.Background())

	require.NoError(t, err)
	require.True(t, r.HasPlan())
	assert.Zero(t, r.BuildOrder.Count(archon))
	assert.Zero(t, r.FinalState.NumTotal(archon))
}

func TestSearchTimeoutAndResume(t *testing.T) {
	cat := loadCatalog(t)
	p := zealotParams(t, cat, 2)
	fresh, err := search.NewStackSearch(p, nil).Search(context.Background())
	require.NoError(t, err)

	p.TimeLimit = time.Nanosecond
	p.NodeCheckInterval = 1
	s := search.NewStackSearch(p, nil)

	r, err := s.Search(context.Background())
	require.NoError(t, err)
	assert.True(t, r.TimedOut)
	assert.False(t, r.Solved)
	assert.True(t, r.Naive, "a timed out search falls back to the naive plan")
	assert.Equal(t, event.OutcomeTimedOut, r.Outcome())

	s.SetTimeLimit(0)
	r, err = s.Search(context.Background())

	require.NoError(t, err)
	assert.True(t, r.Solved)
	assert.False(t, r.TimedOut)
	assert.Equal(t, fresh.FinishFrame, r.FinishFrame)
	assert.NoError(t, search.Verify(p.Initial, p.Goal, r))
}

func TestSearchCanceledContext(t *testing.T) {
	cat := loadCatalog(t)
	p := zealotParams(t, cat, 2)
	p.NodeCheckInterval = 1
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := search.NewStackSearch(p, nil).Search(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, event.OutcomeCanceled, r.Outcome())
	assert.True(t, r.HasPlan())
}

func TestSearchEmitsEvents(t *testing.T) {
	cat := loadCatalog(t)
	p := zealotParams(t, cat, 1)
	p.Bus = event.NewBus()
	var improved []event.SolutionImproved
	var finished []event.SearchFinished
	event.Subscribe(p.Bus, func(e event.SolutionImproved) { improved = append(improved, e) })
	event.Subscribe(p.Bus, func(e event.SearchFinished) { finished = append(finished, e) })

	r, err := search.NewStackSearch(p, nil).Search(context.Background())

	require.NoError(t, err)
	require.Len(t, finished, 1)
	assert.Equal(t, event.OutcomeSolved, finished[0].Outcome)
	assert.Equal(t, "dfbb", finished[0].Strategy)
	assert.Equal(t, r.FinishFrame, finished[0].FinishFrame)
	require.NotEmpty(t, improved)
	for i := 1; i < len(improved); i++ {
		assert.Less(t, improved[i].FinishFrame, improved[i-1].FinishFrame)
	}
}

func TestParallelSearchAgreesWithSerial(t *testing.T) {
	cat := loadCatalog(t)
	p := zealotParams(t, cat, 2)
	serial, err := search.NewStackSearch(p, nil).Search(context.Background())
	require.NoError(t, err)

	r, err := search.ParallelSearch(context.Background(), p, 4, nil)

	require.NoError(t, err)
	assert.True(t, r.Solved)
	assert.Equal(t, serial.FinishFrame, r.FinishFrame)
	assert.Greater(t, r.Nodes, uint64(1))
	assert.NoError(t, search.Verify(p.Initial, p.Goal, r))
}

func TestParallelSearchForwardsImprovements(t *testing.T) {
	cat := loadCatalog(t)
	p := zealotParams(t, cat, 1)
	p.Bus = event.NewBus()
	var improved []event.SolutionImproved
	var finished []event.SearchFinished
	event.Subscribe(p.Bus, func(e event.SolutionImproved) { improved = append(improved, e) })
	event.Subscribe(p.Bus, func(e event.SearchFinished) { finished = append(finished, e) })

	r, err := search.ParallelSearch(context.Background(), p, 3, nil)

	require.NoError(t, err)
	require.Len(t, finished, 1, "only the coordinator reports the end")
	require.NotEmpty(t, improved)
	best := improved[0].FinishFrame
	for _, e := range improved {
		assert.GreaterOrEqual(t, e.FinishFrame, r.FinishFrame)
		best = min(best, e.FinishFrame)
	}
	assert.Equal(t, r.FinishFrame, best)
}

// gasOpening has one assimilator running, a second nexus and a forge under
// construction, and six probes.
func gasOpening(t *testing.T, cat *data.Catalog) *economy.State {
	t.Helper()
	s := startState(t, cat, "protoss_start")
	s.SetMinerals(1200)
	for _, n := range []string{"Probe", "Nexus", "Assimilator", "Probe", "Pylon", "Forge"} {
		a := cat.MustLookup(n)
		require.True(t, s.IsLegal(a), n)
		s.DoAction(a)
	}
	return s
}

func gasParams(t *testing.T, cat *data.Catalog) search.Params {
	t.Helper()
	initial := gasOpening(t, cat)
	goal := plan.GoalFromCounts(cat,
		map[data.ActionID]int{cat.MustLookup("PhotonCannon"): 1},
		map[data.ActionID]int{
			cat.MustLookup("Assimilator"): 2,
			cat.MustLookup("Probe"):       8,
		},
	)
	p := search.NewParams(initial, goal)
	for _, n := range []string{"Probe", "Assimilator", "PhotonCannon"} {
		p.Relevant.Add(cat.MustLookup(n))
	}
	p.TimeLimit = 10 * time.Second
	return p
}

func TestSearchWithSecondRefinery(t *testing.T) {
	cat := loadCatalog(t)
	p := gasParams(t, cat)

	var r search.Results
	var err error
	require.NotPanics(t, func() {
		r, err = search.NewStackSearch(p, nil).Search(context.Background())
	})

	require.NoError(t, err)
	assert.True(t, r.Solved)
	assert.Contains(t, r.BuildOrder.Names(cat), "PhotonCannon")
	assert.NoError(t, search.Verify(p.Initial, p.Goal, r))
	assert.Equal(t, bruteForce(p.Initial, p.Goal, p.Relevant.Slice()), r.FinishFrame)
}

func TestSearchWithSelectsStrategy(t *testing.T) {
	cat := loadCatalog(t)
	p := zealotParams(t, cat, 1)

	one, err := search.SearchWith(context.Background(), p, 1, nil)
	require.NoError(t, err)
	many, err := search.SearchWith(context.Background(), p, 2, nil)
	require.NoError(t, err)

	assert.Equal(t, one.FinishFrame, many.FinishFrame)
}

func TestConfiguredSearchFindsPlan(t *testing.T) {
	cat := loadCatalog(t)
	initial := startState(t, cat, "protoss_start")
	goal := namedGoal(t, cat, "two_zealots")
	p := search.Configure(initial, goal)
	p.TimeLimit = 5 * time.Second

	r, err := search.NewStackSearch(p, nil).Search(context.Background())

	require.NoError(t, err)
	require.True(t, r.HasPlan())
	assert.NoError(t, search.Verify(initial, goal, r))
}

func TestBoundsBracketOptimum(t *testing.T) {
	cat := loadCatalog(t)
	p := zealotParams(t, cat, 2)
	optimum := bruteForce(p.Initial, p.Goal, p.Relevant.Slice())

	upper, naive, err := search.UpperBound(p.Initial, p.Goal)
	require.NoError(t, err)
	lower := search.LowerBound(p.Initial, p.Goal)

	assert.LessOrEqual(t, p.Initial.Frame()+lower, optimum)
	assert.GreaterOrEqual(t, upper, optimum)
	assert.Equal(t, 2, naive.Count(cat.MustLookup("Zealot")))
}

func TestNaivePlanReachesGoals(t *testing.T) {
	cat := loadCatalog(t)
	tests := []struct {
		state string
		goal  string
	}{
		{"protoss_start", "pylon"},
		{"protoss_start", "two_zealots"},
		{"protoss_start", "dragoons"},
		{"terran_start", "marines"},
		{"zerg_start", "lings"},
	}
	for _, tt := range tests {
		t.Run(tt.goal, func(t *testing.T) {
			initial := startState(t, cat, tt.state)
			goal := namedGoal(t, cat, tt.goal)

			bo, err := search.NaivePlan(initial, goal)
			require.NoError(t, err)

			s := initial.Clone()
			require.NoError(t, bo.ApplyTo(s))
			assert.True(t, goal.IsAchievedBy(s), "%s from %s: %s", tt.goal, tt.state, bo.Compact(cat))
		})
	}
}

func TestNaivePlanNeedsIncome(t *testing.T) {
	cat := loadCatalog(t)
	initial := economy.NewStateWithUnits(cat, []data.ActionID{cat.MustLookup("Nexus")}, 50, 0)
	goal := namedGoal(t, cat, "pylon")

	_, err := search.NaivePlan(initial, goal)

	assert.ErrorIs(t, err, search.ErrNoNaivePlan)
}

func TestLowerBoundCountsPrerequisiteChain(t *testing.T) {
	cat := loadCatalog(t)
	initial := startState(t, cat, "protoss_start")
	goal := plan.NewGoal(cat)
	goal.SetGoal(cat.MustLookup("Zealot"), 1)

	// Pylon, then Gateway, then Zealot.
	want := cat.Type(cat.MustLookup("Pylon")).BuildTime +
		cat.Type(cat.MustLookup("Gateway")).BuildTime +
		cat.Type(cat.MustLookup("Zealot")).BuildTime

	assert.Equal(t, want, search.LowerBound(initial, goal))
}

func TestConfigureSettings(t *testing.T) {
	cat := loadCatalog(t)
	initial := startState(t, cat, "protoss_start")
	id := cat.MustLookup

	p := search.Configure(initial, namedGoal(t, cat, "two_zealots"))
	g := p.Goal

	assert.Equal(t, 1, g.Max(id("Nexus")))
	assert.Equal(t, 0, g.Max(id("Assimilator")))
	assert.Equal(t, 24, g.Max(id("Probe")))
	assert.Equal(t, 3, g.Max(id("Pylon")))
	assert.Equal(t, 2, g.Max(id("Gateway")))
	assert.Equal(t, 2, g.Max(id("Zealot")))
	assert.True(t, p.AlwaysMakeWorkers)
	assert.True(t, p.SupplyBounding)
	assert.Equal(t, 1.5, p.SupplyBoundingThreshold)
	assert.True(t, p.UseIncreasingRepetitions)
	for _, n := range []string{"Probe", "Pylon", "Gateway", "Zealot"} {
		assert.True(t, p.Relevant.Contains(id(n)), n)
	}
	assert.False(t, p.Relevant.Contains(id("Forge")))
}

func TestConfigureRepetitionsAndWorkerCap(t *testing.T) {
	cat := loadCatalog(t)
	initial := startState(t, cat, "protoss_start")
	id := cat.MustLookup
	goal := plan.NewGoal(cat)
	goal.SetGoal(id("Zealot"), 6)
	goal.SetGoal(id("Probe"), 50)

	p := search.Configure(initial, goal)

	assert.Equal(t, 3, p.Repetitions(id("Zealot")))
	assert.Equal(t, 2, p.Repetitions(id("Gateway")))
	assert.Equal(t, 1, p.RepetitionThreshold(id("Gateway")))
	assert.Equal(t, 45, p.Goal.Goal(id("Probe")))
	assert.Equal(t, 50, goal.Goal(id("Probe")), "the caller's goal is untouched")
}

func TestConfigureGasGoalAllowsRefinery(t *testing.T) {
	cat := loadCatalog(t)
	initial := startState(t, cat, "protoss_start")
	id := cat.MustLookup

	p := search.Configure(initial, namedGoal(t, cat, "dragoons"))

	assert.Equal(t, 1, p.Goal.Max(id("Assimilator")))
	assert.Equal(t, 1, p.Goal.Max(id("CyberneticsCore")))
	assert.Equal(t, 14, p.Goal.Max(id("Probe")))
}

func TestNewParamsDefaults(t *testing.T) {
	cat := loadCatalog(t)
	p := search.NewParams(startState(t, cat, "protoss_start"), namedGoal(t, cat, "pylon"))

	assert.Equal(t, search.DefaultNodeCheckInterval, p.NodeCheckInterval)
	assert.Equal(t, 1, p.Repetitions(cat.MustLookup("Probe")))
	p.SetRepetitions(cat.MustLookup("Probe"), 0)
	assert.Equal(t, 1, p.Repetitions(cat.MustLookup("Probe")))
}

func TestVerifyRejectsWrongFinish(t *testing.T) {
	cat := loadCatalog(t)
	initial := startState(t, cat, "protoss_start")
	goal := namedGoal(t, cat, "two_zealots")
	bo := namedBuildOrder(t, cat, "protoss_two_gate")
	final := initial.Clone()
	require.NoError(t, bo.ApplyTo(final))

	r := search.Results{BuildOrder: bo, FinalState: final, FinishFrame: final.LastActionFinishTime() + 1}

	assert.Error(t, search.Verify(initial, goal, r))
	r.FinishFrame--
	assert.NoError(t, search.Verify(initial, goal, r))
}
