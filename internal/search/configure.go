package search

import (
	"github.com/bosgo/planner/internal/data"
	"github.com/bosgo/planner/internal/economy"
	"github.com/bosgo/planner/internal/plan"
)

// Settings applied by Configure.
const (
	maxWorkerHeadroom     = 20
	maxWorkers            = 100
	maxWorkersCapped      = 45
	maxRefineries         = 3
	extraProductionLimit  = 2
	smartSupplyThreshold  = 1.5
	repetitionGoalMinimum = 5
	maxRepetitions        = 4
)

// Configure derives search settings from the goal: maxima for depots,
// refineries, workers, supply providers and every strict dependency, the
// relevant action list, repetitions for large goals, and all abstractions
// switched on. A worker maximum already on the goal is kept when lower. The
// returned Params own a copy of goal.
func Configure(initial *economy.State, goal *plan.Goal) Params {
	g := goal.Clone()
	p := NewParams(initial, g)
	p.Strategy = "smart"

	cat := initial.Catalog()
	raceID := initial.Race()
	if raceID == data.NoRace {
		raceID = g.Race()
	}
	if raceID == data.NoRace {
		return p
	}
	race := cat.Race(raceID)

	// No expansions.
	g.SetMax(race.Depot, initial.NumTotal(race.Depot))
	g.SetMax(race.Refinery, min(maxRefineries, refineriesRequired(initial, g, race)))
	workers := min(initial.NumTotal(race.Worker)+maxWorkerHeadroom, maxWorkers)
	if m := g.Max(race.Worker); m > 0 {
		workers = min(workers, m)
	}
	g.SetMax(race.Worker, workers)
	g.SetMax(race.SupplyProvider, supplyProvidersRequired(initial, g, race))

	setPrerequisiteMax(initial, g)
	if race.Token != data.None {
		g.SetMax(race.Refinery, min(g.Max(race.Refinery), 1))
	}

	for i := 1; i < cat.Len(); i++ {
		t := data.ActionID(i)
		if g.Goal(t) > 0 || g.Max(t) > 0 {
			p.Relevant.Add(t)
		}
	}

	for i := 1; i < cat.Len(); i++ {
		tt := cat.Type(data.ActionID(i))
		if tt.IsSupplyProvider || g.Goal(tt.ID) < repetitionGoalMinimum {
			continue
		}
		p.SetRepetitions(tt.ID, min(maxRepetitions, g.Goal(tt.ID)/2))
		if tt.Producer != data.None {
			p.SetRepetitions(tt.Producer, 2)
			p.SetRepetitionThreshold(tt.Producer, 1)
		}
	}

	if g.Goal(race.Worker) > maxWorkersCapped {
		g.SetGoal(race.Worker, maxWorkersCapped)
	}
	if g.Max(race.Worker) > maxWorkersCapped {
		g.SetMax(race.Worker, maxWorkersCapped)
	}

	p.UseRepetitions = true
	p.UseIncreasingRepetitions = true
	p.AlwaysMakeWorkers = true
	p.SupplyBounding = true
	p.SupplyBoundingThreshold = smartSupplyThreshold
	return p
}

// refineriesRequired is the refinery goal, or one per depot when any goal
// type costs gas.
func refineriesRequired(s *economy.State, g *plan.Goal, race *data.Race) int {
	if n := g.Goal(race.Refinery); n > 0 {
		return n
	}
	cat := s.Catalog()
	for _, t := range g.Types() {
		if cat.Type(t).GasCost > 0 {
			return s.NumTotal(race.Depot)
		}
	}
	return 0
}

// supplyProvidersRequired bounds the supply providers needed for the worker
// maximum plus every goal unit, minus what the depots provide.
func supplyProvidersRequired(s *economy.State, g *plan.Goal, race *data.Race) int {
	cat := s.Catalog()
	needed := g.Max(race.Worker) * cat.Type(race.Worker).SupplyCost
	for i := 1; i < cat.Len(); i++ {
		t := data.ActionID(i)
		needed += max(g.Goal(t), s.NumTotal(t)) * cat.Type(t).SupplyCost
	}
	needed -= s.NumTotal(race.Depot) * cat.Type(race.Depot).SupplyProvided
	if needed <= 0 {
		return 0
	}
	provided := cat.Type(race.SupplyProvider).SupplyProvided
	return (needed + provided - 1) / provided
}

func setPrerequisiteMax(s *economy.State, g *plan.Goal) {
	cat := s.Catalog()
	goals := g.Types()

	for _, t := range goals {
		if economyType(cat.Type(t)) {
			continue
		}
		deps := cat.RecursivePrerequisites(t)
		for i := 0; i < deps.Len(); i++ {
			d := deps.At(i)
			if economyType(cat.Type(d)) {
				continue
			}
			g.SetMax(d, max(1, g.Max(d)))
		}
	}

	builtBy := make([]int, cat.Len())
	for _, t := range goals {
		builtBy[cat.Type(t).Producer] += g.Goal(t)
		g.SetMax(t, max(g.Goal(t), g.Max(t)))
	}

	for i := 1; i < cat.Len(); i++ {
		tt := cat.Type(data.ActionID(i))
		if tt.IsDepot || !tt.IsBuilding || builtBy[tt.ID] == 0 {
			continue
		}
		g.SetMax(tt.ID, min(s.NumTotal(tt.ID)+extraProductionLimit, builtBy[tt.ID]))
	}

	for i := 1; i < cat.Len(); i++ {
		tt := cat.Type(data.ActionID(i))
		if !tt.IsAddon || g.Max(tt.ID) == 0 {
			continue
		}
		if host := g.Max(tt.Producer); host > 0 {
			g.SetMax(tt.ID, host)
		}
	}
}

// economyType reports whether t is bounded by the economy maxima rather than
// by the dependency rule. Tokens are never built directly.
func economyType(t *data.EntityType) bool {
	return t.IsDepot || t.IsWorker || t.IsSupplyProvider || t.IsRefinery || t.IsToken
}
