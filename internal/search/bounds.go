package search

import (
	"errors"
	"fmt"

	"github.com/bosgo/planner/internal/data"
	"github.com/bosgo/planner/internal/economy"
	"github.com/bosgo/planner/internal/plan"
)

// ErrNoNaivePlan is returned when the greedy constructor can not build a
// legal plan for the goal.
var ErrNoNaivePlan = errors.New("no naive plan")

// NaivePlan builds a feasible, usually slow, build order for g: missing
// prerequisites, then the goal units, then enough workers and hosts, sorted
// so prerequisites come first, with supply providers inserted whenever the
// next action would not fit.
func NaivePlan(s *economy.State, g *plan.Goal) (plan.BuildOrder, error) {
	var out plan.BuildOrder
	if s.Race() == data.NoRace {
		return out, fmt.Errorf("%w: state has no race", ErrNoNaivePlan)
	}
	cat := s.Catalog()
	race := cat.Race(s.Race())
	if s.NumMineralWorkers() == 0 || s.NumTotal(race.Depot) == 0 {
		return out, fmt.Errorf("%w: no mineral income", ErrNoNaivePlan)
	}

	var wanted data.TypeSet
	for _, t := range g.Types() {
		if g.Goal(t) > plan.Owned(s, t) {
			wanted.Add(t)
		}
	}
	if wanted.IsEmpty() {
		return out, nil
	}
	if !s.IsLegal(race.Worker) && !s.IsLegal(race.SupplyProvider) {
		return out, fmt.Errorf("%w: neither workers nor supply can be built", ErrNoNaivePlan)
	}

	var required data.TypeSet
	requiredToBuild(s, wanted, &required)

	var bo plan.BuildOrder
	for i := 1; i < cat.Len(); i++ {
		if required.Contains(data.ActionID(i)) {
			bo.Add(data.ActionID(i))
		}
	}
	for _, t := range g.Types() {
		bo.AddN(t, g.Goal(t)-plan.Owned(s, t)-bo.Count(t))
	}

	// Morphs consume their producers. Twice so chains like
	// Hatchery -> Lair -> Hive are covered.
	for pass := 0; pass < 2; pass++ {
		need := make(map[data.ActionID]int)
		for i := 1; i < cat.Len(); i++ {
			tt := cat.Type(data.ActionID(i))
			if !tt.Morphed || bo.Count(tt.ID) == 0 || cat.Type(tt.Producer).IsToken {
				continue
			}
			n := bo.Count(tt.ID)*tt.ProducerCount - s.NumTotal(tt.Producer) - bo.Count(tt.Producer)
			if n > 0 {
				need[tt.Producer] += n
			}
		}
		for i := 1; i < cat.Len(); i++ {
			bo.AddN(data.ActionID(i), need[data.ActionID(i)])
		}
	}

	// Enough workers to staff every refinery, plus one for each building a
	// worker turns into.
	q := cat.Economy().WorkersPerRefinery
	gas := q * (s.NumTotal(race.Refinery) + bo.Count(race.Refinery))
	if gas > 0 {
		gas += 2
	}
	workers := max(g.Goal(race.Worker), gas)
	for i := 1; i < cat.Len(); i++ {
		tt := cat.Type(data.ActionID(i))
		if tt.Morphed && cat.Type(tt.Producer).IsWorker {
			workers += bo.Count(tt.ID)
		}
	}
	bo.AddN(race.Worker, workers-s.NumTotal(race.Worker)-bo.Count(race.Worker))

	// One host per addon.
	hosts := make(map[data.ActionID]int)
	for i := 0; i < bo.Len(); i++ {
		if tt := cat.Type(bo.At(i)); tt.IsAddon {
			hosts[tt.Producer]++
		}
	}
	for i := 1; i < cat.Len(); i++ {
		h := data.ActionID(i)
		bo.AddN(h, hosts[h]-s.NumTotal(h)-bo.Count(h))
	}

	bo.SortByPrerequisites(cat)

	c := s.Clone()
	for i := 0; i < bo.Len(); i++ {
		next := bo.At(i)
		if !cat.Type(next).IsSupplyProvider {
			for netSupply(cat, next) > c.MaxSupply()+c.SupplyInProgress()-c.CurrentSupply() {
				if !c.IsLegal(race.SupplyProvider) {
					return out, fmt.Errorf("%w: no supply for %s", ErrNoNaivePlan, cat.Name(next))
				}
				out.Add(race.SupplyProvider)
				c.DoAction(race.SupplyProvider)
			}
		}
		if !c.IsLegal(next) {
			return out, fmt.Errorf("%w: %s is illegal at frame %d", ErrNoNaivePlan, cat.Name(next), c.Frame())
		}
		out.Add(next)
		c.DoAction(next)
	}
	return out, nil
}

// requiredToBuild adds to added every type that must still be built for the
// needed types to become buildable, including the refinery when anything
// costs gas.
func requiredToBuild(s *economy.State, needed data.TypeSet, added *data.TypeSet) {
	cat := s.Catalog()
	refinery := cat.Race(s.Race()).Refinery
	all := needed.Clone()
	if !needed.Contains(refinery) && !added.Contains(refinery) {
		if done, _ := s.NumSatisfying(refinery); done == 0 {
			for i := 0; i < needed.Len(); i++ {
				if cat.Type(needed.At(i)).GasCost > 0 {
					all.Add(refinery)
					break
				}
			}
		}
	}

	for i := 0; i < all.Len(); i++ {
		t := all.At(i)
		if added.Contains(t) || cat.Type(t).IsToken {
			continue
		}
		if done, inProgress := s.NumSatisfying(t); done > 0 || inProgress > 0 {
			continue
		}
		added.Add(t)
		requiredToBuild(s, cat.Prerequisites(t), added)
	}
}

// CompletionTime applies b to a copy of s and returns the frame everything
// is finished.
func CompletionTime(s *economy.State, b plan.BuildOrder) (int, error) {
	c := s.Clone()
	if err := b.ApplyTo(c); err != nil {
		return 0, err
	}
	return c.LastActionFinishTime(), nil
}

// UpperBound returns the naive plan and the frame it finishes.
func UpperBound(s *economy.State, g *plan.Goal) (int, plan.BuildOrder, error) {
	bo, err := NaivePlan(s, g)
	if err != nil {
		return 0, bo, err
	}
	finish, err := CompletionTime(s, bo)
	if err != nil {
		return 0, bo, fmt.Errorf("%w: %v", ErrNoNaivePlan, err)
	}
	return finish, bo, nil
}

// LowerBound returns the length of the longest chain of prerequisites that
// still has to be built, in frames from the current frame.
func LowerBound(s *economy.State, g *plan.Goal) int {
	var wanted data.TypeSet
	for _, t := range g.Types() {
		if g.Goal(t) > plan.Owned(s, t) {
			wanted.Add(t)
		}
	}
	visiting := make([]bool, s.Catalog().Len())
	return prerequisiteChain(s, wanted, 0, visiting)
}

func prerequisiteChain(s *economy.State, needed data.TypeSet, soFar int, visiting []bool) int {
	cat := s.Catalog()
	longest := 0
	for i := 0; i < needed.Len(); i++ {
		t := needed.At(i)
		var v int
		switch ready := s.RequirementReady(t); {
		case ready != economy.Never:
			v = soFar + ready - s.Frame()
		case cat.Type(t).IsToken || visiting[t]:
			v = soFar
		default:
			visiting[t] = true
			v = prerequisiteChain(s, cat.Prerequisites(t), soFar+cat.Type(t).BuildTime, visiting)
			visiting[t] = false
		}
		longest = max(longest, v)
	}
	return longest
}
