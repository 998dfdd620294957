package search

import (
	"github.com/bosgo/planner/internal/data"
	"github.com/bosgo/planner/internal/economy"
)

// candidates returns the relevant actions that are legal in s and below
// their limit. A negative limit means unlimited; zero forbids the action.
func candidates(s *economy.State, relevant []data.ActionID, limit func(data.ActionID) int) data.TypeSet {
	var out data.TypeSet
	for _, t := range relevant {
		if !s.IsLegal(t) {
			continue
		}
		if l := limit(t); l >= 0 && s.NumTotal(t) >= l {
			continue
		}
		out.Add(t)
	}
	return out
}

// boundSupply drops the supply provider while the supply slack is at least
// threshold providers worth.
func boundSupply(s *economy.State, legal *data.TypeSet, threshold float64) {
	race := s.Catalog().Race(s.Race())
	provider := s.Catalog().Type(race.SupplyProvider)
	surplus := s.MaxSupply() + s.SupplyInProgress() - s.CurrentSupply()
	if float64(surplus) >= float64(provider.SupplyProvided)*threshold {
		legal.Remove(race.SupplyProvider)
	}
}

// preferWorkers applies the "always make workers" rule. If anything can
// start before the next worker the worker is dropped. Otherwise only the
// worker and actions ready at the same frame for the same mineral cost stay.
func preferWorkers(s *economy.State, legal *data.TypeSet) {
	worker := s.Catalog().Race(s.Race()).Worker
	if !legal.Contains(worker) {
		return
	}
	workerReady := s.WhenCanBuild(worker)
	workerCost := s.Catalog().Type(worker).MineralCost
	var same data.TypeSet
	for i := 0; i < legal.Len(); i++ {
		t := legal.At(i)
		ready := s.WhenCanBuild(t)
		if ready < workerReady {
			legal.Remove(worker)
			return
		}
		if ready == workerReady && s.Catalog().Type(t).MineralCost == workerCost {
			same.Add(t)
		}
	}
	*legal = same
}

// preferWorkersSoon is the value search variant: a worker ready within two
// frames is the only choice; otherwise the worker is dropped if anything
// else can start first, and is the only choice if not.
func preferWorkersSoon(s *economy.State, legal *data.TypeSet) {
	worker := s.Catalog().Race(s.Race()).Worker
	if !legal.Contains(worker) {
		return
	}
	workerReady := s.WhenCanBuild(worker)
	if workerReady <= s.Frame()+2 {
		*legal = data.NewTypeSet(worker)
		return
	}
	for i := 0; i < legal.Len(); i++ {
		if s.WhenCanBuild(legal.At(i)) < workerReady {
			legal.Remove(worker)
			return
		}
	}
	*legal = data.NewTypeSet(worker)
}

// netSupply is the supply change of starting t in the current state.
func netSupply(cat *data.Catalog, t data.ActionID) int {
	tt := cat.Type(t)
	n := tt.SupplyCost
	if tt.Morphed {
		n -= cat.Type(tt.Producer).SupplyCost
	}
	return n
}
