// Package eval scores economy states and compares build orders.
package eval

import (
	"github.com/bosgo/planner/internal/data"
	"github.com/bosgo/planner/internal/economy"
	"github.com/bosgo/planner/internal/plan"
)

// Evaluator maps a state to a scalar value. Higher is better.
type Evaluator interface {
	Evaluate(s *economy.State) float64
}

// Func adapts a plain function to Evaluator.
type Func func(s *economy.State) float64

func (f Func) Evaluate(s *economy.State) float64 { return f(s) }

// isArmy reports whether t counts toward army value.
func isArmy(t *data.EntityType) bool {
	return !t.IsBuilding && !t.IsWorker && !t.IsSupplyProvider && !t.IsToken
}

func armyValue(s *economy.State, count func(data.ActionID) int) float64 {
	cat := s.Catalog()
	if s.Race() == data.NoRace {
		return 0
	}
	sum := 0.0
	for _, id := range cat.TypesOf(s.Race()) {
		t := cat.Type(id)
		if !isArmy(t) {
			continue
		}
		n := float64(count(id))
		sum += n * float64(t.MineralCost)
		sum += 2 * n * float64(t.GasCost)
	}
	return sum
}

// ArmyTotalResourceSum values every army unit owned, finished or not, at its
// mineral cost plus twice its gas cost.
var ArmyTotalResourceSum = Func(func(s *economy.State) float64 {
	return armyValue(s, s.NumTotal)
})

// ArmyCompletedResourceSum is ArmyTotalResourceSum over finished units only.
var ArmyCompletedResourceSum = Func(func(s *economy.State) float64 {
	return armyValue(s, s.NumCompleted)
})

// BuildOrderBetter reports whether b beats other: more workers first, then
// fewer actions.
func BuildOrderBetter(cat *data.Catalog, b, other plan.BuildOrder) bool {
	w, wo := numWorkers(cat, b), numWorkers(cat, other)
	if w == wo {
		return b.Len() < other.Len()
	}
	return w > wo
}

func numWorkers(cat *data.Catalog, b plan.BuildOrder) int {
	n := 0
	for i := 0; i < b.Len(); i++ {
		if cat.Type(b.At(i)).IsWorker {
			n++
		}
	}
	return n
}

// StateDominates reports whether s has at least the resources and at least
// as many total and finished units of every type as other. States of
// different races never dominate each other.
func StateDominates(s, other *economy.State) bool {
	if s.Race() != other.Race() {
		return false
	}
	if s.ScaledMinerals() < other.ScaledMinerals() || s.ScaledGas() < other.ScaledGas() {
		return false
	}
	cat := s.Catalog()
	for i := 1; i < cat.Len(); i++ {
		id := data.ActionID(i)
		if s.NumTotal(id) < other.NumTotal(id) || s.NumCompleted(id) < other.NumCompleted(id) {
			return false
		}
	}
	return true
}
