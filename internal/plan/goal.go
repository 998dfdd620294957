package plan

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bosgo/planner/internal/data"
	"github.com/bosgo/planner/internal/economy"
)

// Goal is a required count per type plus an optional maximum. Counts are
// totals: units under construction count toward the goal.
type Goal struct {
	cat            *data.Catalog
	goal           []int
	max            []int
	supplyRequired int
}

// NewGoal returns an empty goal over cat.
func NewGoal(cat *data.Catalog) *Goal {
	return &Goal{
		cat:  cat,
		goal: make([]int, cat.Len()),
		max:  make([]int, cat.Len()),
	}
}

// GoalFromCounts builds a goal from id keyed counts, as returned by
// data.GoalSpec.Resolve.
func GoalFromCounts(cat *data.Catalog, goal, limit map[data.ActionID]int) *Goal {
	g := NewGoal(cat)
	for id, n := range goal {
		g.SetGoal(id, n)
	}
	for id, n := range limit {
		g.SetMax(id, n)
	}
	return g
}

func (g *Goal) Catalog() *data.Catalog { return g.cat }

func (g *Goal) check(t data.ActionID, n int) {
	g.cat.Type(t)
	if n < 0 {
		panic(fmt.Sprintf("plan: negative count %d for %s", n, g.cat.Name(t)))
	}
}

// SetGoal sets the required count of t.
func (g *Goal) SetGoal(t data.ActionID, n int) {
	g.check(t, n)
	g.goal[t] = n
	g.recount()
}

// SetMax sets the maximum count of t. Zero clears it.
func (g *Goal) SetMax(t data.ActionID, n int) {
	g.check(t, n)
	g.max[t] = n
}

func (g *Goal) Goal(t data.ActionID) int { return g.goal[t] }

func (g *Goal) Max(t data.ActionID) int { return g.max[t] }

// Limit is the most instances of t a search may own: the goal when one is
// set, otherwise the maximum. Zero means t is not wanted at all.
func (g *Goal) Limit(t data.ActionID) int {
	if g.goal[t] > 0 {
		return g.goal[t]
	}
	return g.max[t]
}

// SupplyRequired is the total supply cost of every required unit.
func (g *Goal) SupplyRequired() int { return g.supplyRequired }

func (g *Goal) recount() {
	g.supplyRequired = 0
	for id, n := range g.goal {
		g.supplyRequired += n * g.cat.Type(data.ActionID(id)).SupplyCost
	}
}

// Types returns every type with a non-zero goal, in id order.
func (g *Goal) Types() []data.ActionID {
	var out []data.ActionID
	for id, n := range g.goal {
		if n > 0 {
			out = append(out, data.ActionID(id))
		}
	}
	return out
}

// IsEmpty reports whether no type has a goal.
func (g *Goal) IsEmpty() bool {
	return !slices.ContainsFunc(g.goal, func(n int) bool { return n > 0 })
}

// Race is the race of the first goal type, or data.NoRace.
func (g *Goal) Race() data.RaceID {
	for id, n := range g.goal {
		if n > 0 {
			return g.cat.Type(data.ActionID(id)).Race
		}
	}
	return data.NoRace
}

// Owned counts the units in s that meet a requirement for t, finished or
// not.
func Owned(s *economy.State, t data.ActionID) int {
	done, inProgress := s.NumSatisfying(t)
	return done + inProgress
}

// IsAchievedBy reports whether s owns at least the goal count of every type.
func (g *Goal) IsAchievedBy(s *economy.State) bool {
	for id, n := range g.goal {
		if n > 0 && Owned(s, data.ActionID(id)) < n {
			return false
		}
	}
	return true
}

// Missing returns the number of units of t still needed in s.
func (g *Goal) Missing(s *economy.State, t data.ActionID) int {
	return max(0, g.goal[t]-Owned(s, t))
}

// Clone returns an independent copy.
func (g *Goal) Clone() *Goal {
	return &Goal{
		cat:            g.cat,
		goal:           slices.Clone(g.goal),
		max:            slices.Clone(g.max),
		supplyRequired: g.supplyRequired,
	}
}

// String renders the goal as "2 Zealot, Pylon (max 3)".
func (g *Goal) String() string {
	var parts []string
	for id := range g.goal {
		n, m := g.goal[id], g.max[id]
		if n == 0 && m == 0 {
			continue
		}
		var b strings.Builder
		if n > 1 {
			fmt.Fprintf(&b, "%d ", n)
		}
		b.WriteString(g.cat.Name(data.ActionID(id)))
		if m > 0 {
			fmt.Fprintf(&b, " (max %d)", m)
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, ", ")
}
