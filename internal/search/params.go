package search

import (
	"time"

	"github.com/bosgo/planner/internal/core/event"
	"github.com/bosgo/planner/internal/data"
	"github.com/bosgo/planner/internal/economy"
	"github.com/bosgo/planner/internal/plan"
)

// DefaultNodeCheckInterval is how many expanded nodes pass between deadline
// and context checks.
const DefaultNodeCheckInterval = 200

// Params configures a goal search.
type Params struct {
	Initial *economy.State
	Goal    *plan.Goal

	// Relevant limits the actions the search branches on. Empty means
	// every type with a goal or a maximum.
	Relevant data.TypeSet

	// Opening is applied to Initial before searching. The result build
	// order starts with it.
	Opening plan.BuildOrder

	TimeLimit         time.Duration // zero means no limit
	NodeCheckInterval int

	AlwaysMakeWorkers       bool
	SupplyBounding          bool
	SupplyBoundingThreshold float64 // in supply providers worth of slack

	UseRepetitions           bool
	UseIncreasingRepetitions bool
	repetitions              []int
	repetitionThresholds     []int

	// InitialUpperBound replaces the naive plan's finish frame when set.
	InitialUpperBound int

	// Bus receives progress events when set.
	Bus      *event.Bus
	Strategy string
}

// NewParams returns plain settings: no abstractions, no time limit.
func NewParams(initial *economy.State, goal *plan.Goal) Params {
	n := initial.Catalog().Len()
	p := Params{
		Initial:                 initial,
		Goal:                    goal,
		NodeCheckInterval:       DefaultNodeCheckInterval,
		SupplyBoundingThreshold: 1,
		UseRepetitions:          true,
		repetitions:             make([]int, n),
		repetitionThresholds:    make([]int, n),
		Strategy:                "dfbb",
	}
	for i := range p.repetitions {
		p.repetitions[i] = 1
	}
	return p
}

// SetRepetitions makes the search apply t up to n times per tree edge.
func (p *Params) SetRepetitions(t data.ActionID, n int) {
	p.ensure()
	p.repetitions[t] = max(1, n)
}

// SetRepetitionThreshold keeps single steps for t until n are owned.
func (p *Params) SetRepetitionThreshold(t data.ActionID, n int) {
	p.ensure()
	p.repetitionThresholds[t] = n
}

func (p *Params) Repetitions(t data.ActionID) int {
	p.ensure()
	return p.repetitions[t]
}

func (p *Params) RepetitionThreshold(t data.ActionID) int {
	p.ensure()
	return p.repetitionThresholds[t]
}

func (p *Params) ensure() {
	n := p.Initial.Catalog().Len()
	if len(p.repetitions) == n {
		return
	}
	p.repetitions = make([]int, n)
	p.repetitionThresholds = make([]int, n)
	for i := range p.repetitions {
		p.repetitions[i] = 1
	}
}

// relevantActions resolves the branching whitelist.
func (p *Params) relevantActions() []data.ActionID {
	if !p.Relevant.IsEmpty() {
		return p.Relevant.Slice()
	}
	var out []data.ActionID
	cat := p.Initial.Catalog()
	for i := 1; i < cat.Len(); i++ {
		if p.Goal.Limit(data.ActionID(i)) > 0 {
			out = append(out, data.ActionID(i))
		}
	}
	return out
}

func (p *Params) nodeCheckInterval() uint64 {
	if p.NodeCheckInterval <= 0 {
		return DefaultNodeCheckInterval
	}
	return uint64(p.NodeCheckInterval)
}

// clone copies the per-type tables so a search owns its settings.
func (p Params) clone() Params {
	if p.Initial == nil || p.Goal == nil {
		return p
	}
	p.ensure()
	p.repetitions = append([]int(nil), p.repetitions...)
	p.repetitionThresholds = append([]int(nil), p.repetitionThresholds...)
	p.Goal = p.Goal.Clone()
	p.Relevant = p.Relevant.Clone()
	p.Opening = p.Opening.Clone()
	return p
}
