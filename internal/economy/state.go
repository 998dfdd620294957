// Package economy simulates a production economy: resource income, worker
// allocation, supply and construction over time.
package economy

import (
	"fmt"
	"slices"

	"github.com/bosgo/planner/internal/data"
)

// Never is returned by readiness queries when the action can not become
// ready without some other action being taken first.
const Never = -1

// State is the simulated economy of one player. Resources are kept scaled by
// the catalog's resource scale so integer income never drifts.
//
// A State is not safe for concurrent use. The search clones it at every node
// and each branch owns its copy.
type State struct {
	cat  *data.Catalog
	eco  data.Economy
	race data.RaceID

	units    []Unit
	building []int // in-progress unit ids, descending remaining build time

	minerals int
	gas      int

	currentSupply int
	maxSupply     int
	frame         int

	mineralWorkers  int
	gasWorkers      int
	buildingWorkers int
	numRefineries   int
	numDepots       int

	lastAction data.ActionID
}

// NewState returns an empty economy with no race.
func NewState(cat *data.Catalog) *State {
	return &State{cat: cat, eco: cat.Economy(), race: data.NoRace}
}

// NewStateWithUnits places the given units and sets the stockpiles, given in
// whole resource units.
func NewStateWithUnits(cat *data.Catalog, units []data.ActionID, minerals, gas int) *State {
	s := NewState(cat)
	for _, t := range units {
		s.AddUnit(t)
	}
	s.SetMinerals(minerals)
	s.SetGas(gas)
	return s
}

// Clone returns an independent copy.
func (s *State) Clone() *State {
	c := *s
	c.units = slices.Clone(s.units)
	c.building = slices.Clone(s.building)
	return &c
}

// Equal reports whether both states hold identical counters and unit records.
func (s *State) Equal(o *State) bool {
	return s.race == o.race &&
		s.minerals == o.minerals &&
		s.gas == o.gas &&
		s.currentSupply == o.currentSupply &&
		s.maxSupply == o.maxSupply &&
		s.frame == o.frame &&
		s.mineralWorkers == o.mineralWorkers &&
		s.gasWorkers == o.gasWorkers &&
		s.buildingWorkers == o.buildingWorkers &&
		s.numRefineries == o.numRefineries &&
		s.numDepots == o.numDepots &&
		slices.Equal(s.units, o.units) &&
		slices.Equal(s.building, o.building)
}

func (s *State) Catalog() *data.Catalog { return s.cat }
func (s *State) Race() data.RaceID      { return s.race }
func (s *State) Frame() int             { return s.frame }
func (s *State) CurrentSupply() int     { return s.currentSupply }
func (s *State) MaxSupply() int         { return s.maxSupply }
func (s *State) NumMineralWorkers() int { return s.mineralWorkers }
func (s *State) NumGasWorkers() int     { return s.gasWorkers }
func (s *State) NumBuildingWorkers() int {
	return s.buildingWorkers
}
func (s *State) NumRefineries() int { return s.numRefineries }
func (s *State) NumDepots() int     { return s.numDepots }
func (s *State) NumUnits() int      { return len(s.units) }

// LastAction is the most recent action applied, or data.None.
func (s *State) LastAction() data.ActionID { return s.lastAction }

// Minerals returns the mineral stockpile in whole units.
func (s *State) Minerals() int { return s.minerals / s.eco.ResourceScale }

// Gas returns the gas stockpile in whole units.
func (s *State) Gas() int { return s.gas / s.eco.ResourceScale }

// ScaledMinerals returns the raw scaled mineral stockpile.
func (s *State) ScaledMinerals() int { return s.minerals }

func (s *State) ScaledGas() int { return s.gas }

func (s *State) SetMinerals(n int) { s.minerals = n * s.eco.ResourceScale }

func (s *State) SetGas(n int) { s.gas = n * s.eco.ResourceScale }

// Unit returns a copy of unit id.
func (s *State) Unit(id int) Unit {
	if id < 0 || id >= len(s.units) {
		invariant("unit %d out of range (%d units)", id, len(s.units))
	}
	return s.units[id]
}

// Units returns a copy of every unit record.
func (s *State) Units() []Unit { return slices.Clone(s.units) }

// InProgress returns the ids of units under construction, soonest last.
func (s *State) InProgress() []int { return slices.Clone(s.building) }

// NumTotal counts units of type t, finished or not.
func (s *State) NumTotal(t data.ActionID) int {
	n := 0
	for i := range s.units {
		if s.units[i].Type == t {
			n++
		}
	}
	return n
}

// NumInProgress counts units of type t under construction.
func (s *State) NumInProgress(t data.ActionID) int {
	n := 0
	for _, id := range s.building {
		if s.units[id].Type == t {
			n++
		}
	}
	return n
}

func (s *State) NumCompleted(t data.ActionID) int {
	return s.NumTotal(t) - s.NumInProgress(t)
}

func (s *State) HaveType(t data.ActionID) bool {
	for i := range s.units {
		if s.units[i].Type == t {
			return true
		}
	}
	return false
}

// NumSatisfying counts units that meet a requirement for t, split into
// completed and in-progress.
func (s *State) NumSatisfying(t data.ActionID) (completed, inProgress int) {
	for i := range s.units {
		if s.cat.Satisfies(s.units[i].Type, t) {
			if s.units[i].IsBuilt() {
				completed++
			} else {
				inProgress++
			}
		}
	}
	return completed, inProgress
}

// SupplyInProgress is the supply that units under construction will provide.
func (s *State) SupplyInProgress() int {
	n := 0
	for _, id := range s.building {
		n += s.cat.Type(s.units[id].Type).SupplyProvided
	}
	return n
}

// LastActionFinishTime is the frame at which everything under construction
// is done.
func (s *State) LastActionFinishTime() int {
	if len(s.building) == 0 {
		return s.frame
	}
	return s.frame + s.units[s.building[0]].TimeUntilBuilt
}

// NextFinishTime is the frame the next unit of type t under construction
// completes, or the current frame when none is.
func (s *State) NextFinishTime(t data.ActionID) int {
	for i := len(s.building) - 1; i >= 0; i-- {
		u := &s.units[s.building[i]]
		if s.cat.Satisfies(u.Type, t) {
			return s.frame + u.TimeUntilBuilt
		}
	}
	return s.frame
}

// AddUnit places a finished unit of type t with no producer.
func (s *State) AddUnit(t data.ActionID) {
	s.addUnit(t, NoUnit)
}

func (s *State) addUnit(t data.ActionID, builderID int) {
	tt := s.cat.Type(t)
	if t == data.None {
		invariant("can not add the None type")
	}
	if s.race == data.NoRace {
		s.race = tt.Race
	} else if tt.Race != s.race {
		invariant("%s does not belong to race %s", tt.Name, s.cat.Race(s.race).Name)
	}

	if tt.IsToken {
		if builderID == NoUnit {
			invariant("token %s needs a producer", tt.Name)
		}
		id := len(s.units)
		s.units = append(s.units, newUnit(s.cat, t, id, builderID))
		s.units[builderID].addToken(s.eco)
		return
	}

	if builderID == NoUnit {
		id := len(s.units)
		s.units = append(s.units, newUnit(s.cat, t, id, NoUnit))
		s.currentSupply += tt.SupplyCost
		if tt.IsRefinery && !s.reserveWorkers(id, 0) {
			invariant("placing %s needs %d idle workers", tt.Name, s.eco.WorkersPerRefinery)
		}
		s.completeUnit(id)
		if token := s.cat.Race(tt.Race).Token; tt.SpawnsTokens && token != data.None {
			for i := 0; i < s.eco.MaxTokens; i++ {
				s.addUnit(token, id)
			}
		}
		return
	}

	id := builderID
	if tt.Morphed {
		b := &s.units[builderID]
		bt := s.cat.Type(b.Type)
		if bt.IsToken {
			s.units[b.BuilderID].useToken(s.eco)
		}
		s.maxSupply -= bt.SupplyProvided
		b.startMorphing(s.cat, t)
	} else {
		id = len(s.units)
		s.units = append(s.units, newUnit(s.cat, t, id, builderID))
		s.units[builderID].startBuilding(s.cat, &s.units[id])
	}
	s.insertInProgress(id)

	if tt.IsRefinery && !s.reserveWorkers(id, tt.BuildTime) {
		invariant("%s started without %d reservable workers", tt.Name, s.eco.WorkersPerRefinery)
	}
}

// insertInProgress appends id and bubbles it into descending order of
// remaining build time. Ties keep the newer unit behind, so it pops first.
func (s *State) insertInProgress(id int) {
	s.building = append(s.building, id)
	for i := len(s.building) - 1; i > 0; i-- {
		cur, prev := s.building[i], s.building[i-1]
		if s.units[cur].TimeUntilBuilt <= s.units[prev].TimeUntilBuilt {
			break
		}
		s.building[i], s.building[i-1] = prev, cur
	}
}

func (s *State) completeUnit(id int) {
	u := &s.units[id]
	tt := s.cat.Type(u.Type)
	s.maxSupply += tt.SupplyProvided
	switch {
	case tt.IsWorker:
		s.mineralWorkers++
		u.Job = JobMinerals
	case tt.IsRefinery:
		q := s.eco.WorkersPerRefinery
		n := 0
		for i := range s.units {
			w := &s.units[i]
			if w.ReservedFor == id {
				w.ReservedFor = NoUnit
				w.Job = JobGas
				n++
			}
		}
		if n != q {
			invariant("%s %d completed with %d of %d reserved workers", tt.Name, id, n, q)
		}
		s.numRefineries++
		s.gasWorkers += q
		s.mineralWorkers -= q
	case tt.IsDepot:
		s.numDepots++
	}
}

// findReservableWorkers returns the first workers that are not on gas, not
// promised to another refinery and free strictly before a refinery started
// now would finish. spare more candidates than the quota must exist for the
// search to succeed; only the quota is returned.
func (s *State) findReservableWorkers(buildTime, spare int) []int {
	q := s.eco.WorkersPerRefinery
	want := q + spare
	ids := make([]int, 0, want)
	for i := range s.units {
		u := &s.units[i]
		if !s.cat.Type(u.Type).IsWorker || u.Job == JobGas || u.ReservedFor != NoUnit {
			continue
		}
		if u.TimeUntilFree != 0 && u.TimeUntilFree >= buildTime {
			continue
		}
		ids = append(ids, i)
		if len(ids) == want {
			return ids[:q]
		}
	}
	return nil
}

func (s *State) reserveWorkers(refinery, buildTime int) bool {
	ids := s.findReservableWorkers(buildTime, 0)
	if ids == nil {
		return false
	}
	for _, id := range ids {
		s.units[id].ReservedFor = refinery
	}
	return true
}

// producerIsWorker reports whether t is produced by a worker.
func (s *State) producerIsWorker(t data.ActionID) bool {
	p := s.cat.Type(t).Producer
	return p != data.None && s.cat.Type(p).IsWorker
}

// occupiesWorker reports whether building t takes a mineral worker off the
// line until t completes.
func (s *State) occupiesWorker(t data.ActionID) bool {
	tt := s.cat.Type(t)
	return !tt.Morphed && s.producerIsWorker(t) && s.cat.Race(tt.Race).Labor != data.LaborFree
}

// consumesWorker reports whether building t turns a worker into t.
func (s *State) consumesWorker(t data.ActionID) bool {
	return s.cat.Type(t).Morphed && s.producerIsWorker(t)
}

// netSupply is the supply change of starting t. A morph replaces its
// producer's supply instead of adding to it.
func (s *State) netSupply(t data.ActionID) int {
	tt := s.cat.Type(t)
	n := tt.SupplyCost
	if tt.Morphed {
		n -= s.cat.Type(tt.Producer).SupplyCost
	}
	return n
}

func (s *State) depotsInProgress() int {
	n := 0
	for _, id := range s.building {
		if s.cat.Type(s.units[id].Type).IsDepot {
			n++
		}
	}
	return n
}

// Summary is a one-line description for logs.
func (s *State) Summary() string {
	return fmt.Sprintf("frame=%d minerals=%d gas=%d supply=%d/%d workers=%d/%d/%d units=%d building=%d",
		s.frame, s.Minerals(), s.Gas(), s.currentSupply, s.maxSupply,
		s.mineralWorkers, s.gasWorkers, s.buildingWorkers, len(s.units), len(s.building))
}

func invariant(format string, args ...any) {
	panic("economy: " + fmt.Sprintf(format, args...))
}
