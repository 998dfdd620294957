package economy

import (
	"sort"

	"github.com/bosgo/planner/internal/data"
)

// Readiness splits the frame an action becomes executable into its four
// components. Each is an absolute frame or Never.
type Readiness struct {
	Resources     int
	Builder       int
	Supply        int
	Prerequisites int
}

// Time is the latest component, or Never if any component is Never.
func (r Readiness) Time() int {
	t := r.Resources
	for _, v := range []int{r.Builder, r.Supply, r.Prerequisites} {
		if v == Never || t == Never {
			return Never
		}
		t = max(t, v)
	}
	return t
}

// Readiness computes every readiness component of t.
func (s *State) Readiness(t data.ActionID) Readiness {
	return Readiness{
		Resources:     s.whenResourcesReady(t),
		Builder:       s.whenBuilderReady(t),
		Supply:        s.whenSupplyReady(t),
		Prerequisites: s.whenPrerequisitesReady(t),
	}
}

// WhenCanBuild returns the earliest frame t can be started assuming no other
// action is taken, or Never.
func (s *State) WhenCanBuild(t data.ActionID) int {
	return s.Readiness(t).Time()
}

// CanBuildNow reports whether t is legal and ready at the current frame.
func (s *State) CanBuildNow(t data.ActionID) bool {
	return s.IsLegal(t) && s.WhenCanBuild(t) == s.frame
}

// IsLegal reports whether t can eventually be built from this state without
// taking any other action first.
func (s *State) IsLegal(t data.ActionID) bool {
	tt := s.cat.Type(t)
	if t == data.None || s.race == data.NoRace || tt.Race != s.race {
		return false
	}
	if tt.IsToken {
		return false
	}
	if tt.BuildLimit >= 0 && s.NumTotal(t) >= tt.BuildLimit {
		return false
	}
	if s.whenResourcesReady(t) == Never {
		return false
	}
	if s.currentSupply+s.netSupply(t) > s.maxSupply+s.SupplyInProgress() {
		return false
	}

	race := s.cat.Race(tt.Race)
	if tt.IsBuilding && !tt.Morphed && !tt.IsAddon && s.producerIsWorker(t) &&
		s.mineralWorkers+s.buildingWorkers+s.NumInProgress(race.Worker) == 0 {
		return false
	}
	if tt.IsRefinery {
		if s.numRefineries+s.NumInProgress(t) >= s.numDepots+s.depotsInProgress() {
			return false
		}
		// One worker has to stay on minerals besides the refinery's builder.
		spare := 1
		if tt.Morphed || race.Labor != data.LaborFree {
			spare++
		}
		if s.findReservableWorkers(tt.BuildTime, spare) == nil {
			return false
		}
	}
	if tt.IsSupplyProvider && s.maxSupply+s.SupplyInProgress() >= s.eco.SupplyCap {
		return false
	}
	return s.haveBuilder(t) && s.havePrerequisites(t)
}

// LegalActions returns every legal type of the state's race.
func (s *State) LegalActions() data.TypeSet {
	var out data.TypeSet
	if s.race == data.NoRace {
		return out
	}
	for _, t := range s.cat.TypesOf(s.race) {
		if s.IsLegal(t) {
			out.Add(t)
		}
	}
	return out
}

func (s *State) whenResourcesReady(t data.ActionID) int {
	tt := s.cat.Type(t)
	scale := s.eco.ResourceScale
	diffM := tt.MineralCost*scale - s.minerals
	diffG := tt.GasCost*scale - s.gas
	if diffM <= 0 && diffG <= 0 {
		return s.frame
	}

	q := s.eco.WorkersPerRefinery
	mw, gw := s.mineralWorkers, s.gasWorkers
	addM, addG := 0, 0
	last := s.frame

	// Walk completions in order while they happen before the stock is
	// covered; each one may change the income rate.
	for i := len(s.building) - 1; i >= 0; i-- {
		u := &s.units[s.building[i]]
		done := s.frame + u.TimeUntilBuilt
		elapsed := done - last
		tm := elapsed * s.eco.MineralRate * mw
		tg := elapsed * s.eco.GasRate * gw
		if addM+tm >= diffM && addG+tg >= diffG {
			break
		}
		addM += tm
		addG += tg
		last = done

		ut := s.cat.Type(u.Type)
		if s.occupiesWorker(u.Type) {
			mw++
		}
		if ut.IsWorker {
			mw++
		} else if ut.IsRefinery {
			mw -= q
			gw += q
		}
	}

	remM := diffM - addM
	remG := diffG - addG
	if (remM > 0 && mw <= 0) || (remG > 0 && gw <= 0) {
		return Never
	}
	wait := 0
	if remM > 0 {
		wait = ceilDiv(remM, s.eco.MineralRate*mw)
	}
	if remG > 0 {
		wait = max(wait, ceilDiv(remG, s.eco.GasRate*gw))
	}
	return last + wait
}

// whenSupplyReady returns the frame enough supply is available for t,
// counting providers under construction in completion order.
func (s *State) whenSupplyReady(t data.ActionID) int {
	need := s.currentSupply + s.netSupply(t) - s.maxSupply
	if need <= 0 {
		return s.frame
	}
	provided := 0
	for i := len(s.building) - 1; i >= 0; i-- {
		u := &s.units[s.building[i]]
		p := s.cat.Type(u.Type).SupplyProvided
		if p == 0 {
			continue
		}
		provided += p
		if provided >= need {
			return s.frame + u.TimeUntilBuilt
		}
	}
	return Never
}

// whenPrerequisitesReady returns the frame every required type has a
// finished instance.
func (s *State) whenPrerequisitesReady(t data.ActionID) int {
	ready := s.frame
	for _, req := range s.cat.Type(t).Required {
		r := s.RequirementReady(req)
		if r == Never {
			return Never
		}
		ready = max(ready, r)
	}
	return ready
}

// RequirementReady returns the earliest frame some unit meets a requirement
// for req, or Never. A unit morphing from a type that meets it already
// counts.
func (s *State) RequirementReady(req data.ActionID) int {
	best := Never
	for i := range s.units {
		u := &s.units[i]
		if !s.cat.Satisfies(u.Type, req) {
			continue
		}
		w := u.TimeUntilBuilt
		if ut := s.cat.Type(u.Type); ut.Morphed && s.cat.Satisfies(ut.Producer, req) {
			w = 0
		}
		if best == Never || w < best {
			best = w
		}
		if best == 0 {
			break
		}
	}
	if best == Never {
		return Never
	}
	return s.frame + best
}

func (s *State) havePrerequisites(t data.ActionID) bool {
	for _, req := range s.cat.Type(t).Required {
		found := false
		for i := range s.units {
			if s.cat.Satisfies(s.units[i].Type, req) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *State) whenBuilderReady(t data.ActionID) int {
	tt := s.cat.Type(t)
	if tt.Producer == data.None {
		return Never
	}
	if s.cat.Type(tt.Producer).IsToken {
		return s.whenTokenReady()
	}
	id, wait := s.findBuilder(t)
	if id == NoUnit {
		return Never
	}
	return s.frame + wait
}

// whenTokenReady returns now if any structure holds a token, otherwise the
// frame the next token appears anywhere.
func (s *State) whenTokenReady() int {
	best := Never
	for i := range s.units {
		u := &s.units[i]
		if !s.cat.Type(u.Type).SpawnsTokens {
			continue
		}
		if u.NumTokens > 0 {
			return s.frame
		}
		if u.TimeUntilToken > 0 && (best == Never || u.TimeUntilToken < best) {
			best = u.TimeUntilToken
		}
	}
	if best == Never {
		return Never
	}
	return s.frame + best
}

// builderWait is the wait until u could start t. A worker promised to a
// refinery may only start a job before the refinery completes, and only
// take one it finishes by then.
func (s *State) builderWait(u *Unit, t data.ActionID) int {
	w := u.whenCanBuild(s.cat, t)
	if w == Never {
		return Never
	}
	if u.ReservedFor != NoUnit {
		done := s.units[u.ReservedFor].TimeUntilBuilt
		if w >= done {
			return Never
		}
		if s.occupiesWorker(t) && w+s.cat.Type(t).BuildTime >= done {
			return Never
		}
	}
	return w
}

// findBuilder returns the lowest id unit that is free soonest to produce t.
func (s *State) findBuilder(t data.ActionID) (id, wait int) {
	id, wait = NoUnit, Never
	for i := range s.units {
		w := s.builderWait(&s.units[i], t)
		if w == Never {
			continue
		}
		if w == 0 {
			return i, 0
		}
		if wait == Never || w < wait {
			id, wait = i, w
		}
	}
	return id, wait
}

func (s *State) haveBuilder(t data.ActionID) bool {
	tt := s.cat.Type(t)
	if tt.Producer == data.None {
		return false
	}
	if s.cat.Type(tt.Producer).IsToken {
		return s.whenTokenReady() != Never
	}
	n := 0
	for i := range s.units {
		if s.builderWait(&s.units[i], t) != Never {
			n++
			if n >= tt.ProducerCount {
				return true
			}
		}
	}
	return false
}

// DoAction waits until t can start, then starts it. t must be legal.
func (s *State) DoAction(t data.ActionID) {
	if !s.IsLegal(t) {
		invariant("%s is not legal at frame %d", s.cat.Name(t), s.frame)
	}
	// Readiness is a lower bound: a worker promised to a refinery can drop
	// out of the builder pool while waiting, so re-check after each jump.
	for {
		ready := s.WhenCanBuild(t)
		if ready == Never {
			invariant("%s became unreachable at frame %d", s.cat.Name(t), s.frame)
		}
		if ready == s.frame {
			break
		}
		s.fastForward(ready)
	}

	tt := s.cat.Type(t)
	s.minerals -= tt.MineralCost * s.eco.ResourceScale
	s.gas -= tt.GasCost * s.eco.ResourceScale
	s.currentSupply += s.netSupply(t)
	if s.occupiesWorker(t) {
		s.mineralWorkers--
		s.buildingWorkers++
	}
	if s.consumesWorker(t) {
		s.mineralWorkers--
	}

	builder, wait := s.findBuilder(t)
	if builder == NoUnit || wait != 0 {
		invariant("no free producer for %s at frame %d", tt.Name, s.frame)
	}
	s.addUnit(t, builder)
	s.lastAction = t
}

// FastForward advances the clock to frame to, which must lie in the future.
func (s *State) FastForward(to int) {
	if to <= s.frame {
		invariant("fast forward to %d from frame %d", to, s.frame)
	}
	s.fastForward(to)
}

func (s *State) fastForward(to int) {
	prev := s.frame
	last := s.frame
	for len(s.building) > 0 {
		id := s.building[len(s.building)-1]
		done := prev + s.units[id].TimeUntilBuilt
		if done > to {
			break
		}
		s.accrue(done - last)
		last = done

		if s.occupiesWorker(s.units[id].Type) {
			s.mineralWorkers++
			s.buildingWorkers--
		}
		s.completeUnit(id)
		s.building = s.building[:len(s.building)-1]
	}
	s.accrue(to - last)

	var spawns []tokenSpawn
	for i := range s.units {
		spawns = s.units[i].fastForward(s.cat, s.eco, to-prev, spawns)
	}
	if len(spawns) > 0 {
		// Earliest first; ties by unit id.
		sort.SliceStable(spawns, func(i, j int) bool {
			if spawns[i].remaining != spawns[j].remaining {
				return spawns[i].remaining > spawns[j].remaining
			}
			return spawns[i].unit < spawns[j].unit
		})
		token := s.cat.Race(s.race).Token
		for _, sp := range spawns {
			s.addUnit(token, sp.unit)
		}
	}
	s.frame = to
}

func (s *State) accrue(frames int) {
	s.minerals += frames * s.eco.MineralRate * s.mineralWorkers
	s.gas += frames * s.eco.GasRate * s.gasWorkers
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
