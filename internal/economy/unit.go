package economy

import "github.com/bosgo/planner/internal/data"

// Job is what a unit is doing right now. Only workers ever leave JobNone.
type Job uint8

const (
	JobNone Job = iota
	JobMinerals
	JobGas
	JobBuild
)

func (j Job) String() string {
	switch j {
	case JobMinerals:
		return "minerals"
	case JobGas:
		return "gas"
	case JobBuild:
		return "build"
	}
	return "none"
}

// NoUnit marks an absent unit reference.
const NoUnit = -1

// Unit is one production instance. It only holds comparable fields so two
// states can be compared record by record.
type Unit struct {
	ID        int
	BuilderID int // NoUnit for pre-placed units
	Type      data.ActionID
	Job       Job

	TimeUntilBuilt int
	TimeUntilFree  int

	BuildType data.ActionID // type currently being produced, if any
	BuildID   int

	Addon   data.ActionID
	AddonID int

	ReservedFor int // refinery this worker is promised to, or NoUnit

	NumTokens      int
	TimeUntilToken int
}

func newUnit(cat *data.Catalog, t data.ActionID, id, builderID int) Unit {
	u := Unit{
		ID:          id,
		BuilderID:   builderID,
		Type:        t,
		BuildID:     NoUnit,
		AddonID:     NoUnit,
		ReservedFor: NoUnit,
	}
	if builderID != NoUnit && !cat.Type(t).IsToken {
		bt := cat.Type(t).BuildTime
		u.TimeUntilBuilt = bt
		u.TimeUntilFree = bt
	}
	return u
}

// IsBuilt reports whether the unit has finished construction.
func (u *Unit) IsBuilt() bool { return u.TimeUntilBuilt == 0 }

// whenCanBuild returns how long until this unit could start producing t,
// or Never when it can not produce t at all.
func (u *Unit) whenCanBuild(cat *data.Catalog, t data.ActionID) int {
	tt := cat.Type(t)
	if tt.Morphed {
		if u.Type != tt.Producer {
			return Never
		}
	} else if !cat.Satisfies(u.Type, tt.Producer) {
		return Never
	}
	if tt.IsAddon && (u.Addon != data.None || (u.BuildType != data.None && cat.Type(u.BuildType).IsAddon)) {
		return Never
	}
	if tt.ProducerAddon != data.None && tt.ProducerAddon != u.Addon && tt.ProducerAddon != u.BuildType {
		return Never
	}
	if u.Job == JobGas {
		return Never
	}
	if u.ReservedFor != NoUnit && tt.Morphed {
		return Never
	}
	return u.TimeUntilFree
}

// startBuilding makes the unit busy producing child. Workers of a race with
// free labor stay available.
func (u *Unit) startBuilding(cat *data.Catalog, child *Unit) {
	ut := cat.Type(u.Type)
	if ut.IsWorker && cat.Race(ut.Race).Labor == data.LaborFree {
		return
	}
	u.TimeUntilFree = cat.Type(child.Type).BuildTime
	u.BuildType = child.Type
	u.BuildID = child.ID
	if ut.IsWorker {
		u.Job = JobBuild
	}
}

// startMorphing turns the unit into t in place. A unit that starts spawning
// tokens gets its first one a frame after construction ends.
func (u *Unit) startMorphing(cat *data.Catalog, t data.ActionID) {
	tt := cat.Type(t)
	wasSpawner := cat.Type(u.Type).SpawnsTokens
	u.TimeUntilBuilt = tt.BuildTime
	u.TimeUntilFree = tt.BuildTime
	u.BuildType = t
	u.BuildID = u.ID
	u.Type = t
	u.Job = JobNone
	if tt.SpawnsTokens && !wasSpawner {
		u.NumTokens = 0
		u.TimeUntilToken = tt.BuildTime + 1
	}
}

func (u *Unit) addToken(eco data.Economy) {
	u.NumTokens++
	if u.NumTokens >= eco.MaxTokens {
		u.TimeUntilToken = 0
	}
}

func (u *Unit) useToken(eco data.Economy) {
	if u.NumTokens <= 0 {
		invariant("unit %d has no token to spend", u.ID)
	}
	if u.NumTokens == eco.MaxTokens {
		u.TimeUntilToken = eco.TokenInterval
	}
	u.NumTokens--
}

// tokenSpawn records a token that appeared during fastForward: remaining is
// how many of the elapsed frames were left when it appeared.
type tokenSpawn struct {
	remaining int
	unit      int
}

// fastForward advances the unit's timers by frames and appends any tokens
// that appeared on the way.
func (u *Unit) fastForward(cat *data.Catalog, eco data.Economy, frames int, spawns []tokenSpawn) []tokenSpawn {
	if u.BuildType != data.None && frames >= u.TimeUntilFree {
		if cat.Type(u.BuildType).IsAddon {
			u.Addon = u.BuildType
			u.AddonID = u.BuildID
		}
		u.BuildType = data.None
		u.BuildID = NoUnit
		if u.Job != JobGas {
			if cat.Type(u.Type).IsWorker {
				u.Job = JobMinerals
			} else {
				u.Job = JobNone
			}
		}
	}

	if cat.Type(u.Type).SpawnsTokens && u.TimeUntilToken > 0 {
		left := frames
		added := 0
		for u.NumTokens+added < eco.MaxTokens && left > 0 {
			if left < u.TimeUntilToken {
				u.TimeUntilToken -= left
				break
			}
			left -= u.TimeUntilToken
			spawns = append(spawns, tokenSpawn{remaining: left, unit: u.ID})
			added++
			u.TimeUntilToken = eco.TokenInterval
		}
	}

	u.TimeUntilFree = max(0, u.TimeUntilFree-frames)
	u.TimeUntilBuilt = max(0, u.TimeUntilBuilt-frames)
	return spawns
}
