package economy_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bosgo/planner/internal/data"
	"github.com/bosgo/planner/internal/economy"
)

func loadCatalog(t *testing.T) *data.Catalog {
	t.Helper()
	cat, err := data.DefaultCatalog()
	require.NoError(t, err)
	return cat
}

// newState places the named units (a name may repeat) with the given minerals.
func newState(t *testing.T, cat *data.Catalog, minerals int, names ...string) *economy.State {
	t.Helper()
	units := make([]data.ActionID, 0, len(names))
	for _, n := range names {
		id, ok := cat.Lookup(n)
		require.True(t, ok, "unknown type %s", n)
		units = append(units, id)
	}
	return economy.NewStateWithUnits(cat, units, minerals, 0)
}

func repeat(name string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = name
	}
	return out
}

func startState(t *testing.T, cat *data.Catalog, race string) *economy.State {
	t.Helper()
	switch race {
	case "Protoss":
		return newState(t, cat, 50, append([]string{"Nexus"}, repeat("Probe", 4)...)...)
	case "Terran":
		return newState(t, cat, 50, append([]string{"CommandCenter"}, repeat("SCV", 4)...)...)
	case "Zerg":
		return newState(t, cat, 50, append([]string{"Hatchery", "Overlord"}, repeat("Drone", 4)...)...)
	}
	t.Fatalf("unknown race %s", race)
	return nil
}

// randomBuildOrder picks n random legal actions, applying each with jumps.
func randomBuildOrder(start *economy.State, seed int64, n int) []data.ActionID {
	rng := rand.New(rand.NewSource(seed))
	s := start.Clone()
	var out []data.ActionID
	for len(out) < n {
		legal := s.LegalActions()
		if legal.IsEmpty() {
			break
		}
		a := legal.At(rng.Intn(legal.Len()))
		s.DoAction(a)
		out = append(out, a)
	}
	return out
}

// frameStep advances one frame at a time until a can start, then starts it.
func frameStep(t *testing.T, s *economy.State, a data.ActionID) {
	t.Helper()
	require.True(t, s.IsLegal(a), "%s illegal at frame %d", s.Catalog().Name(a), s.Frame())
	limit := s.Frame() + 50000
	for !s.CanBuildNow(a) {
		require.Less(t, s.Frame(), limit, "waiting for %s never ends", s.Catalog().Name(a))
		s.FastForward(s.Frame() + 1)
	}
	s.DoAction(a)
}

// requireSupplyConserved checks that supply counters match the unit table.
func requireSupplyConserved(t *testing.T, s *economy.State) {
	t.Helper()
	cat := s.Catalog()
	used, provided := 0, 0
	for _, u := range s.Units() {
		tt := cat.Type(u.Type)
		used += tt.SupplyCost
		if u.IsBuilt() {
			provided += tt.SupplyProvided
		}
	}
	require.Equal(t, used, s.CurrentSupply(), "supply used at frame %d", s.Frame())
	require.Equal(t, provided, s.MaxSupply(), "supply provided at frame %d", s.Frame())
}

// seededStart is the race's start state with a seed-dependent stock.
func seededStart(t *testing.T, cat *data.Catalog, race string, seed int64) *economy.State {
	t.Helper()
	s := startState(t, cat, race)
	s.SetMinerals(50 + int(seed%8)*150)
	s.SetGas(int(seed%3) * 100)
	return s
}

// requireWorkersConsistent checks the worker counters against the unit
// table and the reservations against the refineries under construction.
func requireWorkersConsistent(t *testing.T, s *economy.State) {
	t.Helper()
	cat := s.Catalog()
	race := cat.Race(s.Race())
	q := cat.Economy().WorkersPerRefinery

	workers, gasJobs, reserved := 0, 0, 0
	for _, u := range s.Units() {
		if cat.Type(u.Type).IsWorker && u.IsBuilt() {
			workers++
		}
		if u.Job == economy.JobGas {
			gasJobs++
		}
		if u.ReservedFor != economy.NoUnit {
			reserved++
		}
	}
	require.LessOrEqual(t, s.NumMineralWorkers()+s.NumGasWorkers()+s.NumBuildingWorkers(), workers,
		"worker counters exceed workers at frame %d: %s", s.Frame(), s.Summary())
	require.Equal(t, gasJobs, s.NumGasWorkers(), "gas workers at frame %d", s.Frame())
	require.Equal(t, q*s.NumInProgress(race.Refinery), reserved, "reserved workers at frame %d", s.Frame())
	require.Equal(t, q*s.NumRefineries(), s.NumGasWorkers(), "gas workers per refinery at frame %d", s.Frame())

	done, building := s.NumSatisfying(race.Depot)
	require.LessOrEqual(t, s.NumTotal(race.Refinery), done+building, "refineries outnumber depots at frame %d", s.Frame())
}

// requireLegalActionsReachable checks that every legal action has a finite
// start frame and can be applied.
func requireLegalActionsReachable(t *testing.T, s *economy.State) {
	t.Helper()
	legal := s.LegalActions()
	for i := 0; i < legal.Len(); i++ {
		a := legal.At(i)
		require.NotEqual(t, economy.Never, s.WhenCanBuild(a),
			"%s is legal but never ready at frame %d: %s", s.Catalog().Name(a), s.Frame(), s.Summary())
		c := s.Clone()
		require.NotPanics(t, func() { c.DoAction(a) }, "%s at frame %d", s.Catalog().Name(a), s.Frame())
	}
}
