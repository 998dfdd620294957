package persist

import (
	"encoding/binary"
	"hash"
	"slices"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/bosgo/planner/internal/data"
	"github.com/bosgo/planner/internal/economy"
	"github.com/bosgo/planner/internal/plan"
)

// KeySize is the length of a plan cache key.
const KeySize = 32

// PlanKey digests everything a goal search result depends on: the start
// state, the goal and the actions the search may branch on. Types are
// written by name so keys survive catalog reordering.
func PlanKey(initial *economy.State, goal *plan.Goal, relevant data.TypeSet) []byte {
	h, _ := blake2b.New256(nil)
	cat := initial.Catalog()
	w := keyWriter{h: h, cat: cat}

	w.int(initial.Frame())
	w.int(initial.ScaledMinerals())
	w.int(initial.ScaledGas())
	w.int(initial.NumMineralWorkers())
	w.int(initial.NumGasWorkers())
	for _, u := range initial.Units() {
		w.typ(u.Type)
		w.int(int(u.Job))
		w.int(u.TimeUntilBuilt)
		w.int(u.TimeUntilFree)
		w.typ(u.BuildType)
		w.typ(u.Addon)
		w.int(u.NumTokens)
		w.int(u.TimeUntilToken)
	}

	w.sep()
	for _, t := range sortedByName(cat, goalTypes(goal)) {
		w.typ(t)
		w.int(goal.Goal(t))
		w.int(goal.Max(t))
	}

	w.sep()
	for _, t := range sortedByName(cat, relevant.Slice()) {
		w.typ(t)
	}
	return h.Sum(nil)
}

func goalTypes(g *plan.Goal) []data.ActionID {
	var out []data.ActionID
	for i := 1; i < g.Catalog().Len(); i++ {
		t := data.ActionID(i)
		if g.Goal(t) > 0 || g.Max(t) > 0 {
			out = append(out, t)
		}
	}
	return out
}

func sortedByName(cat *data.Catalog, ids []data.ActionID) []data.ActionID {
	out := slices.Clone(ids)
	slices.SortFunc(out, func(a, b data.ActionID) int {
		return strings.Compare(cat.Name(a), cat.Name(b))
	})
	return out
}

type keyWriter struct {
	h   hash.Hash
	cat *data.Catalog
	buf [binary.MaxVarintLen64]byte
}

func (w *keyWriter) int(v int) {
	n := binary.PutVarint(w.buf[:], int64(v))
	w.h.Write(w.buf[:n])
}

func (w *keyWriter) typ(t data.ActionID) {
	if t == data.None {
		w.int(0)
		return
	}
	name := w.cat.Name(t)
	w.int(len(name))
	w.h.Write([]byte(name))
}

func (w *keyWriter) sep() { w.h.Write([]byte{0xff}) }
