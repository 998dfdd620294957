// Package plan holds build orders and the goals a search has to reach.
package plan

import (
	"fmt"
	"strings"

	"github.com/bosgo/planner/internal/data"
	"github.com/bosgo/planner/internal/economy"
)

// BuildOrder is an ordered action list with per-type counts.
type BuildOrder struct {
	actions []data.ActionID
	counts  []int
}

// NewBuildOrder builds an order from ids.
func NewBuildOrder(ids ...data.ActionID) BuildOrder {
	var b BuildOrder
	for _, id := range ids {
		b.Add(id)
	}
	return b
}

func (b *BuildOrder) Add(t data.ActionID) {
	b.AddN(t, 1)
}

// AddN appends n copies of t.
func (b *BuildOrder) AddN(t data.ActionID, n int) {
	if n <= 0 {
		return
	}
	if int(t) >= len(b.counts) {
		grown := make([]int, int(t)+1)
		copy(grown, b.counts)
		b.counts = grown
	}
	for i := 0; i < n; i++ {
		b.actions = append(b.actions, t)
	}
	b.counts[t] += n
}

// Append adds every action of o.
func (b *BuildOrder) Append(o BuildOrder) {
	for _, t := range o.actions {
		b.Add(t)
	}
}

// Pop removes the last action.
func (b *BuildOrder) Pop() data.ActionID {
	if len(b.actions) == 0 {
		panic("plan: pop from empty build order")
	}
	t := b.actions[len(b.actions)-1]
	b.actions = b.actions[:len(b.actions)-1]
	b.counts[t]--
	return t
}

// PopN removes the last n actions.
func (b *BuildOrder) PopN(n int) {
	for i := 0; i < n; i++ {
		b.Pop()
	}
}

func (b *BuildOrder) Clear() {
	b.actions = b.actions[:0]
	clear(b.counts)
}

func (b BuildOrder) Len() int { return len(b.actions) }

func (b BuildOrder) IsEmpty() bool { return len(b.actions) == 0 }

func (b BuildOrder) At(i int) data.ActionID { return b.actions[i] }

// Count returns how many times t occurs.
func (b BuildOrder) Count(t data.ActionID) int {
	if int(t) >= len(b.counts) {
		return 0
	}
	return b.counts[t]
}

// Actions returns a copy of the action list.
func (b BuildOrder) Actions() []data.ActionID {
	return append([]data.ActionID(nil), b.actions...)
}

// Clone returns an independent copy.
func (b BuildOrder) Clone() BuildOrder {
	return BuildOrder{
		actions: append([]data.ActionID(nil), b.actions...),
		counts:  append([]int(nil), b.counts...),
	}
}

// Names maps the actions to type names.
func (b BuildOrder) Names(cat *data.Catalog) []string {
	return cat.Names(b.actions)
}

// Format renders the order as "Probe, Probe, Pylon".
func (b BuildOrder) Format(cat *data.Catalog) string {
	return strings.Join(b.Names(cat), ", ")
}

// Compact renders runs of equal actions as "4 Probe, Pylon".
func (b BuildOrder) Compact(cat *data.Catalog) string {
	var parts []string
	for i := 0; i < len(b.actions); {
		j := i
		for j < len(b.actions) && b.actions[j] == b.actions[i] {
			j++
		}
		if n := j - i; n > 1 {
			parts = append(parts, fmt.Sprintf("%d %s", n, cat.Name(b.actions[i])))
		} else {
			parts = append(parts, cat.Name(b.actions[i]))
		}
		i = j
	}
	return strings.Join(parts, ", ")
}

// IsLegalFrom reports whether the order can be applied from s in full.
func (b BuildOrder) IsLegalFrom(s *economy.State) bool {
	c := s.Clone()
	for _, t := range b.actions {
		if !c.IsLegal(t) {
			return false
		}
		c.DoAction(t)
	}
	return true
}

// ApplyTo applies the order to s and stops at the first illegal action.
func (b BuildOrder) ApplyTo(s *economy.State) error {
	for i, t := range b.actions {
		if !s.IsLegal(t) {
			return fmt.Errorf("action %d (%s) is illegal at frame %d", i, s.Catalog().Name(t), s.Frame())
		}
		s.DoAction(t)
	}
	return nil
}

// Timeline replays the order from s and reports the frame each action
// started. s is not modified.
func (b BuildOrder) Timeline(s *economy.State) ([]int, error) {
	c := s.Clone()
	starts := make([]int, 0, len(b.actions))
	for i, t := range b.actions {
		if !c.IsLegal(t) {
			return starts, fmt.Errorf("action %d (%s) is illegal at frame %d", i, s.Catalog().Name(t), c.Frame())
		}
		c.DoAction(t)
		starts = append(starts, c.Frame())
	}
	return starts, nil
}

// SortByPrerequisites reorders the actions so that, wherever possible, each
// one comes after every action its prerequisite closure names. Cycles fall
// back to the existing order.
func (b *BuildOrder) SortByPrerequisites(cat *data.Catalog) {
	remaining := b.actions
	sorted := make([]data.ActionID, 0, len(remaining))
	for len(remaining) > 0 {
		pick := 0
		for i, t := range remaining {
			pre := cat.RecursivePrerequisites(t)
			blocked := false
			for j, o := range remaining {
				if j != i && o != t && pre.Contains(o) {
					blocked = true
					break
				}
			}
			if !blocked {
				pick = i
				break
			}
		}
		sorted = append(sorted, remaining[pick])
		remaining = append(remaining[:pick:pick], remaining[pick+1:]...)
	}
	b.actions = sorted
}
