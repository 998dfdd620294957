package search

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/bosgo/planner/internal/core/event"
	"github.com/bosgo/planner/internal/economy"
	"github.com/bosgo/planner/internal/plan"
)

// Unbounded is the upper bound used when no feasible plan is known.
const Unbounded = math.MaxInt32

// Results describes the outcome of a goal search.
type Results struct {
	Solved        bool // the search space was exhausted
	TimedOut      bool
	Canceled      bool // the context ended the run; TimedOut is set too
	SolutionFound bool // the search found a plan at least as fast as the naive one
	Naive         bool // BuildOrder is the naive plan

	FinishFrame int // frame the plan is finished, Unbounded when there is none
	UpperBound  int // current pruning bound
	LowerBound  int // lower bound at the root, in absolute frames

	Nodes   uint64
	Elapsed time.Duration

	BuildOrder plan.BuildOrder
	FinalState *economy.State
}

// HasPlan reports whether BuildOrder reaches the goal.
func (r *Results) HasPlan() bool { return r.FinalState != nil }

// Outcome classifies the run for events and storage.
func (r *Results) Outcome() event.Outcome {
	switch {
	case r.Canceled:
		return event.OutcomeCanceled
	case r.TimedOut:
		return event.OutcomeTimedOut
	case !r.HasPlan():
		return event.OutcomeNoPlan
	default:
		return event.OutcomeSolved
	}
}

func (r *Results) String() string {
	return fmt.Sprintf("outcome=%s finish=%d length=%d nodes=%d elapsed=%s",
		r.Outcome(), r.FinishFrame, r.BuildOrder.Len(), r.Nodes, r.Elapsed)
}

// sharedBound is the pruning bound. Parallel workers lower it with a
// compare-and-swap so an improvement is visible to all of them.
type sharedBound struct {
	v atomic.Int64
}

func newSharedBound(v int) *sharedBound {
	b := &sharedBound{}
	b.v.Store(int64(v))
	return b
}

func (b *sharedBound) Load() int { return int(b.v.Load()) }

// TryLower sets the bound to v if v is strictly smaller.
func (b *sharedBound) TryLower(v int) bool {
	for {
		cur := b.v.Load()
		if int64(v) >= cur {
			return false
		}
		if b.v.CompareAndSwap(cur, int64(v)) {
			return true
		}
	}
}
