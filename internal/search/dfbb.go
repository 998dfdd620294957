// Package search finds build orders: a depth-first branch and bound search
// for the fastest plan reaching a goal, and value searches that maximise a
// scalar evaluation within a frame limit.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bosgo/planner/internal/core/event"
	"github.com/bosgo/planner/internal/data"
	"github.com/bosgo/planner/internal/economy"
	"github.com/bosgo/planner/internal/plan"
)

// ErrTimeout stops a search whose time budget ran out. Search converts it
// into Results.TimedOut.
var ErrTimeout = errors.New("search timed out")

// stackFrame is one depth of the explicit search stack.
type stackFrame struct {
	state    *economy.State
	legal    data.TypeSet
	child    int           // index into legal being expanded
	action   data.ActionID // legal.At(child)
	reps     int           // repetitions of action actually applied
	lower    int           // frame + lower bound of state
	expanded bool
	pending  bool // a child of action was visited and must be unwound
}

// StackSearch is a resumable depth-first branch and bound search. It keeps
// its frame stack and bound between calls, so a timed out search continues
// where it stopped when Search is called again.
type StackSearch struct {
	params   Params
	log      *zap.Logger
	relevant []data.ActionID

	stack []stackFrame
	depth int
	bo    plan.BuildOrder
	bound *sharedBound

	started bool
	sub     bool // part of a parallel search: no naive fallback, no flush, no finish event
	root    *economy.State
	naive   plan.BuildOrder
	naiveOK bool

	results Results
}

// NewStackSearch prepares a search. Nothing runs until Search.
func NewStackSearch(p Params, log *zap.Logger) *StackSearch {
	if log == nil {
		log = zap.NewNop()
	}
	return &StackSearch{params: p.clone(), log: log}
}

// SetTimeLimit changes the budget of the next Search call.
func (s *StackSearch) SetTimeLimit(d time.Duration) {
	s.params.TimeLimit = d
}

// Results returns the results so far.
func (s *StackSearch) Results() Results { return s.results }

// Search runs until the space is exhausted, the time limit passes or ctx is
// done. A timeout is not an error. A cancelled context returns ctx.Err()
// along with the best results so far.
func (s *StackSearch) Search(ctx context.Context) (Results, error) {
	var deadline time.Time
	if s.params.TimeLimit > 0 {
		deadline = time.Now().Add(s.params.TimeLimit)
	}
	return s.searchUntil(ctx, deadline)
}

func (s *StackSearch) searchUntil(ctx context.Context, deadline time.Time) (Results, error) {
	if s.results.Solved {
		return s.results, nil
	}
	start := time.Now()
	if !s.started {
		if err := s.init(); err != nil {
			return s.results, err
		}
	}

	var err error
	if !s.results.Solved {
		err = s.run(ctx, deadline)
	}
	s.results.Elapsed += time.Since(start)

	switch {
	case err == nil:
		s.results.Solved = true
		s.results.TimedOut = false
		s.results.Canceled = false
	case errors.Is(err, ErrTimeout):
		s.results.TimedOut = true
		err = nil
	default:
		s.results.TimedOut = true
		s.results.Canceled = true
	}
	s.finish()
	return s.results, err
}

func (s *StackSearch) init() error {
	p := &s.params
	if p.Initial == nil || p.Goal == nil {
		return fmt.Errorf("search needs an initial state and a goal")
	}
	root := p.Initial.Clone()
	if err := p.Opening.ApplyTo(root); err != nil {
		return fmt.Errorf("apply opening: %w", err)
	}
	if gr := p.Goal.Race(); gr != data.NoRace && root.Race() != gr {
		return fmt.Errorf("goal race %s does not match the state", root.Catalog().Race(gr).Name)
	}

	ub := Unbounded
	finish, naive, err := UpperBound(root, p.Goal)
	if err != nil {
		s.log.Debug("naive plan unavailable", zap.Error(err))
	} else {
		ub = finish
		s.naive, s.naiveOK = naive, true
	}
	if p.InitialUpperBound > 0 {
		ub = p.InitialUpperBound
	}
	if ub < Unbounded {
		// Strict comparisons below must still accept a plan that matches
		// an exact bound.
		ub++
	}
	s.start(root, p.Opening, newSharedBound(ub))
	return nil
}

// start sets the root of the search tree.
func (s *StackSearch) start(root *economy.State, prefix plan.BuildOrder, bound *sharedBound) {
	s.started = true
	s.root = root
	s.relevant = s.params.relevantActions()
	s.bo = prefix.Clone()
	s.bound = bound
	s.results.FinishFrame = Unbounded
	s.results.LowerBound = root.Frame() + LowerBound(root, s.params.Goal)
	s.stack = append(s.stack[:0], stackFrame{state: root})
	s.depth = 0

	if s.params.Goal.IsAchievedBy(root) {
		s.update(root)
		s.results.Solved = true
	}
}

func (s *StackSearch) run(ctx context.Context, deadline time.Time) error {
	interval := s.params.nodeCheckInterval()
	for s.depth >= 0 {
		f := &s.stack[s.depth]

		if !f.expanded {
			s.results.Nodes++
			if s.results.Nodes%interval == 0 {
				if !deadline.IsZero() && time.Now().After(deadline) {
					return ErrTimeout
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				if !s.sub {
					s.params.Bus.Flush()
				}
			}
			f.legal = s.legalActions(f.state)
			f.lower = f.state.Frame() + LowerBound(f.state, s.params.Goal)
			f.child = 0
			f.pending = false
			f.expanded = true
		} else if f.pending {
			s.bo.PopN(f.reps)
			f.pending = false
			f.child++
		}

		if f.child >= f.legal.Len() {
			f.expanded = false
			s.depth--
			continue
		}

		a := f.legal.At(f.child)
		ready := f.state.WhenCanBuild(a)
		if ready == economy.Never {
			f.child++
			continue
		}
		finish := ready + f.state.Catalog().Type(a).BuildTime
		if max(finish, f.lower) > s.bound.Load() {
			f.child++
			continue
		}

		reps := s.repetitions(f.state, a)
		child := f.state.Clone()
		done := 0
		for ; done < reps && child.IsLegal(a) && child.WhenCanBuild(a) != economy.Never; done++ {
			s.bo.Add(a)
			child.DoAction(a)
		}
		f.action, f.reps, f.pending = a, done, true

		if s.params.Goal.IsAchievedBy(child) {
			s.update(child)
			continue
		}
		s.push(child)
	}
	return nil
}

func (s *StackSearch) push(child *economy.State) {
	s.depth++
	if s.depth == len(s.stack) {
		s.stack = append(s.stack, stackFrame{})
	}
	s.stack[s.depth] = stackFrame{state: child}
}

func (s *StackSearch) legalActions(st *economy.State) data.TypeSet {
	legal := candidates(st, s.relevant, s.limit)
	if s.params.SupplyBounding {
		boundSupply(st, &legal, s.params.SupplyBoundingThreshold)
	}
	if s.params.AlwaysMakeWorkers {
		preferWorkers(st, &legal)
	}
	return legal
}

// limit caps an action at its goal, or its maximum when it has no goal.
// Relevant actions with neither are unlimited.
func (s *StackSearch) limit(t data.ActionID) int {
	if l := s.params.Goal.Limit(t); l > 0 {
		return l
	}
	return -1
}

// repetitions returns how many times a is applied on one edge.
func (s *StackSearch) repetitions(st *economy.State, a data.ActionID) int {
	r := 1
	if s.params.UseRepetitions {
		r = s.params.Repetitions(a)
	}
	if s.params.UseIncreasingRepetitions && st.NumTotal(a) < s.params.RepetitionThreshold(a) {
		r = 1
	}
	g := s.params.Goal
	if g.Goal(a) > 0 {
		r = min(r, g.Goal(a)-st.NumTotal(a))
	} else if g.Max(a) > 0 {
		r = min(r, g.Max(a)-st.NumTotal(a))
	}
	return max(r, 1)
}

func (s *StackSearch) update(st *economy.State) {
	finish := st.LastActionFinishTime()
	if !s.bound.TryLower(finish) {
		return
	}
	s.results.SolutionFound = true
	s.results.Naive = false
	s.results.FinishFrame = finish
	s.results.BuildOrder = s.bo.Clone()
	s.results.FinalState = st

	s.log.Debug("improved solution",
		zap.Int("finish", finish),
		zap.Int("length", s.bo.Len()),
		zap.Uint64("nodes", s.results.Nodes),
	)
	event.Emit(s.params.Bus, event.SolutionImproved{
		Strategy:    s.params.Strategy,
		FinishFrame: finish,
		Length:      s.bo.Len(),
		Nodes:       s.results.Nodes,
		Elapsed:     s.results.Elapsed,
	})
}

// finish fills the naive fallback and reports the call.
func (s *StackSearch) finish() {
	s.results.UpperBound = s.bound.Load()
	if s.sub {
		return
	}
	if !s.results.SolutionFound && s.naiveOK {
		s.useNaive()
	}

	s.log.Info("search finished",
		zap.String("strategy", s.params.Strategy),
		zap.String("outcome", string(s.results.Outcome())),
		zap.Int("finish", s.results.FinishFrame),
		zap.Uint64("nodes", s.results.Nodes),
		zap.Duration("elapsed", s.results.Elapsed),
	)
	event.Emit(s.params.Bus, event.SearchFinished{
		Strategy:    s.params.Strategy,
		Outcome:     s.results.Outcome(),
		FinishFrame: s.results.FinishFrame,
		Length:      s.results.BuildOrder.Len(),
		Nodes:       s.results.Nodes,
		Elapsed:     s.results.Elapsed,
	})
	s.params.Bus.Flush()
}

func (s *StackSearch) useNaive() {
	final := s.root.Clone()
	if err := s.naive.ApplyTo(final); err != nil {
		panic(fmt.Sprintf("search: naive plan no longer applies: %v", err))
	}
	bo := s.params.Opening.Clone()
	bo.Append(s.naive)
	s.results.Naive = true
	s.results.BuildOrder = bo
	s.results.FinalState = final
	s.results.FinishFrame = final.LastActionFinishTime()
}
