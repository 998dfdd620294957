package search

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bosgo/planner/internal/economy"
	"github.com/bosgo/planner/internal/plan"
)

// ParallelSearch splits the tree below the root across workers. Every root
// child is searched by its own StackSearch; all of them prune against one
// shared bound. The merged result is the fastest plan any subtree found.
func ParallelSearch(ctx context.Context, p Params, workers int, log *zap.Logger) (Results, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	start := time.Now()
	var deadline time.Time
	if p.TimeLimit > 0 {
		deadline = start.Add(p.TimeLimit)
	}

	// The coordinator owns the root, the naive fallback and the final events.
	coord := NewStackSearch(p, log)
	if err := coord.init(); err != nil {
		return Results{}, err
	}
	if coord.results.Solved {
		coord.finish()
		return coord.results, nil
	}

	root := coord.root
	legal := coord.legalActions(root)
	subs := make([]*StackSearch, 0, legal.Len())
	for i := 0; i < legal.Len(); i++ {
		a := legal.At(i)
		child := root.Clone()
		prefix := coord.bo.Clone()
		for n := coord.repetitions(root, a); n > 0 && child.IsLegal(a); n-- {
			prefix.Add(a)
			child.DoAction(a)
		}
		sub := &StackSearch{params: coord.params, log: log, sub: true}
		sub.start(child, prefix, coord.bound)
		subs = append(subs, sub)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, sub := range subs {
		g.Go(func() error {
			_, err := sub.searchUntil(gctx, deadline)
			return err
		})
	}
	err := g.Wait()

	merged := &coord.results
	merged.Nodes = 1
	merged.Solved = err == nil
	for _, sub := range subs {
		r := sub.results
		merged.Nodes += r.Nodes
		merged.TimedOut = merged.TimedOut || r.TimedOut
		merged.Canceled = merged.Canceled || r.Canceled
		if r.SolutionFound && r.FinishFrame < merged.FinishFrame {
			merged.SolutionFound = true
			merged.FinishFrame = r.FinishFrame
			merged.BuildOrder = r.BuildOrder
			merged.FinalState = r.FinalState
		}
	}
	if merged.TimedOut {
		merged.Solved = false
	}
	merged.Elapsed = time.Since(start)

	log.Debug("parallel search merged",
		zap.Int("subtrees", len(subs)),
		zap.Int("workers", workers),
	)
	coord.finish()

	if err != nil && !errors.Is(err, ErrTimeout) {
		return coord.results, fmt.Errorf("parallel search: %w", err)
	}
	return coord.results, nil
}

// SearchWith runs the serial search when workers is 1 and the parallel one
// otherwise.
func SearchWith(ctx context.Context, p Params, workers int, log *zap.Logger) (Results, error) {
	if workers == 1 {
		return NewStackSearch(p, log).Search(ctx)
	}
	return ParallelSearch(ctx, p, workers, log)
}

// Verify replays r's build order from initial and checks it reaches goal by
// the reported frame.
func Verify(initial *economy.State, goal *plan.Goal, r Results) error {
	if !r.HasPlan() {
		return errors.New("no plan to verify")
	}
	s := initial.Clone()
	if err := r.BuildOrder.ApplyTo(s); err != nil {
		return err
	}
	if !goal.IsAchievedBy(s) {
		return fmt.Errorf("build order does not reach %s", goal)
	}
	if got := s.LastActionFinishTime(); got != r.FinishFrame {
		return fmt.Errorf("build order finishes at frame %d, reported %d", got, r.FinishFrame)
	}
	return nil
}
