package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/bosgo/planner/internal/core/event"
	"github.com/bosgo/planner/internal/data"
	"github.com/bosgo/planner/internal/economy"
	"github.com/bosgo/planner/internal/eval"
	"github.com/bosgo/planner/internal/plan"
)

// Strategy selects the objective of a value search.
type Strategy string

const (
	// StrategyBucket records the best value reachable by each time window.
	StrategyBucket Strategy = "bucket"
	// StrategyIntegral maximises the value accumulated over time.
	StrategyIntegral Strategy = "integral"
	// StrategyBestResponse minimises the worst deficit against a fixed
	// opponent build order.
	StrategyBestResponse Strategy = "best_response"
)

// DefaultBuckets is the number of time windows of a bucket search.
const DefaultBuckets = 200

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case StrategyBucket, StrategyIntegral, StrategyBestResponse:
		return st, nil
	}
	return "", fmt.Errorf("unknown value search strategy %q", s)
}

// ValueParams configures a value search.
type ValueParams struct {
	Strategy Strategy
	Initial  *economy.State

	// Relevant limits the actions searched. Empty means every type of the
	// state's race.
	Relevant data.TypeSet
	// MaxActions caps how many of a type may be owned. Types not present are
	// unlimited; zero forbids the type.
	MaxActions map[data.ActionID]int

	FrameLimit        int
	AlwaysMakeWorkers bool
	Opening           plan.BuildOrder

	Buckets        int
	PruneDominated bool // bucket only: skip states a bucket record dominates

	// Evaluator scores states. Defaults to eval.ArmyTotalResourceSum.
	Evaluator eval.Evaluator

	EnemyInitial    *economy.State
	EnemyBuildOrder plan.BuildOrder

	TimeLimit         time.Duration
	NodeCheckInterval int
	Bus               *event.Bus
}

// Bucket is the best record for one time window.
type Bucket struct {
	Value      float64
	BuildOrder plan.BuildOrder
	State      *economy.State
}

// IntegralPoint is one step of an accumulated value curve.
type IntegralPoint struct {
	Frame    int
	Value    float64
	Integral float64
}

// ValueResults describes the outcome of a value search.
type ValueResults struct {
	Strategy Strategy
	Solved   bool
	TimedOut bool
	Canceled bool

	Nodes   uint64
	Elapsed time.Duration

	// Value is the best bucket value, the best horizon integral, or the
	// smallest worst-case deficit, depending on the strategy.
	Value      float64
	BuildOrder plan.BuildOrder
	FinalState *economy.State

	Buckets  []Bucket
	Integral []IntegralPoint
}

// Outcome classifies the run for events and storage.
func (r *ValueResults) Outcome() event.Outcome {
	switch {
	case r.Canceled:
		return event.OutcomeCanceled
	case r.TimedOut:
		return event.OutcomeTimedOut
	case r.FinalState == nil:
		return event.OutcomeNoPlan
	default:
		return event.OutcomeSolved
	}
}

// BucketFrame is the first frame covered by bucket i.
func (r *ValueResults) BucketFrame(i, frameLimit int) int {
	return int(float64(i) / float64(len(r.Buckets)) * float64(frameLimit))
}

type curvePoint struct {
	frame int
	value float64
}

// ValueSearch is a depth-first search over every build order that stays
// inside the frame limit, keeping the best one under its strategy.
type ValueSearch struct {
	params    ValueParams
	log       *zap.Logger
	evaluator eval.Evaluator
	relevant  []data.ActionID
	interval  uint64

	ctx      context.Context
	deadline time.Time
	start    time.Time

	bo      plan.BuildOrder
	results ValueResults

	integral     []IntegralPoint
	bestIntegral float64

	enemy     []curvePoint
	self      []curvePoint
	bestWorst float64
}

// NewValueSearch validates p and prepares a search.
func NewValueSearch(p ValueParams, log *zap.Logger) (*ValueSearch, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if _, err := ParseStrategy(string(p.Strategy)); err != nil {
		return nil, err
	}
	if p.Initial == nil || p.Initial.Race() == data.NoRace {
		return nil, errors.New("value search needs an initial state with a race")
	}
	if p.FrameLimit <= p.Initial.Frame() {
		return nil, fmt.Errorf("frame limit %d is not after the initial frame %d", p.FrameLimit, p.Initial.Frame())
	}
	if p.Buckets <= 0 {
		p.Buckets = DefaultBuckets
	}
	if p.NodeCheckInterval <= 0 {
		p.NodeCheckInterval = DefaultNodeCheckInterval
	}

	v := &ValueSearch{
		params:    p,
		log:       log,
		evaluator: p.Evaluator,
		interval:  uint64(p.NodeCheckInterval),
	}
	if v.evaluator == nil {
		v.evaluator = eval.ArmyTotalResourceSum
	}

	if !p.Relevant.IsEmpty() {
		v.relevant = p.Relevant.Slice()
	} else {
		v.relevant = p.Initial.Catalog().TypesOf(p.Initial.Race())
	}

	if p.Strategy == StrategyBestResponse {
		if p.EnemyInitial == nil || p.EnemyBuildOrder.IsEmpty() {
			return nil, errors.New("best response needs an enemy state and build order")
		}
		curve, err := v.curve(p.EnemyInitial, p.EnemyBuildOrder)
		if err != nil {
			return nil, fmt.Errorf("enemy build order: %w", err)
		}
		v.enemy = curve[1:]
	}
	return v, nil
}

// curve replays b from s and records the value after every action, starting
// with the value of s itself.
func (v *ValueSearch) curve(s *economy.State, b plan.BuildOrder) ([]curvePoint, error) {
	c := s.Clone()
	out := []curvePoint{{c.Frame(), v.evaluator.Evaluate(c)}}
	for i := 0; i < b.Len(); i++ {
		a := b.At(i)
		if !c.IsLegal(a) {
			return nil, fmt.Errorf("action %d (%s) is illegal at frame %d", i, c.Catalog().Name(a), c.Frame())
		}
		c.DoAction(a)
		out = append(out, curvePoint{c.Frame(), v.evaluator.Evaluate(c)})
	}
	return out, nil
}

// Search explores the tree once. A timeout is not an error; a cancelled
// context returns ctx.Err() with the best results so far.
func (v *ValueSearch) Search(ctx context.Context) (ValueResults, error) {
	v.ctx = ctx
	v.start = time.Now()
	if v.params.TimeLimit > 0 {
		v.deadline = v.start.Add(v.params.TimeLimit)
	}

	root := v.params.Initial.Clone()
	if err := v.params.Opening.ApplyTo(root); err != nil {
		return ValueResults{}, fmt.Errorf("apply opening: %w", err)
	}
	v.reset(root)

	err := v.recurse(root)
	v.results.Elapsed = time.Since(v.start)
	switch {
	case err == nil:
		v.results.Solved = true
	case errors.Is(err, ErrTimeout):
		v.results.TimedOut = true
		err = nil
	default:
		v.results.TimedOut = true
		v.results.Canceled = true
	}
	v.collect()

	v.log.Info("value search finished",
		zap.String("strategy", string(v.params.Strategy)),
		zap.String("outcome", string(v.results.Outcome())),
		zap.Float64("value", v.results.Value),
		zap.Uint64("nodes", v.results.Nodes),
		zap.Duration("elapsed", v.results.Elapsed),
	)
	event.Emit(v.params.Bus, event.SearchFinished{
		Strategy: string(v.params.Strategy),
		Outcome:  v.results.Outcome(),
		Value:    v.results.Value,
		Length:   v.results.BuildOrder.Len(),
		Nodes:    v.results.Nodes,
		Elapsed:  v.results.Elapsed,
	})
	v.params.Bus.Flush()
	return v.results, err
}

func (v *ValueSearch) reset(root *economy.State) {
	v.results = ValueResults{Strategy: v.params.Strategy}
	v.bo = v.params.Opening.Clone()
	switch v.params.Strategy {
	case StrategyBucket:
		v.results.Buckets = make([]Bucket, v.params.Buckets)
	case StrategyIntegral:
		v.integral = []IntegralPoint{{Frame: root.Frame(), Value: v.evaluator.Evaluate(root)}}
		v.bestIntegral = math.Inf(-1)
	case StrategyBestResponse:
		// The opening is part of the candidate curve.
		self, _ := v.curve(v.params.Initial, v.params.Opening)
		v.self = self
		v.bestWorst = math.Inf(1)
	}
}

func (v *ValueSearch) recurse(s *economy.State) error {
	v.results.Nodes++
	if v.results.Nodes%v.interval == 0 {
		if !v.deadline.IsZero() && time.Now().After(v.deadline) {
			return ErrTimeout
		}
		if err := v.ctx.Err(); err != nil {
			return err
		}
		v.params.Bus.Flush()
	}

	switch v.params.Strategy {
	case StrategyBucket:
		if v.params.PruneDominated && v.dominated(s) {
			return nil
		}
		v.updateBucket(s)
	case StrategyBestResponse:
		v.updateBestResponse(s)
	case StrategyIntegral:
		v.updateIntegral(s)
	}

	if s.Frame() >= v.params.FrameLimit {
		return nil
	}

	legal := v.legalActions(s)
	n := legal.Len()
	for i := 0; i < n; i++ {
		a := legal.At(i)
		if v.params.Strategy != StrategyBucket {
			a = legal.At(n - 1 - i)
		}
		if s.WhenCanBuild(a) == economy.Never {
			continue
		}
		child := s.Clone()
		child.DoAction(a)
		v.bo.Add(a)
		v.push(child)

		err := v.recurse(child)

		v.bo.Pop()
		v.pop()
		if err != nil {
			return err
		}
	}
	return nil
}

func (v *ValueSearch) legalActions(s *economy.State) data.TypeSet {
	legal := candidates(s, v.relevant, v.maxActions)
	if v.params.AlwaysMakeWorkers {
		preferWorkersSoon(s, &legal)
	}
	return legal
}

func (v *ValueSearch) maxActions(t data.ActionID) int {
	if n, ok := v.params.MaxActions[t]; ok {
		return n
	}
	return -1
}

// push extends the running curves with a freshly applied child.
func (v *ValueSearch) push(child *economy.State) {
	switch v.params.Strategy {
	case StrategyIntegral:
		prev := v.integral[len(v.integral)-1]
		frame := min(child.Frame(), v.params.FrameLimit)
		v.integral = append(v.integral, IntegralPoint{
			Frame:    frame,
			Value:    v.evaluator.Evaluate(child),
			Integral: prev.Integral + prev.Value*float64(frame-prev.Frame),
		})
	case StrategyBestResponse:
		v.self = append(v.self, curvePoint{child.Frame(), v.evaluator.Evaluate(child)})
	}
}

func (v *ValueSearch) pop() {
	switch v.params.Strategy {
	case StrategyIntegral:
		v.integral = v.integral[:len(v.integral)-1]
	case StrategyBestResponse:
		v.self = v.self[:len(v.self)-1]
	}
}

func (v *ValueSearch) bucketIndex(frame int) int {
	return int(float64(frame) / float64(v.params.FrameLimit) * float64(len(v.results.Buckets)))
}

func (v *ValueSearch) dominated(s *economy.State) bool {
	if s.Frame() >= v.params.FrameLimit {
		return false
	}
	rec := v.results.Buckets[v.bucketIndex(s.Frame())].State
	return rec != nil && !rec.Equal(s) && eval.StateDominates(rec, s)
}

// updateBucket records s in its window and carries a new record forward
// into later windows until one already holds at least as much.
func (v *ValueSearch) updateBucket(s *economy.State) {
	if s.Frame() >= v.params.FrameLimit {
		return
	}
	value := v.evaluator.Evaluate(s)
	buckets := v.results.Buckets
	i := v.bucketIndex(s.Frame())
	b := &buckets[i]
	if b.State != nil && !(value > b.Value || value == b.Value && eval.BuildOrderBetter(s.Catalog(), v.bo, b.BuildOrder)) {
		return
	}

	bo := v.bo.Clone()
	buckets[i] = Bucket{Value: value, BuildOrder: bo, State: s}
	for j := i + 1; j < len(buckets); j++ {
		if buckets[j].State != nil && buckets[j].Value >= value {
			break
		}
		buckets[j] = Bucket{Value: value, BuildOrder: bo, State: s}
	}
	if buckets[len(buckets)-1].State == s {
		v.improved(value)
	}
}

// updateIntegral compares the running integral extended to the frame limit.
func (v *ValueSearch) updateIntegral(s *economy.State) {
	top := v.integral[len(v.integral)-1]
	score := top.Integral + top.Value*float64(max(0, v.params.FrameLimit-top.Frame))
	if score > v.bestIntegral || score == v.bestIntegral && eval.BuildOrderBetter(s.Catalog(), v.bo, v.results.BuildOrder) {
		v.bestIntegral = score
		v.results.Value = score
		v.results.BuildOrder = v.bo.Clone()
		v.results.FinalState = s
		v.results.Integral = append(v.results.Integral[:0], v.integral...)
		v.improved(score)
	}
}

// updateBestResponse scores the current curve by its worst deficit against
// the enemy curve. At each enemy point the latest own point not after it is
// used.
func (v *ValueSearch) updateBestResponse(s *economy.State) {
	worst := math.Inf(-1)
	si := 0
	for _, e := range v.enemy {
		for si+1 < len(v.self) && v.self[si+1].frame <= e.frame {
			si++
		}
		worst = max(worst, e.value-v.self[si].value)
	}
	if worst < v.bestWorst {
		v.bestWorst = worst
		v.results.Value = worst
		v.results.BuildOrder = v.bo.Clone()
		v.results.FinalState = s
		v.improved(worst)
	}
}

func (v *ValueSearch) improved(value float64) {
	v.log.Debug("improved value",
		zap.String("strategy", string(v.params.Strategy)),
		zap.Float64("value", value),
		zap.Int("length", v.bo.Len()),
		zap.Uint64("nodes", v.results.Nodes),
	)
	event.Emit(v.params.Bus, event.SolutionImproved{
		Strategy: string(v.params.Strategy),
		Value:    value,
		Length:   v.bo.Len(),
		Nodes:    v.results.Nodes,
		Elapsed:  time.Since(v.start),
	})
}

// collect fills the headline result of a bucket search from the last window.
func (v *ValueSearch) collect() {
	if v.params.Strategy != StrategyBucket {
		return
	}
	last := v.results.Buckets[len(v.results.Buckets)-1]
	v.results.Value = last.Value
	v.results.BuildOrder = last.BuildOrder
	v.results.FinalState = last.State
}
