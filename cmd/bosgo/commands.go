package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bosgo/planner/internal/data"
	"github.com/bosgo/planner/internal/economy"
	"github.com/bosgo/planner/internal/persist"
	"github.com/bosgo/planner/internal/plan"
	"github.com/bosgo/planner/internal/search"
)

const framesPerSecond = 24

// clock renders a frame count as game time.
func clock(frame int) string {
	sec := frame / framesPerSecond
	return fmt.Sprintf("%d:%02d", sec/60, sec%60)
}

func newSimulateCommand() *cobra.Command {
	var stateName, orderName string
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a build order and print its timeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			initial, err := a.state(stateName)
			if err != nil {
				return err
			}
			bo, err := a.buildOrder(orderName)
			if err != nil {
				return err
			}

			printSection("simulate " + orderName)
			starts, err := bo.Timeline(initial)
			printTimeline(a.cat, bo, starts)
			if err != nil {
				printWarn(err.Error())
				return nil
			}
			final := initial.Clone()
			if err := bo.ApplyTo(final); err != nil {
				return err
			}
			fmt.Println()
			printStat("finished", fmt.Sprintf("%d (%s)", final.LastActionFinishTime(), clock(final.LastActionFinishTime())))
			printStat("supply", fmt.Sprintf("%d/%d", final.CurrentSupply()/2, final.MaxSupply()/2))
			printStat("minerals", strconv.Itoa(final.Minerals()))
			printStat("gas", strconv.Itoa(final.Gas()))
			a.log.Debug("final state", zap.String("state", final.Summary()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&stateName, "state", "s", "", "named start state")
	cmd.Flags().StringVarP(&orderName, "build-order", "b", "", "named build order")
	_ = cmd.MarkFlagRequired("state")
	_ = cmd.MarkFlagRequired("build-order")
	return cmd
}

func printTimeline(cat *data.Catalog, bo plan.BuildOrder, starts []int) {
	for i, frame := range starts {
		fmt.Printf("  %3d  \033[90m%6s\033[0m  %s\n", i+1, clock(frame), cat.Name(bo.At(i)))
	}
}

func newSearchCommand() *cobra.Command {
	var (
		stateName, goalName, opening string
		timeLimit                    time.Duration
		workers                      int
		plain, noCache               bool
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find the fastest build order reaching a goal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			initial, err := a.state(stateName)
			if err != nil {
				return err
			}
			goal, err := a.goal(goalName)
			if err != nil {
				return err
			}
			openingBO, err := a.buildOrder(opening)
			if err != nil {
				return err
			}

			var p search.Params
			if plain {
				p = search.NewParams(initial, goal)
				p.Strategy = "dfbb"
			} else {
				p = search.Configure(initial, goal)
				sc := a.cfg.Search
				p.AlwaysMakeWorkers = sc.AlwaysMakeWorkers
				p.SupplyBounding = sc.SupplyBounding
				p.SupplyBoundingThreshold = sc.SupplyBoundingThreshold
				p.UseRepetitions = sc.UseRepetitions
				p.UseIncreasingRepetitions = sc.UseIncreasingRepetitions
			}
			p.Opening = openingBO
			p.TimeLimit = a.cfg.Search.TimeLimit
			if cmd.Flags().Changed("time-limit") {
				p.TimeLimit = timeLimit
			}
			p.NodeCheckInterval = a.cfg.Search.NodeCheckInterval
			p.Bus = a.bus
			if !cmd.Flags().Changed("workers") {
				workers = a.cfg.Search.Workers
			}

			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			var key []byte
			if db != nil && !noCache && openingBO.IsEmpty() {
				key = persist.PlanKey(initial, p.Goal, p.Relevant)
				if r, ok := a.fromCache(ctx, db, key, initial, goal); ok {
					printSearch(a, "search (cached)", initial, r)
					return nil
				}
			}

			r, err := search.SearchWith(ctx, p, workers, a.log)
			if err != nil {
				if !r.Canceled {
					return fmt.Errorf("search: %w", err)
				}
				printWarn("interrupted, showing the best plan so far")
			}
			printSearch(a, "search "+goalName, initial, r)

			if db != nil {
				if !r.HasPlan() {
					key = nil
				}
				run := &persist.RunRow{
					Strategy:    p.Strategy,
					Race:        raceName(a.cat, initial, goal),
					Goal:        goalCounts(a.cat, goal),
					BuildOrder:  r.BuildOrder.Names(a.cat),
					FinishFrame: r.FinishFrame,
					Nodes:       int64(r.Nodes),
					Elapsed:     r.Elapsed,
					TimedOut:    r.TimedOut,
					Solved:      r.Solved,
				}
				// ctx may already be cancelled by an interrupt.
				rctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := persist.Record(rctx, db, run, key); err != nil {
					return err
				}
				printOK("run " + run.ID.String() + " stored")
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&stateName, "state", "s", "", "named start state")
	f.StringVarP(&goalName, "goal", "g", "", "named goal")
	f.StringVar(&opening, "opening", "", "named build order applied before searching")
	f.DurationVarP(&timeLimit, "time-limit", "t", 0, "search budget (0 = unlimited)")
	f.IntVarP(&workers, "workers", "w", 1, "parallel root-split workers")
	f.BoolVar(&plain, "plain", false, "search without derived settings or abstractions")
	f.BoolVar(&noCache, "no-cache", false, "skip the plan cache lookup")
	_ = cmd.MarkFlagRequired("state")
	_ = cmd.MarkFlagRequired("goal")
	return cmd
}

// fromCache returns a cached plan when one was proven optimal and still
// replays to the cached finish frame.
func (a *app) fromCache(ctx context.Context, db *persist.DB, key []byte,
	initial *economy.State, goal *plan.Goal) (search.Results, bool) {
	cached, err := persist.NewPlanCache(db).Get(ctx, key)
	if err != nil {
		a.log.Warn("plan cache lookup failed", zap.Error(err))
		return search.Results{}, false
	}
	if cached == nil || !cached.Solved {
		return search.Results{}, false
	}
	ids, err := a.lookupAll(cached.BuildOrder)
	if err != nil {
		a.log.Warn("cached plan rejected", zap.Error(err))
		return search.Results{}, false
	}
	bo := plan.NewBuildOrder(ids...)
	final := initial.Clone()
	if err := bo.ApplyTo(final); err != nil {
		a.log.Warn("cached plan rejected", zap.Error(err))
		return search.Results{}, false
	}
	r := search.Results{
		Solved:        true,
		SolutionFound: true,
		FinishFrame:   cached.FinishFrame,
		UpperBound:    cached.FinishFrame,
		LowerBound:    initial.Frame() + search.LowerBound(initial, goal),
		BuildOrder:    bo,
		FinalState:    final,
	}
	if err := search.Verify(initial, goal, r); err != nil {
		a.log.Warn("cached plan rejected", zap.Error(err))
		return search.Results{}, false
	}
	return r, true
}

func printSearch(a *app, title string, initial *economy.State, r search.Results) {
	printSection(title)
	printStat("outcome", string(r.Outcome()))
	if r.HasPlan() {
		printStat("finish frame", fmt.Sprintf("%d (%s)", r.FinishFrame, clock(r.FinishFrame)))
	}
	printStat("lower bound", strconv.Itoa(r.LowerBound))
	printStat("nodes", humanize.Comma(int64(r.Nodes)))
	printStat("elapsed", r.Elapsed.Round(time.Millisecond).String())
	if r.Naive {
		printWarn("no plan beat the greedy one")
	}
	if !r.HasPlan() {
		printWarn("no plan found")
		return
	}
	fmt.Println()
	starts, err := r.BuildOrder.Timeline(initial)
	printTimeline(a.cat, r.BuildOrder, starts)
	if err != nil {
		printWarn(err.Error())
	}
	fmt.Println()
	fmt.Printf("  %s\n", r.BuildOrder.Compact(a.cat))
}

func raceName(cat *data.Catalog, s *economy.State, g *plan.Goal) string {
	id := s.Race()
	if id == data.NoRace {
		id = g.Race()
	}
	if id == data.NoRace {
		return ""
	}
	return cat.Race(id).Name
}

func goalCounts(cat *data.Catalog, g *plan.Goal) map[string]int {
	out := make(map[string]int)
	for _, t := range g.Types() {
		out[cat.Name(t)] = g.Goal(t)
	}
	return out
}

func newValueCommand() *cobra.Command {
	var (
		stateName, strategy, opening      string
		enemyState, enemyOrder            string
		frameLimit, buckets               int
		maxActions                        map[string]int
		timeLimit                         time.Duration
		pruneDominated, alwaysMakeWorkers bool
	)
	cmd := &cobra.Command{
		Use:   "value",
		Short: "Find the build order maximising a state value by a frame limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			vc := a.cfg.Value
			flags := cmd.Flags()
			if !flags.Changed("strategy") {
				strategy = vc.Strategy
			}
			if !flags.Changed("frame-limit") {
				frameLimit = vc.FrameLimit
			}
			if !flags.Changed("buckets") {
				buckets = vc.Buckets
			}
			if !flags.Changed("time-limit") {
				timeLimit = vc.TimeLimit
			}
			if !flags.Changed("prune-dominated") {
				pruneDominated = vc.PruneDominated
			}
			if !flags.Changed("always-make-workers") {
				alwaysMakeWorkers = vc.AlwaysMakeWorkers
			}

			strat, err := search.ParseStrategy(strategy)
			if err != nil {
				return err
			}
			initial, err := a.state(stateName)
			if err != nil {
				return err
			}
			openingBO, err := a.buildOrder(opening)
			if err != nil {
				return err
			}
			evaluator, err := a.evaluator()
			if err != nil {
				return err
			}

			p := search.ValueParams{
				Strategy:          strat,
				Initial:           initial,
				FrameLimit:        frameLimit,
				AlwaysMakeWorkers: alwaysMakeWorkers,
				Opening:           openingBO,
				Buckets:           buckets,
				PruneDominated:    pruneDominated,
				Evaluator:         evaluator,
				TimeLimit:         timeLimit,
				NodeCheckInterval: a.cfg.Search.NodeCheckInterval,
				Bus:               a.bus,
			}
			if len(maxActions) > 0 {
				p.MaxActions = make(map[data.ActionID]int, len(maxActions))
				for name, n := range maxActions {
					id, ok := a.cat.Lookup(name)
					if !ok {
						return fmt.Errorf("unknown type %q", name)
					}
					p.MaxActions[id] = n
					p.Relevant.Add(id)
				}
			}
			if strat == search.StrategyBestResponse {
				if p.EnemyInitial, err = a.state(enemyState); err != nil {
					return err
				}
				if p.EnemyBuildOrder, err = a.buildOrder(enemyOrder); err != nil {
					return err
				}
			}

			v, err := search.NewValueSearch(p, a.log)
			if err != nil {
				return err
			}
			r, err := v.Search(ctx)
			if err != nil {
				if !r.Canceled {
					return fmt.Errorf("value search: %w", err)
				}
				printWarn("interrupted, showing the best plan so far")
			}
			printValue(a, initial, p, r)

			db, err := a.openDB(ctx)
			if err != nil || db == nil {
				return err
			}
			run := &persist.RunRow{
				Strategy:   string(r.Strategy),
				Race:       raceName(a.cat, initial, plan.NewGoal(a.cat)),
				BuildOrder: r.BuildOrder.Names(a.cat),
				Value:      r.Value,
				Nodes:      int64(r.Nodes),
				Elapsed:    r.Elapsed,
				TimedOut:   r.TimedOut,
				Solved:     r.Solved,
			}
			if r.FinalState != nil {
				run.FinishFrame = r.FinalState.LastActionFinishTime()
			}
			rctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := persist.NewRunRepo(db).Save(rctx, run); err != nil {
				return fmt.Errorf("record run: %w", err)
			}
			printOK("run " + run.ID.String() + " stored")
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&stateName, "state", "s", "", "named start state")
	f.StringVar(&strategy, "strategy", "", "bucket, integral or best_response")
	f.StringVar(&opening, "opening", "", "named build order applied before searching")
	f.StringVar(&enemyState, "enemy-state", "", "enemy start state (best_response)")
	f.StringVar(&enemyOrder, "enemy-build-order", "", "enemy build order (best_response)")
	f.IntVar(&frameLimit, "frame-limit", 0, "last frame considered")
	f.IntVar(&buckets, "buckets", 0, "time windows (bucket)")
	f.StringToIntVar(&maxActions, "max", nil, "searched types and their caps, e.g. Probe=12,Zealot=6")
	f.DurationVarP(&timeLimit, "time-limit", "t", 0, "search budget (0 = unlimited)")
	f.BoolVar(&pruneDominated, "prune-dominated", false, "skip states a bucket record dominates")
	f.BoolVar(&alwaysMakeWorkers, "always-make-workers", false, "build a worker whenever one is ready")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func printValue(a *app, initial *economy.State, p search.ValueParams, r search.ValueResults) {
	printSection("value " + string(r.Strategy))
	printStat("outcome", string(r.Outcome()))
	printStat("value", humanize.FtoaWithDigits(r.Value, 2))
	printStat("nodes", humanize.Comma(int64(r.Nodes)))
	printStat("elapsed", r.Elapsed.Round(time.Millisecond).String())

	switch r.Strategy {
	case search.StrategyBucket:
		fmt.Println()
		for i, b := range r.Buckets {
			if b.State == nil {
				continue
			}
			fmt.Printf("  \033[90m%6s\033[0m  %8s  %s\n",
				clock(r.BucketFrame(i, p.FrameLimit)), humanize.FtoaWithDigits(b.Value, 2), b.BuildOrder.Compact(a.cat))
		}
	case search.StrategyIntegral:
		printStat("curve points", strconv.Itoa(len(r.Integral)))
	}

	if r.FinalState == nil {
		printWarn("no plan found")
		return
	}
	fmt.Println()
	starts, err := r.BuildOrder.Timeline(initial)
	printTimeline(a.cat, r.BuildOrder, starts)
	if err != nil {
		printWarn(err.Error())
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply plan store migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			if db == nil {
				return errors.New("database is disabled in the config")
			}
			printOK("PostgreSQL connected")
			version, err := db.Migrate(ctx)
			if err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			printOK(fmt.Sprintf("schema at version %d", version))
			return nil
		},
	}
}

func newRunsCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent stored search runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			if db == nil {
				return errors.New("database is disabled in the config")
			}
			runs, err := persist.NewRunRepo(db).Recent(ctx, limit)
			if err != nil {
				return err
			}
			printSection("recent runs")
			for _, r := range runs {
				status := "timed out"
				if r.Solved {
					status = "solved"
				} else if !r.TimedOut {
					status = "finished"
				}
				fmt.Printf("  %s  %-14s %-8s %-9s finish=%-6d nodes=%-12s %s\n",
					r.ID.String()[:8], r.Strategy, r.Race, status, r.FinishFrame,
					humanize.Comma(r.Nodes), humanize.Time(r.CreatedAt))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs")
	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the named start states, goals and build orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			for _, group := range []struct {
				title string
				names []string
			}{
				{"start states", a.scenarios.StateNames()},
				{"goals", a.scenarios.GoalNames()},
				{"build orders", a.scenarios.BuildOrderNames()},
			} {
				printSection(group.title)
				for _, n := range group.names {
					fmt.Printf("  %s\n", n)
				}
			}
			return nil
		},
	}
}
