package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/bosgo/planner/internal/config"
	"github.com/bosgo/planner/internal/core/event"
	"github.com/bosgo/planner/internal/data"
	"github.com/bosgo/planner/internal/economy"
	"github.com/bosgo/planner/internal/eval"
	"github.com/bosgo/planner/internal/metrics"
	"github.com/bosgo/planner/internal/persist"
	"github.com/bosgo/planner/internal/plan"
	"github.com/bosgo/planner/internal/scripting"
)

// app holds what every command needs: config, logger, catalog, scenarios
// and the progress bus.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	cat       *data.Catalog
	scenarios *data.Scenarios
	bus       *event.Bus
	registry  *prometheus.Registry

	closers []func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(config.Path(configPath))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{cfg: cfg, log: log, bus: event.NewBus()}
	a.closers = append(a.closers, func() { _ = log.Sync() })

	if cfg.Data.Catalog != "" {
		a.cat, err = data.LoadCatalog(cfg.Data.Catalog)
	} else {
		a.cat, err = data.DefaultCatalog()
	}
	if err != nil {
		a.close()
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if cfg.Data.Scenarios != "" {
		a.scenarios, err = data.LoadScenarios(cfg.Data.Scenarios)
	} else {
		a.scenarios, err = data.DefaultScenarios()
	}
	if err != nil {
		a.close()
		return nil, fmt.Errorf("scenarios: %w", err)
	}
	log.Debug("catalog loaded", zap.Int("types", a.cat.Len()), zap.Int("races", len(a.cat.Races())))

	a.subscribeProgress()
	if err := a.startMetrics(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) subscribeProgress() {
	event.Subscribe(a.bus, func(e event.SolutionImproved) {
		if e.FinishFrame > 0 {
			a.log.Info("better plan",
				zap.String("strategy", e.Strategy),
				zap.Int("finish_frame", e.FinishFrame),
				zap.Int("length", e.Length),
				zap.String("nodes", humanize.Comma(int64(e.Nodes))),
			)
			return
		}
		a.log.Info("better value",
			zap.String("strategy", e.Strategy),
			zap.Float64("value", e.Value),
			zap.Int("length", e.Length),
		)
	})
}

func (a *app) startMetrics(ctx context.Context) error {
	a.registry = prometheus.NewRegistry()
	collector := metrics.NewSearchCollector()
	if err := collector.Register(a.registry); err != nil {
		return err
	}
	collector.Subscribe(a.bus)
	if !a.cfg.Metrics.Enabled {
		return nil
	}

	mctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := metrics.Serve(mctx, a.cfg.Metrics.Addr, a.registry, a.log); err != nil {
			a.log.Warn("metrics endpoint stopped", zap.Error(err))
		}
	}()
	a.closers = append(a.closers, func() {
		cancel()
		<-done
	})
	return nil
}

// openDB connects to the plan store, or returns nil when it is disabled.
func (a *app) openDB(ctx context.Context) (*persist.DB, error) {
	if !a.cfg.Database.Enabled {
		return nil, nil
	}
	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	db, err := persist.NewDB(cctx, a.cfg.Database, a.log)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	return db, nil
}

func (a *app) state(name string) (*economy.State, error) {
	spec, ok := a.scenarios.State(name)
	if !ok {
		return nil, fmt.Errorf("unknown start state %q", name)
	}
	units, err := spec.UnitTypes(a.cat)
	if err != nil {
		return nil, err
	}
	return economy.NewStateWithUnits(a.cat, units, spec.Minerals, spec.Gas), nil
}

func (a *app) goal(name string) (*plan.Goal, error) {
	spec, ok := a.scenarios.Goal(name)
	if !ok {
		return nil, fmt.Errorf("unknown goal %q", name)
	}
	goal, limit, err := spec.Resolve(a.cat)
	if err != nil {
		return nil, err
	}
	return plan.GoalFromCounts(a.cat, goal, limit), nil
}

func (a *app) buildOrder(name string) (plan.BuildOrder, error) {
	if name == "" {
		return plan.BuildOrder{}, nil
	}
	spec, ok := a.scenarios.BuildOrder(name)
	if !ok {
		return plan.BuildOrder{}, fmt.Errorf("unknown build order %q", name)
	}
	ids, err := spec.Resolve(a.cat)
	if err != nil {
		return plan.BuildOrder{}, err
	}
	return plan.NewBuildOrder(ids...), nil
}

func (a *app) lookupAll(names []string) ([]data.ActionID, error) {
	ids := make([]data.ActionID, 0, len(names))
	for _, n := range names {
		id, ok := a.cat.Lookup(n)
		if !ok {
			return nil, fmt.Errorf("unknown type %q", n)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// evaluator builds the configured state evaluator.
func (a *app) evaluator() (eval.Evaluator, error) {
	switch a.cfg.Value.Evaluator {
	case "army_completed":
		return eval.ArmyCompletedResourceSum, nil
	case "expr":
		x, err := eval.NewExpr(a.cfg.Value.Expression, a.log)
		if err != nil {
			return nil, fmt.Errorf("expr evaluator: %w", err)
		}
		return x, nil
	case "lua":
		engine, err := scripting.NewEngine(a.cfg.Data.Scripts, a.log)
		if err != nil {
			return nil, fmt.Errorf("lua evaluator: %w", err)
		}
		a.closers = append(a.closers, engine.Close)
		if !engine.HasFunction("evaluate_state") {
			return nil, fmt.Errorf("lua evaluator: no evaluate_state in %s", a.cfg.Data.Scripts)
		}
		return engine, nil
	default:
		return eval.ArmyTotalResourceSum, nil
	}
}
