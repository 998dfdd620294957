package eval

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.uber.org/zap"

	"github.com/bosgo/planner/internal/data"
	"github.com/bosgo/planner/internal/economy"
)

// Env is the environment an expression runs against. Type names are
// matched case-insensitively; an unknown name fails the run.
type Env struct {
	state *economy.State
}

func (e Env) lookup(name string) data.ActionID {
	id, ok := e.state.Catalog().Lookup(name)
	if !ok {
		panic(fmt.Sprintf("unknown type %q", name))
	}
	return id
}

// Total counts units of a type, finished or not.
func (e Env) Total(name string) int { return e.state.NumTotal(e.lookup(name)) }

func (e Env) Completed(name string) int { return e.state.NumCompleted(e.lookup(name)) }

func (e Env) InProgress(name string) int { return e.state.NumInProgress(e.lookup(name)) }

func (e Env) Minerals() int { return e.state.Minerals() }

func (e Env) Gas() int { return e.state.Gas() }

func (e Env) Frame() int { return e.state.Frame() }

func (e Env) Supply() int { return e.state.CurrentSupply() }

func (e Env) MaxSupply() int { return e.state.MaxSupply() }

func (e Env) Workers() int {
	return e.state.NumMineralWorkers() + e.state.NumGasWorkers() + e.state.NumBuildingWorkers()
}

// Army is the total army resource sum.
func (e Env) Army() float64 { return ArmyTotalResourceSum(e.state) }

// Expr is an Evaluator defined by an expression such as
// `Total("Zealot") * 100 + Minerals()`.
type Expr struct {
	src     string
	program *vm.Program
	log     *zap.Logger
}

// NewExpr compiles src. Run time failures are logged and score zero.
func NewExpr(src string, log *zap.Logger) (*Expr, error) {
	if log == nil {
		log = zap.NewNop()
	}
	prog, err := expr.Compile(src, expr.Env(Env{}), expr.AsFloat64())
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", src, err)
	}
	return &Expr{src: src, program: prog, log: log}, nil
}

// Run evaluates the expression against s.
func (x *Expr) Run(s *economy.State) (float64, error) {
	out, err := vm.Run(x.program, Env{state: s})
	if err != nil {
		return 0, fmt.Errorf("run expression %q: %w", x.src, err)
	}
	v, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("run expression %q: result %T is not a number", x.src, out)
	}
	return v, nil
}

func (x *Expr) Evaluate(s *economy.State) float64 {
	v, err := x.Run(s)
	if err != nil {
		x.log.Warn("expression evaluator failed", zap.Error(err))
		return 0
	}
	return v
}

func (x *Expr) String() string { return x.src }
