package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/bosgo/planner/internal/data"
	"github.com/bosgo/planner/internal/economy"
)

// Engine wraps a single gopher-lua VM for scripted state evaluation.
// Single-goroutine access only: value searches run on one goroutine.
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the given directory.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}

	// Helpers first so evaluators can call them at load time.
	for _, sub := range []string{"core", "eval"} {
		p := filepath.Join(scriptsDir, sub)
		if err := e.loadDir(p); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}
	if err := e.loadDir(scriptsDir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load scripts: %w", err)
	}

	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// HasFunction reports whether a global Lua function is defined.
func (e *Engine) HasFunction(name string) bool {
	_, ok := e.vm.GetGlobal(name).(*lua.LFunction)
	return ok
}

// stateTable packs a state for Lua:
//
//	{frame, minerals, gas, supply, max_supply,
//	 workers = {minerals, gas, building},
//	 units = {[name] = {total, completed, in_progress}}}
//
// Supply is in the catalog's doubled units.
func (e *Engine) stateTable(s *economy.State) *lua.LTable {
	t := e.vm.NewTable()
	t.RawSetString("frame", lua.LNumber(s.Frame()))
	t.RawSetString("minerals", lua.LNumber(s.Minerals()))
	t.RawSetString("gas", lua.LNumber(s.Gas()))
	t.RawSetString("supply", lua.LNumber(s.CurrentSupply()))
	t.RawSetString("max_supply", lua.LNumber(s.MaxSupply()))

	w := e.vm.NewTable()
	w.RawSetString("minerals", lua.LNumber(s.NumMineralWorkers()))
	w.RawSetString("gas", lua.LNumber(s.NumGasWorkers()))
	w.RawSetString("building", lua.LNumber(s.NumBuildingWorkers()))
	t.RawSetString("workers", w)

	units := e.vm.NewTable()
	cat := s.Catalog()
	if s.Race() != data.NoRace {
		for _, id := range cat.TypesOf(s.Race()) {
			total := s.NumTotal(id)
			if total == 0 {
				continue
			}
			inProgress := s.NumInProgress(id)
			u := e.vm.NewTable()
			u.RawSetString("total", lua.LNumber(total))
			u.RawSetString("completed", lua.LNumber(total-inProgress))
			u.RawSetString("in_progress", lua.LNumber(inProgress))
			tt := cat.Type(id)
			u.RawSetString("mineral_cost", lua.LNumber(tt.MineralCost))
			u.RawSetString("gas_cost", lua.LNumber(tt.GasCost))
			u.RawSetString("army", lua.LBool(!tt.IsBuilding && !tt.IsWorker && !tt.IsSupplyProvider && !tt.IsToken))
			units.RawSetString(tt.Name, u)
		}
	}
	t.RawSetString("units", units)
	return t
}

// EvaluateState calls the Lua evaluate_state function. It returns an error
// when the function is missing, fails, or returns a non-number.
func (e *Engine) EvaluateState(s *economy.State) (float64, error) {
	fn := e.vm.GetGlobal("evaluate_state")
	if fn == lua.LNil {
		return 0, fmt.Errorf("lua function evaluate_state not found")
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, e.stateTable(s)); err != nil {
		return 0, fmt.Errorf("call evaluate_state: %w", err)
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	n, ok := result.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("evaluate_state returned %s, want number", result.Type())
	}
	return float64(n), nil
}

// Evaluate implements eval.Evaluator. Script failures are logged and score
// zero.
func (e *Engine) Evaluate(s *economy.State) float64 {
	v, err := e.EvaluateState(s)
	if err != nil {
		e.log.Error("lua evaluate_state error", zap.Error(err))
		return 0
	}
	return v
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
