package data

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// UnitSpec places Count units of Type in a starting state.
type UnitSpec struct {
	Type  string `yaml:"type"`
	Count int    `yaml:"count"`
}

// StateSpec describes a named starting economy.
type StateSpec struct {
	Name     string     `yaml:"name"`
	Minerals int        `yaml:"minerals"`
	Gas      int        `yaml:"gas"`
	Units    []UnitSpec `yaml:"units"`
}

// BuildOrderSpec is a named action list.
type BuildOrderSpec struct {
	Name    string   `yaml:"name"`
	Actions []string `yaml:"actions"`
}

// GoalSpec is a named goal with optional per-type maxima.
type GoalSpec struct {
	Name string         `yaml:"name"`
	Goal map[string]int `yaml:"goal"`
	Max  map[string]int `yaml:"max"`
}

type scenarioFile struct {
	States      []StateSpec      `yaml:"states"`
	BuildOrders []BuildOrderSpec `yaml:"build_orders"`
	Goals       []GoalSpec       `yaml:"goals"`
}

// Scenarios indexes the named states, build orders and goals of a scenario file.
type Scenarios struct {
	states      map[string]*StateSpec
	buildOrders map[string]*BuildOrderSpec
	goals       map[string]*GoalSpec
}

//go:embed defaults/scenarios.yaml
var defaultScenarios []byte

// DefaultScenarios parses the scenario file shipped with the module.
func DefaultScenarios() (*Scenarios, error) {
	return ParseScenarios(defaultScenarios)
}

// LoadScenarios loads a scenario file from disk.
func LoadScenarios(path string) (*Scenarios, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenarios %s: %w", path, err)
	}
	s, err := ParseScenarios(raw)
	if err != nil {
		return nil, fmt.Errorf("scenarios %s: %w", path, err)
	}
	return s, nil
}

func ParseScenarios(raw []byte) (*Scenarios, error) {
	var f scenarioFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse scenarios: %w", err)
	}
	s := &Scenarios{
		states:      make(map[string]*StateSpec, len(f.States)),
		buildOrders: make(map[string]*BuildOrderSpec, len(f.BuildOrders)),
		goals:       make(map[string]*GoalSpec, len(f.Goals)),
	}
	for i := range f.States {
		e := &f.States[i]
		if _, dup := s.states[e.Name]; dup || e.Name == "" {
			return nil, fmt.Errorf("state %q: missing or duplicate name", e.Name)
		}
		s.states[e.Name] = e
	}
	for i := range f.BuildOrders {
		e := &f.BuildOrders[i]
		if _, dup := s.buildOrders[e.Name]; dup || e.Name == "" {
			return nil, fmt.Errorf("build order %q: missing or duplicate name", e.Name)
		}
		s.buildOrders[e.Name] = e
	}
	for i := range f.Goals {
		e := &f.Goals[i]
		if _, dup := s.goals[e.Name]; dup || e.Name == "" {
			return nil, fmt.Errorf("goal %q: missing or duplicate name", e.Name)
		}
		s.goals[e.Name] = e
	}
	return s, nil
}

func (s *Scenarios) State(name string) (*StateSpec, bool) {
	e, ok := s.states[name]
	return e, ok
}

func (s *Scenarios) BuildOrder(name string) (*BuildOrderSpec, bool) {
	e, ok := s.buildOrders[name]
	return e, ok
}

func (s *Scenarios) Goal(name string) (*GoalSpec, bool) {
	e, ok := s.goals[name]
	return e, ok
}

// StateNames lists the state names in sorted order.
func (s *Scenarios) StateNames() []string { return sortedKeys(s.states) }

func (s *Scenarios) BuildOrderNames() []string { return sortedKeys(s.buildOrders) }

func (s *Scenarios) GoalNames() []string { return sortedKeys(s.goals) }

func sortedKeys[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// UnitTypes expands the unit list into one id per placed unit.
func (e *StateSpec) UnitTypes(c *Catalog) ([]ActionID, error) {
	var out []ActionID
	for _, u := range e.Units {
		id, ok := c.Lookup(u.Type)
		if !ok {
			return nil, fmt.Errorf("state %q: unknown type %q", e.Name, u.Type)
		}
		n := u.Count
		if n <= 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			out = append(out, id)
		}
	}
	return out, nil
}

// Resolve maps the action names to ids.
func (e *BuildOrderSpec) Resolve(c *Catalog) ([]ActionID, error) {
	out := make([]ActionID, 0, len(e.Actions))
	for _, n := range e.Actions {
		id, ok := c.Lookup(n)
		if !ok {
			return nil, fmt.Errorf("build order %q: unknown type %q", e.Name, n)
		}
		out = append(out, id)
	}
	return out, nil
}

// Resolve maps the goal and maximum counts to ids.
func (e *GoalSpec) Resolve(c *Catalog) (goal, limit map[ActionID]int, err error) {
	goal, err = resolveCounts(c, e.Name, e.Goal)
	if err != nil {
		return nil, nil, err
	}
	limit, err = resolveCounts(c, e.Name, e.Max)
	if err != nil {
		return nil, nil, err
	}
	return goal, limit, nil
}

func resolveCounts(c *Catalog, owner string, in map[string]int) (map[ActionID]int, error) {
	out := make(map[ActionID]int, len(in))
	for n, v := range in {
		id, ok := c.Lookup(n)
		if !ok {
			return nil, fmt.Errorf("goal %q: unknown type %q", owner, n)
		}
		if v < 0 {
			return nil, fmt.Errorf("goal %q: negative count for %q", owner, n)
		}
		out[id] = v
	}
	return out, nil
}
