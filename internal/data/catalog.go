package data

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// ActionID indexes an entity type inside a Catalog. Zero is the reserved
// "None" entry.
type ActionID int

// None is the null entity type.
const None ActionID = 0

// RaceID indexes a race inside a Catalog.
type RaceID int

// NoRace marks a state that has not adopted a race yet.
const NoRace RaceID = -1

// Labor describes what happens to a worker that constructs a building.
type Labor int

const (
	LaborOccupied Labor = iota // busy for the build time, back to minerals afterwards
	LaborConsumed              // morphs into the building
	LaborFree                  // starts the building and walks away
)

func (l Labor) String() string {
	switch l {
	case LaborOccupied:
		return "occupied"
	case LaborConsumed:
		return "consumed"
	case LaborFree:
		return "free"
	}
	return fmt.Sprintf("labor(%d)", int(l))
}

// Economy holds the constants of the resource model. Resources are tracked
// multiplied by ResourceScale; MineralRate and GasRate are scaled income per
// worker per frame.
type Economy struct {
	ResourceScale      int `yaml:"resource_scale"`
	MineralRate        int `yaml:"mineral_rate"`
	GasRate            int `yaml:"gas_rate"`
	WorkersPerRefinery int `yaml:"workers_per_refinery"`
	SupplyCap          int `yaml:"supply_cap"`
	TokenInterval      int `yaml:"token_interval"`
	MaxTokens          int `yaml:"max_tokens"`
}

// Race groups the per-race special types.
type Race struct {
	ID             RaceID
	Name           string
	Worker         ActionID
	SupplyProvider ActionID
	Refinery       ActionID
	Depot          ActionID
	Token          ActionID // None when the race has no production tokens
	Labor          Labor
}

// EntityType is the immutable description of one buildable thing.
type EntityType struct {
	ID             ActionID
	Name           string
	Race           RaceID
	MineralCost    int
	GasCost        int
	EnergyCost     int
	SupplyCost     int // already multiplied by NumProduced
	SupplyProvided int
	BuildTime      int
	NumProduced    int

	Producer      ActionID
	ProducerCount int
	ProducerAddon ActionID
	Morphed       bool

	Required   []ActionID
	Equivalent []ActionID // types that satisfy a requirement naming this type
	BuildLimit int        // -1 = unlimited

	IsUnit           bool
	IsUpgrade        bool
	IsAbility        bool
	IsBuilding       bool
	IsWorker         bool
	IsRefinery       bool
	IsSupplyProvider bool
	IsDepot          bool
	IsAddon          bool
	IsTech           bool
	IsToken          bool
	SpawnsTokens     bool
}

type typeEntry struct {
	Name           string   `yaml:"name"`
	Race           string   `yaml:"race"`
	MineralCost    int      `yaml:"mineral_cost"`
	GasCost        int      `yaml:"gas_cost"`
	EnergyCost     int      `yaml:"energy_cost"`
	SupplyCost     int      `yaml:"supply_cost"`
	SupplyProvided int      `yaml:"supply_provided"`
	BuildTime      int      `yaml:"build_time"`
	NumProduced    int      `yaml:"num_produced"`
	Producer       string   `yaml:"producer"`
	ProducerCount  int      `yaml:"producer_count"`
	Production     string   `yaml:"production"` // "build" (default) or "morph"
	RequiredAddon  string   `yaml:"required_addon"`
	Required       []string `yaml:"required"`
	Equivalent     []string `yaml:"equivalent"`
	BuildLimit     *int     `yaml:"build_limit"`
	Flags          []string `yaml:"flags"`
}

type raceEntry struct {
	Name           string `yaml:"name"`
	Worker         string `yaml:"worker"`
	SupplyProvider string `yaml:"supply_provider"`
	Refinery       string `yaml:"refinery"`
	Depot          string `yaml:"resource_depot"`
	Token          string `yaml:"token"`
	Labor          string `yaml:"labor"`
}

type catalogFile struct {
	Economy Economy     `yaml:"economy"`
	Races   []raceEntry `yaml:"races"`
	Types   []typeEntry `yaml:"types"`
}

// Catalog is the static entity table. It is built once and shared read-only
// by every state and search.
type Catalog struct {
	types      []EntityType
	byName     map[string]ActionID
	folded     map[string]ActionID
	races      []Race
	raceByName map[string]RaceID
	economy    Economy
	prereqs    []TypeSet
	closure    []TypeSet
}

//go:embed defaults/entities.yaml
var defaultCatalog []byte

// DefaultCatalog parses the catalog shipped with the module.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog loads the entity catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := ParseCatalog(raw)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog builds a catalog from YAML. Names are resolved to ids in a
// second pass so records may reference types declared later in the file.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := validateEconomy(f.Economy); err != nil {
		return nil, err
	}

	c := &Catalog{
		types:      make([]EntityType, 1, len(f.Types)+1),
		byName:     make(map[string]ActionID, len(f.Types)+1),
		folded:     make(map[string]ActionID, len(f.Types)+1),
		raceByName: make(map[string]RaceID, len(f.Races)),
		economy:    f.Economy,
	}
	c.types[0] = EntityType{ID: None, Name: "None", Race: NoRace, BuildLimit: -1}
	c.byName["None"] = None

	for i, r := range f.Races {
		if r.Name == "" {
			return nil, fmt.Errorf("race #%d: missing name", i)
		}
		if _, dup := c.raceByName[r.Name]; dup {
			return nil, fmt.Errorf("race %q: declared twice", r.Name)
		}
		c.raceByName[r.Name] = RaceID(i)
	}

	// First pass: register names.
	for i := range f.Types {
		e := &f.Types[i]
		if e.Name == "" {
			return nil, fmt.Errorf("type #%d: missing name", i)
		}
		if _, dup := c.byName[e.Name]; dup {
			return nil, fmt.Errorf("type %q: declared twice", e.Name)
		}
		id := ActionID(len(c.types))
		c.byName[e.Name] = id
		c.folded[fold(e.Name)] = id
		c.types = append(c.types, EntityType{ID: id, Name: e.Name})
	}

	// Second pass: resolve references.
	for i := range f.Types {
		if err := c.resolveType(&f.Types[i]); err != nil {
			return nil, err
		}
	}
	for i := range f.Races {
		race, err := c.resolveRace(RaceID(i), &f.Races[i])
		if err != nil {
			return nil, err
		}
		c.races = append(c.races, race)
	}

	c.buildPrerequisites()
	return c, nil
}

func validateEconomy(e Economy) error {
	checks := []struct {
		name string
		v    int
	}{
		{"resource_scale", e.ResourceScale},
		{"mineral_rate", e.MineralRate},
		{"gas_rate", e.GasRate},
		{"workers_per_refinery", e.WorkersPerRefinery},
		{"supply_cap", e.SupplyCap},
		{"token_interval", e.TokenInterval},
		{"max_tokens", e.MaxTokens},
	}
	for _, ch := range checks {
		if ch.v <= 0 {
			return fmt.Errorf("economy: %s must be positive, got %d", ch.name, ch.v)
		}
	}
	return nil
}

func (c *Catalog) resolveType(e *typeEntry) error {
	t := &c.types[c.byName[e.Name]]

	race, ok := c.raceByName[e.Race]
	if !ok {
		return fmt.Errorf("type %q: unknown race %q", e.Name, e.Race)
	}
	t.Race = race

	for _, v := range []struct {
		field string
		n     int
	}{
		{"mineral_cost", e.MineralCost}, {"gas_cost", e.GasCost}, {"energy_cost", e.EnergyCost},
		{"supply_cost", e.SupplyCost}, {"supply_provided", e.SupplyProvided}, {"build_time", e.BuildTime},
	} {
		if v.n < 0 {
			return fmt.Errorf("type %q: %s must not be negative", e.Name, v.field)
		}
	}
	t.MineralCost = e.MineralCost
	t.GasCost = e.GasCost
	t.EnergyCost = e.EnergyCost
	t.SupplyProvided = e.SupplyProvided
	t.BuildTime = e.BuildTime
	t.NumProduced = e.NumProduced
	if t.NumProduced <= 0 {
		t.NumProduced = 1
	}
	t.SupplyCost = e.SupplyCost * t.NumProduced

	var err error
	if t.Producer, err = c.resolveName(e.Name, "producer", e.Producer); err != nil {
		return err
	}
	if t.ProducerAddon, err = c.resolveName(e.Name, "required_addon", e.RequiredAddon); err != nil {
		return err
	}
	t.ProducerCount = e.ProducerCount
	if t.ProducerCount <= 0 {
		t.ProducerCount = 1
	}
	switch e.Production {
	case "", "build":
	case "morph":
		if t.Producer == None {
			return fmt.Errorf("type %q: morph needs a producer", e.Name)
		}
		t.Morphed = true
	default:
		return fmt.Errorf("type %q: unknown production %q", e.Name, e.Production)
	}

	for _, n := range e.Required {
		id, err := c.resolveName(e.Name, "required", n)
		if err != nil {
			return err
		}
		if id != None {
			t.Required = append(t.Required, id)
		}
	}
	for _, n := range e.Equivalent {
		id, err := c.resolveName(e.Name, "equivalent", n)
		if err != nil {
			return err
		}
		if id != None {
			t.Equivalent = append(t.Equivalent, id)
		}
	}

	for _, flag := range e.Flags {
		if err := setFlag(t, flag); err != nil {
			return fmt.Errorf("type %q: %w", e.Name, err)
		}
	}

	switch {
	case e.BuildLimit != nil:
		t.BuildLimit = *e.BuildLimit
	case t.IsTech:
		t.BuildLimit = 1
	default:
		t.BuildLimit = -1
	}
	return nil
}

func setFlag(t *EntityType, flag string) error {
	switch flag {
	case "unit":
		t.IsUnit = true
	case "upgrade":
		t.IsUpgrade = true
	case "ability":
		t.IsAbility = true
	case "building":
		t.IsBuilding = true
	case "worker":
		t.IsWorker = true
	case "refinery":
		t.IsRefinery = true
	case "supply_provider":
		t.IsSupplyProvider = true
	case "resource_depot":
		t.IsDepot = true
	case "addon":
		t.IsAddon = true
	case "tech":
		t.IsTech = true
	case "token":
		t.IsToken = true
	case "spawns_tokens":
		t.SpawnsTokens = true
	default:
		return fmt.Errorf("unknown flag %q", flag)
	}
	return nil
}

func (c *Catalog) resolveName(owner, field, name string) (ActionID, error) {
	if name == "" {
		return None, nil
	}
	id, ok := c.byName[name]
	if !ok {
		return None, fmt.Errorf("type %q: %s names unknown type %q", owner, field, name)
	}
	return id, nil
}

func (c *Catalog) resolveRace(id RaceID, e *raceEntry) (Race, error) {
	r := Race{ID: id, Name: e.Name}
	lookups := []struct {
		field string
		name  string
		dst   *ActionID
		check func(*EntityType) bool
		need  bool
	}{
		{"worker", e.Worker, &r.Worker, func(t *EntityType) bool { return t.IsWorker }, true},
		{"supply_provider", e.SupplyProvider, &r.SupplyProvider, func(t *EntityType) bool { return t.IsSupplyProvider }, true},
		{"refinery", e.Refinery, &r.Refinery, func(t *EntityType) bool { return t.IsRefinery }, true},
		{"resource_depot", e.Depot, &r.Depot, func(t *EntityType) bool { return t.IsDepot }, true},
		{"token", e.Token, &r.Token, func(t *EntityType) bool { return t.IsToken }, false},
	}
	for _, l := range lookups {
		if l.name == "" {
			if l.need {
				return r, fmt.Errorf("race %q: missing %s", e.Name, l.field)
			}
			continue
		}
		tid, ok := c.byName[l.name]
		if !ok {
			return r, fmt.Errorf("race %q: %s names unknown type %q", e.Name, l.field, l.name)
		}
		t := &c.types[tid]
		if t.Race != id {
			return r, fmt.Errorf("race %q: %s %q belongs to another race", e.Name, l.field, l.name)
		}
		if !l.check(t) {
			return r, fmt.Errorf("race %q: %s %q lacks the %s flag", e.Name, l.field, l.name, l.field)
		}
		*l.dst = tid
	}

	switch e.Labor {
	case "", "occupied":
		r.Labor = LaborOccupied
	case "consumed":
		r.Labor = LaborConsumed
	case "free":
		r.Labor = LaborFree
	default:
		return r, fmt.Errorf("race %q: unknown labor %q", e.Name, e.Labor)
	}
	return r, nil
}

// buildPrerequisites caches the direct prerequisite set of every type and
// its transitive closure. A closure that needs gas also pulls in the race
// refinery.
func (c *Catalog) buildPrerequisites() {
	c.prereqs = make([]TypeSet, len(c.types))
	c.closure = make([]TypeSet, len(c.types))
	for i := 1; i < len(c.types); i++ {
		t := &c.types[i]
		var s TypeSet
		if t.Producer != None {
			s.Add(t.Producer)
		}
		if t.ProducerAddon != None {
			s.Add(t.ProducerAddon)
		}
		for _, r := range t.Required {
			s.Add(r)
		}
		c.prereqs[i] = s
	}
	for i := 1; i < len(c.types); i++ {
		c.closure[i] = c.walkPrerequisites(ActionID(i))
	}
}

func (c *Catalog) walkPrerequisites(id ActionID) TypeSet {
	var out TypeSet
	queue := c.prereqs[id].Slice()
	needsGas := c.types[id].GasCost > 0
	refineryQueued := false
	for {
		if len(queue) == 0 {
			if !needsGas || refineryQueued {
				return out
			}
			refineryQueued = true
			queue = append(queue, c.races[c.types[id].Race].Refinery)
		}
		next := queue[0]
		queue = queue[1:]
		if next == id || out.Contains(next) {
			continue
		}
		out.Add(next)
		needsGas = needsGas || c.types[next].GasCost > 0
		queue = append(queue, c.prereqs[next].ids...)
	}
}

// Type returns the entity type with the given id. An id outside the
// catalog is a programming error.
func (c *Catalog) Type(id ActionID) *EntityType {
	if id < 0 || int(id) >= len(c.types) {
		panic(fmt.Sprintf("data: action id %d outside catalog of %d types", id, len(c.types)))
	}
	return &c.types[id]
}

// Name returns the type name for id.
func (c *Catalog) Name(id ActionID) string { return c.Type(id).Name }

// Names maps ids to names.
func (c *Catalog) Names(ids []ActionID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = c.Name(id)
	}
	return out
}

// Lookup resolves a type name. Exact matches win; otherwise the name is
// compared case-insensitively.
func (c *Catalog) Lookup(name string) (ActionID, bool) {
	if id, ok := c.byName[name]; ok {
		return id, true
	}
	id, ok := c.folded[fold(name)]
	return id, ok
}

// MustLookup is Lookup for names known to exist.
func (c *Catalog) MustLookup(name string) ActionID {
	id, ok := c.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("data: unknown type %q", name))
	}
	return id
}

// Len returns the number of ids including the None entry.
func (c *Catalog) Len() int { return len(c.types) }

// TypesOf returns every type of the given race in catalog order.
func (c *Catalog) TypesOf(race RaceID) []ActionID {
	var out []ActionID
	for i := 1; i < len(c.types); i++ {
		if c.types[i].Race == race {
			out = append(out, ActionID(i))
		}
	}
	return out
}

func (c *Catalog) Economy() Economy { return c.economy }

// Race returns the race record for id.
func (c *Catalog) Race(id RaceID) *Race {
	if id < 0 || int(id) >= len(c.races) {
		panic(fmt.Sprintf("data: race id %d outside catalog", id))
	}
	return &c.races[id]
}

// RaceOf returns the race record of a type.
func (c *Catalog) RaceOf(id ActionID) *Race { return c.Race(c.Type(id).Race) }

// RaceByName resolves a race name case-insensitively.
func (c *Catalog) RaceByName(name string) (RaceID, bool) {
	if id, ok := c.raceByName[name]; ok {
		return id, true
	}
	for n, id := range c.raceByName {
		if fold(n) == fold(name) {
			return id, true
		}
	}
	return NoRace, false
}

func (c *Catalog) Races() []Race { return c.races }

// Satisfies reports whether an instance of have meets a requirement for
// want: either it is want, or want lists it as an equivalent. The relation
// is not symmetric.
func (c *Catalog) Satisfies(have, want ActionID) bool {
	if have == want {
		return true
	}
	for _, e := range c.Type(want).Equivalent {
		if e == have {
			return true
		}
	}
	return false
}

// Prerequisites returns the producer, required addon and required types of
// id. The returned set is shared and must not be modified.
func (c *Catalog) Prerequisites(id ActionID) TypeSet {
	c.Type(id)
	return c.prereqs[id]
}

// RecursivePrerequisites returns the transitive prerequisite closure of id.
// The returned set is shared and must not be modified.
func (c *Catalog) RecursivePrerequisites(id ActionID) TypeSet {
	c.Type(id)
	return c.closure[id]
}

// IsProducerOfAny reports whether id produces at least one other type.
func (c *Catalog) IsProducerOfAny(id ActionID) bool {
	for i := 1; i < len(c.types); i++ {
		if c.types[i].Producer == id {
			return true
		}
	}
	return false
}

func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
