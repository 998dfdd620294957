package event

import "time"

// Outcome is how a search run ended.
type Outcome string

const (
	OutcomeSolved   Outcome = "solved"    // searched to the end, result is optimal
	OutcomeTimedOut Outcome = "timed_out" // budget ran out, result is the best so far
	OutcomeNoPlan   Outcome = "no_plan"   // searched to the end without a plan
	OutcomeCanceled Outcome = "canceled"
)

// SolutionImproved is emitted whenever a search finds a better plan.
// FinishFrame is set by goal searches, Value by value searches.
type SolutionImproved struct {
	Strategy    string
	FinishFrame int
	Value       float64
	Length      int
	Nodes       uint64
	Elapsed     time.Duration
}

// SearchFinished is emitted once when a search call returns.
type SearchFinished struct {
	Strategy    string
	Outcome     Outcome
	FinishFrame int
	Value       float64
	Length      int
	Nodes       uint64
	Elapsed     time.Duration
}
