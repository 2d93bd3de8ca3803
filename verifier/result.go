package verifier

import (
	"fmt"
	"strings"

	"github.com/vadiminshakov/interleave/check"
	"github.com/vadiminshakov/interleave/engine"
	"github.com/vadiminshakov/interleave/schedule"
)

// Outcome of a verification run. The zero value is not a valid outcome, so
// an unset result is never mistaken for a proof.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeProven
	OutcomeViolated
	OutcomeInconclusive
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnknown:
		return "unknown"
	case OutcomeProven:
		return "proven"
	case OutcomeViolated:
		return "violated"
	case OutcomeInconclusive:
		return "inconclusive"
	default:
		panic(fmt.Sprintf("invalid outcome %d", o))
	}
}

// Result is returned by Run. Only OutcomeProven means every interleaving
// satisfied the assertion.
type Result struct {
	Outcome Outcome
	// Explored is the number of interleavings that passed every check.
	Explored uint64
	// Total is the unpruned number of interleavings, valid if TotalKnown.
	Total      uint64
	TotalKnown bool
	Pruned     bool
	// Reason explains an inconclusive outcome.
	Reason         string
	Counterexample *Counterexample
}

func (r *Result) Proven() bool {
	return r != nil && r.Outcome == OutcomeProven
}

func (r *Result) String() string {
	switch r.Outcome {
	case OutcomeViolated:
		return fmt.Sprintf("violated after %d interleavings: %s", r.Explored, r.Counterexample.Failure.String())
	case OutcomeInconclusive:
		return fmt.Sprintf("inconclusive after %d interleavings: %s", r.Explored, r.Reason)
	default:
		return fmt.Sprintf("%s after %d interleavings", r.Outcome, r.Explored)
	}
}

// Counterexample is the first failing interleaving in enumeration order.
type Counterexample struct {
	// Index is the zero-based position of Schedule in enumeration order.
	Index    uint64
	Schedule schedule.Interleaving
	State    *engine.State
	Failure  check.Failure
}

func (c *Counterexample) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", c.Failure.String())
	fmt.Fprintf(&b, "interleaving #%d %s\n", c.Index, c.Schedule)
	for i, ev := range c.State.Trace() {
		fmt.Fprintf(&b, "%3d  %s\n", i, ev)
	}
	fmt.Fprintf(&b, "state %s", c.State)
	return b.String()
}
