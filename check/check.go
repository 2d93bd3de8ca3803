package check

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/interleave/engine"
)

// Predicate is a side-effect-free test over a state. An error means the
// predicate could not be evaluated, which is not the same as it being false.
type Predicate func(s *engine.State) (bool, error)

// Assertion is a named predicate.
type Assertion struct {
	Name  string
	Holds Predicate
}

func New(name string, p Predicate) Assertion {
	return Assertion{Name: name, Holds: p}
}

// Failure describes an assertion that evaluated to false. Step is the
// number of operations executed when it was evaluated; for a final
// assertion that is every operation.
type Failure struct {
	Assertion string
	Step      int
	Final     bool
}

func (f *Failure) String() string {
	if f.Final {
		return fmt.Sprintf("assertion %q violated in final state", f.Assertion)
	}
	return fmt.Sprintf("invariant %q violated after step %d", f.Assertion, f.Step)
}

// PredicateError wraps a panic raised while evaluating a predicate.
type PredicateError struct {
	Assertion string
	Panic     interface{}
}

func (e *PredicateError) Error() string {
	return fmt.Sprintf("assertion %q panicked: %v", e.Assertion, e.Panic)
}

// Checker evaluates one final assertion and any number of invariants that
// must hold after every step.
type Checker struct {
	final      Assertion
	invariants []Assertion
}

func NewChecker(final Assertion, invariants ...Assertion) *Checker {
	return &Checker{final: final, invariants: append([]Assertion{}, invariants...)}
}

// Invariants reports whether any per-step invariants are registered.
func (c *Checker) Invariants() bool {
	return len(c.invariants) > 0
}

// Add registers another per-step invariant.
func (c *Checker) Add(inv Assertion) {
	c.invariants = append(c.invariants, inv)
}

// CheckFinal evaluates the final assertion.
func (c *Checker) CheckFinal(s *engine.State) (*Failure, error) {
	ok, err := evaluate(c.final, s)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Failure{Assertion: c.final.Name, Step: s.Steps(), Final: true}, nil
	}
	return nil, nil
}

// CheckStep evaluates every invariant against an intermediate state and
// returns the first one that does not hold.
func (c *Checker) CheckStep(s *engine.State) (*Failure, error) {
	for _, inv := range c.invariants {
		ok, err := evaluate(inv, s)
		if err != nil {
			return nil, err
		}
		if !ok {
			return &Failure{Assertion: inv.Name, Step: s.Steps()}, nil
		}
	}
	return nil, nil
}

func evaluate(a Assertion, s *engine.State) (ok bool, err error) {
	if a.Holds == nil {
		return false, errors.Errorf("assertion %q has no predicate", a.Name)
	}
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, &PredicateError{Assertion: a.Name, Panic: r}
		}
	}()
	ok, err = a.Holds(s)
	if err != nil {
		return false, errors.Wrapf(err, "evaluating %q", a.Name)
	}
	return ok, nil
}
