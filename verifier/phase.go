package verifier

import "fmt"

// Phase is the driver's position in its state machine:
// Init -> Enumerating -> (Executing -> Checking)* -> Proven | Violated | Inconclusive | Failed
type Phase int

const (
	Init Phase = iota
	Enumerating
	Executing
	Checking
	Proven
	Violated
	Inconclusive
	Failed
)

func (p Phase) String() string {
	switch p {
	case Init:
		return "Init"
	case Enumerating:
		return "Enumerating"
	case Executing:
		return "Executing"
	case Checking:
		return "Checking"
	case Proven:
		return "Proven"
	case Violated:
		return "Violated"
	case Inconclusive:
		return "Inconclusive"
	case Failed:
		return "Failed"
	default:
		panic(fmt.Sprintf("invalid phase %d", p))
	}
}

// Terminal reports whether the phase ends a run.
func (p Phase) Terminal() bool {
	switch p {
	case Proven, Violated, Inconclusive, Failed:
		return true
	default:
		return false
	}
}
