package schedule

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/pkg/errors"
)

// Step schedules the Index-th operation of thread Thread.
type Step struct {
	Thread int
	Index  int
}

func (s Step) String() string {
	return fmt.Sprintf("t%d.%d", s.Thread, s.Index)
}

// Interleaving is a total order over the operations of all threads.
type Interleaving []Step

func (il Interleaving) String() string {
	ss := []string{}
	for _, s := range il {
		ss = append(ss, s.String())
	}
	return fmt.Sprintf("<<%s>>", strings.Join(ss, ", "))
}

// Threads returns the sequence of thread ids, which identifies the
// interleaving uniquely given program order.
func (il Interleaving) Threads() []int {
	res := make([]int, len(il))
	for i, s := range il {
		res[i] = s.Thread
	}
	return res
}

// Validate checks that il is a complete shuffle of threads with the given
// operation counts that respects each thread's program order.
func (il Interleaving) Validate(lengths []int) error {
	pcs := make([]int, len(lengths))
	total := 0
	for _, n := range lengths {
		if n > 0 {
			total += n
		}
	}
	for i, s := range il {
		if s.Thread < 0 || s.Thread >= len(lengths) {
			return errors.Errorf("step %d: thread %d out of range [0, %d)", i, s.Thread, len(lengths))
		}
		if s.Index < 0 || s.Index >= lengths[s.Thread] {
			return errors.Errorf("step %d: operation %d of thread %d out of range [0, %d)",
				i, s.Index, s.Thread, lengths[s.Thread])
		}
		if s.Index != pcs[s.Thread] {
			return errors.Errorf("step %d: thread %d runs operation %d before operation %d",
				i, s.Thread, s.Index, pcs[s.Thread])
		}
		pcs[s.Thread]++
	}
	if len(il) != total {
		return errors.Errorf("interleaving has %d steps, threads have %d operations", len(il), total)
	}
	return nil
}

// Count returns the number of distinct interleavings of threads with the
// given operation counts, (n1+...+nk)! / (n1!...nk!). Negative counts are
// treated as empty threads. ok is false if the count cannot be computed in
// 64 bits.
func Count(lengths []int) (count uint64, ok bool) {
	count = 1
	placed := 0
	for _, n := range lengths {
		if n < 0 {
			continue
		}
		// multiply by C(placed+n, n), one factor at a time so every
		// intermediate value is itself a binomial coefficient
		c := uint64(1)
		for k := 1; k <= n; k++ {
			hi, lo := bits.Mul64(c, uint64(placed+k))
			if hi != 0 {
				return 0, false
			}
			c = lo / uint64(k)
		}
		hi, lo := bits.Mul64(count, c)
		if hi != 0 {
			return 0, false
		}
		count = lo
		placed += n
	}
	return count, true
}
