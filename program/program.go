package program

import (
	"fmt"
	"strings"

	"github.com/vadiminshakov/interleave/cell"
)

// Operation is one atomic operation issued by a thread against a single cell.
// Operations are values; the builder methods return modified copies.
type Operation struct {
	Cell   cell.ID
	Access cell.Access
	name   string

	// thread-local operands: when set, the binding of that name is added
	// to Access.Arg (resp. Access.Expected) at replay time
	argRef string
	expRef string
}

func Read(c cell.ID) Operation {
	return Operation{Cell: c, Access: cell.Access{Kind: cell.Read}}
}

func Write(c cell.ID, value uint64) Operation {
	return Operation{Cell: c, Access: cell.Access{Kind: cell.Write, Arg: value}}
}

// FetchAdd adds delta and binds the value observed before the addition.
// Negative deltas are expressed in two's complement and wrap at the cell width.
func FetchAdd(c cell.ID, delta uint64) Operation {
	return Operation{Cell: c, Access: cell.Access{Kind: cell.FetchAdd, Arg: delta}}
}

// CompareAndSwap stores desired if the cell holds expected. The pre-swap value
// is bound either way.
func CompareAndSwap(c cell.ID, expected, desired uint64) Operation {
	return Operation{Cell: c, Access: cell.Access{Kind: cell.CompareAndSwap, Arg: desired, Expected: expected}}
}

// WriteFrom stores the value bound to ref plus add, e.g. the second half of
// a non-atomic increment.
func WriteFrom(c cell.ID, ref string, add uint64) Operation {
	o := Write(c, add)
	o.argRef = ref
	return o
}

// CompareAndSwapFrom expects the value bound to ref and replaces it with
// that value plus add.
func CompareAndSwapFrom(c cell.ID, ref string, add uint64) Operation {
	o := CompareAndSwap(c, 0, add)
	o.argRef, o.expRef = ref, ref
	return o
}

// Refs returns the bindings the operation's operands depend on.
func (o Operation) Refs() []string {
	refs := []string{}
	if o.argRef != "" {
		refs = append(refs, o.argRef)
	}
	if o.expRef != "" && o.expRef != o.argRef {
		refs = append(refs, o.expRef)
	}
	return refs
}

// Resolve returns the concrete access, reading thread-local operands
// through lookup.
func (o Operation) Resolve(lookup func(name string) (uint64, error)) (cell.Access, error) {
	a := o.Access
	if o.argRef != "" {
		v, err := lookup(o.argRef)
		if err != nil {
			return cell.Access{}, err
		}
		a.Arg += v
	}
	if o.expRef != "" {
		v, err := lookup(o.expRef)
		if err != nil {
			return cell.Access{}, err
		}
		a.Expected += v
	}
	return a, nil
}

// As names the value this operation returns to its thread, so assertions
// can refer to it by name instead of by index.
func (o Operation) As(name string) Operation {
	o.name = name
	return o
}

// Name returns the binding name set with As, if any.
func (o Operation) Name() string {
	return o.name
}

func (o Operation) Kind() cell.Kind {
	return o.Access.Kind
}

// Binds reports whether the operation returns a value to its thread.
// Writes return nothing.
func (o Operation) Binds() bool {
	return o.Access.Kind != cell.Write
}

func (o Operation) String() string {
	var s string
	arg := operand(o.argRef, o.Access.Arg)
	switch o.Access.Kind {
	case cell.Read:
		s = fmt.Sprintf("read(c%d)", o.Cell)
	case cell.Write:
		s = fmt.Sprintf("write(c%d, %s)", o.Cell, arg)
	case cell.FetchAdd:
		s = fmt.Sprintf("fetch_add(c%d, %s)", o.Cell, arg)
	case cell.CompareAndSwap:
		s = fmt.Sprintf("cas(c%d, %s, %s)", o.Cell, operand(o.expRef, o.Access.Expected), arg)
	default:
		panic(fmt.Sprintf("invalid operation kind %d", o.Access.Kind))
	}
	if o.name != "" {
		s = o.name + " = " + s
	}
	return s
}

func operand(ref string, v uint64) string {
	switch {
	case ref == "":
		return fmt.Sprintf("%d", v)
	case v == 0:
		return ref
	default:
		return fmt.Sprintf("%s+%d", ref, v)
	}
}

// Thread is the program of one logical thread: an ordered, finite sequence
// of operations. ID is the thread's position in the set under verification.
type Thread struct {
	ID   int
	Name string
	Ops  []Operation
}

// NewThread builds a thread program. The operations are copied.
func NewThread(id int, name string, ops ...Operation) *Thread {
	if name == "" {
		name = fmt.Sprintf("t%d", id)
	}
	return &Thread{ID: id, Name: name, Ops: append([]Operation{}, ops...)}
}

// Len returns the number of operations in the thread.
func (t *Thread) Len() int {
	return len(t.Ops)
}

// Lookup returns the index of the last operation named name. A name may be
// reused, e.g. when a loop body is unrolled; each use shadows the previous one.
func (t *Thread) Lookup(name string) (int, bool) {
	return t.LookupBefore(name, len(t.Ops))
}

// LookupBefore returns the index of the nearest operation before index end
// that is named name.
func (t *Thread) LookupBefore(name string, end int) (int, bool) {
	if name == "" {
		return 0, false
	}
	if end > len(t.Ops) {
		end = len(t.Ops)
	}
	for i := end - 1; i >= 0; i-- {
		if t.Ops[i].name == name {
			return i, true
		}
	}
	return 0, false
}

func (t *Thread) String() string {
	ss := []string{}
	for _, op := range t.Ops {
		ss = append(ss, op.String())
	}
	return fmt.Sprintf("%s: %s", t.Name, strings.Join(ss, "; "))
}

// Threads assigns ids by position, which is what the engine expects.
func Threads(progs ...[]Operation) []*Thread {
	res := []*Thread{}
	for i, ops := range progs {
		res = append(res, NewThread(i, "", ops...))
	}
	return res
}
