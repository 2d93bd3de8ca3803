package cell

import (
	"fmt"

	"github.com/pkg/errors"
)

// ID identifies a cell inside the Store that created it
type ID int

// Width is the number of bits a cell holds. Arithmetic wraps at this width.
type Width uint8

const (
	Width8  Width = 8
	Width16 Width = 16
	Width32 Width = 32
	Width64 Width = 64
)

// Mask returns the largest value a cell of width w holds.
func (w Width) Mask() uint64 {
	if w >= Width64 {
		return ^uint64(0)
	}
	return (uint64(1) << w) - 1
}

// Valid reports whether w is one of the supported widths.
func (w Width) Valid() bool {
	switch w {
	case Width8, Width16, Width32, Width64:
		return true
	default:
		return false
	}
}

// Kind enumerates the atomic accesses a cell supports.
type Kind int

const (
	Read Kind = iota
	Write
	FetchAdd
	CompareAndSwap
)

func (k Kind) String() string {
	switch k {
	case Read:
		return "Read"
	case Write:
		return "Write"
	case FetchAdd:
		return "FetchAdd"
	case CompareAndSwap:
		return "CompareAndSwap"
	default:
		panic(fmt.Sprintf("invalid kind %d", k))
	}
}

// Access is one atomic access to a single cell. Arg is the written value,
// the delta or the replacement value depending on Kind; Expected is only
// used by CompareAndSwap.
type Access struct {
	Kind     Kind
	Arg      uint64
	Expected uint64
}

// Result is the outcome of applying an Access.
// Returned holds the value observed before the access; it is zero for Write.
type Result struct {
	New      uint64
	Returned uint64
	Swapped  bool
}

// UnknownCellError is returned when an access names a cell that was never created.
type UnknownCellError struct {
	ID ID
}

func (e *UnknownCellError) Error() string {
	return fmt.Sprintf("unknown cell %d", e.ID)
}

type entry struct {
	initial uint64
	value   uint64
	width   Width
}

// Store holds the current value of every shared cell
type Store struct {
	cells []entry
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{cells: []entry{}}
}

// Create registers a cell with the given initial value and width.
// The initial value is truncated to the width.
func (s *Store) Create(initial uint64, width Width) ID {
	if !width.Valid() {
		panic(fmt.Sprintf("invalid cell width %d", width))
	}
	v := initial & width.Mask()
	s.cells = append(s.cells, entry{initial: v, value: v, width: width})
	return ID(len(s.cells) - 1)
}

// Len returns the number of registered cells.
func (s *Store) Len() int {
	return len(s.cells)
}

// Has reports whether id was created by this store.
func (s *Store) Has(id ID) bool {
	return id >= 0 && int(id) < len(s.cells)
}

func (s *Store) lookup(id ID) (*entry, error) {
	if !s.Has(id) {
		return nil, &UnknownCellError{ID: id}
	}
	return &s.cells[id], nil
}

// Width returns the declared width of a cell.
func (s *Store) Width(id ID) (Width, error) {
	e, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	return e.width, nil
}

// Apply performs a on the cell id. It is the only way a cell value changes.
func (s *Store) Apply(id ID, a Access) (Result, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Result{}, err
	}
	mask := e.width.Mask()
	old := e.value
	switch a.Kind {
	case Read:
		return Result{New: old, Returned: old}, nil
	case Write:
		e.value = a.Arg & mask
		return Result{New: e.value}, nil
	case FetchAdd:
		e.value = (old + a.Arg) & mask
		return Result{New: e.value, Returned: old}, nil
	case CompareAndSwap:
		if old != a.Expected&mask {
			return Result{New: old, Returned: old}, nil
		}
		e.value = a.Arg & mask
		return Result{New: e.value, Returned: old, Swapped: true}, nil
	default:
		return Result{}, errors.Errorf("cell %d: unsupported access kind %d", id, a.Kind)
	}
}

// Fresh returns an independent copy of the store with every cell set back
// to its initial value.
func (s *Store) Fresh() *Store {
	f := &Store{cells: append([]entry{}, s.cells...)}
	f.Reset()
	return f
}

// Reset sets every cell back to its initial value.
func (s *Store) Reset() {
	for i := range s.cells {
		s.cells[i].value = s.cells[i].initial
	}
}

// Values returns a snapshot of all cell values indexed by ID.
func (s *Store) Values() []uint64 {
	res := make([]uint64, len(s.cells))
	for i, e := range s.cells {
		res[i] = e.value
	}
	return res
}
