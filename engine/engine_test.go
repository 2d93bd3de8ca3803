package engine

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/interleave/cell"
	"github.com/vadiminshakov/interleave/program"
	"github.com/vadiminshakov/interleave/schedule"
)

// racy returns two threads doing a load followed by a dependent store.
func racy(t *testing.T) (*Engine, cell.ID) {
	t.Helper()
	cells := cell.NewStore()
	c := cells.Create(0, cell.Width64)
	eng, err := New(cells, program.Threads(
		[]program.Operation{program.Read(c).As("r"), program.WriteFrom(c, "r", 1)},
		[]program.Operation{program.Read(c).As("r"), program.WriteFrom(c, "r", 1)},
	))
	require.NoError(t, err)
	return eng, c
}

func TestReplay(t *testing.T) {
	eng, c := racy(t)

	serial := schedule.Interleaving{{Thread: 0, Index: 0}, {Thread: 0, Index: 1}, {Thread: 1, Index: 0}, {Thread: 1, Index: 1}}
	s, err := eng.Replay(serial, nil)
	require.NoError(t, err)
	v, err := s.Value(c)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)
	r, err := s.Named(1, "r")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r)

	lost := schedule.Interleaving{{Thread: 0, Index: 0}, {Thread: 1, Index: 0}, {Thread: 0, Index: 1}, {Thread: 1, Index: 1}}
	s, err = eng.Replay(lost, nil)
	require.NoError(t, err)
	v, err = s.Value(c)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
	assert.Equal(t, 4, s.Steps())
	assert.Len(t, s.Trace(), 4)
}

func TestReplayDeterministic(t *testing.T) {
	eng, _ := racy(t)
	en := schedule.NewEnumerator(eng.Lengths())
	for {
		il, ok := en.Next()
		if !ok {
			break
		}
		a, err := eng.Replay(il, nil)
		require.NoError(t, err)
		b, err := eng.Replay(il, nil)
		require.NoError(t, err)
		if diff := cmp.Diff(a.Values(), b.Values()); diff != "" {
			t.Fatalf("replay of %s not deterministic (-first +second):\n%s", il, diff)
		}
		assert.Equal(t, a.String(), b.String())
	}
}

func TestReplayFetchAddBindings(t *testing.T) {
	cells := cell.NewStore()
	c := cells.Create(0, cell.Width16)
	eng, err := New(cells, program.Threads(
		[]program.Operation{program.FetchAdd(c, 1).As("prev")},
		[]program.Operation{program.FetchAdd(c, 2).As("prev")},
	))
	require.NoError(t, err)

	s, err := eng.Replay(schedule.Interleaving{{Thread: 1, Index: 0}, {Thread: 0, Index: 0}}, nil)
	require.NoError(t, err)
	p0, err := s.Binding(0, 0)
	require.NoError(t, err)
	p1, err := s.Binding(1, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), p0)
	assert.Equal(t, uint64(0), p1)
	assert.Equal(t, []uint64{3}, s.Values())
}

func TestMalformedInterleaving(t *testing.T) {
	eng, _ := racy(t)
	bad := []schedule.Interleaving{
		{{Thread: 0, Index: 1}, {Thread: 0, Index: 0}, {Thread: 1, Index: 0}, {Thread: 1, Index: 1}},
		{{Thread: 0, Index: 0}, {Thread: 0, Index: 1}, {Thread: 1, Index: 0}},
		{{Thread: 0, Index: 0}, {Thread: 0, Index: 1}, {Thread: 2, Index: 0}, {Thread: 1, Index: 0}, {Thread: 1, Index: 1}},
		{{Thread: 0, Index: 0}, {Thread: 0, Index: 5}, {Thread: 1, Index: 0}, {Thread: 1, Index: 1}},
	}
	for _, il := range bad {
		_, err := eng.Replay(il, nil)
		var malformed *MalformedInterleavingError
		require.True(t, errors.As(err, &malformed), "%s: %v", il, err)
		assert.Equal(t, il, malformed.Interleaving)
	}
}

func TestNewRejectsBadPrograms(t *testing.T) {
	cells := cell.NewStore()
	c := cells.Create(0, cell.Width64)

	_, err := New(cells, program.Threads([]program.Operation{program.Read(c + 1)}))
	var unknown *cell.UnknownCellError
	require.True(t, errors.As(err, &unknown), "%v", err)
	assert.Equal(t, c+1, unknown.ID)

	// operand bound later in the thread
	_, err = New(cells, program.Threads([]program.Operation{
		program.WriteFrom(c, "r", 1), program.Read(c).As("r"),
	}))
	var unbound *UnboundBindingError
	require.True(t, errors.As(err, &unbound), "%v", err)
	assert.Equal(t, "r", unbound.Name)

	// writes bind nothing
	_, err = New(cells, program.Threads([]program.Operation{
		program.Write(c, 1).As("w"), program.WriteFrom(c, "w", 1),
	}))
	assert.True(t, errors.As(err, &unbound), "%v", err)

	_, err = New(cells, []*program.Thread{program.NewThread(1, "misplaced")})
	assert.Error(t, err)

	_, err = New(nil, nil)
	assert.Error(t, err)
}

func TestUnboundBinding(t *testing.T) {
	cells := cell.NewStore()
	c := cells.Create(0, cell.Width64)
	eng, err := New(cells, program.Threads(
		[]program.Operation{program.Write(c, 1), program.Read(c).As("r")},
	))
	require.NoError(t, err)

	var seen []error
	_, err = eng.Replay(schedule.Interleaving{{Thread: 0, Index: 0}, {Thread: 0, Index: 1}}, func(ev Event, s *State) error {
		if ev.Step.Index == 0 {
			_, err := s.Named(0, "r")
			seen = append(seen, err)
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	var unbound *UnboundBindingError
	assert.True(t, errors.As(seen[0], &unbound), "binding not produced yet")

	s, err := eng.Replay(schedule.Interleaving{{Thread: 0, Index: 0}, {Thread: 0, Index: 1}}, nil)
	require.NoError(t, err)
	_, err = s.Binding(0, 0)
	assert.True(t, errors.As(err, &unbound), "writes do not bind")
	_, err = s.Binding(3, 0)
	assert.True(t, errors.As(err, &unbound))
	_, err = s.Named(0, "nope")
	assert.True(t, errors.As(err, &unbound))
	r, err := s.Named(0, "r")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r)
}

func TestObserveStopsReplay(t *testing.T) {
	eng, _ := racy(t)
	stop := errors.New("stop")
	steps := 0
	s, err := eng.Replay(schedule.Interleaving{{Thread: 0, Index: 0}, {Thread: 1, Index: 0}, {Thread: 0, Index: 1}, {Thread: 1, Index: 1}}, func(ev Event, s *State) error {
		steps++
		if s.Steps() == 2 {
			return stop
		}
		return nil
	})
	assert.Equal(t, stop, err)
	assert.Equal(t, 2, steps)
	require.NotNil(t, s)
	assert.Equal(t, 2, s.Steps())
}

func TestCompareAndSwapFrom(t *testing.T) {
	cells := cell.NewStore()
	c := cells.Create(0, cell.Width64)
	ops := []program.Operation{program.Read(c).As("r"), program.CompareAndSwapFrom(c, "r", 1)}
	eng, err := New(cells, program.Threads(ops, ops))
	require.NoError(t, err)

	s, err := eng.Replay(schedule.Interleaving{{Thread: 0, Index: 0}, {Thread: 1, Index: 0}, {Thread: 0, Index: 1}, {Thread: 1, Index: 1}}, nil)
	require.NoError(t, err)
	won0, err := s.Swapped(0, 1)
	require.NoError(t, err)
	won1, err := s.Swapped(1, 1)
	require.NoError(t, err)
	assert.True(t, won0)
	assert.False(t, won1, "stale expected value must fail")
	assert.Equal(t, []uint64{1}, s.Values())
}

func TestIndependent(t *testing.T) {
	cells := cell.NewStore()
	x := cells.Create(0, cell.Width64)
	y := cells.Create(0, cell.Width64)
	eng, err := New(cells, program.Threads(
		[]program.Operation{program.Read(x), program.Write(y, 1)},
		[]program.Operation{program.Read(x), program.Write(x, 1)},
	))
	require.NoError(t, err)

	assert.True(t, eng.Independent(schedule.Step{Thread: 0, Index: 0}, schedule.Step{Thread: 1, Index: 0}), "two reads")
	assert.True(t, eng.Independent(schedule.Step{Thread: 0, Index: 1}, schedule.Step{Thread: 1, Index: 1}), "different cells")
	assert.False(t, eng.Independent(schedule.Step{Thread: 0, Index: 0}, schedule.Step{Thread: 1, Index: 1}), "read and write")
	assert.False(t, eng.Independent(schedule.Step{Thread: 0, Index: 0}, schedule.Step{Thread: 0, Index: 1}), "same thread")
}

// Pruning must not lose any reachable final state.
func TestPruningKeepsFinalStates(t *testing.T) {
	cells := cell.NewStore()
	x := cells.Create(0, cell.Width8)
	y := cells.Create(0, cell.Width8)
	eng, err := New(cells, program.Threads(
		[]program.Operation{program.FetchAdd(x, 1).As("a"), program.Read(y).As("b")},
		[]program.Operation{program.Write(y, 1), program.Read(x).As("c")},
		[]program.Operation{program.Read(y).As("d"), program.CompareAndSwap(x, 1, 5).As("e")},
	))
	require.NoError(t, err)

	finals := func(opts ...schedule.Option) (map[string]bool, uint64) {
		res := map[string]bool{}
		en := schedule.NewEnumerator(eng.Lengths(), opts...)
		for {
			il, ok := en.Next()
			if !ok {
				return res, en.Emitted()
			}
			s, err := eng.Replay(il, nil)
			require.NoError(t, err)
			res[s.String()] = true
		}
	}
	full, n := finals()
	pruned, m := finals(schedule.WithIndependence(eng.Independent))
	assert.Equal(t, full, pruned)
	assert.Less(t, m, n)
}

func TestStateClone(t *testing.T) {
	eng, c := racy(t)
	var snap *State
	_, err := eng.Replay(schedule.Interleaving{{Thread: 0, Index: 0}, {Thread: 0, Index: 1}, {Thread: 1, Index: 0}, {Thread: 1, Index: 1}}, func(ev Event, s *State) error {
		if s.Steps() == 2 {
			snap = s.Clone()
		}
		return nil
	})
	require.NoError(t, err)
	v, err := snap.Value(c)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
	assert.Equal(t, 2, snap.Steps())
	_, err = snap.Binding(1, 0)
	assert.Error(t, err)
	assert.Equal(t, "[c0 |-> 1] t0{0:0} t1{}", snap.String())
}

func TestReusedBindingNames(t *testing.T) {
	cells := cell.NewStore()
	c := cells.Create(0, cell.Width64)
	// two increments of one thread, written out as an unrolled loop
	eng, err := New(cells, program.Threads([]program.Operation{
		program.Read(c).As("r"), program.WriteFrom(c, "r", 1),
		program.Read(c).As("r"), program.WriteFrom(c, "r", 1),
	}))
	require.NoError(t, err)

	var seen []uint64
	s, err := eng.Replay(schedule.Interleaving{{Thread: 0, Index: 0}, {Thread: 0, Index: 1}, {Thread: 0, Index: 2}, {Thread: 0, Index: 3}}, func(ev Event, s *State) error {
		r, err := s.Named(0, "r")
		require.NoError(t, err)
		seen = append(seen, r)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, s.Values())
	assert.Equal(t, []uint64{0, 0, 1, 1}, seen, "latest executed binding wins")
	r, err := s.Named(0, "r")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r)

	// a write between the read and its use shadows the name and binds nothing
	_, err = New(cells, program.Threads([]program.Operation{
		program.Read(c).As("r"), program.Write(c, 5).As("r"), program.WriteFrom(c, "r", 1),
	}))
	var unbound *UnboundBindingError
	assert.True(t, errors.As(err, &unbound), "%v", err)
}

func TestNewCopiesPrograms(t *testing.T) {
	cells := cell.NewStore()
	c := cells.Create(0, cell.Width64)
	threads := program.Threads(
		[]program.Operation{program.FetchAdd(c, 1), program.FetchAdd(c, 1)},
		[]program.Operation{program.FetchAdd(c, 1)},
	)
	eng, err := New(cells, threads)
	require.NoError(t, err)

	threads[0].Ops = threads[0].Ops[:1]
	threads[1].Ops[0] = program.Write(c, 9)
	threads[1] = program.NewThread(1, "other")
	cells.Create(7, cell.Width8)

	assert.Equal(t, []int{2, 1}, eng.Lengths())
	s, err := eng.Replay(schedule.Interleaving{{Thread: 0, Index: 0}, {Thread: 0, Index: 1}, {Thread: 1, Index: 0}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3}, s.Values())
	assert.Equal(t, "t1", eng.Threads()[1].Name)
}

func TestInitial(t *testing.T) {
	cells := cell.NewStore()
	cells.Create(4, cell.Width8)
	eng, err := New(cells, program.Threads([]program.Operation{program.Write(0, 1)}))
	require.NoError(t, err)

	s := eng.Initial()
	assert.Equal(t, []uint64{4}, s.Values())
	assert.Equal(t, 0, s.Steps())
	assert.Equal(t, "[c0 |-> 4] t0{}", s.String())
}
