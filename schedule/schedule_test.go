package schedule

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, e *Enumerator) []Interleaving {
	t.Helper()
	res := []Interleaving{}
	for {
		il, ok := e.Next()
		if !ok {
			return res
		}
		res = append(res, il)
	}
}

func key(il Interleaving) string {
	return fmt.Sprint(il.Threads())
}

func TestCount(t *testing.T) {
	tests := []struct {
		lengths []int
		want    uint64
	}{
		{nil, 1},
		{[]int{0}, 1},
		{[]int{3}, 1},
		{[]int{1, 1}, 2},
		{[]int{2, 2}, 6},
		{[]int{1, 1, 1}, 6},
		{[]int{1, 1, 1, 1}, 24},
		{[]int{2, 1, 3}, 60},
		{[]int{3, 3, 3}, 1680},
		{[]int{0, 2, 0, 2}, 6},
	}
	for _, tt := range tests {
		got, ok := Count(tt.lengths)
		require.True(t, ok, "%v", tt.lengths)
		assert.Equal(t, tt.want, got, "%v", tt.lengths)
	}

	_, ok := Count([]int{40, 40})
	assert.False(t, ok, "C(80, 40) does not fit in 64 bits")
}

func TestNegativeLengths(t *testing.T) {
	for _, lengths := range [][]int{{-1, 2}, {2, -3, 1}, {-1}} {
		n, ok := Count(lengths)
		require.True(t, ok)
		all := collect(t, NewEnumerator(lengths))
		assert.Equal(t, int(n), len(all), "%v", lengths)
		for _, il := range all {
			assert.NoError(t, il.Validate(lengths), "%v %s", lengths, il)
		}
	}
	n, _ := Count([]int{-1, 2})
	assert.Equal(t, uint64(1), n)
	n, _ = Count([]int{2, -3, 1})
	assert.Equal(t, uint64(3), n)
}

func TestEnumerateTwoSingleOps(t *testing.T) {
	all := collect(t, NewEnumerator([]int{1, 1}))
	require.Len(t, all, 2)
	assert.Equal(t, Interleaving{{0, 0}, {1, 0}}, all[0])
	assert.Equal(t, Interleaving{{1, 0}, {0, 0}}, all[1])
}

func TestEnumerateOrder(t *testing.T) {
	all := collect(t, NewEnumerator([]int{2, 1}))
	got := []string{}
	for _, il := range all {
		got = append(got, key(il))
	}
	assert.Equal(t, []string{"[0 0 1]", "[0 1 0]", "[1 0 0]"}, got)
}

func TestEnumerateEmpty(t *testing.T) {
	for _, lengths := range [][]int{nil, {0, 0}} {
		e := NewEnumerator(lengths)
		all := collect(t, e)
		require.Len(t, all, 1, "%v", lengths)
		assert.Empty(t, all[0])
		_, ok := e.Next()
		assert.False(t, ok, "exhausted enumerator must stay exhausted")
	}
}

func TestEnumeratorReset(t *testing.T) {
	e := NewEnumerator([]int{2, 2})
	first := collect(t, e)
	assert.Equal(t, uint64(6), e.Emitted())

	e.Reset()
	assert.Equal(t, uint64(0), e.Emitted())
	assert.Equal(t, first, collect(t, e))

	// restart in the middle of an enumeration
	e.Reset()
	_, _ = e.Next()
	_, _ = e.Next()
	e.Reset()
	assert.Equal(t, first, collect(t, e))
}

func TestNextReturnsCopy(t *testing.T) {
	e := NewEnumerator([]int{1, 1})
	a, _ := e.Next()
	a[0] = Step{Thread: 9, Index: 9}
	b, _ := e.Next()
	assert.Equal(t, Interleaving{{1, 0}, {0, 0}}, b)
}

func TestEnumerationCompleteness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 40
	properties := gopter.NewProperties(parameters)

	properties.Property("produces exactly the multinomial number of distinct valid interleavings",
		prop.ForAll(func(lengths []int) string {
			want, ok := Count(lengths)
			if !ok {
				return "count overflow"
			}
			seen := map[string]bool{}
			e := NewEnumerator(lengths)
			for {
				il, ok := e.Next()
				if !ok {
					break
				}
				if err := il.Validate(lengths); err != nil {
					return err.Error()
				}
				k := key(il)
				if seen[k] {
					return "duplicate " + k
				}
				seen[k] = true
			}
			if uint64(len(seen)) != want {
				return fmt.Sprintf("got %d interleavings, want %d", len(seen), want)
			}
			if e.Emitted() != want {
				return fmt.Sprintf("emitted %d, want %d", e.Emitted(), want)
			}
			return ""
		}, gen.SliceOfN(3, gen.IntRange(0, 3))),
	)

	properties.TestingRun(t)
}

func TestPruning(t *testing.T) {
	lengths := []int{2, 1, 2}
	full, _ := Count(lengths)

	none := NewEnumerator(lengths, WithIndependence(func(a, b Step) bool { return false }))
	assert.Equal(t, int(full), len(collect(t, none)))
	assert.True(t, none.Pruning())

	// when everything commutes only the sequential order survives
	all := NewEnumerator(lengths, WithIndependence(func(a, b Step) bool { return true }))
	got := collect(t, all)
	require.Len(t, got, 1)
	assert.Equal(t, "[0 0 1 2 2]", key(got[0]))

	// threads 0 and 1 commute, thread 2 conflicts with both
	some := NewEnumerator([]int{1, 1, 1}, WithIndependence(func(a, b Step) bool {
		return a.Thread != 2 && b.Thread != 2
	}))
	keys := []string{}
	for _, il := range collect(t, some) {
		keys = append(keys, key(il))
	}
	// one representative per equivalence class
	assert.Equal(t, []string{"[0 1 2]", "[0 2 1]", "[1 2 0]", "[2 0 1]"}, keys)

	assert.False(t, NewEnumerator(lengths).Pruning())
}

func TestValidate(t *testing.T) {
	lengths := []int{2, 1}
	assert.NoError(t, Interleaving{{0, 0}, {1, 0}, {0, 1}}.Validate(lengths))

	bad := []Interleaving{
		{{0, 0}, {2, 0}, {0, 1}},         // no such thread
		{{0, 0}, {1, 1}, {0, 1}},         // no such operation
		{{0, 1}, {1, 0}, {0, 0}},         // program order
		{{0, 0}, {1, 0}},                 // incomplete
		{{0, 0}, {0, 1}, {1, 0}, {1, 0}}, // repeated step
	}
	for _, il := range bad {
		assert.Error(t, il.Validate(lengths), "%s", il)
	}
}

func TestInterleavingString(t *testing.T) {
	assert.Equal(t, "<<t0.0, t1.0, t0.1>>", Interleaving{{0, 0}, {1, 0}, {0, 1}}.String())
	assert.Equal(t, "<<>>", Interleaving{}.String())
}
