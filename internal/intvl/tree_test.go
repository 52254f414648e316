package intvl

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(entries []Entry[string]) []string {
	r := make([]string, len(entries))
	for i, e := range entries {
		r[i] = e.Value
	}
	sort.Strings(r)
	return r
}

func TestTreeQueries(t *testing.T) {
	var tree Tree[string]
	tree.Insert(Span{0, 4}, "a")
	tree.Insert(Span{2, 6}, "b")
	tree.Insert(Span{10, 12}, "c")
	tree.Insert(Span{10, 20}, "d")
	tree.Insert(Span{30, 30}, "empty")

	tests := []struct {
		name     string
		query    Span
		expected []string
	}{
		{"start", Span{0, 1}, []string{"a"}},
		{"overlap both", Span{3, 4}, []string{"a", "b"}},
		{"gap", Span{6, 10}, []string{}},
		{"end is exclusive", Span{4, 5}, []string{"b"}},
		{"nested", Span{11, 12}, []string{"c", "d"}},
		{"wide", Span{0, 100}, []string{"a", "b", "c", "d"}},
		{"empty query", Span{3, 3}, []string{}},
		{"empty interval never overlaps", Span{29, 31}, []string{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, names(tree.Overlapping(tc.query)))
		})
	}

	assert.Equal(t, 5, tree.Len())
}

func TestTreeNextPrev(t *testing.T) {
	var tree Tree[string]
	tree.Insert(Span{2, 4}, "a")
	tree.Insert(Span{6, 9}, "b")
	tree.Insert(Span{7, 8}, "c")

	e, ok := tree.Next(0)
	assert.True(t, ok)
	assert.Equal(t, "a", e.Value)

	e, ok = tree.Next(2)
	assert.True(t, ok)
	assert.Equal(t, "b", e.Value)

	e, ok = tree.Next(6)
	assert.True(t, ok)
	assert.Equal(t, "c", e.Value)

	_, ok = tree.Next(7)
	assert.False(t, ok)

	_, ok = tree.Prev(3)
	assert.False(t, ok)

	e, ok = tree.Prev(4)
	assert.True(t, ok)
	assert.Equal(t, "a", e.Value)

	e, ok = tree.Prev(8)
	assert.True(t, ok)
	assert.Equal(t, "c", e.Value)

	e, ok = tree.Prev(100)
	assert.True(t, ok)
	assert.Equal(t, "b", e.Value)
}

func TestTreeRemove(t *testing.T) {
	var tree Tree[int]
	handles := make([]Handle, 0, 100)
	for i := 0; i < 100; i++ {
		handles = append(handles, tree.Insert(Span{uint64(i), uint64(i + 5)}, i))
	}

	for i := 0; i < 100; i += 2 {
		assert.True(t, tree.Remove(handles[i]))
	}
	assert.False(t, tree.Remove(handles[0]))
	assert.Equal(t, 50, tree.Len())

	for _, e := range tree.Entries() {
		assert.Equal(t, 1, e.Value%2)
	}

	tree.Clear()
	assert.Equal(t, 0, tree.Len())
	assert.Empty(t, tree.Overlapping(Span{0, 1000}))
}

// TestTreeAgainstBruteForce checks every query shape against a linear scan over random sets of
// intervals, including after random removals.
func TestTreeAgainstBruteForce(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))

	for round := 0; round < 20; round++ {
		var tree Tree[int]
		type stored struct {
			span   Span
			handle Handle
			live   bool
		}
		var all []stored

		for i := 0; i < 200; i++ {
			s := uint64(rnd.Intn(500))
			all = append(all, stored{span: Span{s, s + uint64(rnd.Intn(40))}, live: true})
			all[i].handle = tree.Insert(all[i].span, i)
		}
		for i := range all {
			if rnd.Intn(3) == 0 {
				require.True(t, tree.Remove(all[i].handle))
				all[i].live = false
			}
		}

		for p := uint64(0); p < 560; p++ {
			var expected []int
			var next, prev *stored
			for i := range all {
				st := &all[i]
				if !st.live {
					continue
				}
				if st.span.From <= p && p < st.span.To {
					expected = append(expected, i)
				}
				if st.span.From > p && (next == nil || st.span.From < next.span.From) {
					next = st
				}
				if st.span.To <= p && (prev == nil || st.span.To > prev.span.To ||
					(st.span.To == prev.span.To && st.span.From > prev.span.From)) {
					prev = st
				}
			}

			var got []int
			for _, e := range tree.At(p) {
				got = append(got, e.Value)
			}
			assert.ElementsMatch(t, expected, got, "point %d", p)

			e, ok := tree.Next(p)
			assert.Equal(t, next != nil, ok, "next of %d", p)
			if ok && next != nil {
				assert.Equal(t, next.span.From, e.From, "next of %d", p)
			}

			e, ok = tree.Prev(p)
			assert.Equal(t, prev != nil, ok, "prev of %d", p)
			if ok && prev != nil {
				assert.Equal(t, prev.span.To, e.To, "prev of %d", p)
				assert.Equal(t, prev.span.From, e.From, "prev of %d", p)
			}
		}
	}
}

func TestSyncTreeReplace(t *testing.T) {
	var built Tree[string]
	built.Insert(Span{0, 2}, "x")

	var s SyncTree[string]
	s.Insert(Span{5, 6}, "old")
	s.Replace(&built)

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, []string{"x"}, names(s.Overlapping(Span{0, 10})))
}
