package circ

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdd(t *testing.T) {
	tests := []struct {
		name     string
		max      int
		add      []int
		expected []int
	}{
		{"empty", 3, nil, []int{}},
		{"one", 3, []int{1}, []int{1}},
		{"full", 3, []int{1, 2, 3}, []int{1, 2, 3}},
		{"evicts oldest", 3, []int{1, 2, 3, 4}, []int{2, 3, 4}},
		{"wraps twice", 2, []int{1, 2, 3, 4, 5}, []int{4, 5}},
		{"size one", 1, []int{1, 2}, []int{2}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := New[int](tc.max)
			for _, v := range tc.add {
				c.Add(v)
			}
			assert.Equal(t, tc.expected, c.Slice())
			assert.Equal(t, len(tc.expected), c.Len())

			last, ok := c.Last()
			assert.Equal(t, len(tc.expected) > 0, ok)
			if ok {
				assert.Equal(t, tc.expected[len(tc.expected)-1], last)
			}
		})
	}
}
