package circ

// Circ implements a circular array that keeps the most recent max values.
type Circ[V any] struct {
	entries     []V
	first, last int
	count       int
}

func New[V any](max int) Circ[V] {
	if max < 1 {
		max = 1
	}

	return Circ[V]{
		entries: make([]V, max),
	}
}

func (c Circ[V]) Empty() bool {
	return c.count == 0
}

func (c Circ[V]) Len() int {
	return c.count
}

func (c Circ[V]) full() bool {
	return c.count == len(c.entries)
}

// Add appends v, evicting the oldest value when the array is full.
func (c *Circ[V]) Add(v V) {
	c.entries[c.last] = v
	c.last = c.mod(c.last + 1)
	if c.full() {
		c.first = c.mod(c.first + 1)
		return
	}
	c.count++
}

func (c Circ[V]) mod(index int) int {
	return index % len(c.entries)
}

// Each calls f on the values from oldest to newest.
func (c Circ[V]) Each(f func(v V)) {
	for i := 0; i < c.count; i++ {
		f(c.entries[c.mod(c.first+i)])
	}
}

// Slice returns the values from oldest to newest.
func (c Circ[V]) Slice() []V {
	r := make([]V, 0, c.count)
	c.Each(func(v V) { r = append(r, v) })
	return r
}

// Last returns the newest value.
func (c Circ[V]) Last() (v V, ok bool) {
	if c.Empty() {
		return
	}
	return c.entries[c.mod(c.last-1+len(c.entries))], true
}
