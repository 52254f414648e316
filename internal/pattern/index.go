package pattern

import (
	"sort"

	"github.com/jeffwilliams/hexcore/internal/color"
	"github.com/jeffwilliams/hexcore/internal/intvl"
	"github.com/jeffwilliams/hexcore/internal/region"
)

// Index finds the patterns covering an address. It holds the leaves of the trees it was built
// from: primitives, enums, bitfields and static arrays as a whole, and pointers. Pointees are
// indexed in their own right. Hidden and empty patterns are left out.
type Index struct {
	tree intvl.Tree[indexed]
	seq  int
}

type indexed struct {
	p   Pattern
	seq int
}

func NewIndex(roots []Pattern) *Index {
	x := &Index{}
	for _, r := range roots {
		x.Add(r)
	}
	return x
}

// Add indexes the leaves of p.
func (x *Index) Add(p Pattern) {
	Walk(p, func(p Pattern) bool {
		c := p.Base()
		if c.Hidden {
			return false
		}

		switch p.(type) {
		case *Struct, *Union, *ArrayDynamic:
			return true
		case *Pointer:
			x.insert(p)
			return true
		}

		x.insert(p)
		return false
	})
}

func (x *Index) insert(p Pattern) {
	c := p.Base()
	if c.Size == 0 {
		return
	}
	x.tree.Insert(c.Region(), indexed{p: p, seq: x.seq})
	x.seq++
}

// PatternsAt returns the patterns covering addr, smallest first.
func (x *Index) PatternsAt(addr uint64) []Pattern {
	return x.Overlapping(region.Region{Address: addr, Size: 1})
}

// Overlapping returns the patterns overlapping r, smallest first and then in the order they were
// added.
func (x *Index) Overlapping(r region.Region) []Pattern {
	entries := x.tree.Overlapping(r)
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Value, entries[j].Value
		if sa, sb := a.p.Base().Size, b.p.Base().Size; sa != sb {
			return sa < sb
		}
		return a.seq < b.seq
	})

	ps := make([]Pattern, len(entries))
	for i, e := range entries {
		ps[i] = e.Value.p
	}
	return ps
}

// ColorAt returns the colour of the innermost pattern at addr.
func (x *Index) ColorAt(addr uint64) (color.Color, bool) {
	ps := x.PatternsAt(addr)
	if len(ps) == 0 {
		return color.Default, false
	}
	return ps[0].Base().Color, true
}

func (x *Index) Len() int {
	return x.tree.Len()
}
