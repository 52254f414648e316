package app

import "golang.org/x/exp/slices"

// A Handle identifies a highlight or tooltip registration. Zero is never a valid handle.
type Handle uint32

// idGen hands out the smallest free handle.
type idGen struct {
	next Handle
	free []Handle
}

func (g *idGen) Get() Handle {
	if len(g.free) == 0 {
		g.next++
		return g.next
	}

	slices.Sort(g.free)
	n := g.free[0]
	g.free = g.free[1:]
	return n
}

func (g *idGen) Free(id Handle) {
	g.free = append(g.free, id)
}
