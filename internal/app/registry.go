package app

import (
	"golang.org/x/exp/slices"

	"github.com/jeffwilliams/hexcore/internal/color"
	"github.com/jeffwilliams/hexcore/internal/intvl"
	"github.com/jeffwilliams/hexcore/internal/region"
)

// A DynamicFunc is consulted for every address drawn. data holds the bytes from addr to the end
// of the visible range and selected reports whether addr is in the selection.
type DynamicFunc[V any] func(addr uint64, data []byte, selected bool) (V, bool)

// Registry holds values attached to the addresses of providers, either statically to a region
// or through a function asked about each address. Each registration is identified by a Handle;
// handles of removed registrations are reused.
type Registry[V any] struct {
	ids     idGen
	static  map[Handle]*staticEntry[V]
	trees   map[uint64]*intvl.Tree[Handle]
	dynamic map[Handle]dynamicEntry[V]
}

type (
	Highlights = Registry[color.Color]
	Tooltips   = Registry[string]
)

type staticEntry[V any] struct {
	provider uint64
	region   region.Region
	value    V
	node     intvl.Handle
}

type dynamicEntry[V any] struct {
	provider uint64
	fn       DynamicFunc[V]
}

func NewRegistry[V any]() *Registry[V] {
	return &Registry[V]{
		static:  map[Handle]*staticEntry[V]{},
		trees:   map[uint64]*intvl.Tree[Handle]{},
		dynamic: map[Handle]dynamicEntry[V]{},
	}
}

// AddStatic attaches v to region r of the provider with the given id.
func (g *Registry[V]) AddStatic(providerID uint64, r region.Region, v V) Handle {
	h := g.ids.Get()
	t := g.trees[providerID]
	if t == nil {
		t = &intvl.Tree[Handle]{}
		g.trees[providerID] = t
	}
	g.static[h] = &staticEntry[V]{provider: providerID, region: r, value: v, node: t.Insert(r, h)}
	return h
}

// AddDynamic registers fn for the provider with the given id, or for every provider if the id
// is zero.
func (g *Registry[V]) AddDynamic(providerID uint64, fn DynamicFunc[V]) Handle {
	h := g.ids.Get()
	g.dynamic[h] = dynamicEntry[V]{provider: providerID, fn: fn}
	return h
}

func (g *Registry[V]) Remove(h Handle) bool {
	if e, ok := g.static[h]; ok {
		g.trees[e.provider].Remove(e.node)
		delete(g.static, h)
		g.ids.Free(h)
		return true
	}
	if _, ok := g.dynamic[h]; ok {
		delete(g.dynamic, h)
		g.ids.Free(h)
		return true
	}
	return false
}

// RemoveProvider drops every registration made for one provider.
func (g *Registry[V]) RemoveProvider(providerID uint64) {
	for h, e := range g.static {
		if e.provider == providerID {
			g.ids.Free(h)
			delete(g.static, h)
		}
	}
	delete(g.trees, providerID)

	for h, e := range g.dynamic {
		if e.provider == providerID {
			g.ids.Free(h)
			delete(g.dynamic, h)
		}
	}
}

func (g *Registry[V]) Len() int {
	return len(g.static) + len(g.dynamic)
}

// At returns the values attached at addr: static registrations first, then dynamic ones, each
// in order of handle.
func (g *Registry[V]) At(providerID uint64, addr uint64, data []byte, selected bool) []V {
	var vals []V

	if t := g.trees[providerID]; t != nil {
		hs := make([]Handle, 0, 4)
		for _, e := range t.At(addr) {
			hs = append(hs, e.Value)
		}
		slices.Sort(hs)
		for _, h := range hs {
			vals = append(vals, g.static[h].value)
		}
	}

	hs := make([]Handle, 0, len(g.dynamic))
	for h, e := range g.dynamic {
		if e.provider == 0 || e.provider == providerID {
			hs = append(hs, h)
		}
	}
	slices.Sort(hs)
	for _, h := range hs {
		if v, ok := g.dynamic[h].fn(addr, data, selected); ok {
			vals = append(vals, v)
		}
	}
	return vals
}

// A Span is a run of addresses to which the same static registrations apply.
type Span[V any] struct {
	Region region.Region
	Values []V
}

type handleSpan struct {
	intvl.Span
	handle Handle
}

// Spans sweeps the static registrations of a provider over r and returns, in address order, the
// runs of r where the set of registrations stays the same. Values are in order of handle. Runs
// covered by no registration are left out.
func (g *Registry[V]) Spans(providerID uint64, r region.Region) []Span[V] {
	t := g.trees[providerID]
	if t == nil || r.Size == 0 {
		return nil
	}

	var seq intvl.IntervalSequence
	t.EachOverlapping(r, func(e intvl.Entry[Handle]) bool {
		seq.AddWithoutSort(&handleSpan{
			Span:   intvl.Span{From: max(e.From, r.Address), To: min(e.To, r.End())},
			handle: e.Value,
		})
		return true
	})
	seq.Sort()

	var spans []Span[V]
	it := seq.Iter()
	for pos := r.Address; pos < r.End(); {
		it.ForwardTo(pos)
		end := r.End()
		if c := it.Next(); c != nil && c.AbsolutePosition < end {
			end = c.AbsolutePosition
		}

		if active := it.Active(); len(active) > 0 {
			hs := make([]Handle, len(active))
			for i, a := range active {
				hs[i] = a.(*handleSpan).handle
			}
			slices.Sort(hs)
			vals := make([]V, len(hs))
			for i, h := range hs {
				vals[i] = g.static[h].value
			}
			spans = append(spans, Span[V]{Region: region.FromBounds(pos, end), Values: vals})
		}
		pos = end
	}
	return spans
}
