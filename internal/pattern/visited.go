package pattern

type visitKey struct {
	typeName string
	offset   uint64
}

// Visited tracks the (type, offset) pairs being built on the current evaluation path so that
// pointers leading back to one of them can be cut short.
type Visited struct {
	active map[visitKey]struct{}
}

func NewVisited() *Visited {
	return &Visited{active: make(map[visitKey]struct{})}
}

// Enter marks typeName at offset as being built. It returns false, and marks nothing, if it
// already is.
func (v *Visited) Enter(typeName string, offset uint64) bool {
	k := visitKey{typeName, offset}
	if _, ok := v.active[k]; ok {
		return false
	}
	v.active[k] = struct{}{}
	return true
}

func (v *Visited) Leave(typeName string, offset uint64) {
	delete(v.active, visitKey{typeName, offset})
}

func (v *Visited) Len() int {
	return len(v.active)
}

// ResolvePointer sets the pointee of p to the pattern returned by build, which lays out a
// pointeeType at p.Address. If that pair is already being built further up the path the pointee
// is left empty and p is marked Cyclic instead.
func ResolvePointer(p *Pointer, pointeeType string, v *Visited, build func() (Pattern, error)) error {
	if !v.Enter(pointeeType, p.Address) {
		dbg("pointer %s to %s at 0x%X is cyclic", p.Name(), pointeeType, p.Address)
		p.Pointee, p.Cyclic = nil, true
		return nil
	}
	defer v.Leave(pointeeType, p.Address)

	pointee, err := build()
	if err != nil {
		return err
	}
	p.Pointee, p.Cyclic = pointee, false
	return nil
}
