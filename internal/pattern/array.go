package pattern

import "fmt"

// DefaultDisplayEnd is the number of array entries shown before the user asks for more.
const DefaultDisplayEnd = 50

func displayEnd(end, count uint64) uint64 {
	if end == 0 {
		end = DefaultDisplayEnd
	}
	return min(end, count)
}

// DisplayEnd is the number of entries currently shown.
func (a *ArrayStatic) DisplayEnd() uint64 {
	return displayEnd(a.displayEnd, a.Count)
}

// IncreaseDisplayEnd doubles the number of entries shown.
func (a *ArrayStatic) IncreaseDisplayEnd() {
	a.displayEnd = displayEnd(a.displayEnd, a.Count) * 2
}

func (a *ArrayStatic) ResetDisplayEnd() {
	a.displayEnd = 0
}

// Entry returns a new pattern for entry i, anchored at its offset.
func (a *ArrayStatic) Entry(i uint64) Pattern {
	e := a.Template.Clone()
	a.anchor(e, i)
	return e
}

func (a *ArrayStatic) anchor(e Pattern, i uint64) {
	Move(e, a.Offset+i*a.Template.Base().Size)
	e.Base().DisplayName = fmt.Sprintf("[%d]", i)
}

// ForEachEntry calls fn for each displayed entry. The template is cloned once and the clone is
// re-anchored for every index, so fn must not keep e beyond the call; use Entry for that.
func (a *ArrayStatic) ForEachEntry(fn func(i uint64, e Pattern)) {
	n := a.DisplayEnd()
	if n == 0 {
		return
	}
	e := a.Template.Clone()
	for i := uint64(0); i < n; i++ {
		a.anchor(e, i)
		fn(i, e)
	}
}

func (a *ArrayDynamic) DisplayEnd() uint64 {
	return displayEnd(a.displayEnd, uint64(len(a.Entries)))
}

func (a *ArrayDynamic) IncreaseDisplayEnd() {
	a.displayEnd = displayEnd(a.displayEnd, uint64(len(a.Entries))) * 2
}

func (a *ArrayDynamic) ResetDisplayEnd() {
	a.displayEnd = 0
}

func (a *ArrayDynamic) ForEachEntry(fn func(i uint64, e Pattern)) {
	n := a.DisplayEnd()
	for i := uint64(0); i < n; i++ {
		fn(i, a.Entries[i])
	}
}
