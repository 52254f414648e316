package provider

/*
Undo Groups
-----------

Every change to the overlay is recorded as a change: the overlay state of the touched bytes before
and after the change. Changes are collected into an undo group. A group is what the user sees as one
operation ("paste", "fill", "insert"): Undo rolls back the whole group and Redo replays it.

Callers open a group with BeginGroup and close it with EndGroup. Groups nest; only the outermost
BeginGroup/EndGroup pair produces a group on the undo stack. A write made while no group is open
forms a group of its own.

Groups form a linear history. Recording a new group after an Undo discards the redo stack.
*/

type change struct {
	offset uint64
	before snapshot
	after  snapshot
}

// extent is the logical size of a provider and how much of its raw source is still visible.
// Shrinking a provider hides raw bytes past the new end; growing it again exposes zeros.
type extent struct {
	size    uint64
	visible uint64
}

type undoGroup struct {
	name    string
	changes []change
	before  extent
	after   extent
	next    *undoGroup
}

func (g *undoGroup) empty() bool {
	return len(g.changes) == 0 && g.before == g.after
}

// rollback applies the pre-image of every change from index from onwards, newest first.
func (g *undoGroup) rollback(o *overlay, from int) {
	for i := len(g.changes) - 1; i >= from; i-- {
		c := g.changes[i]
		o.restore(c.offset, c.before)
	}
}

// replay applies the post-image of every change, oldest first.
func (g *undoGroup) replay(o *overlay) {
	for _, c := range g.changes {
		o.restore(c.offset, c.after)
	}
}

// span returns the lowest offset and the highest end touched by the group.
func (g *undoGroup) span() (from, to uint64) {
	from, to = ^uint64(0), 0
	for _, c := range g.changes {
		from = min(from, c.offset)
		to = max(to, c.offset+uint64(len(c.before.data)))
	}
	if g.before.size != g.after.size {
		from = min(from, g.before.size, g.after.size)
		to = max(to, g.before.size, g.after.size)
	}
	if from > to {
		from = to
	}
	return
}

type groupStack struct {
	top_  *undoGroup
	count int
}

func (s *groupStack) push(g *undoGroup) {
	g.next = s.top_
	s.top_ = g
	s.count++
}

func (s *groupStack) top() *undoGroup {
	return s.top_
}

func (s *groupStack) pop() *undoGroup {
	if s.top_ == nil {
		return nil
	}

	g := s.top_
	s.top_ = s.top_.next
	g.next = nil
	s.count--
	return g
}

func (s *groupStack) each(fn func(g *undoGroup)) {
	for i := s.top_; i != nil; i = i.next {
		fn(i)
	}
}

func (s *groupStack) clear() {
	s.top_ = nil
	s.count = 0
}
