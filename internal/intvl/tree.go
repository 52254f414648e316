package intvl

import "sync"

// Tree indexes half-open intervals, each carrying a value. Overlap queries cost O(log n + k).
//
// Intervals are kept in two AVL trees. The first is ordered by start and augmented with the maximum
// end of each subtree, which answers overlap and next-interval queries. The second is ordered by end
// and answers previous-interval queries. Neither tree is synchronized; see SyncTree.
type Tree[T any] struct {
	byStart avlTree
	byEnd   avlTree
	seq     uint64
	count   int
}

// Entry is one stored interval and its value.
type Entry[T any] struct {
	From, To uint64
	Value    T
}

func (e Entry[T]) Start() uint64 { return e.From }
func (e Entry[T]) End() uint64   { return e.To }

// A Handle identifies an inserted interval so it can be removed later.
type Handle struct {
	item *item
}

func (h Handle) Valid() bool {
	return h.item != nil && h.item.startNode != nil
}

type item struct {
	from, to  uint64
	value     interface{}
	startNode *avlNode
	endNode   *avlNode
}

func (t *Tree[T]) Insert(i Interval, v T) Handle {
	t.seq++
	it := &item{from: i.Start(), to: i.End(), value: v}
	it.startNode = t.byStart.insert(avlKey{i.Start(), i.End(), t.seq}, it)
	it.endNode = t.byEnd.insert(avlKey{i.End(), i.Start(), t.seq}, it)
	t.count++
	return Handle{it}
}

// Remove deletes the interval identified by h. It returns false if h was already removed.
func (t *Tree[T]) Remove(h Handle) bool {
	if !h.Valid() {
		return false
	}
	t.byStart.delete(h.item.startNode)
	t.byEnd.delete(h.item.endNode)
	h.item.startNode, h.item.endNode = nil, nil
	t.count--
	return true
}

func (t *Tree[T]) Clear() {
	t.byStart = avlTree{}
	t.byEnd = avlTree{}
	t.count = 0
}

func (t *Tree[T]) Len() int {
	return t.count
}

func (t *Tree[T]) entry(n *avlNode) Entry[T] {
	return Entry[T]{From: n.item.from, To: n.item.to, Value: n.item.value.(T)}
}

// EachOverlapping calls fn for every interval overlapping q until fn returns false.
func (t *Tree[T]) EachOverlapping(q Interval, fn func(e Entry[T]) bool) {
	if q.Start() >= q.End() {
		return
	}
	t.eachOverlapping(t.byStart.root, q.Start(), q.End(), fn)
}

func (t *Tree[T]) eachOverlapping(n *avlNode, from, to uint64, fn func(e Entry[T]) bool) bool {
	if n == nil || n.maxEnd <= from {
		return true
	}
	if !t.eachOverlapping(n.left, from, to, fn) {
		return false
	}
	if n.key.a >= to {
		// Everything to the right starts even later.
		return true
	}
	if n.item.to > from && n.item.from < n.item.to {
		if !fn(t.entry(n)) {
			return false
		}
	}
	return t.eachOverlapping(n.right, from, to, fn)
}

// Overlapping returns the intervals overlapping q, ordered by start.
func (t *Tree[T]) Overlapping(q Interval) []Entry[T] {
	var r []Entry[T]
	t.EachOverlapping(q, func(e Entry[T]) bool {
		r = append(r, e)
		return true
	})
	return r
}

// At returns the intervals containing addr.
func (t *Tree[T]) At(addr uint64) []Entry[T] {
	return t.Overlapping(Span{addr, addr + 1})
}

// Next returns the interval with the smallest start strictly greater than point.
func (t *Tree[T]) Next(point uint64) (e Entry[T], ok bool) {
	n := t.byStart.search(func(k avlKey) bool { return k.a > point })
	if n == nil {
		return
	}
	return t.entry(n), true
}

// Prev returns the interval with the largest end that is less than or equal to point.
// Ties on the end are broken by the largest start.
func (t *Tree[T]) Prev(point uint64) (e Entry[T], ok bool) {
	n := t.byEnd.search(func(k avlKey) bool { return k.a > point })
	if n == nil {
		n = t.byEnd.last()
	} else {
		n = n.prev()
	}
	if n == nil {
		return
	}
	return t.entry(n), true
}

// Each calls fn on every interval in order of start until fn returns false.
func (t *Tree[T]) Each(fn func(e Entry[T]) bool) {
	for n := t.byStart.first(); n != nil; n = n.next() {
		if !fn(t.entry(n)) {
			return
		}
	}
}

// Entries returns every interval ordered by start.
func (t *Tree[T]) Entries() []Entry[T] {
	r := make([]Entry[T], 0, t.count)
	t.Each(func(e Entry[T]) bool {
		r = append(r, e)
		return true
	})
	return r
}

// SyncTree guards a Tree with a reader-writer lock.
type SyncTree[T any] struct {
	lock sync.RWMutex
	tree Tree[T]
}

func (s *SyncTree[T]) Insert(i Interval, v T) Handle {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.tree.Insert(i, v)
}

func (s *SyncTree[T]) Remove(h Handle) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.tree.Remove(h)
}

func (s *SyncTree[T]) Clear() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.tree.Clear()
}

// Replace swaps in a tree built elsewhere.
func (s *SyncTree[T]) Replace(t *Tree[T]) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.tree = *t
}

func (s *SyncTree[T]) Overlapping(q Interval) []Entry[T] {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.tree.Overlapping(q)
}

func (s *SyncTree[T]) Next(point uint64) (Entry[T], bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.tree.Next(point)
}

func (s *SyncTree[T]) Prev(point uint64) (Entry[T], bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.tree.Prev(point)
}

func (s *SyncTree[T]) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.tree.Len()
}
