package intvl

import (
	"sort"

	"github.com/jeffwilliams/hexcore/internal/slice"
)

// An interval represents a half-open range including the first address but not the last.
type Interval interface {
	Start() uint64
	End() uint64
}

// Span is the plain Interval used when callers have no richer type at hand.
type Span struct {
	From, To uint64
}

func (s Span) Start() uint64 { return s.From }
func (s Span) End() uint64   { return s.To }

// IntervalSequence sweeps over a set of possibly overlapping intervals, reporting which are
// active at each address and where the set of active intervals changes next.
type IntervalSequence struct {
	pts    []intervalEndpt
	sorted bool
}

type intervalEndpt struct {
	coord    uint64
	interval Interval
	typ      intervalEndptType
}

type intervalEndptType int

const (
	start intervalEndptType = iota
	end
)

func newIntervalEndpts(i Interval) (a, b intervalEndpt) {
	return intervalEndpt{
			coord:    i.Start(),
			interval: i,
			typ:      start,
		},
		intervalEndpt{
			coord:    i.End(),
			interval: i,
			typ:      end,
		}
}

func (s *IntervalSequence) Add(i Interval) {
	s.AddWithoutSort(i)
	s.sort()
}

func (s *IntervalSequence) isEmpty(i Interval) bool {
	return i.Start() >= i.End()
}

// AddWithoutSort adds the interval but doesn't sort it into the right place.
// For the data to be usable you MUST call Sort before getting an iterator.
func (s *IntervalSequence) AddWithoutSort(i Interval) {
	if s.isEmpty(i) {
		return
	}

	s.init()
	a, b := newIntervalEndpts(i)
	s.pts = append(s.pts, a, b)
	s.sorted = false
}

func (s *IntervalSequence) Sort() {
	s.sort()
}

func (s *IntervalSequence) init() {
	if s.pts == nil {
		s.pts = make([]intervalEndpt, 0, 20)
	}
}

func (s *IntervalSequence) Reset() {
	if s.pts != nil {
		s.pts = s.pts[0:0]
	}
}

func (s *IntervalSequence) sort() {
	sort.SliceStable(s.pts, func(i, j int) bool {
		return s.pts[i].coord < s.pts[j].coord
	})
	s.sorted = true
}

func (s *IntervalSequence) Del(i Interval) {
	match := func(ndx int) bool {
		return s.pts[ndx].interval == i
	}

	s.pts = slice.RemoveFirstMatchPreserveOrder(s.pts, match)
	s.pts = slice.RemoveFirstMatchPreserveOrder(s.pts, match)
}

func (s *IntervalSequence) Iter() IntervalIter {
	if !s.sorted && len(s.pts) > 0 {
		panic("IntervalSequence is not sorted; can't get an iterator")
	}

	pts := make([]intervalEndpt, len(s.pts))
	copy(pts, s.pts)

	return IntervalIter{
		pts:    pts,
		active: make([]Interval, 0, 10),
	}
}

// IntervalIter walks an IntervalSequence in increasing address order. It is not threadsafe.
type IntervalIter struct {
	pts      []intervalEndpt
	pos      uint64
	started  bool
	active   []Interval
	upcoming IntervalChange
}

func (it *IntervalIter) ForwardTo(position uint64) {
	if it.started && position < it.pos {
		return
	}

	for !it.AtEnd() && it.nextChangeIsBeforeOrAt(position) {
		if it.pts[0].typ == start {
			it.activateInterval(it.pts[0].interval)
		} else {
			it.deactivateInterval(it.pts[0].interval)
		}
		it.removeFirstPt()
	}

	it.pos = position
	it.started = true
}

func (it IntervalIter) AtEnd() bool {
	return len(it.pts) == 0
}

func (it IntervalIter) nextChangeIsBeforeOrAt(position uint64) bool {
	return it.pts[0].coord <= position
}

func (it *IntervalIter) deactivateInterval(i Interval) {
	match := func(ndx int) bool {
		return it.active[ndx] == i
	}

	it.active = slice.RemoveFirstMatchPreserveOrder(it.active, match)
}

func (it *IntervalIter) activateInterval(i Interval) {
	it.active = append(it.active, i)
}

func (it *IntervalIter) removeFirstPt() {
	it.pts = it.pts[1:]
}

func (it *IntervalIter) ForwardBy(distance uint64) {
	it.ForwardTo(it.pos + distance)
}

// Active returns the intervals containing the current position, in the order they started.
func (it IntervalIter) Active() []Interval {
	return it.active
}

func (it IntervalIter) Position() uint64 {
	return it.pos
}

// Next returns the address of the first byte that begins the next section of consistent intervals.
// For example if the current position is not inside an interval and the next interval begins at
// 3, then 3 would be returned. If the current position _is_ inside an interval and the last byte
// of that interval is 5 (i.e. the interval end property is 6) then 6 would be returned because that is
// the first byte of the next set of consistent intervals. Nil is returned when nothing changes again.
func (it *IntervalIter) Next() *IntervalChange {
	if !it.started {
		it.ForwardTo(0)
	}

	i := 0
	for i < len(it.pts) && it.pts[i].coord <= it.pos {
		i++
	}
	if i >= len(it.pts) {
		return nil
	}

	it.upcoming.AbsolutePosition = it.pts[i].coord
	it.upcoming.OffsetFromCurrentPosition = it.pts[i].coord - it.pos

	return &it.upcoming
}

type IntervalChange struct {
	AbsolutePosition          uint64
	OffsetFromCurrentPosition uint64
}

func Overlaps(a, b Interval) bool {
	exl := a.End() <= b.Start() || b.End() <= a.Start()
	return !exl
}
