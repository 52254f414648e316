package cache

import "fmt"

// Deque is a bounded ring buffer queue.
type Deque[T any] struct {
	buf        []T
	head, tail int
	count      int
}

func NewDeque[T any](max int) Deque[T] {
	if max < 1 {
		max = 1
	}
	return Deque[T]{
		buf: make([]T, max),
	}
}

func (q *Deque[T]) PushBack(elem T) error {
	if q.count == len(q.buf) {
		return fmt.Errorf("queue is full")
	}

	q.buf[q.tail] = elem
	q.tail = q.next(q.tail)
	q.count++
	return nil
}

func (q *Deque[T]) next(i int) int {
	return (i + 1) % len(q.buf)
}

func (q *Deque[T]) PopFront() (elem T, ok bool) {
	if q.count == 0 {
		return
	}

	var zero T
	elem = q.buf[q.head]
	q.buf[q.head] = zero
	q.head = q.next(q.head)
	q.count--
	return elem, true
}

func (q *Deque[T]) Count() int {
	return q.count
}

func (q *Deque[T]) Max() int {
	return len(q.buf)
}

// at returns the i'th element counting from the front.
func (q *Deque[T]) at(i int) *T {
	return &q.buf[(q.head+i)%len(q.buf)]
}

func (q *Deque[T]) Find(match func(T) bool) (elem T, ok bool) {
	for i := 0; i < q.count; i++ {
		if e := *q.at(i); match(e) {
			return e, true
		}
	}
	return
}

// Del removes the first match from the Deque, keeping the order of the remaining elements.
func (q *Deque[T]) Del(match func(T) bool) bool {
	for i := 0; i < q.count; i++ {
		if !match(*q.at(i)) {
			continue
		}
		for j := i; j < q.count-1; j++ {
			*q.at(j) = *q.at(j + 1)
		}
		var zero T
		*q.at(q.count - 1) = zero
		q.tail = (q.tail - 1 + len(q.buf)) % len(q.buf)
		q.count--
		return true
	}
	return false
}

// Each calls fn on the elements from front to back.
func (q *Deque[T]) Each(fn func(T)) {
	for i := 0; i < q.count; i++ {
		fn(*q.at(i))
	}
}

func (q *Deque[T]) Clear() {
	var zero T
	for i := range q.buf {
		q.buf[i] = zero
	}
	q.head = 0
	q.tail = 0
	q.count = 0
}
