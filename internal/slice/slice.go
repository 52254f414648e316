package slice

// RemoveFirstMatch removes the first matching element from the slice `x` and returns the
// slice. it does NOT preserve the order of the slice.
func RemoveFirstMatch[T any](x []T, matches func(i int) bool) []T {
	ndx := 0
	for ndx < len(x) {
		if matches(ndx) {
			break
		}
		ndx++
	}
	if ndx >= len(x) {
		return x // Not found
	}

	last := len(x) - 1
	x[ndx], x[last] = x[last], x[ndx]
	return x[:last]
}

// RemoveFirstMatchPreserveOrder is the same as RemoveFirstMatch but preserves the order of the slice.
func RemoveFirstMatchPreserveOrder[T any](x []T, matches func(i int) bool) []T {
	ndx := 0
	for ndx = 0; ndx < len(x); ndx++ {
		if matches(ndx) {
			break
		}
	}

	if ndx >= len(x) {
		return x // Not found
	}

	copy(x[ndx:], x[ndx+1:])
	var zero T
	x[len(x)-1] = zero
	return x[:len(x)-1]
}

func Contains[T any](x []T, matches func(i int) bool) bool {
	for ndx := range x {
		if matches(ndx) {
			return true
		}
	}
	return false
}

// FindAndMoveToEnd finds the first element in the slice `x` for which `matches` returns true and
// swaps it with the element at the end of the slice
func FindAndMoveToEnd[T any](x []T, matches func(i int) bool) {
	if len(x) < 2 {
		return
	}

	last := len(x) - 1
	for ndx := range x {
		if matches(ndx) {
			x[ndx], x[last] = x[last], x[ndx]
			break
		}
	}
}
