// Package region implements half-open address intervals.
package region

import (
	"errors"
	"fmt"
	"math"
)

var ErrOverflow = errors.New("region wraps around the end of the address space")

// A Region is the half-open interval [Address, Address+Size).
type Region struct {
	Address uint64 `json:"address"`
	Size    uint64 `json:"size"`
}

// Invalid is the sentinel returned where no region applies. Test for it with IsValid.
var Invalid = Region{Address: math.MaxUint64, Size: 0}

// New returns the region starting at address spanning size bytes.
func New(address, size uint64) (Region, error) {
	if address > math.MaxUint64-size {
		return Invalid, fmt.Errorf("region at %#x of size %#x: %w", address, size, ErrOverflow)
	}
	return Region{Address: address, Size: size}, nil
}

// FromBounds returns the region [start, end). An end before start yields an empty region at start.
func FromBounds(start, end uint64) Region {
	if end < start {
		end = start
	}
	return Region{Address: start, Size: end - start}
}

func (r Region) IsValid() bool {
	return !(r.Address == Invalid.Address && r.Size == Invalid.Size)
}

func (r Region) Empty() bool {
	return r.Size == 0
}

// Start and End make Region usable as an intvl.Interval.
func (r Region) Start() uint64 {
	return r.Address
}

func (r Region) End() uint64 {
	return r.Address + r.Size
}

func (r Region) Contains(addr uint64) bool {
	return addr >= r.Address && addr < r.End()
}

func (r Region) ContainsRegion(o Region) bool {
	if o.Empty() {
		return o.Address >= r.Address && o.Address <= r.End()
	}
	return o.Address >= r.Address && o.End() <= r.End()
}

func (r Region) Overlaps(o Region) bool {
	return r.Address < o.End() && o.Address < r.End()
}

// Intersect returns the common part of r and o, if they overlap.
func (r Region) Intersect(o Region) (Region, bool) {
	if !r.Overlaps(o) {
		return Invalid, false
	}
	return FromBounds(max(r.Address, o.Address), min(r.End(), o.End())), true
}

// UnionHull returns the smallest region covering both r and o.
func (r Region) UnionHull(o Region) Region {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return FromBounds(min(r.Address, o.Address), max(r.End(), o.End()))
}

func (r Region) String() string {
	if !r.IsValid() {
		return "[invalid]"
	}
	return fmt.Sprintf("[%#x, %#x)", r.Address, r.End())
}
