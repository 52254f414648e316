package provider

import (
	"encoding/hex"
	"encoding/json"
	"sort"
)

// The overlay holds writes that have not been saved to the source yet. It is a sorted list of
// non-overlapping runs keyed by source offset. Runs that touch are merged, so two adjacent runs
// never exist.
type overlay struct {
	runs []run
}

type run struct {
	start uint64
	data  []byte
}

func (r run) end() uint64 {
	return r.start + uint64(len(r.data))
}

// Run is an exported copy of one overlay run.
type Run struct {
	Start uint64   `json:"start"`
	Bytes HexBytes `json:"bytes"`
}

func (r Run) End() uint64 {
	return r.Start + uint64(len(r.Bytes))
}

// HexBytes marshals to JSON as a hex string.
type HexBytes []byte

func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

func (h *HexBytes) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	d, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	*h = d
	return nil
}

// firstTouching returns the index of the first run that ends at or after off.
func (o *overlay) firstTouching(off uint64) int {
	return sort.Search(len(o.runs), func(i int) bool {
		return o.runs[i].end() >= off
	})
}

// set stores data at off, merging with every run it overlaps or touches.
func (o *overlay) set(off uint64, data []byte) {
	if len(data) == 0 {
		return
	}
	end := off + uint64(len(data))

	i := o.firstTouching(off)
	j := i
	for j < len(o.runs) && o.runs[j].start <= end {
		j++
	}

	start, stop := off, end
	if i < j {
		start = min(start, o.runs[i].start)
		stop = max(stop, o.runs[j-1].end())
	}

	merged := make([]byte, stop-start)
	for _, r := range o.runs[i:j] {
		copy(merged[r.start-start:], r.data)
	}
	copy(merged[off-start:], data)

	o.runs = append(o.runs[:i], append([]run{{start: start, data: merged}}, o.runs[j:]...)...)
}

// remove drops overlay bytes in [off, off+n).
func (o *overlay) remove(off, n uint64) {
	if n == 0 {
		return
	}
	end := off + n

	var kept []run
	for _, r := range o.runs {
		if r.end() <= off || r.start >= end {
			kept = append(kept, r)
			continue
		}
		if r.start < off {
			kept = append(kept, run{start: r.start, data: r.data[:off-r.start]})
		}
		if r.end() > end {
			kept = append(kept, run{start: end, data: r.data[end-r.start:]})
		}
	}
	o.runs = kept
}

// apply copies the overlay bytes covering [off, off+len(buf)) into buf.
func (o *overlay) apply(off uint64, buf []byte) {
	end := off + uint64(len(buf))
	for i := o.firstTouching(off + 1); i < len(o.runs); i++ {
		r := o.runs[i]
		if r.start >= end {
			break
		}
		from := max(r.start, off)
		to := min(r.end(), end)
		if from >= to {
			continue
		}
		copy(buf[from-off:to-off], r.data[from-r.start:to-r.start])
	}
}

func (o *overlay) get(off uint64) (byte, bool) {
	i := o.firstTouching(off + 1)
	if i < len(o.runs) && o.runs[i].start <= off {
		return o.runs[i].data[off-o.runs[i].start], true
	}
	return 0, false
}

// snapshot records which bytes of [off, off+n) are overlaid and with what values.
type snapshot struct {
	data    []byte
	present []bool
}

func (o *overlay) snapshot(off, n uint64) snapshot {
	s := snapshot{data: make([]byte, n), present: make([]bool, n)}
	end := off + n
	for i := o.firstTouching(off + 1); i < len(o.runs); i++ {
		r := o.runs[i]
		if r.start >= end {
			break
		}
		from := max(r.start, off)
		to := min(r.end(), end)
		for a := from; a < to; a++ {
			s.data[a-off] = r.data[a-r.start]
			s.present[a-off] = true
		}
	}
	return s
}

func fullSnapshot(data []byte) snapshot {
	s := snapshot{data: append([]byte{}, data...), present: make([]bool, len(data))}
	for i := range s.present {
		s.present[i] = true
	}
	return s
}

// restore makes [off, off+len(s.data)) match the snapshot exactly.
func (o *overlay) restore(off uint64, s snapshot) {
	i := 0
	for i < len(s.present) {
		j := i
		for j < len(s.present) && s.present[j] == s.present[i] {
			j++
		}
		if s.present[i] {
			o.set(off+uint64(i), s.data[i:j])
		} else {
			o.remove(off+uint64(i), uint64(j-i))
		}
		i = j
	}
}

func (o *overlay) clear() {
	o.runs = nil
}

func (o *overlay) empty() bool {
	return len(o.runs) == 0
}

// exported returns copies of the runs in address order.
func (o *overlay) exported() []Run {
	r := make([]Run, len(o.runs))
	for i, x := range o.runs {
		r[i] = Run{Start: x.start, Bytes: append(HexBytes{}, x.data...)}
	}
	return r
}
