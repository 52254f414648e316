package diff

import (
	"github.com/jeffwilliams/hexcore/internal/provider"
	"github.com/jeffwilliams/hexcore/internal/region"
)

type op byte

const (
	opEqual op = iota
	opDelete
	opInsert
)

type edit struct {
	op op
	n  int
}

// script is an edit script turning A into B. Consecutive edits of the same kind are merged.
type script []edit

func (s *script) push(o op, n int) {
	if n <= 0 {
		return
	}
	if l := len(*s); l > 0 && (*s)[l-1].op == o {
		(*s)[l-1].n += n
		return
	}
	*s = append(*s, edit{o, n})
}

// record adds the hunks of s to res. A hunk is the run of deletions and insertions between two
// equal runs: as many bytes as both sides changed are a Mismatch on each side, the surplus is a
// Deletion on A or an Insertion on B.
func (s script) record(res *Result, addrA, addrB uint64) {
	var del, ins uint64
	flush := func() {
		m := min(del, ins)
		res.A.add(region.Region{Address: addrA, Size: m}, Mismatch)
		res.B.add(region.Region{Address: addrB, Size: m}, Mismatch)
		res.A.add(region.Region{Address: addrA + m, Size: del - m}, Deletion)
		res.B.add(region.Region{Address: addrB + m, Size: ins - m}, Insertion)
		addrA += del
		addrB += ins
		del, ins = 0, 0
	}

	for _, e := range s {
		switch e.op {
		case opEqual:
			flush()
			addrA += uint64(e.n)
			addrB += uint64(e.n)
		case opDelete:
			del += uint64(e.n)
		case opInsert:
			ins += uint64(e.n)
		}
	}
	flush()
}

// windows calls fn with successive pairs of windows of a and b at the same offsets. The last
// window of the shorter input may be partial or empty.
func windows(m meter, a, b provider.Source, size uint64, fn func(off uint64, wa, wb []byte) error) error {
	ra, rb := a.Region(), b.Region()
	total := max(ra.Size, rb.Size)
	if size == 0 {
		size = max(total, 1)
	}

	for off := uint64(0); off < total; off += size {
		if err := m.yield(off); err != nil {
			return err
		}
		wa, err := readWindow(a, ra, off, size)
		if err != nil {
			return err
		}
		wb, err := readWindow(b, rb, off, size)
		if err != nil {
			return err
		}
		if err := fn(off, wa, wb); err != nil {
			return err
		}
	}
	return m.yield(total)
}

func readWindow(src provider.Source, r region.Region, off, size uint64) ([]byte, error) {
	if off >= r.Size {
		return nil, nil
	}
	buf := make([]byte, min(size, r.Size-off))
	if err := provider.ReadFull(src, r.Address+off, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
