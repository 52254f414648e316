package diff

import (
	"context"

	"github.com/jeffwilliams/hexcore/internal/provider"
	"github.com/jeffwilliams/hexcore/internal/region"
)

// Bytewise compares the byte at each offset of A with the byte at the same offset of B. Runs of
// differing bytes become one Mismatch on each side. Bytes past the end of the shorter input are an
// Insertion on B or a Deletion on A. Shifted content is not detected.
type Bytewise struct{}

func (Bytewise) Name() string {
	return "bytewise"
}

func (Bytewise) Analyze(ctx context.Context, a, b provider.Source, progress ProgressFunc) (*Result, error) {
	ra, rb := a.Region(), b.Region()
	common := min(ra.Size, rb.Size)
	m := meter{ctx: ctx, progress: progress, total: max(ra.Size, rb.Size)}
	res := &Result{Algorithm: "bytewise"}

	page := pageSize()
	bufA := make([]byte, page)
	bufB := make([]byte, page)

	runStart, inRun := uint64(0), false
	closeRun := func(end uint64) {
		if !inRun {
			return
		}
		res.A.add(region.FromBounds(ra.Address+runStart, ra.Address+end), Mismatch)
		res.B.add(region.FromBounds(rb.Address+runStart, rb.Address+end), Mismatch)
		inRun = false
	}

	for off := uint64(0); off < common; off += uint64(page) {
		if err := m.yield(off); err != nil {
			return nil, err
		}
		n := int(min(uint64(page), common-off))
		if err := provider.ReadFull(a, ra.Address+off, bufA[:n]); err != nil {
			return nil, err
		}
		if err := provider.ReadFull(b, rb.Address+off, bufB[:n]); err != nil {
			return nil, err
		}

		for i := 0; i < n; i++ {
			differ := bufA[i] != bufB[i]
			switch {
			case differ && !inRun:
				runStart, inRun = off+uint64(i), true
			case !differ && inRun:
				closeRun(off + uint64(i))
			}
		}
	}
	closeRun(common)

	switch {
	case rb.Size > ra.Size:
		res.B.add(region.FromBounds(rb.Address+common, rb.End()), Insertion)
	case ra.Size > rb.Size:
		res.A.add(region.FromBounds(ra.Address+common, ra.End()), Deletion)
	}

	if err := m.yield(m.total); err != nil {
		return nil, err
	}
	dbg("bytewise: %d differences on A, %d on B", res.A.Len(), res.B.Len())
	return res.finish(), nil
}
