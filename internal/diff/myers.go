package diff

import (
	"context"

	"github.com/jeffwilliams/hexcore/internal/provider"
)

// Myers finds a shortest edit script between the inputs with the linear space variant of Myers'
// O(ND) algorithm. Each window is compared independently when WindowSize is set.
type Myers struct {
	WindowSize uint64
}

func (Myers) Name() string {
	return "myers"
}

func (alg Myers) Analyze(ctx context.Context, a, b provider.Source, progress ProgressFunc) (*Result, error) {
	ra, rb := a.Region(), b.Region()
	m := meter{ctx: ctx, progress: progress, total: max(ra.Size, rb.Size)}
	res := &Result{Algorithm: "myers"}

	err := windows(m, a, b, alg.WindowSize, func(off uint64, wa, wb []byte) error {
		s, err := shortestEdit(m, off, wa, wb)
		if err != nil {
			return err
		}
		s.record(res, ra.Address+off, rb.Address+off)
		return nil
	})
	if err != nil {
		return nil, err
	}
	dbg("myers: %d differences on A, %d on B", res.A.Len(), res.B.Len())
	return res.finish(), nil
}

// stepsPerCheck is the number of diagonal extensions between cancellation checks.
const stepsPerCheck = 1 << 16

type myers struct {
	m      meter
	off    uint64
	a, b   []byte
	vf, vb []int
	steps  int
	es     script
}

func shortestEdit(m meter, off uint64, a, b []byte) (script, error) {
	size := 2*((len(a)+len(b)+1)/2) + 3
	d := &myers{m: m, off: off, a: a, b: b, vf: make([]int, size), vb: make([]int, size)}
	if err := d.compare(0, len(a), 0, len(b)); err != nil {
		return nil, err
	}
	return d.es, nil
}

func (d *myers) compare(a0, a1, b0, b1 int) error {
	for a0 < a1 && b0 < b1 && d.a[a0] == d.b[b0] {
		d.es.push(opEqual, 1)
		a0++
		b0++
	}
	suffix := 0
	for a1 > a0 && b1 > b0 && d.a[a1-1] == d.b[b1-1] {
		a1--
		b1--
		suffix++
	}

	switch {
	case a0 == a1:
		d.es.push(opInsert, b1-b0)
	case b0 == b1:
		d.es.push(opDelete, a1-a0)
	default:
		x, y, u, v, err := d.middleSnake(a0, a1, b0, b1)
		if err != nil {
			return err
		}
		if err := d.compare(a0, x, b0, y); err != nil {
			return err
		}
		d.es.push(opEqual, u-x)
		if err := d.compare(u, a1, v, b1); err != nil {
			return err
		}
	}

	d.es.push(opEqual, suffix)
	return nil
}

func (d *myers) tick(a0 int) error {
	d.steps++
	if d.steps%stepsPerCheck != 0 {
		return nil
	}
	return d.m.yield(d.off + uint64(a0))
}

// middleSnake runs the forward and reverse searches from opposite corners until their paths
// overlap, and returns the snake from (x, y) to (u, v) where they meet. Reverse search positions
// count bytes from the end of each input.
func (d *myers) middleSnake(a0, a1, b0, b1 int) (x, y, u, v int, err error) {
	n, m := a1-a0, b1-b0
	delta := n - m
	odd := delta&1 != 0
	limit := (n + m + 1) / 2
	off := limit + 1
	vf, vb := d.vf, d.vb
	vf[off+1] = 0
	vb[off+1] = 0

	for dd := 0; dd <= limit; dd++ {
		for k := -dd; k <= dd; k += 2 {
			if err = d.tick(a0); err != nil {
				return
			}
			var px int
			if k == -dd || (k != dd && vf[off+k-1] < vf[off+k+1]) {
				px = vf[off+k+1]
			} else {
				px = vf[off+k-1] + 1
			}
			py := px - k
			sx, sy := px, py
			for px < n && py < m && d.a[a0+px] == d.b[b0+py] {
				px++
				py++
			}
			vf[off+k] = px

			if c := delta - k; odd && c >= -(dd-1) && c <= dd-1 && px+vb[off+c] >= n {
				return a0 + sx, b0 + sy, a0 + px, b0 + py, nil
			}
		}

		for c := -dd; c <= dd; c += 2 {
			if err = d.tick(a0); err != nil {
				return
			}
			var px int
			if c == -dd || (c != dd && vb[off+c-1] < vb[off+c+1]) {
				px = vb[off+c+1]
			} else {
				px = vb[off+c-1] + 1
			}
			py := px - c
			sx, sy := px, py
			for px < n && py < m && d.a[a1-1-px] == d.b[b1-1-py] {
				px++
				py++
			}
			vb[off+c] = px

			if k := delta - c; !odd && k >= -dd && k <= dd && vf[off+k]+px >= n {
				return a1 - px, b1 - py, a1 - sx, b1 - sy, nil
			}
		}
	}
	panic("diff: paths did not meet")
}
