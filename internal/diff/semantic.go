package diff

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/jeffwilliams/hexcore/internal/provider"
)

// Semantic runs diff-match-patch over the bytes of each window and merges the resulting edits into
// fewer, longer hunks. The script is not always minimal, but shifted blocks of content line up.
type Semantic struct {
	WindowSize uint64
	// Timeout bounds the time spent on one window; past it the remaining edits are coarser.
	Timeout time.Duration
}

const DefaultSemanticTimeout = 5 * time.Second

func (Semantic) Name() string {
	return "semantic"
}

func (alg Semantic) Analyze(ctx context.Context, a, b provider.Source, progress ProgressFunc) (*Result, error) {
	ra, rb := a.Region(), b.Region()
	m := meter{ctx: ctx, progress: progress, total: max(ra.Size, rb.Size)}
	res := &Result{Algorithm: "semantic"}

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = alg.Timeout
	if dmp.DiffTimeout <= 0 {
		dmp.DiffTimeout = DefaultSemanticTimeout
	}

	err := windows(m, a, b, alg.WindowSize, func(off uint64, wa, wb []byte) error {
		if deadline, ok := ctx.Deadline(); ok {
			if rem := time.Until(deadline); rem > 0 && rem < dmp.DiffTimeout {
				dmp.DiffTimeout = rem
			}
		}
		diffs := dmp.DiffMainRunes(byteRunes(wa), byteRunes(wb), false)

		// Cleanup edits the UTF-8 text of each diff. Keep the raw diffs if it split a rune.
		s, ok := toScript(dmp.DiffCleanupSemantic(append([]diffmatchpatch.Diff(nil), diffs...)), len(wa), len(wb))
		if !ok {
			s, _ = toScript(diffs, len(wa), len(wb))
		}
		s.record(res, ra.Address+off, rb.Address+off)
		return nil
	})
	if err != nil {
		return nil, err
	}
	dbg("semantic: %d differences on A, %d on B", res.A.Len(), res.B.Len())
	return res.finish(), nil
}

// toScript converts diffs to an edit script and checks that it spans na bytes of A and nb of B.
func toScript(diffs []diffmatchpatch.Diff, na, nb int) (script, bool) {
	var (
		s          script
		used, made int
	)
	for _, d := range diffs {
		n := utf8.RuneCountInString(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			s.push(opEqual, n)
			used += n
			made += n
		case diffmatchpatch.DiffDelete:
			s.push(opDelete, n)
			used += n
		case diffmatchpatch.DiffInsert:
			s.push(opInsert, n)
			made += n
		}
	}
	return s, used == na && made == nb
}

// byteRunes maps each byte to the rune of the same value so diff-match-patch compares bytes.
func byteRunes(b []byte) []rune {
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return r
}
