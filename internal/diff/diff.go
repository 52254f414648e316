package diff

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jeffwilliams/hexcore/internal/color"
	"github.com/jeffwilliams/hexcore/internal/intvl"
	"github.com/jeffwilliams/hexcore/internal/provider"
	"github.com/jeffwilliams/hexcore/internal/region"
)

// Kind classifies a difference as seen from one side.
type Kind int

const (
	Mismatch Kind = iota
	Insertion
	Deletion
)

var kindNames = []string{"mismatch", "insertion", "deletion"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Color is the highlight used for cells of this kind.
func (k Kind) Color() color.Color {
	switch k {
	case Insertion:
		return color.RGBA(0x40, 0xC0, 0x40, 0x60)
	case Deletion:
		return color.RGBA(0xE0, 0x40, 0x40, 0x60)
	}
	return color.RGBA(0xE0, 0xC0, 0x20, 0x60)
}

type Entry struct {
	Region region.Region
	Kind   Kind
}

// Side holds the differences found on one of the two inputs, in address order, and an interval
// tree over them for per-address lookup.
type Side struct {
	entries []Entry
	tree    intvl.Tree[Kind]
}

func (s *Side) add(r region.Region, k Kind) {
	if r.Size == 0 {
		return
	}
	if n := len(s.entries); n > 0 {
		last := &s.entries[n-1]
		if last.Kind == k && last.Region.End() == r.Address {
			last.Region.Size += r.Size
			return
		}
	}
	s.entries = append(s.entries, Entry{Region: r, Kind: k})
}

func (s *Side) index() {
	sort.SliceStable(s.entries, func(i, j int) bool {
		return s.entries[i].Region.Address < s.entries[j].Region.Address
	})
	s.tree.Clear()
	for _, e := range s.entries {
		s.tree.Insert(e.Region, e.Kind)
	}
}

func (s *Side) Entries() []Entry {
	return s.entries
}

func (s *Side) Len() int {
	return len(s.entries)
}

// KindAt returns the kind of difference covering addr.
func (s *Side) KindAt(addr uint64) (Kind, bool) {
	es := s.tree.At(addr)
	if len(es) == 0 {
		return 0, false
	}
	return es[0].Value, true
}

func (s *Side) Overlapping(r region.Region) []Entry {
	var out []Entry
	s.tree.EachOverlapping(r, func(e intvl.Entry[Kind]) bool {
		out = append(out, Entry{Region: region.FromBounds(e.From, e.To), Kind: e.Value})
		return true
	})
	return out
}

// Next returns the first difference starting after addr.
func (s *Side) Next(addr uint64) (Entry, bool) {
	e, ok := s.tree.Next(addr)
	if !ok {
		return Entry{}, false
	}
	return Entry{Region: region.FromBounds(e.From, e.To), Kind: e.Value}, true
}

// Prev returns the last difference ending at or before addr.
func (s *Side) Prev(addr uint64) (Entry, bool) {
	e, ok := s.tree.Prev(addr)
	if !ok {
		return Entry{}, false
	}
	return Entry{Region: region.FromBounds(e.From, e.To), Kind: e.Value}, true
}

type Result struct {
	Algorithm string
	A, B      Side
}

func (r *Result) finish() *Result {
	r.A.index()
	r.B.index()
	return r
}

func (r *Result) String() string {
	var sb strings.Builder
	for i, side := range []*Side{&r.A, &r.B} {
		fmt.Fprintf(&sb, "%c:", 'A'+i)
		for _, e := range side.entries {
			fmt.Fprintf(&sb, " %s%v", e.Kind, e.Region)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// ProgressFunc receives the number of bytes compared so far.
type ProgressFunc func(processed, total uint64)

// An Algorithm compares two sources.
type Algorithm interface {
	Name() string
	Analyze(ctx context.Context, a, b provider.Source, progress ProgressFunc) (*Result, error)
}

// Options configure the algorithms created by New.
type Options struct {
	// WindowSize splits the inputs of the myers and semantic algorithms into windows of this many
	// bytes, compared pairwise. Zero compares the whole inputs at once.
	WindowSize uint64
}

var algorithms = map[string]func(opts Options) Algorithm{
	"bytewise": func(Options) Algorithm { return Bytewise{} },
	"myers":    func(o Options) Algorithm { return Myers{WindowSize: o.WindowSize} },
	"semantic": func(o Options) Algorithm { return Semantic{WindowSize: o.WindowSize} },
}

const DefaultAlgorithm = "bytewise"

// Algorithms lists the names accepted by New.
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for n := range algorithms {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func New(name string, opts Options) (Algorithm, error) {
	if name == "" {
		name = DefaultAlgorithm
	}
	f, ok := algorithms[name]
	if !ok {
		return nil, fmt.Errorf("unknown diff algorithm '%s'. Expected one of %s", name, strings.Join(Algorithms(), ", "))
	}
	return f(opts), nil
}

// PageSize is the amount of input compared between cancellation checks.
var PageSize = provider.DefaultReaderBufferSize

type meter struct {
	ctx      context.Context
	progress ProgressFunc
	total    uint64
}

func (m meter) yield(done uint64) error {
	if err := m.ctx.Err(); err != nil {
		return fmt.Errorf("diff stopped at offset %#x: %w", done, err)
	}
	if m.progress != nil {
		m.progress(done, m.total)
	}
	return nil
}

func pageSize() int {
	if PageSize <= 0 {
		return provider.DefaultReaderBufferSize
	}
	return PageSize
}
