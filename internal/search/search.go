// Package search finds strings, byte sequences, regular expressions, masked binary patterns and
// numeric values in a region of a provider.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeffwilliams/hexcore/internal/provider"
	"github.com/jeffwilliams/hexcore/internal/region"
)

// ReaderBufferSize is the size of the window each search reads from the provider at a time. The
// search checks for cancellation and reports progress once per window.
var ReaderBufferSize = provider.DefaultReaderBufferSize

type Mode int

const (
	ModeStrings Mode = iota
	ModeSequence
	ModeRegex
	ModeBinaryPattern
	ModeValue
)

var modeNames = []string{"strings", "sequence", "regex", "pattern", "value"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	return parseName(string(b), modeNames, (*int)(m), "search mode")
}

func parseName(s string, names []string, v *int, what string) error {
	for i, n := range names {
		if strings.EqualFold(s, n) {
			*v = i
			return nil
		}
	}
	return fmt.Errorf("unknown %s '%s'. Expected one of %s", what, s, strings.Join(names, ", "))
}

// DecodeType tells how the bytes of an occurrence should be shown.
type DecodeType int

const (
	DecodeBinary DecodeType = iota
	DecodeASCII
	DecodeUTF8
	DecodeUTF16LE
	DecodeUTF16BE
	DecodeUnsigned
	DecodeSigned
	DecodeFloat
	DecodeDouble
)

var decodeNames = []string{"binary", "ascii", "utf8", "utf16le", "utf16be", "unsigned", "signed", "float", "double"}

func (d DecodeType) String() string {
	if int(d) < len(decodeNames) {
		return decodeNames[d]
	}
	return fmt.Sprintf("DecodeType(%d)", int(d))
}

func (d DecodeType) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Occurrence is one search result.
type Occurrence struct {
	Region    region.Region `json:"region"`
	Decode    DecodeType    `json:"decode"`
	BigEndian bool          `json:"big_endian,omitempty"`
}

// Settings selects a search mode and holds the settings of every mode. Only those of Mode are used.
type Settings struct {
	Mode     Mode     `json:"mode"`
	Strings  Strings  `json:"strings"`
	Sequence Sequence `json:"sequence"`
	Regex    Regex    `json:"regex"`
	Binary   Binary   `json:"binary"`
	Value    Value    `json:"value"`
}

// ProgressFunc receives the number of bytes of the region processed so far.
type ProgressFunc func(processed, total uint64)

// Search runs the search selected by s over r. Occurrences are returned in address order. The
// search stops with the context's error if ctx is cancelled.
func Search(ctx context.Context, src provider.Source, r region.Region, s Settings, progress ProgressFunc) ([]Occurrence, error) {
	r, ok := r.Intersect(src.Region())
	if !ok {
		return nil, nil
	}

	dbg("searching %v for %s", r, s.Mode)
	sc := newScanner(ctx, r, progress)

	var (
		occs []Occurrence
		err  error
	)
	switch s.Mode {
	case ModeStrings:
		occs, err = searchStrings(sc, src, s.Strings)
	case ModeSequence:
		occs, err = searchSequence(sc, src, s.Sequence)
	case ModeRegex:
		occs, err = searchRegex(sc, src, s.Regex)
	case ModeBinaryPattern:
		occs, err = searchBinary(sc, src, s.Binary)
	case ModeValue:
		occs, err = searchValue(sc, src, s.Value)
	default:
		err = fmt.Errorf("unknown search mode %d", s.Mode)
	}
	if err != nil {
		return nil, err
	}

	sc.done()
	dbg("found %d occurrences", len(occs))
	return occs, nil
}

// scanner checks for cancellation and reports progress at most once per reader window.
type scanner struct {
	ctx      context.Context
	region   region.Region
	progress ProgressFunc
	next     uint64
}

func newScanner(ctx context.Context, r region.Region, progress ProgressFunc) *scanner {
	return &scanner{ctx: ctx, region: r, progress: progress, next: r.Address}
}

func (s *scanner) bufSize() int {
	if ReaderBufferSize <= 0 {
		return provider.DefaultReaderBufferSize
	}
	return ReaderBufferSize
}

// yield is called with the address being processed.
func (s *scanner) yield(addr uint64) error {
	if addr < s.next {
		return nil
	}
	s.next = addr + uint64(s.bufSize())
	if err := s.ctx.Err(); err != nil {
		return fmt.Errorf("search stopped at %#x: %w", addr, err)
	}
	if s.progress != nil {
		s.progress(addr-s.region.Address, s.region.Size)
	}
	return nil
}

func (s *scanner) done() {
	if s.progress != nil {
		s.progress(s.region.Size, s.region.Size)
	}
}

func (s *scanner) reader(src provider.Source, extra int) *provider.Reader {
	return provider.NewReader(src, s.region, s.bufSize()+extra)
}
