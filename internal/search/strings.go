package search

import (
	"fmt"
	"sort"

	"github.com/jeffwilliams/hexcore/internal/provider"
	"github.com/jeffwilliams/hexcore/internal/region"
)

// Class is a set of character classes accepted in a string.
type Class uint8

const (
	Lower Class = 1 << iota
	Upper
	Digits
	Spaces
	Underscores
	Symbols
	LineFeeds

	AllClasses = Lower | Upper | Digits | Spaces | Underscores | Symbols | LineFeeds
)

func (c Class) accepts(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z':
		return c&Lower != 0
	case b >= 'A' && b <= 'Z':
		return c&Upper != 0
	case b >= '0' && b <= '9':
		return c&Digits != 0
	case b == '_':
		return c&Underscores != 0
	case b == '\r' || b == '\n':
		return c&LineFeeds != 0
	case b == ' ' || b == '\t' || b == '\v' || b == '\f':
		return c&Spaces != 0
	case b > ' ' && b < 0x7f:
		return c&Symbols != 0
	}
	return false
}

type StringType int

const (
	ASCII StringType = iota
	UTF8
	UTF16LE
	UTF16BE
	ASCIIUTF16LE
	ASCIIUTF16BE
)

var stringTypeNames = []string{"ascii", "utf8", "utf16le", "utf16be", "ascii+utf16le", "ascii+utf16be"}

func (t StringType) String() string {
	if int(t) < len(stringTypeNames) {
		return stringTypeNames[t]
	}
	return fmt.Sprintf("StringType(%d)", int(t))
}

func (t StringType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *StringType) UnmarshalText(b []byte) error {
	return parseName(string(b), stringTypeNames, (*int)(t), "string type")
}

func (t StringType) decode() DecodeType {
	switch t {
	case UTF8:
		return DecodeUTF8
	case UTF16LE:
		return DecodeUTF16LE
	case UTF16BE:
		return DecodeUTF16BE
	}
	return DecodeASCII
}

type Strings struct {
	MinLength       int        `json:"min_length"`
	Type            StringType `json:"type"`
	NullTermination bool       `json:"null_termination"`
	Classes         Class      `json:"classes"`
}

// DefaultStrings finds runs of at least five printable characters.
var DefaultStrings = Strings{MinLength: 5, Type: ASCII, Classes: AllClasses}

// searchStrings emits every run of accepted characters at least MinLength bytes long. For the
// UTF-16 types every other byte must be zero and only the other half is classified. For UTF-8,
// multi-byte sequences are accepted whole and an incomplete sequence ends the run before it.
func searchStrings(sc *scanner, src provider.Source, s Strings) ([]Occurrence, error) {
	switch s.Type {
	case ASCIIUTF16LE, ASCIIUTF16BE:
		wide := UTF16LE
		if s.Type == ASCIIUTF16BE {
			wide = UTF16BE
		}
		return searchStringsCombined(sc, src, s, wide)
	}

	minLen := uint64(max(s.MinLength, 1))
	decode := s.Type.decode()
	rd := sc.reader(src, 0)
	end := sc.region.End()

	var (
		start     = sc.region.Address
		count     uint64
		remaining int
		pending   uint64
		occs      []Occurrence
	)

	for addr := sc.region.Address; addr < end; addr++ {
		if err := sc.yield(addr); err != nil {
			return nil, err
		}
		b, err := rd.ReadByte()
		if err != nil {
			return nil, err
		}

		valid := s.Classes.accepts(b)
		switch s.Type {
		case UTF16LE:
			if count%2 == 1 {
				valid = b == 0
			}
		case UTF16BE:
			if count%2 == 0 {
				valid = b == 0
			}
		case UTF8:
			valid, remaining, pending = utf8Step(b, valid, remaining, pending)
		}

		if valid {
			count++
		}
		if valid && addr+1 < end {
			continue
		}

		n := count
		if remaining > 0 || !valid {
			n -= pending
			remaining, pending = 0, 0
		}
		if s.Type == UTF16LE || s.Type == UTF16BE {
			n &^= 1
		}
		if n >= minLen && (!s.NullTermination || (!valid && b == 0)) {
			occs = append(occs, Occurrence{Region: region.Region{Address: start, Size: n}, Decode: decode, BigEndian: s.Type == UTF16BE})
		}
		start, count = addr+1, 0
	}

	return occs, nil
}

// utf8Step classifies b given the state of the current code point. remaining is the number of
// continuation bytes still expected and pending the number of bytes of the code point seen so far.
func utf8Step(b byte, ascii bool, remaining int, pending uint64) (valid bool, rem int, pend uint64) {
	switch {
	case b&0x80 == 0:
		if remaining > 0 {
			return false, remaining, pending
		}
		return ascii, 0, 0
	case b&0xC0 == 0x80:
		if remaining == 0 {
			return false, 0, 0
		}
		if remaining == 1 {
			return true, 0, 0
		}
		return true, remaining - 1, pending + 1
	case remaining > 0:
		return false, remaining, pending
	case b&0xE0 == 0xC0:
		return true, 1, 1
	case b&0xF0 == 0xE0:
		return true, 2, 1
	case b&0xF8 == 0xF0:
		return true, 3, 1
	}
	return false, 0, 0
}

func searchStringsCombined(sc *scanner, src provider.Source, s Strings, wide StringType) ([]Occurrence, error) {
	narrow := s
	narrow.Type = ASCII
	occs, err := searchStrings(sc, src, narrow)
	if err != nil {
		return nil, err
	}

	second := newScanner(sc.ctx, sc.region, nil)
	s.Type = wide
	wideOccs, err := searchStrings(second, src, s)
	if err != nil {
		return nil, err
	}

	occs = append(occs, wideOccs...)
	sort.SliceStable(occs, func(i, j int) bool {
		return occs[i].Region.Address < occs[j].Region.Address
	})
	return occs, nil
}
