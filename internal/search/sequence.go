package search

import (
	"unicode/utf16"

	"github.com/jeffwilliams/hexcore/internal/provider"
	"github.com/jeffwilliams/hexcore/internal/region"
	"github.com/sarpdag/boyermoore"
)

type Sequence struct {
	// Bytes is the already decoded sequence. For the UTF-16 types it is UTF-8 text that is
	// re-encoded before searching.
	Bytes      []byte     `json:"bytes"`
	Type       StringType `json:"type"`
	IgnoreCase bool       `json:"ignore_case"`
}

// needle returns the bytes to look for and how a match decodes.
func (s Sequence) needle() ([]byte, DecodeType) {
	switch s.Type {
	case UTF16LE, UTF16BE:
		units := utf16.Encode([]rune(string(s.Bytes)))
		b := make([]byte, 2*len(units))
		for i, u := range units {
			if s.Type == UTF16BE {
				b[2*i], b[2*i+1] = byte(u>>8), byte(u)
			} else {
				b[2*i], b[2*i+1] = byte(u), byte(u>>8)
			}
		}
		return b, s.Type.decode()
	case UTF8:
		return s.Bytes, DecodeUTF8
	}
	return s.Bytes, DecodeASCII
}

func foldASCII(dst, src []byte) []byte {
	dst = append(dst[:0], src...)
	for i, c := range dst {
		if c >= 'A' && c <= 'Z' {
			dst[i] = c + 'a' - 'A'
		}
	}
	return dst
}

// searchSequence reports every match, including matches that overlap an earlier one. The region
// is read in windows that overlap by one byte less than the needle so that no match is missed at
// a window boundary.
func searchSequence(sc *scanner, src provider.Source, s Sequence) ([]Occurrence, error) {
	needle, decode := s.needle()
	n := len(needle)
	if n == 0 {
		return nil, nil
	}
	if s.IgnoreCase {
		needle = foldASCII(nil, needle)
	}

	step := sc.bufSize()
	rd := sc.reader(src, n-1)
	end := sc.region.End()

	var (
		occs   []Occurrence
		folded []byte
	)
	for ws := sc.region.Address; ws < end && end-ws >= uint64(n); ws += uint64(step) {
		if err := sc.yield(ws); err != nil {
			return nil, err
		}
		w, err := rd.Window(ws, step+n-1)
		if err != nil {
			return nil, err
		}
		if s.IgnoreCase {
			folded = foldASCII(folded, w)
			w = folded
		}

		for pos := 0; pos < step; {
			i := boyermoore.Index(w[pos:], needle)
			if i < 0 || pos+i >= step {
				break
			}
			pos += i
			occs = append(occs, Occurrence{Region: region.Region{Address: ws + uint64(pos), Size: uint64(n)}, Decode: decode, BigEndian: s.Type == UTF16BE})
			pos++
		}
	}
	return occs, nil
}
