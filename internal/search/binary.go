package search

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/jeffwilliams/hexcore/internal/provider"
	"github.com/jeffwilliams/hexcore/internal/region"
)

// PatternError reports a malformed binary pattern, value or expression.
type PatternError struct {
	Input  string
	Offset int
	Reason string
}

func (e *PatternError) Error() string {
	if e.Offset > 0 {
		return fmt.Sprintf("invalid pattern '%s' at offset %d: %s", e.Input, e.Offset, e.Reason)
	}
	return fmt.Sprintf("invalid pattern '%s': %s", e.Input, e.Reason)
}

// PatternByte matches a byte b when b&Mask == Value.
type PatternByte struct {
	Mask  byte `json:"mask"`
	Value byte `json:"value"`
}

type BinaryPattern []PatternByte

// ParseBinaryPattern parses space separated elements: hex pairs such as "AA", wildcards "??",
// half wildcards "A?" and "?A", quoted strings matched byte for byte, and value expressions such
// as "u32le(123)" or "s16be(-5)" that expand to the bytes of the value.
func ParseBinaryPattern(s string) (BinaryPattern, error) {
	p := patternParser{input: s}
	return p.parse()
}

type patternParser struct {
	input string
	pos   int
}

func (p *patternParser) fail(format string, args ...interface{}) error {
	return &PatternError{Input: p.input, Offset: p.pos, Reason: fmt.Sprintf(format, args...)}
}

func (p *patternParser) rest() string {
	return p.input[p.pos:]
}

func (p *patternParser) parse() (BinaryPattern, error) {
	var pat BinaryPattern
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			p.pos++
		case c == '"':
			end := strings.IndexByte(p.input[p.pos+1:], '"')
			if end < 0 {
				return nil, p.fail("unterminated string")
			}
			for _, b := range []byte(p.input[p.pos+1 : p.pos+1+end]) {
				pat = append(pat, PatternByte{Mask: 0xFF, Value: b})
			}
			p.pos += end + 2
		case c == 'u' || c == 's':
			bytes, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			pat = append(pat, bytes...)
		default:
			b, err := p.parseHexPair()
			if err != nil {
				return nil, err
			}
			pat = append(pat, b)
		}
	}

	if len(pat) == 0 {
		return nil, p.fail("pattern is empty")
	}
	return pat, nil
}

func (p *patternParser) parseHexPair() (PatternByte, error) {
	if len(p.rest()) < 2 {
		return PatternByte{}, p.fail("expected two hex digits or wildcards")
	}

	var b PatternByte
	for _, c := range []byte(p.rest()[:2]) {
		b.Mask <<= 4
		b.Value <<= 4
		if c == '?' {
			continue
		}
		v, ok := hexValue(c)
		if !ok {
			return PatternByte{}, p.fail("unexpected character '%c'", c)
		}
		b.Mask |= 0x0F
		b.Value |= v
	}
	p.pos += 2
	return b, nil
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// parseValue parses ('u'|'s') bits ('le'|'be')? '(' '-'? digits ')'.
func (p *patternParser) parseValue() ([]PatternByte, error) {
	start := p.pos
	p.pos++

	bits := 0
	for p.pos < len(p.input) && p.input[p.pos] >= '0' && p.input[p.pos] <= '9' {
		bits = bits*10 + int(p.input[p.pos]-'0')
		if bits > 64 {
			return nil, p.fail("value expressions are at most 64 bits")
		}
		p.pos++
	}
	if bits == 0 || bits%8 != 0 {
		p.pos = start
		return nil, p.fail("value expression size must be a multiple of 8 bits")
	}

	bigEndian := false
	switch {
	case strings.HasPrefix(p.rest(), "le"):
		p.pos += 2
	case strings.HasPrefix(p.rest(), "be"):
		bigEndian = true
		p.pos += 2
	}

	if !strings.HasPrefix(p.rest(), "(") {
		return nil, p.fail("expected '(' after value type")
	}
	p.pos++
	end := strings.IndexByte(p.rest(), ')')
	if end < 0 {
		return nil, p.fail("expected ')' after value")
	}
	lit := p.rest()[:end]

	v, ok := new(big.Int).SetString(strings.TrimPrefix(lit, "+"), 10)
	if !ok {
		return nil, p.fail("invalid number '%s'", lit)
	}
	lo := new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), uint(bits-1)))
	hi := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	if v.Cmp(lo) < 0 || v.Cmp(hi) >= 0 {
		return nil, p.fail("%s does not fit in %d bits", lit, bits)
	}
	p.pos += end + 1

	u := uint64(v.Int64())
	if v.Sign() >= 0 {
		u = v.Uint64()
	}
	return encodeValue(u, bits/8, bigEndian), nil
}

func encodeValue(u uint64, size int, bigEndian bool) []PatternByte {
	pat := make([]PatternByte, size)
	for i := range pat {
		b := byte(u >> (8 * i))
		j := i
		if bigEndian {
			j = size - 1 - i
		}
		pat[j] = PatternByte{Mask: 0xFF, Value: b}
	}
	return pat
}

// Matches reports whether b starts with bytes matching the pattern.
func (p BinaryPattern) Matches(b []byte) bool {
	if len(b) < len(p) {
		return false
	}
	for i, pb := range p {
		if b[i]&pb.Mask != pb.Value {
			return false
		}
	}
	return true
}

// String returns the pattern in canonical form, one hex pair per byte.
func (p BinaryPattern) String() string {
	const digits = "0123456789ABCDEF"
	var sb strings.Builder
	for i, pb := range p {
		if i > 0 {
			sb.WriteByte(' ')
		}
		for _, shift := range []uint{4, 0} {
			if pb.Mask>>shift&0xF == 0 {
				sb.WriteByte('?')
			} else {
				sb.WriteByte(digits[pb.Value>>shift&0xF])
			}
		}
	}
	return sb.String()
}

func (p BinaryPattern) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *BinaryPattern) UnmarshalText(b []byte) error {
	pat, err := ParseBinaryPattern(string(b))
	if err != nil {
		return err
	}
	*p = pat
	return nil
}

type Binary struct {
	Pattern BinaryPattern `json:"pattern"`
	// Alignment restricts matches to addresses that are a multiple of it from the start of the
	// region. Zero means 1.
	Alignment uint64 `json:"alignment"`
}

// searchBinary tests each candidate address against the pattern. After a match the search resumes
// past its end, so matches never overlap.
func searchBinary(sc *scanner, src provider.Source, s Binary) ([]Occurrence, error) {
	n := uint64(len(s.Pattern))
	if n == 0 {
		return nil, &PatternError{Reason: "pattern is empty"}
	}
	align := max(s.Alignment, 1)

	rd := sc.reader(src, int(n))
	end := sc.region.End()

	var occs []Occurrence
	for addr := sc.region.Address; addr < end && end-addr >= n; {
		if err := sc.yield(addr); err != nil {
			return nil, err
		}
		w, err := rd.Window(addr, int(n))
		if err != nil {
			return nil, err
		}

		if s.Pattern.Matches(w) {
			occs = append(occs, Occurrence{Region: region.Region{Address: addr, Size: n}, Decode: DecodeBinary})
			addr += (n + align - 1) / align * align
			continue
		}
		addr += align
	}
	return occs, nil
}
