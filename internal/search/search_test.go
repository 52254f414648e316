package search

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffwilliams/hexcore/internal/provider"
	"github.com/jeffwilliams/hexcore/internal/region"
)

func openMemory(t *testing.T, data []byte) *provider.Provider {
	p := provider.New(provider.NewMemory("test", data), provider.DefaultOptions)
	require.NoError(t, p.Open())
	return p
}

func withBufferSize(t *testing.T, n int) {
	old := ReaderBufferSize
	ReaderBufferSize = n
	t.Cleanup(func() { ReaderBufferSize = old })
}

func search(t *testing.T, data []byte, s Settings) []Occurrence {
	p := openMemory(t, data)
	occs, err := Search(context.Background(), p, p.Region(), s, nil)
	require.NoError(t, err)
	return occs
}

func addresses(occs []Occurrence) []uint64 {
	var a []uint64
	for _, o := range occs {
		a = append(a, o.Region.Address)
	}
	return a
}

func regions(occs []Occurrence) []region.Region {
	var r []region.Region
	for _, o := range occs {
		r = append(r, o.Region)
	}
	return r
}

func TestSequenceReportsOverlappingMatches(t *testing.T) {
	data := []byte{0x00, 0xAA, 0xBB, 0xCC, 0xAA, 0xBB, 0xAA, 0xBB, 0xDD}
	occs := search(t, data, Settings{Mode: ModeSequence, Sequence: Sequence{Bytes: []byte{0xAA, 0xBB}}})
	assert.Equal(t, []uint64{1, 4, 6}, addresses(occs))
	for _, o := range occs {
		assert.Equal(t, uint64(2), o.Region.Size)
	}

	occs = search(t, []byte{0xAA, 0xAA, 0xAA}, Settings{Mode: ModeSequence, Sequence: Sequence{Bytes: []byte{0xAA, 0xAA}}})
	assert.Equal(t, []uint64{0, 1}, addresses(occs))
}

func TestSequenceVariants(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		seq      Sequence
		expected []uint64
	}{
		{"ignore case", "xABCabcAbC", Sequence{Bytes: []byte("abc"), IgnoreCase: true}, []uint64{1, 4, 7}},
		{"case sensitive", "xABCabcAbC", Sequence{Bytes: []byte("abc")}, []uint64{4}},
		{"utf16le", "..h\x00i\x00.h\x00", Sequence{Bytes: []byte("hi"), Type: UTF16LE}, []uint64{2}},
		{"utf16be", "\x00h\x00i\x00h\x00i", Sequence{Bytes: []byte("hi"), Type: UTF16BE}, []uint64{0, 4}},
		{"needle longer than data", "ab", Sequence{Bytes: []byte("abc")}, nil},
		{"empty needle", "ab", Sequence{}, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			occs := search(t, []byte(tc.data), Settings{Mode: ModeSequence, Sequence: tc.seq})
			assert.Equal(t, tc.expected, addresses(occs))
		})
	}
}

func TestSequenceAcrossWindows(t *testing.T) {
	withBufferSize(t, 7)

	rnd := rand.New(rand.NewSource(3))
	data := make([]byte, 500)
	for i := range data {
		data[i] = byte(rnd.Intn(3))
	}

	for _, needle := range [][]byte{{0}, {1, 2}, {0, 1, 2}, {2, 2, 2, 2}} {
		var expected []uint64
		for i := 0; i+len(needle) <= len(data); i++ {
			if bytes.Equal(data[i:i+len(needle)], needle) {
				expected = append(expected, uint64(i))
			}
		}

		occs := search(t, data, Settings{Mode: ModeSequence, Sequence: Sequence{Bytes: needle}})
		assert.Equal(t, expected, addresses(occs), "needle %v", needle)
	}
}

func TestBinaryPatternSearch(t *testing.T) {
	pat, err := ParseBinaryPattern("AA ?? BB")
	require.NoError(t, err)

	data := []byte{0xAA, 0x11, 0xBB, 0xAA, 0x22, 0xBB, 0xAA, 0x33, 0xCC}
	occs := search(t, data, Settings{Mode: ModeBinaryPattern, Binary: Binary{Pattern: pat}})
	assert.Equal(t, []region.Region{{Address: 0, Size: 3}, {Address: 3, Size: 3}}, regions(occs))
	for _, o := range occs {
		assert.Equal(t, DecodeBinary, o.Decode)
	}
}

func TestBinaryPatternAlignment(t *testing.T) {
	zeros := make([]byte, 9)

	tests := []struct {
		pattern   string
		alignment uint64
		expected  []uint64
	}{
		{"00 00", 0, []uint64{0, 2, 4, 6}},
		{"00 00", 1, []uint64{0, 2, 4, 6}},
		{"00", 4, []uint64{0, 4, 8}},
		{"00 00 00", 4, []uint64{0, 4}},
		{"00 00 00 00 00", 4, []uint64{0}},
	}

	for _, tc := range tests {
		pat, err := ParseBinaryPattern(tc.pattern)
		require.NoError(t, err)
		occs := search(t, zeros, Settings{Mode: ModeBinaryPattern, Binary: Binary{Pattern: pat, Alignment: tc.alignment}})
		assert.Equal(t, tc.expected, addresses(occs), "%s aligned to %d", tc.pattern, tc.alignment)
	}
}

func TestParseBinaryPattern(t *testing.T) {
	tests := []struct {
		input    string
		expected BinaryPattern
	}{
		{"AA ?? BB", BinaryPattern{{0xFF, 0xAA}, {0, 0}, {0xFF, 0xBB}}},
		{"A?", BinaryPattern{{0xF0, 0xA0}}},
		{"?a", BinaryPattern{{0x0F, 0x0A}}},
		{"0102", BinaryPattern{{0xFF, 0x01}, {0xFF, 0x02}}},
		{`"hi" 00`, BinaryPattern{{0xFF, 'h'}, {0xFF, 'i'}, {0xFF, 0}}},
		{`"a b"`, BinaryPattern{{0xFF, 'a'}, {0xFF, ' '}, {0xFF, 'b'}}},
		{"u16le(258)", BinaryPattern{{0xFF, 0x02}, {0xFF, 0x01}}},
		{"u16be(258)", BinaryPattern{{0xFF, 0x01}, {0xFF, 0x02}}},
		{"u32(1)", BinaryPattern{{0xFF, 1}, {0xFF, 0}, {0xFF, 0}, {0xFF, 0}}},
		{"s8(-1) ??", BinaryPattern{{0xFF, 0xFF}, {0, 0}}},
		{"s16be(-5)", BinaryPattern{{0xFF, 0xFF}, {0xFF, 0xFB}}},
		{"u8(+7)", BinaryPattern{{0xFF, 7}}},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			p, err := ParseBinaryPattern(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, p)
		})
	}
}

func TestParseBinaryPatternErrors(t *testing.T) {
	tests := []struct {
		input  string
		offset int
		reason string
	}{
		{"", 0, "pattern is empty"},
		{"   ", 3, "pattern is empty"},
		{"A", 0, "expected two hex digits or wildcards"},
		{"AA G1", 3, "unexpected character 'G'"},
		{`"abc`, 0, "unterminated string"},
		{"u12(1)", 0, "value expression size must be a multiple of 8 bits"},
		{"u72(1)", 2, "value expressions are at most 64 bits"},
		{"u8(256)", 3, "256 does not fit in 8 bits"},
		{"s8(-129)", 3, "-129 does not fit in 8 bits"},
		{"u8(x)", 3, "invalid number 'x'"},
		{"u8 1", 2, "expected '(' after value type"},
		{"u8(1", 3, "expected ')' after value"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			_, err := ParseBinaryPattern(tc.input)
			var pe *PatternError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tc.offset, pe.Offset)
			assert.Equal(t, tc.reason, pe.Reason)
		})
	}
}

func TestBinaryPatternText(t *testing.T) {
	p, err := ParseBinaryPattern("a? ?? 0F \"A\"")
	require.NoError(t, err)
	assert.Equal(t, "A? ?? 0F 41", p.String())

	var q BinaryPattern
	require.NoError(t, q.UnmarshalText([]byte(p.String())))
	assert.Equal(t, p, q)

	assert.True(t, p.Matches([]byte{0xA7, 0x00, 0x0F, 'A', 0xFF}))
	assert.False(t, p.Matches([]byte{0xB7, 0x00, 0x0F, 'A'}))
	assert.False(t, p.Matches([]byte{0xA7}))
}

func TestStrings(t *testing.T) {
	data := []byte("ab\x00hello\x00wo\x01world!\x00")

	tests := []struct {
		name     string
		settings Strings
		expected []region.Region
	}{
		{"all classes", Strings{MinLength: 4, Classes: AllClasses}, []region.Region{{Address: 3, Size: 5}, {Address: 12, Size: 6}}},
		{"short runs", Strings{MinLength: 2, Classes: AllClasses}, []region.Region{{Address: 0, Size: 2}, {Address: 3, Size: 5}, {Address: 9, Size: 2}, {Address: 12, Size: 6}}},
		{"lower only", Strings{MinLength: 4, Classes: Lower}, []region.Region{{Address: 3, Size: 5}, {Address: 12, Size: 5}}},
		{"null terminated", Strings{MinLength: 4, Classes: Lower, NullTermination: true}, []region.Region{{Address: 3, Size: 5}}},
		{"null terminated symbols", Strings{MinLength: 4, Classes: AllClasses, NullTermination: true}, []region.Region{{Address: 3, Size: 5}, {Address: 12, Size: 6}}},
		{"digits only", Strings{MinLength: 1, Classes: Digits}, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			occs := search(t, data, Settings{Mode: ModeStrings, Strings: tc.settings})
			assert.Equal(t, tc.expected, regions(occs))
		})
	}
}

func TestStringsRunReachingRegionEnd(t *testing.T) {
	p := openMemory(t, []byte("..abcdef"))
	s := Settings{Mode: ModeStrings, Strings: Strings{MinLength: 3, Classes: Lower}}

	occs, err := Search(context.Background(), p, p.Region(), s, nil)
	require.NoError(t, err)
	assert.Equal(t, []region.Region{{Address: 2, Size: 6}}, regions(occs))

	occs, err = Search(context.Background(), p, region.Region{Address: 3, Size: 3}, s, nil)
	require.NoError(t, err)
	assert.Equal(t, []region.Region{{Address: 3, Size: 3}}, regions(occs))
}

func TestStringsWide(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		typ      StringType
		expected []Occurrence
	}{
		{
			"utf16le", "h\x00e\x00l\x00l\x00o\x00\x00\x00", UTF16LE,
			[]Occurrence{{Region: region.Region{Address: 0, Size: 10}, Decode: DecodeUTF16LE}},
		},
		{
			"utf16be", "\x00h\x00i\x00!", UTF16BE,
			[]Occurrence{{Region: region.Region{Address: 0, Size: 6}, Decode: DecodeUTF16BE, BigEndian: true}},
		},
		{
			"odd tail dropped", "a\x00b\x00c\x00dX", UTF16LE,
			[]Occurrence{{Region: region.Region{Address: 0, Size: 6}, Decode: DecodeUTF16LE}},
		},
		{
			"ascii and utf16le", "abcdef\x00h\x00e\x00l\x00l\x00o\x00", ASCIIUTF16LE,
			[]Occurrence{
				{Region: region.Region{Address: 0, Size: 6}, Decode: DecodeASCII},
				{Region: region.Region{Address: 7, Size: 10}, Decode: DecodeUTF16LE},
			},
		},
		{
			"utf16le before ascii", "h\x00e\x00l\x00l\x00o\x00\x00\x00abcdef", ASCIIUTF16LE,
			[]Occurrence{
				{Region: region.Region{Address: 0, Size: 10}, Decode: DecodeUTF16LE},
				{Region: region.Region{Address: 12, Size: 6}, Decode: DecodeASCII},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			occs := search(t, []byte(tc.data), Settings{Mode: ModeStrings, Strings: Strings{MinLength: 5, Type: tc.typ, Classes: AllClasses}})
			assert.Equal(t, tc.expected, occs)
		})
	}
}

func TestStringsUTF8(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		expected []region.Region
	}{
		{"multi-byte", "\xC3\xA9t\xC3\xA9", []region.Region{{Address: 0, Size: 5}}},
		{"truncated sequence", "abcd\xC3xyz12", []region.Region{{Address: 0, Size: 4}, {Address: 6, Size: 4}}},
		{"stray continuation", "abc\xA9def", []region.Region{{Address: 0, Size: 3}, {Address: 4, Size: 3}}},
		{"truncated at end", "abc\xE2\x82", []region.Region{{Address: 0, Size: 3}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			occs := search(t, []byte(tc.data), Settings{Mode: ModeStrings, Strings: Strings{MinLength: 3, Type: UTF8, Classes: AllClasses}})
			assert.Equal(t, tc.expected, regions(occs))
			for _, o := range occs {
				assert.Equal(t, DecodeUTF8, o.Decode)
			}
		})
	}
}

func TestRegex(t *testing.T) {
	data := []byte("foo123\x00bar\x00foobar\x00")

	tests := []struct {
		name     string
		regex    Regex
		expected []uint64
	}{
		{"search", Regex{Pattern: "foo", MinLength: 3}, []uint64{0, 11}},
		{"full match", Regex{Pattern: `foo\d+`, FullMatch: true, MinLength: 3}, []uint64{0}},
		{"full match alternation", Regex{Pattern: "bar|foo", FullMatch: true, MinLength: 3}, []uint64{7}},
		{"min length", Regex{Pattern: "o", MinLength: 6}, []uint64{0, 11}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			occs := search(t, data, Settings{Mode: ModeRegex, Regex: tc.regex})
			assert.Equal(t, tc.expected, addresses(occs))
		})
	}

	p := openMemory(t, data)
	_, err := Search(context.Background(), p, p.Region(), Settings{Mode: ModeRegex, Regex: Regex{Pattern: "("}}, nil)
	var pe *PatternError
	assert.ErrorAs(t, err, &pe)
}

func TestValue(t *testing.T) {
	data := []byte{0x10, 0x00, 0x20, 0x00, 0x30, 0x00, 0xFF, 0xFF, 0x00, 0x00, 0xC0, 0x3F}

	tests := []struct {
		name     string
		value    Value
		expected []uint64
	}{
		{"u16 range", Value{Type: U16, Min: "0x10", Max: "0x20", Aligned: true}, []uint64{0, 2}},
		{"u16 unaligned", Value{Type: U16, Min: "0x10", Max: "0x20"}, []uint64{0, 2}},
		{"u16 single", Value{Type: U16, Min: "48", Aligned: true}, []uint64{4}},
		{"u16 big endian", Value{Type: U16, Min: "0x1000", BigEndian: true, Aligned: true}, []uint64{0}},
		{"s16", Value{Type: S16, Min: "-1", Aligned: true}, []uint64{6}},
		{"u8", Value{Type: U8, Min: "0x30", Max: "0xff"}, []uint64{4, 6, 7, 10, 11}},
		{"f32", Value{Type: F32, Min: "1", Max: "2", Aligned: true}, []uint64{8}},
		{"u64", Value{Type: U64, Min: "0", Max: "1"}, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			occs := search(t, data, Settings{Mode: ModeValue, Value: tc.value})
			assert.Equal(t, tc.expected, addresses(occs))
			for _, o := range occs {
				assert.Equal(t, uint64(tc.value.Type.Size()), o.Region.Size)
				assert.Equal(t, tc.value.Type.decode(), o.Decode)
			}
		})
	}
}

func TestValueErrors(t *testing.T) {
	p := openMemory(t, []byte{1, 2, 3})
	for _, v := range []Value{{Type: U8, Min: "abc"}, {Type: U8, Min: "300"}, {Type: S8, Min: "0", Max: "-200"}, {Type: F64, Min: "x"}} {
		_, err := Search(context.Background(), p, p.Region(), Settings{Mode: ModeValue, Value: v}, nil)
		var pe *PatternError
		assert.ErrorAs(t, err, &pe, "%+v", v)
	}
}

func TestSearchCancelled(t *testing.T) {
	p := openMemory(t, make([]byte, 64))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	modes := []Settings{
		{Mode: ModeStrings, Strings: DefaultStrings},
		{Mode: ModeSequence, Sequence: Sequence{Bytes: []byte{0}}},
		{Mode: ModeBinaryPattern, Binary: Binary{Pattern: BinaryPattern{{0xFF, 0}}}},
		{Mode: ModeValue, Value: Value{Type: U8, Min: "0"}},
	}
	for _, s := range modes {
		_, err := Search(ctx, p, p.Region(), s, nil)
		assert.ErrorIs(t, err, context.Canceled, s.Mode.String())
	}
}

func TestSearchProgress(t *testing.T) {
	withBufferSize(t, 4)
	p := openMemory(t, make([]byte, 10))

	var seen []uint64
	_, err := Search(context.Background(), p, p.Region(), Settings{Mode: ModeSequence, Sequence: Sequence{Bytes: []byte{1}}},
		func(processed, total uint64) {
			assert.Equal(t, uint64(10), total)
			seen = append(seen, processed)
		})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 4, 8, 10}, seen)
}

func TestSearchClipsRegion(t *testing.T) {
	p := openMemory(t, []byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA})
	s := Settings{Mode: ModeSequence, Sequence: Sequence{Bytes: []byte{0xAA}}}

	occs, err := Search(context.Background(), p, region.Region{Address: 3, Size: 100}, s, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 4}, addresses(occs))

	occs, err = Search(context.Background(), p, region.Region{Address: 10, Size: 5}, s, nil)
	require.NoError(t, err)
	assert.Empty(t, occs)
}

func TestResultsAreOrderedAndMatch(t *testing.T) {
	withBufferSize(t, 16)
	rnd := rand.New(rand.NewSource(11))
	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(rnd.Intn(4))
	}

	pat := BinaryPattern{{0xFF, 1}, {0, 0}, {0x03, 0x02}}
	for _, s := range []Settings{
		{Mode: ModeSequence, Sequence: Sequence{Bytes: []byte{1, 2}}},
		{Mode: ModeBinaryPattern, Binary: Binary{Pattern: pat}},
	} {
		occs := search(t, data, s)
		require.NotEmpty(t, occs)
		for i, o := range occs {
			if i > 0 {
				assert.Less(t, occs[i-1].Region.Address, o.Region.Address)
			}
			b := data[o.Region.Address:o.Region.End()]
			if s.Mode == ModeSequence {
				assert.Equal(t, []byte{1, 2}, b)
			} else {
				assert.True(t, pat.Matches(b))
			}
		}
	}
}

func TestModeText(t *testing.T) {
	var m Mode
	require.NoError(t, m.UnmarshalText([]byte("Regex")))
	assert.Equal(t, ModeRegex, m)
	assert.EqualError(t, m.UnmarshalText([]byte("fuzzy")), "unknown search mode 'fuzzy'. Expected one of strings, sequence, regex, pattern, value")

	var st StringType
	require.NoError(t, st.UnmarshalText([]byte("ascii+utf16be")))
	assert.Equal(t, ASCIIUTF16BE, st)
}
