package pattern

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffwilliams/hexcore/internal/provider"
)

var sample = []byte{
	0x01, 0x02, 0x03, 0x04, // 0
	0xFF, 0xFE, // 4
	0x41, 0x00, // 6
	0x00, 0x00, 0xC0, 0x3F, // 8: 1.5 as a little endian float32
	'h', 'i', '!', // 12
	'h', 0, 'i', 0, // 15
	0xB5, // 19
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, // 20
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
}

func openSample(t *testing.T) *provider.Provider {
	p := provider.New(provider.NewMemory("sample", sample), provider.DefaultOptions)
	require.NoError(t, p.Open())
	return p
}

func endian[P Pattern](p P, e Endian) P {
	p.Base().Endian = e
	return p
}

func TestGetValue(t *testing.T) {
	src := openSample(t)

	tests := []struct {
		name     string
		p        Pattern
		expected interface{}
	}{
		{"u32 le", u(0, 4, ""), uint64(0x04030201)},
		{"u32 be", endian(u(0, 4, ""), BigEndian), uint64(0x01020304)},
		{"u24 le", u(0, 3, ""), uint64(0x030201)},
		{"s16 le", at(&Signed{}, 4, 2, ""), int64(-257)},
		{"s16 be", endian(at(&Signed{}, 4, 2, ""), BigEndian), int64(-2)},
		{"s8", at(&Signed{}, 4, 1, ""), int64(-1)},
		{"float le", at(&Float{}, 8, 4, ""), 1.5},
		{"bool", at(&Boolean{}, 7, 1, ""), false},
		{"bool true", at(&Boolean{}, 6, 1, ""), true},
		{"char", at(&Character{}, 6, 1, ""), 'A'},
		{"char16 le", at(&WideCharacter{}, 6, 2, ""), 'A'},
		{"char16 be", endian(at(&WideCharacter{}, 6, 2, ""), BigEndian), rune(0x4100)},
		{"string", at(&String{}, 12, 3, ""), "hi!"},
		{"wide string", at(&WideString{}, 15, 4, ""), "hi"},
		{"enum", at(&Enum{}, 6, 1, ""), uint64(0x41)},
		{"u16 le", u(0, 2, ""), uint64(0x0201)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, err := GetValue(tc.p, src)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, v)
		})
	}
}

func TestGetValueWide(t *testing.T) {
	src := openSample(t)

	v, err := GetValue(u(20, 16, ""), src)
	require.NoError(t, err)
	max128 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	assert.Equal(t, 0, max128.Cmp(v.(*big.Int)))

	v, err = GetValue(at(&Signed{}, 20, 16, ""), src)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), v.(*big.Int).Int64())
}

func TestGetValueBitfield(t *testing.T) {
	src := openSample(t)

	tests := []struct {
		name     string
		endian   Endian
		offset   uint64
		fields   []FieldSpec
		expected []uint64
	}{
		{"le", LittleEndian, 19, []FieldSpec{{"a", 1}, {"b", 3}, {"c", 4}}, []uint64{1, 2, 11}},
		{"be", BigEndian, 19, []FieldSpec{{"a", 1}, {"b", 3}, {"c", 4}}, []uint64{1, 3, 5}},
		{"across bytes", LittleEndian, 0, []FieldSpec{{"a", 4}, {"b", 8}}, []uint64{1, 0x20}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBitfield(tc.offset, tc.endian, tc.fields...)
			var got []uint64
			for _, f := range b.Fields {
				v, err := GetValue(f, src)
				require.NoError(t, err)
				got = append(got, v.(uint64))
			}
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestGetValueErrors(t *testing.T) {
	src := openSample(t)

	_, err := GetValue(NewStruct(0, u(0, 1, "")), src)
	assert.ErrorIs(t, err, ErrNoValue)

	_, err = GetValue(u(0, 9, ""), src)
	assert.ErrorIs(t, err, ErrUnsupportedSize)

	_, err = GetValue(at(&Float{}, 0, 2, ""), src)
	assert.ErrorIs(t, err, ErrUnsupportedSize)

	_, err = GetValue(u(uint64(len(sample))-1, 4, ""), src)
	assert.ErrorIs(t, err, provider.ErrOutOfBounds)
}

func TestFormat(t *testing.T) {
	src := openSample(t)

	letters := at(&Enum{Entries: []EnumEntry{{0x40, "At"}, {0x41, "A"}}}, 6, 1, "")
	letters.TypeName = "Letter"
	unknown := at(&Enum{Entries: []EnumEntry{{1, "One"}}}, 6, 1, "")
	unknown.TypeName = "Number"

	ptr := &Pointer{Address: 0x10, Pointee: u(0x10, 1, "")}
	ptr.Size = 4
	cyclic := &Pointer{Address: 0x10, Cyclic: true}
	cyclic.Size = 4

	tests := []struct {
		name     string
		p        Pattern
		expected string
	}{
		{"unsigned", u(0, 4, ""), "67305985 (0x04030201)"},
		{"unsigned padded", u(6, 2, ""), "65 (0x0041)"},
		{"signed", at(&Signed{}, 4, 2, ""), "-257 (0xFEFF)"},
		{"signed byte", at(&Signed{}, 4, 1, ""), "-1 (0xFF)"},
		{"u128", u(20, 16, ""), "340282366920938463463374607431768211455 (0x" + strings.Repeat("F", 32) + ")"},
		{"s128", at(&Signed{}, 20, 16, ""), "-1 (0x" + strings.Repeat("F", 32) + ")"},
		{"float", at(&Float{}, 8, 4, ""), "1.5"},
		{"bool", at(&Boolean{}, 7, 1, ""), "false"},
		{"char", at(&Character{}, 6, 1, ""), "'A'"},
		{"nul char", at(&Character{}, 7, 1, ""), `'\x00'`},
		{"string", at(&String{}, 12, 3, ""), `"hi!"`},
		{"wide string", at(&WideString{}, 15, 4, ""), `"hi"`},
		{"enum", letters, "Letter::A"},
		{"enum without match", unknown, "Number::??? (0x41)"},
		{"bitfield field", NewBitfield(19, LittleEndian, FieldSpec{"a", 4}, FieldSpec{"b", 4}).Fields[1], "11 (0xB)"},
		{"struct", NewStruct(0, u(0, 1, "")), "{ ... }"},
		{"array", NewArrayStatic(0, u(0, 1, ""), 2), "{ ... }"},
		{"padding", at(&Padding{}, 0, 4, ""), ""},
		{"pointer", ptr, "*(0x10)"},
		{"cyclic pointer", cyclic, "*(0x10) ..."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Format(tc.p, src)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, s)
		})
	}
}

func TestFormatDisplayValue(t *testing.T) {
	src := openSample(t)

	calls := 0
	fns := StandardFormatters()
	fns["counted"] = func(p Pattern, src provider.Source) (string, error) {
		calls++
		return "counted", nil
	}
	fns["broken"] = func(p Pattern, src provider.Source) (string, error) {
		return "", ErrNoValue
	}

	plain := u(0, 4, "")
	assert.Equal(t, "default", FormatDisplayValue(plain, "default", fns, src))

	tests := []struct {
		formatter string
		p         Pattern
		expected  string
	}{
		{"hex", u(0, 4, ""), "0x4030201"},
		{"binary", u(19, 1, ""), "0b10110101"},
		{"octal", u(6, 1, ""), "0o101"},
		{"hex", at(&Signed{}, 4, 2, ""), "0xFEFF"},
		{"hex", at(&String{}, 12, 3, ""), "default"},
		{"broken", u(0, 1, ""), "default"},
		{"missing", u(0, 1, ""), "default"},
	}

	for _, tc := range tests {
		t.Run(tc.formatter, func(t *testing.T) {
			tc.p.Base().Formatter = tc.formatter
			assert.Equal(t, tc.expected, FormatDisplayValue(tc.p, "default", fns, src))
		})
	}

	counted := u(0, 1, "")
	counted.Formatter = "counted"
	root := NewStruct(0, counted)
	assert.Equal(t, "counted", FormatDisplayValue(counted, "", fns, src))
	assert.Equal(t, "counted", FormatDisplayValue(counted, "", fns, src))
	assert.Equal(t, 1, calls)

	ClearDisplayValues([]Pattern{root})
	FormatDisplayValue(counted, "", fns, src)
	assert.Equal(t, 2, calls)

	Move(root, 1)
	FormatDisplayValue(counted, "", fns, src)
	assert.Equal(t, 3, calls)
}
