package pl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const roundTripSource = `
struct Header {
    u32 magic;
    u8 flags;
};

/// A color.
enum Color : u8 { Red, Green = 5, Blue };

bitfield Flags { a : 1; padding : 3; b : 4; };

using Word = be u16;
using Node;

struct Node {
    u32 value;
    Node *next : u32;
};

union Value { u32 i; float f; };

namespace fmt {
    struct Inner { u8 x; };
}

struct Body : Header {
    /// Number of entries.
    Word count;
    u8 data[count * 2] [[color("FF0000"), hidden]];
    char name[while(std::mem::read_unsigned($, 1) != 0)];
    padding[4];
    u8 a, b;
    if (count > 2 && !(flags & 1)) { u32 extra; } else u16 small;
    fmt::Inner inner;
    $ += 4;
    Color c;
    char last @ addressof(data) + sizeof(u32);
    s32 neg @ -1 + (2 - 3) * 4;
    u32 casted @ be u16(count);
    u8 picked @ data[1].x;
    u8 t @ (1 ? 2 : 3) + 1;
} [[static]];

fn sum(u32 a, u32, auto ...rest) {
    u32 total = a + b;
    for (u32 i = 0, i < 10, i += 1) { total = total + i; }
    while (total > 100) total -= 1;
    if (total == 0) return 1 ? 2 : 3; else { break; }
    return total;
};

Body body @ 0x10;
u32 input in;
std::print("x\n\x01", Color::Red, 'a', '\'', true, 1.5f32, 2d, 0xFFU, 7u16);
`

func TestPrintRoundTrip(t *testing.T) {
	first, err := ParseSource(roundTripSource)
	require.NoError(t, err)

	text := Print(first)
	second, err := ParseSource(text)
	require.NoError(t, err, text)
	assert.Equal(t, text, Print(second))

	stripLocations(first)
	stripLocations(second)
	assert.Equal(t, first, second)
}

func TestPrint(t *testing.T) {
	src := "/// doc\nstruct S { be u32 a @ 0x10; u8 b[2]; } [[x(\"y\")]]; S s @ 0;"
	program, err := ParseSource(src)
	require.NoError(t, err)

	expected := `/// doc
struct S {
    be u32 a @ 16;
    u8 b[2];
} [[x("y")]];
S s @ 0;
`
	assert.Equal(t, expected, Print(program))
}

func TestPrintFunction(t *testing.T) {
	src := "fn f(u32 a, auto ...r) { for (u8 i = 0, i < a, i += 1) if (i == 2) break; return a; };"
	program, err := ParseSource(src)
	require.NoError(t, err)

	expected := `fn f(u32 a, auto ...r) {
    for (u8 i = 0, i < a, i = i + 1) {
        if (i == 2) {
            break;
        }
    }
    return a;
};
`
	assert.Equal(t, expected, Print(program))
}

func TestPrintExpr(t *testing.T) {
	tests := []struct {
		src      string
		expected string
	}{
		{"1 + 2 * 3", "1 + 2 * 3"},
		{"(1 + 2) * 3", "(1 + 2) * 3"},
		{"1 - 2 - 3", "1 - 2 - 3"},
		{"1 - (2 - 3)", "1 - (2 - 3)"},
		{"a || b ^^ c && d", "a || b ^^ c && d"},
		{"(a || b) && c", "(a || b) && c"},
		{"!(a == b)", "!(a == b)"},
		{"x ? y : z ? 1 : 2", "x ? y : z ? 1 : 2"},
		{"(x ? y : z) ? 1 : 2", "(x ? y : z) ? 1 : 2"},
		{"1 << 2 + 3", "1 << 2 + 3"},
		{"(1 << 2) + 3", "(1 << 2) + 3"},
		{"a[i + 1].b", "a[i + 1].b"},
		{"0x10", "16"},
		{"0b11u8", "3u8"},
		{"10U", "10U"},
		{"5s16", "5s16"},
		{"1.0", "1.0"},
		{"2.5f", "2.5f32"},
		{"'\\n'", "'\\n'"},
		{"false", "false"},
		{"\"a\\\"b\"", "\"a\\\"b\""},
		{"sizeof(u16)", "2U"},
		{"addressof(parent.x)", "addressof(parent.x)"},
		{"le s32(1)", "le s32(1)"},
		{"f(1, g())", "f(1, g())"},
	}

	for _, tc := range tests {
		t.Run(tc.src, func(t *testing.T) {
			assert.Equal(t, tc.expected, PrintExpr(parseExpr(t, tc.src)))
		})
	}
}

func TestQuoteInvalidUTF8(t *testing.T) {
	assert.Equal(t, `"a\xFFb"`, quote("a\xffb"))
	assert.Equal(t, `"\t\x7F"`, quote("\t\x7f"))
}
