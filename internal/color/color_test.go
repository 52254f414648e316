package color

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseHex(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Color
		ok       bool
	}{
		{"rgb", "#ff8000", RGBA(0xff, 0x80, 0x00, 0xff), true},
		{"rgba", "#10203040", RGBA(0x10, 0x20, 0x30, 0x40), true},
		{"upper", "#ABCDEF", RGBA(0xab, 0xcd, 0xef, 0xff), true},
		{"no hash", "ff8000", 0, false},
		{"bad digit", "#ff80zz", 0, false},
		{"short", "#fff", 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := ParseHex(tc.input)
			if !tc.ok {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, c)
		})
	}
}

func TestFromHSV(t *testing.T) {
	assert.Equal(t, RGBA(0xff, 0, 0, 0xff), FromHSV(0, 1, 1))
	assert.Equal(t, RGBA(0, 0xff, 0, 0xff), FromHSV(120, 1, 1))
	assert.Equal(t, RGBA(0, 0, 0xff, 0xff), FromHSV(240, 1, 1))
	assert.Equal(t, RGBA(0xff, 0xff, 0xff, 0xff), FromHSV(0, 0, 1))
}

func TestForPlacementIsDeterministic(t *testing.T) {
	a := ForPlacement(1, "header", "Header")
	b := ForPlacement(1, "header", "Header")
	c := ForPlacement(2, "header", "Header")

	assert.Equal(t, a, b)
	assert.False(t, a.IsDefault())
	assert.Equal(t, uint8(0xff), a.A())
	assert.NotEqual(t, a, c)
}

func TestTextRoundTrip(t *testing.T) {
	c := RGBA(1, 2, 3, 4)
	b, err := c.MarshalText()
	assert.NoError(t, err)

	var d Color
	assert.NoError(t, d.UnmarshalText(b))
	assert.Equal(t, c, d)
}
